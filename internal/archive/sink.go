/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Sink abstracts where exported archive objects land.
type Sink interface {
	Put(ctx context.Context, key string, data []byte) error
}

// FSSink writes archive objects under a local directory. Keys map to file
// paths relative to the root.
type FSSink struct {
	root string
}

// NewFSSink creates a filesystem sink rooted at dir.
func NewFSSink(dir string) (*FSSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &FSSink{root: dir}, nil
}

// Put writes data to root/key, creating parent directories as needed.
func (s *FSSink) Put(_ context.Context, key string, data []byte) error {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create archive subdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write archive object: %w", err)
	}
	return nil
}
