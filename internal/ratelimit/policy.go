/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ratelimit

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy overrides the default quota for one route pattern. Patterns are
// chi route patterns, e.g. "/api/v1/apps/keys/rotate".
type Policy struct {
	Route         string `yaml:"route"`
	Quota         int    `yaml:"quota"`
	WindowSeconds int    `yaml:"window_seconds"`
}

// Window returns the policy window as a duration.
func (p Policy) Window() time.Duration {
	return time.Duration(p.WindowSeconds) * time.Second
}

type policyFile struct {
	Policies []Policy `yaml:"policies"`
}

// LoadPolicies reads route policies from a YAML file. A missing path is not
// an error; the limiter then runs on defaults alone.
func LoadPolicies(path string) ([]Policy, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	for i, p := range file.Policies {
		if p.Route == "" || p.Quota <= 0 || p.WindowSeconds <= 0 {
			return nil, fmt.Errorf("policy %d: route, quota, and window_seconds are required", i)
		}
	}
	return file.Policies, nil
}
