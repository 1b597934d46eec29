/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package secrets hashes and verifies credential secrets with argon2id.
// The encoded hash embeds its own salt and parameters in the standard PHC
// string format, so no separate salt storage is needed and parameters can be
// raised later without invalidating stored hashes.
package secrets

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Memory-hard on purpose: a leaked hash database must
// resist offline brute force, so a fast general-purpose digest is not enough.
const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024 // KiB
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32
	saltLen             = 16
)

// ErrInvalidHash is returned when a stored hash cannot be decoded.
var ErrInvalidHash = errors.New("invalid argon2id hash")

// Hash derives an argon2id hash of the secret with a fresh random salt.
func Hash(secret string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// Verify reports whether secret matches the encoded hash. Comparison of the
// derived key is constant time; the derivation itself dominates the cost for
// any input, so verification latency does not depend on the secret content.
func Verify(encoded, secret string) (bool, error) {
	salt, key, params, err := decode(encoded)
	if err != nil {
		return false, err
	}

	derived := argon2.IDKey([]byte(secret), salt, params.time, params.memory, params.threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, derived) == 1, nil
}

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

func decode(encoded string) ([]byte, []byte, argonParams, error) {
	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, argonParams{}, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, argonParams{}, ErrInvalidHash
	}
	if version != argon2.Version {
		return nil, nil, argonParams{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidHash, version)
	}

	var params argonParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return nil, nil, argonParams{}, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, argonParams{}, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, argonParams{}, ErrInvalidHash
	}
	if len(key) == 0 {
		return nil, nil, argonParams{}, ErrInvalidHash
	}

	return salt, key, params, nil
}
