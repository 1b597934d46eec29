/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package token parses, formats, and mints API credential tokens.
// The external shape is <prefix>_<publicID>_<secret> where the prefix is one
// of a small fixed set and may itself contain an underscore, so parsing
// anchors on the known prefixes instead of splitting on the first separator.
package token

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

const (
	// PrefixLive marks production credentials, PrefixTest sandbox ones.
	// The prefix carries no security weight; it exists for operator triage.
	PrefixLive = "sk_live"
	PrefixTest = "sk_test"

	separator = "_"

	// PublicIDBytes and SecretBytes are the raw entropy sizes before base62
	// encoding. 24 bytes for the secret is 192 bits, well over the 96-bit
	// design target.
	PublicIDBytes = 16
	SecretBytes   = 24
)

// Prefixes is the set of recognized token prefixes.
var Prefixes = []string{PrefixLive, PrefixTest}

// ErrMalformed is returned for any token that does not match the expected
// shape. Callers must not forward the distinction between malformed shapes.
var ErrMalformed = errors.New("malformed token")

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Parsed is the structured form of an external token.
type Parsed struct {
	Prefix   string
	PublicID string
	Secret   string
}

// Parse splits a raw token into its parts. It is a total function over
// strings: every deviation from the expected shape yields ErrMalformed and
// nothing panics. Leading and trailing whitespace is tolerated.
func Parse(raw string) (Parsed, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Parsed{}, ErrMalformed
	}

	var prefix string
	for _, p := range Prefixes {
		if strings.HasPrefix(trimmed, p+separator) {
			prefix = p
			break
		}
	}
	if prefix == "" {
		return Parsed{}, ErrMalformed
	}

	remainder := trimmed[len(prefix)+len(separator):]
	idx := strings.Index(remainder, separator)
	if idx <= 0 {
		return Parsed{}, ErrMalformed
	}

	// The secret is everything after the first split point; it may contain
	// further separators and is not split again.
	publicID := remainder[:idx]
	secret := remainder[idx+1:]
	if secret == "" {
		return Parsed{}, ErrMalformed
	}

	return Parsed{Prefix: prefix, PublicID: publicID, Secret: secret}, nil
}

// Format renders the external token string. It is the exact inverse of Parse
// for non-empty publicID and secret.
func Format(prefix, publicID, secret string) string {
	return prefix + separator + publicID + separator + secret
}

// GeneratePublicID mints a new high-entropy public identifier.
func GeneratePublicID() (string, error) {
	return randomBase62(PublicIDBytes)
}

// GenerateSecret mints a new secret.
func GenerateSecret() (string, error) {
	return randomBase62(SecretBytes)
}

// randomBase62 draws n random bytes from the system CSPRNG and encodes them
// in the dense base62 alphabet to keep tokens short and URL-safe.
func randomBase62(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return encodeBase62(raw), nil
}

// encodeBase62 converts bytes to base62 by repeated division.
func encodeBase62(raw []byte) string {
	num := new(big.Int).SetBytes(raw)
	if num.Sign() == 0 {
		return "0"
	}

	base := big.NewInt(62)
	rem := new(big.Int)
	out := make([]byte, 0, len(raw)*2)
	for num.Sign() > 0 {
		num.DivMod(num, base, rem)
		out = append(out, base62Alphabet[rem.Int64()])
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
