package domain

import (
	"regexp"
	"strings"
)

var keyPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// VerificationKey is a normalized 64-character lowercase hex key.
type VerificationKey string

// ParseKey trims and lowercases candidate before validating it. It must run
// before any cache or authority lookup.
func ParseKey(candidate string) (VerificationKey, error) {
	k := strings.ToLower(strings.TrimSpace(candidate))
	if !keyPattern.MatchString(k) {
		return "", ErrInvalidKey
	}
	return VerificationKey(k), nil
}

func (k VerificationKey) String() string {
	return string(k)
}

// Prefix is the loggable part of a key.
func (k VerificationKey) Prefix() string {
	if len(k) <= 16 {
		return string(k)
	}
	return string(k[:16])
}
