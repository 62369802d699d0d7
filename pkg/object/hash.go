package object

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseHash trims and validates a hex object id.
func ParseHash(raw string) (Hash, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if err := ValidateHash(Hash(s)); err != nil {
		return "", err
	}
	return Hash(s), nil
}

// ValidateHash checks that h is a 40- or 64-character lowercase hex string.
func ValidateHash(h Hash) error {
	s := string(h)
	if s == "" {
		return fmt.Errorf("hash is empty")
	}
	if len(s) != 40 && len(s) != 64 {
		return fmt.Errorf("hash length %d, expected 40 or 64", len(s))
	}
	if strings.ToLower(s) != s {
		return fmt.Errorf("hash %q is not lowercase", s)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return fmt.Errorf("hash contains non-hex characters: %w", err)
	}
	return nil
}

// Short returns the first eight characters of h for log output.
func (h Hash) Short() string {
	if len(h) > 8 {
		return string(h[:8])
	}
	return string(h)
}
