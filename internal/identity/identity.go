// Package identity normalizes tenant identities derived from phone numbers.
package identity

import (
	"errors"
	"strings"
)

// ErrInvalid indicates an identity with no digits after normalization.
var ErrInvalid = errors.New("invalid identity")

// Normalize reduces a raw phone-number identity to its digits.
// "+1 555-0100" becomes "15550100". Returns ErrInvalid when nothing remains.
func Normalize(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw))

	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	id := b.String()
	if id == "" {
		return "", ErrInvalid
	}
	return id, nil
}
