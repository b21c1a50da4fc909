// Package shortid generates and recognizes short codes.
//
// A code is 3 bytes from crypto/rand rendered as 6 lowercase hexadecimal
// characters, giving 2^24 possible values. Generation does not check for
// uniqueness; callers that persist codes retry on collision.
package shortid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	// ByteLength is the number of random bytes behind each code.
	ByteLength = 3
	// Length is the number of characters in a code.
	Length = ByteLength * 2
)

// New returns a fresh random code.
func New() (string, error) {
	b := make([]byte, ByteLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Valid reports whether code has the exact shape New produces.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
