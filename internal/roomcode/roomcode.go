// Package roomcode generates the short codes participants type to join a trip.
package roomcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Length is the number of characters in a room code.
const Length = 6

// Alphabet omits the ambiguous 0/O and 1/I.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var alphabetSize = big.NewInt(int64(len(Alphabet)))

// Generate returns a random room code.
func Generate() (string, error) {
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Normalize trims and upper-cases user input.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code is a well-formed, normalized room code.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
