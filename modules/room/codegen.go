package room

import (
	"strings"

	nanoid "github.com/jaevor/go-nanoid"
)

// CodeAlphabet is the fixed alphabet room codes are drawn from.
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the length of every room code.
const CodeLength = 4

// CodeSpace is the number of distinct room codes.
const CodeSpace = 36 * 36 * 36 * 36

// NewCodeGenerator returns a generator of random room codes.
func NewCodeGenerator() (func() string, error) {
	return nanoid.CustomASCII(CodeAlphabet, CodeLength)
}

// NormalizeCode trims and upper-cases user supplied room codes.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidCode reports whether code has the shape of a room code.
func IsValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(CodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
