package id

import "github.com/google/uuid"

// MaxLen bounds caller-supplied identifiers.
const MaxLen = 64

// New generates a UUID v7, falling back to a random UUID v4 if the time
// source fails.
func New() string {
	u, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return u.String()
}

// Valid reports whether s is usable as a record identifier: 1 to MaxLen
// characters from [A-Za-z0-9._-]. Identifiers appear in URL paths and CLI
// arguments unescaped.
func Valid(s string) bool {
	if s == "" || len(s) > MaxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIDChar(s[i]) {
			return false
		}
	}
	return true
}

func isIDChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '.':
		return true
	}
	return false
}
