package domain

import (
	"strings"
)

// Account is the identity key used throughout the system
type Account string

// ParseAccount normalizes a raw account identifier
// Hex addresses (0x-prefixed) are lower-cased so the same key always maps to the same record
func ParseAccount(raw string) (Account, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidAccount
	}
	if strings.ContainsAny(trimmed, " \t\r\n") {
		return "", ErrInvalidAccount
	}

	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = "0x" + strings.ToLower(trimmed[2:])
	}

	return Account(trimmed), nil
}

// String returns the account as a plain string
func (a Account) String() string {
	return string(a)
}

// IsZero reports whether the account is unset
func (a Account) IsZero() bool {
	return a == ""
}
