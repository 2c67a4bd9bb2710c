package services

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/openledger/apiserver/types"
)

const (
	MaxUsernameLen = 255
	MinPasswordLen = 6
)

func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return NewValidationError("username", "must not be empty")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLen {
		return NewValidationError("username", "must be at most 255 characters")
	}
	return nil
}

func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLen {
		return NewValidationError("password", "must be at least 6 characters")
	}
	return nil
}

// ValidateBirthdate requires a date that is not after today.
func ValidateBirthdate(birthdate types.Date, now time.Time) error {
	if birthdate.IsZero() {
		return NewValidationError("birthdate", "is required")
	}
	if birthdate.After(types.NewDate(now).Time) {
		return NewValidationError("birthdate", "must not be in the future")
	}
	return nil
}
