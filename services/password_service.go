package services

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters long")
	ErrPasswordTooLong    = errors.New("password must be at most 72 bytes long")
	ErrPasswordNoUpper    = errors.New("password must contain at least one uppercase letter")
	ErrPasswordNoLower    = errors.New("password must contain at least one lowercase letter")
	ErrPasswordNoNumber   = errors.New("password must contain at least one number")
	ErrPasswordNoSpecial  = errors.New("password must contain at least one special character")
	ErrPasswordCommon     = errors.New("password is too common")
	ErrPasswordSequential = errors.New("password contains a run of sequential characters")
	ErrPasswordRepeating  = errors.New("password contains repeating characters")
)

// PasswordValidator validates passwords against security requirements
type PasswordValidator struct {
	minLength       int
	maxRun          int
	requireUpper    bool
	requireLower    bool
	requireNumber   bool
	requireSpecial  bool
	commonPasswords map[string]bool
}

// NewPasswordValidator creates a new password validator with default settings
func NewPasswordValidator() *PasswordValidator {
	return &PasswordValidator{
		minLength:      8,
		maxRun:         3,
		requireUpper:   true,
		requireLower:   true,
		requireNumber:  true,
		requireSpecial: true,
		commonPasswords: map[string]bool{
			"password1!":  true,
			"passw0rd!":   true,
			"p@ssw0rd":    true,
			"qwerty123!":  true,
			"welcome1!":   true,
			"letmein1!":   true,
			"admin123!":   true,
			"iloveyou1!":  true,
			"changeme1!":  true,
			"shopping1!":  true,
			"password123": true,
		},
	}
}

// ValidatePassword checks if a password meets all security requirements
func (pv *PasswordValidator) ValidatePassword(password string) error {
	if len([]rune(password)) < pv.minLength {
		return ErrPasswordTooShort
	}
	// bcrypt ignores everything past 72 bytes
	if len(password) > 72 {
		return ErrPasswordTooLong
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	var prev rune
	repeat, ascending, descending := 1, 1, 1

	for i, char := range []rune(password) {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}

		if i > 0 {
			repeat = nextRun(repeat, char == prev)
			ascending = nextRun(ascending, char == prev+1)
			descending = nextRun(descending, char == prev-1)
			if repeat >= pv.maxRun {
				return ErrPasswordRepeating
			}
			if ascending >= pv.maxRun || descending >= pv.maxRun {
				return ErrPasswordSequential
			}
		}
		prev = char
	}

	if pv.requireUpper && !hasUpper {
		return ErrPasswordNoUpper
	}
	if pv.requireLower && !hasLower {
		return ErrPasswordNoLower
	}
	if pv.requireNumber && !hasNumber {
		return ErrPasswordNoNumber
	}
	if pv.requireSpecial && !hasSpecial {
		return ErrPasswordNoSpecial
	}

	if pv.commonPasswords[strings.ToLower(password)] {
		return ErrPasswordCommon
	}

	return nil
}

func nextRun(n int, continues bool) int {
	if continues {
		return n + 1
	}
	return 1
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
