package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePassword(t *testing.T) {
	pv := NewPasswordValidator()

	tests := []struct {
		name     string
		password string
		want     error
	}{
		{"valid", "Shop#Secure42", nil},
		{"too short", "Ab1!", ErrPasswordTooShort},
		{"too long", strings.Repeat("Ab1!", 19), ErrPasswordTooLong},
		{"sequential run", "Xabcz9!Q", ErrPasswordSequential},
		{"descending run", "Q!9zcbaX", ErrPasswordSequential},
		{"repeating", "Xaaa9!zQ", ErrPasswordRepeating},
		{"no upper", "nouppercase1!", ErrPasswordNoUpper},
		{"no lower", "NOLOWER1!", ErrPasswordNoLower},
		{"no number", "NoNumber!", ErrPasswordNoNumber},
		{"no special", "NoSpecial1", ErrPasswordNoSpecial},
		{"common", "Passw0rd!", ErrPasswordCommon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pv.ValidatePassword(tt.password))
		})
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Shop#Secure42")
	assert.NoError(t, err)
	assert.NotEqual(t, "Shop#Secure42", hash)
	assert.True(t, CheckPassword(hash, "Shop#Secure42"))
	assert.False(t, CheckPassword(hash, "Shop#Secure43"))
}
