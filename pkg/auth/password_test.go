package auth

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name       string
		password   string
		shouldFail bool
		reason     string
	}{
		{name: "valid strong password", password: "SecureP@ss123"},
		{name: "valid with symbols", password: "MyP@ssw0rd!"},
		{name: "too short", password: "Pass@1", shouldFail: true, reason: "at least"},
		{name: "missing uppercase", password: "securepass@123", shouldFail: true, reason: "uppercase"},
		{name: "missing lowercase", password: "SECUREPASS@123", shouldFail: true, reason: "lowercase"},
		{name: "missing digit", password: "SecurePass@xyz", shouldFail: true, reason: "digit"},
		{name: "missing special character", password: "SecurePass123", shouldFail: true, reason: "special"},
		{name: "common password rejected", password: "P@ssw0rd", shouldFail: true, reason: "too common"},
		{name: "too long", password: "Aa1@" + strings.Repeat("x", 80), shouldFail: true, reason: "at most"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if !tt.shouldFail {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr *PasswordValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)

	assert.True(t, h.Compare(hash, "secret123"))
	assert.False(t, h.Compare(hash, "secret124"))
	assert.False(t, h.Compare("not-a-bcrypt-hash", "secret123"))
}

func TestHasher_RejectsEmptyPassword(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	_, err := h.Hash("")
	assert.Error(t, err)
}

func TestHasher_ClampsCost(t *testing.T) {
	h := NewHasher(1)
	hash, err := h.Hash("x")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

func TestGenerateRandomToken(t *testing.T) {
	a, err := GenerateRandomToken(32)
	require.NoError(t, err)
	b, err := GenerateRandomToken(32)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
	assert.NotContains(t, a, "=")
}
