package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePasswordFormat(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  string
	}{
		{name: "valid", password: "abc1!x", wantErr: ""},
		{name: "valid longer", password: "Sup3r-Secret!", wantErr: ""},
		{name: "empty", password: "", wantErr: "empty"},
		{name: "too short", password: "a1!", wantErr: "at least 6"},
		{name: "no letter", password: "123456!", wantErr: "letter"},
		{name: "no digit", password: "abcdef!", wantErr: "digit"},
		{name: "no symbol", password: "abcdef1", wantErr: "symbol"},
		{name: "too long", password: strings.Repeat("a1!", 30), wantErr: "at most"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePasswordFormat(tt.password)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			var format FormatError
			require.ErrorAs(t, err, &format)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHashPasswordRoundTrip(t *testing.T) {
	password := "Passw0rd!"

	first, err := HashPassword(password)
	require.NoError(t, err)
	second, err := HashPassword(password)
	require.NoError(t, err)

	// Unique salt per call: same input, different hashes, both verify.
	assert.NotEqual(t, first, second)
	assert.True(t, VerifyPassword(password, first))
	assert.True(t, VerifyPassword(password, second))
	assert.False(t, VerifyPassword("Wr0ng-pass!", first))
}

func TestHashPasswordRejectsInvalidFormat(t *testing.T) {
	for _, password := range []string{"", "short", "nodigits!", "nosymbol1"} {
		hash, err := HashPassword(password)

		var format FormatError
		require.ErrorAs(t, err, &format, "password %q", password)
		assert.Empty(t, hash)
	}
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	assert.False(t, VerifyPassword("Passw0rd!", ""))
	assert.False(t, VerifyPassword("Passw0rd!", "not-a-bcrypt-hash"))
	assert.False(t, VerifyPassword("", ""))
}

func TestGenerateTemporaryPasswordAlwaysCompliant(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		password, err := GenerateTemporaryPassword()
		require.NoError(t, err)
		require.NoError(t, ValidatePasswordFormat(password))
		assert.Len(t, password, temporaryPasswordLength)
		seen[password] = true
	}

	// Not a strict randomness test, just a sanity check on the generator.
	assert.Greater(t, len(seen), 990)
}
