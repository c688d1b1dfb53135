package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()

	service, err := NewTokenService(TokenConfig{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
	})
	require.NoError(t, err)

	return service
}

func testAccount() Account {
	return Account{
		ID:     "acc-1",
		Email:  "doctor@clinic.test",
		Role:   RoleDoctor,
		Active: true,
	}
}

func TestNewTokenServiceRejectsBadSecrets(t *testing.T) {
	_, err := NewTokenService(TokenConfig{RefreshSecret: []byte("x")})
	assert.Error(t, err)

	_, err = NewTokenService(TokenConfig{AccessSecret: []byte("x")})
	assert.Error(t, err)

	_, err = NewTokenService(TokenConfig{
		AccessSecret:  []byte("same"),
		RefreshSecret: []byte("same"),
	})
	assert.Error(t, err)
}

func TestIssuePairRoundTrip(t *testing.T) {
	service := newTestTokenService(t)
	account := testAccount()

	pair, err := service.IssuePair(account)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(defaultAccessTTL.Seconds()), pair.ExpiresIn)

	claims, err := service.Verify(pair.AccessToken, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, account.ID, claims.Subject)
	assert.Equal(t, account.Email, claims.Email)
	assert.Equal(t, account.Role, claims.Role)
	assert.Equal(t, KindAccess, claims.Kind)
	assert.Empty(t, claims.Nonce)

	refreshClaims, err := service.Verify(pair.RefreshToken, KindRefresh)
	require.NoError(t, err)
	assert.Equal(t, account.ID, refreshClaims.Subject)
	assert.Equal(t, KindRefresh, refreshClaims.Kind)
	assert.NotEmpty(t, refreshClaims.Nonce)
}

func TestVerifyWrongKind(t *testing.T) {
	service := newTestTokenService(t)

	pair, err := service.IssuePair(testAccount())
	require.NoError(t, err)

	_, err = service.Verify(pair.AccessToken, KindRefresh)
	assert.ErrorIs(t, err, ErrWrongTokenKind)

	_, err = service.Verify(pair.RefreshToken, KindAccess)
	assert.ErrorIs(t, err, ErrWrongTokenKind)
}

func TestVerifyExpired(t *testing.T) {
	service := newTestTokenService(t)

	// Issue in the past, verify against the real clock.
	service.now = func() time.Time { return time.Now().Add(-time.Hour) }
	pair, err := service.IssuePair(testAccount())
	require.NoError(t, err)
	service.now = time.Now

	_, err = service.Verify(pair.AccessToken, KindAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyMalformed(t *testing.T) {
	service := newTestTokenService(t)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		_, err := service.Verify(token, KindAccess)
		assert.ErrorIs(t, err, ErrTokenMalformed, "token %q", token)
	}
}

func TestVerifyForeignSignature(t *testing.T) {
	service := newTestTokenService(t)

	foreign, err := NewTokenService(TokenConfig{
		AccessSecret:  []byte("other-access-secret"),
		RefreshSecret: []byte("other-refresh-secret"),
	})
	require.NoError(t, err)

	pair, err := foreign.IssuePair(testAccount())
	require.NoError(t, err)

	// A forged token never learns about kinds: it is malformed, full stop.
	_, err = service.Verify(pair.AccessToken, KindAccess)
	assert.ErrorIs(t, err, ErrTokenMalformed)
	_, err = service.Verify(pair.AccessToken, KindRefresh)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestRefreshTokensUniquePerIssuance(t *testing.T) {
	service := newTestTokenService(t)
	account := testAccount()

	first, err := service.IssuePair(account)
	require.NoError(t, err)
	second, err := service.IssuePair(account)
	require.NoError(t, err)

	// The nonce guarantees uniqueness even within the same clock second.
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "missing", header: "", want: ""},
		{name: "no scheme", header: "token-value", want: ""},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", want: ""},
		{name: "standard", header: "Bearer token-value", want: "token-value"},
		{name: "case insensitive scheme", header: "bearer token-value", want: "token-value"},
		{name: "extra spaces", header: "  Bearer   token-value ", want: "token-value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			assert.Equal(t, tt.want, ExtractBearer(r))
		})
	}
}
