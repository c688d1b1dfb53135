package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	handler *Handler
	service *Service
	store   *mockStore
	account *Account
}

func newHandlerFixture(t *testing.T) handlerFixture {
	t.Helper()
	account := activeAccount(t)
	store := newMockStore(account)
	service := newTestService(t, store)
	return handlerFixture{
		handler: NewHandler(service),
		service: service,
		store:   store,
		account: account,
	}
}

func postJSON(path, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func withPrincipal(r *http.Request, principal Principal) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), principalKey, principal))
}

func TestHandlerLoginSuccess(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Login(rec, postJSON("/login", `{"email":"doctor@clinic.test","password":"Passw0rd!"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var result LoginResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Positive(t, result.ExpiresIn)
	assert.Equal(t, f.account.ID, result.User.ID)

	// The serialized user never exposes credential material.
	assert.NotContains(t, rec.Body.String(), "credential")
	assert.NotContains(t, rec.Body.String(), f.account.CredentialHash)
}

func TestHandlerLoginMissingCredentials(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Login(rec, postJSON("/login", `{"email":"doctor@clinic.test"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeMissingCredentials, decodeErrorBody(t, rec)["code"])
}

func TestHandlerLoginInvalidJSON(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Login(rec, postJSON("/login", `{"email": not-json`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_BODY", decodeErrorBody(t, rec)["code"])
}

func TestHandlerLoginWrongPassword(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Login(rec, postJSON("/login", `{"email":"doctor@clinic.test","password":"Wr0ng-pass!"}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeErrorBody(t, rec)
	assert.Equal(t, CodeInvalidCredentials, body["code"])
	// The message never reveals whether the account exists.
	assert.NotContains(t, strings.ToLower(body["error"]), "password")
}

func TestHandlerLoginUnknownAccountSameShape(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Login(rec, postJSON("/login", `{"email":"nobody@clinic.test","password":"Passw0rd!"}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeInvalidCredentials, decodeErrorBody(t, rec)["code"])
}

func TestHandlerLoginLocked(t *testing.T) {
	f := newHandlerFixture(t)
	until := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Second)
	f.account.FailedAttempts = 5
	f.account.LockedUntil = &until

	rec := httptest.NewRecorder()
	f.handler.Login(rec, postJSON("/login", `{"email":"doctor@clinic.test","password":"Passw0rd!"}`))

	assert.Equal(t, http.StatusLocked, rec.Code)

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, int((10 * time.Minute).Seconds()))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, CodeAccountLocked, body["code"])
	assert.Equal(t, until.Format(time.RFC3339), body["lockedUntil"])
}

func TestHandlerRefresh(t *testing.T) {
	f := newHandlerFixture(t)

	login, err := f.service.Login(context.Background(), f.account.Email, testPassword)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.handler.Refresh(rec, postJSON("/refresh", `{"refreshToken":"`+login.RefreshToken+`"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	var pair TokenPair
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&pair))
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEqual(t, login.RefreshToken, pair.RefreshToken)
}

func TestHandlerRefreshInvalidToken(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Refresh(rec, postJSON("/refresh", `{"refreshToken":"garbage"}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeInvalidRefreshToken, decodeErrorBody(t, rec)["code"])
}

func TestHandlerRefreshExpiredToken(t *testing.T) {
	account := activeAccount(t)
	store := newMockStore(account)
	tokens := newTestTokenService(t)
	handler := NewHandler(NewService(store, tokens, DefaultLockoutPolicy()))

	tokens.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	pair, err := tokens.IssuePair(*account)
	require.NoError(t, err)
	tokens.now = time.Now
	account.CurrentRefreshToken = pair.RefreshToken

	rec := httptest.NewRecorder()
	handler.Refresh(rec, postJSON("/refresh", `{"refreshToken":"`+pair.RefreshToken+`"}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeRefreshTokenExpired, decodeErrorBody(t, rec)["code"])
}

func TestHandlerLogout(t *testing.T) {
	f := newHandlerFixture(t)
	f.account.CurrentRefreshToken = "stored-refresh"

	r := withPrincipal(httptest.NewRequest(http.MethodPost, "/logout", nil), f.account.Summary())
	rec := httptest.NewRecorder()
	f.handler.Logout(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.account.CurrentRefreshToken)
}

func TestHandlerLogoutWithoutPrincipal(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Logout(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeNotAuthenticated, decodeErrorBody(t, rec)["code"])
}

func TestHandlerMe(t *testing.T) {
	f := newHandlerFixture(t)

	r := withPrincipal(httptest.NewRequest(http.MethodGet, "/me", nil), f.account.Summary())
	rec := httptest.NewRecorder()
	f.handler.Me(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	var summary Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.Equal(t, f.account.ID, summary.ID)
	assert.Equal(t, f.account.Email, summary.Email)
	assert.Equal(t, f.account.Role, summary.Role)
}

func TestHandlerMeWithoutPrincipal(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Me(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerChangePassword(t *testing.T) {
	f := newHandlerFixture(t)

	r := withPrincipal(postJSON("/password", `{"currentPassword":"Passw0rd!","newPassword":"N3w-secret!"}`), f.account.Summary())
	rec := httptest.NewRecorder()
	f.handler.ChangePassword(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, VerifyPassword("N3w-secret!", f.account.CredentialHash))
}

func TestHandlerChangePasswordBadFormat(t *testing.T) {
	f := newHandlerFixture(t)

	r := withPrincipal(postJSON("/password", `{"currentPassword":"Passw0rd!","newPassword":"weak"}`), f.account.Summary())
	rec := httptest.NewRecorder()
	f.handler.ChangePassword(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidPasswordFormat, decodeErrorBody(t, rec)["code"])
}

func TestHandlerChangePasswordWrongCurrent(t *testing.T) {
	f := newHandlerFixture(t)

	r := withPrincipal(postJSON("/password", `{"currentPassword":"Wr0ng-pass!","newPassword":"N3w-secret!"}`), f.account.Summary())
	rec := httptest.NewRecorder()
	f.handler.ChangePassword(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeInvalidCredentials, decodeErrorBody(t, rec)["code"])
}
