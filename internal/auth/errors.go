package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stable machine-readable codes carried on error responses. Clients branch
// on these, never on the human-readable message.
const (
	CodeMissingCredentials      = "MISSING_CREDENTIALS"
	CodeInvalidCredentials      = "INVALID_CREDENTIALS"
	CodeAccountDeactivated      = "ACCOUNT_DEACTIVATED"
	CodeAccountLocked           = "ACCOUNT_LOCKED"
	CodeNoPasswordSet           = "NO_PASSWORD_SET"
	CodeInvalidPasswordFormat   = "INVALID_PASSWORD_FORMAT"
	CodeTokenExpired            = "TOKEN_EXPIRED"
	CodeTokenMalformed          = "TOKEN_MALFORMED"
	CodeWrongTokenKind          = "WRONG_TOKEN_KIND"
	CodeInvalidRefreshToken     = "INVALID_REFRESH_TOKEN"
	CodeRefreshTokenExpired     = "REFRESH_TOKEN_EXPIRED"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeNotAuthenticated        = "NOT_AUTHENTICATED"
)

var (
	ErrMissingCredentials = errors.New("email and password are required")

	// ErrInvalidCredentials covers both unknown identifiers and wrong
	// passwords so the login boundary never reveals which one it was.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrAccountDeactivated = errors.New("account is deactivated")
	ErrNoPasswordSet      = errors.New("account has no password set")

	ErrTokenExpired        = errors.New("token has expired")
	ErrTokenMalformed      = errors.New("token is malformed")
	ErrWrongTokenKind      = errors.New("wrong token kind")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token has expired")
	ErrNotAuthenticated    = errors.New("not authenticated")

	// ErrAccountNotFound is internal only. The login flow maps it to
	// ErrInvalidCredentials before anything leaves the service.
	ErrAccountNotFound = errors.New("account not found")
)

// LockedError reports a refused attempt against a locked account, with the
// moment the lock expires. Lockout timing is not security-sensitive, so it
// is disclosed to the caller.
type LockedError struct {
	Until time.Time
}

func (e LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// FormatError reports a password that failed the policy, with the first
// rule it broke.
type FormatError struct {
	Reason string
}

func (e FormatError) Error() string {
	return "invalid password format: " + e.Reason
}

// PermissionError reports a role check failure, naming both sides so the
// response can say which roles were required and which the caller has.
type PermissionError struct {
	Required []Role
	Actual   Role
}

func (e PermissionError) Error() string {
	names := make([]string, 0, len(e.Required))
	for _, r := range e.Required {
		names = append(names, string(r))
	}
	return fmt.Sprintf("requires one of roles [%s], have %s", strings.Join(names, ", "), e.Actual)
}
