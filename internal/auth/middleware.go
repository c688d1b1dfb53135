package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
)

type contextKey int

const principalKey contextKey = iota

// Principal is the sanitized identity the guard attaches to the request
// context. Credential and token fields are excluded at the store read.
type Principal = Summary

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalKey).(Principal)
	return principal, ok
}

// Guard gates protected routes: it extracts the bearer token, verifies it
// as an access token, loads the sanitized account, and exposes role checks
// to downstream handlers.
type Guard struct {
	tokens *TokenService
	store  Store
}

func NewGuard(tokens *TokenService, store Store) *Guard {
	return &Guard{tokens: tokens, store: store}
}

// RequireAuth rejects the request unless a valid access token identifies an
// active account. Missing, expired, and malformed tokens are distinct
// outcomes.
func (g *Guard) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, code, message := g.authenticate(r)
		if code != "" {
			writeError(w, http.StatusUnauthorized, code, message)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, principal)))
	})
}

// OptionalAuth attaches a principal when a valid one is presented and
// passes the request through unauthenticated otherwise. Downstream logic
// decides what "no identity" means.
func (g *Guard) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, code, _ := g.authenticate(r)
		if code == "" {
			r = r.WithContext(context.WithValue(r.Context(), principalKey, principal))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole composes after RequireAuth and rejects authenticated callers
// whose role is not in the allowed set.
func (g *Guard) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeNotAuthenticated, "not authenticated")
				return
			}

			for _, role := range roles {
				if principal.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			permErr := PermissionError{Required: roles, Actual: principal.Role}
			writeError(w, http.StatusForbidden, CodeInsufficientPermissions, permErr.Error())
		}))
	}
}

// authenticate returns either a principal or a wire code + message.
func (g *Guard) authenticate(r *http.Request) (Principal, string, string) {
	token := ExtractBearer(r)
	if token == "" {
		return Principal{}, CodeNotAuthenticated, "missing bearer token"
	}

	claims, err := g.tokens.Verify(token, KindAccess)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenExpired):
			return Principal{}, CodeTokenExpired, "token has expired"
		case errors.Is(err, ErrWrongTokenKind):
			return Principal{}, CodeWrongTokenKind, "wrong token kind"
		default:
			return Principal{}, CodeTokenMalformed, "token is malformed"
		}
	}

	account, err := g.store.FindSummaryByID(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Principal{}, CodeNotAuthenticated, "account no longer exists"
		}
		sentry.CaptureException(err)
		return Principal{}, CodeNotAuthenticated, "authentication failed"
	}

	if !account.Active {
		return Principal{}, CodeAccountDeactivated, "account is deactivated"
	}

	return account.Summary(), "", ""
}
