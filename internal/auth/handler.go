package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Login handles POST /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeBody(w, r, &body) {
		return
	}

	result, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeLoginError(w http.ResponseWriter, err error) {
	var locked LockedError
	switch {
	case errors.Is(err, ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, CodeMissingCredentials, "email and password are required")
	case errors.Is(err, ErrInvalidCredentials):
		// Deliberately generic: wrong password and unknown account are
		// indistinguishable to the caller.
		writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "invalid credentials")
	case errors.Is(err, ErrAccountDeactivated):
		writeError(w, http.StatusUnauthorized, CodeAccountDeactivated, "account is deactivated")
	case errors.Is(err, ErrNoPasswordSet):
		writeError(w, http.StatusUnauthorized, CodeNoPasswordSet, "account has no password set")
	case errors.As(err, &locked):
		writeLocked(w, locked)
	default:
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "AUTHENTICATION_FAILED", "authentication failed")
	}
}

// Refresh handles POST /refresh. Expired and invalid are distinct codes so
// clients know whether to force a re-login.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeBody(w, r, &body) {
		return
	}

	result, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrRefreshTokenExpired):
			writeError(w, http.StatusUnauthorized, CodeRefreshTokenExpired, "refresh token has expired")
		case errors.Is(err, ErrInvalidRefreshToken):
			writeError(w, http.StatusUnauthorized, CodeInvalidRefreshToken, "invalid refresh token")
		case errors.Is(err, ErrAccountDeactivated):
			writeError(w, http.StatusUnauthorized, CodeAccountDeactivated, "account is deactivated")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "AUTHENTICATION_FAILED", "authentication failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Logout handles POST /logout. Requires a valid access token; the
// middleware put the principal on the context.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeNotAuthenticated, "not authenticated")
		return
	}

	if err := h.service.Logout(r.Context(), principal.ID); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "AUTHENTICATION_FAILED", "failed to logout")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Me handles GET /me, returning the non-sensitive summary the guard
// attached.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeNotAuthenticated, "not authenticated")
		return
	}

	writeJSON(w, http.StatusOK, principal)
}

// ChangePassword handles PUT /password for the authenticated account.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeNotAuthenticated, "not authenticated")
		return
	}

	var body changePasswordRequest
	if !decodeBody(w, r, &body) {
		return
	}

	err := h.service.ChangePassword(r.Context(), principal.ID, body.CurrentPassword, body.NewPassword)
	if err != nil {
		var format FormatError
		switch {
		case errors.Is(err, ErrMissingCredentials):
			writeError(w, http.StatusBadRequest, CodeMissingCredentials, "current and new password are required")
		case errors.As(err, &format):
			writeError(w, http.StatusBadRequest, CodeInvalidPasswordFormat, format.Error())
		case errors.Is(err, ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "invalid credentials")
		case errors.Is(err, ErrNoPasswordSet):
			writeError(w, http.StatusUnauthorized, CodeNoPasswordSet, "account has no password set")
		case errors.Is(err, ErrAccountDeactivated):
			writeError(w, http.StatusUnauthorized, CodeAccountDeactivated, "account is deactivated")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "AUTHENTICATION_FAILED", "failed to change password")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid json body")
		return false
	}

	return true
}

func writeLocked(w http.ResponseWriter, locked LockedError) {
	retryAfter := int(time.Until(locked.Until).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusLocked)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":        CodeAccountLocked,
		"error":       "account temporarily locked",
		"lockedUntil": locked.Until.UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "error": message})
}
