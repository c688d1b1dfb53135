package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind distinguishes the two signed artifacts the service issues.
// Kind is always checked explicitly against the claim, never inferred
// from expiry or TTL.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	defaultIssuer   = "clinic-core"
	defaultAudience = "clinic-core/api"
)

// Claims is the self-contained payload of both token kinds. Refresh tokens
// additionally carry a random nonce so two issuances for the same subject
// are never byte-identical.
type Claims struct {
	Email string    `json:"email"`
	Role  Role      `json:"role"`
	Kind  TokenKind `json:"kind"`
	Nonce string    `json:"nonce,omitempty"`
	jwt.RegisteredClaims
}

// TokenConfig is injected at construction. Secrets are distinct per kind:
// the access secret must never validate a refresh token and vice versa.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
}

// TokenService issues, verifies, and decodes the signed access and refresh
// tokens. It depends on nothing but its configured secrets and the clock.
type TokenService struct {
	config TokenConfig
	now    func() time.Time
}

func NewTokenService(config TokenConfig) (*TokenService, error) {
	if len(config.AccessSecret) == 0 || len(config.RefreshSecret) == 0 {
		return nil, errors.New("both access and refresh signing secrets are required")
	}
	if string(config.AccessSecret) == string(config.RefreshSecret) {
		return nil, errors.New("access and refresh signing secrets must differ")
	}
	if config.AccessTTL <= 0 {
		config.AccessTTL = defaultAccessTTL
	}
	if config.RefreshTTL <= 0 {
		config.RefreshTTL = defaultRefreshTTL
	}
	if config.Issuer == "" {
		config.Issuer = defaultIssuer
	}
	if config.Audience == "" {
		config.Audience = defaultAudience
	}

	return &TokenService{config: config, now: time.Now}, nil
}

// AccessTTL exposes the configured access token lifetime so responses can
// report expiresIn.
func (s *TokenService) AccessTTL() time.Duration {
	return s.config.AccessTTL
}

// IssuePair builds a fresh access/refresh pair for the account, each signed
// with its kind's secret.
func (s *TokenService) IssuePair(account Account) (TokenPair, error) {
	access, err := s.issue(account, KindAccess)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := s.issue(account, KindRefresh)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.config.AccessTTL.Seconds()),
	}, nil
}

func (s *TokenService) issue(account Account, kind TokenKind) (string, error) {
	now := s.now()
	ttl := s.config.AccessTTL
	if kind == KindRefresh {
		ttl = s.config.RefreshTTL
	}

	claims := Claims{
		Email: account.Email,
		Role:  account.Role,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			Issuer:    s.config.Issuer,
			Audience:  jwt.ClaimStrings{s.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if kind == KindRefresh {
		claims.Nonce = uuid.NewString()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretFor(kind))
}

// Verify checks the token against the expected kind's secret and returns
// its claims. Signature and expiry are checked before kind, so a forged
// token cannot probe kind-mismatch behavior: only a token that is valid
// under the other kind's secret is reported as ErrWrongTokenKind.
func (s *TokenService) Verify(tokenString string, expected TokenKind) (*Claims, error) {
	claims, err := s.parse(tokenString, s.secretFor(expected))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, s.classifySignatureFailure(tokenString, expected)
		default:
			return nil, ErrTokenMalformed
		}
	}

	if claims.Kind != expected {
		return nil, ErrWrongTokenKind
	}

	return claims, nil
}

// classifySignatureFailure re-validates against the other kind's secret.
// A token that passes there (signature and expiry both good) is a genuine
// token of the wrong kind; anything else is malformed.
func (s *TokenService) classifySignatureFailure(tokenString string, expected TokenKind) error {
	other := KindAccess
	if expected == KindAccess {
		other = KindRefresh
	}

	_, err := s.parse(tokenString, s.secretFor(other))
	switch {
	case err == nil:
		return ErrWrongTokenKind
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}

func (s *TokenService) parse(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithAudience(s.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}

func (s *TokenService) secretFor(kind TokenKind) []byte {
	if kind == KindRefresh {
		return s.config.RefreshSecret
	}
	return s.config.AccessSecret
}

// ExtractBearer pulls the token out of a standard "Authorization: Bearer"
// header. Absence or a malformed scheme yields the empty string, not an
// error; callers decide whether that is fatal.
func ExtractBearer(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
