package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store is the boundary with the account document store. Implementations
// must make the failure and rotation mutations atomic at the store level:
// two concurrent failed logins may never under-count, and two concurrent
// refreshes with the same token may never both succeed.
type Store interface {
	// FindByEmail returns the full account row, ErrAccountNotFound if absent.
	FindByEmail(ctx context.Context, email string) (Account, error)
	// FindByID returns the full account row, ErrAccountNotFound if absent.
	FindByID(ctx context.Context, id string) (Account, error)
	// FindSummaryByID returns the account with credential and refresh-token
	// fields excluded, for populating request contexts.
	FindSummaryByID(ctx context.Context, id string) (Account, error)

	// RegisterFailure applies one failed attempt through the lockout policy
	// atomically and returns the resulting counter and lock.
	RegisterFailure(ctx context.Context, id string, policy LockoutPolicy, now time.Time) (int, *time.Time, error)
	// RecordLogin clears the lockout fields, stores the new refresh token,
	// and stamps lastAuthenticatedAt.
	RecordLogin(ctx context.Context, id, refreshToken string, now time.Time) error
	// RotateRefreshToken replaces oldToken with newToken only if oldToken is
	// still the account's current one; ErrInvalidRefreshToken otherwise.
	RotateRefreshToken(ctx context.Context, id, oldToken, newToken string) error
	// ClearRefreshToken removes the stored refresh token (logout).
	ClearRefreshToken(ctx context.Context, id string) error
	// UpdateCredential stores a new credential hash and clears the stored
	// refresh token, ending the active session.
	UpdateCredential(ctx context.Context, id, credentialHash string) error
}

// Service orchestrates hashing, lockout, and token issuance into the login,
// refresh, logout, and password-change flows.
type Service struct {
	store   Store
	tokens  *TokenService
	lockout LockoutPolicy
	now     func() time.Time
}

func NewService(store Store, tokens *TokenService, lockout LockoutPolicy) *Service {
	if lockout.MaxAttempts <= 0 || lockout.LockDuration <= 0 {
		lockout = DefaultLockoutPolicy()
	}
	return &Service{
		store:   store,
		tokens:  tokens,
		lockout: lockout,
		now:     time.Now,
	}
}

// Login answers "is this login valid, and if so, what tokens does the
// caller receive". Steps 1-3 and the no-password check are pure reads; only
// the lockout transition and the success bookkeeping mutate the store.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return LoginResult{}, ErrMissingCredentials
	}

	account, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Same category as a wrong password; no counter exists for
			// unknown identifiers, so nothing mutates.
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("load account: %w", err)
	}

	if !account.Active {
		return LoginResult{}, ErrAccountDeactivated
	}

	now := s.now().UTC()
	if s.lockout.State(account.LockedUntil, now) == LockoutLocked {
		return LoginResult{}, LockedError{Until: *account.LockedUntil}
	}

	if account.CredentialHash == "" {
		return LoginResult{}, ErrNoPasswordSet
	}

	if !VerifyPassword(password, account.CredentialHash) {
		// The counter mutation must commit even though the request fails.
		_, lockedUntil, regErr := s.store.RegisterFailure(ctx, account.ID, s.lockout, now)
		if regErr != nil {
			return LoginResult{}, fmt.Errorf("register failed attempt: %w", regErr)
		}
		if lockedUntil != nil && now.Before(*lockedUntil) {
			return LoginResult{}, LockedError{Until: *lockedUntil}
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(account)
	if err != nil {
		return LoginResult{}, err
	}

	if err := s.store.RecordLogin(ctx, account.ID, pair.RefreshToken, now); err != nil {
		return LoginResult{}, fmt.Errorf("record login: %w", err)
	}

	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.LastAuthenticatedAt = &now

	return LoginResult{User: account.Summary(), TokenPair: pair}, nil
}

// Refresh exchanges a valid refresh token for a replacement pair. The
// presented token must match the single stored one by exact value, and the
// stored one is replaced the moment the new pair is issued (rotation).
func (s *Service) Refresh(ctx context.Context, refreshToken string) (LoginResult, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return LoginResult{}, ErrInvalidRefreshToken
	}

	claims, err := s.tokens.Verify(refreshToken, KindRefresh)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			// Distinguishable so clients force a re-login instead of retrying.
			return LoginResult{}, ErrRefreshTokenExpired
		}
		return LoginResult{}, ErrInvalidRefreshToken
	}

	account, err := s.store.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return LoginResult{}, ErrInvalidRefreshToken
		}
		return LoginResult{}, fmt.Errorf("load account: %w", err)
	}

	// Exact-value comparison invalidates every refresh token issued before
	// the most recent login or refresh, even if still signed and unexpired.
	if account.CurrentRefreshToken == "" || account.CurrentRefreshToken != refreshToken {
		return LoginResult{}, ErrInvalidRefreshToken
	}

	if !account.Active {
		return LoginResult{}, ErrAccountDeactivated
	}

	pair, err := s.tokens.IssuePair(account)
	if err != nil {
		return LoginResult{}, err
	}

	if err := s.store.RotateRefreshToken(ctx, account.ID, refreshToken, pair.RefreshToken); err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			return LoginResult{}, ErrInvalidRefreshToken
		}
		return LoginResult{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	return LoginResult{User: account.Summary(), TokenPair: pair}, nil
}

// Logout clears the stored refresh token so no outstanding refresh token
// can be exchanged again. The access token simply expires.
func (s *Service) Logout(ctx context.Context, accountID string) error {
	if err := s.store.ClearRefreshToken(ctx, accountID); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// ChangePassword verifies the current password, validates and hashes the
// new one, and ends the active session by clearing the stored refresh
// token.
func (s *Service) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return ErrMissingCredentials
	}

	account, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("load account: %w", err)
	}

	if !account.Active {
		return ErrAccountDeactivated
	}
	if account.CredentialHash == "" {
		return ErrNoPasswordSet
	}
	if !VerifyPassword(currentPassword, account.CredentialHash) {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.store.UpdateCredential(ctx, account.ID, hash); err != nil {
		return fmt.Errorf("update credential: %w", err)
	}

	return nil
}
