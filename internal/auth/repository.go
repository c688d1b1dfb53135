package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository implements Store over the accounts table. All lockout and
// rotation mutations run as atomic store-level updates (row locks or
// conditional sets), never read-modify-write in the caller.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const accountColumns = `
	id, email, full_name,
	COALESCE(credential_hash, ''), role, active,
	failed_attempts, locked_until,
	COALESCE(current_refresh_token, ''), last_authenticated_at,
	created_at, updated_at
`

// sanitized reads leave the credential hash and refresh token behind so
// they never travel into a request context.
const accountSummaryColumns = `
	id, email, full_name,
	'', role, active,
	failed_attempts, locked_until,
	'', last_authenticated_at,
	created_at, updated_at
`

func (r *Repository) FindByEmail(ctx context.Context, email string) (Account, error) {
	return r.scanAccount(r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1
	`, email))
}

func (r *Repository) FindByID(ctx context.Context, id string) (Account, error) {
	return r.scanAccount(r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id))
}

func (r *Repository) FindSummaryByID(ctx context.Context, id string) (Account, error) {
	return r.scanAccount(r.db.QueryRowContext(ctx, `
		SELECT `+accountSummaryColumns+`
		FROM accounts
		WHERE id = $1
	`, id))
}

func (r *Repository) scanAccount(row *sql.Row) (Account, error) {
	var account Account
	var lockedUntil, lastAuthenticatedAt sql.NullTime

	err := row.Scan(
		&account.ID, &account.Email, &account.FullName,
		&account.CredentialHash, &account.Role, &account.Active,
		&account.FailedAttempts, &lockedUntil,
		&account.CurrentRefreshToken, &lastAuthenticatedAt,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("query account: %w", err)
	}

	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		account.LockedUntil = &value
	}
	if lastAuthenticatedAt.Valid {
		value := lastAuthenticatedAt.Time.UTC()
		account.LastAuthenticatedAt = &value
	}

	return account, nil
}

// RegisterFailure applies one failed login through the lockout policy under
// a row lock, so concurrent failures serialize and never under-count.
func (r *Repository) RegisterFailure(ctx context.Context, id string, policy LockoutPolicy, now time.Time) (int, *time.Time, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin lockout tx: %w", err)
	}
	defer tx.Rollback()

	var failed int
	var lockedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT failed_attempts, locked_until
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&failed, &lockedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, ErrAccountNotFound
		}
		return 0, nil, fmt.Errorf("lock account row: %w", err)
	}

	var lockedUntil *time.Time
	if lockedAt.Valid {
		value := lockedAt.Time.UTC()
		lockedUntil = &value
	}

	nextFailed, nextLock := policy.OnFailure(failed, lockedUntil, now.UTC())

	var nextLockValue any
	if nextLock != nil {
		nextLockValue = nextLock.UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET failed_attempts = $2, locked_until = $3, updated_at = $4
		WHERE id = $1
	`, id, nextFailed, nextLockValue, now.UTC()); err != nil {
		return 0, nil, fmt.Errorf("update lockout state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit lockout tx: %w", err)
	}

	return nextFailed, nextLock, nil
}

func (r *Repository) RecordLogin(ctx context.Context, id, refreshToken string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET failed_attempts = 0,
		    locked_until = NULL,
		    current_refresh_token = $2,
		    last_authenticated_at = $3,
		    updated_at = $3
		WHERE id = $1
	`, id, refreshToken, now.UTC())
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return requireRow(res, "record login")
}

// RotateRefreshToken is a conditional set: the update only lands while
// oldToken is still the stored one, so two concurrent rotations with the
// same token cannot both succeed.
func (r *Repository) RotateRefreshToken(ctx context.Context, id, oldToken, newToken string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET current_refresh_token = $3, updated_at = $4
		WHERE id = $1 AND current_refresh_token = $2
	`, id, oldToken, newToken, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotate refresh token rows affected: %w", err)
	}
	if affected == 0 {
		return ErrInvalidRefreshToken
	}

	return nil
}

func (r *Repository) ClearRefreshToken(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET current_refresh_token = NULL, updated_at = $2
		WHERE id = $1
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

func (r *Repository) UpdateCredential(ctx context.Context, id, credentialHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET credential_hash = $2,
		    current_refresh_token = NULL,
		    updated_at = $3
		WHERE id = $1
	`, id, credentialHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	return requireRow(res, "update credential")
}

// ClearExpiredLocks drops lock timestamps that have lapsed, in batches.
// Purely cosmetic for the state machine (an expired lock already behaves as
// open) but keeps the rows tidy for operators.
func (r *Repository) ClearExpiredLocks(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH expired AS (
			SELECT id
			FROM accounts
			WHERE locked_until IS NOT NULL AND locked_until < $1
			ORDER BY locked_until ASC
			LIMIT $2
		)
		UPDATE accounts a
		SET failed_attempts = 0, locked_until = NULL, updated_at = $1
		FROM expired
		WHERE a.id = expired.id
	`, now.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("clear expired locks: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired locks rows affected: %w", err)
	}

	return affected, nil
}

// ListUnprovisioned returns active accounts that still have no credential
// hash, for the legacy provisioning batch.
func (r *Repository) ListUnprovisioned(ctx context.Context, limit int) ([]Account, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+accountSummaryColumns+`
		FROM accounts
		WHERE credential_hash IS NULL AND active = TRUE
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprovisioned accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		account, err := r.scanAccountRows(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unprovisioned accounts: %w", err)
	}

	return accounts, nil
}

func (r *Repository) scanAccountRows(rows *sql.Rows) (Account, error) {
	var account Account
	var lockedUntil, lastAuthenticatedAt sql.NullTime

	err := rows.Scan(
		&account.ID, &account.Email, &account.FullName,
		&account.CredentialHash, &account.Role, &account.Active,
		&account.FailedAttempts, &lockedUntil,
		&account.CurrentRefreshToken, &lastAuthenticatedAt,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return Account{}, fmt.Errorf("scan account: %w", err)
	}

	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		account.LockedUntil = &value
	}
	if lastAuthenticatedAt.Valid {
		value := lastAuthenticatedAt.Time.UTC()
		account.LastAuthenticatedAt = &value
	}

	return account, nil
}

// ProvisionCredential assigns a hash only to accounts that still have none,
// so a concurrent first login can never be overwritten.
func (r *Repository) ProvisionCredential(ctx context.Context, id, credentialHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET credential_hash = $2, updated_at = $3
		WHERE id = $1 AND credential_hash IS NULL
	`, id, credentialHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("provision credential: %w", err)
	}
	return requireRow(res, "provision credential")
}

func requireRow(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}
	return nil
}
