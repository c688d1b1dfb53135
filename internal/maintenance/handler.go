package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"clinic-core/internal/auth"
)

// Handler runs the cron-style auth maintenance passes: clearing lapsed
// lockout timestamps and provisioning legacy accounts that predate the
// credential fields. Guarded by a shared cron secret, not a user token.
type Handler struct {
	repo       *auth.Repository
	logger     *zap.SugaredLogger
	cronSecret string
	batchSize  int
}

func NewHandler(repo *auth.Repository, logger *zap.SugaredLogger, cronSecret string, batchSize int) *Handler {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Handler{
		repo:       repo,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
	}
}

type provisionedAccount struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
	// TemporaryPassword is returned to the authenticated operator for
	// out-of-band delivery. It is never stored or logged in plaintext.
	TemporaryPassword string `json:"temporaryPassword"`
}

type runResult struct {
	ClearedLocks int64                `json:"clearedLocks"`
	Provisioned  []provisionedAccount `json:"provisioned"`
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	result, err := h.run(r.Context())
	if err != nil {
		h.logger.Errorw("auth_maintenance_failed", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "maintenance failed"})
		return
	}

	h.logger.Infow("auth_maintenance_completed",
		"cleared_locks", result.ClearedLocks,
		"provisioned_accounts", len(result.Provisioned),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func (h *Handler) run(ctx context.Context) (runResult, error) {
	cleared, err := h.repo.ClearExpiredLocks(ctx, time.Now().UTC(), h.batchSize)
	if err != nil {
		return runResult{}, err
	}

	provisioned, err := h.provisionLegacyAccounts(ctx)
	if err != nil {
		return runResult{}, err
	}

	return runResult{ClearedLocks: cleared, Provisioned: provisioned}, nil
}

// provisionLegacyAccounts assigns a generated policy-compliant temporary
// password to every active account that has no credential hash yet. The
// store-side conditional update skips accounts that got a password in the
// meantime.
func (h *Handler) provisionLegacyAccounts(ctx context.Context) ([]provisionedAccount, error) {
	accounts, err := h.repo.ListUnprovisioned(ctx, h.batchSize)
	if err != nil {
		return nil, err
	}

	provisioned := make([]provisionedAccount, 0, len(accounts))
	for _, account := range accounts {
		password, err := auth.GenerateTemporaryPassword()
		if err != nil {
			return nil, fmt.Errorf("generate temporary password: %w", err)
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("hash temporary password: %w", err)
		}

		if err := h.repo.ProvisionCredential(ctx, account.ID, hash); err != nil {
			continue
		}

		provisioned = append(provisioned, provisionedAccount{
			AccountID:         account.ID,
			Email:             account.Email,
			TemporaryPassword: password,
		})
	}

	return provisioned, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
