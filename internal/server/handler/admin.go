package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/dehublabs/predictiond/internal/blob/s3"
)

// AdminService defines what the admin handler needs from the service layer.
type AdminService interface {
	Pause(ctx context.Context, caller common.Address) error
	Resume(ctx context.Context, caller common.Address) error
	SetIntervalBlocks(ctx context.Context, caller common.Address, blocks uint64) error
	SetBufferBlocks(ctx context.Context, caller common.Address, blocks uint64) error
	SetMinBetAmount(ctx context.Context, caller common.Address, amount *big.Int) error
	SetTreasuryFeeBps(ctx context.Context, caller common.Address, bps uint64) error
	SetOracleUpdateAllowance(ctx context.Context, caller common.Address, d time.Duration) error
	SetOperator(ctx context.Context, caller, operator common.Address) error
	SetAdmin(ctx context.Context, caller, admin common.Address) error
	MigrateToV2(ctx context.Context, caller common.Address) error
	Treasury(ctx context.Context) (*big.Int, error)
	ClaimTreasury(ctx context.Context, caller common.Address) (*big.Int, error)
}

// ArchiveLister lists the uploaded cold-storage archives.
type ArchiveLister interface {
	ListArchives(ctx context.Context) ([]s3blob.ObjectInfo, error)
}

// AdminHandler serves the privileged endpoints. Requests are authenticated by
// the HMAC middleware; engine calls run as the configured admin address.
type AdminHandler struct {
	svc      AdminService
	archives ArchiveLister
	caller   common.Address
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler acting as the given admin address.
// archives may be nil when cold storage is not configured.
func NewAdminHandler(svc AdminService, archives ArchiveLister, caller common.Address, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		svc:      svc,
		archives: archives,
		caller:   caller,
		logger:   logger,
	}
}

// Pause cancels all unsettled rounds and halts the lifecycle.
// POST /api/admin/pause
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Pause(r.Context(), h.caller); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// Resume lifts a pause.
// POST /api/admin/resume
func (h *AdminHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Resume(r.Context(), h.caller); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// updateConfigRequest carries the engine parameter changes. Only fields
// present in the body are applied.
type updateConfigRequest struct {
	IntervalBlocks        *uint64 `json:"interval_blocks"`
	BufferBlocks          *uint64 `json:"buffer_blocks"`
	MinBetAmount          *string `json:"min_bet_amount"`
	TreasuryFeeBps        *uint64 `json:"treasury_fee_bps"`
	OracleUpdateAllowance *string `json:"oracle_update_allowance"`
}

// UpdateConfig applies engine parameter changes.
// PUT /api/admin/config
func (h *AdminHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	if req.IntervalBlocks != nil {
		if err := h.svc.SetIntervalBlocks(ctx, h.caller, *req.IntervalBlocks); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	if req.BufferBlocks != nil {
		if err := h.svc.SetBufferBlocks(ctx, h.caller, *req.BufferBlocks); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	if req.MinBetAmount != nil {
		amount, err := parseAmount(*req.MinBetAmount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_bet_amount")
			return
		}
		if err := h.svc.SetMinBetAmount(ctx, h.caller, amount); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	if req.TreasuryFeeBps != nil {
		if err := h.svc.SetTreasuryFeeBps(ctx, h.caller, *req.TreasuryFeeBps); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	if req.OracleUpdateAllowance != nil {
		allowance, err := time.ParseDuration(*req.OracleUpdateAllowance)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid oracle_update_allowance")
			return
		}
		if err := h.svc.SetOracleUpdateAllowance(ctx, h.caller, allowance); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	h.logger.InfoContext(ctx, "handler: engine config updated")
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// updateRolesRequest hands over the operator and/or admin role.
type updateRolesRequest struct {
	Operator *string `json:"operator"`
	Admin    *string `json:"admin"`
}

// UpdateRoles hands the operator and/or admin role to new addresses. When
// both are present the operator changes first, while the caller still holds
// the admin role.
// PUT /api/admin/roles
func (h *AdminHandler) UpdateRoles(w http.ResponseWriter, r *http.Request) {
	var req updateRolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	if req.Operator != nil {
		operator, err := parseAddress(*req.Operator)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid operator address")
			return
		}
		if err := h.svc.SetOperator(ctx, h.caller, operator); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	if req.Admin != nil {
		admin, err := parseAddress(*req.Admin)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid admin address")
			return
		}
		if err := h.svc.SetAdmin(ctx, h.caller, admin); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	h.logger.InfoContext(ctx, "handler: roles updated")
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Migrate applies the one-shot schema revision 2 migration.
// POST /api/admin/migrate
func (h *AdminHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MigrateToV2(r.Context(), h.caller); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "migrated"})
}

// Treasury returns the accrued protocol fee amount.
// GET /api/admin/treasury
func (h *AdminHandler) Treasury(w http.ResponseWriter, r *http.Request) {
	amount, err := h.svc.Treasury(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}

// ClaimTreasury withdraws the accrued protocol fee to the admin.
// POST /api/admin/treasury/claim
func (h *AdminHandler) ClaimTreasury(w http.ResponseWriter, r *http.Request) {
	amount, err := h.svc.ClaimTreasury(r.Context(), h.caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}

// ListArchives returns the uploaded cold-storage archive objects.
// GET /api/admin/archives
func (h *AdminHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if h.archives == nil {
		writeError(w, http.StatusNotFound, "cold storage not configured")
		return
	}
	infos, err := h.archives.ListArchives(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archives failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": infos})
}
