package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/domain"
	"github.com/dehublabs/predictiond/internal/service"
)

// RoundService defines what the round handler needs from the service layer.
// Declared locally so the handler package does not depend on the concrete
// service implementation.
type RoundService interface {
	Status(ctx context.Context) (service.Status, error)
	CurrentRound(ctx context.Context) (domain.Round, error)
	GetRound(ctx context.Context, epoch uint64) (domain.Round, error)
	ListRounds(ctx context.Context, opts domain.ListOpts) ([]domain.Round, error)
	RoundCount(ctx context.Context) (int64, error)
	GetBet(ctx context.Context, epoch uint64, bettor common.Address) (domain.Bet, error)
	Claimable(epoch uint64, bettor common.Address) bool
	Refundable(epoch uint64, bettor common.Address) bool
}

// RoundHandler serves round query endpoints.
type RoundHandler struct {
	svc    RoundService
	logger *slog.Logger
}

// NewRoundHandler creates a RoundHandler.
func NewRoundHandler(svc RoundService, logger *slog.Logger) *RoundHandler {
	return &RoundHandler{svc: svc, logger: logger}
}

// Status returns the engine summary.
// GET /api/status
func (h *RoundHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: status failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Version returns the engine's storage schema revision.
// GET /api/version
func (h *RoundHandler) Version(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: version failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read version")
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"version": st.SchemaVersion})
}

// listRoundsResponse wraps the list endpoint output with metadata.
type listRoundsResponse struct {
	Rounds []roundDTO `json:"rounds"`
	Total  int64      `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// ListRounds returns rounds newest-first with pagination.
// GET /api/rounds?limit=50&offset=0
func (h *RoundHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	rounds, err := h.svc.ListRounds(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list rounds failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list rounds")
		return
	}
	total, err := h.svc.RoundCount(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count rounds failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count rounds")
		return
	}

	dtos := make([]roundDTO, len(rounds))
	for i, round := range rounds {
		dtos[i] = toRoundDTO(round)
	}
	writeJSON(w, http.StatusOK, listRoundsResponse{
		Rounds: dtos,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// CurrentRound returns the currently open round.
// GET /api/rounds/current
func (h *RoundHandler) CurrentRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.svc.CurrentRound(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no round open yet")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: current round failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get current round")
		return
	}
	writeJSON(w, http.StatusOK, toRoundDTO(round))
}

// GetRound returns one round by epoch.
// GET /api/rounds/{epoch}
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(r.PathValue("epoch"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid epoch")
		return
	}

	round, err := h.svc.GetRound(r.Context(), epoch)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "round not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get round failed",
			slog.Uint64("epoch", epoch),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get round")
		return
	}
	writeJSON(w, http.StatusOK, toRoundDTO(round))
}

// roundBetResponse is a bet plus its claim standing.
type roundBetResponse struct {
	Bet        betDTO `json:"bet"`
	Claimable  bool   `json:"claimable"`
	Refundable bool   `json:"refundable"`
}

// GetRoundBet returns one bettor's bet in a round with its claim standing.
// GET /api/rounds/{epoch}/bets/{address}
func (h *RoundHandler) GetRoundBet(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(r.PathValue("epoch"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid epoch")
		return
	}
	bettor, err := parseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	bet, err := h.svc.GetBet(r.Context(), epoch, bettor)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "bet not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get bet failed",
			slog.Uint64("epoch", epoch),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get bet")
		return
	}

	writeJSON(w, http.StatusOK, roundBetResponse{
		Bet:        toBetDTO(bet),
		Claimable:  h.svc.Claimable(epoch, bettor),
		Refundable: h.svc.Refundable(epoch, bettor),
	})
}

// GetClaimable reports a bettor's claim standing for a round without the bet
// body.
// GET /api/rounds/{epoch}/claimable/{address}
func (h *RoundHandler) GetClaimable(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(r.PathValue("epoch"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid epoch")
		return
	}
	bettor, err := parseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{
		"claimable":  h.svc.Claimable(epoch, bettor),
		"refundable": h.svc.Refundable(epoch, bettor),
	})
}
