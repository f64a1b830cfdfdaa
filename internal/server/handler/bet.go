package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/domain"
)

// BetService defines what the bet handler needs from the service layer.
type BetService interface {
	PlaceBet(ctx context.Context, bettor common.Address, epoch uint64, direction domain.Position, amount *big.Int) (domain.Bet, error)
	Claim(ctx context.Context, caller common.Address, epoch uint64) (*big.Int, error)
	ListBets(ctx context.Context, bettor common.Address, opts domain.ListOpts) ([]domain.Bet, error)
}

// BetHandler serves bet placement, listing, and claims.
type BetHandler struct {
	svc    BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(svc BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{svc: svc, logger: logger}
}

// placeBetRequest is the bet placement body.
type placeBetRequest struct {
	Bettor    string `json:"bettor"`
	Epoch     uint64 `json:"epoch"`
	Direction string `json:"direction"`
	Amount    string `json:"amount"`
}

// PlaceBet stakes an amount on the open round.
// POST /api/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bettor, err := parseAddress(req.Bettor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bettor address")
		return
	}
	direction := domain.Position(req.Direction)
	if !direction.Valid() {
		writeError(w, http.StatusBadRequest, "direction must be bull or bear")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	bet, err := h.svc.PlaceBet(r.Context(), bettor, req.Epoch, direction, amount)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: place bet rejected",
			slog.Uint64("epoch", req.Epoch),
			slog.String("bettor", req.Bettor),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBetDTO(bet))
}

// ListBets returns a bettor's bets newest-first.
// GET /api/bets?bettor=0x...&limit=50&offset=0
func (h *BetHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	bettor, err := parseAddress(r.URL.Query().Get("bettor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid bettor address")
		return
	}

	bets, err := h.svc.ListBets(r.Context(), bettor, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list bets failed",
			slog.String("bettor", bettor.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}

	dtos := make([]betDTO, len(bets))
	for i, b := range bets {
		dtos[i] = toBetDTO(b)
	}
	writeJSON(w, http.StatusOK, map[string]any{"bets": dtos})
}

// claimRequest is the claim body.
type claimRequest struct {
	Bettor string `json:"bettor"`
}

// claimResponse reports the transferred amount.
type claimResponse struct {
	Epoch  uint64 `json:"epoch"`
	Bettor string `json:"bettor"`
	Amount string `json:"amount"`
}

// Claim pays out or refunds the caller's bet for an epoch, exactly once.
// POST /api/rounds/{epoch}/claim
func (h *BetHandler) Claim(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(r.PathValue("epoch"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid epoch")
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	bettor, err := parseAddress(req.Bettor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bettor address")
		return
	}

	amount, err := h.svc.Claim(r.Context(), bettor, epoch)
	if err != nil {
		if !errors.Is(err, domain.ErrNoBetFound) {
			h.logger.WarnContext(r.Context(), "handler: claim rejected",
				slog.Uint64("epoch", epoch),
				slog.String("bettor", req.Bettor),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{
		Epoch:  epoch,
		Bettor: bettor.Hex(),
		Amount: amount.String(),
	})
}

// createClaimRequest is the flat claim body with the epoch inline.
type createClaimRequest struct {
	Epoch  uint64 `json:"epoch"`
	Bettor string `json:"bettor"`
}

// CreateClaim is the flat-body variant of Claim.
// POST /api/claims
func (h *BetHandler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	var req createClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	bettor, err := parseAddress(req.Bettor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bettor address")
		return
	}

	amount, err := h.svc.Claim(r.Context(), bettor, req.Epoch)
	if err != nil {
		if !errors.Is(err, domain.ErrNoBetFound) {
			h.logger.WarnContext(r.Context(), "handler: claim rejected",
				slog.Uint64("epoch", req.Epoch),
				slog.String("bettor", req.Bettor),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{
		Epoch:  req.Epoch,
		Bettor: bettor.Hex(),
		Amount: amount.String(),
	})
}
