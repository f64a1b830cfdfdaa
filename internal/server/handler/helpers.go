package handler

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/domain"
)

// writeJSON marshals v and writes it with the given status code. A marshal
// failure falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps engine sentinel errors onto HTTP status codes,
// defaulting to 500 for anything unrecognized.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNoBetFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrRoundNotBettable),
		errors.Is(err, domain.ErrBelowMinimum),
		errors.Is(err, domain.ErrDuplicateBet),
		errors.Is(err, domain.ErrNotClaimable),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrAlreadyUpgraded),
		errors.Is(err, domain.ErrAlreadyInitialized),
		errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrPaused),
		errors.Is(err, domain.ErrNotInitialized),
		errors.Is(err, domain.ErrGenesisRequired):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseListOpts extracts pagination from the query string. Defaults: limit=50
// (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// parseEpoch parses a path or query epoch value.
func parseEpoch(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

// parseAddress validates and parses a 0x-prefixed hex address.
func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.New("invalid address")
	}
	return common.HexToAddress(s), nil
}

// parseAmount parses a decimal token amount.
func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, errors.New("invalid amount")
	}
	return v, nil
}

// roundDTO is the wire shape of a round. big.Int fields are rendered as
// decimal strings so JavaScript clients do not lose precision.
type roundDTO struct {
	Epoch      uint64 `json:"epoch"`
	StartBlock uint64 `json:"start_block"`
	LockBlock  uint64 `json:"lock_block"`
	CloseBlock uint64 `json:"close_block"`

	LockPrice     *string `json:"lock_price"`
	ClosePrice    *string `json:"close_price"`
	LockOracleID  *string `json:"lock_oracle_id"`
	CloseOracleID *string `json:"close_oracle_id"`

	TotalAmount string `json:"total_amount"`
	BullAmount  string `json:"bull_amount"`
	BearAmount  string `json:"bear_amount"`

	RewardBaseCalAmount *string `json:"reward_base_cal_amount"`
	RewardAmount        *string `json:"reward_amount"`

	Outcome string `json:"outcome"`
	State   string `json:"state"`
}

func toRoundDTO(r domain.Round) roundDTO {
	return roundDTO{
		Epoch:               r.Epoch,
		StartBlock:          r.StartBlock,
		LockBlock:           r.LockBlock,
		CloseBlock:          r.CloseBlock,
		LockPrice:           bigString(r.LockPrice),
		ClosePrice:          bigString(r.ClosePrice),
		LockOracleID:        bigString(r.LockOracleID),
		CloseOracleID:       bigString(r.CloseOracleID),
		TotalAmount:         zeroString(r.TotalAmount),
		BullAmount:          zeroString(r.BullAmount),
		BearAmount:          zeroString(r.BearAmount),
		RewardBaseCalAmount: bigString(r.RewardBaseCalAmount),
		RewardAmount:        bigString(r.RewardAmount),
		Outcome:             string(r.Outcome),
		State:               string(r.State),
	}
}

// betDTO is the wire shape of a bet.
type betDTO struct {
	Epoch     uint64 `json:"epoch"`
	Bettor    string `json:"bettor"`
	Direction string `json:"direction"`
	Amount    string `json:"amount"`
	Claimed   bool   `json:"claimed"`
}

func toBetDTO(b domain.Bet) betDTO {
	return betDTO{
		Epoch:     b.Epoch,
		Bettor:    b.Bettor.Hex(),
		Direction: string(b.Direction),
		Amount:    zeroString(b.Amount),
		Claimed:   b.Claimed,
	}
}

func bigString(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func zeroString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
