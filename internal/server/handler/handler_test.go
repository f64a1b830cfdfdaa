package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/domain"
	"github.com/dehublabs/predictiond/internal/server/handler"
	"github.com/dehublabs/predictiond/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubRoundService struct {
	rounds map[uint64]domain.Round
	status service.Status
}

func (s *stubRoundService) Status(ctx context.Context) (service.Status, error) {
	return s.status, nil
}

func (s *stubRoundService) CurrentRound(ctx context.Context) (domain.Round, error) {
	if s.status.CurrentEpoch == 0 {
		return domain.Round{}, domain.ErrNotFound
	}
	return s.rounds[s.status.CurrentEpoch], nil
}

func (s *stubRoundService) GetRound(ctx context.Context, epoch uint64) (domain.Round, error) {
	r, ok := s.rounds[epoch]
	if !ok {
		return domain.Round{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *stubRoundService) ListRounds(ctx context.Context, opts domain.ListOpts) ([]domain.Round, error) {
	var out []domain.Round
	for _, r := range s.rounds {
		out = append(out, r)
	}
	return out, nil
}

func (s *stubRoundService) RoundCount(ctx context.Context) (int64, error) {
	return int64(len(s.rounds)), nil
}

func (s *stubRoundService) GetBet(ctx context.Context, epoch uint64, bettor common.Address) (domain.Bet, error) {
	return domain.Bet{}, domain.ErrNotFound
}

func (s *stubRoundService) Claimable(epoch uint64, bettor common.Address) bool  { return false }
func (s *stubRoundService) Refundable(epoch uint64, bettor common.Address) bool { return false }

type stubBetService struct {
	placeErr error
	claimErr error
	amount   *big.Int
	lastBet  domain.Bet
}

func (s *stubBetService) PlaceBet(ctx context.Context, bettor common.Address, epoch uint64, direction domain.Position, amount *big.Int) (domain.Bet, error) {
	if s.placeErr != nil {
		return domain.Bet{}, s.placeErr
	}
	s.lastBet = domain.Bet{Epoch: epoch, Bettor: bettor, Direction: direction, Amount: amount}
	return s.lastBet, nil
}

func (s *stubBetService) Claim(ctx context.Context, caller common.Address, epoch uint64) (*big.Int, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	return s.amount, nil
}

func (s *stubBetService) ListBets(ctx context.Context, bettor common.Address, opts domain.ListOpts) ([]domain.Bet, error) {
	return nil, nil
}

func sampleRound(epoch uint64) domain.Round {
	r := domain.NewRound(epoch, 100, 10)
	r.LockPrice = big.NewInt(50_000)
	r.State = domain.RoundLocked
	return r
}

func TestGetRound(t *testing.T) {
	svc := &stubRoundService{rounds: map[uint64]domain.Round{3: sampleRound(3)}}
	h := handler.NewRoundHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/rounds/3", nil)
	req.SetPathValue("epoch", "3")
	rec := httptest.NewRecorder()
	h.GetRound(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["epoch"] != float64(3) {
		t.Errorf("epoch = %v, want 3", body["epoch"])
	}
	if body["lock_price"] != "50000" {
		t.Errorf("lock_price = %v, want string \"50000\"", body["lock_price"])
	}
}

func TestGetRoundNotFound(t *testing.T) {
	h := handler.NewRoundHandler(&stubRoundService{rounds: map[uint64]domain.Round{}}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/rounds/9", nil)
	req.SetPathValue("epoch", "9")
	rec := httptest.NewRecorder()
	h.GetRound(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetRoundBadEpoch(t *testing.T) {
	h := handler.NewRoundHandler(&stubRoundService{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/rounds/abc", nil)
	req.SetPathValue("epoch", "abc")
	rec := httptest.NewRecorder()
	h.GetRound(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCurrentRound(t *testing.T) {
	svc := &stubRoundService{
		rounds: map[uint64]domain.Round{2: sampleRound(2)},
		status: service.Status{CurrentEpoch: 2},
	}
	h := handler.NewRoundHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.CurrentRound(rec, httptest.NewRequest(http.MethodGet, "/api/rounds/current", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	// No round open yet.
	h = handler.NewRoundHandler(&stubRoundService{}, testLogger())
	rec = httptest.NewRecorder()
	h.CurrentRound(rec, httptest.NewRequest(http.MethodGet, "/api/rounds/current", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status before genesis = %d, want 404", rec.Code)
	}
}

func TestPlaceBetValidation(t *testing.T) {
	h := handler.NewBetHandler(&stubBetService{}, testLogger())

	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"bad address", `{"bettor":"nope","epoch":1,"direction":"bull","amount":"100"}`},
		{"bad direction", `{"bettor":"0x0000000000000000000000000000000000000001","epoch":1,"direction":"sideways","amount":"100"}`},
		{"bad amount", `{"bettor":"0x0000000000000000000000000000000000000001","epoch":1,"direction":"bull","amount":"-5"}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/bets", strings.NewReader(tc.body))
		rec := httptest.NewRecorder()
		h.PlaceBet(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, rec.Code)
		}
	}
}

func TestPlaceBetEngineRejection(t *testing.T) {
	h := handler.NewBetHandler(&stubBetService{placeErr: domain.ErrRoundNotBettable}, testLogger())

	body := `{"bettor":"0x0000000000000000000000000000000000000001","epoch":1,"direction":"bull","amount":"100"}`
	req := httptest.NewRequest(http.MethodPost, "/api/bets", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.PlaceBet(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestPlaceBetSuccess(t *testing.T) {
	svc := &stubBetService{}
	h := handler.NewBetHandler(svc, testLogger())

	body := `{"bettor":"0x0000000000000000000000000000000000000001","epoch":4,"direction":"bear","amount":"2500"}`
	req := httptest.NewRequest(http.MethodPost, "/api/bets", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.PlaceBet(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if svc.lastBet.Epoch != 4 || svc.lastBet.Direction != domain.PositionBear {
		t.Errorf("service got %+v, want epoch 4 bear", svc.lastBet)
	}
	if svc.lastBet.Amount.Cmp(big.NewInt(2500)) != 0 {
		t.Errorf("amount = %s, want 2500", svc.lastBet.Amount)
	}
}

func TestClaim(t *testing.T) {
	svc := &stubBetService{amount: big.NewInt(776)}
	h := handler.NewBetHandler(svc, testLogger())

	body := `{"bettor":"0x0000000000000000000000000000000000000002"}`
	req := httptest.NewRequest(http.MethodPost, "/api/rounds/2/claim", strings.NewReader(body))
	req.SetPathValue("epoch", "2")
	rec := httptest.NewRecorder()
	h.Claim(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["amount"] != "776" {
		t.Errorf("amount = %v, want \"776\"", resp["amount"])
	}
}

func TestClaimErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNoBetFound, http.StatusNotFound},
		{domain.ErrAlreadyClaimed, http.StatusConflict},
		{domain.ErrNotClaimable, http.StatusConflict},
	}
	for _, tc := range cases {
		h := handler.NewBetHandler(&stubBetService{claimErr: tc.err}, testLogger())
		body := `{"bettor":"0x0000000000000000000000000000000000000002"}`
		req := httptest.NewRequest(http.MethodPost, "/api/rounds/2/claim", strings.NewReader(body))
		req.SetPathValue("epoch", "2")
		rec := httptest.NewRecorder()
		h.Claim(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}
