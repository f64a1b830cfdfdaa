package engine_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/domain"
)

// settleRoundOne opens round 1 with the given bets, locks it at lockPrice and
// closes it at closePrice through the usual two ticks.
func settleRoundOne(t *testing.T, f *fixture, lockPrice, closePrice int64, place func()) domain.Round {
	t.Helper()
	ctx := context.Background()
	if _, err := f.eng.GenesisStartRound(operator, 100); err != nil {
		t.Fatalf("genesis start: %v", err)
	}
	place()
	f.feed.Advance(big.NewInt(lockPrice))
	if _, err := f.eng.GenesisLockRound(ctx, operator, 110); err != nil {
		t.Fatalf("genesis lock: %v", err)
	}
	f.feed.Advance(big.NewInt(closePrice))
	if _, err := f.eng.ExecuteRound(ctx, operator, 120); err != nil {
		t.Fatalf("execute: %v", err)
	}
	r, ok := f.eng.Round(1)
	if !ok {
		t.Fatal("round 1 missing")
	}
	return r
}

func TestSettlementBearWins(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	r := settleRoundOne(t, f, 50_000, 49_000, func() {
		f.bet(t, alice, 1, domain.PositionBull, 5_000, 105)
		f.bet(t, bob, 1, domain.PositionBear, 10_000, 106)
	})

	if r.Outcome != domain.OutcomeBear {
		t.Fatalf("outcome = %s, want bear", r.Outcome)
	}
	// total 15000, fee 300bps = 450, reward pool 14550 against base 10000.
	if r.RewardAmount.Cmp(big.NewInt(14_550)) != 0 {
		t.Errorf("reward amount = %s, want 14550", r.RewardAmount)
	}
	if r.RewardBaseCalAmount.Cmp(big.NewInt(10_000)) != 0 {
		t.Errorf("reward base = %s, want 10000", r.RewardBaseCalAmount)
	}
	if f.eng.TreasuryAmount().Cmp(big.NewInt(450)) != 0 {
		t.Errorf("treasury = %s, want 450", f.eng.TreasuryAmount())
	}

	if !f.eng.Claimable(1, bob) {
		t.Error("winner not claimable")
	}
	if f.eng.Claimable(1, alice) {
		t.Error("loser claimable")
	}

	_, amount, err := f.eng.Claim(ctx, bob, 1)
	if err != nil {
		t.Fatalf("winner claim: %v", err)
	}
	if amount.Cmp(big.NewInt(14_550)) != 0 {
		t.Errorf("payout = %s, want 14550", amount)
	}
	if _, _, err := f.eng.Claim(ctx, alice, 1); !errors.Is(err, domain.ErrNotClaimable) {
		t.Errorf("loser claim: got %v, want ErrNotClaimable", err)
	}
}

func TestSettlementBullWins(t *testing.T) {
	f := newFixture(t, testConfig())

	r := settleRoundOne(t, f, 50_000, 50_001, func() {
		f.bet(t, alice, 1, domain.PositionBull, 1_000, 105)
		f.bet(t, bob, 1, domain.PositionBear, 3_000, 106)
	})

	if r.Outcome != domain.OutcomeBull {
		t.Fatalf("outcome = %s, want bull", r.Outcome)
	}
	// total 4000, fee 120, pool 3880 against base 1000.
	_, amount, err := f.eng.Claim(context.Background(), alice, 1)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if amount.Cmp(big.NewInt(3_880)) != 0 {
		t.Errorf("payout = %s, want 3880", amount)
	}
}

func TestSettlementTieCancels(t *testing.T) {
	f := newFixture(t, testConfig())

	r := settleRoundOne(t, f, 50_000, 50_000, func() {
		f.bet(t, alice, 1, domain.PositionBull, 1_000, 105)
		f.bet(t, bob, 1, domain.PositionBear, 1_000, 106)
	})

	if !r.Cancelled() {
		t.Fatalf("outcome = %s, want cancelled on unchanged price", r.Outcome)
	}
	if f.eng.TreasuryAmount().Sign() != 0 {
		t.Errorf("treasury = %s after cancellation, want 0", f.eng.TreasuryAmount())
	}

	// Both sides get their stake back, nothing more.
	for bettor, stake := range map[string]int64{"alice": 1_000, "bob": 1_000} {
		addr := alice
		if bettor == "bob" {
			addr = bob
		}
		_, amount, err := f.eng.Claim(context.Background(), addr, 1)
		if err != nil {
			t.Fatalf("%s refund: %v", bettor, err)
		}
		if amount.Cmp(big.NewInt(stake)) != 0 {
			t.Errorf("%s refund = %s, want %d", bettor, amount, stake)
		}
	}
}

func TestSettlementEmptyWinningSideCancels(t *testing.T) {
	f := newFixture(t, testConfig())

	// Everyone bet bull; price fell. Nobody holds the correct side.
	r := settleRoundOne(t, f, 50_000, 49_000, func() {
		f.bet(t, alice, 1, domain.PositionBull, 1_000, 105)
		f.bet(t, bob, 1, domain.PositionBull, 2_000, 106)
	})

	if !r.Cancelled() {
		t.Fatalf("outcome = %s, want cancelled with empty winning side", r.Outcome)
	}
	_, amount, err := f.eng.Claim(context.Background(), bob, 1)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if amount.Cmp(big.NewInt(2_000)) != 0 {
		t.Errorf("refund = %s, want original stake 2000", amount)
	}
}

func TestClaimExactlyOnce(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	settleRoundOne(t, f, 50_000, 49_000, func() {
		f.bet(t, alice, 1, domain.PositionBull, 1_000, 105)
		f.bet(t, bob, 1, domain.PositionBear, 1_000, 106)
	})

	if _, _, err := f.eng.Claim(ctx, bob, 1); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, _, err := f.eng.Claim(ctx, bob, 1); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Fatalf("second claim: got %v, want ErrAlreadyClaimed", err)
	}
	if f.eng.Claimable(1, bob) {
		t.Error("claimed bet still reported claimable")
	}
}

func TestClaimErrorOrdering(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	if _, err := f.eng.GenesisStartRound(operator, 100); err != nil {
		t.Fatalf("genesis start: %v", err)
	}
	f.bet(t, alice, 1, domain.PositionBull, 1_000, 105)

	// No bet at all beats every other failure.
	if _, _, err := f.eng.Claim(ctx, bob, 1); !errors.Is(err, domain.ErrNoBetFound) {
		t.Errorf("no bet: got %v, want ErrNoBetFound", err)
	}
	// A bet on a round that has not settled yet is not claimable.
	if _, _, err := f.eng.Claim(ctx, alice, 1); !errors.Is(err, domain.ErrNotClaimable) {
		t.Errorf("unsettled round: got %v, want ErrNotClaimable", err)
	}
	// Nonexistent epoch with no bet.
	if _, _, err := f.eng.Claim(ctx, alice, 9); !errors.Is(err, domain.ErrNoBetFound) {
		t.Errorf("unknown epoch: got %v, want ErrNoBetFound", err)
	}
}

func TestPayoutsNeverExceedRewardPool(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	// Uneven stakes force floor-division dust.
	r := settleRoundOne(t, f, 50_000, 51_000, func() {
		f.bet(t, alice, 1, domain.PositionBull, 333, 105)
		f.bet(t, bob, 1, domain.PositionBull, 334, 106)
		f.bet(t, carol, 1, domain.PositionBear, 1_000, 107)
	})

	if r.Outcome != domain.OutcomeBull {
		t.Fatalf("outcome = %s, want bull", r.Outcome)
	}

	paid := new(big.Int)
	for _, addr := range []common.Address{alice, bob} {
		_, amount, err := f.eng.Claim(ctx, addr, 1)
		if err != nil {
			t.Fatalf("claim %s: %v", addr.Hex(), err)
		}
		paid.Add(paid, amount)
	}
	if paid.Cmp(r.RewardAmount) > 0 {
		t.Errorf("paid %s exceeds reward pool %s", paid, r.RewardAmount)
	}

	// Custody still covers the treasury after every winner is paid: the
	// dust stays behind, never a shortfall.
	remaining := f.vault.CustodyBalance()
	if remaining.Cmp(f.eng.TreasuryAmount()) < 0 {
		t.Errorf("custody %s cannot cover treasury %s", remaining, f.eng.TreasuryAmount())
	}
}

func TestRefundsPreserveCustody(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	settleRoundOne(t, f, 50_000, 50_000, func() {
		f.bet(t, alice, 1, domain.PositionBull, 1_500, 105)
		f.bet(t, bob, 1, domain.PositionBear, 2_500, 106)
	})

	for _, addr := range []common.Address{alice, bob} {
		if _, _, err := f.eng.Claim(ctx, addr, 1); err != nil {
			t.Fatalf("refund %s: %v", addr.Hex(), err)
		}
	}
	if f.vault.CustodyBalance().Sign() != 0 {
		t.Errorf("custody = %s after all refunds, want 0", f.vault.CustodyBalance())
	}
	if got := f.vault.BalanceOf(alice); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("alice balance = %s, want fully restored 1000000", got)
	}
}

func TestClaimTreasury(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	settleRoundOne(t, f, 50_000, 49_000, func() {
		f.bet(t, alice, 1, domain.PositionBull, 5_000, 105)
		f.bet(t, bob, 1, domain.PositionBear, 10_000, 106)
	})

	if _, err := f.eng.ClaimTreasury(ctx, operator); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("treasury claim by operator: got %v, want ErrUnauthorized", err)
	}

	amount, err := f.eng.ClaimTreasury(ctx, admin)
	if err != nil {
		t.Fatalf("treasury claim: %v", err)
	}
	if amount.Cmp(big.NewInt(450)) != 0 {
		t.Errorf("treasury payout = %s, want 450", amount)
	}
	if f.eng.TreasuryAmount().Sign() != 0 {
		t.Errorf("treasury = %s after claim, want 0", f.eng.TreasuryAmount())
	}
	if got := f.vault.BalanceOf(admin); got.Cmp(big.NewInt(450)) != 0 {
		t.Errorf("admin balance = %s, want 450", got)
	}

	// Second claim is a no-op, not an error.
	amount, err = f.eng.ClaimTreasury(ctx, admin)
	if err != nil {
		t.Fatalf("empty treasury claim: %v", err)
	}
	if amount.Sign() != 0 {
		t.Errorf("empty treasury payout = %s, want 0", amount)
	}
}

func TestZeroFeeKeepsFullPool(t *testing.T) {
	cfg := testConfig()
	cfg.TreasuryFeeBps = 0
	f := newFixture(t, cfg)

	r := settleRoundOne(t, f, 50_000, 49_000, func() {
		f.bet(t, alice, 1, domain.PositionBull, 4_000, 105)
		f.bet(t, bob, 1, domain.PositionBear, 6_000, 106)
	})

	if r.RewardAmount.Cmp(big.NewInt(10_000)) != 0 {
		t.Errorf("reward amount = %s, want full pool 10000", r.RewardAmount)
	}
	if f.eng.TreasuryAmount().Sign() != 0 {
		t.Errorf("treasury = %s with zero fee, want 0", f.eng.TreasuryAmount())
	}
	_, amount, err := f.eng.Claim(context.Background(), bob, 1)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if amount.Cmp(big.NewInt(10_000)) != 0 {
		t.Errorf("payout = %s, want 10000", amount)
	}
}
