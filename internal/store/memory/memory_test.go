package memory_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/domain"
	"github.com/dehublabs/predictiond/internal/store/memory"
)

func TestRoundStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := memory.NewRoundStore()

	if _, err := s.GetByEpoch(ctx, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("empty get: got %v, want ErrNotFound", err)
	}

	for epoch := uint64(1); epoch <= 5; epoch++ {
		r := domain.NewRound(epoch, epoch*100, 10)
		if epoch <= 3 {
			r.State = domain.RoundExecuted
			r.Outcome = domain.OutcomeBull
		}
		if err := s.Upsert(ctx, r); err != nil {
			t.Fatalf("upsert %d: %v", epoch, err)
		}
	}

	got, err := s.GetByEpoch(ctx, 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Epoch != 3 || got.StartBlock != 300 {
		t.Errorf("round = %+v, want epoch 3 start 300", got)
	}

	list, err := s.List(ctx, domain.ListOpts{Limit: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Epoch != 5 || list[2].Epoch != 3 {
		t.Errorf("list = %v rounds starting at %d, want newest-first 5..3", len(list), list[0].Epoch)
	}

	settled, err := s.ListSettledBefore(ctx, 3, 10)
	if err != nil {
		t.Fatalf("list settled: %v", err)
	}
	if len(settled) != 2 || settled[0].Epoch != 1 || settled[1].Epoch != 2 {
		t.Errorf("settled = %+v, want epochs 1,2 oldest-first", settled)
	}

	latest, err := s.LatestEpoch(ctx)
	if err != nil || latest != 5 {
		t.Errorf("latest epoch = %d (%v), want 5", latest, err)
	}
	n, err := s.Count(ctx)
	if err != nil || n != 5 {
		t.Errorf("count = %d (%v), want 5", n, err)
	}
}

func TestRoundStoreClonesOnReturn(t *testing.T) {
	ctx := context.Background()
	s := memory.NewRoundStore()

	r := domain.NewRound(1, 100, 10)
	r.TotalAmount = big.NewInt(500)
	if err := s.Upsert(ctx, r); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, _ := s.GetByEpoch(ctx, 1)
	got.TotalAmount.SetInt64(999)

	again, _ := s.GetByEpoch(ctx, 1)
	if again.TotalAmount.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("stored round mutated through returned copy: %s", again.TotalAmount)
	}
}

func TestBetStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := memory.NewBetStore()
	alice := common.HexToAddress("0x01")
	bob := common.HexToAddress("0x02")

	if _, err := s.Get(ctx, 1, alice); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("empty get: got %v, want ErrNotFound", err)
	}

	for _, b := range []domain.Bet{
		{Epoch: 1, Bettor: alice, Direction: domain.PositionBull, Amount: big.NewInt(100)},
		{Epoch: 1, Bettor: bob, Direction: domain.PositionBear, Amount: big.NewInt(200)},
		{Epoch: 2, Bettor: alice, Direction: domain.PositionBear, Amount: big.NewInt(300)},
	} {
		if err := s.Upsert(ctx, b); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	byEpoch, err := s.ListByEpoch(ctx, 1)
	if err != nil || len(byEpoch) != 2 {
		t.Fatalf("list by epoch = %d bets (%v), want 2", len(byEpoch), err)
	}

	byBettor, err := s.ListByBettor(ctx, alice, domain.ListOpts{})
	if err != nil || len(byBettor) != 2 {
		t.Fatalf("list by bettor = %d bets (%v), want 2", len(byBettor), err)
	}
	if byBettor[0].Epoch != 2 {
		t.Errorf("list by bettor starts at epoch %d, want newest-first 2", byBettor[0].Epoch)
	}

	// Claim flag round-trips through upsert.
	b, _ := s.Get(ctx, 1, alice)
	b.Claimed = true
	if err := s.Upsert(ctx, b); err != nil {
		t.Fatalf("upsert claimed: %v", err)
	}
	got, _ := s.Get(ctx, 1, alice)
	if !got.Claimed {
		t.Error("claimed flag lost on round-trip")
	}
}

func TestStateStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStateStore()

	if _, err := s.Load(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("empty load: got %v, want ErrNotFound", err)
	}

	st := domain.EngineState{
		SchemaVersion:     2,
		CurrentEpoch:      7,
		GenesisStarted:    true,
		GenesisLocked:     true,
		LastOracleRoundID: big.NewInt(42),
		TreasuryAmount:    big.NewInt(450),
		Admin:             common.HexToAddress("0xa1"),
		Operator:          common.HexToAddress("0xb1"),
	}
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.SchemaVersion != 2 || got.CurrentEpoch != 7 || !got.GenesisLocked {
		t.Errorf("state = %+v, want saved values", got)
	}
	if got.LastOracleRoundID.Cmp(big.NewInt(42)) != 0 {
		t.Errorf("last oracle round = %s, want 42", got.LastOracleRoundID)
	}
	if got.TreasuryAmount.Cmp(big.NewInt(450)) != 0 {
		t.Errorf("treasury = %s, want 450", got.TreasuryAmount)
	}
}

func TestLockManagerMutualExclusion(t *testing.T) {
	ctx := context.Background()
	m := memory.NewLockManager()

	unlock, err := m.Acquire(ctx, "driver", 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := m.Acquire(ctx, "driver", 0); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second acquire: got %v, want ErrLockHeld", err)
	}
	// A different key is independent.
	if unlock2, err := m.Acquire(ctx, "archiver", 0); err != nil {
		t.Fatalf("other key: %v", err)
	} else {
		unlock2()
	}

	unlock()
	if unlock3, err := m.Acquire(ctx, "driver", 0); err != nil {
		t.Fatalf("reacquire after unlock: %v", err)
	} else {
		unlock3()
	}
}
