package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/chain"
	"github.com/dehublabs/predictiond/internal/domain"
	"github.com/dehublabs/predictiond/internal/engine"
	"github.com/dehublabs/predictiond/internal/oracle"
	"github.com/dehublabs/predictiond/internal/service"
	"github.com/dehublabs/predictiond/internal/store/memory"
	"github.com/dehublabs/predictiond/internal/token"
)

var (
	admin    = common.HexToAddress("0xaaa1")
	operator = common.HexToAddress("0xbbb1")
	alice    = common.HexToAddress("0x0001")
	bob      = common.HexToAddress("0x0002")
)

func testConfig() engine.Config {
	return engine.Config{
		IntervalBlocks: 10,
		BufferBlocks:   3,
		MinBetAmount:   big.NewInt(100),
		TreasuryFeeBps: 300,
		BetPolicy:      domain.BetPolicyAccumulate,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingBus collects published events in memory.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.RoundEvent
}

func (b *recordingBus) Publish(ctx context.Context, ev domain.RoundEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context) (<-chan domain.RoundEvent, error) {
	ch := make(chan domain.RoundEvent)
	close(ch)
	return ch, nil
}

func (b *recordingBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	eng    *engine.Engine
	vault  *token.MemoryVault
	feed   *oracle.ManualFeed
	source *chain.ManualSource
	rounds *memory.RoundStore
	bets   *memory.BetStore
	state  *memory.StateStore
	bus    *recordingBus
	driver *service.Driver
	svc    *service.PredictionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	vault := token.NewMemoryVault()
	vault.Mint(alice, big.NewInt(1_000_000))
	vault.Mint(bob, big.NewInt(1_000_000))

	feed := oracle.NewManualFeed()
	gateway := oracle.NewGateway(feed, time.Minute)
	eng := engine.New(vault, gateway)

	rounds := memory.NewRoundStore()
	bets := memory.NewBetStore()
	state := memory.NewStateStore()
	source := chain.NewManualSource(100)
	bus := &recordingBus{}
	logger := testLogger()

	if err := service.Bootstrap(context.Background(), eng, testConfig(), admin, operator,
		rounds, bets, state, gateway, logger); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	recorder := service.NewRecorder(eng, rounds, state, nil, bus, nil, logger)
	driver := service.NewDriver(service.DriverConfig{}, eng, operator, source,
		recorder, memory.NewLockManager(), nil, nil, logger)
	svc := service.NewPredictionService(eng, source, rounds, bets, state, nil, logger)

	return &fixture{
		eng:    eng,
		vault:  vault,
		feed:   feed,
		source: source,
		rounds: rounds,
		bets:   bets,
		state:  state,
		bus:    bus,
		driver: driver,
		svc:    svc,
	}
}

func (f *fixture) tick(t *testing.T) {
	t.Helper()
	if err := f.driver.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
}

func TestDriverGenesisSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Height 100: genesis start opens round 1.
	f.tick(t)
	if got := f.eng.CurrentEpoch(); got != 1 {
		t.Fatalf("epoch after genesis start = %d, want 1", got)
	}
	r1, err := f.rounds.GetByEpoch(ctx, 1)
	if err != nil {
		t.Fatalf("round 1 not persisted: %v", err)
	}
	if r1.StartBlock != 100 || r1.LockBlock != 110 {
		t.Errorf("round 1 blocks = %d/%d, want 100/110", r1.StartBlock, r1.LockBlock)
	}

	// Still before the lock block: tick is a no-op.
	f.source.SetHeight(105)
	f.tick(t)
	if got := f.eng.CurrentEpoch(); got != 1 {
		t.Fatalf("epoch after early tick = %d, want 1", got)
	}

	// Height 110: genesis lock binds round 1 and opens round 2.
	f.feed.Advance(big.NewInt(50_000))
	f.source.SetHeight(110)
	f.tick(t)
	if got := f.eng.CurrentEpoch(); got != 2 {
		t.Fatalf("epoch after genesis lock = %d, want 2", got)
	}
	r1, _ = f.rounds.GetByEpoch(ctx, 1)
	if r1.State != domain.RoundLocked || r1.LockPrice.Cmp(big.NewInt(50_000)) != 0 {
		t.Errorf("round 1 = %s @ %s, want locked @ 50000", r1.State, r1.LockPrice)
	}

	st, err := f.state.Load(ctx)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if !st.GenesisStarted || !st.GenesisLocked || st.CurrentEpoch != 2 {
		t.Errorf("persisted state = %+v, want genesis complete at epoch 2", st)
	}

	wantEvents := []string{"round_started", "round_locked", "round_started"}
	got := f.bus.types()
	if len(got) != len(wantEvents) {
		t.Fatalf("published events = %v, want %v", got, wantEvents)
	}
	for i := range wantEvents {
		if got[i] != wantEvents[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], wantEvents[i])
		}
	}
}

func TestDriverSteadyStateSettlesBets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tick(t) // genesis start at 100
	f.feed.Advance(big.NewInt(50_000))
	f.source.SetHeight(110)
	f.tick(t) // genesis lock, round 2 opens

	// Bets on round 2 inside its betting window.
	if _, err := f.svc.PlaceBet(ctx, alice, 2, domain.PositionBull, big.NewInt(500)); err != nil {
		t.Fatalf("place bull bet: %v", err)
	}
	if _, err := f.svc.PlaceBet(ctx, bob, 2, domain.PositionBear, big.NewInt(300)); err != nil {
		t.Fatalf("place bear bet: %v", err)
	}

	// Height 120: round 2 locks at 52000.
	f.feed.Advance(big.NewInt(52_000))
	f.source.SetHeight(120)
	f.tick(t)

	// Height 130: round 2 closes at 51000 — bears win.
	f.feed.Advance(big.NewInt(51_000))
	f.source.SetHeight(130)
	f.tick(t)

	r2, err := f.rounds.GetByEpoch(ctx, 2)
	if err != nil {
		t.Fatalf("round 2: %v", err)
	}
	if r2.Outcome != domain.OutcomeBear || !r2.Settled() {
		t.Fatalf("round 2 = %s/%s, want settled bear", r2.State, r2.Outcome)
	}

	// Bob claims through the service; the claimed flag must be persisted.
	amount, err := f.svc.Claim(ctx, bob, 2)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	// Pool 800, 3% fee = 24, reward 776 to bob's 300 base.
	if amount.Cmp(big.NewInt(776)) != 0 {
		t.Errorf("claim amount = %s, want 776", amount)
	}
	stored, err := f.bets.Get(ctx, 2, bob)
	if err != nil || !stored.Claimed {
		t.Errorf("stored bet claimed = %v (%v), want true", stored.Claimed, err)
	}

	if _, err := f.svc.Claim(ctx, alice, 2); !errors.Is(err, domain.ErrNotClaimable) {
		t.Errorf("losing claim: got %v, want ErrNotClaimable", err)
	}
}

func TestDriverSkipsWhenLockHeld(t *testing.T) {
	f := newFixture(t)

	locks := memory.NewLockManager()
	unlock, err := locks.Acquire(context.Background(), "driver:tick", 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer unlock()

	recorder := service.NewRecorder(f.eng, f.rounds, f.state, nil, nil, nil, testLogger())
	blocked := service.NewDriver(service.DriverConfig{}, f.eng, operator, f.source,
		recorder, locks, nil, nil, testLogger())

	if err := blocked.Tick(context.Background()); err != nil {
		t.Fatalf("tick with held lock: %v", err)
	}
	if got := f.eng.CurrentEpoch(); got != 0 {
		t.Errorf("epoch advanced to %d under a held lock", got)
	}
}

func TestDriverPausedIsNoOp(t *testing.T) {
	f := newFixture(t)

	f.tick(t)
	if _, err := f.eng.Pause(admin); err != nil {
		t.Fatalf("pause: %v", err)
	}

	f.source.SetHeight(200)
	f.tick(t)
	if got := f.eng.CurrentEpoch(); got != 1 {
		t.Errorf("epoch = %d after paused ticks, want 1", got)
	}
}

type recordingArchiver struct {
	calls  int
	before uint64
}

func (a *recordingArchiver) ArchiveSettled(ctx context.Context, before uint64, limit int) (int64, error) {
	a.calls++
	a.before = before
	return 1, nil
}

func TestDriverArchivesPastKeepWindow(t *testing.T) {
	f := newFixture(t)
	arch := &recordingArchiver{}

	recorder := service.NewRecorder(f.eng, f.rounds, f.state, nil, nil, nil, testLogger())
	driver := service.NewDriver(service.DriverConfig{ArchiveKeepEpochs: 2}, f.eng, operator,
		f.source, recorder, memory.NewLockManager(), arch, nil, testLogger())

	tick := func() {
		t.Helper()
		if err := driver.Tick(context.Background()); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}

	tick() // genesis start, epoch 1
	price := int64(50_000)
	for i := 0; i < 4; i++ {
		f.feed.Advance(big.NewInt(price))
		price += 100
		f.source.Advance(10)
		tick()
	}

	// Epoch is 5 after four lock ticks; cutoff is epoch-keep = 3.
	if arch.calls == 0 {
		t.Fatal("archiver never invoked")
	}
	if arch.before != 3 {
		t.Errorf("archive cutoff = %d, want 3", arch.before)
	}
}

func TestBootstrapRestoresAcrossRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tick(t)
	f.feed.Advance(big.NewInt(50_000))
	f.source.SetHeight(110)
	f.tick(t)
	if _, err := f.svc.PlaceBet(ctx, alice, 2, domain.PositionBull, big.NewInt(500)); err != nil {
		t.Fatalf("place bet: %v", err)
	}

	// New process: fresh engine over the same stores and vault.
	feed2 := oracle.NewManualFeed()
	gateway2 := oracle.NewGateway(feed2, time.Minute)
	eng2 := engine.New(f.vault, gateway2)
	if err := service.Bootstrap(ctx, eng2, testConfig(), admin, operator,
		f.rounds, f.bets, f.state, gateway2, testLogger()); err != nil {
		t.Fatalf("bootstrap restore: %v", err)
	}

	if got := eng2.CurrentEpoch(); got != 2 {
		t.Fatalf("restored epoch = %d, want 2", got)
	}
	bet, ok := eng2.Bet(2, alice)
	if !ok || bet.Amount.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("restored bet = %+v (%v), want 500 bull", bet, ok)
	}

	// The restored engine keeps ticking: feed rounds 1..1 were consumed by
	// the first process, so the restored floor forces fresh feed rounds.
	feed2.Advance(big.NewInt(49_000)) // feed round 1, at or below floor
	feed2.Advance(big.NewInt(49_500)) // feed round 2, advances past floor
	recorder2 := service.NewRecorder(eng2, f.rounds, f.state, nil, nil, nil, testLogger())
	driver2 := service.NewDriver(service.DriverConfig{}, eng2, operator, f.source,
		recorder2, memory.NewLockManager(), nil, nil, testLogger())

	f.source.SetHeight(120)
	if err := driver2.Tick(ctx); err != nil {
		t.Fatalf("tick after restore: %v", err)
	}
	r2, err := f.rounds.GetByEpoch(ctx, 2)
	if err != nil {
		t.Fatalf("round 2: %v", err)
	}
	if r2.State != domain.RoundLocked {
		t.Errorf("round 2 state = %s after restored tick, want locked", r2.State)
	}
}
