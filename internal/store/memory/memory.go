// Package memory implements the domain store interfaces in process memory.
// It backs the standalone mode and makes the service layer testable without
// PostgreSQL.
package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/domain"
)

// RoundStore is an in-memory domain.RoundStore.
type RoundStore struct {
	mu     sync.RWMutex
	rounds map[uint64]domain.Round
}

// NewRoundStore creates an empty RoundStore.
func NewRoundStore() *RoundStore {
	return &RoundStore{rounds: make(map[uint64]domain.Round)}
}

func (s *RoundStore) Upsert(ctx context.Context, r domain.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[r.Epoch] = r.Clone()
	return nil
}

func (s *RoundStore) GetByEpoch(ctx context.Context, epoch uint64) (domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rounds[epoch]
	if !ok {
		return domain.Round{}, domain.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *RoundStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	epochs := make([]uint64, 0, len(s.rounds))
	for e := range s.rounds {
		epochs = append(epochs, e)
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] > epochs[j] })

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	var out []domain.Round
	for i, e := range epochs {
		if i < opts.Offset {
			continue
		}
		if len(out) >= limit {
			break
		}
		r := s.rounds[e]
		out = append(out, r.Clone())
	}
	return out, nil
}

func (s *RoundStore) ListSettledBefore(ctx context.Context, before uint64, limit int) ([]domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	epochs := make([]uint64, 0, len(s.rounds))
	for e, r := range s.rounds {
		if e < before && r.Settled() {
			epochs = append(epochs, e)
		}
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })

	var out []domain.Round
	for _, e := range epochs {
		if len(out) >= limit {
			break
		}
		r := s.rounds[e]
		out = append(out, r.Clone())
	}
	return out, nil
}

func (s *RoundStore) LatestEpoch(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max uint64
	for e := range s.rounds {
		if e > max {
			max = e
		}
	}
	return max, nil
}

func (s *RoundStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rounds)), nil
}

type betKey struct {
	epoch  uint64
	bettor common.Address
}

// BetStore is an in-memory domain.BetStore.
type BetStore struct {
	mu   sync.RWMutex
	bets map[betKey]domain.Bet
}

// NewBetStore creates an empty BetStore.
func NewBetStore() *BetStore {
	return &BetStore{bets: make(map[betKey]domain.Bet)}
}

func (s *BetStore) Upsert(ctx context.Context, b domain.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bets[betKey{b.Epoch, b.Bettor}] = b.Clone()
	return nil
}

func (s *BetStore) Get(ctx context.Context, epoch uint64, bettor common.Address) (domain.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bets[betKey{epoch, bettor}]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	return b.Clone(), nil
}

func (s *BetStore) ListByEpoch(ctx context.Context, epoch uint64) ([]domain.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Bet
	for k, b := range s.bets {
		if k.epoch == epoch {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Bettor.Hex() < out[j].Bettor.Hex()
	})
	return out, nil
}

func (s *BetStore) ListByBettor(ctx context.Context, bettor common.Address, opts domain.ListOpts) ([]domain.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []domain.Bet
	for k, b := range s.bets {
		if k.bettor == bettor {
			all = append(all, b.Clone())
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Epoch > all[j].Epoch })

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	var out []domain.Bet
	for i, b := range all {
		if i < opts.Offset {
			continue
		}
		if len(out) >= limit {
			break
		}
		out = append(out, b)
	}
	return out, nil
}

// StateStore is an in-memory domain.EngineStateStore.
type StateStore struct {
	mu    sync.RWMutex
	state *domain.EngineState
}

// NewStateStore creates an empty StateStore.
func NewStateStore() *StateStore {
	return &StateStore{}
}

func (s *StateStore) Save(ctx context.Context, st domain.EngineState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := st
	if st.LastOracleRoundID != nil {
		cp.LastOracleRoundID = new(big.Int).Set(st.LastOracleRoundID)
	}
	if st.TreasuryAmount != nil {
		cp.TreasuryAmount = new(big.Int).Set(st.TreasuryAmount)
	}
	s.state = &cp
	return nil
}

func (s *StateStore) Load(ctx context.Context) (domain.EngineState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return domain.EngineState{}, domain.ErrNotFound
	}
	cp := *s.state
	if s.state.LastOracleRoundID != nil {
		cp.LastOracleRoundID = new(big.Int).Set(s.state.LastOracleRoundID)
	}
	if s.state.TreasuryAmount != nil {
		cp.TreasuryAmount = new(big.Int).Set(s.state.TreasuryAmount)
	}
	return cp, nil
}

// LockManager is a process-local domain.LockManager for single-instance
// deployments.
type LockManager struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]bool)}
}

func (m *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return nil, domain.ErrLockHeld
	}
	m.held[key] = true
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
	}, nil
}

// Compile-time interface checks.
var (
	_ domain.RoundStore       = (*RoundStore)(nil)
	_ domain.BetStore         = (*BetStore)(nil)
	_ domain.EngineStateStore = (*StateStore)(nil)
	_ domain.LockManager      = (*LockManager)(nil)
)
