package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dehublabs/predictiond/internal/domain"
)

// StateStore implements domain.EngineStateStore using PostgreSQL. The engine
// state is a singleton row.
type StateStore struct {
	pool *pgxpool.Pool
}

// NewStateStore creates a new StateStore backed by the given connection pool.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

// Save writes the singleton state row.
func (s *StateStore) Save(ctx context.Context, st domain.EngineState) error {
	const query = `
		INSERT INTO engine_state (
			id, schema_version, current_epoch,
			genesis_started, genesis_locked, paused,
			last_oracle_round_id, treasury_amount,
			admin, operator, updated_at
		) VALUES (
			1, $1, $2,
			$3, $4, $5,
			$6, $7,
			$8, $9, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			schema_version       = EXCLUDED.schema_version,
			current_epoch        = EXCLUDED.current_epoch,
			genesis_started      = EXCLUDED.genesis_started,
			genesis_locked       = EXCLUDED.genesis_locked,
			paused               = EXCLUDED.paused,
			last_oracle_round_id = EXCLUDED.last_oracle_round_id,
			treasury_amount      = EXCLUDED.treasury_amount,
			admin                = EXCLUDED.admin,
			operator             = EXCLUDED.operator,
			updated_at           = NOW()`

	treasury := "0"
	if st.TreasuryAmount != nil {
		treasury = st.TreasuryAmount.String()
	}
	_, err := s.pool.Exec(ctx, query,
		int32(st.SchemaVersion), int64(st.CurrentEpoch),
		st.GenesisStarted, st.GenesisLocked, st.Paused,
		bigText(st.LastOracleRoundID), treasury,
		addrKey(st.Admin), addrKey(st.Operator),
	)
	if err != nil {
		return fmt.Errorf("postgres: save engine state: %w", err)
	}
	return nil
}

// Load reads the singleton state row, or domain.ErrNotFound before the first
// Save.
func (s *StateStore) Load(ctx context.Context) (domain.EngineState, error) {
	const query = `
		SELECT schema_version, current_epoch,
		       genesis_started, genesis_locked, paused,
		       last_oracle_round_id, treasury_amount,
		       admin, operator, updated_at
		FROM engine_state WHERE id = 1`

	var st domain.EngineState
	var schemaVersion int32
	var currentEpoch int64
	var lastOracle *string
	var treasury, admin, operator string

	err := s.pool.QueryRow(ctx, query).Scan(
		&schemaVersion, &currentEpoch,
		&st.GenesisStarted, &st.GenesisLocked, &st.Paused,
		&lastOracle, &treasury,
		&admin, &operator, &st.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EngineState{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.EngineState{}, fmt.Errorf("postgres: load engine state: %w", err)
	}

	st.SchemaVersion = uint32(schemaVersion)
	st.CurrentEpoch = uint64(currentEpoch)
	st.Admin = common.HexToAddress(admin)
	st.Operator = common.HexToAddress(operator)
	if st.LastOracleRoundID, err = parseBig(lastOracle); err != nil {
		return domain.EngineState{}, err
	}
	if st.TreasuryAmount, err = mustBig(treasury); err != nil {
		return domain.EngineState{}, err
	}
	return st, nil
}

var _ domain.EngineStateStore = (*StateStore)(nil)
