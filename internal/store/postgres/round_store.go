package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dehublabs/predictiond/internal/domain"
)

// RoundStore implements domain.RoundStore using PostgreSQL.
type RoundStore struct {
	pool *pgxpool.Pool
}

// NewRoundStore creates a new RoundStore backed by the given connection pool.
func NewRoundStore(pool *pgxpool.Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

const roundColumns = `
	epoch, start_block, lock_block, close_block,
	lock_price, close_price, lock_oracle_id, close_oracle_id,
	total_amount, bull_amount, bear_amount,
	reward_base_cal_amount, reward_amount,
	outcome, state, created_at, updated_at`

// Upsert inserts or updates a single round keyed by epoch.
func (s *RoundStore) Upsert(ctx context.Context, r domain.Round) error {
	const query = `
		INSERT INTO rounds (
			epoch, start_block, lock_block, close_block,
			lock_price, close_price, lock_oracle_id, close_oracle_id,
			total_amount, bull_amount, bear_amount,
			reward_base_cal_amount, reward_amount,
			outcome, state, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11,
			$12, $13,
			$14, $15, $16, NOW()
		)
		ON CONFLICT (epoch) DO UPDATE SET
			lock_price             = EXCLUDED.lock_price,
			close_price            = EXCLUDED.close_price,
			lock_oracle_id         = EXCLUDED.lock_oracle_id,
			close_oracle_id        = EXCLUDED.close_oracle_id,
			total_amount           = EXCLUDED.total_amount,
			bull_amount            = EXCLUDED.bull_amount,
			bear_amount            = EXCLUDED.bear_amount,
			reward_base_cal_amount = EXCLUDED.reward_base_cal_amount,
			reward_amount          = EXCLUDED.reward_amount,
			outcome                = EXCLUDED.outcome,
			state                  = EXCLUDED.state,
			updated_at             = NOW()`

	_, err := s.pool.Exec(ctx, query,
		int64(r.Epoch), int64(r.StartBlock), int64(r.LockBlock), int64(r.CloseBlock),
		bigText(r.LockPrice), bigText(r.ClosePrice), bigText(r.LockOracleID), bigText(r.CloseOracleID),
		r.TotalAmount.String(), r.BullAmount.String(), r.BearAmount.String(),
		bigText(r.RewardBaseCalAmount), bigText(r.RewardAmount),
		string(r.Outcome), string(r.State), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert round %d: %w", r.Epoch, err)
	}
	return nil
}

// GetByEpoch fetches one round, or domain.ErrNotFound.
func (s *RoundStore) GetByEpoch(ctx context.Context, epoch uint64) (domain.Round, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE epoch = $1`, int64(epoch))
	r, err := scanRound(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Round{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Round{}, fmt.Errorf("postgres: get round %d: %w", epoch, err)
	}
	return r, nil
}

// List returns rounds newest-first.
func (s *RoundStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Round, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+roundColumns+` FROM rounds ORDER BY epoch DESC LIMIT $1 OFFSET $2`,
		limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rounds: %w", err)
	}
	defer rows.Close()
	return collectRounds(rows)
}

// ListSettledBefore returns executed rounds with epoch < before, oldest first.
func (s *RoundStore) ListSettledBefore(ctx context.Context, before uint64, limit int) ([]domain.Round, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+roundColumns+` FROM rounds
		 WHERE epoch < $1 AND state = $2
		 ORDER BY epoch ASC LIMIT $3`,
		int64(before), string(domain.RoundExecuted), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled rounds: %w", err)
	}
	defer rows.Close()
	return collectRounds(rows)
}

// LatestEpoch returns the highest stored epoch, or 0 when no rounds exist.
func (s *RoundStore) LatestEpoch(ctx context.Context) (uint64, error) {
	var epoch int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(epoch), 0) FROM rounds`).Scan(&epoch)
	if err != nil {
		return 0, fmt.Errorf("postgres: latest epoch: %w", err)
	}
	return uint64(epoch), nil
}

// Count returns the total number of stored rounds.
func (s *RoundStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rounds`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count rounds: %w", err)
	}
	return n, nil
}

// scanRound scans a single round row into a domain.Round.
func scanRound(row pgx.Row) (domain.Round, error) {
	var r domain.Round
	var epoch, startBlock, lockBlock, closeBlock int64
	var lockPrice, closePrice, lockOracleID, closeOracle *string
	var totalAmount, bullAmount, bearAmount string
	var rewardBase, rewardAmount *string
	var outcome, state string
	err := row.Scan(
		&epoch, &startBlock, &lockBlock, &closeBlock,
		&lockPrice, &closePrice, &lockOracleID, &closeOracle,
		&totalAmount, &bullAmount, &bearAmount,
		&rewardBase, &rewardAmount,
		&outcome, &state, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return domain.Round{}, err
	}

	r.Epoch = uint64(epoch)
	r.StartBlock = uint64(startBlock)
	r.LockBlock = uint64(lockBlock)
	r.CloseBlock = uint64(closeBlock)
	r.Outcome = domain.Outcome(outcome)
	r.State = domain.RoundState(state)

	if r.LockPrice, err = parseBig(lockPrice); err != nil {
		return domain.Round{}, err
	}
	if r.ClosePrice, err = parseBig(closePrice); err != nil {
		return domain.Round{}, err
	}
	if r.LockOracleID, err = parseBig(lockOracleID); err != nil {
		return domain.Round{}, err
	}
	if r.CloseOracleID, err = parseBig(closeOracle); err != nil {
		return domain.Round{}, err
	}
	if r.TotalAmount, err = mustBig(totalAmount); err != nil {
		return domain.Round{}, err
	}
	if r.BullAmount, err = mustBig(bullAmount); err != nil {
		return domain.Round{}, err
	}
	if r.BearAmount, err = mustBig(bearAmount); err != nil {
		return domain.Round{}, err
	}
	if r.RewardBaseCalAmount, err = parseBig(rewardBase); err != nil {
		return domain.Round{}, err
	}
	if r.RewardAmount, err = parseBig(rewardAmount); err != nil {
		return domain.Round{}, err
	}
	return r, nil
}

func collectRounds(rows pgx.Rows) ([]domain.Round, error) {
	var out []domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan round: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate rounds: %w", err)
	}
	return out, nil
}

var _ domain.RoundStore = (*RoundStore)(nil)
