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

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

const betColumns = `epoch, bettor, direction, amount, claimed, created_at, updated_at`

// Upsert inserts or updates a bet keyed by (epoch, bettor). Addresses are
// stored lowercased so lookups are case-insensitive.
func (s *BetStore) Upsert(ctx context.Context, b domain.Bet) error {
	const query = `
		INSERT INTO bets (epoch, bettor, direction, amount, claimed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (epoch, bettor) DO UPDATE SET
			direction  = EXCLUDED.direction,
			amount     = EXCLUDED.amount,
			claimed    = EXCLUDED.claimed,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		int64(b.Epoch), addrKey(b.Bettor), string(b.Direction),
		b.Amount.String(), b.Claimed, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert bet %d/%s: %w", b.Epoch, b.Bettor.Hex(), err)
	}
	return nil
}

// Get fetches one bet, or domain.ErrNotFound.
func (s *BetStore) Get(ctx context.Context, epoch uint64, bettor common.Address) (domain.Bet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betColumns+` FROM bets WHERE epoch = $1 AND bettor = $2`,
		int64(epoch), addrKey(bettor))
	b, err := scanBet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Bet{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: get bet %d/%s: %w", epoch, bettor.Hex(), err)
	}
	return b, nil
}

// ListByEpoch returns every bet in the given epoch.
func (s *BetStore) ListByEpoch(ctx context.Context, epoch uint64) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betColumns+` FROM bets WHERE epoch = $1 ORDER BY bettor`, int64(epoch))
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for epoch %d: %w", epoch, err)
	}
	defer rows.Close()
	return collectBets(rows)
}

// ListByBettor returns a bettor's bets newest-first.
func (s *BetStore) ListByBettor(ctx context.Context, bettor common.Address, opts domain.ListOpts) ([]domain.Bet, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+betColumns+` FROM bets WHERE bettor = $1
		 ORDER BY epoch DESC LIMIT $2 OFFSET $3`,
		addrKey(bettor), limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for %s: %w", bettor.Hex(), err)
	}
	defer rows.Close()
	return collectBets(rows)
}

func scanBet(row pgx.Row) (domain.Bet, error) {
	var b domain.Bet
	var epoch int64
	var bettor, direction, amount string
	err := row.Scan(&epoch, &bettor, &direction, &amount, &b.Claimed, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return domain.Bet{}, err
	}
	b.Epoch = uint64(epoch)
	b.Bettor = common.HexToAddress(bettor)
	b.Direction = domain.Position(direction)
	if b.Amount, err = mustBig(amount); err != nil {
		return domain.Bet{}, err
	}
	return b, nil
}

func collectBets(rows pgx.Rows) ([]domain.Bet, error) {
	var out []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate bets: %w", err)
	}
	return out, nil
}

// addrKey normalizes an address for storage and lookup.
func addrKey(a common.Address) string {
	return "0x" + common.Bytes2Hex(a.Bytes())
}

var _ domain.BetStore = (*BetStore)(nil)
