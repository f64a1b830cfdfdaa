package oracle_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/dehublabs/predictiond/internal/domain"
	"github.com/dehublabs/predictiond/internal/oracle"
)

func TestGatewayValidSample(t *testing.T) {
	feed := oracle.NewManualFeed()
	gw := oracle.NewGateway(feed, time.Minute)

	feed.Advance(big.NewInt(50_000))
	sample, err := gw.Latest(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if sample.Price.Cmp(big.NewInt(50_000)) != 0 {
		t.Errorf("price = %s, want 50000", sample.Price)
	}
	if sample.OracleRoundID.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("round id = %s, want 1", sample.OracleRoundID)
	}
}

func TestGatewayFeedFailure(t *testing.T) {
	feed := oracle.NewManualFeed()
	gw := oracle.NewGateway(feed, time.Minute)

	feed.Fail(errors.New("rpc timeout"))
	if _, err := gw.Latest(context.Background()); !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("got %v, want ErrOracleUnavailable", err)
	}

	// No rounds published yet is also unavailable, not stale.
	empty := oracle.NewGateway(oracle.NewManualFeed(), time.Minute)
	if _, err := empty.Latest(context.Background()); !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("empty feed: got %v, want ErrOracleUnavailable", err)
	}
}

func TestGatewayRejectsReplayedRound(t *testing.T) {
	feed := oracle.NewManualFeed()
	gw := oracle.NewGateway(feed, time.Minute)

	feed.Advance(big.NewInt(50_000))
	if _, err := gw.Latest(context.Background()); err != nil {
		t.Fatalf("first read: %v", err)
	}
	// The feed has not advanced; binding the same round twice is a replay.
	if _, err := gw.Latest(context.Background()); !errors.Is(err, domain.ErrStaleOracleData) {
		t.Fatalf("replay: got %v, want ErrStaleOracleData", err)
	}

	feed.Advance(big.NewInt(50_100))
	if _, err := gw.Latest(context.Background()); err != nil {
		t.Fatalf("after advance: %v", err)
	}
}

func TestGatewayRejectsStaleTimestamp(t *testing.T) {
	feed := oracle.NewManualFeed()
	gw := oracle.NewGateway(feed, time.Nanosecond)

	feed.Advance(big.NewInt(50_000))
	time.Sleep(time.Millisecond)
	if _, err := gw.Latest(context.Background()); !errors.Is(err, domain.ErrStaleOracleData) {
		t.Fatalf("got %v, want ErrStaleOracleData", err)
	}
}

func TestGatewaySeededFloor(t *testing.T) {
	feed := oracle.NewManualFeed()
	gw := oracle.NewGateway(feed, time.Minute)

	// Startup recovery seeds the floor from persisted state; the next read
	// must advance past it.
	gw.SetLastRoundID(big.NewInt(3))

	feed.Advance(big.NewInt(50_000)) // feed round 1
	if _, err := gw.Latest(context.Background()); !errors.Is(err, domain.ErrStaleOracleData) {
		t.Fatalf("round at floor: got %v, want ErrStaleOracleData", err)
	}

	feed.Advance(big.NewInt(50_100)) // 2
	feed.Advance(big.NewInt(50_200)) // 3
	feed.Advance(big.NewInt(50_300)) // 4
	sample, err := gw.Latest(context.Background())
	if err != nil {
		t.Fatalf("round past floor: %v", err)
	}
	if sample.OracleRoundID.Cmp(big.NewInt(4)) != 0 {
		t.Errorf("round id = %s, want 4", sample.OracleRoundID)
	}
}

func TestGatewayAllowanceSetter(t *testing.T) {
	gw := oracle.NewGateway(oracle.NewManualFeed(), 5*time.Minute)
	if got := gw.Allowance(); got != 5*time.Minute {
		t.Fatalf("allowance = %s, want 5m", got)
	}
	gw.SetAllowance(time.Hour)
	if got := gw.Allowance(); got != time.Hour {
		t.Fatalf("allowance = %s, want 1h", got)
	}
}
