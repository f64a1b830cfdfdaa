package engine

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/domain"
)

// MigrateToV2 is the one-shot post-upgrade migration entry point for schema
// revision 2. It is gated by the stored schema version, never inferred from
// the running binary: a second call fails with ErrAlreadyUpgraded and the
// migration logic never re-runs.
//
// Revision 2 changes no persisted layout — every Round and Bet record is
// carried forward byte for byte and pre-upgrade unclaimed bets remain
// claimable. The revision exists so the version marker and the migration
// gate are exercised before a future revision needs a real transformation.
func (e *Engine) MigrateToV2(caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return domain.ErrNotInitialized
	}
	if err := e.roles.RequireAdmin(caller); err != nil {
		return err
	}
	if e.schemaVersion >= SchemaVersion {
		return domain.ErrAlreadyUpgraded
	}

	e.schemaVersion = SchemaVersion
	return nil
}
