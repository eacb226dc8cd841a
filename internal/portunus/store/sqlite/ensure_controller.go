package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// ensureController guarantees a controllers row exists for controllerID so
// that heartbeat foreign keys are satisfied.
//
// New rows start disabled and uncommissioned. Only an admin action (or the
// fixture seeder) enables a controller.
//
// Must be called inside an existing transaction.
func ensureController(ctx context.Context, tx *sql.Tx, controllerID string, nowMs int64) error {
	if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO controllers(
  controller_id, enabled, created_at_ms, updated_at_ms
) VALUES (?, 0, ?, ?);
`, controllerID, nowMs, nowMs); err != nil {
		return fmt.Errorf("ensureController %s: %w", controllerID, err)
	}
	return nil
}
