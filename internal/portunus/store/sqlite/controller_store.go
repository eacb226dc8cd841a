package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/gatekeeper/internal/db"
)

type ControllerStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewControllerStore(db *sql.DB, writer *dbpkg.Worker) *ControllerStore {
	return &ControllerStore{db: db, writer: writer}
}

// IsKnown treats "known" as enabled and not revoked, the same test the
// decision path uses for an active controller.
func (s *ControllerStore) IsKnown(ctx context.Context, controllerID string) (bool, error) {
	controllerID = strings.TrimSpace(controllerID)
	if controllerID == "" {
		return false, nil
	}

	var enabled int
	var revoked sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
SELECT enabled, revoked_at_ms
FROM controllers
WHERE controller_id = ?;
`, controllerID).Scan(&enabled, &revoked)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("IsKnown query: %w", err)
	}

	return enabled == 1 && !revoked.Valid, nil
}

// MarkSeen registers the controller if needed and updates last_seen.
func (s *ControllerStore) MarkSeen(ctx context.Context, controllerID string, t time.Time) error {
	controllerID = strings.TrimSpace(controllerID)
	if controllerID == "" {
		return nil
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	ms := t.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureController(ctx, tx, controllerID, ms); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE controllers
SET last_seen_at_ms = ?,
    updated_at_ms   = ?
WHERE controller_id = ?;
`, ms, ms, controllerID); err != nil {
			return fmt.Errorf("MarkSeen update controller: %w", err)
		}

		return nil
	})
}
