package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/gatekeeper/internal/db"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
)

type HeartbeatStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewHeartbeatStore(db *sql.DB, writer *dbpkg.Worker) *HeartbeatStore {
	return &HeartbeatStore{db: db, writer: writer}
}

// RecordHeartbeat appends one heartbeat row and refreshes the controller's
// last-known snapshot columns.
func (s *HeartbeatStore) RecordHeartbeat(ctx context.Context, controllerID string, rec store.HeartbeatRecord) error {
	controllerID = strings.TrimSpace(controllerID)
	if controllerID == "" {
		return nil
	}

	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	recvMs := rec.ReceivedAt.UTC().UnixMilli()

	fw := strings.TrimSpace(rec.Request.FirmwareVersion)
	ip := strings.TrimSpace(rec.Request.IP)

	var rssi any
	if rec.Request.RSSIDbm != nil {
		rssi = *rec.Request.RSSIDbm
	}

	var uptimeMs any
	if rec.Request.UptimeSeconds != 0 {
		uptimeMs = int64(rec.Request.UptimeSeconds) * 1000
	}

	var seq any
	if rec.Request.Sequence != 0 {
		seq = rec.Request.Sequence
	}

	var freeHeap any
	if rec.Request.FreeHeapBytes != 0 {
		freeHeap = rec.Request.FreeHeapBytes
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureController(ctx, tx, controllerID, recvMs); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO controller_heartbeats(
  controller_id, received_at_ms, seq, uptime_ms, fw_version, wifi_rssi, ip, free_heap_bytes
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`, controllerID, recvMs, seq, uptimeMs, fw, rssi, ip, freeHeap); err != nil {
			return fmt.Errorf("RecordHeartbeat insert heartbeat: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE controllers
SET last_seen_at_ms = ?,
    last_ip = ?,
    last_fw_version = ?,
    last_wifi_rssi = ?,
    updated_at_ms = ?
WHERE controller_id = ?;
`, recvMs, ip, fw, rssi, recvMs, controllerID); err != nil {
			return fmt.Errorf("RecordHeartbeat update controller snapshot: %w", err)
		}

		return nil
	})
}

// PruneOlderThan deletes heartbeat rows received before cutoff and returns
// the number removed. Uses idx_heartbeats_time.
func (s *HeartbeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM controller_heartbeats
WHERE received_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
