package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
)

func (r *txRepo) InsertAudit(ctx context.Context, rec *store.AuditRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	var openSeconds, avgOpenSeconds any
	if rec.OpenSeconds != nil {
		openSeconds = *rec.OpenSeconds
	}
	if rec.AvgOpenSeconds != nil {
		avgOpenSeconds = *rec.AvgOpenSeconds
	}

	res, err := r.tx.ExecContext(ctx, `
INSERT INTO audit_records(
  event_type, controller_ref, reader_ref, credential_uid,
  controller_id, reader_id, door_id, credential_id, employee_id,
  result, reason_code, reason_detail,
  event_time_ms, opened_at_ms, closed_at_ms, open_seconds, avg_open_seconds, clock_skew,
  recorded_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		string(rec.EventType), nullText(rec.ControllerRef), nullText(rec.ReaderRef), nullText(rec.CredentialUID),
		nullText(rec.ControllerID), nullText(rec.ReaderID), nullText(rec.DoorID), nullText(rec.CredentialID), nullText(rec.EmployeeID),
		string(rec.Result), string(rec.ReasonCode), nullText(rec.ReasonDetail),
		toMs(rec.EventTime), nullTime(rec.OpenedAt), nullTime(rec.ClosedAt), openSeconds, avgOpenSeconds, boolInt(rec.ClockSkew),
		toMs(rec.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("InsertAudit: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("InsertAudit last id: %w", err)
	}
	rec.ID = id
	return nil
}

const auditColumns = `
  audit_id, event_type, controller_ref, reader_ref, credential_uid,
  controller_id, reader_id, door_id, credential_id, employee_id,
  result, reason_code, reason_detail,
  event_time_ms, opened_at_ms, closed_at_ms, open_seconds, avg_open_seconds, clock_skew,
  recorded_at_ms`

func scanAudit(sc interface{ Scan(...any) error }) (store.AuditRecord, error) {
	var rec store.AuditRecord
	var eventType, result, reason string
	var controllerRef, readerRef, credentialUID sql.NullString
	var controllerID, readerID, doorID, credentialID, employeeID, detail sql.NullString
	var eventMs, recordedMs int64
	var opened, closed, openSeconds sql.NullInt64
	var avg sql.NullFloat64
	var skew int

	if err := sc.Scan(
		&rec.ID, &eventType, &controllerRef, &readerRef, &credentialUID,
		&controllerID, &readerID, &doorID, &credentialID, &employeeID,
		&result, &reason, &detail,
		&eventMs, &opened, &closed, &openSeconds, &avg, &skew,
		&recordedMs,
	); err != nil {
		return store.AuditRecord{}, err
	}

	rec.EventType = store.EventType(eventType)
	rec.ControllerRef = controllerRef.String
	rec.ReaderRef = readerRef.String
	rec.CredentialUID = credentialUID.String
	rec.ControllerID = controllerID.String
	rec.ReaderID = readerID.String
	rec.DoorID = doorID.String
	rec.CredentialID = credentialID.String
	rec.EmployeeID = employeeID.String
	rec.Result = store.AuditResult(result)
	rec.ReasonCode = store.ReasonCode(reason)
	rec.ReasonDetail = detail.String
	rec.EventTime = fromMs(eventMs)
	rec.OpenedAt = fromNullMs(opened)
	rec.ClosedAt = fromNullMs(closed)
	if openSeconds.Valid {
		v := openSeconds.Int64
		rec.OpenSeconds = &v
	}
	if avg.Valid {
		v := avg.Float64
		rec.AvgOpenSeconds = &v
	}
	rec.ClockSkew = skew == 1
	rec.RecordedAt = fromMs(recordedMs)
	return rec, nil
}

func (r *txRepo) LatestPendingGrant(ctx context.Context, doorID, credentialID string, since, until time.Time) (store.AuditRecord, error) {
	rec, err := scanAudit(r.tx.QueryRowContext(ctx, `
SELECT`+auditColumns+`
FROM audit_records
WHERE door_id = ?
  AND event_type = 'ACCESS'
  AND result = 'SUCCESS'
  AND opened_at_ms IS NULL
  AND event_time_ms BETWEEN ? AND ?
  AND (? = '' OR credential_id = ?)
ORDER BY event_time_ms DESC, audit_id DESC
LIMIT 1;
`, doorID, toMs(since), toMs(until), credentialID, credentialID))
	if errors.Is(err, sql.ErrNoRows) {
		return store.AuditRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.AuditRecord{}, fmt.Errorf("LatestPendingGrant: %w", err)
	}
	return rec, nil
}

func (r *txRepo) LatestOpen(ctx context.Context, doorID, credentialID string) (store.AuditRecord, error) {
	rec, err := scanAudit(r.tx.QueryRowContext(ctx, `
SELECT`+auditColumns+`
FROM audit_records
WHERE door_id = ?
  AND opened_at_ms IS NOT NULL
  AND closed_at_ms IS NULL
  AND (? = '' OR credential_id = ?)
ORDER BY opened_at_ms DESC, audit_id DESC
LIMIT 1;
`, doorID, credentialID, credentialID))
	if errors.Is(err, sql.ErrNoRows) {
		return store.AuditRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.AuditRecord{}, fmt.Errorf("LatestOpen: %w", err)
	}
	return rec, nil
}

// MarkOpened sets opened_at once. A record that already has one is left
// untouched and reported as ErrNotFound.
func (r *txRepo) MarkOpened(ctx context.Context, auditID int64, openedAt time.Time) error {
	res, err := r.tx.ExecContext(ctx, `
UPDATE audit_records
SET opened_at_ms = ?
WHERE audit_id = ? AND opened_at_ms IS NULL;
`, toMs(openedAt), auditID)
	if err != nil {
		return fmt.Errorf("MarkOpened: %w", err)
	}
	return expectOneRow(res, "MarkOpened")
}

// MarkClosed finalizes an open record. Closed records are never updated again.
func (r *txRepo) MarkClosed(ctx context.Context, auditID int64, upd store.CloseUpdate) error {
	res, err := r.tx.ExecContext(ctx, `
UPDATE audit_records
SET closed_at_ms = ?,
    open_seconds = ?,
    avg_open_seconds = ?,
    clock_skew = ?
WHERE audit_id = ? AND closed_at_ms IS NULL;
`, toMs(upd.ClosedAt), upd.OpenSeconds, upd.AvgOpenSeconds, boolInt(upd.ClockSkew), auditID)
	if err != nil {
		return fmt.Errorf("MarkClosed: %w", err)
	}
	return expectOneRow(res, "MarkClosed")
}

func (r *txRepo) RecentOpenSeconds(ctx context.Context, doorID string, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.tx.QueryContext(ctx, `
SELECT open_seconds
FROM audit_records
WHERE door_id = ? AND open_seconds IS NOT NULL
ORDER BY closed_at_ms DESC, audit_id DESC
LIMIT ?;
`, doorID, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentOpenSeconds: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("RecentOpenSeconds scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// AuditRecords lists every record in insertion order. It is a read-only
// operator view and does not go through the writer.
func (s *Store) AuditRecords(ctx context.Context) ([]store.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT`+auditColumns+` FROM audit_records ORDER BY audit_id;`)
	if err != nil {
		return nil, fmt.Errorf("AuditRecords: %w", err)
	}
	defer rows.Close()

	var out []store.AuditRecord
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("AuditRecords scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	return nil
}
