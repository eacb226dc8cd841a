package memory

import (
	"context"
	"sort"
	"time"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
)

func (t *memTx) InsertAudit(_ context.Context, rec *store.AuditRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	t.s.nextAuditID++
	rec.ID = t.s.nextAuditID
	t.s.audit = append(t.s.audit, *rec)
	return nil
}

func (t *memTx) LatestPendingGrant(_ context.Context, doorID, credentialID string, since, until time.Time) (store.AuditRecord, error) {
	var best *store.AuditRecord
	for i := range t.s.audit {
		r := &t.s.audit[i]
		if r.DoorID != doorID || r.EventType != store.EventAccess || r.Result != store.ResultSuccess || r.OpenedAt != nil {
			continue
		}
		if credentialID != "" && r.CredentialID != credentialID {
			continue
		}
		if r.EventTime.Before(since) || r.EventTime.After(until) {
			continue
		}
		if best == nil || !r.EventTime.Before(best.EventTime) {
			best = r
		}
	}
	if best == nil {
		return store.AuditRecord{}, store.ErrNotFound
	}
	return *best, nil
}

func (t *memTx) LatestOpen(_ context.Context, doorID, credentialID string) (store.AuditRecord, error) {
	var best *store.AuditRecord
	for i := range t.s.audit {
		r := &t.s.audit[i]
		if r.DoorID != doorID || r.OpenedAt == nil || r.ClosedAt != nil {
			continue
		}
		if credentialID != "" && r.CredentialID != credentialID {
			continue
		}
		// Records are in ID order, so >= keeps the highest ID on ties.
		if best == nil || !r.OpenedAt.Before(*best.OpenedAt) {
			best = r
		}
	}
	if best == nil {
		return store.AuditRecord{}, store.ErrNotFound
	}
	return *best, nil
}

func (t *memTx) MarkOpened(_ context.Context, auditID int64, openedAt time.Time) error {
	r := t.find(auditID)
	if r == nil || r.OpenedAt != nil {
		return store.ErrNotFound
	}
	at := openedAt.UTC()
	r.OpenedAt = &at
	return nil
}

func (t *memTx) MarkClosed(_ context.Context, auditID int64, upd store.CloseUpdate) error {
	r := t.find(auditID)
	if r == nil || r.ClosedAt != nil {
		return store.ErrNotFound
	}
	closed := upd.ClosedAt.UTC()
	secs := upd.OpenSeconds
	avg := upd.AvgOpenSeconds
	r.ClosedAt = &closed
	r.OpenSeconds = &secs
	r.AvgOpenSeconds = &avg
	r.ClockSkew = upd.ClockSkew
	return nil
}

func (t *memTx) RecentOpenSeconds(_ context.Context, doorID string, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}
	var closed []store.AuditRecord
	for _, r := range t.s.audit {
		if r.DoorID == doorID && r.OpenSeconds != nil && r.ClosedAt != nil {
			closed = append(closed, r)
		}
	}
	sort.SliceStable(closed, func(i, j int) bool {
		if !closed[i].ClosedAt.Equal(*closed[j].ClosedAt) {
			return closed[i].ClosedAt.After(*closed[j].ClosedAt)
		}
		return closed[i].ID > closed[j].ID
	})
	if len(closed) > limit {
		closed = closed[:limit]
	}
	out := make([]int64, len(closed))
	for i, r := range closed {
		out[i] = *r.OpenSeconds
	}
	return out, nil
}

func (t *memTx) find(id int64) *store.AuditRecord {
	for i := range t.s.audit {
		if t.s.audit[i].ID == id {
			return &t.s.audit[i]
		}
	}
	return nil
}
