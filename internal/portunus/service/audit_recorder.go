package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
)

const (
	DefaultAvgWindow       = 20
	DefaultOpenMatchWindow = 60 * time.Second
)

// AuditConfig tunes door-event correlation.
type AuditConfig struct {
	// AvgWindow is how many recent open durations feed avg_open_seconds.
	AvgWindow int
	// OpenMatchWindow bounds how old a granted ACCESS record may be for an
	// OPEN to attach to it.
	OpenMatchWindow time.Duration
}

func (c AuditConfig) withDefaults() AuditConfig {
	if c.AvgWindow <= 0 {
		c.AvgWindow = DefaultAvgWindow
	}
	if c.OpenMatchWindow <= 0 {
		c.OpenMatchWindow = DefaultOpenMatchWindow
	}
	return c
}

// DoorEventInput is a door-state transition reported by a controller.
// CredentialUID is optional; when it resolves, correlation is limited to
// records for that credential. A zero At means "now".
type DoorEventInput struct {
	ControllerID  string
	ReaderRef     string
	CredentialUID string
	EventType     store.EventType
	At            time.Time
}

// AuditRecorder owns every write to the audit trail. Open/close correlation
// is read back from the store inside the caller's transaction; nothing is
// kept in process memory between calls.
type AuditRecorder struct {
	store  store.Store
	cfg    AuditConfig
	now    func() time.Time
	logger *zap.Logger
}

func NewAuditRecorder(st store.Store, cfg AuditConfig, opts ...Option) *AuditRecorder {
	o := buildOptions(opts)
	return &AuditRecorder{store: st, cfg: cfg.withDefaults(), now: o.now, logger: o.logger}
}

// RecordDecision appends an ACCESS record inside tx.
func (r *AuditRecorder) RecordDecision(ctx context.Context, tx store.Tx, rec *store.AuditRecord) error {
	rec.EventType = store.EventAccess
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = r.now()
	}
	if err := tx.InsertAudit(ctx, rec); err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// RecordDoorEvent applies one OPEN, CLOSE or FORCED event in its own
// transaction and returns the record it created or updated.
func (r *AuditRecorder) RecordDoorEvent(ctx context.Context, in DoorEventInput) (store.AuditRecord, error) {
	var out store.AuditRecord
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = r.doorEventTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return store.AuditRecord{}, err
	}
	return out, nil
}

// ParseEventType maps a wire event name to a door event type. SCAN is an
// alias for ACCESS used by older controller firmware.
func ParseEventType(s string) (store.EventType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACCESS", "SCAN":
		return store.EventAccess, nil
	case "OPEN":
		return store.EventOpen, nil
	case "CLOSE":
		return store.EventClose, nil
	case "FORCED":
		return store.EventForced, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
}

func (r *AuditRecorder) doorEventTx(ctx context.Context, tx store.Tx, in DoorEventInput) (store.AuditRecord, error) {
	in.ControllerID = strings.TrimSpace(in.ControllerID)
	in.ReaderRef = strings.TrimSpace(in.ReaderRef)
	in.CredentialUID = strings.TrimSpace(in.CredentialUID)
	if in.At.IsZero() {
		in.At = r.now()
	}
	at := in.At.UTC()

	switch in.EventType {
	case store.EventOpen, store.EventClose, store.EventForced:
	default:
		return store.AuditRecord{}, fmt.Errorf("%w: %q", ErrUnknownEventType, in.EventType)
	}

	ctrl, reader, err := controllerReader(ctx, tx, in.ControllerID, in.ReaderRef)
	if err != nil {
		return store.AuditRecord{}, err
	}
	if reader.DoorID == "" {
		return store.AuditRecord{}, ErrReaderUnbound
	}

	base := store.AuditRecord{
		EventType:     in.EventType,
		ControllerRef: in.ControllerID,
		ReaderRef:     in.ReaderRef,
		CredentialUID: in.CredentialUID,
		ControllerID:  ctrl.ID,
		ReaderID:      reader.ID,
		DoorID:        reader.DoorID,
		EventTime:     at,
		RecordedAt:    r.now(),
	}
	if in.CredentialUID != "" {
		cred, err := tx.CredentialByUID(ctx, in.CredentialUID)
		switch {
		case err == nil:
			base.CredentialID = cred.ID
			base.EmployeeID = cred.EmployeeID
		case !errors.Is(err, store.ErrNotFound):
			return store.AuditRecord{}, fmt.Errorf("load credential: %w", err)
		}
	}

	switch in.EventType {
	case store.EventOpen:
		return r.open(ctx, tx, base, at)
	case store.EventClose:
		return r.close(ctx, tx, base, at)
	default:
		return r.forced(ctx, tx, base, at)
	}
}

func (r *AuditRecorder) open(ctx context.Context, tx store.Tx, base store.AuditRecord, at time.Time) (store.AuditRecord, error) {
	grant, err := tx.LatestPendingGrant(ctx, base.DoorID, base.CredentialID, at.Add(-r.cfg.OpenMatchWindow), at)
	switch {
	case err == nil:
		if err := tx.MarkOpened(ctx, grant.ID, at); err != nil {
			return store.AuditRecord{}, fmt.Errorf("mark opened: %w", err)
		}
		grant.OpenedAt = &at
		return grant, nil
	case !errors.Is(err, store.ErrNotFound):
		return store.AuditRecord{}, fmt.Errorf("find pending grant: %w", err)
	}

	rec := base
	rec.Result = store.ResultSuccess
	rec.ReasonCode = store.ReasonDoorOpened
	rec.OpenedAt = &at
	if err := tx.InsertAudit(ctx, &rec); err != nil {
		return store.AuditRecord{}, fmt.Errorf("record open: %w", err)
	}
	return rec, nil
}

func (r *AuditRecorder) close(ctx context.Context, tx store.Tx, base store.AuditRecord, at time.Time) (store.AuditRecord, error) {
	open, err := tx.LatestOpen(ctx, base.DoorID, base.CredentialID)
	if errors.Is(err, store.ErrNotFound) && base.CredentialID != "" {
		// Opens recorded without a card (FORCED, or no recent grant)
		// still belong to this door.
		open, err = tx.LatestOpen(ctx, base.DoorID, "")
	}
	if errors.Is(err, store.ErrNotFound) {
		rec := base
		rec.Result = store.ResultSuccess
		rec.ReasonCode = store.ReasonDoorClosed
		rec.ClosedAt = &at
		if err := tx.InsertAudit(ctx, &rec); err != nil {
			return store.AuditRecord{}, fmt.Errorf("record close: %w", err)
		}
		r.logger.Info("close without matching open",
			zap.String("door_id", base.DoorID),
			zap.Int64("audit_id", rec.ID),
		)
		return rec, nil
	}
	if err != nil {
		return store.AuditRecord{}, fmt.Errorf("find open record: %w", err)
	}

	secs, skew := openSeconds(*open.OpenedAt, at)

	prior, err := tx.RecentOpenSeconds(ctx, base.DoorID, r.cfg.AvgWindow-1)
	if err != nil {
		return store.AuditRecord{}, fmt.Errorf("load open durations: %w", err)
	}
	avg := mean(secs, prior)

	upd := store.CloseUpdate{ClosedAt: at, OpenSeconds: secs, AvgOpenSeconds: avg, ClockSkew: skew}
	if err := tx.MarkClosed(ctx, open.ID, upd); err != nil {
		return store.AuditRecord{}, fmt.Errorf("mark closed: %w", err)
	}
	if skew {
		r.logger.Warn("door closed before it opened, clamped duration",
			zap.String("door_id", base.DoorID),
			zap.Int64("audit_id", open.ID),
		)
	}

	open.ClosedAt = &at
	open.OpenSeconds = &secs
	open.AvgOpenSeconds = &avg
	open.ClockSkew = skew
	return open, nil
}

func (r *AuditRecorder) forced(ctx context.Context, tx store.Tx, base store.AuditRecord, at time.Time) (store.AuditRecord, error) {
	rec := base
	rec.Result = store.ResultDenied
	rec.ReasonCode = store.ReasonForcedEntry
	rec.OpenedAt = &at
	if err := tx.InsertAudit(ctx, &rec); err != nil {
		return store.AuditRecord{}, fmt.Errorf("record forced entry: %w", err)
	}
	r.logger.Warn("forced entry",
		zap.String("door_id", base.DoorID),
		zap.String("reader_ref", base.ReaderRef),
		zap.Int64("audit_id", rec.ID),
	)
	return rec, nil
}

// openSeconds floors closed-opened to whole seconds. A negative span is
// clamped to zero and reported as clock skew.
func openSeconds(opened, closed time.Time) (int64, bool) {
	d := closed.Sub(opened)
	if d < 0 {
		return 0, true
	}
	return int64(d / time.Second), false
}

func mean(current int64, prior []int64) float64 {
	sum := current
	for _, v := range prior {
		sum += v
	}
	return float64(sum) / float64(len(prior)+1)
}
