package service

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/types"
)

// ReconcileResult counts a drained offline batch.
type ReconcileResult struct {
	Accepted  int
	Processed int
}

// Reconciler replays a controller's offline queue in event-time order.
// Each entry is its own unit of work; a failing entry is logged and skipped.
type Reconciler struct {
	store    store.Store
	access   *AccessService
	recorder *AuditRecorder
	logger   *zap.Logger
}

func NewReconciler(st store.Store, access *AccessService, rec *AuditRecorder, opts ...Option) *Reconciler {
	o := buildOptions(opts)
	return &Reconciler{store: st, access: access, recorder: rec, logger: o.logger}
}

// Reconcile fails the whole batch only when the controller is not active.
func (r *Reconciler) Reconcile(ctx context.Context, controllerID string, events []types.BulkEvent) (ReconcileResult, error) {
	controllerID = strings.TrimSpace(controllerID)
	if controllerID == "" {
		return ReconcileResult{}, ErrInvalidControllerID
	}

	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := activeController(ctx, tx, controllerID)
		return err
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	ordered := make([]types.BulkEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EventTime.Before(ordered[j].EventTime.Time)
	})

	res := ReconcileResult{Accepted: len(events)}
	for i, ev := range ordered {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := r.apply(ctx, controllerID, ev); err != nil {
			r.logger.Warn("skipped offline event",
				zap.String("controller_id", controllerID),
				zap.Int("position", i),
				zap.String("reader_ref", ev.ReaderRef),
				zap.String("event_type", ev.EventType),
				zap.Error(err),
			)
			continue
		}
		res.Processed++
	}

	r.logger.Info("offline batch reconciled",
		zap.String("controller_id", controllerID),
		zap.Int("accepted", res.Accepted),
		zap.Int("processed", res.Processed),
	)
	return res, nil
}

func (r *Reconciler) apply(ctx context.Context, controllerID string, ev types.BulkEvent) error {
	if ev.DecodeErr != nil {
		return ev.DecodeErr
	}
	typ, err := ParseEventType(ev.EventType)
	if err != nil {
		return err
	}
	if ev.EventTime.IsZero() {
		return ErrMissingEventTime
	}
	at := ev.EventTime.UTC()

	return r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if typ != store.EventAccess {
			_, err := r.recorder.doorEventTx(ctx, tx, DoorEventInput{
				ControllerID:  controllerID,
				ReaderRef:     ev.ReaderRef,
				CredentialUID: ev.CredentialUID,
				EventType:     typ,
				At:            at,
			})
			return err
		}

		// A live check turns an unknown reader into a DENY; a queued scan
		// that cannot be resolved is an item error instead.
		if _, _, err := controllerReader(ctx, tx, controllerID, strings.TrimSpace(ev.ReaderRef)); err != nil {
			return err
		}
		_, err := r.access.decideTx(ctx, tx, DecisionInput{
			ControllerID:  controllerID,
			ReaderRef:     ev.ReaderRef,
			CredentialUID: ev.CredentialUID,
			At:            at,
		})
		return err
	})
}
