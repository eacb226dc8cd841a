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

// DecisionInput is one presented credential. A zero At means "now".
type DecisionInput struct {
	ControllerID  string
	ReaderRef     string
	CredentialUID string
	At            time.Time
}

// Decision is the outcome of a live check. LockType is only set on SUCCESS.
// Detail refines ReasonCode in the audit trail and is never sent to the
// controller.
type Decision struct {
	Result     store.AuditResult
	LockType   store.LockType
	ReasonCode store.ReasonCode
	Detail     string
	AuditID    int64
}

func (d Decision) Granted() bool { return d.Result == store.ResultSuccess }

// AccessService decides whether a credential may open the door behind a
// reader. Resolution failures become DENY decisions; only store failures
// are returned as errors.
type AccessService struct {
	store    store.Store
	recorder *AuditRecorder
	now      func() time.Time
	logger   *zap.Logger
}

func NewAccessService(st store.Store, rec *AuditRecorder, opts ...Option) *AccessService {
	o := buildOptions(opts)
	return &AccessService{store: st, recorder: rec, now: o.now, logger: o.logger}
}

// Decide evaluates in and writes exactly one ACCESS audit record in the same
// transaction. If the audit write fails nothing is committed and the error
// is returned.
func (s *AccessService) Decide(ctx context.Context, in DecisionInput) (Decision, error) {
	var d Decision
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		d, err = s.decideTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return Decision{}, err
	}
	return d, nil
}

func (s *AccessService) decideTx(ctx context.Context, tx store.Tx, in DecisionInput) (Decision, error) {
	in.ControllerID = strings.TrimSpace(in.ControllerID)
	in.ReaderRef = strings.TrimSpace(in.ReaderRef)
	in.CredentialUID = strings.TrimSpace(in.CredentialUID)
	if in.At.IsZero() {
		in.At = s.now()
	}
	in.At = in.At.UTC()

	rec := store.AuditRecord{
		EventType:     store.EventAccess,
		ControllerRef: in.ControllerID,
		ReaderRef:     in.ReaderRef,
		CredentialUID: in.CredentialUID,
		EventTime:     in.At,
	}

	d, err := s.evaluate(ctx, tx, in, &rec)
	if err != nil {
		return Decision{}, err
	}

	rec.Result = d.Result
	rec.ReasonCode = d.ReasonCode
	rec.ReasonDetail = d.Detail
	if err := s.recorder.RecordDecision(ctx, tx, &rec); err != nil {
		return Decision{}, err
	}
	d.AuditID = rec.ID

	s.logger.Debug("access decision",
		zap.String("controller_id", in.ControllerID),
		zap.String("reader_ref", in.ReaderRef),
		zap.String("result", string(d.Result)),
		zap.String("reason", string(d.ReasonCode)),
		zap.Int64("audit_id", d.AuditID),
	)
	return d, nil
}

// evaluate walks the resolution chain and stops at the first failing step.
// Every id it resolves on the way is copied into rec.
func (s *AccessService) evaluate(ctx context.Context, tx store.Tx, in DecisionInput, rec *store.AuditRecord) (Decision, error) {
	ctrl, reader, err := controllerReader(ctx, tx, in.ControllerID, in.ReaderRef)
	if ctrl.ID != "" && !errors.Is(err, ErrControllerNotFound) {
		rec.ControllerID = ctrl.ID
	}
	switch {
	case errors.Is(err, ErrControllerNotFound):
		return deny(store.ReasonControllerNotFound, ""), nil
	case errors.Is(err, ErrReaderNotFound):
		return deny(store.ReasonReaderNotFound, ""), nil
	case errors.Is(err, ErrReaderControllerMismatch):
		return deny(store.ReasonReaderControllerMismatch, ""), nil
	case err != nil:
		return Decision{}, err
	}
	rec.ReaderID = reader.ID
	rec.DoorID = reader.DoorID

	cred, err := tx.CredentialByUID(ctx, in.CredentialUID)
	if errors.Is(err, store.ErrNotFound) {
		return deny(store.ReasonCardInvalid, "not_found"), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("load credential: %w", err)
	}
	rec.CredentialID = cred.ID
	rec.EmployeeID = cred.EmployeeID
	if detail := credentialProblem(cred, in.At); detail != "" {
		return deny(store.ReasonCardInvalid, detail), nil
	}

	emp, err := tx.EmployeeByID(ctx, cred.EmployeeID)
	if errors.Is(err, store.ErrNotFound) {
		return deny(store.ReasonEmployeeInactive, "not_found"), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("load employee: %w", err)
	}
	if !emp.Active {
		return deny(store.ReasonEmployeeInactive, ""), nil
	}
	if emp.AccessGroupID == "" {
		return deny(store.ReasonNoAccessGroup, ""), nil
	}

	if reader.DoorID == "" {
		return deny(store.ReasonDoorInactive, "unbound_reader"), nil
	}
	door, err := tx.DoorByID(ctx, reader.DoorID)
	if errors.Is(err, store.ErrNotFound) {
		return deny(store.ReasonDoorInactive, "not_found"), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("load door: %w", err)
	}
	if !door.Active {
		return deny(store.ReasonDoorInactive, ""), nil
	}

	rules, err := tx.DoorRules(ctx, emp.AccessGroupID, door.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("load door rules: %w", err)
	}
	if !EffectiveAllow(rules) {
		return deny(store.ReasonAccessNotAllowed, ""), nil
	}

	return Decision{
		Result:     store.ResultSuccess,
		LockType:   door.LockType,
		ReasonCode: store.ReasonGranted,
	}, nil
}

func deny(reason store.ReasonCode, detail string) Decision {
	return Decision{Result: store.ResultDenied, ReasonCode: reason, Detail: detail}
}

// credentialProblem returns the audit detail for an unusable credential, or
// "" when it may be used at t.
func credentialProblem(c store.Credential, t time.Time) string {
	switch {
	case !c.Active:
		return "inactive"
	case t.Before(c.IssuedAt):
		return "not_yet_issued"
	case c.ExpiresAt != nil && !t.Before(*c.ExpiresAt):
		return "expired"
	}
	return ""
}
