package service_test

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store/memory"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// engine bundles the services over one in-memory directory:
//
//	ctrl-1 (active) ── reader-a → door-main (STRIKE)
//	                └─ reader-b → door-lab  (MAGNETIC)
//	                └─ reader-x   (no door)
//	ctrl-2 (active) ── reader-z → door-main
//	ctrl-off (disabled)
//
// Group "staff" is allowed on door-main and door-lab; "contractors" is
// allowed on door-main only. Card STAFF1 belongs to emp-staff, CONTR1 to
// emp-contr.
type engine struct {
	st       *memory.Store
	clock    *fakeClock
	recorder *service.AuditRecorder
	access   *service.AccessService
	sync     *service.SyncService
	recon    *service.Reconciler
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newEngine() *engine {
	st := memory.New()
	seed(st)
	return newEngineOn(st, st)
}

func newEngineOn(seeded *memory.Store, st store.Store) *engine {
	clock := &fakeClock{now: t0}
	opt := service.WithClock(clock.Now)
	rec := service.NewAuditRecorder(st, service.AuditConfig{}, opt)
	acc := service.NewAccessService(st, rec, opt)
	return &engine{
		st:       seeded,
		clock:    clock,
		recorder: rec,
		access:   acc,
		sync:     service.NewSyncService(st, opt),
		recon:    service.NewReconciler(st, acc, rec, opt),
	}
}

func seed(st *memory.Store) {
	revoked := t0.Add(-time.Hour)
	st.PutController(store.Controller{ID: "ctrl-1", Enabled: true})
	st.PutController(store.Controller{ID: "ctrl-2", Enabled: true})
	st.PutController(store.Controller{ID: "ctrl-off", Enabled: false})
	st.PutController(store.Controller{ID: "ctrl-revoked", Enabled: true, RevokedAt: &revoked})

	st.PutDoor(store.Door{ID: "door-main", Name: "Main", LockType: store.LockStrike, Active: true})
	st.PutDoor(store.Door{ID: "door-lab", Name: "Lab", LockType: store.LockMagnetic, Active: true})

	st.PutReader(store.Reader{ID: "rd-a", Ref: "reader-a", ControllerID: "ctrl-1", DoorID: "door-main", Active: true})
	st.PutReader(store.Reader{ID: "rd-b", Ref: "reader-b", ControllerID: "ctrl-1", DoorID: "door-lab", Active: true})
	st.PutReader(store.Reader{ID: "rd-x", Ref: "reader-x", ControllerID: "ctrl-1", Active: true})
	st.PutReader(store.Reader{ID: "rd-z", Ref: "reader-z", ControllerID: "ctrl-2", DoorID: "door-main", Active: true})

	st.PutEmployee(store.Employee{ID: "emp-staff", Name: "Ada", AccessGroupID: "staff", Active: true})
	st.PutEmployee(store.Employee{ID: "emp-contr", Name: "Bo", AccessGroupID: "contractors", Active: true})

	st.PutCredential(store.Credential{ID: "cred-staff", UID: "STAFF1", EmployeeID: "emp-staff", IssuedAt: t0.AddDate(-1, 0, 0), Active: true})
	st.PutCredential(store.Credential{ID: "cred-contr", UID: "CONTR1", EmployeeID: "emp-contr", IssuedAt: t0.AddDate(-1, 0, 0), Active: true})

	st.PutRule(store.DoorRule{AccessGroupID: "staff", DoorID: "door-main", AccessType: store.AccessAllow, Active: true})
	st.PutRule(store.DoorRule{AccessGroupID: "staff", DoorID: "door-lab", AccessType: store.AccessAllow, Active: true})
	st.PutRule(store.DoorRule{AccessGroupID: "contractors", DoorID: "door-main", AccessType: store.AccessAllow, Active: true})
}

func scan(uid string) service.DecisionInput {
	return service.DecisionInput{ControllerID: "ctrl-1", ReaderRef: "reader-a", CredentialUID: uid, At: t0}
}

// failingAuditStore rolls back every unit of work whose audit insert it
// rejects.
type failingAuditStore struct {
	inner *memory.Store
}

var errAuditDown = errors.New("audit unavailable")

func (s failingAuditStore) InTx(ctx context.Context, fn store.TxFn) error {
	return s.inner.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, failingTx{Tx: tx})
	})
}

type failingTx struct {
	store.Tx
}

func (failingTx) InsertAudit(context.Context, *store.AuditRecord) error { return errAuditDown }
