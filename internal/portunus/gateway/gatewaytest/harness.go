// Package gatewaytest builds a Gateway over a seeded in-memory engine for
// transport tests.
package gatewaytest

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/envelope"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/gateway"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/replay"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store/memory"
)

// Now is the fixed clock every harness service runs on.
var Now = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// Key is the shared secret the harness envelope is built from.
var Key = bytes.Repeat([]byte{0x42}, envelope.KeySize)

// Harness seeds one enabled controller "ctrl-1" whose reader "reader-a"
// guards door-main (STRIKE). Card STAFF1 is allowed there; card NOPE1
// belongs to a group with no rules on that door.
type Harness struct {
	Gateway    *gateway.Gateway
	Envelope   *envelope.Envelope
	Store      *memory.Store
	Heartbeats *service.HeartbeatService
	HBStore    *memory.HeartbeatStore
}

func New(t testing.TB) *Harness {
	t.Helper()

	env, err := envelope.New(Key)
	if err != nil {
		t.Fatalf("envelope.New: %v", err)
	}

	st := memory.New()
	st.PutController(store.Controller{ID: "ctrl-1", Enabled: true})
	st.PutDoor(store.Door{ID: "door-main", Name: "Main", LockType: store.LockStrike, Active: true})
	st.PutReader(store.Reader{ID: "rd-a", Ref: "reader-a", ControllerID: "ctrl-1", DoorID: "door-main", Active: true})
	st.PutEmployee(store.Employee{ID: "emp-1", Name: "Ada", AccessGroupID: "staff", Active: true})
	st.PutEmployee(store.Employee{ID: "emp-2", Name: "Bo", AccessGroupID: "visitors", Active: true})
	st.PutCredential(store.Credential{ID: "cred-1", UID: "STAFF1", EmployeeID: "emp-1", IssuedAt: Now.AddDate(-1, 0, 0), Active: true})
	st.PutCredential(store.Credential{ID: "cred-2", UID: "NOPE1", EmployeeID: "emp-2", IssuedAt: Now.AddDate(-1, 0, 0), Active: true})
	st.PutRule(store.DoorRule{AccessGroupID: "staff", DoorID: "door-main", AccessType: store.AccessAllow, Active: true})

	opt := service.WithClock(func() time.Time { return Now })
	rec := service.NewAuditRecorder(st, service.AuditConfig{}, opt)
	acc := service.NewAccessService(st, rec, opt)
	hbStore := memory.NewHeartbeatStore()
	hb := service.NewHeartbeatService(hbStore,
		service.NewControllerRegistry(memory.NewControllerStore([]string{"ctrl-1"}), opt), opt)

	gw := gateway.New(env, replay.NewMemoryGuard(replay.DefaultTTL), gateway.Services{
		Access:     acc,
		Recorder:   rec,
		Sync:       service.NewSyncService(st, opt),
		Reconciler: service.NewReconciler(st, acc, rec, opt),
		Heartbeats: hb,
	}, zap.NewNop())

	return &Harness{Gateway: gw, Envelope: env, Store: st, Heartbeats: hb, HBStore: hbStore}
}

// Seal encodes v and seals it under a fresh nonce, returning the body and
// the nonce header value.
func (h *Harness) Seal(t testing.TB, v any) ([]byte, string) {
	t.Helper()
	nonce := make([]byte, envelope.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		t.Fatalf("nonce: %v", err)
	}
	plain, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body, err := h.Envelope.Seal(plain, nonce)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	return body, envelope.EncodeNonce(nonce)
}

// Open decodes a sealed response into v.
func (h *Harness) Open(t testing.TB, body []byte, nonceHeader string, v any) {
	t.Helper()
	nonce, err := envelope.DecodeNonce(nonceHeader)
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	if err := h.Envelope.OpenJSON(body, nonce, v); err != nil {
		t.Fatalf("open response: %v", err)
	}
}
