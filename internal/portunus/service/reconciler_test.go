package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/types"
)

func bulk(reader, uid, typ string, at time.Time) types.BulkEvent {
	return types.BulkEvent{ReaderRef: reader, CredentialUID: uid, EventType: typ, EventTime: types.NewTimestamp(at)}
}

func reconcile(t *testing.T, e *engine, events []types.BulkEvent) service.ReconcileResult {
	t.Helper()
	res, err := e.recon.Reconcile(context.Background(), "ctrl-1", events)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	return res
}

func TestReconcile_SortsBeforeApplying(t *testing.T) {
	e := newEngine()

	res := reconcile(t, e, []types.BulkEvent{
		bulk("reader-a", "", "CLOSE", t0.Add(10*time.Second)),
		bulk("reader-a", "", "OPEN", t0.Add(5*time.Second)),
	})
	if want := (service.ReconcileResult{Accepted: 2, Processed: 2}); res != want {
		t.Errorf("expected %+v, got %+v", want, res)
	}

	recs := e.st.AuditRecords()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.OpenedAt == nil || !rec.OpenedAt.Equal(t0.Add(5*time.Second)) {
		t.Errorf("unexpected opened_at %v", rec.OpenedAt)
	}
	if rec.ClosedAt == nil || !rec.ClosedAt.Equal(t0.Add(10*time.Second)) {
		t.Errorf("unexpected closed_at %v", rec.ClosedAt)
	}
	if got := openSecs(t, rec); got != 5 {
		t.Errorf("expected 5s, got %d", got)
	}
}

func TestReconcile_SkipsUnknownReader(t *testing.T) {
	e := newEngine()

	res := reconcile(t, e, []types.BulkEvent{
		bulk("reader-a", "STAFF1", "ACCESS", t0),
		bulk("reader-a", "STAFF1", "OPEN", t0.Add(1*time.Second)),
		bulk("reader-missing", "STAFF1", "ACCESS", t0.Add(2*time.Second)),
		bulk("reader-a", "STAFF1", "CLOSE", t0.Add(3*time.Second)),
		bulk("reader-b", "CONTR1", "SCAN", t0.Add(4*time.Second)),
	})
	if res.Accepted != 5 || res.Processed != 4 {
		t.Errorf("expected 5 accepted / 4 processed, got %+v", res)
	}

	recs := e.st.AuditRecords()
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Result != store.ResultSuccess {
		t.Errorf("expected first record granted, got %s", recs[0].Result)
	}
	if got := openSecs(t, recs[0]); got != 2 {
		t.Errorf("expected 2s, got %d", got)
	}
	if recs[1].ReasonCode != store.ReasonAccessNotAllowed {
		t.Errorf("expected ACCESS_NOT_ALLOWED, got %s", recs[1].ReasonCode)
	}
}

func TestReconcile_StableForEqualTimes(t *testing.T) {
	e := newEngine()

	// Same timestamp: submission order decides, so the OPEN is applied
	// before the CLOSE.
	res := reconcile(t, e, []types.BulkEvent{
		bulk("reader-a", "", "OPEN", t0),
		bulk("reader-a", "", "CLOSE", t0),
	})
	if res.Processed != 2 {
		t.Errorf("expected 2 processed, got %d", res.Processed)
	}

	recs := e.st.AuditRecords()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if got := openSecs(t, recs[0]); got != 0 {
		t.Errorf("expected 0s, got %d", got)
	}
}

func TestReconcile_SkipsMalformedItems(t *testing.T) {
	e := newEngine()

	res := reconcile(t, e, []types.BulkEvent{
		bulk("reader-a", "", "TIMED_OUT", t0),
		{ReaderRef: "reader-a", EventType: "OPEN"},
		bulk("reader-x", "", "OPEN", t0),
		bulk("reader-a", "", "FORCED", t0),
	})
	if want := (service.ReconcileResult{Accepted: 4, Processed: 1}); res != want {
		t.Errorf("expected %+v, got %+v", want, res)
	}
}

func TestReconcile_SkipsUndecodableEntries(t *testing.T) {
	e := newEngine()

	var req types.BulkEventsRequest
	raw := `{"controllerId":"ctrl-1","events":[
		{"readerRef":"reader-a","eventType":"OPEN","eventTime":"2026-03-02T08:00:00Z"},
		{"readerRef":"reader-a","eventType":"CLOSE","eventTime":"not-a-time"},
		{"readerRef":7,"eventType":"CLOSE","eventTime":"2026-03-02T08:00:03Z"},
		{"readerRef":"reader-a","eventType":"CLOSE","eventTime":"2026-03-02T08:00:04Z"}
	]}`
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("a bad entry must not fail the batch decode: %v", err)
	}
	if req.Events[1].DecodeErr == nil || req.Events[2].DecodeErr == nil {
		t.Fatalf("expected decode errors on entries 1 and 2, got %+v", req.Events)
	}

	res := reconcile(t, e, req.Events)
	if want := (service.ReconcileResult{Accepted: 4, Processed: 2}); res != want {
		t.Errorf("expected %+v, got %+v", want, res)
	}
	recs := e.st.AuditRecords()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if got := openSecs(t, recs[0]); got != 4 {
		t.Errorf("expected 4s, got %d", got)
	}
}

func TestReconcile_RejectsInactiveController(t *testing.T) {
	e := newEngine()

	for _, id := range []string{"ghost", "ctrl-off"} {
		_, err := e.recon.Reconcile(context.Background(), id, []types.BulkEvent{
			bulk("reader-a", "STAFF1", "ACCESS", t0),
		})
		if !errors.Is(err, service.ErrControllerNotFound) {
			t.Errorf("%s: expected ErrControllerNotFound, got %v", id, err)
		}
	}
	if n := len(e.st.AuditRecords()); n != 0 {
		t.Errorf("expected no records, got %d", n)
	}
}

func TestReconcile_EmptyBatch(t *testing.T) {
	e := newEngine()

	if res := reconcile(t, e, nil); res != (service.ReconcileResult{}) {
		t.Errorf("expected zero result, got %+v", res)
	}
}
