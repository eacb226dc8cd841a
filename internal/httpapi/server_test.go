package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/gateway"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/gateway/gatewaytest"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/types"
)

// newTestServer wires the HTTP server over the gateway harness and returns
// an httptest.Server whose URL can be hit with a plain http.Client.
func newTestServer(t *testing.T) (*httptest.Server, *gatewaytest.Harness) {
	t.Helper()

	h := gatewaytest.New(t)
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:           zap.NewNop(),
		Addr:             ":0",
		Gateway:          h.Gateway,
		HeartbeatService: h.Heartbeats,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, h
}

func postSealed(t *testing.T, url, iv string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if iv != "" {
		req.Header.Set(httpapi.NonceHeader, iv)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func errorCode(t *testing.T, resp *http.Response) gateway.Code {
	t.Helper()
	var body gateway.ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

// ── Enveloped routes ─────────────────────────────────────────────────────────

func TestValidate_Granted(t *testing.T) {
	ts, h := newTestServer(t)

	body, iv := h.Seal(t, types.ValidateRequest{ControllerID: "ctrl-1", ReaderRef: "reader-a", CredentialUID: "STAFF1"})
	resp := postSealed(t, ts.URL+"/access/validate", iv, body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get(httpapi.NonceHeader); got != iv {
		t.Errorf("expected nonce echoed, got %q", got)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("expected octet-stream, got %q", ct)
	}

	sealed, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var vr types.ValidateResponse
	h.Open(t, sealed, iv, &vr)

	if vr.Result != "SUCCESS" || vr.LockType != "STRIKE" {
		t.Errorf("expected SUCCESS/STRIKE, got %+v", vr)
	}
}

func TestRoutes_AllOperationsReachable(t *testing.T) {
	ts, h := newTestServer(t)

	cases := []struct {
		path string
		req  any
	}{
		{"/access/event", types.DoorEventRequest{ControllerID: "ctrl-1", ReaderRef: "reader-a", EventType: "FORCED"}},
		{"/controller/db-sync", types.SyncRequest{ControllerID: "ctrl-1"}},
		{"/controller/bulk-event-logs", types.BulkEventsRequest{ControllerID: "ctrl-1"}},
		{"/controller/ping", types.PingRequest{ControllerID: "ctrl-1"}},
	}
	for _, c := range cases {
		body, iv := h.Seal(t, c.req)
		resp := postSealed(t, ts.URL+c.path, iv, body)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", c.path, resp.StatusCode)
		}
	}
}

func TestEnveloped_MissingNonce_400(t *testing.T) {
	ts, h := newTestServer(t)

	body, _ := h.Seal(t, types.SyncRequest{ControllerID: "ctrl-1"})
	resp := postSealed(t, ts.URL+"/controller/db-sync", "", body)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != gateway.CodeInvalidNonce {
		t.Errorf("expected invalid_nonce, got %q", code)
	}
}

func TestEnveloped_TamperedBody_400(t *testing.T) {
	ts, h := newTestServer(t)

	body, iv := h.Seal(t, types.SyncRequest{ControllerID: "ctrl-1"})
	body[len(body)/2] ^= 0x80
	resp := postSealed(t, ts.URL+"/controller/db-sync", iv, body)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != gateway.CodeDecryptionFailed {
		t.Errorf("expected decryption_failed, got %q", code)
	}
}

func TestEnveloped_Replay_409(t *testing.T) {
	ts, h := newTestServer(t)

	body, iv := h.Seal(t, types.PingRequest{ControllerID: "ctrl-1"})
	if resp := postSealed(t, ts.URL+"/controller/ping", iv, body); resp.StatusCode != http.StatusOK {
		t.Fatalf("first call: expected 200, got %d", resp.StatusCode)
	}

	resp := postSealed(t, ts.URL+"/controller/ping", iv, body)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != gateway.CodeReplayedNonce {
		t.Errorf("expected replayed_nonce, got %q", code)
	}
}

func TestEnveloped_UnknownController_404(t *testing.T) {
	ts, h := newTestServer(t)

	body, iv := h.Seal(t, types.SyncRequest{ControllerID: "rogue"})
	resp := postSealed(t, ts.URL+"/controller/db-sync", iv, body)

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != gateway.CodeControllerNotFound {
		t.Errorf("expected controller_not_found, got %q", code)
	}
}

func TestEnveloped_OversizedBody_413(t *testing.T) {
	ts, h := newTestServer(t)

	_, iv := h.Seal(t, types.PingRequest{ControllerID: "ctrl-1"})
	body := bytes.Repeat([]byte{0xAB}, 1<<20+64)
	resp := postSealed(t, ts.URL+"/controller/bulk-event-logs", iv, body)

	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != gateway.CodePayloadTooLarge {
		t.Errorf("expected payload_too_large, got %q", code)
	}
}

func TestEnveloped_WrongMethod(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/access/validate")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[gateway.Code]int{
		gateway.CodeInvalidNonce:             400,
		gateway.CodeDecryptionFailed:         400,
		gateway.CodeMalformedPayload:         400,
		gateway.CodeReplayedNonce:            409,
		gateway.CodeControllerNotFound:       404,
		gateway.CodeReaderNotFound:           404,
		gateway.CodeReaderControllerMismatch: 409,
		gateway.CodePayloadTooLarge:          413,
		gateway.CodeInternal:                 500,
	}
	for code, want := range cases {
		if got := httpapi.StatusFor(code); got != want {
			t.Errorf("%s: expected %d, got %d", code, want, got)
		}
	}
}

// ── Heartbeat ────────────────────────────────────────────────────────────────

func TestHeartbeat_KnownController_OK(t *testing.T) {
	ts, _ := newTestServer(t)

	body := []byte(`{"controller_id":"ctrl-1","uptime_s":42}`)
	resp, err := http.Post(ts.URL+"/v1/heartbeat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var hbResp types.HeartbeatResponse
	if err := json.NewDecoder(resp.Body).Decode(&hbResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if !hbResp.OK {
		t.Error("expected ok=true")
	}
	if !hbResp.Known {
		t.Error("expected known=true for a configured controller")
	}
	if hbResp.ControllerID != "ctrl-1" {
		t.Errorf("expected controller_id=ctrl-1, got %q", hbResp.ControllerID)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestHeartbeat_UnknownController_StillAccepted(t *testing.T) {
	ts, _ := newTestServer(t)

	body := []byte(`{"controller_id":"unknown-device","uptime_s":1}`)
	resp, err := http.Post(ts.URL+"/v1/heartbeat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var hbResp types.HeartbeatResponse
	if err := json.NewDecoder(resp.Body).Decode(&hbResp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !hbResp.OK {
		t.Error("expected ok=true (heartbeats are accepted from unknown controllers)")
	}
	if hbResp.Known {
		t.Error("expected known=false for an unknown controller")
	}
}

func TestHeartbeat_MissingControllerID_400(t *testing.T) {
	ts, _ := newTestServer(t)

	body := []byte(`{"uptime_s":42}`)
	resp, err := http.Post(ts.URL+"/v1/heartbeat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHeartbeat_InvalidJSON_400(t *testing.T) {
	ts, _ := newTestServer(t)

	body := []byte(`not json at all`)
	resp, err := http.Post(ts.URL+"/v1/heartbeat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHeartbeat_OversizedBody_413(t *testing.T) {
	ts, _ := newTestServer(t)

	body := append([]byte(`{"controllerId":"`), bytes.Repeat([]byte("a"), 1<<20+64)...)
	body = append(body, `"}`...)
	resp, err := http.Post(ts.URL+"/v1/heartbeat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
