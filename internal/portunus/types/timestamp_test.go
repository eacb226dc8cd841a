package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/types"
)

func TestParseTimestamp_Layouts(t *testing.T) {
	want := time.Date(2026, 1, 27, 15, 30, 0, 0, time.UTC)

	cases := []string{
		"2026-01-27T15:30:00Z",
		"2026-01-27T15:30:00.000Z",
		"2026-01-27T16:30:00+01:00",
		"2026-01-27T15:30:00",
		"2026-01-27T15:30:00.000",
	}
	for _, in := range cases {
		got, ok := types.ParseTimestamp(in)
		if !ok {
			t.Errorf("%q: expected parse success", in)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("%q: expected %v, got %v", in, want, got)
		}
		if got.Location() != time.UTC {
			t.Errorf("%q: expected UTC, got %v", in, got.Location())
		}
	}
}

func TestParseTimestamp_Rejects(t *testing.T) {
	for _, in := range []string{"", "  ", "yesterday", "27/01/2026 15:30"} {
		if _, ok := types.ParseTimestamp(in); ok {
			t.Errorf("%q: expected parse failure", in)
		}
	}
}

func TestTimestamp_JSON(t *testing.T) {
	var req types.ValidateRequest
	err := json.Unmarshal([]byte(`{"controllerId":"c","readerRef":"r","credentialUid":"u","timestamp":"2026-01-27T15:30:00"}`), &req)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Timestamp.Hour() != 15 || req.Timestamp.Minute() != 30 {
		t.Errorf("unexpected timestamp %v", req.Timestamp.Time)
	}

	var empty types.PingRequest
	if err := json.Unmarshal([]byte(`{"controllerId":"c","timestamp":null}`), &empty); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !empty.Timestamp.IsZero() {
		t.Error("expected zero timestamp for null")
	}

	if err := json.Unmarshal([]byte(`{"controllerId":"c","timestamp":"soon"}`), &empty); err == nil {
		t.Error("expected error for unparseable timestamp")
	}

	out, err := json.Marshal(types.NewTimestamp(time.Date(2026, 1, 27, 9, 0, 5, 0, time.UTC)))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `"2026-01-27T09:00:05Z"` {
		t.Errorf("unexpected encoding %s", out)
	}
}
