package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// controllerLayout is the zone-less form controllers send when they have no
// timezone configured. It is read as UTC.
const controllerLayout = "2006-01-02T15:04:05"

// Timestamp is a device-reported time. It accepts RFC3339 with or without
// fractional seconds and the controller's zone-less layout. A JSON null or
// empty string leaves it zero.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp { return Timestamp{Time: t.UTC()} }

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string")
	}
	if strings.TrimSpace(s) == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, ok := ParseTimestamp(s)
	if !ok {
		return fmt.Errorf("unrecognised timestamp layout")
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// ParseTimestamp parses a device timestamp and returns it in UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// Try RFC3339 first (most likely from a well-behaved device).
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.ParseInLocation(controllerLayout, s, time.UTC); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation(controllerLayout+".999999999", s, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}
