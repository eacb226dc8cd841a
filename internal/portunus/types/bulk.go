package types

import (
	"encoding/json"
	"fmt"
)

// BulkEvent is one entry drained from a controller's offline queue. Entries
// are validated individually while the batch is applied, so none of the
// fields carry validation tags.
type BulkEvent struct {
	ReaderRef     string    `json:"readerRef"`
	CredentialUID string    `json:"credentialUid,omitempty"`
	EventType     string    `json:"eventType"`
	EventTime     Timestamp `json:"eventTime"`

	// DecodeErr is set when the entry itself could not be decoded. The
	// entry stays in the batch and is skipped when the batch is applied.
	DecodeErr error `json:"-"`
}

// UnmarshalJSON never fails on a well-formed JSON value. A bad field is
// recorded in DecodeErr so one entry cannot reject the whole batch.
func (e *BulkEvent) UnmarshalJSON(b []byte) error {
	type entry BulkEvent
	var v entry
	if err := json.Unmarshal(b, &v); err != nil {
		*e = BulkEvent{DecodeErr: fmt.Errorf("decode entry: %w", err)}
		return nil
	}
	*e = BulkEvent(v)
	return nil
}

type BulkEventsRequest struct {
	ControllerID string      `json:"controllerId" validate:"required"`
	Events       []BulkEvent `json:"events"`
}

type BulkEventsResponse struct {
	Status         string `json:"status"`
	AcceptedCount  int    `json:"acceptedCount"`
	ProcessedCount int    `json:"processedCount"`
}
