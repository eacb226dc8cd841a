package types

// ValidateRequest asks for a real-time decision on a presented credential.
type ValidateRequest struct {
	ControllerID  string    `json:"controllerId" validate:"required"`
	ReaderRef     string    `json:"readerRef" validate:"required"`
	CredentialUID string    `json:"credentialUid" validate:"required"`
	Timestamp     Timestamp `json:"timestamp"`
}

// ValidateResponse carries the decision. LockType is set only on SUCCESS and
// Reason only on DENIED.
type ValidateResponse struct {
	Result    string `json:"result"`
	LockType  string `json:"lockType,omitempty"`
	ReaderRef string `json:"readerRef"`
	Reason    string `json:"reason,omitempty"`
}

// DoorEventRequest reports a door-state transition observed by a controller.
type DoorEventRequest struct {
	ControllerID  string    `json:"controllerId" validate:"required"`
	ReaderRef     string    `json:"readerRef" validate:"required"`
	CredentialUID string    `json:"credentialUid,omitempty"`
	EventType     string    `json:"eventType" validate:"required,oneof=OPEN CLOSE FORCED"`
	Timestamp     Timestamp `json:"timestamp"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
