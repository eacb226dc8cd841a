package store

import (
	"context"
	"time"
)

type AuditResult string

const (
	ResultSuccess AuditResult = "SUCCESS"
	ResultDenied  AuditResult = "DENIED"
)

type EventType string

const (
	EventAccess EventType = "ACCESS"
	EventOpen   EventType = "OPEN"
	EventClose  EventType = "CLOSE"
	EventForced EventType = "FORCED"
)

// ReasonCode is the external reason reported to controllers and stored with
// every audit record.
type ReasonCode string

const (
	ReasonGranted                  ReasonCode = "ACCESS_GRANTED"
	ReasonControllerNotFound       ReasonCode = "CONTROLLER_NOT_FOUND"
	ReasonReaderNotFound           ReasonCode = "READER_NOT_FOUND"
	ReasonReaderControllerMismatch ReasonCode = "READER_CONTROLLER_MISMATCH"
	ReasonCardInvalid              ReasonCode = "CARD_INVALID"
	ReasonEmployeeInactive         ReasonCode = "EMPLOYEE_INACTIVE"
	ReasonNoAccessGroup            ReasonCode = "NO_ACCESS_GROUP"
	ReasonDoorInactive             ReasonCode = "DOOR_INACTIVE"
	ReasonAccessNotAllowed         ReasonCode = "ACCESS_NOT_ALLOWED"

	ReasonDoorOpened  ReasonCode = "DOOR_OPENED"
	ReasonDoorClosed  ReasonCode = "DOOR_CLOSED"
	ReasonForcedEntry ReasonCode = "FORCED_ENTRY"
)

// AuditRecord is one decision or door-state transition. The presented refs
// are what the controller sent; the resolved IDs are empty when the lookup
// failed. A record is inserted once and may later receive OpenedAt and then
// ClosedAt; once closed it is final. Records are never deleted.
type AuditRecord struct {
	ID        int64
	EventType EventType

	ControllerRef string
	ReaderRef     string
	CredentialUID string

	ControllerID string
	ReaderID     string
	DoorID       string
	CredentialID string
	EmployeeID   string

	Result       AuditResult
	ReasonCode   ReasonCode
	ReasonDetail string

	EventTime      time.Time
	OpenedAt       *time.Time
	ClosedAt       *time.Time
	OpenSeconds    *int64
	AvgOpenSeconds *float64
	ClockSkew      bool

	RecordedAt time.Time
}

// CloseUpdate is the terminal mutation of an audit record.
type CloseUpdate struct {
	ClosedAt       time.Time
	OpenSeconds    int64
	AvgOpenSeconds float64
	ClockSkew      bool
}

// AuditLog is the write side of the audit trail.
type AuditLog interface {
	// InsertAudit appends rec and sets rec.ID.
	InsertAudit(ctx context.Context, rec *AuditRecord) error

	// LatestPendingGrant returns the newest granted ACCESS record for doorID
	// (and credentialID, when non-empty) with no opened_at and an event time
	// in [since, until]. Ties on event time go to the highest ID.
	LatestPendingGrant(ctx context.Context, doorID, credentialID string, since, until time.Time) (AuditRecord, error)

	// LatestOpen returns the newest record for doorID (and credentialID, when
	// non-empty) with opened_at set and closed_at null, ordered by opened_at
	// then ID.
	LatestOpen(ctx context.Context, doorID, credentialID string) (AuditRecord, error)

	MarkOpened(ctx context.Context, auditID int64, openedAt time.Time) error
	MarkClosed(ctx context.Context, auditID int64, upd CloseUpdate) error

	// RecentOpenSeconds returns up to limit non-null open_seconds values for
	// doorID, newest first.
	RecentOpenSeconds(ctx context.Context, doorID string, limit int) ([]int64, error)
}
