package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("not found")

type LockType string

const (
	LockMagnetic LockType = "MAGNETIC"
	LockStrike   LockType = "STRIKE"
)

type AccessType string

const (
	AccessAllow AccessType = "ALLOW"
	AccessDeny  AccessType = "DENY"
)

// Controller is a physical gateway keyed by its hardware identifier.
// Unknown controllers are registered disabled when they first check in, so
// only an admin action makes one active.
type Controller struct {
	ID          string
	DisplayName string
	Enabled     bool
	RevokedAt   *time.Time
	LastSeenAt  *time.Time
}

func (c Controller) Active() bool { return c.Enabled && c.RevokedAt == nil }

// Reader is a sensor owned by a controller. Ref is the opaque identifier the
// controller uses on the wire; DoorID is empty when the reader is unbound.
type Reader struct {
	ID           string
	Ref          string
	ControllerID string
	DoorID       string
	Active       bool
}

type Door struct {
	ID       string
	Name     string
	LockType LockType
	Active   bool
}

// Employee owns credentials. AccessGroupID is empty when the employee has no
// group, which means they can never be granted access.
type Employee struct {
	ID            string
	Name          string
	AccessGroupID string
	Active        bool
}

type AccessGroup struct {
	ID   string
	Name string
}

// Credential is a card or tag. ExpiresAt nil means it never expires.
type Credential struct {
	ID         string
	UID        string
	EmployeeID string
	IssuedAt   time.Time
	ExpiresAt  *time.Time
	Active     bool
}

// UsableAt reports whether the credential may be used at t, i.e. it is active
// and issued_at <= t < expires_at.
func (c Credential) UsableAt(t time.Time) bool {
	if !c.Active {
		return false
	}
	if t.Before(c.IssuedAt) {
		return false
	}
	if c.ExpiresAt != nil && !t.Before(*c.ExpiresAt) {
		return false
	}
	return true
}

// DoorRule grants or denies an access group on a door. Several active rules
// may exist for the same (group, door) key.
type DoorRule struct {
	ID            int64
	AccessGroupID string
	DoorID        string
	AccessType    AccessType
	Active        bool
}

// Directory is the read side of the relational store used by decisions and
// synchronization. Single-row lookups return ErrNotFound when nothing matches.
type Directory interface {
	ControllerByID(ctx context.Context, controllerID string) (Controller, error)
	ReaderByRef(ctx context.Context, readerRef string) (Reader, error)
	ReadersByController(ctx context.Context, controllerID string) ([]Reader, error)
	DoorByID(ctx context.Context, doorID string) (Door, error)
	CredentialByUID(ctx context.Context, uid string) (Credential, error)
	CredentialsByEmployees(ctx context.Context, employeeIDs []string) ([]Credential, error)
	EmployeeByID(ctx context.Context, employeeID string) (Employee, error)
	EmployeesByGroups(ctx context.Context, groupIDs []string) ([]Employee, error)

	// DoorRules returns every rule row for (groupID, doorID), active or not.
	DoorRules(ctx context.Context, groupID, doorID string) ([]DoorRule, error)
	// RulesByDoor returns every rule row for doorID, active or not.
	RulesByDoor(ctx context.Context, doorID string) ([]DoorRule, error)
}
