package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/types"
)

// Tx is the view of the store inside one unit of work.
type Tx interface {
	Directory
	AuditLog
}

// TxFn runs inside a transaction. Returning an error rolls back every write
// made through tx.
type TxFn func(ctx context.Context, tx Tx) error

// Store runs units of work atomically. One access decision, one door event or
// one reconciled batch item is one call to InTx.
type Store interface {
	InTx(ctx context.Context, fn TxFn) error
}

// ControllerStore backs the controller registry used by heartbeats.
type ControllerStore interface {
	IsKnown(ctx context.Context, controllerID string) (bool, error)
	MarkSeen(ctx context.Context, controllerID string, t time.Time) error
}

type HeartbeatRecord struct {
	ReceivedAt time.Time
	Request    types.HeartbeatRequest
}

type HeartbeatStore interface {
	RecordHeartbeat(ctx context.Context, controllerID string, rec HeartbeatRecord) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
