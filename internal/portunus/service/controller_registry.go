package service

import (
	"context"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
)

type ControllerRegistry struct {
	store store.ControllerStore
	now   func() time.Time
}

func NewControllerRegistry(st store.ControllerStore, opts ...Option) *ControllerRegistry {
	o := buildOptions(opts)
	return &ControllerRegistry{store: st, now: o.now}
}

func (r *ControllerRegistry) IsKnown(ctx context.Context, controllerID string) (bool, error) {
	controllerID = strings.TrimSpace(controllerID)
	if controllerID == "" {
		return false, nil
	}
	return r.store.IsKnown(ctx, controllerID)
}

// NoteSeen records a check-in. Unknown controllers are registered disabled
// by the store.
func (r *ControllerRegistry) NoteSeen(ctx context.Context, controllerID string) error {
	controllerID = strings.TrimSpace(controllerID)
	if controllerID == "" {
		return nil
	}
	return r.store.MarkSeen(ctx, controllerID, r.now())
}
