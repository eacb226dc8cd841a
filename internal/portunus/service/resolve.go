package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
)

// activeController loads a controller and fails with ErrControllerNotFound
// when it is missing, disabled or revoked.
func activeController(ctx context.Context, dir store.Directory, controllerID string) (store.Controller, error) {
	c, err := dir.ControllerByID(ctx, controllerID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Controller{}, ErrControllerNotFound
	}
	if err != nil {
		return store.Controller{}, fmt.Errorf("load controller: %w", err)
	}
	if !c.Active() {
		return c, ErrControllerNotFound
	}
	return c, nil
}

// controllerReader resolves an active reader owned by an active controller.
// The controller is returned even when the reader step fails so callers can
// keep what was resolved.
func controllerReader(ctx context.Context, dir store.Directory, controllerID, readerRef string) (store.Controller, store.Reader, error) {
	c, err := activeController(ctx, dir, controllerID)
	if err != nil {
		return c, store.Reader{}, err
	}

	r, err := dir.ReaderByRef(ctx, readerRef)
	if errors.Is(err, store.ErrNotFound) {
		return c, store.Reader{}, ErrReaderNotFound
	}
	if err != nil {
		return c, store.Reader{}, fmt.Errorf("load reader: %w", err)
	}
	if !r.Active {
		return c, r, ErrReaderNotFound
	}
	if r.ControllerID != c.ID {
		return c, r, ErrReaderControllerMismatch
	}
	return c, r, nil
}
