package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/types"
)

type HeartbeatService struct {
	heartbeatStore store.HeartbeatStore
	registry       *ControllerRegistry
	now            func() time.Time
	logger         *zap.Logger
}

func NewHeartbeatService(hs store.HeartbeatStore, reg *ControllerRegistry, opts ...Option) *HeartbeatService {
	o := buildOptions(opts)
	return &HeartbeatService{heartbeatStore: hs, registry: reg, now: o.now, logger: o.logger}
}

// Record stores an unenveloped device heartbeat. Unknown controllers are
// accepted and reported with Known=false.
func (s *HeartbeatService) Record(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	controllerID := strings.TrimSpace(req.ControllerID)
	if controllerID == "" {
		return types.HeartbeatResponse{}, ErrInvalidControllerID
	}

	known, err := s.registry.IsKnown(ctx, controllerID)
	if err != nil {
		return types.HeartbeatResponse{}, err
	}
	if err := s.registry.NoteSeen(ctx, controllerID); err != nil {
		s.logger.Warn("note seen failed", zap.String("controller_id", controllerID), zap.Error(err))
	}

	now := s.now().UTC()
	rec := store.HeartbeatRecord{
		ReceivedAt: now,
		Request:    req,
	}

	if err := s.heartbeatStore.RecordHeartbeat(ctx, controllerID, rec); err != nil {
		return types.HeartbeatResponse{}, fmt.Errorf("record heartbeat: %w", err)
	}

	return types.HeartbeatResponse{
		OK:           true,
		Known:        known,
		ControllerID: controllerID,
		ServerTime:   now.Format(time.RFC3339Nano),
	}, nil
}

// Ping is the enveloped liveness check. Only active controllers may use it.
func (s *HeartbeatService) Ping(ctx context.Context, req types.PingRequest) (types.PingResponse, error) {
	controllerID := strings.TrimSpace(req.ControllerID)
	if controllerID == "" {
		return types.PingResponse{}, ErrInvalidControllerID
	}

	known, err := s.registry.IsKnown(ctx, controllerID)
	if err != nil {
		return types.PingResponse{}, err
	}
	if !known {
		return types.PingResponse{}, ErrControllerNotFound
	}

	now := s.now().UTC()
	rec := store.HeartbeatRecord{
		ReceivedAt: now,
		Request:    types.HeartbeatRequest{ControllerID: controllerID},
	}
	if err := s.heartbeatStore.RecordHeartbeat(ctx, controllerID, rec); err != nil {
		return types.PingResponse{}, fmt.Errorf("record ping: %w", err)
	}

	return types.PingResponse{
		Status:     "OK",
		ServerTime: now.Format(time.RFC3339Nano),
	}, nil
}
