// Package gateway is the transport-independent entry point for enveloped
// controller traffic. HTTP, gRPC and Kafka all hand it the operation name,
// the nonce header and the sealed body, and send back what it returns.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/envelope"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/replay"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/types"
)

type Operation string

const (
	OpValidate Operation = "validate"
	OpEvent    Operation = "event"
	OpSync     Operation = "sync"
	OpBulk     Operation = "bulk"
	OpPing     Operation = "ping"
)

func ParseOperation(s string) (Operation, error) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(s))); op {
	case OpValidate, OpEvent, OpSync, OpBulk, OpPing:
		return op, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
}

// Services are the engine components behind the operations.
type Services struct {
	Access     *service.AccessService
	Recorder   *service.AuditRecorder
	Sync       *service.SyncService
	Reconciler *service.Reconciler
	Heartbeats *service.HeartbeatService
}

type Gateway struct {
	env      *envelope.Envelope
	guard    replay.Guard
	svc      Services
	validate *validator.Validate
	logger   *zap.Logger
}

// New builds a Gateway. A nil guard disables replay protection.
func New(env *envelope.Envelope, guard replay.Guard, svc Services, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		env:      env,
		guard:    guard,
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Handle opens body with the nonce from nonceHeader, runs op and seals the
// response with the same nonce. The nonce is claimed only once the body has
// authenticated, so forged traffic cannot burn nonces.
func (g *Gateway) Handle(ctx context.Context, op Operation, nonceHeader string, body []byte) ([]byte, error) {
	resp, nonce, err := g.handle(ctx, op, nonceHeader, body)
	if err != nil {
		g.logFailure(op, err)
		return nil, err
	}
	sealed, err := g.env.SealJSON(resp, nonce)
	if err != nil {
		g.logFailure(op, err)
		return nil, err
	}
	return sealed, nil
}

func (g *Gateway) handle(ctx context.Context, op Operation, nonceHeader string, body []byte) (any, []byte, error) {
	nonce, err := envelope.DecodeNonce(nonceHeader)
	if err != nil {
		return nil, nil, err
	}
	plain, err := g.env.Open(body, nonce)
	if err != nil {
		return nil, nil, err
	}
	if g.guard != nil {
		if err := g.guard.Claim(ctx, nonce); err != nil {
			return nil, nil, err
		}
	}

	resp, err := g.dispatch(ctx, op, plain)
	if err != nil {
		return nil, nil, err
	}
	return resp, nonce, nil
}

func (g *Gateway) dispatch(ctx context.Context, op Operation, plain []byte) (any, error) {
	switch op {
	case OpValidate:
		var req types.ValidateRequest
		if err := g.decode(plain, &req); err != nil {
			return nil, err
		}
		return g.validateAccess(ctx, req)

	case OpEvent:
		var req types.DoorEventRequest
		if err := g.decode(plain, &req); err != nil {
			return nil, err
		}
		return g.doorEvent(ctx, req)

	case OpSync:
		var req types.SyncRequest
		if err := g.decode(plain, &req); err != nil {
			return nil, err
		}
		return g.syncController(ctx, req)

	case OpBulk:
		var req types.BulkEventsRequest
		if err := g.decode(plain, &req); err != nil {
			return nil, err
		}
		res, err := g.svc.Reconciler.Reconcile(ctx, req.ControllerID, req.Events)
		if err != nil {
			return nil, err
		}
		return types.BulkEventsResponse{
			Status:         "RECEIVED",
			AcceptedCount:  res.Accepted,
			ProcessedCount: res.Processed,
		}, nil

	case OpPing:
		var req types.PingRequest
		if err := g.decode(plain, &req); err != nil {
			return nil, err
		}
		return g.svc.Heartbeats.Ping(ctx, req)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
}

// decode unmarshals and validates a request. Validation errors name the
// failing field only.
func (g *Gateway) decode(plain []byte, v any) error {
	if err := envelope.DecodeJSON(plain, v); err != nil {
		return err
	}
	if err := g.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %s", envelope.ErrMalformedPayload, verrs[0].Field(), verrs[0].Tag())
		}
		return envelope.ErrMalformedPayload
	}
	return nil
}

func (g *Gateway) validateAccess(ctx context.Context, req types.ValidateRequest) (types.ValidateResponse, error) {
	d, err := g.svc.Access.Decide(ctx, service.DecisionInput{
		ControllerID:  req.ControllerID,
		ReaderRef:     req.ReaderRef,
		CredentialUID: req.CredentialUID,
		At:            req.Timestamp.Time,
	})
	if err != nil {
		return types.ValidateResponse{}, err
	}

	resp := types.ValidateResponse{
		Result:    string(d.Result),
		ReaderRef: req.ReaderRef,
	}
	if d.Granted() {
		resp.LockType = string(d.LockType)
	} else {
		resp.Reason = string(d.ReasonCode)
	}
	return resp, nil
}

func (g *Gateway) doorEvent(ctx context.Context, req types.DoorEventRequest) (types.StatusResponse, error) {
	typ, err := service.ParseEventType(req.EventType)
	if err != nil {
		return types.StatusResponse{}, err
	}
	if typ == store.EventAccess {
		return types.StatusResponse{}, fmt.Errorf("%w: %q", service.ErrUnknownEventType, req.EventType)
	}

	_, err = g.svc.Recorder.RecordDoorEvent(ctx, service.DoorEventInput{
		ControllerID:  req.ControllerID,
		ReaderRef:     req.ReaderRef,
		CredentialUID: req.CredentialUID,
		EventType:     typ,
		At:            req.Timestamp.Time,
	})
	if err != nil {
		return types.StatusResponse{}, err
	}
	return types.StatusResponse{Status: "OK"}, nil
}

func (g *Gateway) syncController(ctx context.Context, req types.SyncRequest) (types.SyncResponse, error) {
	snap, err := g.svc.Sync.SyncController(ctx, req.ControllerID)
	if err != nil {
		return types.SyncResponse{}, err
	}

	resp := types.SyncResponse{Readers: make([]types.SyncReader, 0, len(snap))}
	for _, r := range snap {
		resp.Readers = append(resp.Readers, types.SyncReader{
			ReaderRef:          r.ReaderRef,
			AllowedCredentials: r.CredentialUIDs,
		})
	}
	return resp, nil
}

// logFailure never logs payload content; the error text of transport and
// validation failures carries field names at most.
func (g *Gateway) logFailure(op Operation, err error) {
	code := Classify(err)
	if code == CodeInternal {
		g.logger.Error("gateway request failed", zap.String("op", string(op)), zap.Error(err))
		return
	}
	g.logger.Warn("gateway request rejected", zap.String("op", string(op)), zap.String("code", string(code)))
}
