package grpcapi

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/gateway"
)

type Server struct {
	grpcServer *grpc.Server
	gateway    *gateway.Gateway
	logger     *zap.Logger
}

func NewServer(gw *gateway.Gateway, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{gateway: gw, logger: logger}
	s.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(s.logUnary))
	desc := serviceDesc()
	s.grpcServer.RegisterService(&desc, s)
	return s
}

// Serve blocks accepting connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.grpcServer.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Stop drains in-flight calls, or cuts them off once ctx is done.
func (s *Server) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

func (s *Server) call(ctx context.Context, op gateway.Operation, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var iv string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(NonceKey); len(vals) > 0 {
			iv = vals[0]
		}
	}

	out, err := s.gateway.Handle(ctx, op, iv, in.GetValue())
	if err != nil {
		code := gateway.Classify(err)
		return nil, status.Error(CodeFor(code), string(code))
	}

	if err := grpc.SetHeader(ctx, metadata.Pairs(NonceKey, iv)); err != nil {
		return nil, status.Error(codes.Internal, string(gateway.CodeInternal))
	}
	return wrapperspb.Bytes(out), nil
}

// CodeFor maps an error code to its gRPC status code.
func CodeFor(code gateway.Code) codes.Code {
	switch code {
	case gateway.CodeInvalidNonce, gateway.CodeDecryptionFailed, gateway.CodeMalformedPayload:
		return codes.InvalidArgument
	case gateway.CodeReplayedNonce:
		return codes.AlreadyExists
	case gateway.CodeControllerNotFound, gateway.CodeReaderNotFound:
		return codes.NotFound
	case gateway.CodeReaderControllerMismatch:
		return codes.FailedPrecondition
	case gateway.CodePayloadTooLarge:
		return codes.ResourceExhausted
	}
	return codes.Internal
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now().UTC()
	resp, err := handler(ctx, req)
	s.logger.Info("grpc request",
		zap.String("method", info.FullMethod),
		zap.String("code", status.Code(err).String()),
		zap.Duration("dur", time.Since(start)),
	)
	return resp, err
}
