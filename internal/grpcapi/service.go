// Package grpcapi serves the enveloped controller operations over gRPC.
// Requests and responses are sealed envelopes carried as
// google.protobuf.BytesValue; the nonce travels in the x-iv metadata key
// and is echoed back in the response header.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/gateway"
)

const (
	ServiceName = "portunus.v1.ControllerGateway"

	// NonceKey is the metadata key carrying the envelope nonce.
	NonceKey = "x-iv"
)

// methods maps each RPC to its gateway operation.
var methods = []struct {
	name string
	op   gateway.Operation
}{
	{"Validate", gateway.OpValidate},
	{"DoorEvent", gateway.OpEvent},
	{"Sync", gateway.OpSync},
	{"BulkEvents", gateway.OpBulk},
	{"Ping", gateway.OpPing},
}

// FullMethod returns the fully-qualified RPC name for op.
func FullMethod(op gateway.Operation) string {
	for _, m := range methods {
		if m.op == op {
			return "/" + ServiceName + "/" + m.name
		}
	}
	return ""
}

type controllerGatewayServer interface {
	call(ctx context.Context, op gateway.Operation, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

func serviceDesc() grpc.ServiceDesc {
	desc := grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*controllerGatewayServer)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    "portunus/v1/controller_gateway.proto",
	}
	for _, m := range methods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: m.name,
			Handler:    unaryHandler(m.op, "/"+ServiceName+"/"+m.name),
		})
	}
	return desc
}

func unaryHandler(op gateway.Operation, fullMethod string) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(wrapperspb.BytesValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(controllerGatewayServer)
		if interceptor == nil {
			return s.call(ctx, op, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return s.call(ctx, op, req.(*wrapperspb.BytesValue))
		}
		return interceptor(ctx, in, info, handler)
	}
}
