package grpcapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/gateway"
)

// Client calls the controller gateway with already-sealed bodies.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call sends body under nonce header iv and returns the sealed reply and
// the nonce the server echoed.
func (c *Client) Call(ctx context.Context, op gateway.Operation, iv string, body []byte) ([]byte, string, error) {
	method := FullMethod(op)
	if method == "" {
		return nil, "", fmt.Errorf("%w: %q", gateway.ErrUnknownOperation, op)
	}

	ctx = metadata.AppendToOutgoingContext(ctx, NonceKey, iv)
	out := new(wrapperspb.BytesValue)
	var header metadata.MD
	if err := c.cc.Invoke(ctx, method, wrapperspb.Bytes(body), out, grpc.Header(&header)); err != nil {
		return nil, "", err
	}

	var echoed string
	if vals := header.Get(NonceKey); len(vals) > 0 {
		echoed = vals[0]
	}
	return out.GetValue(), echoed, nil
}
