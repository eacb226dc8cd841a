package grpcapi_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/grpcapi"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/gateway"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/gateway/gatewaytest"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/types"
)

func newClient(t *testing.T) (*grpcapi.Client, *gatewaytest.Harness) {
	t.Helper()

	h := gatewaytest.New(t)
	srv := grpcapi.NewServer(h.Gateway, zap.NewNop())

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { srv.Stop(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return grpcapi.NewClient(conn), h
}

func TestValidate_RoundTrip(t *testing.T) {
	client, h := newClient(t)

	body, iv := h.Seal(t, types.ValidateRequest{ControllerID: "ctrl-1", ReaderRef: "reader-a", CredentialUID: "STAFF1"})
	out, echoed, err := client.Call(context.Background(), gateway.OpValidate, iv, body)
	require.NoError(t, err)
	assert.Equal(t, iv, echoed)

	var resp types.ValidateResponse
	h.Open(t, out, echoed, &resp)
	assert.Equal(t, "SUCCESS", resp.Result)
	assert.Equal(t, "STRIKE", resp.LockType)
}

func TestSync_RoundTrip(t *testing.T) {
	client, h := newClient(t)

	body, iv := h.Seal(t, types.SyncRequest{ControllerID: "ctrl-1"})
	out, _, err := client.Call(context.Background(), gateway.OpSync, iv, body)
	require.NoError(t, err)

	var resp types.SyncResponse
	h.Open(t, out, iv, &resp)
	require.Len(t, resp.Readers, 1)
	assert.Equal(t, []string{"STAFF1"}, resp.Readers[0].AllowedCredentials)
}

func TestErrors_MapToStatusCodes(t *testing.T) {
	client, h := newClient(t)
	ctx := context.Background()

	body, iv := h.Seal(t, types.PingRequest{ControllerID: "ctrl-1"})
	_, _, err := client.Call(ctx, gateway.OpPing, "", body)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, string(gateway.CodeInvalidNonce), status.Convert(err).Message())

	_, _, err = client.Call(ctx, gateway.OpPing, iv, body)
	require.NoError(t, err)
	_, _, err = client.Call(ctx, gateway.OpPing, iv, body)
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	body, iv = h.Seal(t, types.SyncRequest{ControllerID: "ghost"})
	_, _, err = client.Call(ctx, gateway.OpSync, iv, body)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestCodeFor(t *testing.T) {
	cases := map[gateway.Code]codes.Code{
		gateway.CodeInvalidNonce:             codes.InvalidArgument,
		gateway.CodeDecryptionFailed:         codes.InvalidArgument,
		gateway.CodeMalformedPayload:         codes.InvalidArgument,
		gateway.CodeReplayedNonce:            codes.AlreadyExists,
		gateway.CodeControllerNotFound:       codes.NotFound,
		gateway.CodeReaderNotFound:           codes.NotFound,
		gateway.CodeReaderControllerMismatch: codes.FailedPrecondition,
		gateway.CodePayloadTooLarge:          codes.ResourceExhausted,
		gateway.CodeInternal:                 codes.Internal,
	}
	for code, want := range cases {
		assert.Equal(t, want, grpcapi.CodeFor(code), string(code))
	}
}

func TestFullMethod(t *testing.T) {
	assert.Equal(t, "/portunus.v1.ControllerGateway/BulkEvents", grpcapi.FullMethod(gateway.OpBulk))
	assert.Empty(t, grpcapi.FullMethod(gateway.Operation("nope")))
}
