package gateway

import (
	"errors"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/envelope"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/replay"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/service"
)

var ErrUnknownOperation = errors.New("unknown operation")

// Code is the error identifier sent to controllers on every transport.
type Code string

const (
	CodeInvalidNonce             Code = "invalid_nonce"
	CodeDecryptionFailed         Code = "decryption_failed"
	CodeMalformedPayload         Code = "malformed_payload"
	CodeReplayedNonce            Code = "replayed_nonce"
	CodeControllerNotFound       Code = "controller_not_found"
	CodeReaderNotFound           Code = "reader_not_found"
	CodeReaderControllerMismatch Code = "reader_controller_mismatch"
	CodePayloadTooLarge          Code = "payload_too_large"
	CodeInternal                 Code = "internal_error"
)

// Classify maps an error returned by Handle to its wire code. Anything it
// does not recognize is internal.
func Classify(err error) Code {
	switch {
	case errors.Is(err, envelope.ErrInvalidNonce):
		return CodeInvalidNonce
	case errors.Is(err, envelope.ErrDecryptionFailed):
		return CodeDecryptionFailed
	case errors.Is(err, envelope.ErrMalformedPayload),
		errors.Is(err, service.ErrInvalidControllerID),
		errors.Is(err, service.ErrUnknownEventType),
		errors.Is(err, ErrUnknownOperation):
		return CodeMalformedPayload
	case errors.Is(err, replay.ErrReplayedNonce):
		return CodeReplayedNonce
	case errors.Is(err, service.ErrControllerNotFound):
		return CodeControllerNotFound
	case errors.Is(err, service.ErrReaderNotFound),
		errors.Is(err, service.ErrReaderUnbound):
		return CodeReaderNotFound
	case errors.Is(err, service.ErrReaderControllerMismatch):
		return CodeReaderControllerMismatch
	}
	return CodeInternal
}

// ErrorBody is the plain JSON document carried by error responses.
type ErrorBody struct {
	Error Code `json:"error"`
}
