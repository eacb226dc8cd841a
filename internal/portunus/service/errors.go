package service

import "errors"

var (
	ErrInvalidControllerID = errors.New("controllerId is required")

	ErrControllerNotFound       = errors.New("controller not found")
	ErrReaderNotFound           = errors.New("reader not found")
	ErrReaderControllerMismatch = errors.New("reader is not bound to controller")
	ErrReaderUnbound            = errors.New("reader has no door")

	ErrUnknownEventType = errors.New("unknown event type")
	ErrMissingEventTime = errors.New("event time is required")
)
