package consts

import "errors"

var (
	ErrFolderExists   = errors.New("folder already exists")
	ErrFolderNotFound = errors.New("folder not found")

	ErrMessageNotFound  = errors.New("message not found")
	ErrMalformedMessage = errors.New("malformed message")

	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")

	ErrServerExists      = errors.New("server already exists")
	ErrServerUnknown     = errors.New("unknown server")
	ErrServerUnreachable = errors.New("server unreachable")

	ErrRouteUnavailable = errors.New("route unavailable")

	ErrQueueEmpty = errors.New("queue is empty")

	ErrFilterExists = errors.New("filter already exists")
)
