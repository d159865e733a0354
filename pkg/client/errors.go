package client

import "errors"

var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrOutOfRange       = errors.New("record index out of range")
	ErrUnavailable      = errors.New("billing service unavailable")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnsupported      = errors.New("operation not supported")
	ErrRetryExhausted   = errors.New("retry attempts exhausted")
	ErrRequestFailed    = errors.New("request failed")
	ErrResponseTooLarge = errors.New("response too large")
)
