package db

import "errors"

var (
	ErrStorageRequired       = errors.New("storage is required")
	ErrInvalidRetryPolicy    = errors.New("invalid retry policy")
	ErrStorageCloseFail      = errors.New("storage close failed")
	ErrCompactionUnsupported = errors.New("compaction unsupported by storage")
	ErrRetriesExhausted      = errors.New("retries exhausted")
)
