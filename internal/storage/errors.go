package storage

import "errors"

var (
	ErrKeyNotFound    = errors.New("key not found")
	ErrCorruptData    = errors.New("corrupt data")
	ErrInvalidPath    = errors.New("invalid path")
	ErrInvalidTxn     = errors.New("transaction is nil")
	ErrStorageClosed  = errors.New("storage closed")
	ErrUnknownBackend = errors.New("unknown storage backend")
)
