package billing

import "errors"

var (
	ErrOutOfRange          = errors.New("record index out of range")
	ErrMalformedStoredData = errors.New("malformed stored data")
	ErrPersistenceFailure  = errors.New("persistence failure")
	ErrCustomerNotFound    = errors.New("customer not found")
	ErrCustomerExists      = errors.New("customer already exists")
	ErrCustomerIDRequired  = errors.New("customer id is required")
	ErrInvalidFee          = errors.New("monthly fee must be greater than zero")
	ErrStoreRequired       = errors.New("store is required")
	ErrNotLoaded           = errors.New("roster not loaded")
)
