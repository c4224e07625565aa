package domain

import "errors"

var (
	// ErrValidation: the record failed normalization (bad amount). Surfaced
	// synchronously to the caller of Save.
	ErrValidation = errors.New("validation failed")

	// ErrStorageUnavailable: the key/value backend could not complete a
	// read or write. The store does not retry internally.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrDecode: a stored value could not be decoded. Treated as absence by
	// the store, so callers normally never see it.
	ErrDecode = errors.New("decode failed")

	// ErrNotFound: the record id does not exist.
	ErrNotFound = errors.New("expense not found")

	// ErrRequestTimeout: no inference response arrived before the deadline.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrTransportUnavailable: no inference channel is attached.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrResponseValidation: the inference response payload was malformed
	// or incomplete for its request type.
	ErrResponseValidation = errors.New("response validation failed")

	// ErrRequestCleared: the pending request table was forcibly cleared.
	ErrRequestCleared = errors.New("request cleared")
)
