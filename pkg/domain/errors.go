package domain

import "errors"

var (
	ErrEmptySelection      = errors.New("empty selection")
	ErrUnsupportedSource   = errors.New("unsupported selection source")
	ErrUnroutableSelection = errors.New("unroutable selection type")
	ErrSessionNotActive    = errors.New("session not active")
	ErrSessionNotFound     = errors.New("session not found")
	ErrNoContent           = errors.New("no extractable content")
	ErrSourceUnavailable   = errors.New("selection source unavailable")
)

// AdapterError classifies an AI adapter failure. Transient failures (timeout,
// rate-limit, connectivity) are eligible for bounded retry; permanent ones
// (rejected or unprocessable input) surface immediately.
type AdapterError struct {
	Reason    string
	Transient bool
	Err       error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *AdapterError) Unwrap() error { return e.Err }

func NewTransientError(reason string, err error) *AdapterError {
	return &AdapterError{Reason: reason, Transient: true, Err: err}
}

func NewPermanentError(reason string, err error) *AdapterError {
	return &AdapterError{Reason: reason, Transient: false, Err: err}
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Transient
	}
	return false
}
