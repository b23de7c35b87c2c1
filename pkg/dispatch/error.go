package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// DispatchError wraps downstream handler failures with status metadata.
type DispatchError struct {
	Status    int
	Temporary bool
	Err       error
}

func (e *DispatchError) Error() string {
	if e == nil {
		return "dispatch error"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("dispatch error (status=%d)", e.Status)
}

func (e *DispatchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether a dispatch failure is safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) {
		if dispatchErr.Temporary {
			return true
		}
		if dispatchErr.Status == 429 || (dispatchErr.Status >= 500 && dispatchErr.Status <= 599) {
			return true
		}
	}
	return false
}
