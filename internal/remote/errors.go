package remote

import (
	"errors"
	"fmt"
	"time"
)

// ErrSymbolNotFound marks a companion export that could not be resolved.
// Invoker.Call treats it as a soft failure and returns (0, nil).
var ErrSymbolNotFound = errors.New("symbol not found in companion module")

// AccessError is returned when a foreign process cannot be opened
type AccessError struct {
	Pid uint32
	Err error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("open process %d: %v", e.Pid, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// LoaderError is returned when the companion module cannot be loaded
// into a foreign process.
type LoaderError struct {
	Op   string
	Path string
	Err  error
}

func (e *LoaderError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load module: %s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("load module %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *LoaderError) Unwrap() error { return e.Err }

// InvocationError is returned when a remote call fails before producing a result
type InvocationError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke %s: %s: %v", e.Symbol, e.Op, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// TimeoutError is returned when a remote thread outlives its wait budget.
// The thread keeps running in the foreign process.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: remote thread did not finish within %s", e.Op, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
