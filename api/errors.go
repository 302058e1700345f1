// File: api/errors.go
// Package api defines common error types for the proctree library.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import (
	"errors"
	"fmt"
)

// Sentinel errors for the fatal and terminal conditions of the library.
// Transient socket errors are never sentinels; they are wrapped with errno
// context and surfaced through Listener.OnRouterError.
var (
	ErrLoopback           = errors.New("router: send to own pid")
	ErrNoRoute            = errors.New("router: no neighbour endpoint")
	ErrUrgentReentry      = errors.New("router: urgent drain re-entered")
	ErrProtocolFault      = errors.New("endpoint: wire synchronization lost")
	ErrEndpointExists     = errors.New("router: endpoint already registered")
	ErrForkFailed         = errors.New("executor: fork failed")
	ErrUnknownEntry       = errors.New("executor: child entry not registered")
	ErrShuttingDown       = errors.New("executor: shutting down")
	ErrBarrierBroken      = errors.New("barrier: broken")
	ErrBarrierTimeout     = errors.New("barrier: wait timed out")
	ErrBarrierInterrupted = errors.New("barrier: wait interrupted")
	ErrNotSupported       = errors.New("operation not supported on this platform")
)

// ErrorCode classifies structured errors.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeIO
	ErrCodeProtocol
	ErrCodeLoopback
	ErrCodeUrgentReentry
	ErrCodeFork
	ErrCodeListener
	ErrCodeBarrier
	ErrCodeInternal
)

// Error carries a code, a message and optional context around a cause.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Cause != nil && len(e.Context) > 0:
		return fmt.Sprintf("%s: %v (context: %+v)", e.Message, e.Cause, e.Context)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	case len(e.Context) > 0:
		return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
	}
	return e.Message
}

// Unwrap exposes the cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// NewError creates a structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a structured error around a cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
