// Package errors defines the error taxonomy shared by the bridge components.
// Callers classify errors with errors.As; every type here unwraps to its cause.
package errors

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by RoutingError.
var ErrNotFound = errors.New("not found")

// ErrQueueClosed is returned by a dispatch queue after shutdown.
var ErrQueueClosed = errors.New("queue closed")

// RoutingError reports an action with no routing entry. It rejects one action.
type RoutingError struct {
	Action string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("no routing entry for action %q", e.Action)
}

func (e *RoutingError) Unwrap() error { return ErrNotFound }

// EncodingError reports a parameter that is missing or cannot be coerced.
type EncodingError struct {
	Action    string
	Parameter string
	Err       error
}

func (e *EncodingError) Error() string {
	if e.Parameter == "" {
		return fmt.Sprintf("encode %s: %v", e.Action, e.Err)
	}
	return fmt.Sprintf("encode %s: parameter %q: %v", e.Action, e.Parameter, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// ConnectionError reports a transport failure on one vehicle port.
type ConnectionError struct {
	Vehicle string
	Port    int
	Op      string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s:%d: %v", e.Op, e.Vehicle, e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolViolationError reports a unit that breaks protocol rules. The unit is dropped.
type ProtocolViolationError struct {
	Vehicle string
	Reason  string
	Err     error
}

func (e *ProtocolViolationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol violation from %s: %s", e.Vehicle, e.Reason)
	}
	return fmt.Sprintf("protocol violation from %s: %s: %v", e.Vehicle, e.Reason, e.Err)
}

func (e *ProtocolViolationError) Unwrap() error { return e.Err }

// QueueSaturationError reports that a full queue dropped a command. Dropped
// is the correlation id of the evicted command; Incoming is set when the
// rejected command was the one being enqueued.
type QueueSaturationError struct {
	Vehicle  string
	Capacity int
	Dropped  string
	Incoming bool
}

func (e *QueueSaturationError) Error() string {
	which := "evicted queued command"
	if e.Incoming {
		which = "refused incoming command"
	}
	return fmt.Sprintf("queue for %s at capacity %d: %s %s", e.Vehicle, e.Capacity, which, e.Dropped)
}

// FatalSafetyError reports a safety violation. The vehicle only accepts
// safety commands until clearErrors is sent.
type FatalSafetyError struct {
	Vehicle string
	Reason  string
}

func (e *FatalSafetyError) Error() string {
	return fmt.Sprintf("safety violation on %s: %s", e.Vehicle, e.Reason)
}

// Kind returns a short, stable label for err, for metrics and logs.
func Kind(err error) string {
	var (
		routing    *RoutingError
		encoding   *EncodingError
		connection *ConnectionError
		violation  *ProtocolViolationError
		saturation *QueueSaturationError
		safety     *FatalSafetyError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &routing):
		return "routing"
	case errors.As(err, &encoding):
		return "encoding"
	case errors.As(err, &connection):
		return "connection"
	case errors.As(err, &violation):
		return "protocol_violation"
	case errors.As(err, &saturation):
		return "queue_saturation"
	case errors.As(err, &safety):
		return "fatal_safety"
	}
	return "other"
}
