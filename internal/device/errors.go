package device

import (
	"errors"
	"fmt"
)

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	BluetoothOff     ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}
)

// Status is the outcome code a transport call failed with.
type Status string

const (
	StatusUnreachable   Status = "unreachable"
	StatusAccessDenied  Status = "access_denied"
	StatusProtocolError Status = "protocol_error"
	StatusTimeout       Status = "timeout"
)

// TransportError is a failed transport call together with its status.
type TransportError struct {
	Op     string // "connect", "services", "characteristics", "read", "write", "subscribe", "unsubscribe"
	Status Status
	Err    error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s failed: %s", e.Op, e.Status)
	}
	return fmt.Sprintf("%s failed: %s: %v", e.Op, e.Status, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to compare TransportError values by Status
func (e *TransportError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*TransportError)
	if !ok {
		return false
	}
	return t.Status == "" || e.Status == t.Status
}

// Predefined sentinel errors for transport outcomes
var (
	ErrTransport     = &TransportError{}
	ErrUnreachable   = &TransportError{Status: StatusUnreachable}
	ErrAccessDenied  = &TransportError{Status: StatusAccessDenied}
	ErrProtocol      = &TransportError{Status: StatusProtocolError}
	ErrTransportTime = &TransportError{Status: StatusTimeout}
)

// StatusOf returns the transport status carried by err, or "" when err is
// not a transport failure.
func StatusOf(err error) Status {
	var terr *TransportError
	if errors.As(err, &terr) {
		return terr.Status
	}
	return ""
}
