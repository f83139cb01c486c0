package gatt

import "fmt"

// AddressErrorKind classifies why an address token could not be resolved.
type AddressErrorKind string

const (
	Malformed         AddressErrorKind = "malformed address"
	NotFound          AddressErrorKind = "not found"
	NoServiceSelected AddressErrorKind = "no service selected"
)

// AddressError reports a service/characteristic token that does not resolve.
type AddressError struct {
	Kind  AddressErrorKind
	Token string
}

func (e *AddressError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Token == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%q: %s", e.Token, e.Kind)
}

// Is allows errors.Is to compare AddressError values by Kind
func (e *AddressError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*AddressError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// StateErrorKind classifies an operation attempted in the wrong session state.
type StateErrorKind string

const (
	NoDeviceConnected StateErrorKind = "no device connected"
	AlreadySubscribed StateErrorKind = "already subscribed"
	NotSubscribed     StateErrorKind = "not subscribed"
	NoSubscriptions   StateErrorKind = "no subscriptions"
	HandleReleased    StateErrorKind = "attribute handle released"
)

// StateError reports an operation that is not valid in the current state.
type StateError struct {
	Kind StateErrorKind
	Msg  string
}

func (e *StateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Msg, e.Kind)
}

// Is allows errors.Is to compare StateError values by Kind
func (e *StateError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*StateError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors
var (
	ErrMalformed         = &AddressError{Kind: Malformed}
	ErrNotFound          = &AddressError{Kind: NotFound}
	ErrNoServiceSelected = &AddressError{Kind: NoServiceSelected}

	ErrNoDeviceConnected = &StateError{Kind: NoDeviceConnected}
	ErrAlreadySubscribed = &StateError{Kind: AlreadySubscribed}
	ErrNotSubscribed     = &StateError{Kind: NotSubscribed}
	ErrNoSubscriptions   = &StateError{Kind: NoSubscriptions}
	ErrHandleReleased    = &StateError{Kind: HandleReleased}
)
