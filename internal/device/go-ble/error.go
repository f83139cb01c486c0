package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/srg/blecon/internal/device"
)

// NormalizeError maps known go-ble error strings to structured ConnectionError types.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", device.ErrAlreadyConnected, err)
	default:
		return err
	}
}

// transportError classifies a go-ble failure into a device.TransportError.
func transportError(op string, err error) error {
	if err == nil {
		return nil
	}
	err = NormalizeError(err)
	return &device.TransportError{Op: op, Status: classify(err), Err: err}
}

func classify(err error) device.Status {
	if errors.Is(err, context.DeadlineExceeded) {
		return device.StatusTimeout
	}
	if errors.Is(err, device.ErrNotConnected) || errors.Is(err, device.ErrBluetoothOff) {
		return device.StatusUnreachable
	}

	var attErr ble.ATTError
	if errors.As(err, &attErr) {
		switch attErr {
		case ble.ErrReadNotPerm, ble.ErrWriteNotPerm, ble.ErrAuthentication,
			ble.ErrAuthorization, ble.ErrInsuffEnc, ble.ErrInsuffEncrKeySize:
			return device.StatusAccessDenied
		default:
			return device.StatusProtocolError
		}
	}

	// CoreBluetooth reports ATT failures as NSError descriptions.
	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "not permitted"),
		containsIgnoreCase(msg, "insufficient authentication"),
		containsIgnoreCase(msg, "insufficient authorization"),
		containsIgnoreCase(msg, "insufficient encryption"):
		return device.StatusAccessDenied
	case containsIgnoreCase(msg, "timed out"), containsIgnoreCase(msg, "timeout"):
		return device.StatusTimeout
	case containsIgnoreCase(msg, "unreachable"), containsIgnoreCase(msg, "not found"):
		return device.StatusUnreachable
	}
	return device.StatusProtocolError
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
