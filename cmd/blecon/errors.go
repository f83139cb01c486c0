package main

import (
	"errors"
	"fmt"

	"github.com/srg/blecon/internal/device"
)

// ExitCodeError ends the process with Code and no message. The console
// reports its own errors, so only the accumulated exit code is left.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// FormatUserError turns startup failures into a message for the terminal.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off"
	default:
		return err.Error()
	}
}
