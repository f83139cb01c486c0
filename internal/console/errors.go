package console

import (
	"errors"
	"fmt"

	"github.com/srg/blecon/internal/device"
	"github.com/srg/blecon/internal/engine"
	"github.com/srg/blecon/internal/gatt"
)

// ErrUnknownCommand is returned for verbs the console does not know.
var ErrUnknownCommand = errors.New(`unknown command, type "?" for help`)

// FormatError renders err the way the console reports it.
func FormatError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, gatt.ErrNoDeviceConnected):
		return "No BLE device connected."
	case errors.Is(err, gatt.ErrNoServiceSelected):
		return "No service is selected."
	case errors.Is(err, gatt.ErrNoSubscriptions):
		return "No subscription for value changes found."
	case errors.Is(err, engine.ErrRetryTimeout):
		return fmt.Sprintf("Timeout: %v", err)
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off."
	default:
		return err.Error()
	}
}
