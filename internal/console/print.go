package console

import (
	"strconv"
	"strings"
	"time"

	"github.com/srg/blecon/internal/device"
	"github.com/srg/blecon/internal/engine"
	"github.com/srg/blecon/internal/gatt"
)

var deviceVars = []string{"%mac", "%addr", "%name", "%stat", "%id"}

// expandPrint substitutes the time and device variables of the print
// command and expands escapes. Device variables need a connected device.
func expandPrint(text string, p device.Peripheral, now time.Time) (string, error) {
	usesDevice := false
	for _, v := range deviceVars {
		if strings.Contains(text, v) {
			usesDevice = true
			break
		}
	}
	if usesDevice && (p == nil || p.Status() != device.Connected) {
		return "", gatt.ErrNoDeviceConnected
	}

	zone := "GMT " + now.Format("-07:00")
	pairs := []string{
		"%NOW", now.Format("Monday, January 2, 2006 3:04:05 PM") + " " + zone,
		"%now", now.Format("1/2/2006 3:04 PM"),
		"%HH", now.Format("15"),
		"%hh", now.Format("03"),
		"%mm", now.Format("04"),
		"%ss", now.Format("05"),
		"%D", now.Format("Monday, January 2, 2006"),
		"%d", now.Format("1/2/2006"),
		"%T", now.Format("3:04:05 PM") + " " + zone,
		"%t", now.Format("3:04 PM"),
		"%z", zone,
	}
	if usesDevice {
		pairs = append(pairs,
			"%mac", macAddress(p.Address()),
			"%addr", numericAddress(p.Address()),
			"%name", p.Name(),
			"%stat", strconv.FormatBool(p.Status() == device.Connected),
			"%id", p.ID(),
		)
	}
	return engine.ExpandEscapes(strings.NewReplacer(pairs...).Replace(text)), nil
}

// macAddress renders addr as upper case colon separated octets.
func macAddress(addr string) string {
	digits := hexDigits(addr)
	if digits == "" {
		return addr
	}
	var b strings.Builder
	for i := 0; i < len(digits); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		end := min(i+2, len(digits))
		b.WriteString(digits[i:end])
	}
	return b.String()
}

// numericAddress renders a 48-bit address as a decimal number. Addresses
// that are not MAC addresses, such as CoreBluetooth identifiers, are returned
// unchanged.
func numericAddress(addr string) string {
	digits := hexDigits(addr)
	if digits == "" || len(digits) > 12 {
		return addr
	}
	n, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return addr
	}
	return strconv.FormatUint(n, 10)
}

func hexDigits(addr string) string {
	digits := strings.ToUpper(strings.NewReplacer(":", "", "-", "").Replace(addr))
	for _, c := range digits {
		if !strings.ContainsRune("0123456789ABCDEF", c) {
			return ""
		}
	}
	return digits
}
