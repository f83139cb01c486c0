package device

import "strings"

const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the compact lowercase form used as a
// lookup key. A "0x" prefix and dashes are stripped, and UUIDs built on the
// Bluetooth SIG base are reduced to their 16-bit form.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")
	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// CharacteristicKey identifies a characteristic within a peripheral.
func CharacteristicKey(serviceUUID, charUUID string) string {
	return NormalizeUUID(serviceUUID) + "/" + NormalizeUUID(charUUID)
}
