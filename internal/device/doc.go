// Package device defines the transport contract the console core is built on:
// device discovery, connection, GATT enumeration and characteristic I/O.
//
// The go-ble subpackage implements the contract on top of github.com/go-ble/ble.
// Tests use the testify mocks from internal/testutils.
package device
