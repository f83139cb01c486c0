package device

import (
	"context"
)

// ConnectionStatus is the link state of a peripheral.
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connecting
	Connected
)

func (s ConnectionStatus) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Disconnected"
	}
}

// DeviceInfo is a discovered device as reported by the discovery watcher.
//
//nolint:revive // DeviceInfo name is intentional for clarity when used as a device.DeviceInfo
type DeviceInfo struct {
	ID      string
	Name    string
	Address string
	RSSI    int
}

// Advertisement is the subset of an advertising packet the watcher consumes.
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
	Connectable() bool
}

// ScanningDevice represents a BLE adapter capable of scanning for advertisements
type ScanningDevice interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Discoverer provides the current list of discovered devices.
type Discoverer interface {
	Devices() []DeviceInfo
}

// Connector opens a connection to a discovered device. The context bounds
// the connection attempt.
type Connector interface {
	Connect(ctx context.Context, info DeviceInfo) (Peripheral, error)
}

// Peripheral is a connected device.
type Peripheral interface {
	ID() string
	Name() string
	Address() string
	Status() ConnectionStatus

	// Services enumerates the primary services, bypassing any cache.
	Services(ctx context.Context) ([]Service, error)
	Disconnect() error
}

// Service is a GATT service handle.
type Service interface {
	UUID() string
	KnownName() string

	// Characteristics enumerates the service characteristics, bypassing any cache.
	Characteristics(ctx context.Context) ([]Characteristic, error)
}

// Characteristic is a GATT characteristic handle.
type Characteristic interface {
	// Key uniquely identifies the characteristic within its peripheral.
	Key() string
	UUID() string
	KnownName() string
	Properties() Properties

	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error

	// Subscribe enables notifications; fn is called from a transport goroutine.
	Subscribe(ctx context.Context, fn func(data []byte)) error
	Unsubscribe(ctx context.Context) error
}
