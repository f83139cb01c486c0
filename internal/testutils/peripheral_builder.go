package testutils

import (
	"fmt"
	"strings"

	"github.com/srg/blecon/internal/device"
	"github.com/stretchr/testify/mock"
)

// CharacteristicConfig describes a mocked characteristic.
type CharacteristicConfig struct {
	UUID       string
	Name       string
	Properties string // e.g. "read,write,notify"
	Value      []byte
}

// ServiceConfig describes a mocked service.
type ServiceConfig struct {
	UUID            string
	Name            string
	Characteristics []CharacteristicConfig
}

// PeripheralBuilder builds a MockPeripheral with a full service and
// characteristic tree and permissive default expectations:
//
//	p := testutils.NewPeripheralBuilder("Sensor-A").
//	    WithService("180F", "Battery").
//	    WithCharacteristic("2A19", "Level", "read,write,notify", []byte{0x64}).
//	    Build()
//
// Reads return the configured value, writes and (un)subscriptions succeed.
type PeripheralBuilder struct {
	info     device.DeviceInfo
	services []ServiceConfig

	built    *MockPeripheral
	mockSvcs map[string]*MockService
	chars    map[string]*MockCharacteristic
}

// NewPeripheralBuilder starts a peripheral with the given display name.
func NewPeripheralBuilder(name string) *PeripheralBuilder {
	return &PeripheralBuilder{
		info: device.DeviceInfo{
			ID:      "id-" + name,
			Name:    name,
			Address: "AA:BB:CC:DD:EE:FF",
		},
		mockSvcs: make(map[string]*MockService),
		chars:    make(map[string]*MockCharacteristic),
	}
}

// WithAddress sets the peripheral address.
func (b *PeripheralBuilder) WithAddress(addr string) *PeripheralBuilder {
	b.info.Address = addr
	return b
}

// WithService adds a service. An empty name leaves the service unnamed so it
// is listed by its UUID.
func (b *PeripheralBuilder) WithService(uuid, name string) *PeripheralBuilder {
	b.services = append(b.services, ServiceConfig{UUID: uuid, Name: name})
	return b
}

// WithCharacteristic adds a characteristic to the last added service.
func (b *PeripheralBuilder) WithCharacteristic(uuid, name, properties string, value []byte) *PeripheralBuilder {
	if len(b.services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := &b.services[len(b.services)-1]
	last.Characteristics = append(last.Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Name:       name,
		Properties: properties,
		Value:      value,
	})
	return b
}

// Info returns the discovery record of the peripheral.
func (b *PeripheralBuilder) Info() device.DeviceInfo {
	return b.info
}

// Build creates the mocks. Calling it again returns the same peripheral.
func (b *PeripheralBuilder) Build() *MockPeripheral {
	if b.built != nil {
		return b.built
	}

	p := NewMockPeripheral(b.info)
	svcs := make([]device.Service, 0, len(b.services))
	for _, sc := range b.services {
		svc := NewMockService(sc.UUID, sc.Name)
		chars := make([]device.Characteristic, 0, len(sc.Characteristics))
		for _, cc := range sc.Characteristics {
			c := NewMockCharacteristic(device.CharacteristicKey(sc.UUID, cc.UUID), cc.UUID, cc.Name, ParseProperties(cc.Properties))
			c.On("Read", mock.Anything).Return(cc.Value, nil).Maybe()
			c.On("Write", mock.Anything, mock.Anything).Return(nil).Maybe()
			c.On("Subscribe", mock.Anything).Return(nil).Maybe()
			c.On("Unsubscribe", mock.Anything).Return(nil).Maybe()
			b.chars[charKey(sc, cc)] = c
			chars = append(chars, c)
		}
		svc.On("Characteristics", mock.Anything).Return(chars, nil).Maybe()
		b.mockSvcs[label(sc.UUID, sc.Name)] = svc
		svcs = append(svcs, svc)
	}
	p.On("Services", mock.Anything).Return(svcs, nil).Maybe()
	p.On("Disconnect").Return(nil).Maybe()

	b.built = p
	return p
}

// Service returns the built mock for a service, looked up by name or UUID.
func (b *PeripheralBuilder) Service(nameOrUUID string) *MockService {
	b.Build()
	for _, sc := range b.services {
		if sc.Name == nameOrUUID || sc.UUID == nameOrUUID {
			return b.mockSvcs[label(sc.UUID, sc.Name)]
		}
	}
	panic(fmt.Sprintf("service %q not configured", nameOrUUID))
}

// Characteristic returns the built mock for a characteristic, looked up by
// service and characteristic name or UUID.
func (b *PeripheralBuilder) Characteristic(service, char string) *MockCharacteristic {
	b.Build()
	for _, sc := range b.services {
		if sc.Name != service && sc.UUID != service {
			continue
		}
		for _, cc := range sc.Characteristics {
			if cc.Name == char || cc.UUID == char {
				return b.chars[charKey(sc, cc)]
			}
		}
	}
	panic(fmt.Sprintf("characteristic %q in service %q not configured", char, service))
}

func label(uuid, name string) string {
	return uuid + "|" + name
}

func charKey(sc ServiceConfig, cc CharacteristicConfig) string {
	return label(sc.UUID, sc.Name) + "/" + label(cc.UUID, cc.Name)
}

// ParseProperties converts "read,write,notify" style lists to device.Properties.
func ParseProperties(s string) device.Properties {
	var props device.Properties
	for _, p := range strings.Split(s, ",") {
		switch strings.TrimSpace(strings.ToLower(p)) {
		case "broadcast":
			props |= device.PropBroadcast
		case "read":
			props |= device.PropRead
		case "write-without-response", "writenr":
			props |= device.PropWriteWithoutResponse
		case "write":
			props |= device.PropWrite
		case "notify":
			props |= device.PropNotify
		case "indicate":
			props |= device.PropIndicate
		}
	}
	return props
}
