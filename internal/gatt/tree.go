// Package gatt models the service and characteristic tree of the connected
// device and resolves the addresses users type against it.
package gatt

import (
	"github.com/srg/blecon/internal/device"
)

// Service is a service attribute. It owns its transport handle until released.
type Service struct {
	name   string
	handle device.Service
}

// NewService wraps a transport service handle.
func NewService(h device.Service) *Service {
	return &Service{name: displayName(h.KnownName(), h.UUID()), handle: h}
}

func (s *Service) Name() string { return s.name }

// Handle returns the transport handle, or nil once released.
func (s *Service) Handle() device.Service { return s.handle }

// Release drops the transport handle.
func (s *Service) Release() { s.handle = nil }

// Characteristic is a characteristic attribute. It owns its transport handle
// until released.
type Characteristic struct {
	name   string
	props  device.Properties
	handle device.Characteristic
}

// NewCharacteristic wraps a transport characteristic handle.
func NewCharacteristic(h device.Characteristic) *Characteristic {
	return &Characteristic{
		name:   displayName(h.KnownName(), h.UUID()),
		props:  h.Properties(),
		handle: h,
	}
}

func (c *Characteristic) Name() string { return c.name }

// Properties returns the property set captured at discovery.
func (c *Characteristic) Properties() device.Properties { return c.props }

// Handle returns the transport handle, or nil once released.
func (c *Characteristic) Handle() device.Characteristic { return c.handle }

// Release drops the transport handle.
func (c *Characteristic) Release() { c.handle = nil }

func displayName(known, uuid string) string {
	if known != "" {
		return known
	}
	return uuid
}

// WrapCharacteristics wraps transport handles in discovery order.
func WrapCharacteristics(handles []device.Characteristic) []*Characteristic {
	chars := make([]*Characteristic, len(handles))
	for i, h := range handles {
		chars[i] = NewCharacteristic(h)
	}
	return chars
}

// ReleaseAll releases every attribute in attrs.
func ReleaseAll[T interface{ Release() }](attrs []T) {
	for _, a := range attrs {
		a.Release()
	}
}

// Tree holds the selected device, its services, the characteristics of the
// selected service and the current selection. A selected service implies a
// connected device; a selected characteristic implies a selected service.
type Tree struct {
	device   device.Peripheral
	services []*Service
	service  *Service
	chars    []*Characteristic
	char     *Characteristic
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{}
}

// SetDevice replaces the selected device, releasing everything held for the
// previous one.
func (t *Tree) SetDevice(p device.Peripheral) {
	t.Clear()
	t.device = p
}

// Clear releases every held attribute and empties the selection.
func (t *Tree) Clear() {
	t.clearServices()
	t.device = nil
}

func (t *Tree) clearServices() {
	t.clearCharacteristics()
	ReleaseAll(t.services)
	t.services = nil
	t.service = nil
}

func (t *Tree) clearCharacteristics() {
	ReleaseAll(t.chars)
	t.chars = nil
	t.char = nil
}

// Device returns the selected device or nil.
func (t *Tree) Device() device.Peripheral { return t.device }

// Connected reports whether a device is selected and its link is up.
func (t *Tree) Connected() bool {
	return t.device != nil && t.device.Status() == device.Connected
}

// SetServices replaces the service collection. The service and
// characteristic selections are cleared.
func (t *Tree) SetServices(handles []device.Service) {
	t.clearServices()
	t.services = make([]*Service, len(handles))
	for i, h := range handles {
		t.services[i] = NewService(h)
	}
}

// Services returns the service collection in discovery order.
func (t *Tree) Services() []*Service { return t.services }

// FindService resolves token against the service collection.
func (t *Tree) FindService(token string) (*Service, error) {
	svc, _, ok := Find(t.services, token)
	if !ok {
		return nil, &AddressError{Kind: NotFound, Token: token}
	}
	return svc, nil
}

// SelectService resolves token and makes it the selected service. The
// characteristic collection and selection are cleared.
func (t *Tree) SelectService(token string) (*Service, error) {
	if !t.Connected() {
		return nil, ErrNoDeviceConnected
	}
	svc, err := t.FindService(token)
	if err != nil {
		return nil, err
	}
	t.clearCharacteristics()
	t.service = svc
	return svc, nil
}

// SelectedService returns the selected service or nil.
func (t *Tree) SelectedService() *Service { return t.service }

// SetCharacteristics replaces the characteristic collection of the selected
// service and clears the characteristic selection.
func (t *Tree) SetCharacteristics(handles []device.Characteristic) {
	t.clearCharacteristics()
	t.chars = WrapCharacteristics(handles)
}

// Characteristics returns the characteristic collection in discovery order.
func (t *Tree) Characteristics() []*Characteristic { return t.chars }

// SelectCharacteristic resolves token against the characteristic collection
// and selects it.
func (t *Tree) SelectCharacteristic(token string) (*Characteristic, error) {
	if t.service == nil {
		return nil, &AddressError{Kind: NoServiceSelected, Token: token}
	}
	c, _, ok := Find(t.chars, token)
	if !ok {
		return nil, &AddressError{Kind: NotFound, Token: token}
	}
	t.char = c
	return c, nil
}

// SelectedCharacteristic returns the selected characteristic or nil.
func (t *Tree) SelectedCharacteristic() *Characteristic { return t.char }
