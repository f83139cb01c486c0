package goble

import (
	"context"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecon/internal/device"
)

// BLEService is a discovered GATT service.
type BLEService struct {
	conn *BLEConnection
	svc  *ble.Service
}

func (s *BLEService) UUID() string      { return s.svc.UUID.String() }
func (s *BLEService) KnownName() string { return ble.Name(s.svc.UUID) }

// Characteristics re-runs characteristic discovery for the service.
func (s *BLEService) Characteristics(ctx context.Context) ([]device.Characteristic, error) {
	if s.conn.Status() != device.Connected {
		return nil, transportError("characteristics", device.ErrNotConnected)
	}

	// go-ble appends discovered characteristics to the service
	s.svc.Characteristics = nil
	chars, err := await(ctx, func() ([]*ble.Characteristic, error) {
		return s.conn.client.DiscoverCharacteristics(nil, s.svc)
	})
	if err != nil {
		s.conn.logger.WithFields(logrus.Fields{
			"service_uuid": s.UUID(),
			"error":        err,
		}).Error("Failed to discover characteristics")
		return nil, transportError("characteristics", err)
	}

	result := make([]device.Characteristic, 0, len(chars))
	for _, c := range chars {
		result = append(result, &BLECharacteristic{conn: s.conn, svc: s.svc, char: c})
	}
	return result, nil
}

// BLECharacteristic is a discovered GATT characteristic.
type BLECharacteristic struct {
	conn *BLEConnection
	svc  *ble.Service
	char *ble.Characteristic
}

func (c *BLECharacteristic) Key() string {
	key := device.CharacteristicKey(c.svc.UUID.String(), c.char.UUID.String())
	if c.char.ValueHandle != 0 {
		key = fmt.Sprintf("%s@%04x", key, c.char.ValueHandle)
	}
	return key
}

func (c *BLECharacteristic) UUID() string      { return c.char.UUID.String() }
func (c *BLECharacteristic) KnownName() string { return ble.Name(c.char.UUID) }

func (c *BLECharacteristic) Properties() device.Properties {
	return device.Properties(c.char.Property)
}

func (c *BLECharacteristic) Read(ctx context.Context) ([]byte, error) {
	data, err := await(ctx, func() ([]byte, error) {
		return c.conn.client.ReadCharacteristic(c.char)
	})
	if err != nil {
		return nil, transportError("read", err)
	}
	return data, nil
}

func (c *BLECharacteristic) Write(ctx context.Context, data []byte) error {
	_, err := await(ctx, func() (struct{}, error) {
		return struct{}{}, c.conn.client.WriteCharacteristic(c.char, data, false)
	})
	return transportError("write", err)
}

// indicate reports whether the characteristic only supports indications.
func (c *BLECharacteristic) indicate() bool {
	p := c.Properties()
	return p.Has(device.PropIndicate) && !p.Has(device.PropNotify)
}

func (c *BLECharacteristic) Subscribe(ctx context.Context, fn func(data []byte)) error {
	if !c.Properties().CanNotify() {
		return &device.TransportError{Op: "subscribe", Status: device.StatusProtocolError,
			Err: fmt.Errorf("characteristic %s does not support notifications", c.UUID())}
	}

	_, err := await(ctx, func() (struct{}, error) {
		// The linux stack needs the CCCD to enable notifications
		if c.char.CCCD == nil {
			c.char.Descriptors = nil
			if _, err := c.conn.client.DiscoverDescriptors(nil, c.char); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, c.conn.client.Subscribe(c.char, c.indicate(), func(req []byte) {
			fn(req)
		})
	})
	if err != nil {
		c.conn.logger.WithFields(logrus.Fields{
			"char_uuid": c.UUID(),
			"error":     err,
		}).Error("Failed to subscribe to characteristic notifications")
	}
	return transportError("subscribe", err)
}

func (c *BLECharacteristic) Unsubscribe(ctx context.Context) error {
	_, err := await(ctx, func() (struct{}, error) {
		return struct{}{}, c.conn.client.Unsubscribe(c.char, c.indicate())
	})
	if err == nil {
		c.conn.logger.WithField("char_uuid", c.UUID()).Debug("Unsubscribed from characteristic notifications")
	}
	return transportError("unsubscribe", err)
}
