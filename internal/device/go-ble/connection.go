package goble

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecon/internal/device"
	"github.com/srg/blecon/internal/groutine"
)

// BLEConnection is a connected peripheral backed by a go-ble client.
type BLEConnection struct {
	info   device.DeviceInfo
	client ble.Client
	logger *logrus.Logger

	status    atomic.Int32
	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(info device.DeviceInfo, client ble.Client, logger *logrus.Logger) *BLEConnection {
	c := &BLEConnection{
		info:   info,
		client: client,
		logger: logger,
		done:   make(chan struct{}),
	}
	c.status.Store(int32(device.Connected))

	// Watch for link loss reported by the stack
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
			select {
			case <-dc.Disconnected():
				c.logger.WithField("address", c.info.Address).Warn("BLE stack reported disconnection")
				c.status.Store(int32(device.Disconnected))
			case <-c.done:
			}
		})
	} else {
		c.logger.Debug("Client does not support Disconnected() channel")
	}

	return c
}

func (c *BLEConnection) ID() string { return c.info.ID }

func (c *BLEConnection) Name() string {
	if name := c.client.Name(); name != "" {
		return name
	}
	return c.info.Name
}

func (c *BLEConnection) Address() string { return c.info.Address }

func (c *BLEConnection) Status() device.ConnectionStatus {
	return device.ConnectionStatus(c.status.Load())
}

// Services enumerates the primary services directly from the peripheral.
func (c *BLEConnection) Services(ctx context.Context) ([]device.Service, error) {
	if c.Status() != device.Connected {
		return nil, transportError("services", device.ErrNotConnected)
	}

	svcs, err := await(ctx, func() ([]*ble.Service, error) {
		return c.client.DiscoverServices(nil)
	})
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": c.info.Address,
			"error":   err,
		}).Error("Failed to discover services")
		return nil, transportError("services", err)
	}

	result := make([]device.Service, 0, len(svcs))
	for _, s := range svcs {
		result = append(result, &BLEService{conn: c, svc: s})
	}

	c.logger.WithFields(logrus.Fields{
		"address":  c.info.Address,
		"services": len(result),
	}).Debug("Services discovered")
	return result, nil
}

// Disconnect drops the link. Calling it more than once is a no-op.
func (c *BLEConnection) Disconnect() error {
	if device.ConnectionStatus(c.status.Swap(int32(device.Disconnected))) == device.Disconnected {
		c.closeOnce.Do(func() { close(c.done) })
		c.logger.Debug("Disconnect called but already disconnected")
		return nil
	}
	c.closeOnce.Do(func() { close(c.done) })

	c.logger.WithField("address", c.info.Address).Info("Disconnecting BLE device...")
	if err := c.client.CancelConnection(); err != nil {
		c.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return NormalizeError(err)
	}
	c.logger.Info("BLE device disconnected successfully")
	return nil
}
