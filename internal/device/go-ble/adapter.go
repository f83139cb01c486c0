package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecon/internal/device"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking as goble.DeviceFactory
var DeviceFactory = newDefaultDevice

// Adapter is the local BLE controller. It is shared by the discovery watcher
// and the connector so that only one ble.Device is ever opened.
type Adapter struct {
	mu     sync.Mutex
	dev    ble.Device
	logger *logrus.Logger
}

// NewAdapter creates an adapter; the underlying device is opened on first use.
func NewAdapter(logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{logger: logger}
}

func (a *Adapter) device() (ble.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dev != nil {
		return a.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		a.logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	a.dev = dev
	return dev, nil
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement
func (a *Adapter) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	dev, err := a.device()
	if err != nil {
		return err
	}
	// Adapter: convert a handler expecting a device.Advertisement to the one expecting ble.Advertisement
	bleHandler := func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}
	if err := dev.Scan(ctx, allowDup, bleHandler); err != nil {
		return NormalizeError(err)
	}
	return nil
}

// Connect dials the device; ctx bounds the attempt.
func (a *Adapter) Connect(ctx context.Context, info device.DeviceInfo) (device.Peripheral, error) {
	if strings.TrimSpace(info.Address) == "" {
		a.logger.Error("Connection attempt with empty address")
		return nil, fmt.Errorf("device address is empty")
	}

	dev, err := a.device()
	if err != nil {
		return nil, err
	}

	a.logger.WithFields(logrus.Fields{
		"address": info.Address,
		"name":    info.Name,
	}).Info("Connecting to BLE device...")

	client, err := dev.Dial(ctx, ble.NewAddr(info.Address))
	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"address": info.Address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		terr := transportError("connect", err)
		var te *device.TransportError
		if errors.As(terr, &te) && te.Status == device.StatusProtocolError {
			te.Status = device.StatusUnreachable
		}
		return nil, terr
	}

	a.logger.WithField("address", info.Address).Info("BLE device connected successfully")
	return newConnection(info, client, a.logger), nil
}

// await runs a blocking go-ble call and gives up when ctx ends.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		v, err := fn()
		resultCh <- result{v: v, err: err}
	}()

	select {
	case r := <-resultCh:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
