// Package engine implements the console operations against the connected
// device: open, close, service selection, read, write, retried reads,
// write-retry-repeat cycles and notification subscriptions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecon/internal/codec"
	"github.com/srg/blecon/internal/device"
	"github.com/srg/blecon/internal/gatt"
	"github.com/srg/blecon/internal/groutine"
	"github.com/srg/blecon/internal/ringchan"
	"github.com/srg/blecon/internal/session"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrRetryTimeout is returned when a retried read never produced a
// meaningful value.
var ErrRetryTimeout = session.ErrRetryTimeout

// ErrUsage wraps argument errors of a command.
var ErrUsage = errors.New("invalid arguments")

// ErrEmptyService is returned when a selected service has no characteristics.
var ErrEmptyService = errors.New("service has no characteristics")

// Output receives everything the engine prints.
type Output interface {
	// Infof prints an informational line.
	Infof(format string, args ...any)
	// Value prints a value read from a characteristic.
	Value(text string)
	// Notify prints a notification received for the characteristic uuid.
	Notify(uuid, text string)
}

// RetryLog receives the meaningful results of retried reads.
type RetryLog interface {
	Bind(deviceName string)
	Append(line string) error
}

// Options tunes engine timing.
type Options struct {
	RetryInterval time.Duration `default:"200ms"`
	NotifyBuffer  int           `default:"64"`
}

type notification struct {
	uuid string
	data []byte
}

// Engine runs console operations on one session. All operations must be
// called from a single goroutine; notifications are printed from a
// background goroutine started by Start.
type Engine struct {
	session   *session.Session
	parser    *gatt.Parser
	devices   device.Discoverer
	connector device.Connector
	retryLog  RetryLog
	out       Output
	opts      Options
	logger    *logrus.Logger

	subs          *orderedmap.OrderedMap[string, *subscription]
	notifications *ringchan.RingChannel[notification]
	done          chan struct{}
}

// New creates an engine. Zero fields of opts are filled with defaults.
func New(sess *session.Session, devices device.Discoverer, connector device.Connector, retryLog RetryLog, out Output, opts *Options, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	o := Options{}
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)

	return &Engine{
		session:       sess,
		parser:        gatt.NewParser(sess.Tree),
		devices:       devices,
		connector:     connector,
		retryLog:      retryLog,
		out:           out,
		opts:          o,
		logger:        logger,
		subs:          orderedmap.New[string, *subscription](),
		notifications: ringchan.New[notification](o.NotifyBuffer),
		done:          make(chan struct{}),
	}
}

// Start launches the notification printer. It stops when ctx is cancelled
// or Shutdown is called.
func (e *Engine) Start(ctx context.Context) {
	groutine.Go(ctx, "notification-printer", func(ctx context.Context) {
		defer close(e.done)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-e.notifications.C():
				if !ok {
					return
				}
				e.out.Notify(n.uuid, codec.Decode(n.data, e.session.Format()))
				e.session.Waiter().Signal()
			}
		}
	})
}

// Shutdown closes the connected device, if any, and stops the printer
// started by Start.
func (e *Engine) Shutdown(ctx context.Context) error {
	var err error
	if e.session.Tree.Device() != nil {
		err = e.closeDevice(ctx)
	}
	e.notifications.Close()
	select {
	case <-e.done:
	case <-ctx.Done():
	case <-time.After(time.Second):
		e.logger.Warn("Notification printer did not stop in time")
	}
	return err
}

type listedDevice struct {
	info device.DeviceInfo
}

func (d listedDevice) Name() string { return d.info.Name }

// Open connects to the device token names in the current device list,
// closing any previously opened device first, and lists its services.
func (e *Engine) Open(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: device name can not be empty", ErrUsage)
	}

	info, err := e.findDevice(token)
	if err != nil {
		return err
	}

	if e.session.Tree.Device() != nil {
		if err := e.closeDevice(ctx); err != nil {
			e.logger.WithError(err).Warn("Previous device did not close cleanly")
		}
	}

	log := e.logger.WithFields(logrus.Fields{
		"device":  info.Name,
		"id":      info.ID,
		"timeout": e.session.Timeout(),
	})
	log.Debug("Connecting")

	cctx, cancel := context.WithTimeout(ctx, e.session.Timeout())
	defer cancel()

	p, err := e.connector.Connect(cctx, info)
	if err != nil {
		return fmt.Errorf("device %s is unreachable: %w", info.Name, err)
	}
	e.out.Infof("Connecting to %s.", p.Name())

	svcs, err := p.Services(ctx)
	if err != nil {
		if derr := p.Disconnect(); derr != nil {
			log.WithError(derr).Debug("Disconnect after failed discovery")
		}
		return fmt.Errorf("device %s is unreachable: %w", info.Name, err)
	}

	e.session.Tree.SetDevice(p)
	e.session.Tree.SetServices(svcs)
	if e.retryLog != nil {
		e.retryLog.Bind(p.Name())
	}
	log.WithField("services", len(svcs)).Info("Device opened")

	e.out.Infof("Found %d services:", len(svcs))
	for i, svc := range e.session.Tree.Services() {
		e.out.Infof("%s: %s", gatt.FormatIndex(i), svc.Name())
	}
	return nil
}

func (e *Engine) findDevice(token string) (device.DeviceInfo, error) {
	infos := e.devices.Devices()
	listed := make([]listedDevice, len(infos))
	for i, info := range infos {
		listed[i] = listedDevice{info: info}
	}
	if d, _, ok := gatt.Find(listed, token); ok {
		return d.info, nil
	}
	for _, info := range infos {
		if info.ID == token || strings.EqualFold(info.Address, token) {
			return info, nil
		}
	}
	return device.DeviceInfo{}, &gatt.AddressError{Kind: gatt.NotFound, Token: token}
}

// Close unsubscribes everything, releases the tree and disconnects. Closing
// with no device open does nothing.
func (e *Engine) Close(ctx context.Context) error {
	if e.session.Tree.Device() == nil {
		return nil
	}
	return e.closeDevice(ctx)
}

func (e *Engine) closeDevice(ctx context.Context) error {
	var errs []error
	if e.subs.Len() > 0 {
		if err := e.unsubscribeAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	p := e.session.Tree.Device()
	e.session.Tree.Clear()
	if err := p.Disconnect(); err != nil {
		errs = append(errs, fmt.Errorf("disconnect %s: %w", p.Name(), err))
	}
	e.out.Infof("Device %s is disconnected.", p.Name())
	e.logger.WithField("device", p.Name()).Info("Device closed")
	return errors.Join(errs...)
}

// SelectService makes token the selected service and lists its
// characteristics.
func (e *Engine) SelectService(ctx context.Context, token string) error {
	tree := e.session.Tree
	if !tree.Connected() {
		return gatt.ErrNoDeviceConnected
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: service name can not be empty", ErrUsage)
	}

	svc, err := tree.FindService(token)
	if err != nil {
		return err
	}
	h := svc.Handle()
	if h == nil {
		return gatt.ErrHandleReleased
	}
	chars, err := h.Characteristics(ctx)
	if err != nil {
		return fmt.Errorf("restricted service %s: %w", svc.Name(), err)
	}

	if _, err := tree.SelectService(token); err != nil {
		return err
	}
	tree.SetCharacteristics(chars)
	e.out.Infof("Selected service %s.", svc.Name())

	if len(chars) == 0 {
		return fmt.Errorf("%s: %w", svc.Name(), ErrEmptyService)
	}
	for i, c := range tree.Characteristics() {
		e.out.Infof("%s: %s\t%s", gatt.FormatIndex(i), c.Name(), c.Properties())
	}
	return nil
}

func (e *Engine) requireConnected() error {
	if !e.session.Tree.Connected() {
		return gatt.ErrNoDeviceConnected
	}
	return nil
}

// resolve parses token into a target with a live handle. The caller must
// release the target.
func (e *Engine) resolve(ctx context.Context, token string) (*gatt.Target, device.Characteristic, error) {
	target, err := e.parser.Parse(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	h := target.Characteristic.Handle()
	if h == nil {
		target.Release()
		return nil, nil, gatt.ErrHandleReleased
	}
	return target, h, nil
}
