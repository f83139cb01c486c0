package testutils

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/srg/blecon/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockCharacteristic implements device.Characteristic. Read, Write, Subscribe
// and Unsubscribe are recorded through testify/mock; metadata is static.
type MockCharacteristic struct {
	mock.Mock

	key   string
	uuid  string
	name  string
	props device.Properties

	mu      sync.Mutex
	handler func([]byte)
}

// NewMockCharacteristic creates a characteristic with no expectations.
func NewMockCharacteristic(key, uuid, name string, props device.Properties) *MockCharacteristic {
	return &MockCharacteristic{key: key, uuid: uuid, name: name, props: props}
}

func (m *MockCharacteristic) Key() string                   { return m.key }
func (m *MockCharacteristic) UUID() string                  { return m.uuid }
func (m *MockCharacteristic) KnownName() string             { return m.name }
func (m *MockCharacteristic) Properties() device.Properties { return m.props }

func (m *MockCharacteristic) Read(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	var data []byte
	if v := args.Get(0); v != nil {
		data = v.([]byte)
	}
	return data, args.Error(1)
}

func (m *MockCharacteristic) Write(ctx context.Context, data []byte) error {
	args := m.Called(ctx, data)
	return args.Error(0)
}

func (m *MockCharacteristic) Subscribe(ctx context.Context, fn func(data []byte)) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	m.handler = fn
	m.mu.Unlock()
	return nil
}

func (m *MockCharacteristic) Unsubscribe(ctx context.Context) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	m.handler = nil
	m.mu.Unlock()
	return nil
}

// Notify delivers data to the registered notification handler, as the
// transport would. It reports false when nothing is subscribed.
func (m *MockCharacteristic) Notify(data []byte) bool {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// SetReads replaces the Read expectations: each value is returned once, in
// order, and the last one is repeated for any further reads.
func (m *MockCharacteristic) SetReads(values ...[]byte) {
	m.dropExpectations("Read")
	for _, v := range values {
		m.On("Read", mock.Anything).Return(v, nil).Once()
	}
	if len(values) > 0 {
		m.On("Read", mock.Anything).Return(values[len(values)-1], nil).Maybe()
	}
}

// SetReadError makes every Read fail with err.
func (m *MockCharacteristic) SetReadError(err error) {
	m.FailWith("Read", err)
}

// FailWith makes every call of method ("Read", "Write", "Subscribe" or
// "Unsubscribe") fail with err.
func (m *MockCharacteristic) FailWith(method string, err error) {
	m.dropExpectations(method)
	switch method {
	case "Read":
		m.On("Read", mock.Anything).Return(nil, err).Maybe()
	case "Write":
		m.On("Write", mock.Anything, mock.Anything).Return(err).Maybe()
	default:
		m.On(method, mock.Anything).Return(err).Maybe()
	}
}

func (m *MockCharacteristic) dropExpectations(method string) {
	kept := m.ExpectedCalls[:0]
	for _, call := range m.ExpectedCalls {
		if call.Method != method {
			kept = append(kept, call)
		}
	}
	m.ExpectedCalls = kept
}

// MockService implements device.Service.
type MockService struct {
	mock.Mock

	uuid string
	name string
}

// NewMockService creates a service with no expectations.
func NewMockService(uuid, name string) *MockService {
	return &MockService{uuid: uuid, name: name}
}

func (m *MockService) UUID() string      { return m.uuid }
func (m *MockService) KnownName() string { return m.name }

func (m *MockService) Characteristics(ctx context.Context) ([]device.Characteristic, error) {
	args := m.Called(ctx)
	var chars []device.Characteristic
	if v := args.Get(0); v != nil {
		chars = v.([]device.Characteristic)
	}
	return chars, args.Error(1)
}

// MockPeripheral implements device.Peripheral.
type MockPeripheral struct {
	mock.Mock

	info   device.DeviceInfo
	status atomic.Int32
}

// NewMockPeripheral creates a connected peripheral with no expectations.
func NewMockPeripheral(info device.DeviceInfo) *MockPeripheral {
	p := &MockPeripheral{info: info}
	p.status.Store(int32(device.Connected))
	return p
}

func (m *MockPeripheral) ID() string      { return m.info.ID }
func (m *MockPeripheral) Name() string    { return m.info.Name }
func (m *MockPeripheral) Address() string { return m.info.Address }

func (m *MockPeripheral) Status() device.ConnectionStatus {
	return device.ConnectionStatus(m.status.Load())
}

// SetStatus simulates a link state change.
func (m *MockPeripheral) SetStatus(s device.ConnectionStatus) {
	m.status.Store(int32(s))
}

func (m *MockPeripheral) Services(ctx context.Context) ([]device.Service, error) {
	args := m.Called(ctx)
	var svcs []device.Service
	if v := args.Get(0); v != nil {
		svcs = v.([]device.Service)
	}
	return svcs, args.Error(1)
}

func (m *MockPeripheral) Disconnect() error {
	args := m.Called()
	m.status.Store(int32(device.Disconnected))
	return args.Error(0)
}

// MockConnector implements device.Connector.
type MockConnector struct {
	mock.Mock
}

func (m *MockConnector) Connect(ctx context.Context, info device.DeviceInfo) (device.Peripheral, error) {
	args := m.Called(ctx, info)
	var p device.Peripheral
	if v := args.Get(0); v != nil {
		p = v.(device.Peripheral)
	}
	return p, args.Error(1)
}

// DeviceList is a fixed device.Discoverer.
type DeviceList []device.DeviceInfo

func (l DeviceList) Devices() []device.DeviceInfo {
	return append([]device.DeviceInfo(nil), l...)
}
