package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/srg/blecon/internal/codec"
	"github.com/srg/blecon/internal/device"
	"github.com/srg/blecon/internal/gatt"
	"github.com/srg/blecon/internal/retrylog"
	"github.com/srg/blecon/internal/session"
	"github.com/srg/blecon/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// recorder is an Output that keeps everything printed.
type recorder struct {
	mu     sync.Mutex
	info   []string
	values []string
	notes  []string
}

func (r *recorder) Infof(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info = append(r.info, fmt.Sprintf(format, args...))
}

func (r *recorder) Value(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, text)
}

func (r *recorder) Notify(uuid, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, uuid+" "+text)
}

func (r *recorder) Info() []string   { return r.snapshot(&r.info) }
func (r *recorder) Values() []string { return r.snapshot(&r.values) }
func (r *recorder) Notes() []string  { return r.snapshot(&r.notes) }

func (r *recorder) snapshot(s *[]string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), (*s)...)
}

type EngineTestSuite struct {
	suite.Suite

	builder   *testutils.PeripheralBuilder
	other     *testutils.PeripheralBuilder
	connector *testutils.MockConnector
	session   *session.Session
	out       *recorder
	log       *retrylog.Log
	engine    *Engine

	ctx    context.Context
	cancel context.CancelFunc
}

func (s *EngineTestSuite) SetupTest() {
	s.builder = testutils.NewPeripheralBuilder("Sensor-A").
		WithService("180F", "Battery").
		WithCharacteristic("2A19", "Level", "read,write,notify", []byte{0x64}).
		WithService("180A", "Device Information").
		WithCharacteristic("2A29", "Manufacturer", "read,notify", []byte("Acme")).
		WithService("FFF0", "")
	s.other = testutils.NewPeripheralBuilder("Sensor-B").
		WithAddress("11:22:33:44:55:66").
		WithService("180F", "Battery").
		WithCharacteristic("2A19", "Level", "read", []byte{0x32})

	s.connector = &testutils.MockConnector{}
	s.connector.On("Connect", mock.Anything, s.builder.Info()).Return(s.builder.Build(), nil).Maybe()
	s.connector.On("Connect", mock.Anything, s.other.Info()).Return(s.other.Build(), nil).Maybe()

	logger := testutils.NewQuietLogger()
	s.session = session.New(codec.Decimal)
	s.out = &recorder{}
	s.log = retrylog.New(s.T().TempDir(), time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC), logger)
	s.engine = New(s.session, testutils.DeviceList{s.builder.Info(), s.other.Info()}, s.connector, s.log, s.out,
		&Options{RetryInterval: time.Millisecond}, logger)

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.engine.Start(s.ctx)
}

func (s *EngineTestSuite) TearDownTest() {
	_ = s.engine.Shutdown(context.Background())
	s.cancel()
	_ = s.log.Close()
}

func (s *EngineTestSuite) open() {
	s.Require().NoError(s.engine.Open(s.ctx, "Sensor-A"))
}

func (s *EngineTestSuite) level() *testutils.MockCharacteristic {
	return s.builder.Characteristic("Battery", "Level")
}

func (s *EngineTestSuite) logLines() []string {
	data, err := os.ReadFile(s.log.Path())
	if os.IsNotExist(err) {
		return nil
	}
	s.Require().NoError(err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

// GOAL: Verify opening a device lists its services and binds the retry log
//
// TEST SCENARIO: Open Sensor-A by name → services listed with #NN indices → log named after device
func (s *EngineTestSuite) TestOpen_ListsServices() {
	s.open()

	info := s.out.Info()
	s.Contains(info, "Found 3 services:")
	s.Contains(info, "#00: Battery")
	s.Contains(info, "#01: Device Information")
	s.Contains(info, "#02: FFF0", "an unnamed service MUST be listed by its UUID")
	s.True(s.session.Tree.Connected())
	s.Contains(s.log.Path(), "Sensor-A-", "the retry log MUST be named after the first opened device")
}

// GOAL: Verify device tokens resolve by index, name, id and address only
//
// TEST SCENARIO: Open by #01 → Sensor-B; unknown name → NotFound; empty → usage error
func (s *EngineTestSuite) TestOpen_Resolution() {
	s.Require().NoError(s.engine.Open(s.ctx, "#01"))
	s.Equal("Sensor-B", s.session.Tree.Device().Name())

	err := s.engine.Open(s.ctx, "Sensor")
	s.ErrorIs(err, gatt.ErrNotFound, "partial names MUST NOT match")

	s.ErrorIs(s.engine.Open(s.ctx, "  "), ErrUsage)
}

// GOAL: Verify only one device is held at a time
//
// TEST SCENARIO: Open Sensor-A, subscribe, open Sensor-B → A unsubscribed and disconnected first
func (s *EngineTestSuite) TestOpen_ReplacesPreviousDevice() {
	s.open()
	s.Require().NoError(s.engine.Subscribe(s.ctx, "Battery/Level"))

	s.Require().NoError(s.engine.Open(s.ctx, "Sensor-B"))

	s.builder.Build().AssertCalled(s.T(), "Disconnect")
	s.level().AssertCalled(s.T(), "Unsubscribe", mock.Anything)
	s.Empty(s.engine.Subscriptions())
	s.Equal("Sensor-B", s.session.Tree.Device().Name())
	s.Contains(s.out.Info(), "Device Sensor-A is disconnected.")
}

// GOAL: Verify connect failures are reported without selecting a device
//
// TEST SCENARIO: Connector fails → error wraps the transport status → no device selected
func (s *EngineTestSuite) TestOpen_Unreachable() {
	connector := &testutils.MockConnector{}
	connector.On("Connect", mock.Anything, mock.Anything).
		Return(nil, &device.TransportError{Op: "connect", Status: device.StatusUnreachable})
	e := New(s.session, testutils.DeviceList{s.builder.Info()}, connector, s.log, s.out, nil, testutils.NewQuietLogger())

	err := e.Open(s.ctx, "Sensor-A")
	s.ErrorIs(err, device.ErrUnreachable)
	s.Nil(s.session.Tree.Device())
}

// GOAL: Verify selecting a service lists its characteristics with properties
//
// TEST SCENARIO: set Battery → "#00: Level\tRead, Write, Notify"; set FFF0 → empty service error but selected
func (s *EngineTestSuite) TestSelectService() {
	s.open()

	s.Require().NoError(s.engine.SelectService(s.ctx, "Battery"))
	s.Contains(s.out.Info(), "Selected service Battery.")
	s.Contains(s.out.Info(), "#00: Level\tRead, Write, Notify")
	s.Equal("Battery", s.session.Tree.SelectedService().Name())

	err := s.engine.SelectService(s.ctx, "#02")
	s.ErrorIs(err, ErrEmptyService)
	s.Equal("FFF0", s.session.Tree.SelectedService().Name(), "an empty service MUST still be selected")

	s.ErrorIs(s.engine.SelectService(s.ctx, "Missing"), gatt.ErrNotFound)
}

// GOAL: Verify operations require a connected device
//
// TEST SCENARIO: read/write/sub/set with nothing open → NoDeviceConnected
func (s *EngineTestSuite) TestRequiresConnection() {
	s.ErrorIs(s.engine.Read(s.ctx, "Battery/Level"), gatt.ErrNoDeviceConnected)
	s.ErrorIs(s.engine.Write(s.ctx, "Battery/Level 1"), gatt.ErrNoDeviceConnected)
	s.ErrorIs(s.engine.Subscribe(s.ctx, "Battery/Level"), gatt.ErrNoDeviceConnected)
	s.ErrorIs(s.engine.SelectService(s.ctx, "Battery"), gatt.ErrNoDeviceConnected)
	s.ErrorIs(s.engine.WriteRetryRepeat(s.ctx, "1 1 Battery/Level 1"), gatt.ErrNoDeviceConnected)
	s.NoError(s.engine.Close(s.ctx), "closing with nothing open MUST be a no-op")
}

// GOAL: Verify reads render with the current format
//
// TEST SCENARIO: Decimal read of 0x64 → "100"; Hex → "64"; both address forms work
func (s *EngineTestSuite) TestRead() {
	s.open()

	s.Require().NoError(s.engine.Read(s.ctx, "Battery/Level"))
	s.Require().NoError(s.engine.SelectService(s.ctx, "Battery"))
	s.Require().NoError(s.engine.Read(s.ctx, "Level"))
	s.session.SetFormat(codec.Hex)
	s.Require().NoError(s.engine.Read(s.ctx, "#00"))

	s.Equal([]string{"100", "100", "64"}, s.out.Values())
}

// GOAL: Verify address and transport errors surface from read
//
// TEST SCENARIO: bare name without selection → NoServiceSelected; access denied → transport status kept
func (s *EngineTestSuite) TestRead_Errors() {
	s.open()

	s.ErrorIs(s.engine.Read(s.ctx, "Level"), gatt.ErrNoServiceSelected)
	s.ErrorIs(s.engine.Read(s.ctx, "Battery/Level/x"), gatt.ErrMalformed)

	s.level().SetReadError(&device.TransportError{Op: "read", Status: device.StatusAccessDenied})
	err := s.engine.Read(s.ctx, "Battery/Level")
	s.ErrorIs(err, device.ErrAccessDenied)
	s.Equal(1, s.session.Record(err), "a failed read MUST count one error unit")
}

// GOAL: Verify writes encode with the current format
//
// TEST SCENARIO: Decimal "100" → 0x64 written with response
func (s *EngineTestSuite) TestWrite() {
	s.open()
	s.Require().NoError(s.engine.SelectService(s.ctx, "Battery"))

	s.Require().NoError(s.engine.Write(s.ctx, "Level 100"))
	s.level().AssertCalled(s.T(), "Write", mock.Anything, []byte{0x64})
}

// GOAL: Verify text payloads keep spacing and expand escapes
//
// TEST SCENARIO: Text format "Level  a\tb " → bytes " a<TAB>b "
func (s *EngineTestSuite) TestWrite_TextPayload() {
	s.open()
	s.session.SetFormat(codec.Text)

	s.Require().NoError(s.engine.Write(s.ctx, `Battery/Level  a\tb `))
	s.level().AssertCalled(s.T(), "Write", mock.Anything, []byte(" a\tb "))
}

// GOAL: Verify invalid payloads abort before any transport call
//
// TEST SCENARIO: "Level 300" → OutOfRange, "Level" → usage error, no writes
func (s *EngineTestSuite) TestWrite_Rejected() {
	s.open()

	s.ErrorIs(s.engine.Write(s.ctx, "Battery/Level 300"), codec.ErrOutOfRange)
	s.ErrorIs(s.engine.Write(s.ctx, "Battery/Level"), ErrUsage)
	s.ErrorIs(s.engine.Write(s.ctx, "Missing/Level 1"), gatt.ErrNotFound)

	s.level().AssertNotCalled(s.T(), "Write", mock.Anything, mock.Anything)
}

// GOAL: Verify meaningful retried reads are logged, one line each
//
// TEST SCENARIO: K meaningful retry reads → K lines; then an empty read → timeout and no new line
func (s *EngineTestSuite) TestRetryRead_LogsMeaningfulResults() {
	s.open()
	s.level().SetReads([]byte{1, 2, 3}, []byte{4, 5, 6}, []byte{7, 8, 9})

	for i := 0; i < 3; i++ {
		s.Require().NoError(s.engine.RetryRead(s.ctx, 2, "Battery/Level"))
	}
	s.Equal([]string{"1 2 3", "4 5 6", "7 8 9"}, s.logLines())

	s.level().SetReads([]byte{})
	err := s.engine.RetryRead(s.ctx, 2, "Battery/Level")
	s.ErrorIs(err, ErrRetryTimeout)
	s.Len(s.logLines(), 3, "a timed out read MUST NOT be logged")

	s.session.Record(err)
	s.Equal(session.ExitRetryTimeout, s.session.ExitCode())
}

// GOAL: Verify retries stop at the first meaningful value
//
// TEST SCENARIO: reads "", "7", "1 2 3" with 5 retries → 3 reads, value printed once
func (s *EngineTestSuite) TestRetryRead_StopsEarly() {
	s.open()
	level := s.level()
	level.SetReads([]byte{}, []byte{7}, []byte{1, 2, 3})

	s.Require().NoError(s.engine.RetryRead(s.ctx, 5, "Battery/Level"))
	level.AssertNumberOfCalls(s.T(), "Read", 3)
	s.Equal([]string{"1 2 3"}, s.out.Values())
}

// GOAL: Verify a transport failure on the last attempt is a transport error
//
// TEST SCENARIO: every read fails → retries+1 attempts → transport error, nothing logged
func (s *EngineTestSuite) TestRetryRead_TransportFailure() {
	s.open()
	level := s.level()
	level.SetReadError(&device.TransportError{Op: "read", Status: device.StatusProtocolError})

	err := s.engine.RetryRead(s.ctx, 3, "Battery/Level")
	s.ErrorIs(err, device.ErrProtocol)
	s.NotErrorIs(err, ErrRetryTimeout)
	level.AssertNumberOfCalls(s.T(), "Read", 4)
	s.Empty(s.logLines())
}

// GOAL: Verify wrrr runs a second full cycle when every read is empty
//
// TEST SCENARIO: wrrr 2 1 Battery/Level 100 with empty reads → 2 writes, 4 reads, timeout
func (s *EngineTestSuite) TestWriteRetryRepeat_ExhaustsRepeats() {
	s.open()
	level := s.level()
	level.SetReads([]byte{})

	err := s.engine.WriteRetryRepeat(s.ctx, "2 1 Battery/Level 100")
	s.ErrorIs(err, ErrRetryTimeout)
	level.AssertNumberOfCalls(s.T(), "Write", 2)
	level.AssertNumberOfCalls(s.T(), "Read", 4)
	level.AssertCalled(s.T(), "Write", mock.Anything, []byte{0x64})
}

// GOAL: Verify wrrr stops on the first meaningful read
//
// TEST SCENARIO: wrrr 0 1 with reads "", "", "1 2 3" → 2 cycles, success, one log line
func (s *EngineTestSuite) TestWriteRetryRepeat_StopsOnSuccess() {
	s.open()
	level := s.level()
	level.SetReads([]byte{}, []byte{}, []byte{1, 2, 3})

	s.Require().NoError(s.engine.WriteRetryRepeat(s.ctx, "0 1 Battery/Level 100"))
	level.AssertNumberOfCalls(s.T(), "Write", 2)
	level.AssertNumberOfCalls(s.T(), "Read", 3)
	s.Equal([]string{"1 2 3"}, s.logLines())
}

// GOAL: Verify unbounded wrrr is cancellable
//
// TEST SCENARIO: wrrr 0 1 with empty reads → cancel → context.Canceled
func (s *EngineTestSuite) TestWriteRetryRepeat_Cancel() {
	s.open()
	s.level().SetReads([]byte{})

	ctx, cancel := context.WithCancel(s.ctx)
	time.AfterFunc(30*time.Millisecond, cancel)

	err := s.engine.WriteRetryRepeat(ctx, "0 1 Battery/Level 100")
	s.ErrorIs(err, context.Canceled)
}

// GOAL: Verify wrrr validates arguments before touching the device
//
// TEST SCENARIO: bad counts, missing payload and bad payload → no writes
func (s *EngineTestSuite) TestWriteRetryRepeat_Rejected() {
	s.open()

	for _, args := range []string{"", "x 1 Battery/Level 1", "1 -1 Battery/Level 1", "1 1 Battery/Level"} {
		s.ErrorIs(s.engine.WriteRetryRepeat(s.ctx, args), ErrUsage, "args %q", args)
	}
	s.ErrorIs(s.engine.WriteRetryRepeat(s.ctx, "1 1 Battery/Level zz"), codec.ErrInvalidLength)
	s.level().AssertNotCalled(s.T(), "Write", mock.Anything, mock.Anything)
}

// GOAL: Verify a characteristic is subscribed at most once
//
// TEST SCENARIO: sub Battery/Level, then sub Level and sub #00 → AlreadySubscribed, one transport call
func (s *EngineTestSuite) TestSubscribe_Unique() {
	s.open()
	s.Require().NoError(s.engine.Subscribe(s.ctx, "Battery/Level"))
	s.Require().NoError(s.engine.SelectService(s.ctx, "Battery"))

	s.ErrorIs(s.engine.Subscribe(s.ctx, "Level"), gatt.ErrAlreadySubscribed)
	s.ErrorIs(s.engine.Subscribe(s.ctx, "#00"), gatt.ErrAlreadySubscribed)
	s.level().AssertNumberOfCalls(s.T(), "Subscribe", 1)
	s.Equal([]string{"Level"}, s.engine.Subscriptions())
}

// GOAL: Verify a failed registration leaves the set unchanged
//
// TEST SCENARIO: transport rejects subscribe → error, no subscription
func (s *EngineTestSuite) TestSubscribe_Failure() {
	s.open()
	s.level().FailWith("Subscribe", &device.TransportError{Op: "subscribe", Status: device.StatusAccessDenied})

	s.ErrorIs(s.engine.Subscribe(s.ctx, "Battery/Level"), device.ErrAccessDenied)
	s.Empty(s.engine.Subscriptions())
}

// GOAL: Verify the first notification primes and later ones are delivered
//
// TEST SCENARIO: subscribe → notify 1 (discarded) → notify 2 → printed and wait released
func (s *EngineTestSuite) TestNotifications() {
	s.open()
	s.Require().NoError(s.engine.Subscribe(s.ctx, "Battery/Level"))

	waiter := s.session.Waiter()
	result := make(chan session.WaitResult, 1)
	go func() {
		r, _ := waiter.Wait(context.Background(), session.WaitNotify, 5*time.Second)
		result <- r
	}()
	s.Require().Eventually(waiter.Busy, time.Second, time.Millisecond)

	level := s.level()
	s.True(level.Notify([]byte{1}))
	s.True(level.Notify([]byte{2}))

	s.Equal(session.Signaled, <-result, "a delivered notification MUST release the wait")
	s.Eventually(func() bool { return len(s.out.Notes()) == 1 }, time.Second, time.Millisecond)
	s.Equal([]string{"2A19 2"}, s.out.Notes(), "the priming notification MUST be discarded")

	s.session.SetFormat(codec.Hex)
	level.Notify([]byte{0xAB})
	s.Eventually(func() bool { return len(s.out.Notes()) == 2 }, time.Second, time.Millisecond)
	s.Equal("2A19 AB", s.out.Notes()[1], "notifications MUST render with the current format")
}

// GOAL: Verify unsub all continues past failures and always empties the set
//
// TEST SCENARIO: two subscriptions, the first fails to unsubscribe → one error unit, set empty
func (s *EngineTestSuite) TestUnsubscribeAll_WithFailure() {
	s.open()
	s.Require().NoError(s.engine.Subscribe(s.ctx, "Battery/Level"))
	s.Require().NoError(s.engine.Subscribe(s.ctx, "Device Information/Manufacturer"))

	level := s.level()
	level.FailWith("Unsubscribe", errors.New("link lost"))

	err := s.engine.Unsubscribe(s.ctx, "all")
	s.Error(err)
	s.Equal(1, session.Count(err))
	s.Empty(s.engine.Subscriptions())
	level.AssertCalled(s.T(), "Unsubscribe", mock.Anything)
	s.builder.Characteristic("Device Information", "Manufacturer").AssertCalled(s.T(), "Unsubscribe", mock.Anything)

	s.ErrorIs(s.engine.Unsubscribe(s.ctx, "all"), gatt.ErrNoSubscriptions)
}

// GOAL: Verify single target unsubscribe
//
// TEST SCENARIO: unsub a subscribed target → removed; unsub an unsubscribed target → NotSubscribed
func (s *EngineTestSuite) TestUnsubscribe_Target() {
	s.open()
	s.Require().NoError(s.engine.Subscribe(s.ctx, "Battery/Level"))

	s.ErrorIs(s.engine.Unsubscribe(s.ctx, "Device Information/Manufacturer"), gatt.ErrNotSubscribed)
	s.ErrorIs(s.engine.Unsubscribe(s.ctx, ""), ErrUsage)

	s.Require().NoError(s.engine.Unsubscribe(s.ctx, "#00/#00"))
	s.Empty(s.engine.Subscriptions())
	s.False(s.level().Notify([]byte{1}), "the handler MUST be deregistered")
}

// GOAL: Verify close releases everything
//
// TEST SCENARIO: open, set, sub, close → no device, no services, no subscriptions
func (s *EngineTestSuite) TestClose() {
	s.open()
	s.Require().NoError(s.engine.SelectService(s.ctx, "Battery"))
	s.Require().NoError(s.engine.Subscribe(s.ctx, "Level"))
	svc := s.session.Tree.SelectedService()

	s.Require().NoError(s.engine.Close(s.ctx))

	tree := s.session.Tree
	s.Nil(tree.Device())
	s.Empty(tree.Services())
	s.Nil(tree.SelectedService())
	s.Nil(svc.Handle(), "service handles MUST be released")
	s.Empty(s.engine.Subscriptions())
	s.builder.Build().AssertCalled(s.T(), "Disconnect")
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}
