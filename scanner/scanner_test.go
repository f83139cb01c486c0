package scanner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/blecon/internal/codec"
	"github.com/srg/blecon/internal/device"
	"github.com/srg/blecon/internal/engine"
	"github.com/srg/blecon/internal/session"
	"github.com/srg/blecon/internal/testutils"
	"github.com/srg/blecon/scanner"
	"github.com/stretchr/testify/mock"
	suitelib "github.com/stretchr/testify/suite"
)

type discardOutput struct{}

func (discardOutput) Infof(string, ...any)  {}
func (discardOutput) Value(string)          {}
func (discardOutput) Notify(string, string) {}

type boundNames struct{ names []string }

func (b *boundNames) Bind(name string) { b.names = append(b.names, name) }
func (b *boundNames) Append(string) error {
	return nil
}

type ScannerTestSuite struct {
	suitelib.Suite

	helper *testutils.TestHelper
}

func (suite *ScannerTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
}

func (suite *ScannerTestSuite) startScanner(dev device.ScanningDevice, opts *scanner.ScanOptions) *scanner.Scanner {
	ctx, cancel := context.WithCancel(context.Background())
	suite.T().Cleanup(cancel)

	s := scanner.NewScanner(dev, opts, suite.helper.Logger)
	s.Start(ctx)
	return s
}

func (suite *ScannerTestSuite) waitForDevices(s *scanner.Scanner, n int) []device.DeviceInfo {
	var devs []device.DeviceInfo
	suite.Require().Eventually(func() bool {
		devs = s.Devices()
		return len(devs) == n
	}, time.Second, 5*time.Millisecond, "scanner MUST report %d devices", n)
	return devs
}

// GOAL: Verify the device list is sorted by name, skips unnamed devices and
// lists each name once.
//
// TEST SCENARIO: Advertise Sensor-B, Sensor-A, an unnamed device and a second
// Sensor-A -> Devices() returns [Sensor-A, Sensor-B].
func (suite *ScannerTestSuite) TestDevicesSortedAndDeduplicated() {
	dev := testutils.NewFakeScanningDevice(
		testutils.NewAdvertisementBuilder().WithAddress("11:11:11:11:11:11").WithName("Sensor-B").Build(),
		testutils.NewAdvertisementBuilder().WithAddress("22:22:22:22:22:22").WithName("Sensor-A").Build(),
		testutils.NewAdvertisementBuilder().WithAddress("33:33:33:33:33:33").Build(),
		testutils.NewAdvertisementBuilder().WithAddress("44:44:44:44:44:44").WithName("Sensor-A").Build(),
	)

	s := suite.startScanner(dev, nil)
	suite.Require().Eventually(func() bool {
		return len(s.Devices()) == 2 && dev.Scans() > 0
	}, time.Second, 5*time.Millisecond)

	// Let the remaining advertisements land before asserting
	time.Sleep(20 * time.Millisecond)
	devs := s.Devices()

	suite.Require().Len(devs, 2)
	suite.Equal("Sensor-A", devs[0].Name)
	suite.Equal("22:22:22:22:22:22", devs[0].ID, "the lowest id MUST win for duplicate names")
	suite.Equal("Sensor-B", devs[1].Name)
}

// GOAL: Verify updates to a known device reach both the events and the device list
//
// TEST SCENARIO: Advertise Thermo at -70, then the same address without a name at -40 → update event and
// Devices() keep the name and carry the new RSSI
func (suite *ScannerTestSuite) TestUpdateKeepsKnownName() {
	dev := testutils.NewFakeScanningDevice(
		testutils.NewAdvertisementBuilder().WithAddress("AA:AA:AA:AA:AA:AA").WithName("Thermo").WithRSSI(-70).Build(),
		testutils.NewAdvertisementBuilder().WithAddress("AA:AA:AA:AA:AA:AA").WithRSSI(-40).Build(),
	)

	s := suite.startScanner(dev, nil)

	var events []scanner.DeviceEvent
	for len(events) < 2 {
		select {
		case ev := <-s.Events():
			events = append(events, ev)
		case <-time.After(time.Second):
			suite.FailNow("timed out waiting for scanner events")
		}
	}

	suite.Equal(scanner.EventNew, events[0].Type)
	suite.Equal(scanner.EventUpdated, events[1].Type)
	suite.Equal("Thermo", events[1].DeviceInfo.Name, "a nameless update MUST keep the known name")
	suite.Equal(-40, events[1].DeviceInfo.RSSI)

	devs := suite.waitForDevices(s, 1)
	suite.Equal("Thermo", devs[0].Name)
	suite.Equal(-40, devs[0].RSSI, "the device list MUST carry the latest RSSI")
}

// GOAL: Verify a device whose name arrives after its first advertisement becomes listed and openable
//
// TEST SCENARIO: Advertise AA:... without a name, then with name Thermo → Devices() lists Thermo →
// engine opens it by #00
func (suite *ScannerTestSuite) TestLateNameMakesDeviceOpenable() {
	dev := testutils.NewFakeScanningDevice(
		testutils.NewAdvertisementBuilder().WithAddress("AA:AA:AA:AA:AA:AA").WithRSSI(-70).Build(),
		testutils.NewAdvertisementBuilder().WithAddress("AA:AA:AA:AA:AA:AA").WithName("Thermo").WithRSSI(-60).Build(),
	)
	s := suite.startScanner(dev, nil)

	devs := suite.waitForDevices(s, 1)
	suite.Equal("Thermo", devs[0].Name, "the name from a later advertisement MUST be listed")
	suite.Equal("AA:AA:AA:AA:AA:AA", devs[0].Address)

	thermo := testutils.NewPeripheralBuilder("Thermo").
		WithAddress("AA:AA:AA:AA:AA:AA").
		WithService("181A", "Environmental Sensing")
	connector := &testutils.MockConnector{}
	connector.On("Connect", mock.Anything, mock.MatchedBy(func(info device.DeviceInfo) bool {
		return info.Address == "AA:AA:AA:AA:AA:AA"
	})).Return(thermo.Build(), nil).Once()

	names := &boundNames{}
	sess := session.New(codec.Text)
	eng := engine.New(sess, s, connector, names, discardOutput{}, nil, suite.helper.Logger)

	suite.Require().NoError(eng.Open(context.Background(), "#00"), "the late-named device MUST be openable by index")
	suite.Equal([]string{"Thermo"}, names.names)
	suite.Require().NotNil(sess.Tree.Device())
	suite.Equal("Thermo", sess.Tree.Device().Name())
	connector.AssertExpectations(suite.T())
	suite.Require().NoError(eng.Close(context.Background()), "closing the device MUST succeed")
}

func (suite *ScannerTestSuite) TestAllowAndBlockLists() {
	ads := []device.Advertisement{
		testutils.NewAdvertisementBuilder().WithAddress("11:11:11:11:11:11").WithName("One").Build(),
		testutils.NewAdvertisementBuilder().WithAddress("22:22:22:22:22:22").WithName("Two").Build(),
		testutils.NewAdvertisementBuilder().WithAddress("33:33:33:33:33:33").WithName("Three").Build(),
	}

	suite.Run("block list", func() {
		opts := scanner.DefaultScanOptions()
		opts.BlockList = []string{"22:22:22:22:22:22"}
		s := suite.startScanner(testutils.NewFakeScanningDevice(ads...), opts)

		devs := suite.waitForDevices(s, 2)
		suite.Equal("One", devs[0].Name)
		suite.Equal("Three", devs[1].Name)
	})

	suite.Run("allow list", func() {
		opts := scanner.DefaultScanOptions()
		opts.AllowList = []string{"33:33:33:33:33:33"}
		s := suite.startScanner(testutils.NewFakeScanningDevice(ads...), opts)

		devs := suite.waitForDevices(s, 1)
		suite.Equal("Three", devs[0].Name)
	})
}

func (suite *ScannerTestSuite) TestFailedScanIsRestarted() {
	dev := testutils.NewFakeScanningDevice()
	dev.FailWith(errors.New("adapter busy"))

	opts := scanner.DefaultScanOptions()
	opts.RestartDelay = 5 * time.Millisecond
	suite.startScanner(dev, opts)

	suite.Eventually(func() bool { return dev.Scans() >= 3 }, time.Second, 5*time.Millisecond,
		"a failed scan MUST be restarted")
}

func (suite *ScannerTestSuite) TestEventsClosedOnStop() {
	ctx, cancel := context.WithCancel(context.Background())
	s := scanner.NewScanner(testutils.NewFakeScanningDevice(), nil, suite.helper.Logger)
	s.Start(ctx)
	cancel()

	select {
	case _, ok := <-s.Events():
		suite.False(ok, "events channel MUST be closed once scanning stops")
	case <-time.After(time.Second):
		suite.Fail("events channel was not closed")
	}
}

func TestScannerTestSuite(t *testing.T) {
	suitelib.Run(t, new(ScannerTestSuite))
}
