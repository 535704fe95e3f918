package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/lyfleet/internal/codec"
	"github.com/srg/lyfleet/internal/device"
	"github.com/srg/lyfleet/internal/testutils"
	"github.com/srg/lyfleet/internal/testutils/mocks"
	"github.com/srg/lyfleet/pkg/config"
	"github.com/srg/lyfleet/scanner"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// Test device addresses for consistent fake device identification
const (
	TestDeviceAddress1 = "A4:C1:38:00:00:01"
	TestDeviceAddress2 = "E7:2E:00:00:00:02"
)

const testConfig = `
log_level: error
radio:
  backend: none
devices:
  - address: ` + TestDeviceAddress1 + `
    id: kitchen
  - address: ` + TestDeviceAddress2 + `
    id: hall
    variant: lywsd02
`

// CommandTestSuite runs commands against fake radio links.
type CommandTestSuite struct {
	suite.Suite

	configPath string
	links      []*testutils.FakeLink
	// script prepares every fake link handed out to a command
	script  func(*testutils.FakeLink)
	control device.RadioControl

	origLink    func(*logrus.Logger) device.RadioLink
	origControl func(*config.Config, *logrus.Logger) (device.RadioControl, error)
	origScan    scanner.ScanFunc
}

func (s *CommandTestSuite) SetupSuite() {
	color.NoColor = true
	s.origLink, s.origControl, s.origScan = newRadioLink, newRadioControl, scanFunc
	scanFunc = func(_ context.Context, _ bool, handler func(device.Advertisement)) error {
		handler(device.Advertisement{Address: "a4:c1:38:00:00:09", Name: "LYWSD03MMC", RSSI: -70})
		handler(device.Advertisement{Address: "e7:2e:00:00:00:08", Name: "LYWSD02", RSSI: -50})
		handler(device.Advertisement{Address: "11:22:33:44:55:66", Name: "Speaker", RSSI: -30})
		return nil
	}
}

func (s *CommandTestSuite) TearDownSuite() {
	newRadioLink, newRadioControl, scanFunc = s.origLink, s.origControl, s.origScan
}

func (s *CommandTestSuite) SetupTest() {
	s.configPath = filepath.Join(s.T().TempDir(), "lyfleet.yaml")
	s.Require().NoError(os.WriteFile(s.configPath, []byte(testConfig), 0o600))

	s.links = nil
	s.script = func(*testutils.FakeLink) {}
	s.control = nil

	newRadioLink = func(*logrus.Logger) device.RadioLink {
		fake := testutils.NewFakeLink()
		s.script(fake)
		s.links = append(s.links, fake)
		return fake
	}
	newRadioControl = func(*config.Config, *logrus.Logger) (device.RadioControl, error) {
		return s.control, nil
	}

	// cobra keeps flag values between executions
	readVariant, readJSON, readWatch = "", false, 0
	historyVariant, historyOutput, historyFrom = "", "", -1
	deviceVariant, clockSet, clockTZ = "", false, 0
	runOnce, runInterval, runCSV, runQuiet = false, 0, "", false
	scanDuration, scanAll, scanYAML, scanAllow, scanBlock = time.Second, false, false, nil, nil
	resetBackend, resetAdapter, resetSettle, resetRestart, resetDisconnect = "", "", 0, false, ""
	s.Require().NoError(rootCmd.PersistentFlags().Set("log-level", ""))
}

// ExecuteCommand runs the root command with args and the test config, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(append(args, "--config", s.configPath))
	err := rootCmd.Execute()
	return buf.String(), err
}

func richSample(temp float64, humidity int, voltage float64) []byte {
	return codec.EncodeSample(device.VariantRich, codec.Sample{Temperature: temp, Humidity: humidity, Voltage: &voltage})
}

func simpleSample(temp float64, humidity int) []byte {
	return codec.EncodeSample(device.VariantSimple, codec.Sample{Temperature: temp, Humidity: humidity})
}

func (s *CommandTestSuite) TestRead() {
	s.Run("rich device by id", func() {
		s.script = func(f *testutils.FakeLink) {
			f.WithNotifications(device.UUIDData, richSample(21.5, 45, 2.98))
		}

		out, err := s.ExecuteCommand("read", "kitchen")
		s.Require().NoError(err)
		testutils.NewTextAsserter(s.T()).Assert(out, "temperature=21.50°C humidity=45% voltage=2.980V battery=67.7%")
		s.Require().Len(s.links, 1)
		s.Equal(0, s.links[0].ConnectCalls-s.links[0].Disconnects, "session MUST be closed")
	})

	s.Run("simple device as json", func() {
		readJSON = false
		s.links = nil
		s.script = func(f *testutils.FakeLink) {
			f.WithNotifications(device.UUIDData, simpleSample(19.25, 51)).
				WithValue(device.UUIDBattery, []byte{87})
		}

		out, err := s.ExecuteCommand("read", strings.ToLower(TestDeviceAddress2), "--json")
		s.Require().NoError(err)
		testutils.NewJSONAsserter(s.T()).Assert(out, `{
			"address": "E7:2E:00:00:00:02",
			"time": "<<PRESENCE>>",
			"temperature": 19.25,
			"humidity": 51,
			"battery": 87
		}`)
	})

	s.Run("silent device times out", func() {
		readJSON = false
		s.script = func(*testutils.FakeLink) {}

		_, err := s.ExecuteCommand("read", "kitchen")
		s.Require().ErrorIs(err, device.ErrTimeout)
		s.Contains(FormatUserError(err), "did not answer")
	})

	s.Run("unknown device", func() {
		_, err := s.ExecuteCommand("read", "attic")
		s.Require().ErrorIs(err, ErrUnknownDevice)
	})
}

func (s *CommandTestSuite) TestUnits() {
	s.Run("get", func() {
		s.script = func(f *testutils.FakeLink) { f.WithValue(device.UUIDUnits, []byte{0xFF}) }

		out, err := s.ExecuteCommand("units", "hall")
		s.Require().NoError(err)
		s.Equal("C\n", out)
	})

	s.Run("set", func() {
		s.links = nil
		out, err := s.ExecuteCommand("units", "kitchen", "f")
		s.Require().NoError(err)
		s.Empty(out)
		s.Require().Len(s.links, 1)
		s.Require().Len(s.links[0].Writes, 1)
		s.Equal([]byte{0x01}, s.links[0].Writes[0].Data)
	})

	s.Run("invalid unit never connects", func() {
		s.links = nil
		_, err := s.ExecuteCommand("units", "kitchen", "K")
		s.Require().ErrorIs(err, device.ErrValue)
		s.Empty(s.links)
	})
}

func (s *CommandTestSuite) TestBattery() {
	s.script = func(f *testutils.FakeLink) { f.WithValue(device.UUIDBattery, []byte{64}) }

	out, err := s.ExecuteCommand("battery", "hall")
	s.Require().NoError(err)
	s.Equal("64.0%\n", out)
}

func (s *CommandTestSuite) TestClock() {
	s.Run("set on rich device is a no-op", func() {
		out, err := s.ExecuteCommand("clock", "kitchen", "--set")
		s.Require().NoError(err)
		s.Contains(out, "nothing to set")
		s.Empty(s.links[0].Writes)
	})

	s.Run("set on simple device", func() {
		s.links = nil
		out, err := s.ExecuteCommand("clock", "hall", "--set")
		s.Require().NoError(err)
		s.Contains(out, "clock set to")
		s.Require().Len(s.links[0].Writes, 1)
		s.Len(s.links[0].Writes[0].Data, codec.EpochTZSize)
	})
}

func (s *CommandTestSuite) TestHistory() {
	entry := func(idx uint32, ts time.Time) []byte {
		return codec.EncodeHistory(device.VariantSimple, codec.HistoryEntry{
			Index: idx, Seconds: uint32(ts.Unix()),
			MinTemperature: 20.5, MinHumidity: 40, MaxTemperature: 22.5, MaxHumidity: 48,
		})
	}
	base := time.Date(2026, 10, 18, 10, 0, 0, 0, time.Local)
	s.script = func(f *testutils.FakeLink) {
		f.WithNotifications(device.UUIDHistory, entry(1, base), entry(2, base.Add(time.Hour)))
	}

	out, err := s.ExecuteCommand("history", "hall", "--from", "1")
	s.Require().NoError(err)
	testutils.NewTextAsserter(s.T()).Assert(out, `
Time,Min temperature,Min humidity,Max temperature,Max humidity
2026-10-18 10:00:00,20.5,40,22.5,48
2026-10-18 11:00:00,20.5,40,22.5,48
`)
	s.Require().Len(s.links[0].Writes, 1, "history cursor MUST be moved first")
	s.Equal(codec.EncodeHistoryIndex(1), s.links[0].Writes[0].Data)
}

func (s *CommandTestSuite) TestRunOnce() {
	s.script = func(f *testutils.FakeLink) {
		f.WithNotifications(device.UUIDData, richSample(21.5, 45, 2.98), simpleSample(19.25, 51)).
			WithValue(device.UUIDBattery, []byte{87})
	}
	csvPath := filepath.Join(s.T().TempDir(), "states.csv")

	out, err := s.ExecuteCommand("run", "--once", "--csv", csvPath)
	s.Require().NoError(err)
	s.Contains(out, "kitchen")
	s.Contains(out, "hall")

	data, err := os.ReadFile(csvPath)
	s.Require().NoError(err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	s.Require().Len(lines, 3)
	s.True(strings.HasPrefix(lines[0], "Time,Id,Address"))
}

func (s *CommandTestSuite) TestRunWithoutDevices() {
	s.Require().NoError(os.WriteFile(s.configPath, []byte("radio:\n  backend: none\n"), 0o600))

	_, err := s.ExecuteCommand("run", "--once")
	s.Require().ErrorContains(err, "no devices configured")
}

func (s *CommandTestSuite) TestReset() {
	s.Require().NoError(os.WriteFile(s.configPath, []byte("radio:\n  settle_delay: 5s\n"), 0o600))

	s.Run("power cycle", func() {
		control := mocks.NewMockRadioControl(s.T())
		control.EXPECT().PowerCycle(mock.Anything, 5*time.Second).
			Return(device.PowerCycleResult{Off: "hci0 powered off", On: "hci0 powered on"}, nil).Once()
		s.control = control

		out, err := s.ExecuteCommand("reset")
		s.Require().NoError(err)
		testutils.NewTextAsserter(s.T()).Assert(out, `
off: hci0 powered off
on:  hci0 powered on
`)
	})

	s.Run("force disconnect", func() {
		control := mocks.NewMockRadioControl(s.T())
		control.EXPECT().ForceDisconnect(mock.Anything, TestDeviceAddress1).Return(nil).Once()
		s.control = control

		out, err := s.ExecuteCommand("reset", "--disconnect", TestDeviceAddress1)
		s.Require().NoError(err)
		s.Contains(out, "disconnected")
	})
}

func (s *CommandTestSuite) TestScan() {
	s.Run("table", func() {
		out, err := s.ExecuteCommand("scan")
		s.Require().NoError(err)
		testutils.NewTextAsserter(s.T()).Assert(out, `
ADDRESS            NAME          VARIANT      RSSI  SEEN
--------------------------------------------------------
E7:2E:00:00:00:08  LYWSD02       lywsd02       -50  1
A4:C1:38:00:00:09  LYWSD03MMC    lywsd03mmc    -70  1
`)
	})

	s.Run("yaml snippet is a valid configuration", func() {
		out, err := s.ExecuteCommand("scan", "--yaml", "--all")
		s.Require().NoError(err)

		cfg, err := config.Parse([]byte(out))
		s.Require().NoError(err)
		s.Equal([]config.DeviceConfig{
			{Address: "E7:2E:00:00:00:08", ID: "E7:2E:00:00:00:08", Variant: "lywsd02"},
			{Address: "A4:C1:38:00:00:09", ID: "A4:C1:38:00:00:09", Variant: "lywsd03mmc"},
		}, cfg.Devices)
	})
}

func TestCommandTestSuite(t *testing.T) {
	suite.Run(t, new(CommandTestSuite))
}
