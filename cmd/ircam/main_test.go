package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ircam/internal/config"
	"github.com/banshee-data/ircam/internal/serialmux"
	"github.com/banshee-data/ircam/internal/thermal"
)

func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		for _, name := range []string{"listen", "port", "rate", "capture-dir", "db-path"} {
			f := flag.CommandLine.Lookup(name)
			f.Value.Set(f.DefValue)
		}
		*devMode, *disableCamera = false, false
	})
}

func TestLoadConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := loadConfig("", fs)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultPort, cfg.GetPort())
	assert.Equal(t, config.DefaultReportRateHz, cfg.GetReportRateHz())
	assert.Equal(t, config.DefaultDBPath, cfg.GetDBPath())
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	resetFlags(t)
	path := filepath.Join(t.TempDir(), "ircam.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": "/dev/ttyUSB1", "report_rate_hz": 8, "listen": ":9000"}`), 0o644))

	require.NoError(t, flag.CommandLine.Set("rate", "4"))
	require.NoError(t, flag.CommandLine.Set("db-path", ""))

	cfg, err := loadConfig(path, flag.CommandLine)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", cfg.GetPort())
	assert.Equal(t, 4.0, cfg.GetReportRateHz())
	assert.Equal(t, ":9000", cfg.GetListen())
	assert.Empty(t, cfg.GetDBPath())
}

func TestLoadConfig_InvalidRate(t *testing.T) {
	resetFlags(t)
	require.NoError(t, flag.CommandLine.Set("rate", "3"))
	_, err := loadConfig("", flag.CommandLine)
	assert.Error(t, err)
}

func TestLoadConfig_BadFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.json"), flag.NewFlagSet("test", flag.ContinueOnError))
	assert.Error(t, err)
}

func TestOpenCamera_Modes(t *testing.T) {
	resetFlags(t)
	cfg := &config.CaptureConfig{}

	*disableCamera = true
	m, source, err := openCamera(cfg)
	require.NoError(t, err)
	assert.Equal(t, "disabled", source)
	require.NoError(t, m.Close())

	*disableCamera, *devMode = false, true
	m, source, err = openCamera(cfg)
	require.NoError(t, err)
	assert.Equal(t, "simcam", source)
	require.NoError(t, m.Initialize(cfg.GetReportRateHz()))
	require.NoError(t, m.Close())
}

func TestOpenCamera_SerialPort(t *testing.T) {
	resetFlags(t)
	port := serialmux.NewTestableSerialPort()
	factory := serialmux.NewMockSerialPortFactory(port)
	orig := portFactory
	portFactory = factory
	t.Cleanup(func() { portFactory = orig })

	dev, baud, rate := "/dev/ttyUSB3", 230400, 4.0
	cfg := &config.CaptureConfig{Port: &dev, BaudRate: &baud, ReportRateHz: &rate}

	m, source, err := openCamera(cfg)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, dev, source)

	call := factory.LastCall()
	require.NotNil(t, call)
	assert.Equal(t, dev, call.Path)
	assert.Equal(t, 230400, call.Opts.BaudRate)

	require.NoError(t, m.Initialize(cfg.GetReportRateHz()))
	assert.Equal(t, ";rate 4;auto on;", string(port.GetWrittenData()))
}

func TestRun_TransportFailureIsReturned(t *testing.T) {
	resetFlags(t)
	port := serialmux.NewTestableSerialPort()
	port.AddReadData([]byte("{0" + "AA"))
	port.ReadError = errors.New("device unplugged")
	orig := portFactory
	portFactory = serialmux.NewMockSerialPortFactory(port)
	t.Cleanup(func() { portFactory = orig })

	dir := t.TempDir()
	dev, listen, noDir, noDB, noStats := "/dev/ttyUSB0", "127.0.0.1:0", "", "", "0s"
	cfg := &config.CaptureConfig{
		Port:          &dev,
		Listen:        &listen,
		CaptureDir:    &noDir,
		DBPath:        &noDB,
		StatsInterval: &noStats,
	}

	t.Chdir(dir)

	err := run(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, thermal.ErrTransportFailure)
	assert.ErrorContains(t, err, "device unplugged")
	assert.Contains(t, string(port.GetWrittenData()), "auto off;")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "an empty capture dir writes no log")
}
