package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/odometry/internal/config"
	"github.com/banshee-data/odometry/internal/serialmux"
	"github.com/banshee-data/odometry/internal/units"
)

// setFlag overrides a parsed flag value for the duration of a test.
func setFlag[T any](t *testing.T, p *T, v T) {
	t.Helper()
	old := *p
	*p = v
	t.Cleanup(func() { *p = old })
}

func TestResolveSettings_Defaults(t *testing.T) {
	s, err := resolveSettings(config.DefaultOdometryConfig())
	require.NoError(t, err)

	assert.Equal(t, config.DefaultSerialPort, s.Port)
	assert.Equal(t, config.DefaultListen, s.Listen)
	assert.Equal(t, config.DefaultGRPCListen, s.GRPCListen)
	assert.Equal(t, config.DefaultDBPath, s.DBPath)
	assert.Equal(t, units.MPS, s.Units)
	assert.Equal(t, config.DefaultPersistInterval, s.PersistInterval)
	assert.Equal(t, config.DefaultStreamRateHz, s.StreamRateHz)
	assert.Equal(t, "115200/8N1", s.PortOptions.String())
}

func TestResolveSettings_FlagsOverride(t *testing.T) {
	setFlag(t, port, "/dev/ttyACM0")
	setFlag(t, listen, "127.0.0.1:9000")
	setFlag(t, grpcListen, "off")
	setFlag(t, dbPath, "OFF")
	setFlag(t, unitsFlag, units.KPH)

	s, err := resolveSettings(config.DefaultOdometryConfig())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", s.Port)
	assert.Equal(t, "127.0.0.1:9000", s.Listen)
	assert.Empty(t, s.GRPCListen)
	assert.Empty(t, s.DBPath)
	assert.Equal(t, units.KPH, s.Units)
}

func TestResolveSettings_PortOff(t *testing.T) {
	setFlag(t, port, "off")
	s, err := resolveSettings(config.DefaultOdometryConfig())
	require.NoError(t, err)
	assert.Empty(t, s.Port)

	sensor, err := openSensor(s)
	require.NoError(t, err)
	defer sensor.Close()
	assert.IsType(t, &serialmux.DisabledSerialMux{}, sensor)
}

func TestResolveSettings_Invalid(t *testing.T) {
	t.Run("units", func(t *testing.T) {
		setFlag(t, unitsFlag, "furlongs")
		_, err := resolveSettings(config.DefaultOdometryConfig())
		assert.Error(t, err)
	})
	t.Run("parity", func(t *testing.T) {
		cfg := config.DefaultOdometryConfig()
		parity := "M"
		cfg.Parity = &parity
		_, err := resolveSettings(cfg)
		assert.Error(t, err)
	})
}

func TestReplayInterval(t *testing.T) {
	assert.Equal(t, 20*time.Millisecond, replayInterval(50))
	assert.Equal(t, 100*time.Millisecond, replayInterval(10))
	assert.Equal(t, time.Second/serialmux.DefaultStreamRateHz, replayInterval(0))
}

func TestReplayLines_Fixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.txt")
	data := "# wheel spin\n0,0,0\n{\"left\":1.5,\"right\":2,\"ts\":20}\n3,4\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	lines, err := replayLines(path, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"0,0,0", "1.5,2,20", "3,4"}, lines)
}

func TestReplayLines_Errors(t *testing.T) {
	_, err := replayLines(filepath.Join(t.TempDir(), "missing.txt"), false)
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n"), 0644))
	_, err = replayLines(empty, false)
	assert.Error(t, err)

	_, err = replayLines(empty, true)
	assert.Error(t, err)
}

func TestOpenSensor_Dev(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.txt")
	require.NoError(t, os.WriteFile(path, []byte("0,0,0\n"), 0644))
	setFlag(t, devMode, true)
	setFlag(t, fixtures, path)

	s, err := resolveSettings(config.DefaultOdometryConfig())
	require.NoError(t, err)
	sensor, err := openSensor(s)
	require.NoError(t, err)
	defer sensor.Close()
	assert.IsType(t, &serialmux.SerialMux[*serialmux.MockSerialPort]{}, sensor)
	assert.NoError(t, sensor.Initialize())
}
