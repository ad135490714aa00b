package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/odometry/internal/odometry"
	"github.com/banshee-data/odometry/internal/units"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/odometry.defaults.json"

// Fallback values returned by the Get* accessors when a field is unset.
const (
	DefaultSerialPort      = "/dev/ttyUSB0"
	DefaultBaudRate        = 115200
	DefaultListen          = ":8080"
	DefaultGRPCListen      = ":50051"
	DefaultDBPath          = "odometry.db"
	DefaultUnits           = units.MPS
	DefaultPersistInterval = 100 * time.Millisecond
	DefaultStreamRateHz    = 50
)

// OdometryConfig is the on-disk service configuration. Every field is a
// pointer so a partial file only overrides what it names.
type OdometryConfig struct {
	// Drive geometry
	WheelCircumference    *float64 `json:"wheel_circumference_m,omitempty"`
	WheelBase             *float64 `json:"wheel_base_m,omitempty"`
	GearRatio             *float64 `json:"gear_ratio,omitempty"`
	RolloverThreshold     *float64 `json:"rollover_threshold_deg,omitempty"`
	RightForwardIncreases *bool    `json:"right_forward_increases,omitempty"`
	LeftForwardIncreases  *bool    `json:"left_forward_increases,omitempty"`

	// Encoder board serial link
	SerialPort   *string `json:"serial_port,omitempty"`
	BaudRate     *int    `json:"baud_rate,omitempty"`
	DataBits     *int    `json:"data_bits,omitempty"`
	StopBits     *int    `json:"stop_bits,omitempty"`
	Parity       *string `json:"parity,omitempty"`
	StreamRateHz *int    `json:"stream_rate_hz,omitempty"`

	// Service
	Listen          *string `json:"listen,omitempty"`
	GRPCListen      *string `json:"grpc_listen,omitempty"`
	DBPath          *string `json:"db_path,omitempty"`
	Units           *string `json:"units,omitempty"`
	PersistInterval *string `json:"persist_interval,omitempty"` // duration string like "100ms"
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns an OdometryConfig with all fields unset.
func EmptyConfig() *OdometryConfig {
	return &OdometryConfig{}
}

// DefaultOdometryConfig returns a fully populated config matching the
// reference robot.
func DefaultOdometryConfig() *OdometryConfig {
	return &OdometryConfig{
		WheelCircumference:    ptrFloat64(odometry.DefaultWheelCircumference),
		WheelBase:             ptrFloat64(odometry.DefaultWheelBase),
		GearRatio:             ptrFloat64(odometry.DefaultGearRatio),
		RolloverThreshold:     ptrFloat64(odometry.DefaultRolloverThreshold),
		RightForwardIncreases: ptrBool(true),
		LeftForwardIncreases:  ptrBool(true),
		SerialPort:            ptrString(DefaultSerialPort),
		BaudRate:              ptrInt(DefaultBaudRate),
		DataBits:              ptrInt(8),
		StopBits:              ptrInt(1),
		Parity:                ptrString("N"),
		StreamRateHz:          ptrInt(DefaultStreamRateHz),
		Listen:                ptrString(DefaultListen),
		GRPCListen:            ptrString(DefaultGRPCListen),
		DBPath:                ptrString(DefaultDBPath),
		Units:                 ptrString(DefaultUnits),
		PersistInterval:       ptrString(DefaultPersistInterval.String()),
	}
}

// LoadConfig loads an OdometryConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file fall back to the Get* defaults.
func LoadConfig(path string) (*OdometryConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching from the current
// directory up towards the repository root. Panics if the file cannot be
// loaded, intended for test setup.
func MustLoadDefaultConfig() *OdometryConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // from cmd/<tool>/ nested packages
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate performs structural checks. Geometry values are not checked for
// physical plausibility.
func (c *OdometryConfig) Validate() error {
	for name, v := range map[string]*float64{
		"wheel_circumference_m":  c.WheelCircumference,
		"wheel_base_m":           c.WheelBase,
		"gear_ratio":             c.GearRatio,
		"rollover_threshold_deg": c.RolloverThreshold,
	} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%s must be a finite number, got %v", name, *v)
		}
	}

	if c.BaudRate != nil && *c.BaudRate < 0 {
		return fmt.Errorf("baud_rate must be non-negative, got %d", *c.BaudRate)
	}
	if c.DataBits != nil && *c.DataBits != 0 && (*c.DataBits < 5 || *c.DataBits > 8) {
		return fmt.Errorf("data_bits must be between 5 and 8, got %d", *c.DataBits)
	}
	if c.StopBits != nil && *c.StopBits != 0 && *c.StopBits != 1 && *c.StopBits != 2 {
		return fmt.Errorf("stop_bits must be 1 or 2, got %d", *c.StopBits)
	}
	if c.Parity != nil {
		switch strings.ToUpper(strings.TrimSpace(*c.Parity)) {
		case "", "N", "NONE", "E", "EVEN", "O", "ODD":
		default:
			return fmt.Errorf("invalid parity %q", *c.Parity)
		}
	}
	if c.StreamRateHz != nil && *c.StreamRateHz < 0 {
		return fmt.Errorf("stream_rate_hz must be non-negative, got %d", *c.StreamRateHz)
	}

	if c.Units != nil && *c.Units != "" && !units.IsValid(*c.Units) {
		return fmt.Errorf("invalid units %q, must be one of: %s", *c.Units, units.GetValidUnitsString())
	}

	if c.PersistInterval != nil && *c.PersistInterval != "" {
		if _, err := time.ParseDuration(*c.PersistInterval); err != nil {
			return fmt.Errorf("invalid persist_interval '%s': %w", *c.PersistInterval, err)
		}
	}

	return nil
}

// GetWheelCircumference returns the wheel circumference in meters or the default.
func (c *OdometryConfig) GetWheelCircumference() float64 {
	if c.WheelCircumference == nil {
		return odometry.DefaultWheelCircumference
	}
	return *c.WheelCircumference
}

// GetWheelBase returns the wheel base in meters or the default.
func (c *OdometryConfig) GetWheelBase() float64 {
	if c.WheelBase == nil {
		return odometry.DefaultWheelBase
	}
	return *c.WheelBase
}

// GetGearRatio returns the encoder gear ratio or the default.
func (c *OdometryConfig) GetGearRatio() float64 {
	if c.GearRatio == nil {
		return odometry.DefaultGearRatio
	}
	return *c.GearRatio
}

// GetRolloverThreshold returns the rollover threshold in degrees or the default.
func (c *OdometryConfig) GetRolloverThreshold() float64 {
	if c.RolloverThreshold == nil {
		return odometry.DefaultRolloverThreshold
	}
	return *c.RolloverThreshold
}

// GetRightForwardIncreases returns the right encoder direction or true.
func (c *OdometryConfig) GetRightForwardIncreases() bool {
	if c.RightForwardIncreases == nil {
		return true
	}
	return *c.RightForwardIncreases
}

// GetLeftForwardIncreases returns the left encoder direction or true.
func (c *OdometryConfig) GetLeftForwardIncreases() bool {
	if c.LeftForwardIncreases == nil {
		return true
	}
	return *c.LeftForwardIncreases
}

// GetSerialPort returns the serial device path or the default.
func (c *OdometryConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return DefaultSerialPort
	}
	return *c.SerialPort
}

// GetBaudRate returns the serial baud rate or the default.
func (c *OdometryConfig) GetBaudRate() int {
	if c.BaudRate == nil || *c.BaudRate == 0 {
		return DefaultBaudRate
	}
	return *c.BaudRate
}

func (c *OdometryConfig) GetDataBits() int {
	if c.DataBits == nil {
		return 0
	}
	return *c.DataBits
}

func (c *OdometryConfig) GetStopBits() int {
	if c.StopBits == nil {
		return 0
	}
	return *c.StopBits
}

func (c *OdometryConfig) GetParity() string {
	if c.Parity == nil {
		return ""
	}
	return *c.Parity
}

// GetStreamRateHz returns the board output rate requested at start-up.
func (c *OdometryConfig) GetStreamRateHz() int {
	if c.StreamRateHz == nil || *c.StreamRateHz == 0 {
		return DefaultStreamRateHz
	}
	return *c.StreamRateHz
}

func (c *OdometryConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

func (c *OdometryConfig) GetGRPCListen() string {
	if c.GRPCListen == nil || *c.GRPCListen == "" {
		return DefaultGRPCListen
	}
	return *c.GRPCListen
}

func (c *OdometryConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return DefaultDBPath
	}
	return *c.DBPath
}

// GetUnits returns the speed unit used for API output.
func (c *OdometryConfig) GetUnits() string {
	if c.Units == nil || *c.Units == "" {
		return DefaultUnits
	}
	return *c.Units
}

// GetPersistInterval returns the minimum gap between persisted samples.
// Zero persists every frame.
func (c *OdometryConfig) GetPersistInterval() time.Duration {
	if c.PersistInterval == nil || *c.PersistInterval == "" {
		return DefaultPersistInterval
	}
	d, err := time.ParseDuration(*c.PersistInterval)
	if err != nil {
		return DefaultPersistInterval
	}
	return d
}

// ToOdometry converts the geometry section to the processor configuration.
func (c *OdometryConfig) ToOdometry() odometry.Config {
	return odometry.Config{
		WheelCircumference:    c.GetWheelCircumference(),
		WheelBase:             c.GetWheelBase(),
		GearRatio:             c.GetGearRatio(),
		RolloverThreshold:     c.GetRolloverThreshold(),
		RightForwardIncreases: c.GetRightForwardIncreases(),
		LeftForwardIncreases:  c.GetLeftForwardIncreases(),
	}
}
