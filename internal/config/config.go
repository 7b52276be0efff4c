// Package config loads the alignment configuration. Every field is a
// pointer so a partial file only overrides what it names; the Get* methods
// supply the defaults for everything else.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/picoalign/internal/serialport"
	"github.com/banshee-data/picoalign/internal/simplex"
)

// DefaultConfigPath is the path to the example configuration shipped with
// the repository.
const DefaultConfigPath = "config/picoalign.defaults.json"

// DefaultControllerTCPPort is the controller's telnet port.
const DefaultControllerTCPPort = "23"

// Transport kinds.
const (
	TransportSerial = "serial"
	TransportTCP    = "tcp"
)

// Sensor kinds.
const (
	SensorSCPI      = "scpi"
	SensorSynthetic = "synthetic"
)

// maxAxes is bounded by the single-digit axis field of the command grammar.
const maxAxes = 9

// Config is the root configuration.
type Config struct {
	Transport TransportConfig `json:"transport" yaml:"transport"`
	Sensor    SensorConfig    `json:"sensor" yaml:"sensor"`
	Search    SearchConfig    `json:"search" yaml:"search"`

	Axes           *int    `json:"axes,omitempty" yaml:"axes,omitempty"`
	SettleDelay    *string `json:"settle_delay,omitempty" yaml:"settle_delay,omitempty"` // duration string like "500ms"
	Velocity       *int    `json:"velocity,omitempty" yaml:"velocity,omitempty"`
	Acceleration   *int    `json:"acceleration,omitempty" yaml:"acceleration,omitempty"`
	Rehome         *bool   `json:"rehome,omitempty" yaml:"rehome,omitempty"`
	FinalSample    *bool   `json:"final_sample,omitempty" yaml:"final_sample,omitempty"`
	HealthInterval *string `json:"health_interval,omitempty" yaml:"health_interval,omitempty"`
	Database       *string `json:"database,omitempty" yaml:"database,omitempty"`
	OutputDir      *string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
}

// TransportConfig selects the controller link.
type TransportConfig struct {
	// Kind is "serial" or "tcp". Serial reaches the controller's RS-232
	// port or a USB-serial bridge; the 8742's own USB port is a vendor bulk
	// interface, not a serial device. Tcp uses the Ethernet port.
	Kind        *string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Port        *string `json:"port,omitempty" yaml:"port,omitempty"`
	Address     *string `json:"address,omitempty" yaml:"address,omitempty"`
	BaudRate    *int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	DataBits    *int    `json:"data_bits,omitempty" yaml:"data_bits,omitempty"`
	StopBits    *int    `json:"stop_bits,omitempty" yaml:"stop_bits,omitempty"`
	Parity      *string `json:"parity,omitempty" yaml:"parity,omitempty"`
	ReadTimeout *string `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
}

// SensorConfig selects the feedback signal source.
type SensorConfig struct {
	Kind        *string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Port        *string `json:"port,omitempty" yaml:"port,omitempty"`
	Query       *string `json:"query,omitempty" yaml:"query,omitempty"`
	BaudRate    *int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	ReadTimeout *string `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`

	// Synthetic sensor model.
	Center []float64 `json:"center,omitempty" yaml:"center,omitempty"`
	Width  *float64  `json:"width,omitempty" yaml:"width,omitempty"`
	Noise  *float64  `json:"noise,omitempty" yaml:"noise,omitempty"`
	Seed   *int64    `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// SearchConfig holds the simplex parameters.
type SearchConfig struct {
	Dim                    *int     `json:"dim,omitempty" yaml:"dim,omitempty"`
	InitialStep            *float64 `json:"initial_step,omitempty" yaml:"initial_step,omitempty"`
	Alpha                  *float64 `json:"alpha,omitempty" yaml:"alpha,omitempty"`
	Gamma                  *float64 `json:"gamma,omitempty" yaml:"gamma,omitempty"`
	Rho                    *float64 `json:"rho,omitempty" yaml:"rho,omitempty"`
	Sigma                  *float64 `json:"sigma,omitempty" yaml:"sigma,omitempty"`
	MaxIterations          *int     `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	NoImprovementThreshold *float64 `json:"no_improvement_threshold,omitempty" yaml:"no_improvement_threshold,omitempty"`
	NoImprovementPatience  *int     `json:"no_improvement_patience,omitempty" yaml:"no_improvement_patience,omitempty"`
	ReferenceSignal        *float64 `json:"reference_signal,omitempty" yaml:"reference_signal,omitempty"`
}

// Empty returns a Config with all fields unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a configuration file. The format follows the extension:
// .json, .yaml or .yml. Fields omitted from the file keep their defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	switch kind := c.GetTransportKind(); kind {
	case TransportSerial:
		if _, err := c.PortOptions().Normalize(); err != nil {
			return fmt.Errorf("transport: %w", err)
		}
	case TransportTCP:
		if c.Transport.Address == nil || *c.Transport.Address == "" {
			return errors.New("transport: tcp requires an address")
		}
	default:
		return fmt.Errorf("transport: unknown kind %q (expected %q or %q)", kind, TransportSerial, TransportTCP)
	}

	durations := map[string]*string{
		"settle_delay":           c.SettleDelay,
		"health_interval":        c.HealthInterval,
		"transport.read_timeout": c.Transport.ReadTimeout,
		"sensor.read_timeout":    c.Sensor.ReadTimeout,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, d)
		}
	}

	axes := c.GetAxes()
	if axes < 1 || axes > maxAxes {
		return fmt.Errorf("axes must be between 1 and %d, got %d", maxAxes, axes)
	}
	if dim := c.GetDim(); dim < 0 || dim > axes {
		return fmt.Errorf("search.dim must be between 0 and %d, got %d", axes, dim)
	}
	if c.Velocity != nil && *c.Velocity < 0 {
		return fmt.Errorf("velocity must be non-negative, got %d", *c.Velocity)
	}
	if c.Acceleration != nil && *c.Acceleration < 0 {
		return fmt.Errorf("acceleration must be non-negative, got %d", *c.Acceleration)
	}

	switch kind := c.GetSensorKind(); kind {
	case SensorSCPI:
		if _, err := c.SensorPortOptions().Normalize(); err != nil {
			return fmt.Errorf("sensor: %w", err)
		}
	case SensorSynthetic:
		if c.GetSyntheticWidth() <= 0 {
			return fmt.Errorf("sensor.width must be positive, got %g", c.GetSyntheticWidth())
		}
	default:
		return fmt.Errorf("sensor: unknown kind %q (expected %q or %q)", kind, SensorSCPI, SensorSynthetic)
	}

	if err := c.SimplexConfig().Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	return nil
}

func getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func getString(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func getInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func getFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func getBool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// GetTransportKind returns the controller link kind, serial by default.
func (c *Config) GetTransportKind() string {
	return strings.ToLower(getString(c.Transport.Kind, TransportSerial))
}

// GetPort returns the controller serial device.
func (c *Config) GetPort() string {
	return getString(c.Transport.Port, "/dev/ttyUSB0")
}

// GetAddress returns the controller host:port, adding the default telnet
// port when none is given.
func (c *Config) GetAddress() string {
	addr := getString(c.Transport.Address, "")
	if addr == "" {
		return ""
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return net.JoinHostPort(addr, DefaultControllerTCPPort)
	}
	return addr
}

// GetReadTimeout returns the controller link read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return getDuration(c.Transport.ReadTimeout, serialport.DefaultReadTimeout)
}

// PortOptions returns the controller serial settings.
func (c *Config) PortOptions() serialport.PortOptions {
	return serialport.PortOptions{
		BaudRate:    getInt(c.Transport.BaudRate, 0),
		DataBits:    getInt(c.Transport.DataBits, 0),
		StopBits:    getInt(c.Transport.StopBits, 0),
		Parity:      getString(c.Transport.Parity, ""),
		ReadTimeout: c.GetReadTimeout(),
	}
}

// GetAxes returns the number of controller axes.
func (c *Config) GetAxes() int {
	return getInt(c.Axes, 4)
}

// GetSettleDelay returns the wait after each move.
func (c *Config) GetSettleDelay() time.Duration {
	return getDuration(c.SettleDelay, 500*time.Millisecond)
}

// GetVelocity returns the step rate to configure on every axis; 0 leaves
// the controller setting unchanged.
func (c *Config) GetVelocity() int {
	return getInt(c.Velocity, 0)
}

// GetAcceleration returns the acceleration to configure on every axis; 0
// leaves the controller setting unchanged.
func (c *Config) GetAcceleration() int {
	return getInt(c.Acceleration, 0)
}

// GetRehome reports whether the best position becomes the new home.
func (c *Config) GetRehome() bool {
	return getBool(c.Rehome, false)
}

// GetFinalSample reports whether the signal is read once more at the best
// position.
func (c *Config) GetFinalSample() bool {
	return getBool(c.FinalSample, true)
}

// GetHealthInterval returns the health poll period.
func (c *Config) GetHealthInterval() time.Duration {
	return getDuration(c.HealthInterval, 500*time.Millisecond)
}

// GetDatabase returns the run database path.
func (c *Config) GetDatabase() string {
	return getString(c.Database, "picoalign.db")
}

// GetOutputDir returns the export directory.
func (c *Config) GetOutputDir() string {
	return getString(c.OutputDir, ".")
}

// GetSensorKind returns the sensor kind, an SCPI meter by default.
func (c *Config) GetSensorKind() string {
	return strings.ToLower(getString(c.Sensor.Kind, SensorSCPI))
}

// GetSensorPort returns the meter serial device.
func (c *Config) GetSensorPort() string {
	return getString(c.Sensor.Port, "/dev/ttyUSB1")
}

// GetSensorQuery returns the SCPI query sent for each reading.
func (c *Config) GetSensorQuery() string {
	return getString(c.Sensor.Query, "MEAS:POW?")
}

// SensorPortOptions returns the meter serial settings.
func (c *Config) SensorPortOptions() serialport.PortOptions {
	return serialport.PortOptions{
		BaudRate:    getInt(c.Sensor.BaudRate, 0),
		ReadTimeout: getDuration(c.Sensor.ReadTimeout, serialport.DefaultReadTimeout),
	}
}

// GetSyntheticCenter returns the optimum of the synthetic sensor.
func (c *Config) GetSyntheticCenter() []float64 {
	if len(c.Sensor.Center) == 0 {
		return []float64{120, -80, 40, 200}
	}
	return c.Sensor.Center
}

// GetSyntheticWidth returns the width of the synthetic coupling peak.
func (c *Config) GetSyntheticWidth() float64 {
	return getFloat(c.Sensor.Width, 300)
}

// GetSyntheticNoise returns the noise amplitude of the synthetic sensor.
func (c *Config) GetSyntheticNoise() float64 {
	return getFloat(c.Sensor.Noise, 0)
}

// GetSyntheticSeed returns the noise seed of the synthetic sensor.
func (c *Config) GetSyntheticSeed() int64 {
	if c.Sensor.Seed == nil {
		return 1
	}
	return *c.Sensor.Seed
}

// GetDim returns the number of searched axes; 0 means all axes.
func (c *Config) GetDim() int {
	return getInt(c.Search.Dim, 0)
}

// SimplexConfig returns the search configuration with defaults applied.
func (c *Config) SimplexConfig() simplex.Config {
	d := simplex.DefaultConfig()
	s := c.Search
	return simplex.Config{
		InitialStep:            getFloat(s.InitialStep, d.InitialStep),
		Alpha:                  getFloat(s.Alpha, d.Alpha),
		Gamma:                  getFloat(s.Gamma, d.Gamma),
		Rho:                    getFloat(s.Rho, d.Rho),
		Sigma:                  getFloat(s.Sigma, d.Sigma),
		MaxIterations:          getInt(s.MaxIterations, d.MaxIterations),
		NoImprovementThreshold: getFloat(s.NoImprovementThreshold, d.NoImprovementThreshold),
		NoImprovementPatience:  getInt(s.NoImprovementPatience, d.NoImprovementPatience),
		ReferenceSignal:        getFloat(s.ReferenceSignal, d.ReferenceSignal),
	}
}
