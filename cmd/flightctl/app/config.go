package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/flight-control/internal/actuator"
	"github.com/roman-kulish/flight-control/internal/command"
	"github.com/roman-kulish/flight-control/internal/flight"
	"github.com/roman-kulish/flight-control/internal/radio"
	"github.com/roman-kulish/flight-control/internal/sensor"
	"github.com/roman-kulish/flight-control/internal/storage"
)

const (
	GPIOBackendRPIO   = "rpio"
	GPIOBackendMemory = "memory"

	SensorSourceProcess = "process"
	SensorSourceSerial  = "serial"
	SensorSourceNone    = "none"
)

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings" json:"settings"`
	Flight   FlightConfig  `yaml:"flight" json:"flight"`
	GPIO     GPIOConfig    `yaml:"gpio" json:"gpio"`
	Sensor   SensorConfig  `yaml:"sensor" json:"sensor"`
	Radio    RadioConfig   `yaml:"radio" json:"radio"`
	Storage  StorageConfig `yaml:"storage" json:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string        `yaml:"logLevel" json:"logLevel"`
	LogFile  LogFileConfig `yaml:"logFile" json:"logFile"`
}

// LogFileConfig enables a size-rotated log file next to stdout
type LogFileConfig struct {
	Path       string `yaml:"path" json:"path"`
	MaxSizeMB  int    `yaml:"maxSizeMB" json:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays" json:"maxAgeDays"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// FlightConfig represents the flight controller settings
type FlightConfig struct {
	Mode             string          `yaml:"mode" json:"mode"`
	Overrides        OverridesConfig `yaml:"overrides" json:"overrides"`
	Limits           LimitsConfig    `yaml:"limits" json:"limits"`
	Timings          TimingsConfig   `yaml:"timings" json:"timings"`
	TickInterval     Duration        `yaml:"tickInterval" json:"tickInterval"`
	LinkPollInterval Duration        `yaml:"linkPollInterval" json:"linkPollInterval"`
	LinkTimeout      Duration        `yaml:"linkTimeout" json:"linkTimeout"`
}

// OverridesConfig switches the safety gates off when true
type OverridesConfig struct {
	LaunchCheck        bool `yaml:"launchCheck" json:"launchCheck"`
	StabilizationCheck bool `yaml:"stabilizationCheck" json:"stabilizationCheck"`
}

// LimitsConfig represents the launch window
type LimitsConfig struct {
	MinAltitude float64 `yaml:"minAltitude" json:"minAltitude"`
	MaxAltitude float64 `yaml:"maxAltitude" json:"maxAltitude"`
	MaxSpinRate float64 `yaml:"maxSpinRate" json:"maxSpinRate"`
}

// TimingsConfig represents the ignition sequence durations
type TimingsConfig struct {
	TestPulse      Duration `yaml:"testPulse" json:"testPulse"`
	PrelaunchPulse Duration `yaml:"prelaunchPulse" json:"prelaunchPulse"`
	LoggerGrace    Duration `yaml:"loggerGrace" json:"loggerGrace"`
}

// GPIOConfig represents the digital output settings
type GPIOConfig struct {
	Backend     string          `yaml:"backend" json:"backend"`
	Pins        actuator.PinMap `yaml:"pins" json:"pins"`
	SettleDelay Duration        `yaml:"settleDelay" json:"settleDelay"`
}

// SensorConfig represents the sensor acquisition settings
type SensorConfig struct {
	Source               string   `yaml:"source" json:"source"`
	Command              string   `yaml:"command" json:"command"`
	Args                 []string `yaml:"args" json:"args"`
	SerialPort           string   `yaml:"serialPort" json:"serialPort"`
	BaudRate             int      `yaml:"baudRate" json:"baudRate"`
	Frequency            float64  `yaml:"frequency" json:"frequency"`
	ParseErrorsThreshold uint8    `yaml:"parseErrorsThreshold" json:"parseErrorsThreshold"`
}

// RadioConfig represents the ground station link settings
type RadioConfig struct {
	Port           string   `yaml:"port" json:"port"`
	BaudRate       int      `yaml:"baudRate" json:"baudRate"`
	OutboundQueue  int      `yaml:"outboundQueue" json:"outboundQueue"`
	StaleAfter     Duration `yaml:"staleAfter" json:"staleAfter"`
	IntakeCapacity int      `yaml:"intakeCapacity" json:"intakeCapacity"`
}

// StorageConfig represents the flight recorder settings
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	DataDirectory string `yaml:"dataDirectory" json:"dataDirectory"`
	BatchSize     int    `yaml:"batchSize" json:"batchSize"`
}

// DefaultConfig returns the configuration used for every value the
// configuration file leaves out
func DefaultConfig() *Config {
	limits := flight.DefaultLimits()
	timings := flight.DefaultTimings()
	overrides := flight.DefaultOverrides()

	return &Config{
		Settings: Settings{
			LogLevel: "info",
			LogFile: LogFileConfig{
				MaxSizeMB:  10,
				MaxBackups: 5,
				MaxAgeDays: 30,
			},
		},
		Flight: FlightConfig{
			Mode: flight.ModeTest.String(),
			Overrides: OverridesConfig{
				LaunchCheck:        overrides.LaunchCheck,
				StabilizationCheck: overrides.StabilizationCheck,
			},
			Limits: LimitsConfig{
				MinAltitude: limits.MinAltitude,
				MaxAltitude: limits.MaxAltitude,
				MaxSpinRate: limits.MaxSpinRate,
			},
			Timings: TimingsConfig{
				TestPulse:      Duration(timings.TestPulse),
				PrelaunchPulse: Duration(timings.PrelaunchPulse),
				LoggerGrace:    Duration(timings.LoggerGrace),
			},
			TickInterval:     Duration(flight.DefaultTickInterval),
			LinkPollInterval: Duration(flight.DefaultLinkPollInterval),
			LinkTimeout:      Duration(flight.DefaultLinkTimeout),
		},
		GPIO: GPIOConfig{
			Backend:     GPIOBackendRPIO,
			Pins:        actuator.DefaultPinMap(),
			SettleDelay: Duration(2 * time.Second),
		},
		Sensor: SensorConfig{
			Source:               SensorSourceProcess,
			BaudRate:             9600,
			Frequency:            1,
			ParseErrorsThreshold: sensor.ParseErrorsThreshold,
		},
		Radio: RadioConfig{
			BaudRate:       57600,
			OutboundQueue:  radio.DefaultOutboundQueue,
			IntakeCapacity: command.DefaultCapacity,
		},
		Storage: StorageConfig{
			Enabled:       true,
			DataDirectory: "data",
			BatchSize:     storage.DefaultBatchSize,
		},
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig and
// validates the result
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return ParseConfig(p)
}

// ParseConfig parses YAML configuration on top of DefaultConfig and validates
// the result
func ParseConfig(p []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(p, config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	return errors.Join(
		c.Settings.Validate(),
		c.Flight.Validate(),
		c.GPIO.Validate(),
		c.Sensor.Validate(),
		c.Radio.Validate(),
		c.Storage.Validate(),
	)
}

// Level returns the configured log level
func (s *Settings) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("settings.logLevel: %w", err)
	}
	return level, nil
}

func (s *Settings) Validate() error {
	if _, err := s.Level(); err != nil {
		return err
	}
	if s.LogFile.Path != "" && s.LogFile.MaxSizeMB <= 0 {
		return fmt.Errorf("settings.logFile.maxSizeMB must be positive: %d", s.LogFile.MaxSizeMB)
	}
	return nil
}

// ParsedMode returns the configured flight mode
func (f *FlightConfig) ParsedMode() (flight.Mode, error) {
	mode, err := flight.ParseMode(f.Mode)
	if err != nil {
		return 0, fmt.Errorf("flight.mode: %w", err)
	}
	return mode, nil
}

// ControllerLimits converts the configured launch window
func (f *FlightConfig) ControllerLimits() flight.Limits {
	return flight.Limits{
		MinAltitude: f.Limits.MinAltitude,
		MaxAltitude: f.Limits.MaxAltitude,
		MaxSpinRate: f.Limits.MaxSpinRate,
	}
}

// ControllerTimings converts the configured ignition timings
func (f *FlightConfig) ControllerTimings() flight.Timings {
	return flight.Timings{
		TestPulse:      time.Duration(f.Timings.TestPulse),
		PrelaunchPulse: time.Duration(f.Timings.PrelaunchPulse),
		LoggerGrace:    time.Duration(f.Timings.LoggerGrace),
	}
}

// ControllerOverrides converts the configured safety gate overrides
func (f *FlightConfig) ControllerOverrides() flight.Overrides {
	return flight.Overrides{
		LaunchCheck:        f.Overrides.LaunchCheck,
		StabilizationCheck: f.Overrides.StabilizationCheck,
	}
}

func (f *FlightConfig) Validate() error {
	var errs []error

	if _, err := f.ParsedMode(); err != nil {
		errs = append(errs, err)
	}
	if err := f.ControllerLimits().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("flight.limits: %w", err))
	}
	if err := f.ControllerTimings().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("flight.timings: %w", err))
	}
	if f.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("flight.tickInterval must be positive: %s", f.TickInterval))
	}
	if f.LinkPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("flight.linkPollInterval must be positive: %s", f.LinkPollInterval))
	}
	if f.LinkTimeout < f.LinkPollInterval {
		errs = append(errs, fmt.Errorf("flight.linkTimeout %s is shorter than the poll interval %s", f.LinkTimeout, f.LinkPollInterval))
	}

	return errors.Join(errs...)
}

func (g *GPIOConfig) Validate() error {
	switch g.Backend {
	case GPIOBackendRPIO, GPIOBackendMemory:
	default:
		return fmt.Errorf("gpio.backend: unknown backend '%s'", g.Backend)
	}
	if g.SettleDelay < 0 {
		return fmt.Errorf("gpio.settleDelay must not be negative: %s", g.SettleDelay)
	}
	if err := g.Pins.Validate(); err != nil {
		return fmt.Errorf("gpio.pins: %w", err)
	}
	return nil
}

func (s *SensorConfig) Validate() error {
	switch s.Source {
	case SensorSourceProcess:
		if s.Command == "" {
			return errors.New("sensor.command is required for the process source")
		}
	case SensorSourceSerial:
		if s.SerialPort == "" || s.BaudRate <= 0 {
			return fmt.Errorf("sensor: serial source requires a port and a positive baud rate: port='%s', baudRate=%d", s.SerialPort, s.BaudRate)
		}
	case SensorSourceNone:
	default:
		return fmt.Errorf("sensor.source: unknown source '%s'", s.Source)
	}

	if s.Frequency <= 0 {
		return fmt.Errorf("sensor.frequency must be positive: %f", s.Frequency)
	}
	if s.ParseErrorsThreshold == 0 {
		return errors.New("sensor.parseErrorsThreshold must be positive")
	}
	return nil
}

func (r *RadioConfig) Validate() error {
	if r.Port == "" {
		return errors.New("radio.port is required")
	}
	if r.BaudRate <= 0 {
		return fmt.Errorf("radio.baudRate must be positive: %d", r.BaudRate)
	}
	if r.OutboundQueue <= 0 {
		return fmt.Errorf("radio.outboundQueue must be positive: %d", r.OutboundQueue)
	}
	if r.IntakeCapacity <= 0 {
		return fmt.Errorf("radio.intakeCapacity must be positive: %d", r.IntakeCapacity)
	}
	if r.StaleAfter < 0 {
		return fmt.Errorf("radio.staleAfter must not be negative: %s", r.StaleAfter)
	}
	return nil
}

func (s *StorageConfig) Validate() error {
	if !s.Enabled {
		return nil
	}
	if s.DataDirectory == "" {
		return errors.New("storage.dataDirectory is required when storage is enabled")
	}
	if s.BatchSize <= 0 {
		return fmt.Errorf("storage.batchSize must be positive: %d", s.BatchSize)
	}
	return nil
}

// Duration is a time.Duration read from strings such as "500ms" or "5m"
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
