package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/ircam/internal/serialmux"
)

// DefaultConfigPath is the canonical example configuration shipped with the repo.
const DefaultConfigPath = "config/ircam.example.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Seed names accepted for the startup buffer contents.
const (
	SeedRamp  = "ramp"
	SeedZeros = "zeros"
)

// Defaults applied by the Get* accessors.
const (
	DefaultPort          = "/dev/ttyACM0"
	DefaultReportRateHz  = 2.0
	DefaultCaptureDir    = "captures"
	DefaultDBPath        = "ircam.db"
	DefaultListen        = ":8080"
	DefaultStatsInterval = time.Minute
)

// CaptureConfig is the on-disk configuration for a capture service. Unset
// fields are nil and fall back to the defaults above, so partial files are
// safe. Command-line flags override whatever is loaded here.
type CaptureConfig struct {
	Port     *string `json:"port,omitempty"`
	BaudRate *int    `json:"baud_rate,omitempty"`
	DataBits *int    `json:"data_bits,omitempty"`
	StopBits *int    `json:"stop_bits,omitempty"`
	Parity   *string `json:"parity,omitempty"`

	ReportRateHz *float64 `json:"report_rate_hz,omitempty"`

	CaptureDir *string `json:"capture_dir,omitempty"`
	DBPath     *string `json:"db_path,omitempty"`
	Listen     *string `json:"listen,omitempty"`

	StatsInterval *string `json:"stats_interval,omitempty"` // duration string like "30s"
	Seed          *string `json:"seed,omitempty"`
}

// LoadCaptureConfig loads a CaptureConfig from a JSON file. The file must
// have a .json extension and be under 1MB.
func LoadCaptureConfig(path string) (*CaptureConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &CaptureConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that every set field holds a usable value.
func (c *CaptureConfig) Validate() error {
	if _, err := c.PortOptions().Normalize(); err != nil {
		return err
	}
	if c.ReportRateHz != nil {
		if _, err := serialmux.RateCommand(*c.ReportRateHz); err != nil {
			return fmt.Errorf("report_rate_hz: %w", err)
		}
	}
	if c.StatsInterval != nil && *c.StatsInterval != "" {
		d, err := time.ParseDuration(*c.StatsInterval)
		if err != nil {
			return fmt.Errorf("invalid stats_interval '%s': %w", *c.StatsInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("stats_interval must be non-negative, got %s", d)
		}
	}
	if c.Seed != nil && *c.Seed != SeedRamp && *c.Seed != SeedZeros {
		return fmt.Errorf("seed must be %q or %q, got %q", SeedRamp, SeedZeros, *c.Seed)
	}
	return nil
}

// PortOptions returns the serial settings, leaving defaults to Normalize.
func (c *CaptureConfig) PortOptions() serialmux.PortOptions {
	var o serialmux.PortOptions
	if c.BaudRate != nil {
		o.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		o.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		o.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		o.Parity = *c.Parity
	}
	return o
}

func stringOr(p *string, def string) string {
	if p != nil && *p != "" {
		return *p
	}
	return def
}

// GetPort returns the serial device path.
func (c *CaptureConfig) GetPort() string { return stringOr(c.Port, DefaultPort) }

// GetReportRateHz returns the sensor refresh rate.
func (c *CaptureConfig) GetReportRateHz() float64 {
	if c.ReportRateHz != nil {
		return *c.ReportRateHz
	}
	return DefaultReportRateHz
}

// GetCaptureDir returns the directory CSV logs are written to. An explicit
// empty string disables the log.
func (c *CaptureConfig) GetCaptureDir() string {
	if c.CaptureDir != nil {
		return *c.CaptureDir
	}
	return DefaultCaptureDir
}

// GetDBPath returns the frame archive path. An explicit empty string
// disables the archive.
func (c *CaptureConfig) GetDBPath() string {
	if c.DBPath != nil {
		return *c.DBPath
	}
	return DefaultDBPath
}

// GetListen returns the HTTP listen address.
func (c *CaptureConfig) GetListen() string { return stringOr(c.Listen, DefaultListen) }

// GetStatsInterval returns how often decoder counters are logged. Zero
// disables the periodic log.
func (c *CaptureConfig) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return DefaultStatsInterval
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil {
		return DefaultStatsInterval
	}
	return d
}

// GetSeed returns the startup buffer seed.
func (c *CaptureConfig) GetSeed() string { return stringOr(c.Seed, SeedRamp) }
