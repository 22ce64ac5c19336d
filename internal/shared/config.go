package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Platform PlatformConfig `toml:"platform"`
	Fetcher  FetcherConfig  `toml:"fetcher"`
	Cycle    CycleConfig    `toml:"cycle"`
}

// DatabaseConfig contains SQLite connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// PlatformConfig contains settings for the streaming platform API.
type PlatformConfig struct {
	APIURL     string `toml:"api_url"`
	CookieFile string `toml:"cookie_file"`
	UserAgent  string `toml:"user_agent"`
}

// FetcherConfig contains settings for the external media fetcher.
type FetcherConfig struct {
	YTDLPPath      string `toml:"ytdlp_path"`
	OutputDir      string `toml:"output_dir"`
	Resolution     int    `toml:"resolution"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Retries        int    `toml:"retries"`
}

// CycleConfig contains settings for one processing cycle.
type CycleConfig struct {
	MaxAgeDays             int    `toml:"max_age_days"`
	LockPath               string `toml:"lock_path"`
	ScheduleRetries        int    `toml:"schedule_retries"`
	ScheduleBackoffSeconds int    `toml:"schedule_backoff_seconds"`
}

// FetchTimeout returns the per-episode fetch timeout as a [time.Duration].
func (c FetcherConfig) FetchTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MaxAge returns how far back released episodes are still considered
// actionable.
func (c CycleConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}

// ScheduleBackoff returns the initial backoff between schedule fetch retries.
func (c CycleConfig) ScheduleBackoff() time.Duration {
	return time.Duration(c.ScheduleBackoffSeconds) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with defaults loaded from the embedded
// example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the
// embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
