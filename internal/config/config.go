package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Config holds all application configuration
type Config struct {
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Output      OutputConfig      `mapstructure:"output"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Apps        AppsConfig        `mapstructure:"apps"`
}

// CredentialsConfig holds Steam login settings
type CredentialsConfig struct {
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"` // Only persisted when RememberPassword is set
	RememberPassword bool   `mapstructure:"remember_password"`
	UseQRLogin       bool   `mapstructure:"use_qr_login"`
}

// PerformanceConfig holds download tuning knobs. All values must be positive.
type PerformanceConfig struct {
	MaxDownloads       int `mapstructure:"max_downloads" yaml:"max_downloads"`               // Concurrent manifest downloads per app
	MaxConcurrentApps  int `mapstructure:"max_concurrent_apps" yaml:"max_concurrent_apps"`   // Apps processed at once
	MaxServers         int `mapstructure:"max_servers" yaml:"max_servers"`                   // CDN servers to consider
	ConnectionPoolSize int `mapstructure:"connection_pool_size" yaml:"connection_pool_size"` // Pooled CDN connections
	RequestTimeout     int `mapstructure:"request_timeout" yaml:"request_timeout"`           // Seconds
	RetryCount         int `mapstructure:"retry_count" yaml:"retry_count"`
	RetryDelay         int `mapstructure:"retry_delay" yaml:"retry_delay"`           // Seconds
	FileBufferSize     int `mapstructure:"file_buffer_size" yaml:"file_buffer_size"` // KiB
}

// OutputConfig holds dump output settings
type OutputConfig struct {
	DumpDirectory      string `mapstructure:"dump_directory"`
	UseNewNamingFormat bool   `mapstructure:"use_new_naming_format"` // <app>/<depot>_<manifest> vs flat <depot>_<manifest>
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level LogLevel `mapstructure:"level"`
	File  string   `mapstructure:"file"`
}

// AppsConfig holds the app IDs to process and the exclusion overlay.
// Excluded is always a subset of IDs.
type AppsConfig struct {
	IDs      AppSet `mapstructure:"ids"`
	Excluded AppSet `mapstructure:"excluded"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Performance: PerformanceConfig{
			MaxDownloads:       16,
			MaxConcurrentApps:  4,
			MaxServers:         50,
			ConnectionPoolSize: 10,
			RequestTimeout:     30,
			RetryCount:         3,
			RetryDelay:         1,
			FileBufferSize:     64,
		},
		Output: OutputConfig{
			DumpDirectory:      "dumps",
			UseNewNamingFormat: true,
		},
		Logging: LoggingConfig{
			Level: LogLevelInfo,
			File:  defaultLogPath(),
		},
		Apps: AppsConfig{
			IDs:      NewAppSet(),
			Excluded: NewAppSet(),
		},
	}
}

// RequestTimeoutDuration returns the per-request timeout
func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.Performance.RequestTimeout) * time.Second
}

// HasCredentials returns true if a login can be attempted without prompting
func (c *Config) HasCredentials() bool {
	if c.Credentials.UseQRLogin {
		return true
	}
	return c.Credentials.Username != "" && c.Credentials.Password != ""
}

// normalize canonicalizes fields that have more than one accepted spelling
// and prunes exclusions that no longer refer to a configured app.
func (c *Config) normalize() {
	if c.Apps.IDs == nil {
		c.Apps.IDs = NewAppSet()
	}
	if c.Apps.Excluded == nil {
		c.Apps.Excluded = NewAppSet()
	}
	for id := range c.Apps.Excluded {
		if !c.Apps.IDs.Has(id) {
			delete(c.Apps.Excluded, id)
		}
	}
	if lvl, err := ParseLogLevel(string(c.Logging.Level)); err == nil {
		c.Logging.Level = lvl
	}
}

// Validate checks the record against its schema
func (c *Config) Validate() error {
	knobs := []struct {
		name  string
		value int
	}{
		{"max_downloads", c.Performance.MaxDownloads},
		{"max_concurrent_apps", c.Performance.MaxConcurrentApps},
		{"max_servers", c.Performance.MaxServers},
		{"connection_pool_size", c.Performance.ConnectionPoolSize},
		{"request_timeout", c.Performance.RequestTimeout},
		{"retry_count", c.Performance.RetryCount},
		{"retry_delay", c.Performance.RetryDelay},
		{"file_buffer_size", c.Performance.FileBufferSize},
	}
	for _, k := range knobs {
		if k.value <= 0 {
			return fmt.Errorf("performance.%s must be a positive integer, got %d", k.name, k.value)
		}
	}
	if _, err := ParseLogLevel(string(c.Logging.Level)); err != nil {
		return err
	}
	for id := range c.Apps.Excluded {
		if !c.Apps.IDs.Has(id) {
			return fmt.Errorf("excluded app %d is not a configured app", id)
		}
	}
	return nil
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "depotdump", "depotdump.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "depotdump", "depotdump.log")
	}
}

// DefaultConfigDir returns the default config directory for the current OS
func DefaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "depotdump")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "depotdump")
	}
}

// DefaultConfigPath returns the default config file path
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the directory holding run history
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "depotdump")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "depotdump")
	}
}
