package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

var (
	// ErrCorruptConfig indicates the persisted record could not be read, parsed or validated
	ErrCorruptConfig = errors.New("config is corrupt")

	// ErrInvalidLogLevel indicates a log level outside the closed set
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// EnvPrefix is the prefix for environment variable overrides (DEPOTDUMP_LOGGING_LEVEL, ...)
const EnvPrefix = "DEPOTDUMP"

// CorruptPolicy decides what Load does with a record it cannot use
type CorruptPolicy int

const (
	// FallbackToDefaults logs a warning and returns DefaultConfig
	FallbackToDefaults CorruptPolicy = iota
	// FailOnCorrupt returns an error wrapping ErrCorruptConfig
	FailOnCorrupt
)

// Store loads and saves the configuration record at a fixed path.
type Store struct {
	path   string
	policy CorruptPolicy
	logger *slog.Logger
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithCorruptPolicy sets the policy applied when the record is unusable
func WithCorruptPolicy(p CorruptPolicy) StoreOption {
	return func(s *Store) { s.policy = p }
}

// WithLogger sets the logger used to report fallbacks
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a store for the YAML file at path. An empty path selects
// DefaultConfigPath.
func NewStore(path string, opts ...StoreOption) *Store {
	if path == "" {
		path = DefaultConfigPath()
	}
	s := &Store{path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the config file location
func (s *Store) Path() string { return s.path }

// Load reads the persisted record, applying defaults for absent keys and
// environment overrides on top. A missing file yields DefaultConfig.
func (s *Store) Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml")
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return s.recover(err)
		}
		s.logger.Debug("no config file, using defaults", "path", s.path)
	}

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		appSetHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return s.recover(fmt.Errorf("error parsing config: %w", err))
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return s.recover(err)
	}

	s.logger.Debug("loaded config", "path", s.path, "apps", len(cfg.Apps.IDs), "excluded", len(cfg.Apps.Excluded))
	return cfg, nil
}

func (s *Store) recover(cause error) (*Config, error) {
	if s.policy == FailOnCorrupt {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptConfig, s.path, cause)
	}

	backup, err := s.backupCorrupt()
	if err != nil {
		s.logger.Warn("failed to keep a copy of the unusable config", "path", s.path, "error", err)
	}
	s.logger.Warn("config unusable, falling back to defaults; the next save replaces it",
		"path", s.path, "backup", backup, "error", cause)
	return DefaultConfig(), nil
}

// CorruptSuffix is appended to the config path for the copy kept by a fallback load
const CorruptSuffix = ".corrupt"

// backupCorrupt copies the current file next to itself so a later Save cannot
// lose what the user wrote. Returns the copy's path.
func (s *Store) backupCorrupt() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", err
	}
	backup := s.path + CorruptSuffix
	if err := os.WriteFile(backup, data, 0600); err != nil {
		return "", err
	}
	return backup, nil
}

// Save persists the full record, replacing the previous file atomically
func (s *Store) Save(cfg *Config) error {
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigPermissions(0600)

	// Set fields individually to ensure correct key names (snake_case)
	v.Set("credentials.username", cfg.Credentials.Username)
	password := ""
	if cfg.Credentials.RememberPassword {
		password = cfg.Credentials.Password
	}
	v.Set("credentials.password", password)
	v.Set("credentials.remember_password", cfg.Credentials.RememberPassword)
	v.Set("credentials.use_qr_login", cfg.Credentials.UseQRLogin)

	v.Set("performance.max_downloads", cfg.Performance.MaxDownloads)
	v.Set("performance.max_concurrent_apps", cfg.Performance.MaxConcurrentApps)
	v.Set("performance.max_servers", cfg.Performance.MaxServers)
	v.Set("performance.connection_pool_size", cfg.Performance.ConnectionPoolSize)
	v.Set("performance.request_timeout", cfg.Performance.RequestTimeout)
	v.Set("performance.retry_count", cfg.Performance.RetryCount)
	v.Set("performance.retry_delay", cfg.Performance.RetryDelay)
	v.Set("performance.file_buffer_size", cfg.Performance.FileBufferSize)

	v.Set("output.dump_directory", cfg.Output.DumpDirectory)
	v.Set("output.use_new_naming_format", cfg.Output.UseNewNamingFormat)

	v.Set("logging.level", cfg.Logging.Level.String())
	v.Set("logging.file", cfg.Logging.File)

	v.Set("apps.ids", cfg.Apps.IDs.Sorted())
	v.Set("apps.excluded", cfg.Apps.Excluded.Sorted())

	// viper picks the encoder from the extension, so the temp file keeps .yaml
	tmp, err := os.CreateTemp(dir, ".depotdump-config-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := v.WriteConfigAs(tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	s.logger.Info("saved config", "path", s.path, "apps", len(cfg.Apps.IDs), "excluded", len(cfg.Apps.Excluded))
	return nil
}

// setDefaults registers every key so env overrides and partial files resolve
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("credentials.username", d.Credentials.Username)
	v.SetDefault("credentials.password", d.Credentials.Password)
	v.SetDefault("credentials.remember_password", d.Credentials.RememberPassword)
	v.SetDefault("credentials.use_qr_login", d.Credentials.UseQRLogin)

	v.SetDefault("performance.max_downloads", d.Performance.MaxDownloads)
	v.SetDefault("performance.max_concurrent_apps", d.Performance.MaxConcurrentApps)
	v.SetDefault("performance.max_servers", d.Performance.MaxServers)
	v.SetDefault("performance.connection_pool_size", d.Performance.ConnectionPoolSize)
	v.SetDefault("performance.request_timeout", d.Performance.RequestTimeout)
	v.SetDefault("performance.retry_count", d.Performance.RetryCount)
	v.SetDefault("performance.retry_delay", d.Performance.RetryDelay)
	v.SetDefault("performance.file_buffer_size", d.Performance.FileBufferSize)

	v.SetDefault("output.dump_directory", d.Output.DumpDirectory)
	v.SetDefault("output.use_new_naming_format", d.Output.UseNewNamingFormat)

	v.SetDefault("logging.level", d.Logging.Level.String())
	v.SetDefault("logging.file", d.Logging.File)

	v.SetDefault("apps.ids", []uint32{})
	v.SetDefault("apps.excluded", []uint32{})
}

var appSetType = reflect.TypeOf(AppSet{})

// appSetHook decodes YAML lists, env strings ("440,730") and uint32 slices into an AppSet
func appSetHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != appSetType {
		return data, nil
	}

	switch v := data.(type) {
	case nil:
		return NewAppSet(), nil
	case AppSet:
		return v, nil
	case string:
		set := NewAppSet()
		for _, field := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
			id, err := parseAppID(field)
			if err != nil {
				return nil, err
			}
			set[id] = struct{}{}
		}
		return set, nil
	}

	rv := reflect.ValueOf(data)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("app list must be a sequence, got %s", from)
	}
	set := make(AppSet, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		id, err := parseAppID(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		set[id] = struct{}{}
	}
	return set, nil
}

func parseAppID(raw any) (uint32, error) {
	var n int64
	switch v := raw.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint32:
		return v, nil
	case uint64:
		if v > math.MaxUint32 {
			return 0, fmt.Errorf("app id %d out of range", v)
		}
		return uint32(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("app id %v is not an integer", v)
		}
		n = int64(v)
	case string:
		id, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid app id %q", v)
		}
		return uint32(id), nil
	default:
		return 0, fmt.Errorf("invalid app id %v (%T)", raw, raw)
	}
	if n < 0 || n > math.MaxUint32 {
		return 0, fmt.Errorf("app id %d out of range", n)
	}
	return uint32(n), nil
}
