package cli

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mmcdole/depotdump/internal/config"
	"github.com/mmcdole/depotdump/internal/editor"
)

// configView is the printable form of the record. The password is never shown.
type configView struct {
	Path        string `yaml:"path"`
	Credentials struct {
		Username         string `yaml:"username"`
		Password         string `yaml:"password"`
		RememberPassword bool   `yaml:"remember_password"`
		UseQRLogin       bool   `yaml:"use_qr_login"`
	} `yaml:"credentials"`
	Performance config.PerformanceConfig `yaml:"performance"`
	Output      struct {
		DumpDirectory      string `yaml:"dump_directory"`
		UseNewNamingFormat bool   `yaml:"use_new_naming_format"`
	} `yaml:"output"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Apps struct {
		IDs      []uint32 `yaml:"ids"`
		Excluded []uint32 `yaml:"excluded"`
	} `yaml:"apps"`
}

func newConfigView(path string, c *config.Config) configView {
	var v configView
	v.Path = path
	v.Credentials.Username = c.Credentials.Username
	if c.Credentials.Password != "" {
		v.Credentials.Password = "********"
	}
	v.Credentials.RememberPassword = c.Credentials.RememberPassword
	v.Credentials.UseQRLogin = c.Credentials.UseQRLogin
	v.Performance = c.Performance
	v.Output.DumpDirectory = c.Output.DumpDirectory
	v.Output.UseNewNamingFormat = c.Output.UseNewNamingFormat
	v.Logging.Level = c.Logging.Level.String()
	v.Logging.File = c.Logging.File
	v.Apps.IDs = c.Apps.IDs.Sorted()
	v.Apps.Excluded = c.Apps.Excluded.Sorted()
	return v
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the configuration",
	}
	cmd.AddCommand(newConfigShowCmd(app))
	cmd.AddCommand(newConfigSetCmd(app))
	cmd.AddCommand(newConfigEditCmd(app))
	return cmd
}

func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(newConfigView(app.store.Path(), app.cfg)); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

type setFlags struct {
	username, password, dumpDir, level, logFile string
	remember, qrLogin, newNaming                bool

	maxDownloads, maxConcurrentApps, maxServers, poolSize int
	timeout, retryCount, retryDelay, bufferSize           int

	addApps, removeApps, excludeApps, includeApps []uint
}

func newConfigSetCmd(app *App) *cobra.Command {
	var f setFlags
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings from flags and save",
		Example: `  depotdump config set --username alice --max-downloads 32
  depotdump config set --add-app 440,730 --exclude-app 730`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applySetFlags(cmd, app.cfg, &f); err != nil {
				return err
			}
			if err := app.save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", app.store.Path())
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.username, "username", "", "Steam account name")
	fl.StringVar(&f.password, "password", "", "Steam password (saved only with --remember-password)")
	fl.BoolVar(&f.remember, "remember-password", false, "persist the password in the config file")
	fl.BoolVar(&f.qrLogin, "qr-login", false, "log in with a QR code instead of a password")
	fl.IntVar(&f.maxDownloads, "max-downloads", 0, "concurrent manifest downloads per depot")
	fl.IntVar(&f.maxConcurrentApps, "max-concurrent-apps", 0, "apps processed at once")
	fl.IntVar(&f.maxServers, "max-servers", 0, "content servers to use")
	fl.IntVar(&f.poolSize, "connection-pool-size", 0, "connection pool size")
	fl.IntVar(&f.timeout, "request-timeout", 0, "per-request timeout in seconds")
	fl.IntVar(&f.retryCount, "retry-count", 0, "retry count")
	fl.IntVar(&f.retryDelay, "retry-delay", 0, "retry delay in seconds")
	fl.IntVar(&f.bufferSize, "file-buffer-size", 0, "file buffer size in KiB")
	fl.StringVar(&f.dumpDir, "dump-dir", "", "directory for result files and manifests")
	fl.BoolVar(&f.newNaming, "new-naming", true, "place manifests under a per-app directory")
	fl.StringVar(&f.level, "level", "", "log level (Debug, Info, Warning, Error, Critical)")
	fl.StringVar(&f.logFile, "log-file", "", "log file path")
	fl.UintSliceVar(&f.addApps, "add-app", nil, "app IDs to add")
	fl.UintSliceVar(&f.removeApps, "remove-app", nil, "app IDs to remove")
	fl.UintSliceVar(&f.excludeApps, "exclude-app", nil, "configured app IDs to exclude")
	fl.UintSliceVar(&f.includeApps, "include-app", nil, "configured app IDs to include again")
	return cmd
}

// applySetFlags copies every flag the user passed onto cfg. Unset flags leave
// the record alone.
func applySetFlags(cmd *cobra.Command, cfg *config.Config, f *setFlags) error {
	changed := cmd.Flags().Changed

	if changed("username") {
		cfg.Credentials.Username = f.username
	}
	if changed("password") {
		cfg.Credentials.Password = f.password
	}
	if changed("remember-password") {
		cfg.Credentials.RememberPassword = f.remember
	}
	if changed("qr-login") {
		cfg.Credentials.UseQRLogin = f.qrLogin
	}

	ints := []struct {
		flag  string
		value int
		dst   *int
	}{
		{"max-downloads", f.maxDownloads, &cfg.Performance.MaxDownloads},
		{"max-concurrent-apps", f.maxConcurrentApps, &cfg.Performance.MaxConcurrentApps},
		{"max-servers", f.maxServers, &cfg.Performance.MaxServers},
		{"connection-pool-size", f.poolSize, &cfg.Performance.ConnectionPoolSize},
		{"request-timeout", f.timeout, &cfg.Performance.RequestTimeout},
		{"retry-count", f.retryCount, &cfg.Performance.RetryCount},
		{"retry-delay", f.retryDelay, &cfg.Performance.RetryDelay},
		{"file-buffer-size", f.bufferSize, &cfg.Performance.FileBufferSize},
	}
	for _, i := range ints {
		if !changed(i.flag) {
			continue
		}
		if i.value <= 0 {
			return fmt.Errorf("--%s must be a positive integer, got %d", i.flag, i.value)
		}
		*i.dst = i.value
	}

	if changed("dump-dir") {
		cfg.Output.DumpDirectory = f.dumpDir
	}
	if changed("new-naming") {
		cfg.Output.UseNewNamingFormat = f.newNaming
	}
	if changed("level") {
		lvl, err := config.ParseLogLevel(f.level)
		if err != nil {
			return err
		}
		cfg.Logging.Level = lvl
	}
	if changed("log-file") {
		cfg.Logging.File = f.logFile
	}

	// Order matters: adds before exclusions so "--add-app 1 --exclude-app 1" works
	for _, raw := range f.addApps {
		id, err := toAppID(raw)
		if err != nil {
			return err
		}
		cfg.AddApp(id)
	}
	for _, raw := range f.removeApps {
		id, err := toAppID(raw)
		if err != nil {
			return err
		}
		if !cfg.RemoveApp(id) {
			return fmt.Errorf("app %d is not configured", id)
		}
	}
	for _, raw := range f.excludeApps {
		id, err := toAppID(raw)
		if err != nil {
			return err
		}
		if !cfg.SetExcluded(id, true) {
			return fmt.Errorf("app %d is not configured", id)
		}
	}
	for _, raw := range f.includeApps {
		id, err := toAppID(raw)
		if err != nil {
			return err
		}
		if !cfg.SetExcluded(id, false) {
			return fmt.Errorf("app %d is not configured", id)
		}
	}
	return nil
}

func toAppID(raw uint) (uint32, error) {
	if raw > math.MaxUint32 {
		return 0, fmt.Errorf("app ID %d is out of range", raw)
	}
	return uint32(raw), nil
}

func newConfigEditCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Edit settings interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ed := editor.NewSettingsEditor(app.cfg, cmd.InOrStdin(), cmd.OutOrStdout())
			if err := ed.Run(); err != nil {
				return err
			}
			if err := app.save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n✓ Configuration saved to %s\n", app.store.Path())
			return nil
		},
	}
}
