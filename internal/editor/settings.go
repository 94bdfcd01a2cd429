package editor

import (
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/mmcdole/depotdump/internal/config"
)

// PasswordReader reads a password without echoing it
type PasswordReader func() (string, error)

// SettingsEditor walks every scalar setting. Empty input keeps the current value.
type SettingsEditor struct {
	cfg          *config.Config
	p            *Prompter
	readPassword PasswordReader
}

// NewSettingsEditor creates an editor over cfg. When in is a terminal the
// password prompt hides input; otherwise it is read as a normal line.
func NewSettingsEditor(cfg *config.Config, in io.Reader, out io.Writer) *SettingsEditor {
	e := &SettingsEditor{cfg: cfg, p: NewPrompter(in, out)}
	e.readPassword = func() (string, error) { return e.p.Ask("") }

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		e.readPassword = func() (string, error) {
			b, err := term.ReadPassword(int(f.Fd()))
			e.p.Println() // Add newline after hidden input
			return string(b), err
		}
	}
	return e
}

// Run prompts for each field in turn. End of input keeps the remaining values.
func (e *SettingsEditor) Run() error {
	err := e.run()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (e *SettingsEditor) run() error {
	c := e.cfg

	e.p.Println()
	e.p.Println("Press Enter to keep the current value.")
	e.p.Println()
	e.p.Println("Credentials")
	if err := e.askString("Username", &c.Credentials.Username); err != nil {
		return err
	}
	if err := e.askPassword(); err != nil {
		return err
	}
	if err := e.askBool("Remember password", &c.Credentials.RememberPassword); err != nil {
		return err
	}
	if err := e.askBool("Use QR login", &c.Credentials.UseQRLogin); err != nil {
		return err
	}

	e.p.Println()
	e.p.Println("Performance")
	knobs := []struct {
		label string
		value *int
	}{
		{"Max concurrent downloads per app", &c.Performance.MaxDownloads},
		{"Max concurrent apps", &c.Performance.MaxConcurrentApps},
		{"Max servers", &c.Performance.MaxServers},
		{"Connection pool size", &c.Performance.ConnectionPoolSize},
		{"Request timeout (seconds)", &c.Performance.RequestTimeout},
		{"Retry count", &c.Performance.RetryCount},
		{"Retry delay (seconds)", &c.Performance.RetryDelay},
		{"File buffer size (KiB)", &c.Performance.FileBufferSize},
	}
	for _, k := range knobs {
		if err := e.askPositiveInt(k.label, k.value); err != nil {
			return err
		}
	}

	e.p.Println()
	e.p.Println("Output")
	if err := e.askString("Dump directory", &c.Output.DumpDirectory); err != nil {
		return err
	}
	if err := e.askBool("Use new naming format", &c.Output.UseNewNamingFormat); err != nil {
		return err
	}

	e.p.Println()
	e.p.Println("Logging")
	if err := e.askLogLevel(); err != nil {
		return err
	}
	return e.askString("Log file", &c.Logging.File)
}

func (e *SettingsEditor) askString(label string, dst *string) error {
	v, err := e.p.Ask(label + " [" + *dst + "]: ")
	if err != nil {
		return err
	}
	if v != "" {
		*dst = v
	}
	return nil
}

func (e *SettingsEditor) askPassword() error {
	state := "not set"
	if e.cfg.Credentials.Password != "" {
		state = "set"
	}
	e.p.Printf("Password [%s]: ", state)
	v, err := e.readPassword()
	if err != nil {
		return err
	}
	if v != "" {
		e.cfg.Credentials.Password = v
	}
	return nil
}

func (e *SettingsEditor) askBool(label string, dst *bool) error {
	current := "n"
	if *dst {
		current = "y"
	}
	for {
		v, err := e.p.Ask(label + " (y/n) [" + current + "]: ")
		if err != nil {
			return err
		}
		switch strings.ToLower(v) {
		case "":
			return nil
		case "y", "yes", "true":
			*dst = true
			return nil
		case "n", "no", "false":
			*dst = false
			return nil
		}
		e.p.Printf("Please answer y or n.\n")
	}
}

func (e *SettingsEditor) askPositiveInt(label string, dst *int) error {
	for {
		v, err := e.p.Ask(label + " [" + strconv.Itoa(*dst) + "]: ")
		if err != nil {
			return err
		}
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err == nil && n > 0 {
			*dst = n
			return nil
		}
		e.p.Printf("%q is not a positive integer.\n", v)
	}
}

func (e *SettingsEditor) askLogLevel() error {
	names := make([]string, len(config.LogLevels))
	for i, lvl := range config.LogLevels {
		names[i] = lvl.String()
	}
	label := "Log level (" + strings.Join(names, "/") + ") [" + e.cfg.Logging.Level.String() + "]: "

	for {
		v, err := e.p.Ask(label)
		if err != nil {
			return err
		}
		if v == "" {
			return nil
		}
		lvl, err := config.ParseLogLevel(v)
		if err == nil {
			e.cfg.Logging.Level = lvl
			return nil
		}
		e.p.Printf("%v\n", err)
	}
}
