package config

import (
	"fmt"
	"strings"
)

// LogLevel is one of a closed set of verbosity levels
type LogLevel string

const (
	LogLevelDebug    LogLevel = "Debug"
	LogLevelInfo     LogLevel = "Info"
	LogLevelWarning  LogLevel = "Warning"
	LogLevelError    LogLevel = "Error"
	LogLevelCritical LogLevel = "Critical"
)

// LogLevels lists every accepted level from most to least verbose
var LogLevels = []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError, LogLevelCritical}

// ParseLogLevel matches s case-insensitively and returns the canonical spelling.
// "warn" is accepted as an alias for Warning.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "info":
		return LogLevelInfo, nil
	case "warning", "warn":
		return LogLevelWarning, nil
	case "error":
		return LogLevelError, nil
	case "critical":
		return LogLevelCritical, nil
	default:
		return "", fmt.Errorf("%w: %q (want one of Debug, Info, Warning, Error, Critical)", ErrInvalidLogLevel, s)
	}
}

func (l LogLevel) String() string { return string(l) }
