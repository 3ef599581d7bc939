package logging

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

// Level is a log severity.
type Level int

// Supported levels, ordered by severity.
const (
	DEBUG Level = iota - 1
	INFO
	WARN
	ERROR
)

func (level Level) String() string {
	switch level {
	case DEBUG:
		return "Debug"
	case INFO:
		return "Info"
	case WARN:
		return "Warn"
	case ERROR:
		return "Error"
	default:
		return "Unknown"
	}
}

// AsZap converts the level to its zap equivalent.
func (level Level) AsZap() zapcore.Level {
	switch level {
	case DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// LevelFromString parses a level name case-insensitively.
func LevelFromString(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG, nil
	case "info", "":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	default:
		return INFO, errors.Errorf("unknown log level %q", s)
	}
}
