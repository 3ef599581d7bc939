// Package logging provides the leveled, named loggers used across this module.
package logging

import (
	"os"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// Logger is a named, leveled logger.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// Sublogger returns a logger named "<name>.<subname>" writing to the same outputs.
	Sublogger(subname string) Logger
	SetLevel(level Level)
	GetLevel() Level
	// AsZap exposes the underlying zap logger for libraries that want one.
	AsZap() *zap.SugaredLogger
	Sync() error
}

// NewEncoderConfig returns the console encoder settings shared by all loggers.
func NewEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func stdoutCore() zapcore.Core {
	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(NewEncoderConfig()),
		zapcore.Lock(os.Stdout),
		zapcore.DebugLevel,
	)
}

// NewLogger returns a new logger that outputs Info+ logs to stdout.
func NewLogger(name string) Logger {
	return newImpl(name, INFO, stdoutCore())
}

// NewDebugLogger returns a new logger that outputs Debug+ logs to stdout.
func NewDebugLogger(name string) Logger {
	return newImpl(name, DEBUG, stdoutCore())
}

// NewBlankLogger returns a logger that discards everything.
func NewBlankLogger(name string) Logger {
	return newImpl(name, DEBUG, zapcore.NewNopCore())
}

// NewTestLogger returns a new logger that outputs Debug+ logs through tb.Log.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also saves logs to an in memory observer.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	testCore := zaptest.NewLogger(tb, zaptest.Level(zapcore.DebugLevel)).Core()
	observerCore, observedLogs := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	return newImpl("", DEBUG, zapcore.NewTee(testCore, observerCore)), observedLogs
}
