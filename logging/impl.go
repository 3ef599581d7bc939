package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type impl struct {
	name  string
	level zap.AtomicLevel
	core  zapcore.Core

	sugar *zap.SugaredLogger
}

func newImpl(name string, level Level, core zapcore.Core) *impl {
	imp := &impl{
		name:  name,
		level: zap.NewAtomicLevelAt(level.AsZap()),
		core:  core,
	}
	imp.sugar = zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.IncreaseLevel(imp.level),
	).Sugar().Named(name)
	return imp
}

func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = imp.name + "." + subname
	}
	return newImpl(newName, imp.GetLevel(), imp.core)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.SetLevel(level.AsZap())
}

func (imp *impl) GetLevel() Level {
	switch imp.level.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.InfoLevel:
		return INFO
	case zapcore.WarnLevel:
		return WARN
	default:
		return ERROR
	}
}

func (imp *impl) AsZap() *zap.SugaredLogger {
	return imp.sugar.WithOptions(zap.AddCallerSkip(-1))
}

func (imp *impl) Sync() error {
	return imp.core.Sync()
}

func (imp *impl) Debug(args ...interface{}) { imp.sugar.Debug(args...) }

func (imp *impl) Debugf(template string, args ...interface{}) { imp.sugar.Debugf(template, args...) }

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) { imp.sugar.Debugw(msg, keysAndValues...) }

func (imp *impl) Info(args ...interface{}) { imp.sugar.Info(args...) }

func (imp *impl) Infof(template string, args ...interface{}) { imp.sugar.Infof(template, args...) }

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) { imp.sugar.Infow(msg, keysAndValues...) }

func (imp *impl) Warn(args ...interface{}) { imp.sugar.Warn(args...) }

func (imp *impl) Warnf(template string, args ...interface{}) { imp.sugar.Warnf(template, args...) }

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) { imp.sugar.Warnw(msg, keysAndValues...) }

func (imp *impl) Error(args ...interface{}) { imp.sugar.Error(args...) }

func (imp *impl) Errorf(template string, args ...interface{}) { imp.sugar.Errorf(template, args...) }

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) { imp.sugar.Errorw(msg, keysAndValues...) }
