// Package mzap adapts go.uber.org/zap to the mlog.Logger contract, the same
// role common/mzap plays for the teacher's own logging stack.
package mzap

import (
	"go.uber.org/zap"

	"github.com/omniledger/usqf/pkg/mlog"
)

// Logger wraps a zap.SugaredLogger to satisfy mlog.Logger.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a production zap logger wrapped as an mlog.Logger.
func New() (*Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	return &Logger{sugar: z.Sugar()}, nil
}

// NewFromZap wraps an already-constructed zap.Logger.
func NewFromZap(z *zap.Logger) *Logger {
	return &Logger{sugar: z.Sugar()}
}

func (l *Logger) Info(args ...any)                  { l.sugar.Info(args...) }
func (l *Logger) Infof(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *Logger) Infoln(args ...any)                { l.sugar.Info(args...) }
func (l *Logger) Error(args ...any)                 { l.sugar.Error(args...) }
func (l *Logger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }
func (l *Logger) Errorln(args ...any)               { l.sugar.Error(args...) }
func (l *Logger) Warn(args ...any)                  { l.sugar.Warn(args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *Logger) Warnln(args ...any)                { l.sugar.Warn(args...) }
func (l *Logger) Debug(args ...any)                 { l.sugar.Debug(args...) }
func (l *Logger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *Logger) Debugln(args ...any)               { l.sugar.Debug(args...) }
func (l *Logger) Fatal(args ...any)                 { l.sugar.Fatal(args...) }
func (l *Logger) Fatalf(format string, args ...any) { l.sugar.Fatalf(format, args...) }
func (l *Logger) Fatalln(args ...any)               { l.sugar.Fatal(args...) }

// WithFields returns a derived logger carrying the given key/value pairs.
func (l *Logger) WithFields(fields ...any) mlog.Logger {
	return &Logger{sugar: l.sugar.With(fields...)}
}

func (l *Logger) Sync() error { return l.sugar.Sync() }
