// Package mlog defines the logging contract shared by the datasource router
// and the search/query framework. Implementations are injected through
// context.Context so neither the router nor the composer ever imports a
// concrete logging library directly.
package mlog

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Logger is the common interface every part of this module logs through.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)
	Infoln(args ...any)

	Error(args ...any)
	Errorf(format string, args ...any)
	Errorln(args ...any)

	Warn(args ...any)
	Warnf(format string, args ...any)
	Warnln(args ...any)

	Debug(args ...any)
	Debugf(format string, args ...any)
	Debugln(args ...any)

	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Fatalln(args ...any)

	WithFields(fields ...any) Logger

	Sync() error
}

// Level represents the severity of a log entry.
type Level int8

const (
	PanicLevel Level = iota
	FatalLevel
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
)

// ParseLevel takes a string level and returns a Level constant.
func ParseLevel(lvl string) (Level, error) {
	switch strings.ToLower(lvl) {
	case "fatal":
		return FatalLevel, nil
	case "error":
		return ErrorLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "info":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	}

	var l Level

	return l, fmt.Errorf("not a valid Level: %q", lvl)
}

// GoLogger is the standard-library backed implementation of Logger, for
// callers that want output without wiring a structured logger. It is not a
// default anywhere: FromContext and the package constructors fall back to
// NoneLogger.
type GoLogger struct {
	fields []any
	Level  Level
}

func (l *GoLogger) enabled(level Level) bool { return l.Level >= level }

// emit is the single gate every leveled method funnels through: the level
// check happens once here instead of being repeated at each call site.
func (l *GoLogger) emit(level Level, print func()) {
	if l.enabled(level) {
		print()
	}
}

func (l *GoLogger) Info(args ...any)   { l.emit(InfoLevel, func() { log.Print(args...) }) }
func (l *GoLogger) Infof(format string, args ...any) {
	l.emit(InfoLevel, func() { log.Printf(format, args...) })
}
func (l *GoLogger) Infoln(args ...any) { l.emit(InfoLevel, func() { log.Println(args...) }) }

func (l *GoLogger) Error(args ...any) { l.emit(ErrorLevel, func() { log.Print(args...) }) }
func (l *GoLogger) Errorf(format string, args ...any) {
	l.emit(ErrorLevel, func() { log.Printf(format, args...) })
}
func (l *GoLogger) Errorln(args ...any) { l.emit(ErrorLevel, func() { log.Println(args...) }) }

func (l *GoLogger) Warn(args ...any) { l.emit(WarnLevel, func() { log.Print(args...) }) }
func (l *GoLogger) Warnf(format string, args ...any) {
	l.emit(WarnLevel, func() { log.Printf(format, args...) })
}
func (l *GoLogger) Warnln(args ...any) { l.emit(WarnLevel, func() { log.Println(args...) }) }

func (l *GoLogger) Debug(args ...any) { l.emit(DebugLevel, func() { log.Print(args...) }) }
func (l *GoLogger) Debugf(format string, args ...any) {
	l.emit(DebugLevel, func() { log.Printf(format, args...) })
}
func (l *GoLogger) Debugln(args ...any) { l.emit(DebugLevel, func() { log.Println(args...) }) }

func (l *GoLogger) Fatal(args ...any) { l.emit(FatalLevel, func() { log.Print(args...) }) }
func (l *GoLogger) Fatalf(format string, args ...any) {
	l.emit(FatalLevel, func() { log.Printf(format, args...) })
}
func (l *GoLogger) Fatalln(args ...any) { l.emit(FatalLevel, func() { log.Println(args...) }) }

func (l *GoLogger) WithFields(fields ...any) Logger {
	return &GoLogger{Level: l.Level, fields: fields}
}

func (l *GoLogger) Sync() error { return nil }

// NoneLogger discards everything. Used as the safe zero-value fallback when
// no logger was ever injected into the context. It satisfies Logger through
// embedding rather than restating every method: silentLogger below provides
// every variadic/formatted no-op once, and NoneLogger overrides only
// WithFields, since that one must return the *NoneLogger itself rather than
// the embedded silentLogger value, so further chaining keeps working.
type silentLogger struct{}

func (silentLogger) Info(args ...any)                  {}
func (silentLogger) Infof(format string, args ...any)  {}
func (silentLogger) Infoln(args ...any)                {}
func (silentLogger) Error(args ...any)                 {}
func (silentLogger) Errorf(format string, args ...any) {}
func (silentLogger) Errorln(args ...any)               {}
func (silentLogger) Warn(args ...any)                  {}
func (silentLogger) Warnf(format string, args ...any)  {}
func (silentLogger) Warnln(args ...any)                {}
func (silentLogger) Debug(args ...any)                 {}
func (silentLogger) Debugf(format string, args ...any) {}
func (silentLogger) Debugln(args ...any)               {}
func (silentLogger) Fatal(args ...any)                 {}
func (silentLogger) Fatalf(format string, args ...any) {}
func (silentLogger) Fatalln(args ...any)               {}
func (silentLogger) Sync() error                       { return nil }

type NoneLogger struct{ silentLogger }

func (l *NoneLogger) WithFields(fields ...any) Logger { return l }

type loggerContextKey string

const loggerKey loggerContextKey = "logger"

// ContextWithLogger returns a context carrying the given Logger.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the Logger injected by ContextWithLogger, falling
// back to a NoneLogger when nothing was ever injected.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok && logger != nil {
		return logger
	}

	return &NoneLogger{}
}
