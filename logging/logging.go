// Package logging wraps zap so every actor can take an observability sink as
// a construction-time dependency instead of reaching for a process-wide
// singleton (see DESIGN NOTES in the specification).
//
// The teacher package (avebi) exposes a minimal Printf-style Logger
// interface defaulting to the standard library's log.Default(); this
// package keeps that same "inject, don't globalize" shape but backs it with
// structured zap logging, as used throughout viamrobotics-rdk.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging dependency accepted by every long-lived
// actor (Looper, Engine, Driver, Decoder, Renderer).
type Logger struct {
	z *zap.Logger
}

// New wraps an existing *zap.Logger, attaching a "component" field.
func New(z *zap.Logger, component string) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z.With(zap.String("component", component))}
}

// NewProduction builds a JSON production zap logger at the level the caller
// passes in; config.Config carries no log level.
func NewProduction(component string, level zapcore.Level) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return New(z, component), nil
}

var (
	nopOnce sync.Once
	nop     *Logger
)

// Nop returns a shared no-op Logger, the structured equivalent of the
// teacher's package-level pkgLogger default.
func Nop() *Logger {
	nopOnce.Do(func() { nop = New(zap.NewNop(), "nop") })
	return nop
}

// With returns a derived Logger carrying the additional structured fields,
// mirroring the teacher's per-call WithConn/WithStream helpers in spirit.
func (l *Logger) With(fields ...zap.Field) *Logger {
	if l == nil {
		return Nop()
	}
	return &Logger{z: l.z.With(fields...)}
}

func (l *Logger) Debugf(format string, args ...any) { l.zapOrNop().Sugar().Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.zapOrNop().Sugar().Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.zapOrNop().Sugar().Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.zapOrNop().Sugar().Errorf(format, args...) }

// Debug/Info/Warn/Error take structured fields, the idiomatic zap style,
// for call sites that already have typed values on hand (generation
// counters, timestamps, statuses) rather than formatting them into strings.
func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zapOrNop().Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zapOrNop().Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zapOrNop().Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zapOrNop().Error(msg, fields...) }

// Sync flushes buffered log entries; call on actor shutdown.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.z.Sync()
}

func (l *Logger) zapOrNop() *zap.Logger {
	if l == nil || l.z == nil {
		return zap.NewNop()
	}
	return l.z
}
