// Package logging wraps go.uber.org/zap behind the small injectable
// interface the rest of the module depends on, mirroring the
// Logger/Sugar split the teacher's own logging dependency exposes so
// that call sites never import zap directly.
package logging

import (
	"go.uber.org/zap"
)

// Logger is the structured logging surface every component accepts via
// constructor injection. Nothing outside this package imports zap
// directly, which keeps the logging backend swappable for tests.
type Logger interface {
	Debugw(msg string, kv ...interface{})
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
	With(kv ...interface{}) Logger
	Sync() error
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// New builds a production-profile logger writing structured JSON.
func New() (Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &zapLogger{s: z.Sugar()}, nil
}

// NewDevelopment builds a human-readable console logger, used by the
// CLI's default output and by tests.
func NewDevelopment() Logger {
	z, err := zap.NewDevelopment()
	if err != nil {
		// zap.NewDevelopment only fails on a broken default config;
		// fall back to a no-op core rather than panic in a logger
		// constructor.
		z = zap.NewNop()
	}
	return &zapLogger{s: z.Sugar()}
}

// Nop returns a logger that discards everything, for tests that don't
// care about log output.
func Nop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

func (l *zapLogger) Debugw(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Infow(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warnw(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Errorw(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }

func (l *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}

func (l *zapLogger) Sync() error {
	return l.s.Sync()
}
