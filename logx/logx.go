// Package logx provides the structured logger used across the module.
// Grounded on the teacher's log package, which wraps go.uber.org/zap;
// this implementation drops the luxfi/log interface indirection since
// this module does not belong to that organization's logging contract.
package logx

import (
	"go.uber.org/zap"
)

// Logger is the interface every package depends on, never *zap.Logger
// directly, so a no-op logger can stand in during tests.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
}

type zapLogger struct {
	l *zap.Logger
}

// New builds a production zap logger at the given level name
// (debug|info|warn|error).
func New(level string) (Logger, error) {
	cfg := zap.NewProductionConfig()
	var lvl zap.AtomicLevel
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	cfg.Level = lvl
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{l: l}, nil
}

func (z *zapLogger) Debug(msg string, fields ...zap.Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...zap.Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...zap.Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...zap.Field) { z.l.Error(msg, fields...) }
func (z *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{l: z.l.With(fields...)}
}

// NoOp is a logger that discards everything, used by tests and by
// components that are not given an explicit logger.
type NoOp struct{}

func (NoOp) Debug(string, ...zap.Field) {}
func (NoOp) Info(string, ...zap.Field)  {}
func (NoOp) Warn(string, ...zap.Field)  {}
func (NoOp) Error(string, ...zap.Field) {}
func (n NoOp) With(...zap.Field) Logger { return n }
