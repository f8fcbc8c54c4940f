package telemetry

import (
	"go.uber.org/zap"
)

// Sink receives structured events from the pipeline, quota gate and sync
// layer. Injected explicitly so tests stay deterministic; there is no
// package-level singleton.
type Sink interface {
	Event(name string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, err error, fields ...zap.Field)
}

type zapSink struct {
	log *zap.Logger
}

// NewSink wraps a zap logger. A nil logger yields a no-op sink.
func NewSink(log *zap.Logger) Sink {
	if log == nil {
		return Nop()
	}
	return &zapSink{log: log}
}

func (s *zapSink) Event(name string, fields ...zap.Field) {
	s.log.Info(name, fields...)
}

func (s *zapSink) Warn(msg string, fields ...zap.Field) {
	s.log.Warn(msg, fields...)
}

func (s *zapSink) Error(msg string, err error, fields ...zap.Field) {
	s.log.Error(msg, append(fields, zap.Error(err))...)
}

type nopSink struct{}

// Nop returns a sink that drops everything.
func Nop() Sink { return nopSink{} }

func (nopSink) Event(string, ...zap.Field)        {}
func (nopSink) Warn(string, ...zap.Field)         {}
func (nopSink) Error(string, error, ...zap.Field) {}
