// Package telemetry provides the zerolog logger used across kera, with
// OTEL trace context injected into every entry.
package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTELHook adds trace and span IDs to every log entry.
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration.
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a logger tagged with the originating component.
func NewLogger(component string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stderr).
		With().
		Timestamp().
		Str("component", component).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger bound to ctx for trace propagation.
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// LogUnitFailure records a terminal work unit failure.
func (l *Logger) LogUnitFailure(ctx context.Context, target, kind, failureKind, msg string) {
	l.WithContext(ctx).Error().
		Str("target", target).
		Str("resource_type", kind).
		Str("failure", failureKind).
		Msg(msg)
}

// LogMappingWarning records one dropped record during normalization.
func (l *Logger) LogMappingWarning(ctx context.Context, target, kind string, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("target", target).
		Str("resource_type", kind).
		Msg("record dropped during normalization")
}
