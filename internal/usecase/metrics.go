package usecase

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/nishant160406/soft-skill-ai-coach/usecase"

type sessionMetrics struct {
	sessions metric.Int64Counter
	restarts metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

func newSessionMetrics() *sessionMetrics {
	meter := otel.Meter(meterName)
	fallback := noop.NewMeterProvider().Meter(meterName)

	m := &sessionMetrics{}
	var err error
	if m.sessions, err = meter.Int64Counter("coach.sessions",
		metric.WithDescription("Voice capture sessions by outcome")); err != nil {
		m.sessions, _ = fallback.Int64Counter("coach.sessions")
	}
	if m.restarts, err = meter.Int64Counter("coach.recognition.restarts",
		metric.WithDescription("Automatic recognizer restarts after the stream ended")); err != nil {
		m.restarts, _ = fallback.Int64Counter("coach.recognition.restarts")
	}
	if m.errors, err = meter.Int64Counter("coach.recognition.errors",
		metric.WithDescription("Recognizer errors by code")); err != nil {
		m.errors, _ = fallback.Int64Counter("coach.recognition.errors")
	}
	if m.duration, err = meter.Float64Histogram("coach.session.duration",
		metric.WithDescription("Recording session duration"),
		metric.WithUnit("s")); err != nil {
		m.duration, _ = fallback.Float64Histogram("coach.session.duration")
	}
	return m
}

func (m *sessionMetrics) session(outcome string) {
	m.sessions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *sessionMetrics) restart(result string) {
	m.restarts.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *sessionMetrics) recognitionError(code string) {
	m.errors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("code", code)))
}

func (m *sessionMetrics) sessionDuration(seconds float64) {
	m.duration.Record(context.Background(), seconds)
}
