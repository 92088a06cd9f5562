package coachapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
)

const meterName = "github.com/nishant160406/soft-skill-ai-coach/coachapi"

type clientMetrics struct {
	evaluations metric.Int64Counter
	latency     metric.Float64Histogram
	clips       metric.Int64Counter
}

func newClientMetrics() *clientMetrics {
	meter := otel.Meter(meterName)
	fallback := noop.NewMeterProvider().Meter(meterName)

	m := &clientMetrics{}
	var err error
	if m.evaluations, err = meter.Int64Counter("coach.evaluations",
		metric.WithDescription("Evaluation calls by result")); err != nil {
		m.evaluations, _ = fallback.Int64Counter("coach.evaluations")
	}
	if m.latency, err = meter.Float64Histogram("coach.evaluation.latency",
		metric.WithDescription("Evaluation service latency"),
		metric.WithUnit("s")); err != nil {
		m.latency, _ = fallback.Float64Histogram("coach.evaluation.latency")
	}
	if m.clips, err = meter.Int64Counter("coach.tts.clips",
		metric.WithDescription("Feedback clips by source")); err != nil {
		m.clips, _ = fallback.Int64Counter("coach.tts.clips")
	}
	return m
}

func (m *clientMetrics) evaluation(ctx context.Context, elapsed time.Duration, err error) {
	result := "ok"
	var serviceErr *domain.EvaluationServiceError
	switch {
	case errors.As(err, &serviceErr) && serviceErr.StatusCode != 0:
		result = "status_" + strconv.Itoa(serviceErr.StatusCode)
	case err != nil:
		result = "unreachable"
	}
	m.evaluations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	m.latency.Record(ctx, elapsed.Seconds())
}

func (m *clientMetrics) synthesis(ctx context.Context, source string) {
	m.clips.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}
