package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/paulexconde/bizassess/internal/metrics"
	"github.com/paulexconde/bizassess/pkg/fault"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("bizassess.services")

// observe opens a span for operation and returns the func that closes it and
// records the outcome.
func observe(ctx context.Context, m *metrics.Metrics, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := tracer.Start(ctx, operation, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, fault.MessageOf(err))
			span.SetAttributes(attribute.String("fault.kind", fault.KindOf(err).String()))
		}
		span.End()
		m.ObserveOperation(operation, started, err)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

func surveyNotFound(surveyID int64, err error) error {
	if errors.Is(err, fault.ErrNotFound) {
		return fault.NotFound(itoa(surveyID), "Survey %d not found", surveyID)
	}
	return err
}

func versionNotFound(versionID int64, err error) error {
	if errors.Is(err, fault.ErrNotFound) {
		return fault.NotFound(itoa(versionID), "Version %d not found", versionID)
	}
	return err
}
