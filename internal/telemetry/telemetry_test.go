package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/paulexconde/bizassess/internal/config"
	"github.com/paulexconde/bizassess/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupNone(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{Exporter: "none"}, nil, logger.Nop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupStdoutExportsSpans(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var out bytes.Buffer
	cfg := config.TracingConfig{Exporter: "stdout", SampleRatio: 1, ServiceName: "bizassess-test"}
	shutdown, err := Setup(context.Background(), cfg, &out, logger.Nop())
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "PublishVersion")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), "PublishVersion")
	assert.Contains(t, out.String(), "bizassess-test")
}

func TestSetupUnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.TracingConfig{Exporter: "zipkin"}, nil, logger.Nop())
	assert.ErrorContains(t, err, "zipkin")
}
