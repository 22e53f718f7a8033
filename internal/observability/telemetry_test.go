package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestInitTelemetryExportsSpans тестирует установку глобального провайдера и выгрузку спанов
func TestInitTelemetryExportsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	shutdown, err := InitTelemetry(context.Background(), Options{
		ServiceName: "lightstage-test",
		Role:        "display",
		TargetID:    "2",
		Exporter:    exp,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "sync.send")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "sync.send", spans[0].Name)
	assert.Equal(t, "display-2", instanceID(Options{Role: "display", TargetID: "2"}))
	assert.Equal(t, "control", instanceID(Options{Role: "control"}))
}
