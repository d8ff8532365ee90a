package observability

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordThroughProvider(t *testing.T) {
	provider, err := InitMeterProvider("test")
	require.NoError(t, err)
	defer func() {
		_ = provider.Shutdown(context.Background())
	}()

	metrics, err := InitMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordBatch(ctx)
	metrics.RecordBatch(ctx)
	metrics.RecordProbeHit(ctx)
	metrics.RecordProbeMiss(ctx)
	metrics.RecordFunctionCreation(ctx)
	metrics.RecordFallbackQuery(ctx)

	recorder := httptest.NewRecorder()
	provider.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, recorder.Code)

	body := recorder.Body.String()
	assert.Contains(t, body, "entity_builder_batches_total")
	assert.Contains(t, body, "entity_builder_probe_hits_total")
	assert.Contains(t, body, "entity_builder_function_creations_total")
}

func TestInitMetricsNeedsNoLiveExporter(t *testing.T) {
	// Instrument creation and recording work against whatever meter is
	// installed, including none at all.
	metrics, err := InitMetrics()
	require.NoError(t, err)
	metrics.RecordBatch(context.Background())
}
