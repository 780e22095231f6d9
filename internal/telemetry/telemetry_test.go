package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupIsOptIn(t *testing.T) {
	tests := []Options{
		{Enabled: false, Endpoint: "http://localhost:4318"},
		{Enabled: true, Endpoint: ""},
	}
	for _, opts := range tests {
		shutdown, err := Setup(context.Background(), opts)
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	}
}

type collector struct {
	mu    sync.Mutex
	paths map[string]int
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.paths[r.URL.Path]++
	c.mu.Unlock()
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
}

func (c *collector) hits(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paths[path]
}

func TestSetupExportsTracesAndMetrics(t *testing.T) {
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	col := &collector{paths: make(map[string]int)}
	srv := httptest.NewServer(col)
	defer srv.Close()

	ctx := context.Background()
	shutdown, err := Setup(ctx, Options{
		Enabled:        true,
		Endpoint:       srv.URL + "/",
		ServiceName:    "inventory-test",
		MetricInterval: time.Hour,
	})
	require.NoError(t, err)

	counter, err := otel.Meter("telemetry-test").Int64Counter("test.events")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	_, span := otel.Tracer("telemetry-test").Start(ctx, "test.span")
	span.End()

	flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, shutdown(flushCtx))

	assert.GreaterOrEqual(t, col.hits(metricsPath), 1)
	assert.GreaterOrEqual(t, col.hits(tracesPath), 1)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, "json")
	logger.Debug("hidden")
	logger.Info("shown", slog.Int("n", 1))

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	NewLogger(&buf, slog.LevelDebug, "text").Debug("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}
