package tracing_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aaravmahajanofficial/storefront-cart/internal/config"
	"github.com/aaravmahajanofficial/storefront-cart/internal/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T, ratio float64) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := tracing.NewProvider(resource.Empty(), ratio, sdktrace.WithSpanProcessor(recorder))

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	return recorder
}

func TestStart(t *testing.T) {
	recorder := installRecorder(t, 1)

	_, span := tracing.Start(context.Background(), "cart.add_item", attribute.String("owner", "session:abc"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "cart.add_item", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("owner", "session:abc"))
}

func TestZeroRatioDropsRootSpans(t *testing.T) {
	recorder := installRecorder(t, 0)

	_, span := tracing.Start(context.Background(), "cart.validate")
	span.End()

	assert.Empty(t, recorder.Ended())
}

func TestMiddleware(t *testing.T) {
	recorder := installRecorder(t, 1)

	handler := tracing.Middleware("storefront-cart", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/cart", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP DELETE", spans[0].Name())
}

func TestSetupDisabled(t *testing.T) {
	cfg := &config.Config{}

	shutdown, err := tracing.Setup(context.Background(), cfg)

	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
