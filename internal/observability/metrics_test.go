package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/procurement/orders/{id}")
	req := httptest.NewRequest(http.MethodGet, "/procurement/orders/7", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `sitetrack_http_requests_total{code="418",route="/procurement/orders/{id}"} 1`)
	require.Contains(t, body, `sitetrack_http_request_duration_seconds_bucket{route="/procurement/orders/{id}"`)
}

func TestLifecycleCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveTransition("PENDING", "APPROVED")
	metrics.ObserveTransition("PENDING", "APPROVED")
	metrics.ObserveOperation("transition", "ok")
	metrics.ObserveOperation("record_receipt", "quantity_out_of_range")

	body := scrape(t, metrics)
	require.Contains(t, body, `sitetrack_order_transitions_total{from="PENDING",to="APPROVED"} 2`)
	require.Contains(t, body, `sitetrack_order_operations_total{operation="transition",outcome="ok"} 1`)
	require.Contains(t, body, `sitetrack_order_operations_total{operation="record_receipt",outcome="quantity_out_of_range"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTransition("DRAFT", "PENDING")
	m.ObserveOperation("create", "ok")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestInitTracingStdout(t *testing.T) {
	var buf bytes.Buffer
	tp, shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "stdout", Writer: &buf})
	require.NoError(t, err)
	require.NotNil(t, tp)

	_, span := tp.Tracer("test").Start(context.Background(), "procurement.transition")
	span.End()
	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, buf.String(), "procurement.transition")
}

func TestInitTracingDisabledAndUnknown(t *testing.T) {
	tp, shutdown, err := InitTracing(context.Background(), TracingConfig{})
	require.NoError(t, err)
	require.Nil(t, tp)
	require.NoError(t, shutdown(context.Background()))

	_, _, err = InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"})
	require.Error(t, err)
}
