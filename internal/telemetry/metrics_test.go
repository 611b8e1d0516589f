package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/api/v1/strategies/{channelID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/strategies/{channelID}", "418"))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/strategies/rain-room", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/strategies/{channelID}", "418"))

	if after-before != 1 {
		t.Fatalf("request counter moved by %v, want 1", after-before)
	}
	if got := testutil.ToFloat64(APIActiveConnections); got != 0 {
		t.Fatalf("active connections = %v after request", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	GenerationsTotal.WithLabelValues("generate", "ok").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, name := range []string{"slotseq_generation_total", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestSampler(t *testing.T) {
	for rate, want := range map[float64]string{0: "AlwaysOffSampler", 1: "AlwaysOnSampler", 0.25: "TraceIDRatioBased{0.25}"} {
		if got := sampler(rate).Description(); got != want {
			t.Errorf("sampler(%v) = %q, want %q", rate, got, want)
		}
	}
}
