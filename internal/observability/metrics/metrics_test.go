package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerRendersObservedSeries(t *testing.T) {
	ObserveHTTPRequest("/api/chat", "POST", 500, 120*time.Millisecond)
	ObserveGatewayCall("coingecko", "coin", "error", 30*time.Millisecond)
	ObserveGatewayCall("coingecko", "coin", "cache_hit", 0)
	ObserveToolDispatch("get_yield_pools", "ok")
	ObserveCoordinator("partial")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	wants := []string{
		`superio_http_requests_total{handler="/api/chat",method="POST",code="500"}`,
		`superio_http_request_errors_total{handler="/api/chat",method="POST"}`,
		`superio_http_request_duration_seconds_bucket{handler="/api/chat",method="POST",le="0.25"} 1`,
		`superio_gateway_calls_total{upstream="coingecko",operation="coin",outcome="cache_hit"}`,
		`superio_gateway_call_duration_seconds_count{upstream="coingecko"}`,
		`superio_tool_dispatch_total{tool="get_yield_pools",outcome="ok"}`,
		`superio_coordinator_requests_total{result="partial"}`,
	}
	for _, want := range wants {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, text)
		}
	}
}

func TestEscapeLabelValue(t *testing.T) {
	if got := escape("a\"b\\c\n"); got != `a\"b\\c` {
		t.Fatalf("unexpected escape: %q", got)
	}
}
