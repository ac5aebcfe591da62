package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var defaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// counterVec 是按标签值分组的计数器。
type counterVec struct {
	name   string
	help   string
	labels []string
	values map[string]uint64
}

// histogramVec 是按标签值分组的直方图。
type histogramVec struct {
	name   string
	help   string
	labels []string
	series map[string]*histogram
}

type histogram struct {
	counts []uint64
	sum    float64
	count  uint64
}

type registry struct {
	mu         sync.Mutex
	counters   []*counterVec
	histograms []*histogramVec
}

var (
	reg = &registry{}

	httpRequests     = reg.counter("superio_http_requests_total", "Total number of HTTP requests processed.", "handler", "method", "code")
	httpErrors       = reg.counter("superio_http_request_errors_total", "Total number of HTTP requests that resulted in a server error.", "handler", "method")
	httpLatency      = reg.histogram("superio_http_request_duration_seconds", "HTTP request duration in seconds.", "handler", "method")
	gatewayCalls     = reg.counter("superio_gateway_calls_total", "Upstream gateway calls by outcome.", "upstream", "operation", "outcome")
	gatewayLatency   = reg.histogram("superio_gateway_call_duration_seconds", "Upstream gateway call duration in seconds.", "upstream")
	toolDispatches   = reg.counter("superio_tool_dispatch_total", "Router tool dispatches by tool and outcome.", "tool", "outcome")
	coordinatorTotal = reg.counter("superio_coordinator_requests_total", "Coordinator aggregations by result.", "result")
)

func (r *registry) counter(name, help string, labels ...string) *counterVec {
	c := &counterVec{name: name, help: help, labels: labels, values: make(map[string]uint64)}
	r.counters = append(r.counters, c)
	return c
}

func (r *registry) histogram(name, help string, labels ...string) *histogramVec {
	h := &histogramVec{name: name, help: help, labels: labels, series: make(map[string]*histogram)}
	r.histograms = append(r.histograms, h)
	return h
}

func (r *registry) inc(c *counterVec, values ...string) {
	r.mu.Lock()
	c.values[joinKey(values)]++
	r.mu.Unlock()
}

func (r *registry) observe(h *histogramVec, seconds float64, values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := joinKey(values)
	series := h.series[key]
	if series == nil {
		series = &histogram{counts: make([]uint64, len(defaultBuckets))}
		h.series[key] = series
	}
	series.count++
	series.sum += seconds
	for idx, bound := range defaultBuckets {
		if seconds <= bound {
			series.counts[idx]++
		}
	}
}

// ObserveHTTPRequest 记录一次 HTTP 请求。
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	reg.inc(httpRequests, handler, method, strconv.Itoa(status))
	if status >= 500 {
		reg.inc(httpErrors, handler, method)
	}
	reg.observe(httpLatency, duration.Seconds(), handler, method)
}

// ObserveGatewayCall 记录一次上游调用，outcome 取 ok、error、cache_hit 等。
func ObserveGatewayCall(upstream, operation, outcome string, duration time.Duration) {
	reg.inc(gatewayCalls, upstream, operation, outcome)
	if outcome != "cache_hit" {
		reg.observe(gatewayLatency, duration.Seconds(), upstream)
	}
}

// ObserveToolDispatch 记录路由器的一次工具分发。
func ObserveToolDispatch(tool, outcome string) {
	reg.inc(toolDispatches, tool, outcome)
}

// ObserveCoordinator 记录一次协调器聚合的结果：complete、partial 或 timeout。
func ObserveCoordinator(result string) {
	reg.inc(coordinatorTotal, result)
}

// Handler 以 Prometheus 文本格式输出指标。
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, reg.render())
	})
}

func (r *registry) render() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	b.Grow(2048)
	for _, c := range r.counters {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name)
		for _, key := range sortedKeys(c.values) {
			fmt.Fprintf(&b, "%s{%s} %d\n", c.name, labelPairs(c.labels, key), c.values[key])
		}
	}
	for _, h := range r.histograms {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
		for _, key := range sortedKeys(h.series) {
			series := h.series[key]
			labels := labelPairs(h.labels, key)
			for idx, bound := range defaultBuckets {
				fmt.Fprintf(&b, "%s_bucket{%s,le=\"%s\"} %d\n", h.name, labels, formatFloat(bound), series.counts[idx])
			}
			fmt.Fprintf(&b, "%s_bucket{%s,le=\"+Inf\"} %d\n", h.name, labels, series.count)
			fmt.Fprintf(&b, "%s_sum{%s} %s\n", h.name, labels, formatFloat(series.sum))
			fmt.Fprintf(&b, "%s_count{%s} %d\n", h.name, labels, series.count)
		}
	}
	return b.String()
}

const keySep = "\x1f"

func joinKey(values []string) string {
	return strings.Join(values, keySep)
}

func labelPairs(names []string, key string) string {
	values := strings.Split(key, keySep)
	pairs := make([]string, 0, len(names))
	for i, name := range names {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		pairs = append(pairs, fmt.Sprintf("%s=\"%s\"", name, escape(v)))
	}
	return strings.Join(pairs, ",")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// StartServer 启动独立的 /metrics 监听。
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
