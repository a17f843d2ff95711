package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"linkwatch/internal/metrics"
	"linkwatch/internal/monitor"
	logx "linkwatch/pkg/logx"
)

type fakeCycles struct {
	last monitor.CycleResult
	ok   bool
}

func (f fakeCycles) LastCycle() (monitor.CycleResult, bool) { return f.last, f.ok }

func get(t *testing.T, h http.Handler, target string, header map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	body, _ := io.ReadAll(rec.Body)
	return rec.Code, string(body)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 10, 18, 7, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		cycles CycleSource
		code   int
		status string
	}{
		{"starting", fakeCycles{}, http.StatusServiceUnavailable, "starting"},
		{"ok", fakeCycles{last: monitor.CycleResult{At: at, Fetched: 12, Alerts: 1}, ok: true}, http.StatusOK, "ok"},
		{"skipped", fakeCycles{last: monitor.CycleResult{At: at, Skipped: true, Error: "timeout"}, ok: true}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := New(Config{}, nil, tc.cycles, logx.Nop())
			code, body := get(t, s.Handler(Config{}), "/healthz", nil)
			if code != tc.code {
				t.Fatalf("code = %d, want %d", code, tc.code)
			}
			var h Health
			if err := json.Unmarshal([]byte(body), &h); err != nil {
				t.Fatalf("decode %q: %v", body, err)
			}
			if h.Status != tc.status {
				t.Fatalf("status = %q, want %q", h.Status, tc.status)
			}
			if tc.status == "ok" && (h.LastCycle == nil || h.LastCycle.Fetched != 12) {
				t.Fatalf("last_cycle = %+v", h.LastCycle)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	m, err := metrics.New()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	m.Alert("individual")
	s := New(Config{}, m.Handler(), nil, logx.Nop())
	code, body := get(t, s.Handler(Config{}), "/metrics", nil)
	if code != http.StatusOK || !strings.Contains(body, "linkwatch_alerts_total") {
		t.Fatalf("code = %d body = %q", code, body)
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()
	cfg := Config{Token: "s3cret", Pprof: true}
	h := New(cfg, nil, fakeCycles{ok: true}, logx.Nop()).Handler(cfg)

	cases := []struct {
		name   string
		target string
		header map[string]string
		code   int
	}{
		{"missing", "/healthz", nil, http.StatusUnauthorized},
		{"wrong bearer", "/healthz", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"bearer", "/healthz", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"query", "/healthz?token=s3cret", nil, http.StatusOK},
		{"pprof guarded", "/debug/pprof/", nil, http.StatusUnauthorized},
		{"pprof", "/debug/pprof/?token=s3cret", nil, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if code, _ := get(t, h, tc.target, tc.header); code != tc.code {
				t.Fatalf("code = %d, want %d", code, tc.code)
			}
		})
	}
}

func TestPprofDisabled(t *testing.T) {
	t.Parallel()
	h := New(Config{}, nil, nil, logx.Nop()).Handler(Config{})
	if code, _ := get(t, h, "/debug/pprof/", nil); code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", code)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	for addr, want := range map[string]bool{
		"127.0.0.1:9090": true,
		"localhost:9090": true,
		"[::1]:9090":     true,
		":9090":          false,
		"0.0.0.0:9090":   false,
		"10.0.0.5:9090":  false,
		"bogus":          false,
	} {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
