package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordingAndExposition(t *testing.T) {
	t.Parallel()

	m, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.CycleDone(2*time.Second, 12)
	m.CycleSkipped()
	m.Send("grouped", nil)
	m.Send("grouped", errors.New("x"))
	m.PersistFailed("state")

	if got := testutil.ToFloat64(m.cycles.WithLabelValues("skipped")); got != 1 {
		t.Fatalf("skipped=%v", got)
	}
	if got := testutil.ToFloat64(m.tracked); got != 12 {
		t.Fatalf("tracked=%v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`linkwatch_sends_total{category="grouped",result="error"} 1`,
		`linkwatch_persist_failures_total{record="state"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("exposition missing %q", want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.CycleDone(time.Second, 1)
	m.Alert("individual")
	m.Report(nil)
}
