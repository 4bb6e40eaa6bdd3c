package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersRecord(t *testing.T) {
	m := New("test")

	m.ObserveSent("overdue")
	m.ObserveSent("overdue")
	m.ObserveFailure("reminder_24h", "transport")
	m.ObserveSweep(2*time.Second, 3, 1, 0)

	if got := testutil.ToFloat64(m.notificationsSent.WithLabelValues("overdue")); got != 2 {
		t.Fatalf("expected 2 sent, got %v", got)
	}
	if got := testutil.ToFloat64(m.notificationsFail.WithLabelValues("reminder_24h", "transport")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.sweepItems.WithLabelValues("sent")); got != 3 {
		t.Fatalf("expected 3 sweep sends, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSent("overdue")
	m.ObserveEvaluation("none")
	m.ObserveChange("new")
	m.ObserveSweep(time.Second, 0, 0, 0)
	m.ObserveHTTP("GET", "/health", "200", time.Millisecond)
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have no registry")
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New("todo_notifier")
	m.ObserveChange("new")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `todo_notifier_change_events_total{change="new"} 1`) {
		t.Fatalf("metric not exposed:\n%s", rec.Body.String())
	}
}
