package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewIsolatedRegistries(t *testing.T) {
	a := New()
	b := New()

	a.SessionsStarted.Inc()

	if got := testutil.ToFloat64(a.SessionsStarted); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
	if got := testutil.ToFloat64(b.SessionsStarted); got != 0 {
		t.Errorf("expected second instance untouched, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.MessagesSent.WithLabelValues("audio").Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `freshscan_messages_sent_total{kind="audio"} 3`) {
		t.Errorf("expected sent counter in output, got:\n%s", body)
	}
}
