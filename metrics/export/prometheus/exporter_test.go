package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/accessgate"
	"github.com/MrEthical07/accessgate/internal/workers"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot accessgate.MetricsSnapshot
	dropped  uint64
	breakers map[string]string
	pools    []workers.Stats
}

func (f fakeSource) MetricsSnapshot() accessgate.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }
func (f fakeSource) BreakerStates() map[string]string            { return f.breakers }
func (f fakeSource) PoolStats() []workers.Stats                  { return f.pools }

func sampleSource() fakeSource {
	return fakeSource{
		snapshot: accessgate.MetricsSnapshot{
			Counters: map[accessgate.MetricID]uint64{
				accessgate.MetricLoginSuccess:   7,
				accessgate.MetricAccountRevoked: 1,
			},
			Histograms: map[accessgate.MetricID][]uint64{
				accessgate.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped:  2,
		breakers: map[string]string{"database": "closed", "cache": "open"},
		pools:    []workers.Stats{{Class: workers.ClassLogin, Active: 3, Backlog: 1, Rejected: 4}},
	}
}

func TestCollectorCounters(t *testing.T) {
	c := NewCollectorFromSource(sampleSource())

	expected := `
# HELP accessgate_login_success_total Successful logins.
# TYPE accessgate_login_success_total counter
accessgate_login_success_total 7
# HELP accessgate_account_revoked_total Accounts revoked after repeated failed logins.
# TYPE accessgate_account_revoked_total counter
accessgate_account_revoked_total 1
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"accessgate_login_success_total", "accessgate_account_revoked_total"); err != nil {
		t.Fatal(err)
	}
}

func TestCollectorHistogramAndGauges(t *testing.T) {
	c := NewCollectorFromSource(sampleSource())

	expected := `
# HELP accessgate_breaker_open 1 when the circuit breaker of a resilience policy is not closed.
# TYPE accessgate_breaker_open gauge
accessgate_breaker_open{policy="cache",state="open"} 1
accessgate_breaker_open{policy="database",state="closed"} 0
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "accessgate_breaker_open"); err != nil {
		t.Fatal(err)
	}

	if n := testutil.CollectAndCount(c, "accessgate_login_latency_seconds"); n != 1 {
		t.Fatalf("expected one histogram, got %d", n)
	}
	if n := testutil.CollectAndCount(c, "accessgate_pool_active_workers"); n != 1 {
		t.Fatalf("expected one pool gauge, got %d", n)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	h := Handler(NewCollectorFromSource(sampleSource()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"accessgate_login_success_total 7",
		`accessgate_login_latency_seconds_bucket{le="+Inf"} 36`,
		"accessgate_audit_dropped_total 2",
		`accessgate_pool_backlog{class="login"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in output:\n%s", want, body)
		}
	}
}
