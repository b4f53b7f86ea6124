package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricsExposesHandler(t *testing.T) {
	m := New()
	m.ObservePaymentAttempt("completed")
	m.ObserveCommitRetry()
	m.ObserveGraphRebuild("startup")
	m.SetCacheVersion(3)
	m.ObserveAuditViolations(1, 2)
	done := m.TimeRouteSolve()
	done()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "ledgerd_payment_attempts_total")
	require.Contains(t, rec.Body.String(), "ledgerd_audit_violations_total")
}
