package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflowhq/go-auth"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestCollector_RecordSignIn(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSignIn(auth.MethodCredentials, auth.FailureNone)
	c.RecordSignIn(auth.MethodCredentials, auth.FailureNone)
	c.RecordSignIn(auth.MethodCredentials, auth.FailureUnknownUser)
	c.RecordSignIn(auth.MethodGitHub, auth.FailureProviderError)

	assert.Equal(t, 2.0, counterValue(t, reg, "taskflow_auth_signin_total",
		map[string]string{"method": "credentials", "outcome": "success"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "taskflow_auth_signin_total",
		map[string]string{"method": "credentials", "outcome": "failure"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "taskflow_auth_signin_failures_total",
		map[string]string{"method": "credentials", "kind": "unknown_user"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "taskflow_auth_signin_failures_total",
		map[string]string{"method": "github", "kind": "provider_error"}))
}

func TestCollector_RecordSessionMaterialized(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionMaterialized(true)
	c.RecordSessionMaterialized(false)
	c.RecordSessionMaterialized(false)

	assert.Equal(t, 1.0, counterValue(t, reg, "taskflow_auth_session_materializations_total",
		map[string]string{"result": "valid"}))
	assert.Equal(t, 2.0, counterValue(t, reg, "taskflow_auth_session_materializations_total",
		map[string]string{"result": "invalid"}))
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg).RecordSignIn(auth.MethodEmail, auth.FailureTokenInvalid)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `taskflow_auth_signin_failures_total{kind="token_invalid",method="email"} 1`)
}
