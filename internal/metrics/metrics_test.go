package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubereboot/shutdown-guard/pkg/conditions"
)

func TestTargetChanged(t *testing.T) {
	m := New()
	m.TargetChanged("poweroff.target", true)
	m.TargetChanged("reboot.target", true)
	m.TargetChanged("reboot.target", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.targetBlocked.WithLabelValues("poweroff.target")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.targetBlocked.WithLabelValues("reboot.target")))
}

func TestCheckDone(t *testing.T) {
	tests := []struct {
		name      string
		result    conditions.Result
		pass      float64
		fail      float64
		failures  float64
		blockedBy float64
	}{
		{name: "pass", result: conditions.Result{Passed: true}, pass: 1},
		{name: "fail counts category", result: conditions.Result{FailedCategory: conditions.CategoryForbiddenFiles}, fail: 1, failures: 1},
		{name: "fail counts blocker", result: conditions.Result{FailedCategory: conditions.CategoryBlockers, Blocker: "prometheus_alert"}, fail: 1, failures: 1, blockedBy: 1},
		{name: "fail without category", result: conditions.Result{}, fail: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.CheckDone(tt.result)
			assert.Equal(t, tt.pass, testutil.ToFloat64(m.checksTotal.WithLabelValues("pass")))
			assert.Equal(t, tt.fail, testutil.ToFloat64(m.checksTotal.WithLabelValues("fail")))
			if tt.result.FailedCategory != "" {
				assert.Equal(t, tt.failures, testutil.ToFloat64(m.conditionFailure.WithLabelValues(tt.result.FailedCategory)))
			}
			if tt.result.Blocker != "" {
				assert.Equal(t, tt.blockedBy, testutil.ToFloat64(m.blockedBy.WithLabelValues(tt.result.Blocker)))
			}
		})
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.TargetChanged("halt.target", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `shutdown_guard_target_blocked{target="halt.target"} 1`))
	assert.True(t, strings.Contains(string(body), "shutdown_guard_build_info"))
}
