package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/api"
	"github.com/warp/commission-engine/payroll"
)

func TestScenarios_LoadThenRunPayroll(t *testing.T) {
	tests := []struct {
		scenario  string
		advisors  int
		completed int
	}{
		{"store-month", 3, 3},
		{"corporate-month", 2, 2},
		{"scheme-revision", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			// GIVEN: A loaded demo scenario for the previous month
			// WHEN: Payroll runs for that month
			// THEN: Every advisor is evaluated without errors

			srv := newTestServer(t)

			status, body := srv.do(t, "POST", "/api/scenarios/load", map[string]string{"scenario_id": tt.scenario})
			require.Equal(t, http.StatusOK, status, string(body))
			assert.Equal(t, "2025-04", decode[map[string]string](t, body)["period"])

			status, body = srv.do(t, "GET", "/api/scenarios/current", nil)
			require.Equal(t, http.StatusOK, status)
			assert.Equal(t, tt.scenario, decode[api.ScenarioDTO](t, body).ID)

			status, body = srv.do(t, "POST", "/api/payroll/runs", map[string]string{"period": "2025-04"})
			require.Equal(t, http.StatusCreated, status, string(body))
			run := decode[api.RunDTO](t, body)
			assert.Equal(t, string(payroll.StatusCompleted), run.Status, string(body))
			assert.Equal(t, tt.advisors, run.Advisors)
			assert.Equal(t, tt.completed, run.Completed)
			assert.True(t, run.TotalNet.IsPositive())
		})
	}
}

func TestScenarios_RevisionApprovalArchivesPrevious(t *testing.T) {
	srv := newTestServer(t)
	status, _ := srv.do(t, "POST", "/api/scenarios/load", map[string]string{"scenario_id": "scheme-revision"})
	require.Equal(t, http.StatusOK, status)

	status, body := srv.do(t, "POST", "/api/schemes/store-2025-04-rev2/approve", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = srv.do(t, "GET", "/api/schemes/store-2025-04", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "archived", decode[map[string]any](t, body)["status"])
}

func TestScenarios_StoreMonthPenalties(t *testing.T) {
	// GIVEN: The store month, where one of Lucia's incidents is condoned
	// WHEN: Penalties are predicted
	// THEN: Mateo owes 2 x 40 + 80, Lucia nothing

	srv := newTestServer(t)
	status, _ := srv.do(t, "POST", "/api/scenarios/load", map[string]string{"scenario_id": "store-month"})
	require.Equal(t, http.StatusOK, status)

	status, body := srv.do(t, "GET", "/api/advisors/adv-mateo/penalties?period=2025-04", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "160", decode[api.PenaltyDTO](t, body).Total.String())

	status, body = srv.do(t, "GET", "/api/advisors/adv-lucia/penalties?period=2025-04", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[api.PenaltyDTO](t, body).Total.IsZero())
}

func TestScenarios_UnknownAndReset(t *testing.T) {
	srv := newTestServer(t)

	status, _ := srv.do(t, "POST", "/api/scenarios/load", map[string]string{"scenario_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = srv.do(t, "POST", "/api/scenarios/load", map[string]string{"scenario_id": "store-month"})
	require.Equal(t, http.StatusOK, status)
	status, _ = srv.do(t, "POST", "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, status)

	status, body := srv.do(t, "GET", "/api/advisors", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]api.AdvisorDTO](t, body))

	status, body = srv.do(t, "GET", "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "null", string(trimNewline(body)))
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
