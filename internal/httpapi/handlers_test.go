package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/runner"
	"github.com/hsichihchen-design/cpdoldsim/internal/scenario"
	"github.com/hsichihchen-design/cpdoldsim/internal/scheduler"
)

var demoStart = time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC) // Monday

func newTestServer(t *testing.T, ready ReadyCheck) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := masterdata.NewStore(masterdata.DemoBundle(demoStart), nil)
	require.NoError(t, err)
	runs, err := runner.NewRunner(store, nil, nil, nil, nil)
	require.NoError(t, err)

	server, err := NewServer(Config{ServiceName: "simulation-api-test"}, store, runs, nil, ready, nil)
	require.NoError(t, err)
	return server, server.Router()
}

func performRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeDescriptor(t *testing.T, rec *httptest.ResponseRecorder) runner.Descriptor {
	t.Helper()
	var descriptor runner.Descriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &descriptor))
	return descriptor
}

func createBody(start, end time.Time, seed int64) string {
	return fmt.Sprintf(`{"start_date":%q,"end_date":%q,"seed":%d}`,
		start.Format("2006-01-02"), end.Format("2006-01-02"), seed)
}

func TestHealthAndReady(t *testing.T) {
	_, router := newTestServer(t, nil)

	rec := performRequest(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)

	rec = performRequest(router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active_runs":0`)
}

func TestReadinessFailure(t *testing.T) {
	_, router := newTestServer(t, func(context.Context) error {
		return errors.New("mongodb unreachable")
	})

	rec := performRequest(router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "mongodb unreachable")
}

func TestCreateSimulation(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		_, router := newTestServer(t, nil)

		rec := performRequest(router, http.MethodPost, "/api/v1/simulations",
			createBody(demoStart, demoStart.AddDate(0, 0, 2), 42))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		descriptor := decodeDescriptor(t, rec)
		assert.True(t, strings.HasPrefix(descriptor.RunID, "SIM_"))
		assert.Equal(t, scheduler.StateInitialized, descriptor.State)
		assert.Equal(t, int64(42), descriptor.Config.Seed)
		assert.Nil(t, descriptor.StartedAt)
	})

	t.Run("zero seed gets assigned", func(t *testing.T) {
		_, router := newTestServer(t, nil)

		body := fmt.Sprintf(`{"start_date":%q,"end_date":%q}`,
			demoStart.Format("2006-01-02"), demoStart.AddDate(0, 0, 1).Format("2006-01-02"))
		rec := performRequest(router, http.MethodPost, "/api/v1/simulations", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.NotZero(t, decodeDescriptor(t, rec).Config.Seed)
	})

	t.Run("missing end date", func(t *testing.T) {
		_, router := newTestServer(t, nil)

		body := fmt.Sprintf(`{"start_date":%q,"seed":1}`, demoStart.Format("2006-01-02"))
		rec := performRequest(router, http.MethodPost, "/api/v1/simulations", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "end_date")
	})

	t.Run("malformed date", func(t *testing.T) {
		_, router := newTestServer(t, nil)

		body := fmt.Sprintf(`{"start_date":"07/07/2025","end_date":%q,"seed":1}`,
			demoStart.AddDate(0, 0, 1).Format("2006-01-02"))
		rec := performRequest(router, http.MethodPost, "/api/v1/simulations", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "start_date")
	})

	t.Run("inverted window", func(t *testing.T) {
		_, router := newTestServer(t, nil)

		rec := performRequest(router, http.MethodPost, "/api/v1/simulations",
			createBody(demoStart.AddDate(0, 0, 2), demoStart, 1))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "not before")
	})

	t.Run("parameter overrides accepted", func(t *testing.T) {
		_, router := newTestServer(t, nil)

		body := fmt.Sprintf(`{"start_date":%q,"end_date":%q,"seed":9,"parameter_overrides":{"leader_count":"0"}}`,
			demoStart.Format("2006-01-02"), demoStart.AddDate(0, 0, 1).Format("2006-01-02"))
		rec := performRequest(router, http.MethodPost, "/api/v1/simulations", body)
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("empty override name rejected", func(t *testing.T) {
		_, router := newTestServer(t, nil)

		body := fmt.Sprintf(`{"start_date":%q,"end_date":%q,"seed":9,"parameter_overrides":{"":"1"}}`,
			demoStart.Format("2006-01-02"), demoStart.AddDate(0, 0, 1).Format("2006-01-02"))
		rec := performRequest(router, http.MethodPost, "/api/v1/simulations", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-json body rejected", func(t *testing.T) {
		_, router := newTestServer(t, nil)

		req, _ := http.NewRequest(http.MethodPost, "/api/v1/simulations", strings.NewReader("start=now"))
		req.Header.Set("Content-Type", "text/plain")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})
}

func TestRunLifecycleOverHTTP(t *testing.T) {
	_, router := newTestServer(t, nil)

	rec := performRequest(router, http.MethodPost, "/api/v1/simulations",
		createBody(demoStart, demoStart.AddDate(0, 0, 1), 3))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	runID := decodeDescriptor(t, rec).RunID

	rec = performRequest(router, http.MethodPost, "/api/v1/simulations/"+runID+"/run", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	// The demo run may already have finished on its goroutine, so only the
	// start timestamp is stable here.
	assert.NotNil(t, decodeDescriptor(t, rec).StartedAt)

	// Starting twice conflicts.
	rec = performRequest(router, http.MethodPost, "/api/v1/simulations/"+runID+"/run", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.Eventually(t, func() bool {
		rec := performRequest(router, http.MethodGet, "/api/v1/simulations/"+runID, "")
		return rec.Code == http.StatusOK && decodeDescriptor(t, rec).State == scheduler.StateCompleted
	}, 30*time.Second, 50*time.Millisecond, "run never completed")

	rec = performRequest(router, http.MethodGet, "/api/v1/simulations/"+runID+"/results", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats scheduler.RunStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, runID, stats.RunID)
	assert.Equal(t, 23, stats.ShippingTasksCreated)
	assert.Empty(t, stats.Errors)

	rec = performRequest(router, http.MethodGet, "/api/v1/simulations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListSimulationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, runID, list.Runs[0].RunID)
}

func TestResultsBeforeFinish(t *testing.T) {
	_, router := newTestServer(t, nil)

	rec := performRequest(router, http.MethodPost, "/api/v1/simulations",
		createBody(demoStart, demoStart.AddDate(0, 0, 1), 5))
	require.Equal(t, http.StatusCreated, rec.Code)
	runID := decodeDescriptor(t, rec).RunID

	rec = performRequest(router, http.MethodGet, "/api/v1/simulations/"+runID+"/results", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "not finished")
}

func TestUnknownRun(t *testing.T) {
	_, router := newTestServer(t, nil)

	for _, path := range []string{
		"/api/v1/simulations/SIM_missing",
		"/api/v1/simulations/SIM_missing/results",
	} {
		rec := performRequest(router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	rec := performRequest(router, http.MethodPost, "/api/v1/simulations/SIM_missing/run", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = performRequest(router, http.MethodPost, "/api/v1/simulations/SIM_missing/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelSimulation(t *testing.T) {
	_, router := newTestServer(t, nil)

	rec := performRequest(router, http.MethodPost, "/api/v1/simulations",
		createBody(demoStart, demoStart.AddDate(0, 0, 2), 7))
	require.Equal(t, http.StatusCreated, rec.Code)
	runID := decodeDescriptor(t, rec).RunID

	// Cancelling before start conflicts.
	rec = performRequest(router, http.MethodPost, "/api/v1/simulations/"+runID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = performRequest(router, http.MethodPost, "/api/v1/simulations/"+runID+"/run", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = performRequest(router, http.MethodPost, "/api/v1/simulations/"+runID+"/cancel", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// Whichever wins the race, the run settles into a terminal state.
	require.Eventually(t, func() bool {
		rec := performRequest(router, http.MethodGet, "/api/v1/simulations/"+runID, "")
		return rec.Code == http.StatusOK && decodeDescriptor(t, rec).State.IsTerminal()
	}, 30*time.Second, 50*time.Millisecond, "run never settled")
}

func TestListLimitValidation(t *testing.T) {
	_, router := newTestServer(t, nil)

	for _, raw := range []string{"abc", "-1", "1.5"} {
		rec := performRequest(router, http.MethodGet, "/api/v1/simulations?limit="+raw, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, raw)
	}

	rec := performRequest(router, http.MethodGet, "/api/v1/simulations?limit=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunScenarioOverHTTP(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		_, router := newTestServer(t, nil)

		body := fmt.Sprintf(`{"start_date":%q,"end_date":%q,"seed":5,
			"scenario":{"name":"slow stations","speed_reduction_factor":0.25}}`,
			demoStart.Format("2006-01-02"), demoStart.AddDate(0, 0, 1).Format("2006-01-02"))
		rec := performRequest(router, http.MethodPost, "/api/v1/scenarios/run", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var report scenario.Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, "slow stations", report.Scenario.Name)
		assert.True(t, report.Impact.IsValid())
		assert.NotEmpty(t, report.Deltas)
		assert.NotEqual(t, report.Baseline.RunID, report.Outcome.RunID)
	})

	t.Run("missing name", func(t *testing.T) {
		_, router := newTestServer(t, nil)

		body := fmt.Sprintf(`{"start_date":%q,"end_date":%q,"scenario":{"speed_reduction_factor":0.25}}`,
			demoStart.Format("2006-01-02"), demoStart.AddDate(0, 0, 1).Format("2006-01-02"))
		rec := performRequest(router, http.MethodPost, "/api/v1/scenarios/run", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "name is required")
	})

	t.Run("knob out of range", func(t *testing.T) {
		_, router := newTestServer(t, nil)

		body := fmt.Sprintf(`{"start_date":%q,"end_date":%q,
			"scenario":{"name":"too short","staff_reduction_fraction":1.5}}`,
			demoStart.Format("2006-01-02"), demoStart.AddDate(0, 0, 1).Format("2006-01-02"))
		rec := performRequest(router, http.MethodPost, "/api/v1/scenarios/run", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "staff_reduction_fraction")
	})
}

func TestScenarioTemplates(t *testing.T) {
	_, router := newTestServer(t, nil)

	rec := performRequest(router, http.MethodGet, "/api/v1/scenarios/templates", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ScenarioTemplatesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, len(scenario.Templates()), resp.Count)
	assert.NotZero(t, resp.Count)
}

func TestNoRouteAndNoMethod(t *testing.T) {
	_, router := newTestServer(t, nil)

	rec := performRequest(router, http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ROUTE_NOT_FOUND")

	rec = performRequest(router, http.MethodDelete, "/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "METHOD_NOT_ALLOWED")
}

func TestRequestIDPropagation(t *testing.T) {
	_, router := newTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/simulations", nil)
	req.Header.Set("X-Request-ID", "req-abc-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-abc-123", rec.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}
