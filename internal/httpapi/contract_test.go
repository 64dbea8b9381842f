package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsichihchen-design/cpdoldsim/internal/runner"
	"github.com/hsichihchen-design/cpdoldsim/pkg/contracts/openapi"
)

// contractServer mirrors the server block of api/openapi.yaml; the contract
// router matches requests against it, so exchanges use absolute URLs.
const contractServer = "http://localhost:8080"

func loadContract(t *testing.T) *openapi.Validator {
	t.Helper()
	specPath, err := filepath.Abs(filepath.Join("..", "..", "api", "openapi.yaml"))
	require.NoError(t, err)

	validator, err := openapi.NewValidator(specPath)
	require.NoError(t, err, "contract document failed to load")
	return validator
}

func TestContractDocumentIsValid(t *testing.T) {
	doc := loadContract(t).GetDocument()
	require.NotNil(t, doc)
	assert.Equal(t, "CPD Warehouse Simulator API", doc.Info.Title)
	assert.NotEmpty(t, doc.Info.Version)
	require.NotEmpty(t, doc.Servers)
	assert.Equal(t, contractServer, doc.Servers[0].URL)
}

func TestContractCoversRegisteredRoutes(t *testing.T) {
	required := []string{
		"/health",
		"/ready",
		"/metrics",
		"/api/v1/simulations",
		"/api/v1/simulations/{id}",
		"/api/v1/simulations/{id}/run",
		"/api/v1/simulations/{id}/cancel",
		"/api/v1/simulations/{id}/results",
		"/api/v1/scenarios/run",
		"/api/v1/scenarios/templates",
	}

	paths := loadContract(t).GetPaths()
	for _, want := range required {
		assert.Contains(t, paths, want, "path %s is not documented", want)
	}
}

// exchange plays one request through the router addressed the way the
// documented server would see it, handing back a pair whose bodies can be
// read again by the validator and the caller.
func exchange(router *gin.Engine, method, path, body string) (*http.Request, *http.Response) {
	raw := []byte(body)
	req := httptest.NewRequest(method, contractServer+path, bytes.NewReader(raw))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	req.Body = io.NopCloser(bytes.NewReader(raw))
	return req, rec.Result()
}

func TestLiveExchangesMatchContract(t *testing.T) {
	validator := loadContract(t)
	server, router := newTestServer(t, nil)

	conform := func(t *testing.T, wantStatus int, method, path, body string) *http.Response {
		t.Helper()
		req, resp := exchange(router, method, path, body)

		payload, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		resp.Body = io.NopCloser(bytes.NewReader(payload))

		require.Equal(t, wantStatus, resp.StatusCode, string(payload))
		require.NoError(t, validator.ValidateRequestResponse(req, resp), "%s %s", method, path)
		return resp
	}

	t.Run("health and readiness", func(t *testing.T) {
		conform(t, http.StatusOK, http.MethodGet, "/health", "")
		conform(t, http.StatusOK, http.MethodGet, "/ready", "")
	})

	t.Run("run lifecycle", func(t *testing.T) {
		resp := conform(t, http.StatusCreated, http.MethodPost, "/api/v1/simulations",
			createBody(demoStart, demoStart.AddDate(0, 0, 1), 11))
		var descriptor runner.Descriptor
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&descriptor))

		conform(t, http.StatusAccepted, http.MethodPost,
			"/api/v1/simulations/"+descriptor.RunID+"/run", "")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, err := server.runs.Wait(ctx, descriptor.RunID)
		require.NoError(t, err)

		conform(t, http.StatusOK, http.MethodGet, "/api/v1/simulations/"+descriptor.RunID, "")
		conform(t, http.StatusOK, http.MethodGet, "/api/v1/simulations/"+descriptor.RunID+"/results", "")
		conform(t, http.StatusOK, http.MethodGet, "/api/v1/simulations?limit=5", "")
	})

	t.Run("documented failures", func(t *testing.T) {
		conform(t, http.StatusNotFound, http.MethodGet, "/api/v1/simulations/SIM_missing", "")
		conform(t, http.StatusBadRequest, http.MethodPost, "/api/v1/simulations",
			createBody(demoStart.AddDate(0, 0, 2), demoStart, 1))

		resp := conform(t, http.StatusCreated, http.MethodPost, "/api/v1/simulations",
			createBody(demoStart, demoStart.AddDate(0, 0, 1), 12))
		var descriptor runner.Descriptor
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&descriptor))

		conform(t, http.StatusConflict, http.MethodGet,
			"/api/v1/simulations/"+descriptor.RunID+"/results", "")
	})

	t.Run("scenario analysis", func(t *testing.T) {
		conform(t, http.StatusOK, http.MethodGet, "/api/v1/scenarios/templates", "")

		body := fmt.Sprintf(`{"start_date":%q,"end_date":%q,"seed":6,"scenario":{"name":"thin crew","staff_reduction_fraction":0.25}}`,
			demoStart.Format("2006-01-02"), demoStart.AddDate(0, 0, 1).Format("2006-01-02"))
		conform(t, http.StatusOK, http.MethodPost, "/api/v1/scenarios/run", body)
	})
}
