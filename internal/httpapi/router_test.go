package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/lockmanager"
	"github.com/pipedag/pipedag-engine/internal/stageregistry"
)

func newTestRouter(t *testing.T) (*gin.Engine, *stageregistry.Registry, lockmanager.Backend) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := stageregistry.New()
	locks := lockmanager.NewNoLockManager(nil)
	r := NewRouter(RouterConfig{Handlers: NewHandlers(reg, locks)}, nil)
	return r, reg, locks
}

func TestHealthCheck(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestListStages(t *testing.T) {
	r, reg, _ := newTestRouter(t)
	stage := domain.NewStage("raw")
	require.NoError(t, reg.Register(stage))
	require.NoError(t, reg.MarkSwapped(stage))

	req := httptest.NewRequest(http.MethodGet, "/stages", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Stages []stageView `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Stages, 1)
	require.Equal(t, "raw", body.Stages[0].Name)
	require.True(t, body.Stages[0].Swapped)
}

func TestListLocks(t *testing.T) {
	r, _, locks := newTestRouter(t)
	stage := domain.NewStage("raw")
	require.NoError(t, locks.Acquire(context.Background(), stage))

	req := httptest.NewRequest(http.MethodGet, "/locks", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Locks map[string]string `json:"locks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "LOCKED", body.Locks["stage:raw"])
}

func TestNoRouteReturnsJSONEnvelope(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "not_found", body.Error.Code)
}
