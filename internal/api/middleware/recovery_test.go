package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evroute/evroute/internal/api/middleware"
	"github.com/evroute/evroute/internal/api/models"
)

func TestRecovery_WritesProblemAndLogsRoute(t *testing.T) {
	var buf bytes.Buffer

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(zerolog.New(&buf)))
	r.Post("/v1/trips/{tripId}/optimize", func(http.ResponseWriter, *http.Request) {
		panic("selector blew up")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/trips/trp_1/optimize", http.NoBody))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeInternal, problem.Type)
	assert.Equal(t, "/v1/trips/trp_1/optimize", problem.Instance)
	assert.NotContains(t, problem.Detail, "selector blew up")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "panic recovered", logEntry["message"])
	assert.Equal(t, "selector blew up", logEntry["panic"])
	assert.Equal(t, "/v1/trips/{tripId}/optimize", logEntry["route"])
	assert.NotEmpty(t, logEntry["request_id"])
	assert.NotEmpty(t, logEntry["stack"])
}

func TestRecovery_PassesThroughWithoutPanic(t *testing.T) {
	var buf bytes.Buffer
	handler := middleware.Recovery(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/trips/trp_1", http.NoBody))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, buf.Len())
}

func TestRecovery_ReRaisesAbortHandler(t *testing.T) {
	var buf bytes.Buffer
	handler := middleware.Recovery(zerolog.New(&buf))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	})
	assert.Zero(t, buf.Len())
}
