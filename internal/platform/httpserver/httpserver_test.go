package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesTimeouts(t *testing.T) {
	srv := New(":0", http.NotFoundHandler())
	assert.Equal(t, 15*time.Second, srv.ReadTimeout)
	assert.Equal(t, 30*time.Second, srv.WriteTimeout)

	srv = New(":0", http.NotFoundHandler(), WithTimeouts(time.Second, 0))
	assert.Equal(t, time.Second, srv.ReadTimeout)
	assert.Equal(t, 30*time.Second, srv.WriteTimeout)
}

func TestReadiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: refused") }

	t.Run("all checks pass", func(t *testing.T) {
		rr := httptest.NewRecorder()
		Readiness(map[string]Check{"postgres": ok, "redis": ok}, time.Second).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, map[string]string{"postgres": "ok", "redis": "ok"}, body)
	})

	t.Run("one failing check fails readiness", func(t *testing.T) {
		rr := httptest.NewRecorder()
		Readiness(map[string]Check{"postgres": ok, "kafka": down}, time.Second).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.NotContains(t, rr.Body.String(), "refused")
		assert.Contains(t, rr.Body.String(), `"kafka":"unavailable"`)
	})

	t.Run("no checks is ready", func(t *testing.T) {
		rr := httptest.NewRecorder()
		Readiness(nil, time.Second).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
