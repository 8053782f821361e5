package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"orchestrator-api/internal/ctx"
	"orchestrator-api/internal/shared"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTrackMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core).Sugar()

	e := echo.New()
	g := e.Group("")
	g.Use(NewTrackMiddleware(log))

	var seen *ctx.Context
	g.GET("/thing", func(cc echo.Context) error {
		seen = cc.(*ctx.Context)
		seen.LogValues.Task = "tokenization"
		return cc.String(http.StatusTeapot, "")
	})

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodGet, "/thing", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.NotNil(t, seen)
	assert.Equal(t, traceID, seen.TraceID.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get(shared.RequestIDHeader), "req_"))

	entries := logs.FilterMessage("end_of_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	request, ok := fields["request"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, traceID, request["trace_id"])
	assert.EqualValues(t, http.StatusTeapot, request["status_code"])
	assert.Equal(t, "/thing", request["path"])
}

func TestTrackMiddlewareGeneratesTrace(t *testing.T) {
	e := echo.New()
	g := e.Group("")
	g.Use(NewTrackMiddleware(zap.NewNop().Sugar()))

	var seen *ctx.Context
	g.GET("/thing", func(cc echo.Context) error {
		seen = cc.(*ctx.Context)
		return cc.NoContent(http.StatusOK)
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/thing", nil))
	require.NotNil(t, seen)
	assert.True(t, seen.TraceID.IsValid())
}

func TestAPIKeyMiddleware(t *testing.T) {
	key := strings.Repeat("k", shared.APIKeyLength)
	e := echo.New()
	e.GET("/metrics", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, NewAPIKeyMiddleware(key))

	tests := []struct {
		auth    string
		code    int
		details string
	}{
		{"", http.StatusUnauthorized, "missing authorization header"},
		{"Bearer short", http.StatusUnauthorized, "invalid API key length"},
		{"Bearer " + strings.Repeat("x", shared.APIKeyLength), http.StatusUnauthorized, "unauthorized"},
		{"Bearer " + key, http.StatusOK, ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		if tt.auth != "" {
			req.Header.Set("Authorization", tt.auth)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, tt.code, rec.Code, tt.auth)
		if tt.details != "" {
			assert.JSONEq(t, fmt.Sprintf(`{"code":401,"details":%q}`, tt.details), rec.Body.String())
		}
	}
}

func TestRecoverMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(NewRecoverMiddleware(zap.NewNop().Sugar()))
	e.GET("/boom", func(echo.Context) error { panic("boom") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}
