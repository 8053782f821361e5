package health

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStatusCode(t *testing.T) {
	assert.Equal(t, StatusHealthy, FromStatusCode(http.StatusOK).Status)
	assert.Equal(t, StatusUnhealthy, FromStatusCode(http.StatusServiceUnavailable).Status)
	assert.Equal(t, StatusUnknown, FromStatusCode(http.StatusNotFound).Status)
	assert.Equal(t, StatusUnknown, FromStatusCode(http.StatusInternalServerError).Status)
	assert.Equal(t, http.StatusNotFound, FromStatusCode(http.StatusNotFound).Code)
}

func TestAggregateStatus(t *testing.T) {
	resp := NewHealthProbeResponse()
	assert.Equal(t, StatusHealthy, resp.Status())

	resp.Add("nlp", "a", HealthCheckResult{Status: StatusHealthy, Code: 200})
	resp.Add("nlp", "b", HealthCheckResult{Status: StatusHealthy, Code: 200})
	assert.True(t, resp.Healthy())

	resp.Add("chat", "chat_generation", HealthCheckResult{Status: StatusUnknown})
	assert.Equal(t, StatusUnknown, resp.Status())

	resp.Add("nlp", "c", HealthCheckResult{Status: StatusUnhealthy, Code: 503})
	assert.Equal(t, StatusUnhealthy, resp.Status())
	assert.False(t, resp.Healthy())
	assert.Len(t, resp.Services["nlp"], 3)
}

func TestHealthStatusJSON(t *testing.T) {
	b, err := json.Marshal(HealthCheckResult{Status: StatusUnhealthy, Code: 503, Reason: "down"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"UNHEALTHY","code":503,"reason":"down"}`, string(b))

	var res HealthCheckResult
	require.NoError(t, json.Unmarshal([]byte(`{"status":"healthy"}`), &res))
	assert.Equal(t, StatusHealthy, res.Status)

	assert.Error(t, json.Unmarshal([]byte(`{"status":"sideways"}`), &res))
}
