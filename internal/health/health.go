// Package health holds the per-client health result and the rule used to
// fold many results into one readiness signal.
package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type HealthStatus int

const (
	StatusUnknown HealthStatus = iota
	StatusHealthy
	StatusUnhealthy
)

func (s HealthStatus) String() string {
	switch s {
	case StatusHealthy:
		return "HEALTHY"
	case StatusUnhealthy:
		return "UNHEALTHY"
	default:
		return "UNKNOWN"
	}
}

func (s HealthStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *HealthStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch strings.ToUpper(raw) {
	case "HEALTHY":
		*s = StatusHealthy
	case "UNHEALTHY":
		*s = StatusUnhealthy
	case "UNKNOWN", "":
		*s = StatusUnknown
	default:
		return fmt.Errorf("invalid health status %q", raw)
	}
	return nil
}

// HealthCheckResult is produced fresh on every probe.
type HealthCheckResult struct {
	Status HealthStatus `json:"status"`
	Code   int          `json:"code,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

func (r HealthCheckResult) String() string {
	if r.Reason != "" {
		return fmt.Sprintf("%s (%d): %s", r.Status, r.Code, r.Reason)
	}
	return fmt.Sprintf("%s (%d)", r.Status, r.Code)
}

// FromStatusCode maps a health endpoint response code to a result.
// Only 200 is healthy and only 503 is a definite unhealthy; anything else
// says nothing reliable about the backend.
func FromStatusCode(code int) HealthCheckResult {
	switch code {
	case http.StatusOK:
		return HealthCheckResult{Status: StatusHealthy, Code: code}
	case http.StatusServiceUnavailable:
		return HealthCheckResult{Status: StatusUnhealthy, Code: code, Reason: http.StatusText(code)}
	default:
		return HealthCheckResult{Status: StatusUnknown, Code: code, Reason: http.StatusText(code)}
	}
}

// ClientHealth is keyed by logical client name.
type ClientHealth map[string]HealthCheckResult

// HealthProbeResponse groups client results by capability kind.
type HealthProbeResponse struct {
	Services map[string]ClientHealth `json:"services"`
}

func NewHealthProbeResponse() *HealthProbeResponse {
	return &HealthProbeResponse{Services: map[string]ClientHealth{}}
}

func (h *HealthProbeResponse) Add(kind, name string, result HealthCheckResult) {
	byName, ok := h.Services[kind]
	if !ok {
		byName = ClientHealth{}
		h.Services[kind] = byName
	}
	byName[name] = result
}

// Status is UNHEALTHY when any client is unhealthy, UNKNOWN when any client is
// unknown, HEALTHY otherwise. No clients counts as healthy.
func (h *HealthProbeResponse) Status() HealthStatus {
	status := StatusHealthy
	for _, byName := range h.Services {
		for _, res := range byName {
			switch res.Status {
			case StatusUnhealthy:
				return StatusUnhealthy
			case StatusUnknown:
				status = StatusUnknown
			}
		}
	}
	return status
}

func (h *HealthProbeResponse) Healthy() bool {
	return h.Status() == StatusHealthy
}
