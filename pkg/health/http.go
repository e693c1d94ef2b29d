package health

import (
	"encoding/json"
	"net/http"

	"github.com/lewisedginton/organizer/pkg/logger"
)

// Response is the JSON body of the health endpoints.
type Response struct {
	Status  string                 `json:"status"`
	Checks  map[string]CheckStatus `json:"checks,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// CheckStatus is one check inside Response.
type CheckStatus struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// LivenessHandler answers 200 when alive and 503 otherwise.
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := h.CheckLiveness(r.Context())
		h.write(w, status, err)
	}
}

// ReadinessHandler answers 200 when dependencies are reachable and 503 otherwise.
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := h.CheckReadiness(r.Context())
		h.write(w, status, err)
	}
}

func (h *HealthChecker) write(w http.ResponseWriter, status *Status, err error) {
	resp := Response{Status: "healthy"}
	code := http.StatusOK
	if !status.Healthy {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
		if err != nil {
			resp.Message = err.Error()
		}
	}
	if len(status.Checks) > 0 {
		resp.Checks = make(map[string]CheckStatus, len(status.Checks))
	}
	for _, c := range status.Checks {
		cs := CheckStatus{Status: "ok", Latency: c.Latency.String()}
		if !c.Healthy {
			cs.Status = "error"
			cs.Error = c.Error
		}
		resp.Checks[c.Name] = cs
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil && h.log != nil {
		h.log.Error("Failed to encode health response", logger.ErrorField(err))
	}
}
