package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlers(t *testing.T) {
	h := New()
	h.AddLivenessCheck(&mockCheck{name: "process"})
	h.AddReadinessCheck(&mockCheck{name: "postgres", err: errors.New("dial tcp: refused")})

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantCode   int
		wantStatus string
		check      string
		wantCheck  string
	}{
		{
			name:       "liveness healthy",
			handler:    h.LivenessHandler(),
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
			check:      "process",
			wantCheck:  "ok",
		},
		{
			name:       "readiness unhealthy",
			handler:    h.ReadinessHandler(),
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			check:      "postgres",
			wantCheck:  "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantCheck, resp.Checks[tt.check].Status)
		})
	}
}

func TestHandlers_NoChecks(t *testing.T) {
	rec := httptest.NewRecorder()
	New().ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}
