package service

import (
	"net/http"
	"time"

	"github.com/R3E-Network/renkonet/internal/httputil"
)

// StatusReporter is implemented by anything embedding *Base.
type StatusReporter interface {
	Status() Status
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse is the body of /api/status.
type StatusResponse struct {
	Timestamp string   `json:"timestamp"`
	Views     []Status `json:"views"`
}

// HealthHandler reports "healthy" when check is nil or succeeds and
// "degraded" otherwise. It always answers 200 so the UI can show the state.
func HealthHandler(name, version string, check func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		if check != nil {
			if err := check(r); err != nil {
				status = "degraded"
			}
		}
		httputil.WriteJSON(w, http.StatusOK, HealthResponse{
			Status:    status,
			Service:   name,
			Version:   version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// StatusHandler lists the lifecycle state of each view.
func StatusHandler(views ...StatusReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Views:     make([]Status, 0, len(views)),
		}
		for _, v := range views {
			resp.Views = append(resp.Views, v.Status())
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}
