package api

import (
	"net/http"
	"time"

	"github.com/snarg/interview-desk/internal/archive"
	"github.com/snarg/interview-desk/internal/database"
	"github.com/snarg/interview-desk/internal/events"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Backend       string            `json:"backend"`
	Archive       string            `json:"archive"`
	Interviews    *int              `json:"interviews,omitempty"`
	Checks        map[string]string `json:"checks"`
}

// connectionReporter is implemented by publishers with a live connection.
type connectionReporter interface {
	IsConnected() bool
}

type HealthHandler struct {
	store     database.Store
	archive   archive.DocumentStore
	events    events.Publisher
	version   string
	startTime time.Time
}

func NewHealthHandler(store database.Store, docs archive.DocumentStore, pub events.Publisher, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		store:     store,
		archive:   docs,
		events:    pub,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	resp := HealthResponse{
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Backend:       h.store.Backend(),
		Archive:       h.archive.Type(),
		Checks:        checks,
	}

	if err := h.store.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
		if n, err := h.store.Count(r.Context()); err == nil {
			resp.Interviews = &n
		}
	}

	if c, ok := h.events.(connectionReporter); ok {
		if c.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	resp.Status = status
	WriteJSON(w, httpStatus, resp)
}
