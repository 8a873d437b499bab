package api

import (
	"github.com/biomirror/biomirror/pkg/types"
	"github.com/biomirror/biomirror/server/internal/session"
	"github.com/biomirror/biomirror/server/internal/store"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status        string             `json:"status"`
	State         types.SessionState `json:"state"`
	SessionID     string             `json:"session_id,omitempty"`
	ProducerCount int                `json:"producer_count"`
	ObserverCount int                `json:"observer_count"`
	OutputsTotal  uint64             `json:"outputs_total"`
	AlertCount    int                `json:"alert_count"`
	UptimeSeconds float64            `json:"uptime_seconds"`
}

// SessionResponse is the payload for GET /api/v1/session and
// POST /api/v1/session/start.
type SessionResponse struct {
	session.Snapshot
	Diagnostics []DiagnosticHint `json:"diagnostics"`
}

// SeriesResponse is the payload for GET /api/v1/series.
type SeriesResponse struct {
	Capacity int            `json:"capacity"`
	Total    uint64         `json:"total"`
	Points   []types.Output `json:"points"`
}

// ProducersResponse is the payload for GET /api/v1/producers.
type ProducersResponse struct {
	Producers []store.Producer `json:"producers"`
}

// DiagnosticsResponse is the payload for GET /api/v1/diagnostics.
type DiagnosticsResponse struct {
	State       types.SessionState `json:"state"`
	Diagnostics []DiagnosticHint   `json:"diagnostics"`
	GeneratedAt string             `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
