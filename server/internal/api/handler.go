package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/biomirror/biomirror/server/internal/alerts"
	"github.com/biomirror/biomirror/server/internal/session"
	"github.com/biomirror/biomirror/server/internal/store"
)

// startTimeout bounds how long POST /api/v1/session/start waits for the
// session loop to pick up the request.
const startTimeout = 5 * time.Second

// Session is the part of session.Session the API needs.
type Session interface {
	Snapshot() session.Snapshot
	Start(ctx context.Context) (session.Snapshot, error)
}

// Deps are the read models and controls the API serves from.
type Deps struct {
	Session   Session
	Series    *store.Series
	Producers *store.Producers
	Alerts    *alerts.Engine

	// Observers reports the number of connected output observers. Optional.
	Observers func() int

	// Tolerance is drawn as a reference line on the stability chart.
	Tolerance float64

	// Protect wraps state-changing routes, e.g. with auth.Middleware. Optional.
	Protect func(http.Handler) http.Handler
}

// Handler is the HTTP handler for all /api/v1/* endpoints and /charts.
type Handler struct {
	deps    Deps
	mux     *http.ServeMux
	started time.Time
	now     func() time.Time
}

// New creates a Handler wired to deps and registers all routes.
func New(deps Deps) http.Handler {
	h := &Handler{deps: deps, mux: http.NewServeMux(), started: time.Now(), now: time.Now}

	var start http.Handler = http.HandlerFunc(h.startSession)
	if deps.Protect != nil {
		start = deps.Protect(start)
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/session", h.session)
	h.mux.Handle("/api/v1/session/start", start)
	h.mux.HandleFunc("/api/v1/output", h.output)
	h.mux.HandleFunc("/api/v1/series", h.series)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/producers", h.producers)
	h.mux.HandleFunc("/api/v1/diagnostics", h.diagnostics)
	h.mux.HandleFunc("/charts", h.charts)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := h.deps.Session.Snapshot()
	resp := HealthResponse{
		Status:        "ok",
		State:         snap.State,
		SessionID:     snap.ID,
		ProducerCount: h.deps.Producers.Count(),
		ObserverCount: h.observers(),
		OutputsTotal:  h.deps.Series.Total(),
		AlertCount:    len(h.activeAlerts()),
		UptimeSeconds: h.now().Sub(h.started).Seconds(),
	}
	jsonResp(w, http.StatusOK, resp)
}

// session returns GET /api/v1/session.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.sessionResponse(h.deps.Session.Snapshot()))
}

// startSession handles POST /api/v1/session/start: Idle -> Calibrating.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), startTimeout)
	defer cancel()

	snap, err := h.deps.Session.Start(ctx)
	switch {
	case errors.Is(err, session.ErrAlreadyStarted):
		jsonErr(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		jsonErr(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	jsonResp(w, http.StatusAccepted, h.sessionResponse(snap))
}

// output returns GET /api/v1/output: the newest output tuple.
func (h *Handler) output(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out, ok := h.deps.Series.Latest()
	if !ok {
		jsonErr(w, http.StatusNotFound, "no output yet")
		return
	}
	jsonResp(w, http.StatusOK, out)
}

// series returns GET /api/v1/series[?limit=N]: recent outputs, oldest first.
func (h *Handler) series(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	points := h.deps.Series.Points()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if n < len(points) {
			points = points[len(points)-n:]
		}
	}

	jsonResp(w, http.StatusOK, SeriesResponse{
		Capacity: h.deps.Series.Cap(),
		Total:    h.deps.Series.Total(),
		Points:   points,
	})
}

// alerts returns GET /api/v1/alerts: active and recently resolved alerts.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.activeAlerts())
}

// producers returns GET /api/v1/producers: live sample producers.
func (h *Handler) producers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, ProducersResponse{Producers: h.deps.Producers.List()})
}

// diagnostics returns GET /api/v1/diagnostics.
func (h *Handler) diagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap := h.deps.Session.Snapshot()
	jsonResp(w, http.StatusOK, DiagnosticsResponse{
		State:       snap.State,
		Diagnostics: h.hints(snap),
		GeneratedAt: h.now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) sessionResponse(snap session.Snapshot) SessionResponse {
	return SessionResponse{Snapshot: snap, Diagnostics: h.hints(snap)}
}

func (h *Handler) hints(snap session.Snapshot) []DiagnosticHint {
	return computeDiagnostics(snap, h.deps.Producers.List(), h.observers(), h.deps.Tolerance)
}

func (h *Handler) observers() int {
	if h.deps.Observers == nil {
		return 0
	}
	return h.deps.Observers()
}

func (h *Handler) activeAlerts() []*alerts.Alert {
	if h.deps.Alerts == nil {
		return []*alerts.Alert{}
	}
	return h.deps.Alerts.Active()
}

// jsonResp encodes v before writing the status, so values JSON cannot
// represent (a score that overflowed to Inf) become a 500 instead of a
// truncated 200 body.
func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("api: encode response", "err", err)
		code = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Error: "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(append(body, '\n')) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
