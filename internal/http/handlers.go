package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"minigolf/engine/internal/input"
	"minigolf/engine/internal/logging"
	"minigolf/engine/internal/networking"
	"minigolf/engine/internal/replay"
	"minigolf/engine/internal/shot"
	"minigolf/engine/internal/simulation"
)

// maxCommandBytes bounds POST /command bodies.
const maxCommandBytes = 4 << 10

// ReadinessProvider exposes process state required for readiness checks.
type ReadinessProvider interface {
	StartupError() error
	Uptime() time.Duration
}

// SessionController is the session surface the handlers drive.
type SessionController interface {
	Apply(cmd input.Command) error
	Snapshot() shot.Snapshot
}

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger       *logging.Logger
	Readiness    ReadinessProvider
	Session      SessionController
	Monitor      *simulation.TickMonitor
	HubStats     func() networking.HubStats
	ReplayStats  func() replay.Stats
	StorageStats func() replay.StorageStats
	AdminToken   string
	RateLimiter  RateLimiter
	TimeSource   func() time.Time
}

// HandlerSet bundles the operational handlers.
type HandlerSet struct {
	logger       *logging.Logger
	readiness    ReadinessProvider
	session      SessionController
	monitor      *simulation.TickMonitor
	hubStats     func() networking.HubStats
	replayStats  func() replay.Stats
	storageStats func() replay.StorageStats
	adminToken   string
	rateLimiter  RateLimiter
	now          func() time.Time
	registry     *prometheus.Registry
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	h := &HandlerSet{
		logger:       logger,
		readiness:    opts.Readiness,
		session:      opts.Session,
		monitor:      opts.Monitor,
		hubStats:     opts.HubStats,
		replayStats:  opts.ReplayStats,
		storageStats: opts.StorageStats,
		adminToken:   strings.TrimSpace(opts.AdminToken),
		rateLimiter:  opts.RateLimiter,
		now:          now,
		registry:     prometheus.NewRegistry(),
	}
	h.registry.MustRegister(collectors.NewGoCollector(), newGolfCollector(h))
	return h
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/state", h.StateHandler())
	mux.HandleFunc("/command", h.CommandHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports startup status, uptime and the connected client count.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Clients       int     `json:"clients"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.hubStats != nil {
			resp.Clients = h.hubStats().Clients
		}
		if h.readiness != nil {
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
			if err := h.readiness.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		writeJSON(w, status, resp)
	}
}

// StateHandler returns the current session snapshot.
func (h *HandlerSet) StateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.session == nil {
			http.Error(w, "no session", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, h.session.Snapshot())
	}
}

// CommandHandler authorises, rate limits and applies one player command.
func (h *HandlerSet) CommandHandler() http.HandlerFunc {
	type response struct {
		Status   string        `json:"status"`
		Snapshot shot.Snapshot `json:"snapshot"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.requestLogger(r).With(
			logging.String("handler", "command"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("command denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("command denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			reqLogger.Warn("command denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.session == nil {
			http.Error(w, "no session", http.StatusServiceUnavailable)
			return
		}
		//1.- Decode with the same rules the websocket transport applies.
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		cmd, err := input.Decode(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		//2.- Map session refusals onto conflict so callers can retry later.
		if err := h.session.Apply(cmd); err != nil {
			switch {
			case errors.Is(err, shot.ErrShotInProgress), errors.Is(err, shot.ErrBallHoled):
				http.Error(w, err.Error(), http.StatusConflict)
			case errors.Is(err, input.ErrUnknownCommand):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				reqLogger.Error("command failed", logging.Error(err))
				http.Error(w, "command failed", http.StatusInternalServerError)
			}
			return
		}
		reqLogger.Info("command applied", logging.String("type", string(cmd.Type)))
		writeJSON(w, http.StatusAccepted, response{Status: "accepted", Snapshot: h.session.Snapshot()})
	}
}

// MetricsHandler serves the simulator and Go runtime metrics in Prometheus format.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError}).ServeHTTP
}

// requestLogger prefers the traced logger installed by the HTTP middleware.
func (h *HandlerSet) requestLogger(r *http.Request) *logging.Logger {
	if logging.TraceIDFromContext(r.Context()) != "" {
		return logging.LoggerFromContext(r.Context())
	}
	return h.logger
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
