package httpx

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/runwatch/internal/domain"
	"github.com/splax/runwatch/internal/repository"
	"github.com/splax/runwatch/internal/service/events"
	"github.com/splax/runwatch/internal/service/runs"
	"github.com/splax/runwatch/internal/service/snapshot"
	"github.com/splax/runwatch/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	runs      runs.Service
	events    events.Service
	snapshots snapshot.Service
	upgrader  websocket.Upgrader
	limiter   RateLimiter
	// emitterToken guards event ingestion; compared in constant time.
	emitterToken string
	dbHealth     func(context.Context) error

	heartbeatInterval  time.Duration
	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	eventsIngested     *prometheus.CounterVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitRead      = 240
	rateLimitWrite     = 60
	rateLimitIngest    = 1200
	rateLimitStream    = 30
	healthCheckTimeout = 2 * time.Second

	defaultHeartbeatInterval = 15 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, runSvc runs.Service, eventSvc events.Service, snapshotSvc snapshot.Service, limiter RateLimiter, emitterToken string, heartbeatInterval time.Duration, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		runs:      runSvc,
		events:    eventSvc,
		snapshots: snapshotSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:           limiter,
		emitterToken:      strings.TrimSpace(emitterToken),
		heartbeatInterval: heartbeatInterval,
		dbHealth:          dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.heartbeatInterval <= 0 {
		r.heartbeatInterval = defaultHeartbeatInterval
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.HandleFunc("/runs", r.audit("/runs", r.withRateLimit("/runs", rateLimitWrite, rateWindowDefault, r.handleRuns)))
	r.mux.HandleFunc("/runs/", r.audit("/runs/:id", r.handleRunSubroutes))
	r.mux.HandleFunc("/ws/runs", r.audit("/ws/runs", r.withRateLimit("/ws/runs", rateLimitStream, rateWindowRealtime, r.handleRunStreamWS)))
	r.mux.HandleFunc("/sse/runs", r.audit("/sse/runs", r.withRateLimit("/sse/runs", rateLimitStream, rateWindowRealtime, r.handleRunStreamSSE)))
}

func (r *Router) handleRuns(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			PipelineName string `json:"pipeline_name"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		run, err := r.runs.Create(req.Context(), payload.PipelineName)
		if err != nil {
			if errors.Is(err, runs.ErrPipelineNameRequired) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, run)
	case http.MethodGet:
		limit, offset := pagination(req)
		list, err := r.runs.List(req.Context(), limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleRunSubroutes(w http.ResponseWriter, req *http.Request) {
	rest := strings.TrimPrefix(req.URL.Path, "/runs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	runID := strings.TrimSpace(parts[0])
	if runID == "" {
		r.notFound(w)
		return
	}
	switch {
	case len(parts) == 1:
		r.handleRunByID(w, req, runID)
	case len(parts) == 2 && parts[1] == "events":
		r.handleRunEvents(w, req, runID)
	case len(parts) == 2 && parts[1] == "snapshot":
		r.handleRunSnapshot(w, req, runID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleRunByID(w http.ResponseWriter, req *http.Request, runID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	run, err := r.runs.Get(req.Context(), runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.notFound(w)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (r *Router) handleRunEvents(w http.ResponseWriter, req *http.Request, runID string) {
	switch req.Method {
	case http.MethodGet:
		key := rateLimitKeyIP(req)
		decision := r.limiter.Allow(key, rateLimitRead, rateWindowDefault)
		r.applyRateHeaders(w, rateLimitRead, decision)
		if !decision.allowed {
			r.recordRateLimitHit("/runs/:id/events", rateMetricKey(key))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		limit, offset := pagination(req)
		list, err := r.events.List(req.Context(), runID, limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		if !r.verifyEmitterToken(w, req) {
			return
		}
		key := "emitter:" + runID
		decision := r.limiter.Allow(key, rateLimitIngest, rateWindowDefault)
		r.applyRateHeaders(w, rateLimitIngest, decision)
		if !decision.allowed {
			r.recordRateLimitHit("/runs/:id/events", "emitter")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		var event domain.RunEvent
		if err := json.NewDecoder(req.Body).Decode(&event); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		event.RunID = runID
		stored, err := r.events.Append(req.Context(), event)
		if err != nil {
			switch {
			case errors.Is(err, events.ErrRunIDRequired), errors.Is(err, events.ErrKindRequired):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}
		r.recordEventIngested(string(stored.Kind))
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "stored", "event_id": stored.EventID})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleRunSnapshot(w http.ResponseWriter, req *http.Request, runID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	snap, err := r.snapshots.Snapshot(req.Context(), runID)
	if err != nil {
		var metaErr *snapshot.MalformedMetadataError
		switch {
		case errors.Is(err, repository.ErrNotFound):
			r.notFound(w)
		case errors.Is(err, snapshot.ErrBadTimestamp), errors.As(err, &metaErr):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (r *Router) handleRunStreamWS(w http.ResponseWriter, req *http.Request) {
	runID := strings.TrimSpace(req.URL.Query().Get("run_id"))
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id query parameter required")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.events.Hub().Register(runID, client)
	go func() {
		defer func() {
			r.events.Hub().Unregister(runID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleRunStreamSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	runID := strings.TrimSpace(req.URL.Query().Get("run_id"))
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id query parameter required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.events.Hub().Register(runID, client)
	defer func() {
		r.events.Hub().Unregister(runID, client)
		client.Close()
	}()

	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, status)
}

// audit wraps a handler with request logging and metrics.
func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
		r.recordRequestMetrics(req.Method, route, status, duration)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

// verifyEmitterToken ensures ingest requests include the configured secret.
func (r *Router) verifyEmitterToken(w http.ResponseWriter, req *http.Request) bool {
	expected := r.emitterToken
	if expected == "" {
		r.logger.Error("emitter token not configured", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "emitter authentication misconfigured")
		return false
	}
	token := strings.TrimSpace(req.Header.Get("X-Emitter-Token"))
	if token == "" {
		token = strings.TrimSpace(req.URL.Query().Get("emitter_token"))
	}
	if len(token) != len(expected) || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		r.logger.Warn("emitter token mismatch", "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "invalid emitter token")
		return false
	}
	return true
}

func pagination(req *http.Request) (int, int) {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
