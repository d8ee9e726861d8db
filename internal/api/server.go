// Package api provides the HTTP API for driving the contact simulation.
// /api/login and /api/logout manage the site session; every /api/v1 route
// requires that session when a site password is configured.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/talgya/brushsim/internal/engine"
	"github.com/talgya/brushsim/internal/persistence"
)

const maxSSEConns = 4

// Server serves the simulation over HTTP.
type Server struct {
	Sim         *engine.Simulation
	Eng         *engine.Engine
	DB          *persistence.DB // nil disables the run archive routes
	Port        int
	AuthDigest  string // SHA-256 hex of the site password. Empty = open access.
	CORSOrigins []string

	LowThreshold  float64 // dose at or below which a cell counts as low contact
	Normalization float64 // dose at the top of the heat ramp

	// Login attempts per client IP. Nil uses 10 per minute.
	LoginLimiter *RateLimiter

	// Active SSE connection count (atomic).
	sseConns int32
	srv      *http.Server
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	if s.LoginLimiter == nil {
		s.LoginLimiter = NewRateLimiter(10, time.Minute)
	}

	v1 := http.NewServeMux()
	v1.HandleFunc("GET /api/v1/status", s.handleStatus)
	v1.HandleFunc("GET /api/v1/params", s.handleGetParams)
	v1.HandleFunc("POST /api/v1/params", s.handleSetParams)
	v1.HandleFunc("GET /api/v1/nodules", s.handleNodules)
	v1.HandleFunc("POST /api/v1/nodules/toggle", s.handleToggleNodule)
	v1.HandleFunc("POST /api/v1/nodules/clear", s.handleClearNodules)
	v1.HandleFunc("POST /api/v1/start", s.handleStart)
	v1.HandleFunc("POST /api/v1/stop", s.handleStop)
	v1.HandleFunc("POST /api/v1/clear", s.handleClear)
	v1.HandleFunc("POST /api/v1/reset", s.handleReset)
	v1.HandleFunc("GET /api/v1/speed", s.handleSpeed)
	v1.HandleFunc("POST /api/v1/speed", s.handleSpeed)
	v1.HandleFunc("GET /api/v1/grid", s.handleGrid)
	v1.HandleFunc("GET /api/v1/heatmap.png", s.handleHeatmap)
	v1.HandleFunc("GET /api/v1/coverage", s.handleCoverage)
	v1.HandleFunc("GET /api/v1/profile", s.handleProfile)
	v1.HandleFunc("GET /api/v1/gaps", s.handleGaps)
	v1.HandleFunc("GET /api/v1/events", s.handleEvents)
	v1.HandleFunc("GET /api/v1/export", s.handleExport)
	v1.HandleFunc("GET /api/v1/runs", s.handleRuns)
	v1.HandleFunc("GET /api/v1/runs/{id}", s.handleRun)
	v1.HandleFunc("GET /api/v1/runs/{id}/events", s.handleRunEvents)
	v1.HandleFunc("GET /api/v1/stream", s.handleStream)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", RateLimitMiddleware(s.LoginLimiter, s.handleLogin))
	mux.HandleFunc("/api/logout", s.handleLogout)
	mux.Handle("/api/v1/", s.requireSession(v1))

	return corsMiddleware(s.CORSOrigins, mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "auth", s.AuthDigest != "", "archive", s.DB != nil)
	if s.AuthDigest == "" {
		slog.Warn("no site password configured, API is open")
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the listener, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.LoginLimiter != nil {
		s.LoginLimiter.Close()
	}
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		allowedOrigins[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Connection limit.
	current := atomic.AddInt32(&s.sseConns, 1)
	if current > maxSSEConns {
		atomic.AddInt32(&s.sseConns, -1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.sseConns, -1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, history, ch := s.Sim.SubscribeWithHistory(50)
	defer s.Sim.Unsubscribe(subID)

	// Catch-up with the latest events.
	for _, e := range history {
		writeSSEEvent(w, e)
	}
	flusher.Flush()

	slog.Info("SSE client connected", "sub_id", subID)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeSSEEvent(w, e)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeSSEEvent writes a single event in SSE format.
func writeSSEEvent(w http.ResponseWriter, e engine.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}
