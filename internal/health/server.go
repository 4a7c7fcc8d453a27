// Package health exposes the Prometheus metrics endpoint and a liveness
// probe that reports backing-store connectivity and pool usage.
package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plotbeam/renderauth/internal/config"
	"github.com/plotbeam/renderauth/internal/logging"
	"github.com/plotbeam/renderauth/internal/verify"
)

// Pinger checks backing-store connectivity. Satisfied by *store.Connector.
// Nil is allowed for remote-mode deployments, which have no store.
type Pinger interface {
	Ping(ctx context.Context) error
	Stats() (sql.DBStats, bool)
}

// Server serves /healthz and the metrics path.
type Server struct {
	cfg    config.HealthConfig
	pinger Pinger
	log    *logging.Logger
	server *http.Server
}

// NewServer creates a health server. It does not listen until Start.
func NewServer(cfg config.HealthConfig, pinger Pinger, log *logging.Logger) *Server {
	return &Server{
		cfg:    cfg,
		pinger: pinger,
		log:    log,
	}
}

// Start begins listening in a background goroutine. A listen failure is
// logged, not fatal: metrics are non-critical.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		return nil
	}

	verify.InitMetrics()

	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("health server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the listener.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Addr returns the listen address once Start has run.
func (s *Server) Addr() string {
	if s.server == nil {
		return ""
	}
	return s.server.Addr
}

// healthzResponse is the /healthz body
type healthzResponse struct {
	Status string       `json:"status"`
	Store  *storeHealth `json:"store,omitempty"`
}

type storeHealth struct {
	Reachable bool `json:"reachable"`
	OpenConns int  `json:"open_connections,omitempty"`
	InUse     int  `json:"in_use_connections,omitempty"`
	MaxOpen   int  `json:"max_open_connections,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthzResponse{Status: "ok"}
	code := http.StatusOK

	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		sh := &storeHealth{Reachable: true}
		if err := s.pinger.Ping(ctx); err != nil {
			sh.Reachable = false
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		} else if stats, ok := s.pinger.Stats(); ok {
			sh.OpenConns = stats.OpenConnections
			sh.InUse = stats.InUse
			sh.MaxOpen = stats.MaxOpenConnections
		}
		resp.Store = sh
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
