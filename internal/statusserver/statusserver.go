// Package statusserver exposes a minimal local HTTP surface for the daemon:
// /healthz for liveness and /report for the latest UpdateReport, built on
// the teacher's httputil JSON handler helpers and go-chi/chi routing.
package statusserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/R3E-Network/gguf-harvester/infrastructure/httputil"
	"github.com/R3E-Network/gguf-harvester/infrastructure/logging"
	"github.com/R3E-Network/gguf-harvester/internal/model"
)

// Server serves /healthz and /report over HTTP.
type Server struct {
	mu     sync.RWMutex
	latest *model.UpdateReport
	log    *logging.Logger
	start  time.Time
	router chi.Router
}

// New constructs a status Server.
func New(log *logging.Logger) *Server {
	s := &Server{log: log, start: time.Now().UTC()}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", httputil.HandleNoBody[healthResponse](log, s.healthz))
	r.Get("/report", httputil.HandleNoBody[*model.UpdateReport](log, s.report))
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetLatestReport publishes the report the /report endpoint serves.
func (s *Server) SetLatestReport(r *model.UpdateReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = r
}

type healthResponse struct {
	Status    string  `json:"status"`
	UptimeSec float64 `json:"uptimeSeconds"`
}

func (s *Server) healthz(ctx context.Context) (healthResponse, error) {
	return healthResponse{Status: "ok", UptimeSec: time.Since(s.start).Seconds()}, nil
}

func (s *Server) report(ctx context.Context) (*model.UpdateReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, &httputil.NotFoundError{Message: "no sync run has completed yet"}
	}
	return s.latest, nil
}
