package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medquiz/keeper/internal/errlog"
	"github.com/medquiz/keeper/internal/infra/kv"
	"github.com/medquiz/keeper/internal/infra/postgres"
)

// Server exposes health, metrics and error-log export endpoints.
type Server struct {
	kv     kv.Store
	db     *postgres.DB // nil when no audit database is configured
	errors *errlog.Log
	server *http.Server
}

// NewServer creates the HTTP server on the given port.
func NewServer(store kv.Store, db *postgres.DB, errors *errlog.Log, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		kv:     store,
		db:     db,
		errors: errors,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/errors/export", s.handleExport)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Errors  int               `json:"bufferedErrors"`
	Checked time.Time         `json:"checkedAt"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "healthy",
		Checks:  map[string]string{},
		Errors:  s.errors.Len(),
		Checked: time.Now().UTC(),
	}

	if err := s.kv.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Checks["kv"] = err.Error()
	} else {
		resp.Checks["kv"] = "ok"
	}
	if s.db != nil {
		if err := s.db.Health(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Checks["database"] = err.Error()
		} else {
			resp.Checks["database"] = "ok"
		}
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.errors.Export(time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
