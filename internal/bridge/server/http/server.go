package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/routing"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/log"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/options"
)

// Source provides the data served by the diagnostics API.
type Source interface {
	// Ready returns nil once the bridge can serve traffic.
	Ready() error
	Vehicles() []fleet.Status
	Vehicle(serial string) (fleet.Status, bool)
	Routes() []routing.Mapping
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
	source  Source
}

// NewServer builds the diagnostics server. metrics is mounted on /metrics.
func NewServer(opts *options.HttpOptions, source Source, metrics http.Handler) *Server {
	s := &Server{options: opts, source: source}

	r := mux.NewRouter()

	// Basic Liveness Probe
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/vehicles", s.listVehicles).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{serial}", s.getVehicle).Methods(http.MethodGet)
	api.HandleFunc("/routes", s.listRoutes).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: opts.Timeout,
	}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

func (s *Server) Start(ctx context.Context) error {
	log.Info("Starting HTTP Server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if err := s.source.Ready(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) listVehicles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.source.Vehicles())
}

func (s *Server) getVehicle(w http.ResponseWriter, r *http.Request) {
	serial := mux.Vars(r)["serial"]
	st, ok := s.source.Vehicle(serial)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "vehicle " + serial + " not found"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) listRoutes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.source.Routes())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "Failed to write response")
	}
}
