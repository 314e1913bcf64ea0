// Package api pkg/api/server.go
//
// Package api exposes the coordinator over HTTP: device lifecycle, live
// snapshots, health, history and the setup-flow probe.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/DucuSandu/ha-snmp-r1d1/pkg/coordinator"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/history"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/profile"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Historian serves logged readings. Nil disables the history endpoint.
type Historian interface {
	Query(ctx context.Context, device, entity string, since, until time.Time, limit int) ([]history.Reading, error)
}

// Server is the HTTP front end.
type Server struct {
	manager  *coordinator.Manager
	registry *profile.Registry
	hist     Historian
	router   *mux.Router
	srv      *http.Server
}

// NewServer wires the routes. hist may be nil.
func NewServer(manager *coordinator.Manager, registry *profile.Registry, hist Historian) *Server {
	s := &Server{
		manager:  manager,
		registry: registry,
		hist:     hist,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	s.router.HandleFunc("/api/profiles", s.getProfiles).Methods("GET")
	s.router.HandleFunc("/api/setup/test-connection", s.postTestConnection).Methods("POST")
	s.router.HandleFunc("/api/setup/validate", s.postValidate).Methods("POST")
	s.router.HandleFunc("/api/setup/probe", s.postProbe).Methods("POST")

	s.router.HandleFunc("/api/devices", s.getDevices).Methods("GET")
	s.router.HandleFunc("/api/devices", s.postDevice).Methods("POST")
	s.router.HandleFunc("/api/devices/{name}", s.getSnapshot).Methods("GET")
	s.router.HandleFunc("/api/devices/{name}", s.deleteDevice).Methods("DELETE")
	s.router.HandleFunc("/api/devices/{name}/status", s.getStatus).Methods("GET")
	s.router.HandleFunc("/api/devices/{name}/report", s.getReport).Methods("GET")
	s.router.HandleFunc("/api/devices/{name}/write", s.postWrite).Methods("POST")
	s.router.HandleFunc("/api/devices/{name}/history/{entity}", s.getHistory).Methods("GET")
}

// Start serves until ctx is canceled, then drains with a timeout.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Printf("HTTP API listening on %s", addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return s.srv.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) getProfiles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.DeviceTypes())
}

func (s *Server) getDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Devices())
}

func (s *Server) postDevice(w http.ResponseWriter, r *http.Request) {
	var cfg coordinator.DeviceConfig

	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid device config", http.StatusBadRequest)
		return
	}

	if err := s.manager.AddDevice(r.Context(), cfg); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"name": cfg.Name})
}

func (s *Server) deleteDevice(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := s.manager.RemoveDevice(name); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.manager.Snapshot(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.manager.Status(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.manager.Report(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// writeRequest is the body of POST /api/devices/{name}/write. Value is a
// bool for switches and a string for texts.
type writeRequest struct {
	Name  string      `json:"name"`
	Port  int         `json:"port,omitempty"`
	Value interface{} `json:"value"`
}

func (s *Server) postWrite(w http.ResponseWriter, r *http.Request) {
	device := mux.Vars(r)["name"]

	var req writeRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "Invalid write request", http.StatusBadRequest)
		return
	}

	key := coordinator.Key{Name: req.Name, Port: req.Port}

	if err := s.manager.Write(r.Context(), device, key, req.Value); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"entity": key.String(), "result": "confirmed"})
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		http.Error(w, "History is not enabled", http.StatusNotFound)
		return
	}

	vars := mux.Vars(r)
	q := r.URL.Query()

	since, err := parseTime(q.Get("since"))
	if err != nil {
		http.Error(w, "Invalid since parameter", http.StatusBadRequest)
		return
	}

	until, err := parseTime(q.Get("until"))
	if err != nil {
		http.Error(w, "Invalid until parameter", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
	}

	readings, err := s.hist.Query(r.Context(), vars["name"], vars["entity"], since, until, limit)
	if err != nil {
		log.Printf("History query failed: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, readings)
}

func (s *Server) postProbe(w http.ResponseWriter, r *http.Request) {
	cfg, ok := decodeDeviceConfig(w, r)
	if !ok {
		return
	}

	disc, err := s.manager.Probe(r.Context(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, disc)
}

func (s *Server) postTestConnection(w http.ResponseWriter, r *http.Request) {
	cfg, ok := decodeDeviceConfig(w, r)
	if !ok {
		return
	}

	if err := s.manager.TestConnection(r.Context(), cfg); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

func (s *Server) postValidate(w http.ResponseWriter, r *http.Request) {
	cfg, ok := decodeDeviceConfig(w, r)
	if !ok {
		return
	}

	report, err := s.manager.Validate(r.Context(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func decodeDeviceConfig(w http.ResponseWriter, r *http.Request) (coordinator.DeviceConfig, bool) {
	var cfg coordinator.DeviceConfig

	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid device config", http.StatusBadRequest)
		return cfg, false
	}

	return cfg, true
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339, raw)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// writeError maps coordinator errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest

	switch {
	case errors.Is(err, coordinator.ErrDeviceNotFound),
		errors.Is(err, coordinator.ErrUnknownOID),
		errors.Is(err, profile.ErrUnknownDeviceType):
		status = http.StatusNotFound
	case errors.Is(err, coordinator.ErrDeviceExists):
		status = http.StatusConflict
	case errors.Is(err, coordinator.ErrControlsDisabled),
		errors.Is(err, coordinator.ErrNotWritable):
		status = http.StatusForbidden
	case errors.Is(err, coordinator.ErrDeviceUnreachable),
		errors.Is(err, coordinator.ErrValidationAborted),
		errors.Is(err, coordinator.ErrWriteRejected),
		errors.Is(err, coordinator.ErrWriteUnverified):
		status = http.StatusBadGateway
	}

	http.Error(w, err.Error(), status)
}
