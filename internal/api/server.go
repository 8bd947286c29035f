package api

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/emberops/ember/internal/alert"
	"github.com/emberops/ember/internal/log"
	"github.com/emberops/ember/internal/manager"
	"github.com/emberops/ember/internal/provider"
	"github.com/emberops/ember/internal/report"
	"github.com/emberops/ember/internal/slo"
	"github.com/emberops/ember/internal/storage"
	"github.com/emberops/ember/internal/telemetry"
)

// Server is the HTTP API server.
type Server struct {
	manager       *manager.Manager
	providers     *provider.Registry
	logger        log.Logger
	defaultPeriod report.Period
	server        *http.Server
}

// Config wires a Server.
type Config struct {
	Addr          string
	Manager       *manager.Manager
	Providers     *provider.Registry
	Logger        log.Logger
	Telemetry     *telemetry.Recorder
	DefaultPeriod report.Period
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	s := &Server{
		manager:       cfg.Manager,
		providers:     cfg.Providers,
		logger:        cfg.Logger,
		defaultPeriod: cfg.DefaultPeriod,
	}
	if s.logger == nil {
		s.logger = log.Noop
	}
	if s.defaultPeriod == "" {
		s.defaultPeriod = report.PeriodWeek
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /v1/slos", s.handleSLOList)
	mux.HandleFunc("POST /v1/slos", s.handleSLOCreate)
	mux.HandleFunc("GET /v1/slos/{id}", s.handleSLOGet)
	mux.HandleFunc("PUT /v1/slos/{id}", s.handleSLOUpdate)
	mux.HandleFunc("DELETE /v1/slos/{id}", s.handleSLODelete)
	mux.HandleFunc("GET /v1/slos/{id}/state", s.handleState)
	mux.HandleFunc("GET /v1/slos/{id}/report", s.handleReport)

	mux.HandleFunc("GET /v1/summary", s.handleSummary)

	mux.HandleFunc("GET /v1/alerts", s.handleAlertList)
	mux.HandleFunc("POST /v1/alerts/{id}/acknowledge", s.handleAlertAcknowledge)
	mux.HandleFunc("POST /v1/alerts/{id}/resolve", s.handleAlertResolve)

	if cfg.Telemetry != nil {
		mux.Handle("GET /metrics", cfg.Telemetry.Handler())
	}

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.loggingMiddleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Infof("starting API server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infof("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the routing for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	var reasons []string

	loaded := 0
	defs, err := s.manager.ListSLOs(storage.DefinitionFilter{})
	if err != nil {
		reasons = append(reasons, fmt.Sprintf("storage unavailable: %v", err))
	} else {
		loaded = len(defs)
	}

	var sources []string
	if s.providers != nil {
		for _, src := range s.providers.Sources() {
			sources = append(sources, string(src))
		}
		sort.Strings(sources)
		if len(sources) == 0 {
			reasons = append(reasons, "no metric providers registered")
		}
	}

	ready := len(reasons) == 0
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, ReadyResponse{
		Ready:      ready,
		SLOsLoaded: loaded,
		Sources:    sources,
		Reasons:    reasons,
	})
}

func (s *Server) handleSLOList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := storage.DefinitionFilter{
		Service: query.Get("service"),
		Team:    query.Get("team"),
	}
	if v := query.Get("enabled"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "enabled must be a boolean")
			return
		}
		filter.Enabled = &enabled
	}

	defs, err := s.manager.ListSLOs(filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, defs)
}

func (s *Server) handleSLOCreate(w http.ResponseWriter, r *http.Request) {
	var def slo.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	created, err := s.manager.CreateSLO(def)
	if err != nil {
		var vErr *slo.ValidationError
		if goerrors.As(err, &vErr) {
			respondError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleSLOGet(w http.ResponseWriter, r *http.Request) {
	def, err := s.manager.GetSLO(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if def == nil {
		respondError(w, http.StatusNotFound, "SLO not found")
		return
	}
	respondJSON(w, http.StatusOK, def)
}

func (s *Server) handleSLOUpdate(w http.ResponseWriter, r *http.Request) {
	var def slo.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	def.ID = r.PathValue("id")

	updated, err := s.manager.UpdateSLO(def)
	if err != nil {
		var vErr *slo.ValidationError
		if goerrors.As(err, &vErr) {
			respondError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if updated == nil {
		respondError(w, http.StatusNotFound, "SLO not found")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleSLODelete(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.manager.DeleteSLO(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "SLO not found")
		return
	}
	respondJSON(w, http.StatusOK, OKResponse{OK: true})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := s.manager.GetState(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if state == nil {
		respondError(w, http.StatusNotFound, "no state for SLO")
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	period := s.defaultPeriod
	if v := query.Get("period"); v != "" {
		period = report.Period(v)
	}

	var custom *report.Range
	if startStr, endStr := query.Get("start"), query.Get("end"); startStr != "" || endStr != "" {
		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "start must be RFC3339")
			return
		}
		end, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "end must be RFC3339")
			return
		}
		custom = &report.Range{Start: start, End: end}
	}

	rep, err := s.manager.GenerateReport(r.PathValue("id"), period, custom)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if rep == nil {
		respondError(w, http.StatusNotFound, "no history for period")
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.manager.GetSummary()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAlertList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := storage.AlertFilter{
		SLOID: query.Get("sloId"),
	}
	if v := query.Get("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "resolved must be a boolean")
			return
		}
		filter.Resolved = &resolved
	}
	if v := query.Get("severity"); v != "" {
		filter.Severity = alert.Severity(v)
	}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	alerts, err := s.manager.ListAlerts(filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleAlertAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req AcknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if req.By == "" {
		respondError(w, http.StatusBadRequest, "by is required")
		return
	}

	ok, err := s.manager.AcknowledgeAlert(r.PathValue("id"), req.By)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "alert not found or already acknowledged")
		return
	}
	respondJSON(w, http.StatusOK, OKResponse{OK: true})
}

func (s *Server) handleAlertResolve(w http.ResponseWriter, r *http.Request) {
	ok, err := s.manager.ResolveAlert(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "alert not found or already resolved")
		return
	}
	respondJSON(w, http.StatusOK, OKResponse{OK: true})
}

// Helper functions.

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debugf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
