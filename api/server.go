// Package api is the HTTP surface. It ingests requests, calls the
// engine, and serializes responses; no cost or policy logic lives here.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/honeybadger-technologies/finopsguard/core/engine"
	"github.com/honeybadger-technologies/finopsguard/core/policy"
	"github.com/honeybadger-technologies/finopsguard/core/store"
	apperrors "github.com/honeybadger-technologies/finopsguard/internal/errors"
)

// StatusClientClosedRequest is the nginx convention for a request the
// caller abandoned before a response was written.
const StatusClientClosedRequest = 499

// Server routes HTTP requests to the engine.
type Server struct {
	engine  *engine.Engine
	mux     *http.ServeMux
	log     *zap.Logger
	version string
}

// Options carries the optional server knobs.
type Options struct {
	Version        string
	MetricsEnabled bool
	MetricsPath    string
}

// NewServer builds the router around an engine.
func NewServer(eng *engine.Engine, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		engine:  eng,
		mux:     http.NewServeMux(),
		log:     log,
		version: opts.Version,
	}
	s.registerRoutes(opts)
	return s
}

func (s *Server) registerRoutes(opts Options) {
	s.mux.HandleFunc("POST /api/v1/checks", s.handleCheck)
	s.mux.HandleFunc("POST /api/v1/policies/evaluate", s.handleEvaluatePolicy)

	s.mux.HandleFunc("GET /api/v1/analyses", s.handleListAnalyses)
	s.mux.HandleFunc("GET /api/v1/analyses/{request_id}", s.handleGetAnalysis)

	s.mux.HandleFunc("GET /api/v1/policies", s.handleListPolicies)
	s.mux.HandleFunc("POST /api/v1/policies", s.handleCreatePolicy)
	s.mux.HandleFunc("GET /api/v1/policies/{id}", s.handleGetPolicy)
	s.mux.HandleFunc("DELETE /api/v1/policies/{id}", s.handleDeletePolicy)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /version", s.handleVersion)

	if opts.MetricsEnabled {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.mux.Handle("GET "+path, promhttp.Handler())
	}
}

// handleCheck handles POST /api/v1/checks.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req engine.CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid JSON body", err))
		return
	}

	resp, err := s.engine.CheckCostImpact(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, resp, http.StatusOK)
}

// handleEvaluatePolicy handles POST /api/v1/policies/evaluate.
func (s *Server) handleEvaluatePolicy(w http.ResponseWriter, r *http.Request) {
	var req engine.EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid JSON body", err))
		return
	}

	eval, err := s.engine.EvaluatePolicy(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, eval, http.StatusOK)
}

// handleListAnalyses handles GET /api/v1/analyses. Supported query
// parameters: limit, cursor, since, until (RFC 3339).
func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	q := store.ListQuery{Cursor: r.URL.Query().Get("cursor")}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, apperrors.Newf(apperrors.KindInvalidRequest, "invalid limit: %s", raw))
			return
		}
		q.Limit = limit
	}
	for name, dst := range map[string]**time.Time{"since": &q.Since, "until": &q.Until} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, apperrors.Newf(apperrors.KindInvalidRequest, "invalid %s timestamp: %s", name, raw))
			return
		}
		*dst = &ts
	}

	page, err := s.engine.ListRecentAnalyses(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, page, http.StatusOK)
}

// handleGetAnalysis handles GET /api/v1/analyses/{request_id}.
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.GetAnalysis(r.Context(), r.PathValue("request_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, rec, http.StatusOK)
}

// handleListPolicies handles GET /api/v1/policies.
func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies := s.engine.ListPolicies()
	s.writeJSON(w, map[string]interface{}{
		"policies": policies,
		"count":    len(policies),
	}, http.StatusOK)
}

// handleCreatePolicy handles POST /api/v1/policies.
func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var pol policy.Policy
	if err := json.NewDecoder(r.Body).Decode(&pol); err != nil {
		s.writeError(w, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid JSON body", err))
		return
	}

	created, err := s.engine.CreatePolicy(r.Context(), &pol)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, created, http.StatusCreated)
}

// handleGetPolicy handles GET /api/v1/policies/{id}.
func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	pol, err := s.engine.GetPolicy(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, pol, http.StatusOK)
}

// handleDeletePolicy handles DELETE /api/v1/policies/{id}.
func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeletePolicy(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Healthy(r.Context()); err != nil {
		s.writeJSON(w, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		}, http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, map[string]string{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}

// handleVersion handles GET /version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{
		"version":     s.version,
		"api_version": "v1",
	}, http.StatusOK)
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)
	status := statusForKind(kind)

	message := err.Error()
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("kind", string(kind)), zap.Error(err))
	}

	s.writeJSON(w, map[string]interface{}{
		"error": map[string]string{
			"code":    string(kind),
			"message": message,
		},
	}, status)
}

// statusForKind maps caller-visible error kinds to HTTP statuses.
func statusForKind(k apperrors.Kind) int {
	switch k {
	case apperrors.KindInvalidRequest, apperrors.KindInvalidPayloadEncoding, apperrors.KindParse:
		return http.StatusBadRequest
	case apperrors.KindPolicyNotFound, apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindPolicyExists:
		return http.StatusConflict
	case apperrors.KindPricingUnavailable:
		return http.StatusBadGateway
	case apperrors.KindCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
