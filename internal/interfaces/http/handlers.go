package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/propsignal/crosscheck/internal/domain"
	"github.com/propsignal/crosscheck/internal/engine"
)

// validateRequest is the POST body for one operational validation: per-source
// records keyed by source identifier, in the order consensus ties should
// break.
type validateRequest struct {
	Sources []struct {
		Source string        `json:"source"`
		Record domain.Record `json:"record"`
	} `json:"sources"`
}

type validateResponse struct {
	EnhancedData domain.Record                 `json:"enhanced_data"`
	Report       *domain.CrossValidationReport `json:"report,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.orch.HealthCheck()
	code := http.StatusOK
	if h.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"health":   s.orch.HealthCheck(),
		"counters": s.service.Metrics(),
	}
	if s.hub != nil {
		status["ws_clients"] = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind := vars["kind"]
	if kind != domain.EntityPlayer && kind != domain.EntityGame {
		writeError(w, http.StatusBadRequest, "entity kind must be player or game")
		return
	}
	entityID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "entity id must be an integer")
		return
	}

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Sources) == 0 {
		writeError(w, http.StatusBadRequest, "at least one source is required")
		return
	}

	sources := make([]engine.SourceRecord, len(req.Sources))
	for i, src := range req.Sources {
		sources[i] = engine.SourceRecord{
			Source: domain.DataSource(src.Source),
			Record: src.Record,
		}
	}

	start := time.Now()
	enhanced, report, err := s.service.ValidateAndEnhance(r.Context(), kind, entityID, sources)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	s.history.Record(r.Context(), report, time.Since(start))

	writeJSON(w, http.StatusOK, validateResponse{EnhancedData: enhanced, Report: report})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "validation history store not configured")
		return
	}

	vars := mux.Vars(r)
	entityID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "entity id must be an integer")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	rows, err := s.history.RecentByEntity(r.Context(), vars["kind"], entityID, limit)
	if err != nil {
		log.Error().Err(err).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "validation history store not configured")
		return
	}

	since := 24 * time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			since = d
		}
	}

	trends, err := s.history.QualityTrends(r.Context(), since)
	if err != nil {
		log.Error().Err(err).Msg("trends query failed")
		writeError(w, http.StatusInternalServerError, "trends query failed")
		return
	}
	writeJSON(w, http.StatusOK, trends)
}

// statusForError maps whole-call validation errors to HTTP codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrConcurrencyLimitExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrValidationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrNoSourcesAvailable),
		errors.Is(err, domain.ErrAllValidationsFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
