package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gpib-control/gpib-control-server/internal/auth"
	"github.com/gpib-control/gpib-control-server/internal/models"
	"github.com/gpib-control/gpib-control-server/internal/storage"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// ========== Auth handlers ==========

// HandleLogin handles user login
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,max=255"`
		Password string `json:"password" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.config.JWT.Secret == "" {
		s.respondError(w, http.StatusServiceUnavailable, "authentication is not configured")
		return
	}

	// Get user
	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	tokens, err := s.auth.Authenticate(user, req.Password)
	switch {
	case errors.Is(err, auth.ErrInactiveUser):
		s.respondError(w, http.StatusForbidden, "account is disabled")
		return
	case err != nil:
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := s.store.TouchUserLogin(r.Context(), user.ID, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Str("email", user.Email).Msg("Failed to record login")
	}

	s.respondJSON(w, http.StatusOK, tokens)
}

// HandleRefresh handles token refresh
func (s *RESTServer) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Refresh token
	tokens, err := s.auth.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	s.respondJSON(w, http.StatusOK, tokens)
}

// ========== Service handlers ==========

// HandleRoot root handler
func (s *RESTServer) HandleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": s.config.Server.Name,
		"version": s.config.Server.Version,
		"status":  "running",
	})
}

// HandleHealth health check
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	database := "ok"
	if err := s.store.Ping(r.Context()); err != nil {
		log.Warn().Err(err).Msg("Health check database ping failed")
		database = "unavailable"
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":              "healthy",
		"timestamp":           time.Now().UTC(),
		"database":            database,
		"gpib_manager_status": s.manager.Status(),
	})
}

// ========== Helper methods ==========

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// loadInstrument resolves the {id} URL parameter, responding on failure
func (s *RESTServer) loadInstrument(w http.ResponseWriter, r *http.Request) (*models.Instrument, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid instrument id")
		return nil, false
	}

	inst, err := s.store.GetInstrument(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "Instrument not found")
			return nil, false
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}

	return inst, true
}

// pagination reads limit and offset query parameters
func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	return limit, offset
}

// audit records an API change in the event log
func (s *RESTServer) audit(r *http.Request, inst *models.Instrument, code, description string) {
	if s.events == nil {
		return
	}

	details := models.Variables{
		"method": r.Method,
		"path":   r.URL.Path,
	}
	if claims := claimsFrom(r.Context()); claims != nil {
		details["user"] = claims.Email
	}

	id := inst.ID
	s.events.Enqueue(&models.EventLog{
		CreatedAt:    time.Now().UTC(),
		InstrumentID: &id,
		Type:         models.EventTypeAPICall,
		Level:        models.EventLevelInfo,
		Code:         code,
		Description:  description,
		Details:      details,
	})
}
