package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gpib-control/gpib-control-server/internal/models"
	"github.com/gpib-control/gpib-control-server/internal/storage"
)

// HandleListEvents lists events
func (s *RESTServer) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	limit, offset := pagination(r)

	filters := storage.EventLogFilters{}

	// Parse filters
	if instrumentID := query.Get("instrument_id"); instrumentID != "" {
		id, err := strconv.ParseInt(instrumentID, 10, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid instrument_id")
			return
		}
		filters.InstrumentID = &id
	}

	if eventType := query.Get("type"); eventType != "" {
		modelEventType := models.EventType(eventType)
		filters.Type = &modelEventType
	}

	if level := query.Get("level"); level != "" {
		modelEventLevel := models.EventLevel(level)
		filters.Level = &modelEventLevel
	}

	if since := query.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid since, expected RFC3339")
			return
		}
		filters.StartTime = &t
	}

	if until := query.Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid until, expected RFC3339")
			return
		}
		filters.EndTime = &t
	}

	events, total, err := s.store.ListEventLogs(ctx, filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}
