package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/gpib-control/gpib-control-server/internal/gpib"
)

// HandleConnectInstrument opens a session. Handshake failures are reported
// in the message, not as an HTTP error.
func (s *RESTServer) HandleConnectInstrument(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.loadInstrument(w, r)
	if !ok {
		return
	}

	message := "Connection failed"
	if s.manager.ConnectInstrument(r.Context(), inst) {
		message = "Connected successfully"
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"message": message})
}

// HandleDisconnectInstrument closes a session
func (s *RESTServer) HandleDisconnectInstrument(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.loadInstrument(w, r)
	if !ok {
		return
	}

	message := "Disconnection failed"
	if s.manager.DisconnectInstrument(r.Context(), inst) {
		message = "Disconnected successfully"
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"message": message})
}

// HandleMeasure takes a reading and stores a copy of it
func (s *RESTServer) HandleMeasure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	inst, ok := s.loadInstrument(w, r)
	if !ok {
		return
	}

	meas, err := s.manager.TakeMeasurement(ctx, inst)
	if err != nil {
		s.respondGPIBError(w, err)
		return
	}

	stored := *meas
	if err := s.store.SaveMeasurement(ctx, &stored); err != nil {
		log.Error().
			Err(err).
			Int64("instrument_id", inst.ID).
			Msg("Failed to store measurement")
	}

	s.respondJSON(w, http.StatusOK, &stored)
}

// HandleInstrumentStatus reports whether the instrument has a live session
func (s *RESTServer) HandleInstrumentStatus(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.loadInstrument(w, r)
	if !ok {
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"instrument_id":    inst.ID,
		"connected":        s.manager.IsConnected(inst.ID),
		"last_measurement": s.manager.LastMeasurement(inst.ID),
	})
}

// HandleSendCommand writes a raw command to the instrument
func (s *RESTServer) HandleSendCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command" validate:"required,max=1024"`
	}

	inst, ok := s.loadInstrument(w, r)
	if !ok {
		return
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.manager.SendCommand(r.Context(), inst, req.Command)
	if err != nil {
		s.respondGPIBError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"response": resp})
}

// HandleQuery writes a query to the instrument and returns its answer
func (s *RESTServer) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query" validate:"required,max=1024"`
	}

	inst, ok := s.loadInstrument(w, r)
	if !ok {
		return
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.manager.Query(r.Context(), inst, req.Query)
	if err != nil {
		s.respondGPIBError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"response": resp})
}

// HandleListMeasurements lists stored readings of an instrument
func (s *RESTServer) HandleListMeasurements(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.loadInstrument(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r)

	measurements, total, err := s.store.ListMeasurements(r.Context(), inst.ID, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"measurements": measurements,
		"total":        total,
	})
}

// respondGPIBError maps instrument errors to HTTP statuses
func (s *RESTServer) respondGPIBError(w http.ResponseWriter, err error) {
	if errors.Is(err, gpib.ErrNotConnected) {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	s.respondError(w, http.StatusInternalServerError, err.Error())
}
