package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/gpib-control/gpib-control-server/internal/models"
)

type createInstrumentRequest struct {
	Name            string  `json:"name" validate:"required,max=255"`
	Type            string  `json:"type" validate:"required,max=100"`
	GPIBAddress     string  `json:"gpib_address" validate:"required,max=100"`
	Description     *string `json:"description" validate:"max=1000"`
	AutoConnect     bool    `json:"auto_connect"`
	MeasurementType *string `json:"measurement_type" validate:"oneof=DC_VOLTAGE AC_VOLTAGE DC_CURRENT AC_CURRENT RESISTANCE FREQUENCY PERIOD"`
	Range           *string `json:"range" validate:"oneof=AUTO 0.1 1 10 100 1000"`
	Resolution      *string `json:"resolution" validate:"oneof=4.5 5.5 6.5 7.5"`
}

// updateInstrumentRequest carries only the fields present in the body
type updateInstrumentRequest struct {
	Name            *string `json:"name" validate:"min=1,max=255"`
	Type            *string `json:"type" validate:"min=1,max=100"`
	GPIBAddress     *string `json:"gpib_address" validate:"min=1,max=100"`
	Description     *string `json:"description" validate:"max=1000"`
	AutoConnect     *bool   `json:"auto_connect"`
	MeasurementType *string `json:"measurement_type" validate:"oneof=DC_VOLTAGE AC_VOLTAGE DC_CURRENT AC_CURRENT RESISTANCE FREQUENCY PERIOD"`
	Range           *string `json:"range" validate:"oneof=AUTO 0.1 1 10 100 1000"`
	Resolution      *string `json:"resolution" validate:"oneof=4.5 5.5 6.5 7.5"`

	clearDescription bool
}

// apply copies the provided fields onto inst
func (u *updateInstrumentRequest) apply(inst *models.Instrument) {
	if u.Name != nil {
		inst.Name = *u.Name
	}
	if u.Type != nil {
		inst.Type = *u.Type
	}
	if u.GPIBAddress != nil {
		inst.GPIBAddress = *u.GPIBAddress
	}
	if u.Description != nil || u.clearDescription {
		inst.Description = u.Description
	}
	if u.AutoConnect != nil {
		inst.AutoConnect = *u.AutoConnect
	}
	if u.MeasurementType != nil {
		inst.MeasurementType = models.MeasurementType(*u.MeasurementType)
	}
	if u.Range != nil {
		inst.Range = *u.Range
	}
	if u.Resolution != nil {
		inst.Resolution = *u.Resolution
	}
}

// HandleListInstruments lists instruments
func (s *RESTServer) HandleListInstruments(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	instruments, total, err := s.store.ListInstruments(r.Context(), limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	s.respondJSON(w, http.StatusOK, instruments)
}

// HandleCreateInstrument creates an instrument
func (s *RESTServer) HandleCreateInstrument(w http.ResponseWriter, r *http.Request) {
	var req createInstrumentRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	inst := &models.Instrument{
		Name:        req.Name,
		Type:        req.Type,
		GPIBAddress: req.GPIBAddress,
		Description: req.Description,
		AutoConnect: req.AutoConnect,
	}
	if req.MeasurementType != nil {
		inst.MeasurementType = models.MeasurementType(*req.MeasurementType)
	}
	if req.Range != nil {
		inst.Range = *req.Range
	}
	if req.Resolution != nil {
		inst.Resolution = *req.Resolution
	}

	if err := s.store.CreateInstrument(r.Context(), inst); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().
		Int64("instrument_id", inst.ID).
		Str("type", inst.Type).
		Str("address", inst.GPIBAddress).
		Msg("Instrument created")
	s.audit(r, inst, "instrument_created", fmt.Sprintf("Instrument %d created", inst.ID))

	s.respondJSON(w, http.StatusCreated, inst)
}

// HandleGetInstrument gets an instrument
func (s *RESTServer) HandleGetInstrument(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.loadInstrument(w, r)
	if !ok {
		return
	}

	s.respondJSON(w, http.StatusOK, inst)
}

// HandleUpdateInstrument applies a partial update. A live session keeps the
// configuration it was connected with until it is reconnected.
func (s *RESTServer) HandleUpdateInstrument(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.loadInstrument(w, r)
	if !ok {
		return
	}

	req, err := decodeUpdate(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	req.apply(inst)

	if err := s.store.UpdateInstrument(r.Context(), inst); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.audit(r, inst, "instrument_updated", fmt.Sprintf("Instrument %d updated", inst.ID))
	s.respondJSON(w, http.StatusOK, inst)
}

// decodeUpdate decodes a partial update. An explicit null description
// clears it; an absent one leaves it alone.
func decodeUpdate(r *http.Request) (*updateInstrumentRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}

	body, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	req := &updateInstrumentRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, err
	}

	if desc, ok := raw["description"]; ok && bytes.Equal(bytes.TrimSpace(desc), []byte("null")) {
		req.clearDescription = true
	}

	return req, nil
}

// HandleDeleteInstrument disconnects a live session, then removes the
// instrument together with its stored measurements
func (s *RESTServer) HandleDeleteInstrument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	inst, ok := s.loadInstrument(w, r)
	if !ok {
		return
	}

	if s.manager.IsConnected(inst.ID) && !s.manager.DisconnectInstrument(ctx, inst) {
		s.respondError(w, http.StatusInternalServerError, "failed to disconnect instrument")
		return
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Rollback()

	if err := tx.DeleteMeasurements(ctx, inst.ID); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.DeleteInstrument(ctx, inst.ID); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.Commit(); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Int64("instrument_id", inst.ID).Msg("Instrument deleted")
	s.audit(r, inst, "instrument_deleted", fmt.Sprintf("Instrument %d deleted", inst.ID))

	s.respondJSON(w, http.StatusOK, map[string]string{
		"message": "Instrument deleted successfully",
	})
}
