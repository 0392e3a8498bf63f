package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/davmor83/labrig-core/internal/instrument"
	"github.com/davmor83/labrig-core/internal/rig"
)

// Fetch wait budget bounds. The client picks the wait in max_time_ms; the
// cap keeps a single request from holding a connection past the server's
// write timeout.
const (
	defaultFetchMaxTime = 10 * time.Second
	maxFetchMaxTime     = 60 * time.Second
)

// writeRigError maps rig and driver errors to HTTP responses.
func (s *Server) writeRigError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rig.ErrNotFound),
		errors.Is(err, instrument.ErrUnknownAttribute),
		errors.Is(err, instrument.ErrUnknownCollection):
		writeNotFound(w, err.Error())
	case errors.Is(err, instrument.ErrReadOnlyAttribute),
		errors.Is(err, instrument.ErrValueNotSupported),
		errors.Is(err, instrument.ErrOutOfRange),
		errors.Is(err, instrument.ErrSelectorRange):
		writeValidationError(w, err.Error())
	case errors.Is(err, rig.ErrUnsupported),
		errors.Is(err, instrument.ErrNotInitialized),
		errors.Is(err, instrument.ErrNoAcquisition):
		writeConflict(w, err.Error())
	default:
		s.logger.Error("instrument operation failed", "error", err)
		writeInternalError(w, "instrument operation failed")
	}
}

// ─── Introspection ───────────────────────────────────────────────────────────

// handleListInstruments returns the instruments visible to the caller.
//
// GET /api/v1/instruments?family=load
func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	scope, err := s.instrumentScope(r)
	if err != nil {
		s.logger.Error("resolving instrument scope failed", "error", err)
		writeInternalError(w, "failed to resolve instrument access")
		return
	}

	family := r.URL.Query().Get("family")

	instruments := []rig.Info{}
	for _, info := range s.rig.GetAllInstruments() {
		if !scope.CanAccessInstrument(info.ID) {
			continue
		}
		if family != "" && info.Family != family {
			continue
		}
		instruments = append(instruments, info)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"instruments": instruments,
		"count":       len(instruments),
	})
}

// handleInstrumentStats returns aggregate counts over the caller's visible
// instruments. Unrestricted callers see the whole rig.
//
// GET /api/v1/instruments/stats
func (s *Server) handleInstrumentStats(w http.ResponseWriter, r *http.Request) {
	scope, err := s.instrumentScope(r)
	if err != nil {
		s.logger.Error("resolving instrument scope failed", "error", err)
		writeInternalError(w, "failed to resolve instrument access")
		return
	}
	if scope == nil {
		writeJSON(w, http.StatusOK, s.rig.GetStats())
		return
	}

	stats := rig.Stats{ByFamily: make(map[string]int)}
	for _, info := range s.rig.GetAllInstruments() {
		if !scope.CanAccessInstrument(info.ID) {
			continue
		}
		stats.Instruments++
		stats.ByFamily[info.Family]++
		if info.Simulated {
			stats.Simulated++
		}
		if info.Online {
			stats.Online++
		}
		if info.Acquisition == instrument.AcqAcquiring.String() {
			stats.Acquiring++
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleGetInstrument returns one instrument snapshot.
//
// GET /api/v1/instruments/{id}
func (s *Server) handleGetInstrument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeInstrument(w, r, id, false) {
		return
	}

	info, err := s.rig.GetInstrument(id)
	if err != nil {
		s.writeRigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleListAttributes enumerates the instrument's attribute surface.
//
// GET /api/v1/instruments/{id}/attributes
func (s *Server) handleListAttributes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeInstrument(w, r, id, false) {
		return
	}

	attrs, err := s.rig.DescribeAttributes(id)
	if err != nil {
		s.writeRigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attributes": attrs,
		"count":      len(attrs),
	})
}

// ─── Attribute access ────────────────────────────────────────────────────────

// handleGetAttribute reads one attribute value. The attribute path is the
// rest of the URL after /attributes/, e.g. "current.setpoint" or
// "channels[].name". Indexed attributes take an optional ?index=N query
// parameter; without it the collection's active selection is read.
//
// GET /api/v1/instruments/{id}/attributes/current.setpoint
func (s *Server) handleGetAttribute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeInstrument(w, r, id, false) {
		return
	}

	path := chi.URLParam(r, "*")
	if path == "" {
		writeBadRequest(w, "attribute path is required")
		return
	}

	index, err := parseIndexParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	value, err := s.rig.GetAttribute(id, instrument.Path(path), index)
	if err != nil {
		s.writeRigError(w, err)
		return
	}

	resp := map[string]any{
		"instrument_id": id,
		"path":          path,
		"value":         value,
	}
	if index != nil {
		resp["index"] = *index
	}
	writeJSON(w, http.StatusOK, resp)
}

// setAttributeRequest is the body for attribute writes. Value takes whatever
// JSON form the attribute expects: number, string, or bool. Numeric
// attributes also accept the strings "min" and "max".
type setAttributeRequest struct {
	Value any `json:"value"`
}

// handleSetAttribute writes one attribute value.
//
// PUT /api/v1/instruments/{id}/attributes/current.setpoint
func (s *Server) handleSetAttribute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeInstrument(w, r, id, true) {
		return
	}

	path := chi.URLParam(r, "*")
	if path == "" {
		writeBadRequest(w, "attribute path is required")
		return
	}

	index, err := parseIndexParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req setAttributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeValidationError(w, "value is required")
		return
	}

	if err := s.rig.SetAttribute(r.Context(), id, instrument.Path(path), index, req.Value); err != nil {
		s.writeRigError(w, err)
		return
	}

	resp := map[string]any{
		"instrument_id": id,
		"path":          path,
		"value":         req.Value,
	}
	if index != nil {
		resp["index"] = *index
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseIndexParam parses the optional ?index query parameter.
func parseIndexParam(r *http.Request) (*int, error) {
	raw := r.URL.Query().Get("index")
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid index %q", raw)
	}
	return &n, nil
}

// ─── Measurement operations ──────────────────────────────────────────────────

// measureRequest selects the measurement function.
type measureRequest struct {
	Function string `json:"function"`
}

// handleMeasure performs an immediate measurement and returns the value.
//
// POST /api/v1/instruments/{id}/measure
func (s *Server) handleMeasure(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeInstrument(w, r, id, false) {
		return
	}

	var req measureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Function == "" {
		writeValidationError(w, "function is required")
		return
	}

	value, err := s.rig.Measure(r.Context(), id, req.Function)
	if err != nil {
		s.writeRigError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"instrument_id": id,
		"function":      req.Function,
		"value":         value,
		"taken_at":      time.Now().UTC().Format(time.RFC3339),
	})
}

// handleInitiate starts an acquisition using the initiate/fetch protocol.
//
// POST /api/v1/instruments/{id}/initiate
func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeInstrument(w, r, id, false) {
		return
	}

	if err := s.rig.Initiate(id); err != nil {
		s.writeRigError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"instrument_id": id,
		"acquisition":   "initiated",
	})
}

// fetchRequest selects the measurement function and wait budget for a fetch.
type fetchRequest struct {
	Function  string `json:"function"`
	MaxTimeMS int    `json:"max_time_ms"`
}

// handleFetch retrieves the result of a running acquisition, waiting up to
// max_time_ms for it to complete.
//
// POST /api/v1/instruments/{id}/fetch
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeInstrument(w, r, id, false) {
		return
	}

	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Function == "" {
		writeValidationError(w, "function is required")
		return
	}

	maxTime := time.Duration(req.MaxTimeMS) * time.Millisecond
	if maxTime <= 0 {
		maxTime = defaultFetchMaxTime
	}
	if maxTime > maxFetchMaxTime {
		maxTime = maxFetchMaxTime
	}

	value, err := s.rig.Fetch(r.Context(), id, req.Function, maxTime)
	if err != nil {
		s.writeRigError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"instrument_id": id,
		"function":      req.Function,
		"value":         value,
	})
}

// handleAbort cancels a running acquisition.
//
// POST /api/v1/instruments/{id}/abort
func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeInstrument(w, r, id, false) {
		return
	}

	if err := s.rig.Abort(id); err != nil {
		s.writeRigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instrument_id": id,
		"acquisition":   "aborted",
	})
}

// handleSoftwareTrigger fires the bus trigger on an armed instrument.
//
// POST /api/v1/instruments/{id}/trigger
func (s *Server) handleSoftwareTrigger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeInstrument(w, r, id, false) {
		return
	}

	if err := s.rig.SoftwareTrigger(id); err != nil {
		s.writeRigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instrument_id": id,
		"triggered":     true,
	})
}

// handleSelfTest runs the instrument's self-test routine. A code of 0
// means pass; any other code is instrument-specific.
//
// POST /api/v1/instruments/{id}/self-test
func (s *Server) handleSelfTest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeInstrument(w, r, id, false) {
		return
	}

	code, err := s.rig.SelfTest(id)
	if err != nil {
		s.writeRigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instrument_id": id,
		"code":          code,
		"passed":        code == 0,
	})
}

// ─── Setup management ────────────────────────────────────────────────────────

// handleSaveMemory stores the instrument's current setup in a memory slot.
//
// POST /api/v1/instruments/{id}/memory/{slot}/save
func (s *Server) handleSaveMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeInstrument(w, r, id, true) {
		return
	}

	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		writeBadRequest(w, "invalid memory slot")
		return
	}

	if err := s.rig.SaveToMemory(id, slot); err != nil {
		s.writeRigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instrument_id": id,
		"slot":          slot,
		"saved":         true,
	})
}

// handleRecallMemory restores a setup from a memory slot.
//
// POST /api/v1/instruments/{id}/memory/{slot}/recall
func (s *Server) handleRecallMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeInstrument(w, r, id, true) {
		return
	}

	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		writeBadRequest(w, "invalid memory slot")
		return
	}

	if err := s.rig.RecallFromMemory(id, slot); err != nil {
		s.writeRigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instrument_id": id,
		"slot":          slot,
		"recalled":      true,
	})
}

// handleReset restores the instrument's power-on defaults and drops its
// cached attribute values.
//
// POST /api/v1/instruments/{id}/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeInstrument(w, r, id, true) {
		return
	}

	if err := s.rig.Reset(id); err != nil {
		s.writeRigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instrument_id": id,
		"reset":         true,
	})
}
