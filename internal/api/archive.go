package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/davmor83/labrig-core/internal/archive"
)

const hoursPerDay = 24

// handleListMeasurements queries archived measurements.
//
// Query parameters:
//   - instrument_id: filter by instrument (required for scoped callers)
//   - function: filter by measurement function
//   - since, until: time bounds, RFC3339 or Unix seconds
//   - limit: max results (default 50, max 500)
//   - offset: pagination offset
//
// GET /api/v1/archive/measurements
func (s *Server) handleListMeasurements(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "archive is not enabled")
		return
	}

	var filter archive.MeasurementFilter
	filter.InstrumentID = r.URL.Query().Get("instrument_id")
	filter.Function = r.URL.Query().Get("function")
	if !s.parseRangeParams(w, r, &filter.Since, &filter.Until, &filter.Limit, &filter.Offset) {
		return
	}
	if !s.authorizeArchiveScope(w, r, filter.InstrumentID) {
		return
	}

	list, err := s.archive.ListMeasurements(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing measurements failed", "error", err)
		writeInternalError(w, "failed to query archive")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleListAttributeWrites queries the archived setup-change trail.
//
// Query parameters mirror /archive/measurements, with path in place of
// function.
//
// GET /api/v1/archive/attribute-writes
func (s *Server) handleListAttributeWrites(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "archive is not enabled")
		return
	}

	var filter archive.AttributeWriteFilter
	filter.InstrumentID = r.URL.Query().Get("instrument_id")
	filter.Path = r.URL.Query().Get("path")
	if !s.parseRangeParams(w, r, &filter.Since, &filter.Until, &filter.Limit, &filter.Offset) {
		return
	}
	if !s.authorizeArchiveScope(w, r, filter.InstrumentID) {
		return
	}

	list, err := s.archive.ListAttributeWrites(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing attribute writes failed", "error", err)
		writeInternalError(w, "failed to query archive")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleArchiveStats returns archive record counts and time bounds.
//
// GET /api/v1/archive/stats
func (s *Server) handleArchiveStats(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "archive is not enabled")
		return
	}

	stats, err := s.archive.Stats(r.Context())
	if err != nil {
		s.logger.Error("archive stats failed", "error", err)
		writeInternalError(w, "failed to query archive")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// pruneRequest sets the retention horizon for a manual prune.
type pruneRequest struct {
	OlderThanDays int `json:"older_than_days"`
}

// handlePruneArchive deletes archive records older than the given horizon.
//
// POST /api/v1/archive/prune
func (s *Server) handlePruneArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "archive is not enabled")
		return
	}

	var req pruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.OlderThanDays <= 0 {
		writeValidationError(w, "older_than_days must be positive")
		return
	}

	removed, err := s.archive.Prune(r.Context(), time.Duration(req.OlderThanDays)*hoursPerDay*time.Hour)
	if err != nil {
		s.logger.Error("archive prune failed", "error", err)
		writeInternalError(w, "failed to prune archive")
		return
	}

	claims := claimsFromContext(r.Context())
	s.logger.Info("archive pruned",
		"older_than_days", req.OlderThanDays,
		"removed", removed,
		"by", claims.Subject,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"removed":         removed,
		"older_than_days": req.OlderThanDays,
	})
}

// authorizeArchiveScope restricts scoped callers to per-instrument queries
// over instruments they can access. Returns false after writing the error
// response.
func (s *Server) authorizeArchiveScope(w http.ResponseWriter, r *http.Request, instrumentID string) bool {
	scope, err := s.instrumentScope(r)
	if err != nil {
		s.logger.Error("resolving instrument scope failed", "error", err)
		writeInternalError(w, "failed to resolve instrument access")
		return false
	}
	if scope == nil {
		return true
	}
	if instrumentID == "" {
		writeValidationError(w, "instrument_id is required")
		return false
	}
	if !scope.CanAccessInstrument(instrumentID) {
		writeNotFound(w, "instrument not found: "+instrumentID)
		return false
	}
	return true
}

// parseRangeParams fills the shared since/until/limit/offset filter fields
// from query parameters. Returns false after writing the error response.
func (s *Server) parseRangeParams(w http.ResponseWriter, r *http.Request, since, until *time.Time, limit, offset *int) bool {
	var err error
	if *since, err = parseTimeParam(r, "since"); err != nil {
		writeBadRequest(w, err.Error())
		return false
	}
	if *until, err = parseTimeParam(r, "until"); err != nil {
		writeBadRequest(w, err.Error())
		return false
	}
	if *limit, err = parseIntParam(r, "limit"); err != nil {
		writeBadRequest(w, err.Error())
		return false
	}
	if *offset, err = parseIntParam(r, "offset"); err != nil {
		writeBadRequest(w, err.Error())
		return false
	}
	return true
}

// parseTimeParam parses a time query parameter as RFC3339 or Unix seconds
// (fractional allowed). Returns the zero time when the parameter is absent.
func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		sec, frac := math.Modf(secs)
		return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid %s %q: want RFC3339 or Unix seconds", name, raw)
}

// parseIntParam parses a non-negative integer query parameter, returning
// zero when absent.
func parseIntParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}
