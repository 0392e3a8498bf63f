package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/davmor83/labrig-core/internal/auth"
)

// ─── Request/Response Types ────────────────────────────────────────

type createStationRequest struct {
	Name          string   `json:"name"`
	InstrumentIDs []string `json:"instruments"`
}

type createStationResponse struct {
	Station      *auth.Station `json:"station"`
	StationToken string        `json:"station_token"` // shown once, never again
}

type updateStationRequest struct {
	Name *string `json:"name,omitempty"`
}

type setStationInstrumentsRequest struct {
	InstrumentIDs []string `json:"instrument_ids"`
}

// stationTokenBytes is the number of random bytes for station tokens (256-bit).
const stationTokenBytes = 32

// ─── Handlers ──────────────────────────────────────────────────────

// handleListStations returns all registered stations.
func (s *Server) handleListStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.stationRepo.List(r.Context())
	if err != nil {
		s.logger.Error("list stations failed", "error", err)
		writeInternalError(w, "failed to list stations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stations": stations,
		"count":    len(stations),
	})
}

// handleCreateStation registers a new bench station with instrument assignments.
// Returns the station token exactly once — it cannot be retrieved later.
func (s *Server) handleCreateStation(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req createStationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	// Generate station token (256-bit random)
	tokenBytes := make([]byte, stationTokenBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(tokenBytes)
	rawToken := hex.EncodeToString(tokenBytes)

	station := &auth.Station{
		Name:      req.Name,
		TokenHash: auth.HashToken(rawToken),
		IsActive:  true,
		CreatedBy: claims.Subject,
	}

	if err := s.stationRepo.Create(r.Context(), station); err != nil {
		s.logger.Error("create station failed", "error", err)
		writeInternalError(w, "failed to create station")
		return
	}

	// Set instrument assignments if provided
	if len(req.InstrumentIDs) > 0 {
		if err := s.stationRepo.SetInstruments(r.Context(), station.ID, req.InstrumentIDs); err != nil {
			s.logger.Error("set station instruments failed", "error", err)
			// Station was created but assignments failed — still return the token
		}
	}

	s.logger.Info("station registered", "station_id", station.ID, "name", station.Name, "instruments", len(req.InstrumentIDs), "created_by", claims.Subject)

	writeJSON(w, http.StatusCreated, createStationResponse{
		Station:      station,
		StationToken: rawToken,
	})
}

// handleGetStation returns a single station by ID.
func (s *Server) handleGetStation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	station, err := s.stationRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrStationNotFound) {
			writeNotFound(w, "station not found")
			return
		}
		s.logger.Error("get station failed", "error", err)
		writeInternalError(w, "failed to get station")
		return
	}

	// Include instrument assignments
	instrumentIDs, err := s.stationRepo.GetInstrumentIDs(r.Context(), id)
	if err != nil {
		s.logger.Error("get station instruments failed", "error", err)
		writeInternalError(w, "failed to get station instruments")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"station":     station,
		"instruments": instrumentIDs,
	})
}

// handleUpdateStation modifies a station's mutable fields.
func (s *Server) handleUpdateStation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateStationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	station, err := s.stationRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrStationNotFound) {
			writeNotFound(w, "station not found")
			return
		}
		s.logger.Error("get station for update failed", "error", err)
		writeInternalError(w, "failed to update station")
		return
	}

	if req.Name != nil {
		station.Name = *req.Name
	}

	if err := s.stationRepo.UpdateName(r.Context(), id, station.Name); err != nil {
		s.logger.Error("update station failed", "error", err)
		writeInternalError(w, "failed to update station")
		return
	}

	writeJSON(w, http.StatusOK, station)
}

// handleDeleteStation revokes a station (deletes token + instrument assignments).
func (s *Server) handleDeleteStation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := claimsFromContext(r.Context())

	if err := s.stationRepo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrStationNotFound) {
			writeNotFound(w, "station not found")
			return
		}
		s.logger.Error("delete station failed", "error", err)
		writeInternalError(w, "failed to delete station")
		return
	}

	s.logger.Info("station revoked", "station_id", id, "deleted_by", claims.Subject)

	w.WriteHeader(http.StatusNoContent)
}

// handleGetStationInstruments returns a station's instrument assignments.
func (s *Server) handleGetStationInstruments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Verify station exists
	if _, err := s.stationRepo.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrStationNotFound) {
			writeNotFound(w, "station not found")
			return
		}
		s.logger.Error("get station for instruments failed", "error", err)
		writeInternalError(w, "failed to get station instruments")
		return
	}

	instrumentIDs, err := s.stationRepo.GetInstrumentIDs(r.Context(), id)
	if err != nil {
		s.logger.Error("get station instruments failed", "error", err)
		writeInternalError(w, "failed to get station instruments")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"instrument_ids": instrumentIDs,
		"count":          len(instrumentIDs),
	})
}

// handleSetStationInstruments replaces all instrument assignments for a station.
func (s *Server) handleSetStationInstruments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := claimsFromContext(r.Context())

	var req setStationInstrumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	// Verify station exists
	if _, err := s.stationRepo.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrStationNotFound) {
			writeNotFound(w, "station not found")
			return
		}
		s.logger.Error("get station for instrument update failed", "error", err)
		writeInternalError(w, "failed to set station instruments")
		return
	}

	if err := s.stationRepo.SetInstruments(r.Context(), id, req.InstrumentIDs); err != nil {
		s.logger.Error("set station instruments failed", "error", err)
		writeInternalError(w, "failed to set station instruments")
		return
	}

	s.logger.Info("station instruments updated", "station_id", id, "instrument_count", len(req.InstrumentIDs), "updated_by", claims.Subject)

	writeJSON(w, http.StatusOK, map[string]any{
		"instrument_ids": req.InstrumentIDs,
		"count":          len(req.InstrumentIDs),
	})
}
