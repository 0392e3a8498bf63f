package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/davmor83/labrig-core/internal/auth"
)

// WebSocket ticket parameters. Tickets are single-use and short-lived:
// browsers cannot set headers on WebSocket dials, so the client obtains a
// ticket over the authenticated REST API and presents it as a query
// parameter when connecting.
const (
	ticketTTL   = 60 * time.Second
	ticketBytes = 32
)

// wsTicketEntry records the identity a ticket was issued to.
type wsTicketEntry struct {
	userID    string
	stationID string
	role      auth.Role
	expiresAt time.Time
}

// ticketStore holds outstanding WebSocket tickets.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]wsTicketEntry
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]wsTicketEntry)}
}

// issue creates a single-use ticket for the given identity.
func (ts *ticketStore) issue(entry wsTicketEntry) (string, error) {
	ticket, err := generateTicket()
	if err != nil {
		return "", err
	}
	entry.expiresAt = time.Now().Add(ticketTTL)

	ts.mu.Lock()
	ts.tickets[ticket] = entry
	ts.mu.Unlock()
	return ticket, nil
}

// redeem consumes a ticket. Each ticket works exactly once.
func (ts *ticketStore) redeem(ticket string) (wsTicketEntry, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tickets[ticket]
	if !ok {
		return wsTicketEntry{}, false
	}
	delete(ts.tickets, ticket)
	if time.Now().After(entry.expiresAt) {
		return wsTicketEntry{}, false
	}
	return entry, true
}

// cleanExpired removes tickets past their TTL.
func (ts *ticketStore) cleanExpired() {
	now := time.Now()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for ticket, entry := range ts.tickets {
		if now.After(entry.expiresAt) {
			delete(ts.tickets, ticket)
		}
	}
}

// generateTicket creates a cryptographically random ticket string.
func generateTicket() (string, error) {
	b := make([]byte, ticketBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating ticket: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// validateTicket consumes a WebSocket ticket and returns the identity it
// was issued to.
func (s *Server) validateTicket(ticket string) (wsTicketEntry, bool) {
	return s.tickets.redeem(ticket)
}

// cleanTicketsLoop periodically removes expired tickets until ctx is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickets.cleanExpired()
		}
	}
}

// ─── Login / Refresh / Logout ────────────────────────────────────────────────

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DeviceInfo string `json:"device_info,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// loginResponse is returned by /auth/login and /auth/refresh.
type loginResponse struct {
	AccessToken  string     `json:"access_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int        `json:"expires_in"`
	RefreshToken string     `json:"refresh_token"`
	User         *auth.User `json:"user"`
}

// handleLogin authenticates a user by credentials and issues an access token
// plus a refresh token starting a new token family.
//
// POST /api/v1/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeValidationError(w, "username and password are required")
		return
	}

	user, err := s.userRepo.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			// Same response as a wrong password so usernames cannot be probed.
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.logger.Error("login lookup failed", "error", err)
		writeInternalError(w, "login failed")
		return
	}
	if !user.IsActive {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	match, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	resp, err := s.issueTokens(r.Context(), user, req.DeviceInfo)
	if err != nil {
		s.logger.Error("issuing tokens failed", "error", err, "user_id", user.ID)
		writeInternalError(w, "failed to issue tokens")
		return
	}

	s.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusOK, resp)
}

// issueTokens creates an access token and a refresh token in a new family.
func (s *Server) issueTokens(ctx context.Context, user *auth.User, deviceInfo string) (*loginResponse, error) {
	access, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, s.secCfg.JWT.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	raw, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	token := &auth.RefreshToken{
		UserID:     user.ID,
		TokenHash:  auth.HashToken(raw),
		DeviceInfo: deviceInfo,
		ExpiresAt:  time.Now().Add(time.Duration(s.secCfg.JWT.RefreshTokenTTL) * time.Minute),
	}
	if err := s.tokenRepo.Create(ctx, token); err != nil {
		return nil, err
	}

	return &loginResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    s.secCfg.JWT.AccessTokenTTL * 60,
		RefreshToken: raw,
		User:         user,
	}, nil
}

// handleRefresh exchanges a valid refresh token for a new token pair.
//
// Refresh tokens rotate on every use. Presenting an already-rotated token is
// treated as theft: the entire token family is revoked and the caller must
// log in again.
//
// POST /api/v1/auth/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeValidationError(w, "refresh_token is required")
		return
	}

	token, err := s.tokenRepo.GetByTokenHash(r.Context(), auth.HashToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, auth.ErrTokenInvalid) {
			writeUnauthorized(w, "invalid refresh token")
			return
		}
		s.logger.Error("refresh lookup failed", "error", err)
		writeInternalError(w, "refresh failed")
		return
	}

	if token.Revoked {
		// Reuse of a rotated token means it leaked somewhere. Kill the family.
		if err := s.tokenRepo.RevokeFamily(r.Context(), token.FamilyID); err != nil {
			s.logger.Error("revoking token family failed", "error", err, "family_id", token.FamilyID)
		}
		s.logger.Warn("refresh token reuse detected",
			"user_id", token.UserID,
			"family_id", token.FamilyID,
		)
		writeUnauthorized(w, "invalid refresh token")
		return
	}
	if time.Now().After(token.ExpiresAt) {
		writeUnauthorized(w, "refresh token expired")
		return
	}

	user, err := s.userRepo.GetByID(r.Context(), token.UserID)
	if err != nil || !user.IsActive {
		writeUnauthorized(w, "invalid refresh token")
		return
	}

	raw, err := auth.GenerateRefreshToken()
	if err != nil {
		s.logger.Error("generating refresh token failed", "error", err)
		writeInternalError(w, "failed to issue tokens")
		return
	}
	next := &auth.RefreshToken{
		UserID:     user.ID,
		FamilyID:   token.FamilyID,
		TokenHash:  auth.HashToken(raw),
		DeviceInfo: token.DeviceInfo,
		ExpiresAt:  time.Now().Add(time.Duration(s.secCfg.JWT.RefreshTokenTTL) * time.Minute),
	}
	if err := s.tokenRepo.RotateRefreshToken(r.Context(), token.ID, next); err != nil {
		s.logger.Error("rotating refresh token failed", "error", err, "token_id", token.ID)
		writeInternalError(w, "failed to issue tokens")
		return
	}

	access, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, s.secCfg.JWT.AccessTokenTTL)
	if err != nil {
		s.logger.Error("signing access token failed", "error", err)
		writeInternalError(w, "failed to issue tokens")
		return
	}

	writeJSON(w, http.StatusOK, &loginResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    s.secCfg.JWT.AccessTokenTTL * 60,
		RefreshToken: raw,
		User:         user,
	})
}

// handleLogout revokes the caller's refresh tokens.
//
// With a refresh_token in the body only that token's family is revoked;
// without one, every session for the user is revoked. Stations hold no
// refresh tokens so the call is a no-op for them.
//
// POST /api/v1/auth/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}
	if claims.Role == auth.RoleStation {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var req logoutRequest
	//nolint:errcheck // empty body is fine, falls through to revoke-all
	json.NewDecoder(r.Body).Decode(&req)

	if req.RefreshToken != "" {
		token, err := s.tokenRepo.GetByTokenHash(r.Context(), auth.HashToken(req.RefreshToken))
		if err == nil && token.UserID == claims.Subject {
			if err := s.tokenRepo.RevokeFamily(r.Context(), token.FamilyID); err != nil {
				s.logger.Error("revoking token family failed", "error", err)
				writeInternalError(w, "failed to log out")
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	if err := s.tokenRepo.RevokeAllForUser(r.Context(), claims.Subject); err != nil {
		s.logger.Error("revoking user tokens failed", "error", err, "user_id", claims.Subject)
		writeInternalError(w, "failed to log out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Identity ────────────────────────────────────────────────────────────────

// meResponse describes the authenticated caller.
type meResponse struct {
	Type        string         `json:"type"` // "user" or "station"
	User        *auth.User     `json:"user,omitempty"`
	Station     *auth.Station  `json:"station,omitempty"`
	Instruments []meInstrument `json:"instruments"`
	Permissions []string       `json:"permissions"`
}

// meInstrument is one instrument visible to the caller.
type meInstrument struct {
	ID           string `json:"id"`
	Family       string `json:"family"`
	Online       bool   `json:"online"`
	Simulated    bool   `json:"simulated"`
	CanConfigure bool   `json:"can_configure"`
}

// handleMe returns the caller's identity, visible instruments, and permissions.
//
// GET /api/v1/auth/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	scope, err := s.instrumentScope(r)
	if err != nil {
		s.logger.Error("resolving instrument scope failed", "error", err)
		writeInternalError(w, "failed to resolve instrument access")
		return
	}

	instruments := []meInstrument{}
	for _, info := range s.rig.GetAllInstruments() {
		if !scope.CanAccessInstrument(info.ID) {
			continue
		}
		instruments = append(instruments, meInstrument{
			ID:           info.ID,
			Family:       info.Family,
			Online:       info.Online,
			Simulated:    info.Simulated,
			CanConfigure: scope.CanConfigureInstrument(info.ID),
		})
	}

	if station := stationFromContext(r.Context()); station != nil {
		writeJSON(w, http.StatusOK, meResponse{
			Type:        "station",
			Station:     station,
			Instruments: instruments,
			Permissions: permissionStrings(auth.StationPermissions()),
		})
		return
	}

	user, err := s.userRepo.GetByID(r.Context(), claims.Subject)
	if err != nil {
		writeUnauthorized(w, "user no longer exists")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		Type:        "user",
		User:        user,
		Instruments: instruments,
		Permissions: permissionStrings(auth.PermissionsForRole(user.Role)),
	})
}

// permissionStrings converts permissions to plain strings for JSON output.
func permissionStrings(perms []auth.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// handleWSTicket issues a single-use WebSocket ticket for the caller.
//
// POST /api/v1/auth/ws-ticket
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	entry := wsTicketEntry{role: claims.Role}
	if station := stationFromContext(r.Context()); station != nil {
		entry.stationID = station.ID
	} else {
		entry.userID = claims.Subject
	}

	ticket, err := s.tickets.issue(entry)
	if err != nil {
		s.logger.Error("generating websocket ticket failed", "error", err)
		writeInternalError(w, "failed to generate ticket")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}
