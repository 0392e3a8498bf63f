package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/davmor83/labrig-core/internal/auth"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	// ctxKeyRequestID is the context key for the request ID.
	ctxKeyRequestID contextKey = "request_id"
	// ctxKeyClaims is the context key for the authenticated caller's claims.
	ctxKeyClaims contextKey = "claims"
	// ctxKeyStation is the context key for the authenticated station, if any.
	ctxKeyStation contextKey = "station"
)

// requestIDMiddleware generates a unique request ID for each request.
// If the client sends an X-Request-ID header, it is used; otherwise one is generated.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs each HTTP request with method, path, status, and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	})
}

// recoveryMiddleware catches panics in handlers and returns a 500 response.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered in HTTP handler",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", r.Context().Value(ctxKeyRequestID),
				)
				writeInternalError(w, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles Cross-Origin Resource Sharing headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", joinOrDefault(s.cfg.CORS.AllowedMethods, "GET, POST, PUT, PATCH, DELETE, OPTIONS"))
			w.Header().Set("Access-Control-Allow-Headers", joinOrDefault(s.cfg.CORS.AllowedHeaders, "Authorization, Content-Type, X-Request-ID, X-Station-Token"))
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		// Handle preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// bodySizeLimitMiddleware limits the size of incoming request bodies to prevent
// denial-of-service attacks via oversized payloads.
func (s *Server) bodySizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware authenticates every request on the protected route group.
//
// Two credential forms are accepted:
//   - "X-Station-Token: <token>" — a raw station token. The station is looked
//     up by token hash and the request carries synthesised claims with the
//     station role.
//   - "Authorization: Bearer <jwt>" — an access token from /auth/login,
//     validated by signature and expiry alone (no database hit).
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := r.Header.Get("X-Station-Token"); token != "" {
			s.authenticateStation(w, r, next, token)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			writeUnauthorized(w, "missing credentials")
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeUnauthorized(w, "malformed Authorization header")
			return
		}

		claims, err := auth.ParseToken(raw, s.secCfg.JWT.Secret)
		if err != nil {
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticateStation resolves a raw station token and attaches synthesised
// claims. The claims subject is the station ID so downstream handlers can
// treat users and stations uniformly.
func (s *Server) authenticateStation(w http.ResponseWriter, r *http.Request, next http.Handler, token string) {
	if s.stationRepo == nil {
		writeUnauthorized(w, "station authentication not available")
		return
	}

	station, err := s.stationRepo.GetByTokenHash(r.Context(), auth.HashToken(token))
	if err != nil {
		writeUnauthorized(w, "invalid station token")
		return
	}
	if !station.IsActive {
		writeUnauthorized(w, "station is deactivated")
		return
	}

	// Best effort; the request proceeds even if the timestamp write fails.
	//nolint:errcheck
	s.stationRepo.UpdateLastSeen(r.Context(), station.ID)

	claims := &auth.CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: station.ID},
		Role:             auth.RoleStation,
	}
	ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
	ctx = context.WithValue(ctx, ctxKeyStation, station)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// requirePermission gates a route group on a single permission. Station
// callers are checked against the fixed station permission set, user callers
// against their role.
func (s *Server) requirePermission(perm auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFromContext(r.Context())
			if claims == nil {
				writeUnauthorized(w, "authentication required")
				return
			}

			var allowed bool
			if claims.Role == auth.RoleStation {
				allowed = auth.HasStationPermission(perm)
			} else {
				allowed = auth.HasPermission(claims.Role, perm)
			}
			if !allowed {
				writeForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// claimsFromContext returns the authenticated caller's claims, or nil when
// the request did not pass through authMiddleware.
func claimsFromContext(ctx context.Context) *auth.CustomClaims {
	claims, _ := ctx.Value(ctxKeyClaims).(*auth.CustomClaims)
	return claims
}

// stationFromContext returns the authenticated station, or nil for user requests.
func stationFromContext(ctx context.Context) *auth.Station {
	station, _ := ctx.Value(ctxKeyStation).(*auth.Station)
	return station
}

// instrumentScope resolves which instruments the caller may see.
//
// Returns nil for unrestricted callers (admin, owner). Operators get the
// scope stored in their access grants; stations get their assigned
// instrument list with no configure rights.
func (s *Server) instrumentScope(r *http.Request) (*auth.InstrumentScope, error) {
	if station := stationFromContext(r.Context()); station != nil {
		ids, err := s.stationRepo.GetInstrumentIDs(r.Context(), station.ID)
		if err != nil {
			return nil, err
		}
		if ids == nil {
			ids = []string{}
		}
		return &auth.InstrumentScope{InstrumentIDs: ids}, nil
	}

	claims := claimsFromContext(r.Context())
	if claims == nil || !auth.IsInstrumentScoped(claims.Role) {
		return nil, nil
	}
	if s.accessRepo == nil {
		return nil, nil
	}
	return s.accessRepo.ResolveInstrumentScope(r.Context(), claims.Subject)
}

// authorizeInstrument checks that the caller may touch the given instrument,
// writing the error response itself when not. Out-of-scope instruments
// respond 404 so their existence is not revealed; in-scope instruments the
// caller cannot configure respond 403.
func (s *Server) authorizeInstrument(w http.ResponseWriter, r *http.Request, instrumentID string, configure bool) bool {
	scope, err := s.instrumentScope(r)
	if err != nil {
		s.logger.Error("resolving instrument scope", "error", err)
		writeInternalError(w, "failed to resolve instrument access")
		return false
	}

	if !scope.CanAccessInstrument(instrumentID) {
		writeNotFound(w, "instrument not found: "+instrumentID)
		return false
	}
	if configure && !scope.CanConfigureInstrument(instrumentID) {
		writeForbidden(w, "no configure access to this instrument")
		return false
	}
	return true
}

// isAllowedOrigin checks if the origin is in the allowed list.
// An empty list allows all origins (dev mode).
func (s *Server) isAllowedOrigin(origin string) bool {
	if len(s.cfg.CORS.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.CORS.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// joinOrDefault joins a string slice with ", " or returns the default if empty.
func joinOrDefault(values []string, defaultVal string) string {
	if len(values) == 0 {
		return defaultVal
	}
	result := values[0]
	for _, v := range values[1:] {
		result += ", " + v
	}
	return result
}
