package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
// Usernames must be 1-64 characters, alphanumeric with dots, hyphens, underscores.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleStation is a shared bench display device identity (not a user
	// account). Scoped to assigned instruments. No login required.
	RoleStation Role = "station"

	// RoleOperator is a lab member with explicit instrument grants.
	// Zero instrument assignments = no access.
	RoleOperator Role = "operator"

	// RoleAdmin has full system control: instruments, archive, users,
	// stations, settings. Lab manager or senior engineer. Bypasses
	// instrument scoping.
	RoleAdmin Role = "admin"

	// RoleOwner has everything admin can do plus factory reset, dangerous
	// database operations, and managing other owners. Emergency-only —
	// credentials belong in a printed recovery pack.
	RoleOwner Role = "owner"
)

// ValidRoles is the set of valid user roles (excludes station — stations are not users).
var ValidRoles = []Role{RoleOperator, RoleAdmin, RoleOwner}

// IsValidUserRole returns true if the role is a valid role for a user account.
func IsValidUserRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User represents an authenticated human account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RefreshToken represents a stored refresh token for session management.
type RefreshToken struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	FamilyID   string    `json:"family_id"`
	TokenHash  string    `json:"-"` // never serialised
	DeviceInfo string    `json:"device_info,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	Revoked    bool      `json:"revoked"`
	CreatedAt  time.Time `json:"created_at"`
}

// Station represents a shared bench display device identity.
type Station struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	TokenHash  string     `json:"-"` // never serialised
	IsActive   bool       `json:"is_active"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedBy  string     `json:"created_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// InstrumentAccess represents a user's access grant to a specific instrument.
type InstrumentAccess struct {
	UserID       string    `json:"user_id"`
	InstrumentID string    `json:"instrument_id"`
	CanConfigure bool      `json:"can_configure"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// StationInstrumentAccess represents a station's access grant to a specific instrument.
type StationInstrumentAccess struct {
	StationID    string    `json:"station_id"`
	InstrumentID string    `json:"instrument_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// InstrumentScope holds the resolved instrument access for a user request context.
// A nil InstrumentScope means unrestricted access (admin/owner).
type InstrumentScope struct {
	// InstrumentIDs is the list of instruments the user can access
	// (read attributes, run measurements).
	InstrumentIDs []string

	// ConfigureInstrumentIDs is the subset of InstrumentIDs where the user
	// can change setup: write attributes, save/recall memory, reset.
	ConfigureInstrumentIDs []string
}

// CanAccessInstrument returns true if the instrument is in the scope's accessible set.
func (is *InstrumentScope) CanAccessInstrument(instrumentID string) bool {
	if is == nil {
		return true // unrestricted
	}
	for _, id := range is.InstrumentIDs {
		if id == instrumentID {
			return true
		}
	}
	return false
}

// CanConfigureInstrument returns true if the user can change the given instrument's setup.
func (is *InstrumentScope) CanConfigureInstrument(instrumentID string) bool {
	if is == nil {
		return true // unrestricted
	}
	for _, id := range is.ConfigureInstrumentIDs {
		if id == instrumentID {
			return true
		}
	}
	return false
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrUsernameExists     = errors.New("username already exists")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenReuse         = errors.New("refresh token reuse detected")
	ErrStationNotFound    = errors.New("station not found")
	ErrStationInactive    = errors.New("station is inactive")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrSelfModification   = errors.New("cannot modify own account in this way")
)
