package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermInstrumentRead      Permission = "instrument:read"
	PermInstrumentOperate   Permission = "instrument:operate"
	PermInstrumentConfigure Permission = "instrument:configure"
	PermArchiveRead         Permission = "archive:read"
	PermArchiveManage       Permission = "archive:manage"
	PermStationManage       Permission = "station:manage"
	PermUserManage          Permission = "user:manage"
	PermUserManageAll       Permission = "user:manage:all"
	PermSystemAdmin         Permission = "system:admin"
	PermSystemDangerous     Permission = "system:dangerous"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
// Station permissions are handled separately via instrument scoping.
var rolePermissions = map[Role][]Permission{
	RoleOperator: {
		PermInstrumentRead,
		PermInstrumentOperate,
		PermInstrumentConfigure, // instrument-scoped: only where can_configure=1
		PermArchiveRead,
	},
	RoleAdmin: {
		PermInstrumentRead,
		PermInstrumentOperate,
		PermInstrumentConfigure,
		PermArchiveRead,
		PermArchiveManage,
		PermStationManage,
		PermUserManage,
		PermSystemAdmin,
	},
	RoleOwner: {
		PermInstrumentRead,
		PermInstrumentOperate,
		PermInstrumentConfigure,
		PermArchiveRead,
		PermArchiveManage,
		PermStationManage,
		PermUserManage,
		PermUserManageAll,
		PermSystemAdmin,
		PermSystemDangerous,
	},
}

// stationPermissions are the permissions available to station device identities.
// All station permissions are instrument-scoped via station_instrument_access.
var stationPermissions = []Permission{
	PermInstrumentRead,
	PermInstrumentOperate,
	PermArchiveRead,
}

// HasPermission returns true if the given role has the specified permission.
// For the station role, use HasStationPermission instead.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// HasStationPermission returns true if stations have the specified permission.
func HasStationPermission(perm Permission) bool {
	for _, p := range stationPermissions {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}

// StationPermissions returns the fixed permission set granted to station
// identities.
func StationPermissions() []Permission {
	result := make([]Permission, len(stationPermissions))
	copy(result, stationPermissions)
	return result
}

// IsInstrumentScoped returns true if the role's permissions are subject to
// instrument scoping. Only the operator role and station identity are scoped.
func IsInstrumentScoped(role Role) bool {
	return role == RoleOperator
}
