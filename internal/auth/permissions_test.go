package auth

import "testing"

func TestHasPermission_Owner(t *testing.T) {
	// Owner should have all permissions
	allPerms := []Permission{
		PermInstrumentRead, PermInstrumentOperate, PermInstrumentConfigure,
		PermArchiveRead, PermArchiveManage,
		PermStationManage,
		PermUserManage, PermUserManageAll,
		PermSystemAdmin, PermSystemDangerous,
	}

	for _, perm := range allPerms {
		if !HasPermission(RoleOwner, perm) {
			t.Errorf("owner should have %s", perm)
		}
	}
}

func TestHasPermission_Admin(t *testing.T) {
	// Admin should have most permissions but not dangerous/manage-all
	should := []Permission{
		PermInstrumentRead, PermInstrumentOperate, PermInstrumentConfigure,
		PermArchiveRead, PermArchiveManage,
		PermStationManage,
		PermUserManage, PermSystemAdmin,
	}
	shouldNot := []Permission{
		PermUserManageAll, PermSystemDangerous,
	}

	for _, perm := range should {
		if !HasPermission(RoleAdmin, perm) {
			t.Errorf("admin should have %s", perm)
		}
	}
	for _, perm := range shouldNot {
		if HasPermission(RoleAdmin, perm) {
			t.Errorf("admin should NOT have %s", perm)
		}
	}
}

func TestHasPermission_Operator(t *testing.T) {
	// Operator should have basic instrument + archive read permissions only
	should := []Permission{
		PermInstrumentRead, PermInstrumentOperate, PermInstrumentConfigure,
		PermArchiveRead,
	}
	shouldNot := []Permission{
		PermArchiveManage, PermStationManage,
		PermUserManage, PermUserManageAll,
		PermSystemAdmin, PermSystemDangerous,
	}

	for _, perm := range should {
		if !HasPermission(RoleOperator, perm) {
			t.Errorf("operator should have %s", perm)
		}
	}
	for _, perm := range shouldNot {
		if HasPermission(RoleOperator, perm) {
			t.Errorf("operator should NOT have %s", perm)
		}
	}
}

func TestHasPermission_InvalidRole(t *testing.T) {
	if HasPermission(Role("nonexistent"), PermInstrumentRead) {
		t.Error("unknown role should have no permissions")
	}
}

func TestHasStationPermission(t *testing.T) {
	should := []Permission{PermInstrumentRead, PermInstrumentOperate, PermArchiveRead}
	shouldNot := []Permission{
		PermInstrumentConfigure, PermArchiveManage,
		PermStationManage,
		PermUserManage, PermSystemAdmin, PermSystemDangerous,
	}

	for _, perm := range should {
		if !HasStationPermission(perm) {
			t.Errorf("station should have %s", perm)
		}
	}
	for _, perm := range shouldNot {
		if HasStationPermission(perm) {
			t.Errorf("station should NOT have %s", perm)
		}
	}
}

func TestPermissionsForRole(t *testing.T) {
	perms := PermissionsForRole(RoleAdmin)
	if perms == nil {
		t.Fatal("PermissionsForRole(admin) should not return nil")
	}
	if len(perms) == 0 {
		t.Error("PermissionsForRole(admin) should return permissions")
	}

	// Should return a copy, not the original slice
	perms[0] = "modified"
	original := PermissionsForRole(RoleAdmin)
	if original[0] == "modified" {
		t.Error("PermissionsForRole should return a copy, not the original")
	}
}

func TestPermissionsForRole_Unknown(t *testing.T) {
	perms := PermissionsForRole(Role("unknown"))
	if perms != nil {
		t.Error("PermissionsForRole(unknown) should return nil")
	}
}

func TestIsInstrumentScoped(t *testing.T) {
	if !IsInstrumentScoped(RoleOperator) {
		t.Error("operator role should be instrument-scoped")
	}
	if IsInstrumentScoped(RoleAdmin) {
		t.Error("admin role should NOT be instrument-scoped")
	}
	if IsInstrumentScoped(RoleOwner) {
		t.Error("owner role should NOT be instrument-scoped")
	}
}

func TestIsValidUserRole(t *testing.T) {
	if !IsValidUserRole(RoleOperator) {
		t.Error("operator should be a valid user role")
	}
	if !IsValidUserRole(RoleAdmin) {
		t.Error("admin should be a valid user role")
	}
	if !IsValidUserRole(RoleOwner) {
		t.Error("owner should be a valid user role")
	}
	if IsValidUserRole(RoleStation) {
		t.Error("station should NOT be a valid user role")
	}
	if IsValidUserRole(Role("guest")) {
		t.Error("guest should NOT be a valid user role")
	}
}
