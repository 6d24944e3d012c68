package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/nimbuslab/crewbase/internal/common/cnst"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleManagementRequiresPermission(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.signup("plain@example.com")

	w := e.do(http.MethodGet, "/api/roles", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodPost, "/api/roles", token, map[string]string{"name": "Auditor"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRoleLifecycle(t *testing.T) {
	e := newTestEnv(t)
	admin, token := e.signup("admin@example.com")
	e.grantRole(admin.ID, "admin")

	w := e.do(http.MethodPost, "/api/roles", token, map[string]string{
		"name":        "Support Agent",
		"description": "read-only support access",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	roleID := jsonField(w, "id").Uint()
	assert.Equal(t, "support-agent", jsonField(w, "slug").String())

	w = e.do(http.MethodPost, "/api/roles", token, map[string]string{"name": "Support Agent"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(http.MethodPut, fmt.Sprintf("/api/roles/%d", roleID), token, map[string]any{
		"name": "Support Lead",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "support-lead", jsonField(w, "slug").String())

	w = e.do(http.MethodDelete, fmt.Sprintf("/api/roles/%d", roleID), token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSystemRolesAreProtected(t *testing.T) {
	e := newTestEnv(t)
	admin, token := e.signup("admin@example.com")
	e.grantRole(admin.ID, "admin")

	role, err := e.db.GetRoleBySlug(context.Background(), "admin")
	require.NoError(t, err)

	w := e.do(http.MethodPut, fmt.Sprintf("/api/roles/%d", role.ID), token, map[string]any{
		"isActive": false,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodDelete, fmt.Sprintf("/api/roles/%d", role.ID), token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGrantAndRevokePermission(t *testing.T) {
	e := newTestEnv(t)
	admin, token := e.signup("admin@example.com")
	e.grantRole(admin.ID, "admin")

	w := e.do(http.MethodPost, "/api/roles", token, map[string]string{"name": "Auditor"})
	require.Equal(t, http.StatusCreated, w.Code)
	roleID := jsonField(w, "id").Uint()

	perm, err := e.db.GetPermissionByName(context.Background(), cnst.PermRolesRead)
	require.NoError(t, err)

	w = e.do(http.MethodPost, fmt.Sprintf("/api/roles/%d/permissions", roleID), token,
		map[string]uint{"permissionId": perm.ID})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	// granting twice conflicts
	w = e.do(http.MethodPost, fmt.Sprintf("/api/roles/%d/permissions", roleID), token,
		map[string]uint{"permissionId": perm.ID})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(http.MethodGet, fmt.Sprintf("/api/roles/%d/permissions", roleID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, jsonField(w, "@this").Array(), 1)
	assert.Equal(t, cnst.PermRolesRead, jsonField(w, "0.name").String())

	w = e.do(http.MethodDelete, fmt.Sprintf("/api/roles/%d/permissions/%d", roleID, perm.ID), token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(http.MethodGet, fmt.Sprintf("/api/roles/%d/permissions", roleID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, jsonField(w, "@this").Array())
}

func TestGrantPermissionTakesEffectImmediately(t *testing.T) {
	e := newTestEnv(t)
	admin, adminToken := e.signup("admin@example.com")
	e.grantRole(admin.ID, "admin")
	target, targetToken := e.signup("auditor@example.com")

	w := e.do(http.MethodPost, "/api/roles", adminToken, map[string]string{"name": "Auditor"})
	require.Equal(t, http.StatusCreated, w.Code)
	roleID := jsonField(w, "id").Uint()

	w = e.do(http.MethodPost, "/api/roles/assignments", adminToken,
		map[string]uint{"userId": target.ID, "roleId": uint(roleID)})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	// prime the cache with the empty permission set
	w = e.do(http.MethodGet, "/api/roles", targetToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	perm, err := e.db.GetPermissionByName(context.Background(), cnst.PermRolesRead)
	require.NoError(t, err)
	w = e.do(http.MethodPost, fmt.Sprintf("/api/roles/%d/permissions", roleID), adminToken,
		map[string]uint{"permissionId": perm.ID})
	require.Equal(t, http.StatusNoContent, w.Code)

	// every holder of the role sees the grant on the next request
	w = e.do(http.MethodGet, "/api/roles", targetToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodDelete, fmt.Sprintf("/api/roles/%d/permissions/%d", roleID, perm.ID), adminToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(http.MethodGet, "/api/roles", targetToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAssignRoleTakesEffectImmediately(t *testing.T) {
	e := newTestEnv(t)
	admin, adminToken := e.signup("admin@example.com")
	e.grantRole(admin.ID, "admin")
	target, targetToken := e.signup("member@example.com")

	w := e.do(http.MethodGet, "/api/roles", targetToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	role, err := e.db.GetRoleBySlug(context.Background(), "admin")
	require.NoError(t, err)

	w = e.do(http.MethodPost, "/api/roles/assignments", adminToken,
		map[string]uint{"userId": target.ID, "roleId": role.ID})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	// cache was invalidated, the new role answers on the next request
	w = e.do(http.MethodGet, "/api/roles", targetToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodDelete, "/api/roles/assignments", adminToken,
		map[string]uint{"userId": target.ID, "roleId": role.ID})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(http.MethodGet, "/api/roles", targetToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPromoteSuperadmin(t *testing.T) {
	e := newTestEnv(t)
	root, rootToken := e.signup("root@example.com")
	e.makeSuperadmin(root.ID)
	target, targetToken := e.signup("next@example.com")

	// only a superadmin may promote
	w := e.do(http.MethodPost, fmt.Sprintf("/api/users/%d/superadmin", root.ID), targetToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodPost, fmt.Sprintf("/api/users/%d/superadmin", target.ID), rootToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	// the promoted user bypasses permission checks
	w = e.do(http.MethodGet, "/api/roles", targetToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodPost, "/api/users/9999/superadmin", rootToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckPermission(t *testing.T) {
	e := newTestEnv(t)
	admin, adminToken := e.signup("admin@example.com")
	e.grantRole(admin.ID, "admin")
	_, memberToken := e.signup("member@example.com")

	w := e.do(http.MethodPost, "/api/permissions/check", adminToken,
		map[string]any{"permission": cnst.PermRolesUpdate})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, jsonField(w, "allowed").Bool())

	w = e.do(http.MethodPost, "/api/permissions/check", memberToken,
		map[string]any{"permission": cnst.PermRolesUpdate})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, jsonField(w, "allowed").Bool())

	// team scope: a non-member is simply not allowed
	teamID := e.createTeamID(adminToken, "Acme")
	w = e.do(http.MethodPost, "/api/permissions/check", memberToken,
		map[string]any{"permission": cnst.PermTeamsUpdate, "teamId": teamID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, jsonField(w, "allowed").Bool())

	// owner override answers true without an explicit grant
	w = e.do(http.MethodPost, "/api/permissions/check", adminToken,
		map[string]any{"permission": cnst.PermTeamsUpdate, "teamId": teamID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, jsonField(w, "allowed").Bool())
}

func TestListUsersDirectory(t *testing.T) {
	e := newTestEnv(t)
	admin, adminToken := e.signup("admin@example.com")
	e.grantRole(admin.ID, "admin")
	_, memberToken := e.signup("member@example.com")

	w := e.do(http.MethodGet, "/api/users", memberToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodGet, "/api/users", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, jsonField(w, "@this").Array(), 2)
	assert.NotContains(t, w.Body.String(), "passwordHash")
}

func TestListPermissionsCatalog(t *testing.T) {
	e := newTestEnv(t)
	admin, token := e.signup("admin@example.com")
	e.grantRole(admin.ID, "admin")

	w := e.do(http.MethodGet, "/api/permissions", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, jsonField(w, "@this").Array())
}
