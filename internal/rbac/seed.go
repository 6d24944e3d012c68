package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nimbuslab/crewbase/internal/apiserver/database"
	"github.com/nimbuslab/crewbase/internal/common/cnst"
	"go.uber.org/zap"
)

type seedRole struct {
	name        string
	slug        string
	description string
	permissions []string
}

var permissionCatalog = []string{
	cnst.PermRolesRead,
	cnst.PermRolesCreate,
	cnst.PermRolesUpdate,
	cnst.PermRolesDelete,
	cnst.PermUsersRead,
	cnst.PermUsersUpdate,
	cnst.PermTeamsRead,
	cnst.PermTeamsUpdate,
	cnst.PermTeamsDelete,
	cnst.PermMembersAdd,
	cnst.PermMembersRemove,
	cnst.PermMembersUpdate,
	cnst.PermInvitesCreate,
	cnst.PermInvitesCancel,
}

var seedRoles = []seedRole{
	{
		name:        "Admin",
		slug:        cnst.RoleAdmin,
		description: "Full control over teams, members, and invitations",
		permissions: permissionCatalog,
	},
	{
		name:        "Member",
		slug:        cnst.RoleMember,
		description: "Day-to-day collaboration inside a team",
		permissions: []string{
			cnst.PermTeamsRead,
			cnst.PermUsersRead,
			cnst.PermInvitesCreate,
		},
	},
	{
		name:        "Viewer",
		slug:        cnst.RoleViewer,
		description: "Read-only access",
		permissions: []string{
			cnst.PermTeamsRead,
			cnst.PermUsersRead,
		},
	},
}

// Seed creates the permission catalog and the system roles if they do not
// exist yet. It is idempotent and safe to run at every startup.
func Seed(ctx context.Context, db database.Database, logger *zap.Logger) error {
	permIDs := make(map[string]uint, len(permissionCatalog))
	for _, name := range permissionCatalog {
		perm, err := ensurePermission(ctx, db, name)
		if err != nil {
			return fmt.Errorf("seed permission %q: %w", name, err)
		}
		permIDs[name] = perm.ID
	}

	for _, sr := range seedRoles {
		role, created, err := ensureRole(ctx, db, sr)
		if err != nil {
			return fmt.Errorf("seed role %q: %w", sr.slug, err)
		}
		if created {
			logger.Info("created system role", zap.String("slug", sr.slug))
		}
		for _, name := range sr.permissions {
			if err := db.AssignPermissionToRole(ctx, role.ID, permIDs[name]); err != nil &&
				!errors.Is(err, database.ErrDuplicate) {
				return fmt.Errorf("grant %q to %q: %w", name, sr.slug, err)
			}
		}
	}
	return nil
}

func ensurePermission(ctx context.Context, db database.Database, name string) (*database.Permission, error) {
	perm, err := db.GetPermissionByName(ctx, name)
	if err == nil {
		return perm, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	resource, action := splitPermissionName(name)
	perm = &database.Permission{Resource: resource, Action: action, Name: name}
	if err := db.CreatePermission(ctx, perm); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return db.GetPermissionByName(ctx, name)
		}
		return nil, err
	}
	return perm, nil
}

func ensureRole(ctx context.Context, db database.Database, sr seedRole) (*database.Role, bool, error) {
	role, err := db.GetRoleBySlug(ctx, sr.slug)
	if err == nil {
		return role, false, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, false, err
	}

	role = &database.Role{
		Name:        sr.name,
		Slug:        sr.slug,
		Description: sr.description,
		IsSystem:    true,
		IsActive:    true,
	}
	if err := db.CreateRole(ctx, role); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			role, err = db.GetRoleBySlug(ctx, sr.slug)
			return role, false, err
		}
		return nil, false, err
	}
	return role, true, nil
}

// splitPermissionName separates a resource:action name on its first colon,
// so teams:members:add maps to resource "teams", action "members:add".
func splitPermissionName(name string) (string, string) {
	resource, action, found := strings.Cut(name, ":")
	if !found {
		return name, ""
	}
	return resource, action
}
