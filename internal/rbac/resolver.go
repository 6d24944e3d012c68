// Package rbac resolves role-based permissions for global and team-scoped
// operations.
package rbac

import (
	"context"
	"errors"

	"github.com/nimbuslab/crewbase/internal/apiserver/cache"
	"github.com/nimbuslab/crewbase/internal/apiserver/database"
	"github.com/nimbuslab/crewbase/internal/common/cnst"
	"github.com/nimbuslab/crewbase/internal/common/errorx"
	"go.uber.org/zap"
)

// Resolver answers permission questions against the role store, memoizing
// flattened permission sets in the cache.
type Resolver struct {
	db     database.Database
	cache  cache.PermissionCache
	logger *zap.Logger
}

func NewResolver(db database.Database, permCache cache.PermissionCache, logger *zap.Logger) *Resolver {
	return &Resolver{
		db:     db,
		cache:  permCache,
		logger: logger.Named("rbac"),
	}
}

// IsSuperadmin reports whether the user holds the active superadmin role.
func (r *Resolver) IsSuperadmin(ctx context.Context, userID uint) (bool, error) {
	roles, err := r.db.ListUserRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if role.Slug == cnst.RoleSuperadmin {
			return true, nil
		}
	}
	return false, nil
}

// HasPermission reports whether the user's active global roles grant the
// named permission. Superadmins hold every permission. An unknown
// permission name is simply absent from every set, so it denies.
func (r *Resolver) HasPermission(ctx context.Context, userID uint, permission string) (bool, error) {
	super, err := r.IsSuperadmin(ctx, userID)
	if err != nil {
		return false, err
	}
	if super {
		return true, nil
	}

	names, err := r.permissionNames(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if name == permission {
			return true, nil
		}
	}
	return false, nil
}

// RequirePermission is HasPermission returning errorx.ErrPermissionDenied
// on a negative answer.
func (r *Resolver) RequirePermission(ctx context.Context, userID uint, permission string) error {
	ok, err := r.HasPermission(ctx, userID, permission)
	if err != nil {
		return err
	}
	if !ok {
		return errorx.ErrPermissionDenied
	}
	return nil
}

// RequireTeamMember returns the membership record for the user in the team.
// The team must exist; non-members get errorx.ErrNotTeamMember. Team owners
// are treated as members even without a membership row.
func (r *Resolver) RequireTeamMember(ctx context.Context, userID, teamID uint) (*database.TeamMember, error) {
	team, err := r.db.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, errorx.ErrNotFound
		}
		return nil, err
	}

	member, err := r.db.GetTeamMember(ctx, teamID, userID)
	if err == nil && member.IsActive {
		return member, nil
	}
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	if team.OwnerID == userID {
		return &database.TeamMember{TeamID: teamID, UserID: userID, IsActive: true}, nil
	}

	super, serr := r.IsSuperadmin(ctx, userID)
	if serr != nil {
		return nil, serr
	}
	if super {
		return &database.TeamMember{TeamID: teamID, UserID: userID, IsActive: true}, nil
	}

	return nil, errorx.ErrNotTeamMember
}

// RequireTeamPermission checks a team-scoped permission. The team owner and
// superadmins pass unconditionally; other members pass when their team role
// is active and carries the permission.
func (r *Resolver) RequireTeamPermission(ctx context.Context, userID, teamID uint, permission string) error {
	team, err := r.db.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return errorx.ErrNotFound
		}
		return err
	}
	if team.OwnerID == userID {
		return nil
	}

	super, err := r.IsSuperadmin(ctx, userID)
	if err != nil {
		return err
	}
	if super {
		return nil
	}

	member, err := r.db.GetTeamMember(ctx, teamID, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return errorx.ErrNotTeamMember
		}
		return err
	}
	if !member.IsActive {
		return errorx.ErrNotTeamMember
	}

	// inactive roles contribute nothing, so the names come back empty
	names, err := r.db.GetRolePermissionNames(ctx, member.RoleID)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == permission {
			return nil
		}
	}
	return errorx.ErrPermissionDenied
}

// Invalidate drops the user's memoized permission set. Called after any
// role or permission mutation that touches the user.
func (r *Resolver) Invalidate(ctx context.Context, userID uint) {
	if err := r.cache.Invalidate(ctx, userID); err != nil {
		r.logger.Warn("failed to invalidate permission cache",
			zap.Uint("user_id", userID),
			zap.Error(err))
	}
}

// InvalidateAll drops every memoized permission set. Called after mutations
// to a role itself, where the holders are not known from the request.
func (r *Resolver) InvalidateAll(ctx context.Context) {
	if err := r.cache.InvalidateAll(ctx); err != nil {
		r.logger.Warn("failed to invalidate permission cache", zap.Error(err))
	}
}

func (r *Resolver) permissionNames(ctx context.Context, userID uint) ([]string, error) {
	names, err := r.cache.GetPermissions(ctx, userID)
	if err == nil {
		return names, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		r.logger.Warn("permission cache read failed", zap.Uint("user_id", userID), zap.Error(err))
	}

	names, err = r.db.GetUserPermissionNames(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cerr := r.cache.SetPermissions(ctx, userID, names); cerr != nil {
		r.logger.Warn("permission cache write failed", zap.Uint("user_id", userID), zap.Error(cerr))
	}
	return names, nil
}

// EnsureSuperadminRole returns the superadmin role, creating it on first
// use. The role is marked as a system role and carries no permission rows;
// the resolver bypasses permission checks for its holders.
func (r *Resolver) EnsureSuperadminRole(ctx context.Context) (*database.Role, error) {
	role, err := r.db.GetRoleBySlug(ctx, cnst.RoleSuperadmin)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	role = &database.Role{
		Name:        "Super Admin",
		Slug:        cnst.RoleSuperadmin,
		Description: "Unrestricted access to every resource",
		IsSystem:    true,
		IsActive:    true,
	}
	if err := r.db.CreateRole(ctx, role); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return r.db.GetRoleBySlug(ctx, cnst.RoleSuperadmin)
		}
		return nil, err
	}
	return role, nil
}
