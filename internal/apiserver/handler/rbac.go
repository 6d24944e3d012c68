package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	"github.com/nimbuslab/crewbase/internal/apiserver/database"
	"github.com/nimbuslab/crewbase/internal/common/cnst"
	"github.com/nimbuslab/crewbase/internal/common/dto"
	"github.com/nimbuslab/crewbase/internal/common/errorx"
	"go.uber.org/zap"
)

func pathID(c *gin.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		return 0, errorx.ErrInvalidInput.WithMessage("invalid %s", name)
	}
	return uint(v), nil
}

// ListRoles returns every role, including inactive ones.
func (h *Handler) ListRoles(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if err := h.resolver.RequirePermission(c.Request.Context(), user.ID, cnst.PermRolesRead); err != nil {
		h.respondErr(c, err)
		return
	}

	roles, err := h.db.ListRoles(c.Request.Context())
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, roles)
}

func (h *Handler) CreateRole(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if err := h.resolver.RequirePermission(c.Request.Context(), user.ID, cnst.PermRolesCreate); err != nil {
		h.respondErr(c, err)
		return
	}

	var req dto.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("%s", err.Error()))
		return
	}

	role := &database.Role{
		Name:        req.Name,
		Slug:        slug.Make(req.Name),
		Description: req.Description,
		IsActive:    true,
	}
	if err := h.db.CreateRole(c.Request.Context(), role); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			h.respondErr(c, errorx.ErrConflict.WithMessage("a role with this name already exists"))
			return
		}
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}

func (h *Handler) UpdateRole(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if err := h.resolver.RequirePermission(c.Request.Context(), user.ID, cnst.PermRolesUpdate); err != nil {
		h.respondErr(c, err)
		return
	}

	roleID, err := pathID(c, "id")
	if err != nil {
		h.respondErr(c, err)
		return
	}
	role, err := h.db.GetRoleByID(c.Request.Context(), roleID)
	if err != nil {
		h.respondErr(c, errorx.ErrNotFound)
		return
	}
	if role.IsSystem {
		h.respondErr(c, errorx.ErrPermissionDenied.WithMessage("system roles cannot be modified"))
		return
	}

	var req dto.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("%s", err.Error()))
		return
	}
	if req.Name != nil {
		role.Name = *req.Name
		role.Slug = slug.Make(*req.Name)
	}
	if req.Description != nil {
		role.Description = *req.Description
	}
	if req.IsActive != nil {
		role.IsActive = *req.IsActive
	}
	if err := h.db.UpdateRole(c.Request.Context(), role); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			h.respondErr(c, errorx.ErrConflict.WithMessage("a role with this name already exists"))
			return
		}
		h.respondErr(c, err)
		return
	}
	h.resolver.InvalidateAll(c.Request.Context())
	c.JSON(http.StatusOK, role)
}

func (h *Handler) DeleteRole(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if err := h.resolver.RequirePermission(c.Request.Context(), user.ID, cnst.PermRolesDelete); err != nil {
		h.respondErr(c, err)
		return
	}

	roleID, err := pathID(c, "id")
	if err != nil {
		h.respondErr(c, err)
		return
	}
	role, err := h.db.GetRoleByID(c.Request.Context(), roleID)
	if err != nil {
		h.respondErr(c, errorx.ErrNotFound)
		return
	}
	if role.IsSystem {
		h.respondErr(c, errorx.ErrPermissionDenied.WithMessage("system roles cannot be deleted"))
		return
	}

	if err := h.db.DeleteRole(c.Request.Context(), roleID); err != nil {
		h.respondErr(c, err)
		return
	}
	h.resolver.InvalidateAll(c.Request.Context())
	h.logger.Info("role deleted", zap.Uint("role_id", roleID), zap.Uint("by", user.ID))
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListPermissions(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if err := h.resolver.RequirePermission(c.Request.Context(), user.ID, cnst.PermRolesRead); err != nil {
		h.respondErr(c, err)
		return
	}

	perms, err := h.db.ListPermissions(c.Request.Context())
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, perms)
}

func (h *Handler) ListRolePermissions(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if err := h.resolver.RequirePermission(c.Request.Context(), user.ID, cnst.PermRolesRead); err != nil {
		h.respondErr(c, err)
		return
	}

	roleID, err := pathID(c, "id")
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if _, err := h.db.GetRoleByID(c.Request.Context(), roleID); err != nil {
		h.respondErr(c, errorx.ErrNotFound)
		return
	}

	perms, err := h.db.ListRolePermissions(c.Request.Context(), roleID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, perms)
}

// GrantPermission attaches a permission to a role.
func (h *Handler) GrantPermission(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if err := h.resolver.RequirePermission(c.Request.Context(), user.ID, cnst.PermRolesUpdate); err != nil {
		h.respondErr(c, err)
		return
	}

	roleID, err := pathID(c, "id")
	if err != nil {
		h.respondErr(c, err)
		return
	}
	var req dto.GrantPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("%s", err.Error()))
		return
	}

	if err := h.db.AssignPermissionToRole(c.Request.Context(), roleID, req.PermissionID); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			h.respondErr(c, errorx.ErrConflict.WithMessage("permission is already granted"))
			return
		}
		h.respondErr(c, err)
		return
	}
	// every holder of the role is affected, not just the caller
	h.resolver.InvalidateAll(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (h *Handler) RevokePermission(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if err := h.resolver.RequirePermission(c.Request.Context(), user.ID, cnst.PermRolesUpdate); err != nil {
		h.respondErr(c, err)
		return
	}

	roleID, err := pathID(c, "id")
	if err != nil {
		h.respondErr(c, err)
		return
	}
	permID, err := pathID(c, "permissionId")
	if err != nil {
		h.respondErr(c, err)
		return
	}

	if err := h.db.RevokePermissionFromRole(c.Request.Context(), roleID, permID); err != nil {
		h.respondErr(c, err)
		return
	}
	h.resolver.InvalidateAll(c.Request.Context())
	c.Status(http.StatusNoContent)
}

// CheckPermission answers whether the caller holds a permission, globally
// or within a team. Denied lookups are a normal answer, not an error.
func (h *Handler) CheckPermission(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	var req dto.CheckPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("%s", err.Error()))
		return
	}

	ctx := c.Request.Context()
	if req.TeamID == nil {
		allowed, err := h.resolver.HasPermission(ctx, user.ID, req.Permission)
		if err != nil {
			h.respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.CheckPermissionResponse{Allowed: allowed})
		return
	}

	err = h.resolver.RequireTeamPermission(ctx, user.ID, *req.TeamID, req.Permission)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, dto.CheckPermissionResponse{Allowed: true})
	case errors.Is(err, errorx.ErrPermissionDenied), errors.Is(err, errorx.ErrNotTeamMember):
		c.JSON(http.StatusOK, dto.CheckPermissionResponse{Allowed: false})
	default:
		h.respondErr(c, err)
	}
}

// AssignRole grants a global role to a user and drops their memoized
// permission set.
func (h *Handler) AssignRole(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if err := h.resolver.RequirePermission(c.Request.Context(), user.ID, cnst.PermRolesUpdate); err != nil {
		h.respondErr(c, err)
		return
	}

	var req dto.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("%s", err.Error()))
		return
	}

	ctx := c.Request.Context()
	if _, err := h.db.GetUserByID(ctx, req.UserID); err != nil {
		h.respondErr(c, errorx.ErrNotFound.WithMessage("user not found"))
		return
	}
	if _, err := h.db.GetRoleByID(ctx, req.RoleID); err != nil {
		h.respondErr(c, errorx.ErrNotFound.WithMessage("role not found"))
		return
	}

	if err := h.db.AssignRoleToUser(ctx, req.UserID, req.RoleID); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			h.respondErr(c, errorx.ErrConflict.WithMessage("role is already assigned"))
			return
		}
		h.respondErr(c, err)
		return
	}
	h.resolver.Invalidate(ctx, req.UserID)
	c.Status(http.StatusNoContent)
}

func (h *Handler) RevokeRole(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if err := h.resolver.RequirePermission(c.Request.Context(), user.ID, cnst.PermRolesUpdate); err != nil {
		h.respondErr(c, err)
		return
	}

	var req dto.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("%s", err.Error()))
		return
	}

	ctx := c.Request.Context()
	if err := h.db.RevokeRoleFromUser(ctx, req.UserID, req.RoleID); err != nil {
		h.respondErr(c, err)
		return
	}
	h.resolver.Invalidate(ctx, req.UserID)
	c.Status(http.StatusNoContent)
}

// ListUsers returns the user directory for role administration.
func (h *Handler) ListUsers(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if err := h.resolver.RequirePermission(c.Request.Context(), user.ID, cnst.PermUsersRead); err != nil {
		h.respondErr(c, err)
		return
	}

	users, err := h.db.ListUsers(c.Request.Context())
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// PromoteSuperadmin grants the superadmin role, creating it lazily on
// first use. Only an existing superadmin may call it.
func (h *Handler) PromoteSuperadmin(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	ctx := c.Request.Context()
	super, err := h.resolver.IsSuperadmin(ctx, user.ID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if !super {
		h.respondErr(c, errorx.ErrPermissionDenied)
		return
	}

	targetID, err := pathID(c, "id")
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if _, err := h.db.GetUserByID(ctx, targetID); err != nil {
		h.respondErr(c, errorx.ErrNotFound.WithMessage("user not found"))
		return
	}

	role, err := h.resolver.EnsureSuperadminRole(ctx)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if err := h.db.AssignRoleToUser(ctx, targetID, role.ID); err != nil && !errors.Is(err, database.ErrDuplicate) {
		h.respondErr(c, err)
		return
	}
	h.resolver.Invalidate(ctx, targetID)
	h.logger.Info("superadmin granted", zap.Uint("user_id", targetID), zap.Uint("by", user.ID))
	c.Status(http.StatusNoContent)
}
