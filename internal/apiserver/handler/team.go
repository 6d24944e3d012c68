package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	"github.com/nimbuslab/crewbase/internal/apiserver/database"
	"github.com/nimbuslab/crewbase/internal/common/cnst"
	"github.com/nimbuslab/crewbase/internal/common/dto"
	"github.com/nimbuslab/crewbase/internal/common/errorx"
	"go.uber.org/zap"
)

// CreateTeam creates a team and enrolls the creator as an admin member in
// the same transaction.
func (h *Handler) CreateTeam(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	var req dto.CreateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("%s", err.Error()))
		return
	}

	ctx := c.Request.Context()
	adminRole, err := h.db.GetRoleBySlug(ctx, cnst.RoleAdmin)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	team := &database.Team{
		Name:        req.Name,
		Slug:        slug.Make(req.Name),
		Description: req.Description,
		OwnerID:     user.ID,
		IsActive:    true,
	}
	err = h.db.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := h.db.CreateTeam(txCtx, team); err != nil {
			return err
		}
		return h.db.AddTeamMember(txCtx, &database.TeamMember{
			TeamID:   team.ID,
			UserID:   user.ID,
			RoleID:   adminRole.ID,
			IsActive: true,
		})
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			h.respondErr(c, errorx.ErrConflict.WithMessage("a team with this name already exists"))
			return
		}
		h.respondErr(c, err)
		return
	}

	h.logger.Info("team created", zap.Uint("team_id", team.ID), zap.Uint("owner_id", user.ID))
	c.JSON(http.StatusCreated, team)
}

// ListMyTeams returns the teams the user belongs to.
func (h *Handler) ListMyTeams(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	teams, err := h.db.ListUserTeams(c.Request.Context(), user.ID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, teams)
}

// GetTeam returns one team; any member may read it.
func (h *Handler) GetTeam(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	teamID, err := pathID(c, "id")
	if err != nil {
		h.respondErr(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.resolver.RequireTeamMember(ctx, user.ID, teamID); err != nil {
		h.respondErr(c, err)
		return
	}
	team, err := h.db.GetTeamByID(ctx, teamID)
	if err != nil {
		h.respondErr(c, errorx.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, team)
}

// GetTeamBySlug resolves a team by its URL slug, for clients that address
// teams by name rather than id. Membership rules match GetTeam.
func (h *Handler) GetTeamBySlug(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	ctx := c.Request.Context()
	team, err := h.db.GetTeamBySlug(ctx, c.Param("slug"))
	if err != nil {
		h.respondErr(c, errorx.ErrNotFound)
		return
	}
	if _, err := h.resolver.RequireTeamMember(ctx, user.ID, team.ID); err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, team)
}

func (h *Handler) UpdateTeam(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	teamID, err := pathID(c, "id")
	if err != nil {
		h.respondErr(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.resolver.RequireTeamPermission(ctx, user.ID, teamID, cnst.PermTeamsUpdate); err != nil {
		h.respondErr(c, err)
		return
	}

	var req dto.UpdateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("%s", err.Error()))
		return
	}

	team, err := h.db.GetTeamByID(ctx, teamID)
	if err != nil {
		h.respondErr(c, errorx.ErrNotFound)
		return
	}
	if req.Name != nil {
		team.Name = *req.Name
		team.Slug = slug.Make(*req.Name)
	}
	if req.Description != nil {
		team.Description = *req.Description
	}
	if err := h.db.UpdateTeam(ctx, team); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			h.respondErr(c, errorx.ErrConflict.WithMessage("a team with this name already exists"))
			return
		}
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, team)
}

// DeleteTeam deactivates the team. Rows stay for audit and billing history.
func (h *Handler) DeleteTeam(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	teamID, err := pathID(c, "id")
	if err != nil {
		h.respondErr(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.resolver.RequireTeamPermission(ctx, user.ID, teamID, cnst.PermTeamsDelete); err != nil {
		h.respondErr(c, err)
		return
	}

	team, err := h.db.GetTeamByID(ctx, teamID)
	if err != nil {
		h.respondErr(c, errorx.ErrNotFound)
		return
	}
	team.IsActive = false
	if err := h.db.UpdateTeam(ctx, team); err != nil {
		h.respondErr(c, err)
		return
	}
	h.logger.Info("team deactivated", zap.Uint("team_id", teamID), zap.Uint("by", user.ID))
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListTeamMembers(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	teamID, err := pathID(c, "id")
	if err != nil {
		h.respondErr(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.resolver.RequireTeamMember(ctx, user.ID, teamID); err != nil {
		h.respondErr(c, err)
		return
	}

	members, err := h.db.ListTeamMembers(ctx, teamID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

func (h *Handler) AddTeamMember(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	teamID, err := pathID(c, "id")
	if err != nil {
		h.respondErr(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.resolver.RequireTeamPermission(ctx, user.ID, teamID, cnst.PermMembersAdd); err != nil {
		h.respondErr(c, err)
		return
	}

	var req dto.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("%s", err.Error()))
		return
	}
	if _, err := h.db.GetUserByID(ctx, req.UserID); err != nil {
		h.respondErr(c, errorx.ErrNotFound.WithMessage("user not found"))
		return
	}
	if _, err := h.db.GetRoleByID(ctx, req.RoleID); err != nil {
		h.respondErr(c, errorx.ErrNotFound.WithMessage("role not found"))
		return
	}

	member := &database.TeamMember{
		TeamID:   teamID,
		UserID:   req.UserID,
		RoleID:   req.RoleID,
		IsActive: true,
	}
	if err := h.db.AddTeamMember(ctx, member); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			h.respondErr(c, errorx.ErrConflict.WithMessage("user is already a member"))
			return
		}
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (h *Handler) UpdateTeamMember(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	teamID, err := pathID(c, "id")
	if err != nil {
		h.respondErr(c, err)
		return
	}
	memberUserID, err := pathID(c, "userId")
	if err != nil {
		h.respondErr(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.resolver.RequireTeamPermission(ctx, user.ID, teamID, cnst.PermMembersUpdate); err != nil {
		h.respondErr(c, err)
		return
	}

	member, err := h.db.GetTeamMember(ctx, teamID, memberUserID)
	if err != nil {
		h.respondErr(c, errorx.ErrNotFound.WithMessage("member not found"))
		return
	}

	var req dto.UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("%s", err.Error()))
		return
	}
	if req.RoleID != nil {
		if _, err := h.db.GetRoleByID(ctx, *req.RoleID); err != nil {
			h.respondErr(c, errorx.ErrNotFound.WithMessage("role not found"))
			return
		}
		member.RoleID = *req.RoleID
	}
	if req.IsActive != nil {
		member.IsActive = *req.IsActive
	}
	if err := h.db.UpdateTeamMember(ctx, member); err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

// RemoveTeamMember removes a member. The owner cannot be removed; members
// may remove themselves without the permission.
func (h *Handler) RemoveTeamMember(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	teamID, err := pathID(c, "id")
	if err != nil {
		h.respondErr(c, err)
		return
	}
	memberUserID, err := pathID(c, "userId")
	if err != nil {
		h.respondErr(c, err)
		return
	}

	ctx := c.Request.Context()
	if user.ID != memberUserID {
		if err := h.resolver.RequireTeamPermission(ctx, user.ID, teamID, cnst.PermMembersRemove); err != nil {
			h.respondErr(c, err)
			return
		}
	} else {
		if _, err := h.resolver.RequireTeamMember(ctx, user.ID, teamID); err != nil {
			h.respondErr(c, err)
			return
		}
	}

	team, err := h.db.GetTeamByID(ctx, teamID)
	if err != nil {
		h.respondErr(c, errorx.ErrNotFound)
		return
	}
	if team.OwnerID == memberUserID {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("the team owner cannot be removed"))
		return
	}

	if err := h.db.RemoveTeamMember(ctx, teamID, memberUserID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			h.respondErr(c, errorx.ErrNotFound.WithMessage("member not found"))
			return
		}
		h.respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
