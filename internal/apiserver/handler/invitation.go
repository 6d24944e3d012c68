package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimbuslab/crewbase/internal/apiserver/database"
	"github.com/nimbuslab/crewbase/internal/common/cnst"
	"github.com/nimbuslab/crewbase/internal/common/dto"
	"github.com/nimbuslab/crewbase/internal/common/errorx"
	"github.com/nimbuslab/crewbase/internal/notify"
	"go.uber.org/zap"
)

// CreateInvitation issues a token-based invite. Team invitations require
// the invitations:create permission in that team.
func (h *Handler) CreateInvitation(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	var req dto.CreateInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("%s", err.Error()))
		return
	}

	ctx := c.Request.Context()
	var teamName string
	if req.TeamID != nil {
		if err := h.resolver.RequireTeamPermission(ctx, user.ID, *req.TeamID, cnst.PermInvitesCreate); err != nil {
			h.respondErr(c, err)
			return
		}
		team, err := h.db.GetTeamByID(ctx, *req.TeamID)
		if err != nil {
			h.respondErr(c, errorx.ErrNotFound)
			return
		}
		teamName = team.Name

		// inviting an existing member is a conflict, not a new invite
		if existing, err := h.db.GetUserByEmail(ctx, strings.ToLower(req.Email)); err == nil {
			if _, merr := h.db.GetTeamMember(ctx, *req.TeamID, existing.ID); merr == nil {
				h.respondErr(c, errorx.ErrConflict.WithMessage("user is already a member of this team"))
				return
			}
		}
	}
	if req.RoleID != nil {
		if _, err := h.db.GetRoleByID(ctx, *req.RoleID); err != nil {
			h.respondErr(c, errorx.ErrNotFound.WithMessage("role not found"))
			return
		}
	}

	token, err := database.GenerateInvitationToken()
	if err != nil {
		h.respondErr(c, err)
		return
	}

	inv := &database.Invitation{
		Email:       strings.ToLower(req.Email),
		Token:       token,
		TeamID:      req.TeamID,
		RoleID:      req.RoleID,
		InvitedByID: user.ID,
		Status:      cnst.InvitationPending,
		Message:     req.Message,
		ExpiresAt:   time.Now().Add(database.DefaultInvitationExpiry),
	}
	if err := h.db.CreateInvitation(ctx, inv); err != nil {
		h.respondErr(c, err)
		return
	}

	acceptURL := fmt.Sprintf("%s/invitations/%s/accept", h.baseURL, token)
	h.notifier.Enqueue(notify.InvitationMessage(inv.Email, user.Email, teamName, acceptURL, inv.ExpiresAt))
	h.logger.Info("invitation created",
		zap.Uint("invitation_id", inv.ID),
		zap.Uint("invited_by", user.ID))
	c.JSON(http.StatusCreated, inv)
}

// GetInvitation previews an invitation by token. No authentication: the
// token itself is the credential.
func (h *Handler) GetInvitation(c *gin.Context) {
	inv, err := h.db.GetInvitationByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.respondErr(c, errorx.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"email":     inv.Email,
		"teamId":    inv.TeamID,
		"status":    inv.Status,
		"message":   inv.Message,
		"expiresAt": inv.ExpiresAt,
		"valid":     inv.IsValid(time.Now()),
	})
}

// AcceptInvitation redeems a pending invitation for the authenticated
// user. For team invitations the membership is created atomically with
// the status flip.
func (h *Handler) AcceptInvitation(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	ctx := c.Request.Context()
	inv, err := h.db.GetInvitationByToken(ctx, c.Param("token"))
	if err != nil {
		h.respondErr(c, errorx.ErrNotFound)
		return
	}

	if !strings.EqualFold(inv.Email, user.Email) {
		h.respondErr(c, errorx.ErrPermissionDenied.WithMessage("invitation was issued to a different address"))
		return
	}

	now := time.Now()
	if inv.IsExpired(now) && inv.Status == cnst.InvitationPending {
		inv.Status = cnst.InvitationExpired
		_ = h.db.UpdateInvitation(ctx, inv)
	}
	if !inv.IsValid(now) {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("invitation is %s", inv.Status))
		return
	}

	err = h.db.WithTransaction(ctx, func(txCtx context.Context) error {
		if inv.TeamID != nil {
			roleID := inv.RoleID
			if roleID == nil {
				memberRole, err := h.db.GetRoleBySlug(txCtx, cnst.RoleMember)
				if err != nil {
					return err
				}
				roleID = &memberRole.ID
			}
			err := h.db.AddTeamMember(txCtx, &database.TeamMember{
				TeamID:   *inv.TeamID,
				UserID:   user.ID,
				RoleID:   *roleID,
				IsActive: true,
			})
			if err != nil && !errors.Is(err, database.ErrDuplicate) {
				return err
			}
		} else if inv.RoleID != nil {
			err := h.db.AssignRoleToUser(txCtx, user.ID, *inv.RoleID)
			if err != nil && !errors.Is(err, database.ErrDuplicate) {
				return err
			}
		}

		inv.Status = cnst.InvitationAccepted
		inv.AcceptedAt = &now
		return h.db.UpdateInvitation(txCtx, inv)
	})
	if err != nil {
		h.respondErr(c, err)
		return
	}

	h.resolver.Invalidate(ctx, user.ID)
	h.logger.Info("invitation accepted",
		zap.Uint("invitation_id", inv.ID),
		zap.Uint("user_id", user.ID))
	c.JSON(http.StatusOK, inv)
}

// CancelInvitation withdraws a pending invitation. The inviter can always
// cancel; for team invitations the invitations:cancel permission works too.
func (h *Handler) CancelInvitation(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	invID, err := pathID(c, "id")
	if err != nil {
		h.respondErr(c, err)
		return
	}

	ctx := c.Request.Context()
	inv, err := h.db.GetInvitationByID(ctx, invID)
	if err != nil {
		h.respondErr(c, errorx.ErrNotFound)
		return
	}

	if inv.InvitedByID != user.ID {
		if inv.TeamID == nil {
			h.respondErr(c, errorx.ErrPermissionDenied)
			return
		}
		if err := h.resolver.RequireTeamPermission(ctx, user.ID, *inv.TeamID, cnst.PermInvitesCancel); err != nil {
			h.respondErr(c, err)
			return
		}
	}

	if inv.Status != cnst.InvitationPending {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("only pending invitations can be cancelled"))
		return
	}
	inv.Status = cnst.InvitationCancelled
	if err := h.db.UpdateInvitation(ctx, inv); err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// ResendInvitation rotates the token, restarts the expiry clock, and
// sends the email again.
func (h *Handler) ResendInvitation(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	invID, err := pathID(c, "id")
	if err != nil {
		h.respondErr(c, err)
		return
	}

	ctx := c.Request.Context()
	inv, err := h.db.GetInvitationByID(ctx, invID)
	if err != nil {
		h.respondErr(c, errorx.ErrNotFound)
		return
	}
	if inv.InvitedByID != user.ID {
		h.respondErr(c, errorx.ErrPermissionDenied)
		return
	}
	if inv.Status == cnst.InvitationAccepted || inv.Status == cnst.InvitationCancelled {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("invitation is %s", inv.Status))
		return
	}

	token, err := database.GenerateInvitationToken()
	if err != nil {
		h.respondErr(c, err)
		return
	}
	inv.Token = token
	inv.Status = cnst.InvitationPending
	inv.ExpiresAt = time.Now().Add(database.DefaultInvitationExpiry)
	if err := h.db.UpdateInvitation(ctx, inv); err != nil {
		h.respondErr(c, err)
		return
	}

	var teamName string
	if inv.TeamID != nil {
		if team, err := h.db.GetTeamByID(ctx, *inv.TeamID); err == nil {
			teamName = team.Name
		}
	}
	acceptURL := fmt.Sprintf("%s/invitations/%s/accept", h.baseURL, token)
	h.notifier.Enqueue(notify.InvitationMessage(inv.Email, user.Email, teamName, acceptURL, inv.ExpiresAt))
	c.JSON(http.StatusOK, inv)
}

// ListTeamInvitations returns a team's invitations to its members.
func (h *Handler) ListTeamInvitations(c *gin.Context) {
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

	invs, err := h.db.ListTeamInvitations(ctx, teamID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, invs)
}

// ListSentInvitations returns the invitations the user has issued.
func (h *Handler) ListSentInvitations(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	invs, err := h.db.ListSentInvitations(c.Request.Context(), user.ID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, invs)
}
