package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nimbuslab/crewbase/internal/apiserver/database"
	"github.com/nimbuslab/crewbase/internal/common/dto"
	"github.com/nimbuslab/crewbase/internal/common/errorx"
	"github.com/nimbuslab/crewbase/internal/notify"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Register creates an account and returns a token so the client is signed
// in immediately.
func (h *Handler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("%s", err.Error()))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	user := &database.User{
		Email:        strings.ToLower(req.Email),
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		IsActive:     true,
	}
	if err := h.db.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			h.respondErr(c, errorx.ErrConflict.WithMessage("email is already registered"))
			return
		}
		h.respondErr(c, err)
		return
	}

	h.logger.Info("user registered", zap.Uint("user_id", user.ID))
	h.notifier.Enqueue(notify.WelcomeMessage(user.Email, user.FirstName))

	token, err := h.jwtService.GenerateToken(user.ID, user.Email)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
}

// Login verifies credentials and issues a token.
func (h *Handler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("%s", err.Error()))
		return
	}

	// emails are stored lowercased, so the lookup matches any input casing
	user, err := h.db.GetUserByEmail(c.Request.Context(), strings.ToLower(req.Email))
	if err != nil {
		// same answer for unknown email and wrong password
		h.respondErr(c, errorx.ErrInvalidCredentials)
		return
	}
	if !user.IsActive {
		h.respondErr(c, errorx.ErrInvalidCredentials)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		h.respondErr(c, errorx.ErrInvalidCredentials)
		return
	}

	token, err := h.jwtService.GenerateToken(user.ID, user.Email)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateProfile applies partial profile changes, including the UI theme.
func (h *Handler) UpdateProfile(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("%s", err.Error()))
		return
	}

	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Theme != nil {
		user.Theme = *req.Theme
	}
	if err := h.db.UpdateUser(c.Request.Context(), user); err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ChangePassword verifies the current password before setting a new one.
func (h *Handler) ChangePassword(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("%s", err.Error()))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		h.respondErr(c, errorx.ErrInvalidCredentials.WithMessage("current password is incorrect"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	user.PasswordHash = string(hash)
	if err := h.db.UpdateUser(c.Request.Context(), user); err != nil {
		h.respondErr(c, err)
		return
	}

	h.logger.Info("password changed", zap.Uint("user_id", user.ID))
	c.JSON(http.StatusOK, gin.H{"status": "password updated"})
}
