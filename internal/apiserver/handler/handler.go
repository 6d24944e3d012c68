// Package handler implements the HTTP API on top of the domain services.
package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/nimbuslab/crewbase/internal/apiserver/database"
	"github.com/nimbuslab/crewbase/internal/apiserver/middleware"
	"github.com/nimbuslab/crewbase/internal/auth/jwt"
	"github.com/nimbuslab/crewbase/internal/billing"
	"github.com/nimbuslab/crewbase/internal/common/errorx"
	"github.com/nimbuslab/crewbase/internal/notify"
	"github.com/nimbuslab/crewbase/internal/rbac"
	"go.uber.org/zap"
)

// Handler wires every HTTP endpoint to the domain services.
type Handler struct {
	db         database.Database
	jwtService *jwt.Service
	resolver   *rbac.Resolver
	billing    *billing.Service
	reconciler *billing.Reconciler
	notifier   *notify.Worker
	baseURL    string
	logger     *zap.Logger
}

func New(
	db database.Database,
	jwtService *jwt.Service,
	resolver *rbac.Resolver,
	billingSvc *billing.Service,
	reconciler *billing.Reconciler,
	notifier *notify.Worker,
	baseURL string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		db:         db,
		jwtService: jwtService,
		resolver:   resolver,
		billing:    billingSvc,
		reconciler: reconciler,
		notifier:   notifier,
		baseURL:    baseURL,
		logger:     logger.Named("handler"),
	}
}

// currentUser loads the authenticated user. The middleware guarantees the
// claims exist on protected routes.
func (h *Handler) currentUser(c *gin.Context) (*database.User, error) {
	claims := middleware.ClaimsFromContext(c)
	if claims == nil {
		return nil, errorx.ErrUnauthorized
	}
	user, err := h.db.GetUserByID(c.Request.Context(), claims.UserID)
	if err != nil {
		return nil, errorx.ErrUnauthorized
	}
	if !user.IsActive {
		return nil, errorx.ErrUnauthorized.WithMessage("account is disabled")
	}
	return user, nil
}

func (h *Handler) respondErr(c *gin.Context, err error) {
	errorx.Respond(c, h.logger, err)
}
