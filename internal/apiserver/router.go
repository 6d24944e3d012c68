// Package apiserver assembles the HTTP surface of the service.
package apiserver

import (
	"github.com/gin-gonic/gin"
	"github.com/nimbuslab/crewbase/internal/apiserver/handler"
	"github.com/nimbuslab/crewbase/internal/apiserver/middleware"
	"github.com/nimbuslab/crewbase/internal/auth/jwt"
	"github.com/nimbuslab/crewbase/pkg/metrics"
)

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *handler.Handler, jwtService *jwt.Service, m *metrics.Metrics, metricsEnabled bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())
	r.Use(m.Middleware())

	r.GET("/healthz", h.Healthz)
	if metricsEnabled {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := r.Group("/api")

	// public
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.GET("/plans", h.ListPlans)
	api.GET("/invitations/token/:token", h.GetInvitation)
	api.POST("/webhooks/stripe", h.StripeWebhook)

	// authenticated
	auth := api.Group("", middleware.JWTAuthMiddleware(jwtService))
	{
		auth.GET("/auth/me", h.Me)
		auth.PUT("/auth/me", h.UpdateProfile)
		auth.POST("/auth/password", h.ChangePassword)

		auth.GET("/roles", h.ListRoles)
		auth.POST("/roles", h.CreateRole)
		auth.PUT("/roles/:id", h.UpdateRole)
		auth.DELETE("/roles/:id", h.DeleteRole)
		auth.GET("/roles/:id/permissions", h.ListRolePermissions)
		auth.POST("/roles/:id/permissions", h.GrantPermission)
		auth.DELETE("/roles/:id/permissions/:permissionId", h.RevokePermission)
		auth.GET("/permissions", h.ListPermissions)
		auth.POST("/permissions/check", h.CheckPermission)
		auth.POST("/roles/assignments", h.AssignRole)
		auth.DELETE("/roles/assignments", h.RevokeRole)
		auth.GET("/users", h.ListUsers)
		auth.POST("/users/:id/superadmin", h.PromoteSuperadmin)

		auth.POST("/teams", h.CreateTeam)
		auth.GET("/teams", h.ListMyTeams)
		auth.GET("/teams/slug/:slug", h.GetTeamBySlug)
		auth.GET("/teams/:id", h.GetTeam)
		auth.PUT("/teams/:id", h.UpdateTeam)
		auth.DELETE("/teams/:id", h.DeleteTeam)
		auth.GET("/teams/:id/members", h.ListTeamMembers)
		auth.POST("/teams/:id/members", h.AddTeamMember)
		auth.PUT("/teams/:id/members/:userId", h.UpdateTeamMember)
		auth.DELETE("/teams/:id/members/:userId", h.RemoveTeamMember)
		auth.GET("/teams/:id/invitations", h.ListTeamInvitations)

		auth.POST("/invitations", h.CreateInvitation)
		auth.GET("/invitations/sent", h.ListSentInvitations)
		auth.POST("/invitations/token/:token/accept", h.AcceptInvitation)
		auth.POST("/invitations/:id/cancel", h.CancelInvitation)
		auth.POST("/invitations/:id/resend", h.ResendInvitation)

		auth.GET("/subscriptions/current", h.CurrentSubscription)
		auth.POST("/subscriptions/checkout", h.CreateCheckout)
		auth.POST("/subscriptions/portal", h.CreatePortal)
		auth.POST("/subscriptions/cancel", h.CancelSubscription)
		auth.POST("/subscriptions/resume", h.ResumeSubscription)
		auth.GET("/invoices", h.ListInvoices)
	}

	return r
}
