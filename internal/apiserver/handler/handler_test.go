package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimbuslab/crewbase/internal/apiserver/cache"
	"github.com/nimbuslab/crewbase/internal/apiserver/database"
	"github.com/nimbuslab/crewbase/internal/apiserver/middleware"
	"github.com/nimbuslab/crewbase/internal/auth/jwt"
	"github.com/nimbuslab/crewbase/internal/billing"
	"github.com/nimbuslab/crewbase/internal/common/config"
	"github.com/nimbuslab/crewbase/internal/notify"
	"github.com/nimbuslab/crewbase/internal/rbac"
	"github.com/nimbuslab/crewbase/pkg/metrics"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

type stubGateway struct {
	sub    *stripe.Subscription
	getErr error
}

func (g *stubGateway) CreateCheckoutSession(context.Context, *billing.CheckoutParams) (string, error) {
	return "https://checkout.example.com/cs_test", nil
}

func (g *stubGateway) CreatePortalSession(context.Context, string) (string, error) {
	return "https://portal.example.com/ps_test", nil
}

func (g *stubGateway) GetSubscription(context.Context, string) (*stripe.Subscription, error) {
	if g.getErr != nil {
		return nil, g.getErr
	}
	return g.sub, nil
}

func (g *stubGateway) CancelAtPeriodEnd(context.Context, string) (*stripe.Subscription, error) {
	return g.sub, nil
}

func (g *stubGateway) ResumeSubscription(context.Context, string) (*stripe.Subscription, error) {
	return g.sub, nil
}

type captureMailer struct {
	mu   sync.Mutex
	sent []*notify.Message
}

func (m *captureMailer) Send(_ context.Context, msg *notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type testEnv struct {
	t          *testing.T
	db         database.Database
	router     http.Handler
	jwtService *jwt.Service
	mailer     *captureMailer
	gateway    *stubGateway
	handler    *Handler
}

const testWebhookSecret = "whsec_test"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewDatabase(&config.DatabaseConfig{Type: "sqlite", DBName: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, rbac.Seed(context.Background(), db, zap.NewNop()))

	permCache, err := cache.NewPermissionCache(&config.CacheConfig{Type: "memory"})
	require.NoError(t, err)

	jwtService, err := jwt.NewService(config.JWTConfig{
		SecretKey: "0123456789abcdef0123456789abcdef",
		Duration:  time.Hour,
	})
	require.NoError(t, err)

	m := metrics.New(config.MetricsConfig{Namespace: "test"})
	resolver := rbac.NewResolver(db, permCache, zap.NewNop())
	gateway := &stubGateway{sub: &stripe.Subscription{
		Status:             stripe.SubscriptionStatusActive,
		CurrentPeriodStart: time.Now().Unix(),
		CurrentPeriodEnd:   time.Now().Add(30 * 24 * time.Hour).Unix(),
	}}
	billingSvc := billing.NewService(db, gateway, zap.NewNop())

	mailer := &captureMailer{}
	notifier := notify.NewWorker(mailer, m, zap.NewNop())
	notifier.Start(context.Background())
	t.Cleanup(notifier.Stop)

	reconciler := billing.NewReconciler(db, gateway, testWebhookSecret, notifier, m, zap.NewNop())

	h := New(db, jwtService, resolver, billingSvc, reconciler, notifier, "https://app.example.com", zap.NewNop())

	r := gin.New()
	registerTestRoutes(r, h, jwtService, m)
	return &testEnv{t: t, db: db, router: r, jwtService: jwtService, mailer: mailer, gateway: gateway, handler: h}
}

// registerTestRoutes mirrors the production router so handler tests
// exercise real routing, auth middleware included.
func registerTestRoutes(r *gin.Engine, h *Handler, jwtService *jwt.Service, m *metrics.Metrics) {
	r.Use(m.Middleware())
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.GET("/plans", h.ListPlans)
	api.GET("/invitations/token/:token", h.GetInvitation)
	api.POST("/webhooks/stripe", h.StripeWebhook)

	auth := api.Group("", middleware.JWTAuthMiddleware(jwtService))
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

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// signup registers a user through the API and returns the user and a token.
func (e *testEnv) signup(email string) (*database.User, string) {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": "s3cretpass",
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())

	token := gjson.Get(w.Body.String(), "token").String()
	require.NotEmpty(e.t, token)

	user, err := e.db.GetUserByEmail(context.Background(), email)
	require.NoError(e.t, err)
	return user, token
}

func (e *testEnv) grantRole(userID uint, slug string) {
	e.t.Helper()
	role, err := e.db.GetRoleBySlug(context.Background(), slug)
	require.NoError(e.t, err)
	require.NoError(e.t, e.db.AssignRoleToUser(context.Background(), userID, role.ID))
}

func (e *testEnv) makeSuperadmin(userID uint) {
	e.t.Helper()
	ctx := context.Background()
	role := &database.Role{Name: "Super Admin", Slug: "superadmin", IsSystem: true, IsActive: true}
	if err := e.db.CreateRole(ctx, role); err != nil {
		role, err = e.db.GetRoleBySlug(ctx, "superadmin")
		require.NoError(e.t, err)
	}
	require.NoError(e.t, e.db.AssignRoleToUser(ctx, userID, role.ID))
}

func (e *testEnv) createTeamID(token string, name string) uint {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/teams", token, map[string]string{"name": name})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return uint(gjson.Get(w.Body.String(), "id").Uint())
}

func jsonField(w *httptest.ResponseRecorder, path string) gjson.Result {
	return gjson.Get(w.Body.String(), path)
}

func teamPath(teamID uint, suffix string) string {
	return fmt.Sprintf("/api/teams/%d%s", teamID, suffix)
}
