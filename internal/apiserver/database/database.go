package database

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a unique constraint is violated.
var ErrDuplicate = errors.New("duplicate record")

// Database defines the persistence operations the apiserver needs. A single
// GORM-backed implementation serves postgres, mysql, and sqlite; see factory.go.
type Database interface {
	// Close closes the database connection.
	Close() error

	// Ping verifies the database connection.
	Ping(ctx context.Context) error

	// WithTransaction runs fn inside a transaction, exposing it to the
	// store methods via the context.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// --- users ---

	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id uint) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
	ListUsers(ctx context.Context) ([]*User, error)

	// --- roles and permissions ---

	CreateRole(ctx context.Context, role *Role) error
	GetRoleByID(ctx context.Context, id uint) (*Role, error)
	GetRoleBySlug(ctx context.Context, slug string) (*Role, error)
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, id uint) error
	ListRoles(ctx context.Context) ([]*Role, error)

	CreatePermission(ctx context.Context, perm *Permission) error
	GetPermissionByName(ctx context.Context, name string) (*Permission, error)
	ListPermissions(ctx context.Context) ([]*Permission, error)

	AssignPermissionToRole(ctx context.Context, roleID, permissionID uint) error
	RevokePermissionFromRole(ctx context.Context, roleID, permissionID uint) error
	AssignRoleToUser(ctx context.Context, userID, roleID uint) error
	RevokeRoleFromUser(ctx context.Context, userID, roleID uint) error

	// ListUserRoles returns the active roles globally assigned to a user.
	ListUserRoles(ctx context.Context, userID uint) ([]*Role, error)

	// GetUserPermissionNames returns the flat union of permission names
	// reachable from the user's active global roles.
	GetUserPermissionNames(ctx context.Context, userID uint) ([]string, error)

	// GetRolePermissionNames returns permission names attached to a role,
	// empty if the role is inactive.
	GetRolePermissionNames(ctx context.Context, roleID uint) ([]string, error)

	ListRolePermissions(ctx context.Context, roleID uint) ([]*Permission, error)

	// --- teams ---

	CreateTeam(ctx context.Context, team *Team) error
	GetTeamByID(ctx context.Context, id uint) (*Team, error)
	GetTeamBySlug(ctx context.Context, slug string) (*Team, error)
	UpdateTeam(ctx context.Context, team *Team) error
	ListUserTeams(ctx context.Context, userID uint) ([]*Team, error)

	AddTeamMember(ctx context.Context, member *TeamMember) error
	GetTeamMember(ctx context.Context, teamID, userID uint) (*TeamMember, error)
	UpdateTeamMember(ctx context.Context, member *TeamMember) error
	RemoveTeamMember(ctx context.Context, teamID, userID uint) error
	ListTeamMembers(ctx context.Context, teamID uint) ([]*TeamMember, error)

	// --- invitations ---

	CreateInvitation(ctx context.Context, inv *Invitation) error
	GetInvitationByID(ctx context.Context, id uint) (*Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*Invitation, error)
	UpdateInvitation(ctx context.Context, inv *Invitation) error
	ListTeamInvitations(ctx context.Context, teamID uint) ([]*Invitation, error)
	ListSentInvitations(ctx context.Context, inviterID uint) ([]*Invitation, error)

	// --- billing ---

	CreatePlan(ctx context.Context, plan *Plan) error
	GetPlan(ctx context.Context, id uint) (*Plan, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]*Plan, error)

	CreateSubscription(ctx context.Context, sub *Subscription) error
	UpdateSubscription(ctx context.Context, sub *Subscription) error
	GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error)

	// GetCurrentSubscription returns the user's newest subscription with
	// status active or trialing, or ErrNotFound.
	GetCurrentSubscription(ctx context.Context, userID uint) (*Subscription, error)

	// GetLatestSubscriptionByCustomer returns the newest subscription for
	// an external customer reference, regardless of status.
	GetLatestSubscriptionByCustomer(ctx context.Context, stripeCustomerID string) (*Subscription, error)

	CreateInvoice(ctx context.Context, invoice *Invoice) error
	UpdateInvoice(ctx context.Context, invoice *Invoice) error
	GetInvoiceByStripeID(ctx context.Context, stripeInvoiceID string) (*Invoice, error)
	ListUserInvoices(ctx context.Context, userID uint, limit int) ([]*Invoice, error)

	// --- webhook ledger ---

	WebhookEventExists(ctx context.Context, stripeEventID string) (bool, error)
	RecordWebhookEvent(ctx context.Context, event *WebhookEvent) error
}
