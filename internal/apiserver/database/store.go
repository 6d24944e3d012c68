package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// store implements Database on top of GORM.
type store struct {
	db *gorm.DB
}

func (s *store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ContextWithTransaction(ctx, tx))
	})
}

// translate maps GORM errors to the store's sentinel errors.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

// --- users ---

func (s *store) CreateUser(ctx context.Context, user *User) error {
	return translate(s.conn(ctx).Create(user).Error)
}

func (s *store) GetUserByID(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := s.conn(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	if err := s.conn(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *store) UpdateUser(ctx context.Context, user *User) error {
	return translate(s.conn(ctx).Save(user).Error)
}

func (s *store) ListUsers(ctx context.Context) ([]*User, error) {
	var users []*User
	err := s.conn(ctx).Order("id asc").Find(&users).Error
	return users, translate(err)
}

// --- roles and permissions ---

func (s *store) CreateRole(ctx context.Context, role *Role) error {
	return translate(s.conn(ctx).Create(role).Error)
}

func (s *store) GetRoleByID(ctx context.Context, id uint) (*Role, error) {
	var role Role
	if err := s.conn(ctx).First(&role, id).Error; err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

func (s *store) GetRoleBySlug(ctx context.Context, slug string) (*Role, error) {
	var role Role
	if err := s.conn(ctx).Where("slug = ?", slug).First(&role).Error; err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

func (s *store) UpdateRole(ctx context.Context, role *Role) error {
	return translate(s.conn(ctx).Save(role).Error)
}

func (s *store) DeleteRole(ctx context.Context, id uint) error {
	return translate(s.conn(ctx).Delete(&Role{}, id).Error)
}

func (s *store) ListRoles(ctx context.Context) ([]*Role, error) {
	var roles []*Role
	err := s.conn(ctx).Order("name asc").Find(&roles).Error
	return roles, translate(err)
}

func (s *store) CreatePermission(ctx context.Context, perm *Permission) error {
	return translate(s.conn(ctx).Create(perm).Error)
}

func (s *store) GetPermissionByName(ctx context.Context, name string) (*Permission, error) {
	var perm Permission
	if err := s.conn(ctx).Where("name = ?", name).First(&perm).Error; err != nil {
		return nil, translate(err)
	}
	return &perm, nil
}

func (s *store) ListPermissions(ctx context.Context) ([]*Permission, error) {
	var perms []*Permission
	err := s.conn(ctx).Order("name asc").Find(&perms).Error
	return perms, translate(err)
}

func (s *store) AssignPermissionToRole(ctx context.Context, roleID, permissionID uint) error {
	return translate(s.conn(ctx).Create(&RolePermission{RoleID: roleID, PermissionID: permissionID}).Error)
}

func (s *store) RevokePermissionFromRole(ctx context.Context, roleID, permissionID uint) error {
	return translate(s.conn(ctx).
		Where("role_id = ? AND permission_id = ?", roleID, permissionID).
		Delete(&RolePermission{}).Error)
}

func (s *store) AssignRoleToUser(ctx context.Context, userID, roleID uint) error {
	return translate(s.conn(ctx).Create(&UserRole{UserID: userID, RoleID: roleID}).Error)
}

func (s *store) RevokeRoleFromUser(ctx context.Context, userID, roleID uint) error {
	return translate(s.conn(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&UserRole{}).Error)
}

func (s *store) ListUserRoles(ctx context.Context, userID uint) ([]*Role, error) {
	var roles []*Role
	err := s.conn(ctx).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ? AND roles.is_active = ?", userID, true).
		Find(&roles).Error
	return roles, translate(err)
}

func (s *store) GetUserPermissionNames(ctx context.Context, userID uint) ([]string, error) {
	var names []string
	err := s.conn(ctx).
		Model(&Permission{}).
		Distinct().
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Joins("JOIN roles ON roles.id = role_permissions.role_id").
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ? AND roles.is_active = ?", userID, true).
		Pluck("permissions.name", &names).Error
	return names, translate(err)
}

func (s *store) GetRolePermissionNames(ctx context.Context, roleID uint) ([]string, error) {
	var names []string
	err := s.conn(ctx).
		Model(&Permission{}).
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Joins("JOIN roles ON roles.id = role_permissions.role_id").
		Where("roles.id = ? AND roles.is_active = ?", roleID, true).
		Pluck("permissions.name", &names).Error
	return names, translate(err)
}

func (s *store) ListRolePermissions(ctx context.Context, roleID uint) ([]*Permission, error) {
	var perms []*Permission
	err := s.conn(ctx).
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Where("role_permissions.role_id = ?", roleID).
		Find(&perms).Error
	return perms, translate(err)
}

// --- teams ---

func (s *store) CreateTeam(ctx context.Context, team *Team) error {
	return translate(s.conn(ctx).Create(team).Error)
}

func (s *store) GetTeamByID(ctx context.Context, id uint) (*Team, error) {
	var team Team
	if err := s.conn(ctx).First(&team, id).Error; err != nil {
		return nil, translate(err)
	}
	return &team, nil
}

func (s *store) GetTeamBySlug(ctx context.Context, slug string) (*Team, error) {
	var team Team
	if err := s.conn(ctx).Where("slug = ?", slug).First(&team).Error; err != nil {
		return nil, translate(err)
	}
	return &team, nil
}

func (s *store) UpdateTeam(ctx context.Context, team *Team) error {
	return translate(s.conn(ctx).Save(team).Error)
}

func (s *store) ListUserTeams(ctx context.Context, userID uint) ([]*Team, error) {
	var teams []*Team
	err := s.conn(ctx).
		Joins("JOIN team_members ON team_members.team_id = teams.id").
		Where("team_members.user_id = ? AND team_members.is_active = ? AND teams.is_active = ?",
			userID, true, true).
		Distinct().
		Find(&teams).Error
	return teams, translate(err)
}

func (s *store) AddTeamMember(ctx context.Context, member *TeamMember) error {
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now()
	}
	return translate(s.conn(ctx).Create(member).Error)
}

func (s *store) GetTeamMember(ctx context.Context, teamID, userID uint) (*TeamMember, error) {
	var member TeamMember
	err := s.conn(ctx).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		First(&member).Error
	if err != nil {
		return nil, translate(err)
	}
	return &member, nil
}

func (s *store) UpdateTeamMember(ctx context.Context, member *TeamMember) error {
	return translate(s.conn(ctx).Save(member).Error)
}

func (s *store) RemoveTeamMember(ctx context.Context, teamID, userID uint) error {
	return translate(s.conn(ctx).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Delete(&TeamMember{}).Error)
}

func (s *store) ListTeamMembers(ctx context.Context, teamID uint) ([]*TeamMember, error) {
	var members []*TeamMember
	err := s.conn(ctx).
		Where("team_id = ? AND is_active = ?", teamID, true).
		Find(&members).Error
	return members, translate(err)
}

// --- invitations ---

func (s *store) CreateInvitation(ctx context.Context, inv *Invitation) error {
	return translate(s.conn(ctx).Create(inv).Error)
}

func (s *store) GetInvitationByID(ctx context.Context, id uint) (*Invitation, error) {
	var inv Invitation
	if err := s.conn(ctx).First(&inv, id).Error; err != nil {
		return nil, translate(err)
	}
	return &inv, nil
}

func (s *store) GetInvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	var inv Invitation
	if err := s.conn(ctx).Where("token = ?", token).First(&inv).Error; err != nil {
		return nil, translate(err)
	}
	return &inv, nil
}

func (s *store) UpdateInvitation(ctx context.Context, inv *Invitation) error {
	return translate(s.conn(ctx).Save(inv).Error)
}

func (s *store) ListTeamInvitations(ctx context.Context, teamID uint) ([]*Invitation, error) {
	var invs []*Invitation
	err := s.conn(ctx).
		Where("team_id = ?", teamID).
		Order("created_at desc").
		Find(&invs).Error
	return invs, translate(err)
}

func (s *store) ListSentInvitations(ctx context.Context, inviterID uint) ([]*Invitation, error) {
	var invs []*Invitation
	err := s.conn(ctx).
		Where("invited_by_id = ?", inviterID).
		Order("created_at desc").
		Find(&invs).Error
	return invs, translate(err)
}

// --- billing ---

func (s *store) CreatePlan(ctx context.Context, plan *Plan) error {
	return translate(s.conn(ctx).Create(plan).Error)
}

func (s *store) GetPlan(ctx context.Context, id uint) (*Plan, error) {
	var plan Plan
	if err := s.conn(ctx).First(&plan, id).Error; err != nil {
		return nil, translate(err)
	}
	return &plan, nil
}

func (s *store) ListPlans(ctx context.Context, activeOnly bool) ([]*Plan, error) {
	q := s.conn(ctx).Order("amount asc")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var plans []*Plan
	err := q.Find(&plans).Error
	return plans, translate(err)
}

func (s *store) CreateSubscription(ctx context.Context, sub *Subscription) error {
	return translate(s.conn(ctx).Create(sub).Error)
}

func (s *store) UpdateSubscription(ctx context.Context, sub *Subscription) error {
	return translate(s.conn(ctx).Save(sub).Error)
}

func (s *store) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error) {
	var sub Subscription
	err := s.conn(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *store) GetCurrentSubscription(ctx context.Context, userID uint) (*Subscription, error) {
	var sub Subscription
	err := s.conn(ctx).
		Where("user_id = ? AND status IN ?", userID,
			[]SubscriptionStatus{SubscriptionActive, SubscriptionTrialing}).
		Order("created_at desc").
		First(&sub).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *store) GetLatestSubscriptionByCustomer(ctx context.Context, stripeCustomerID string) (*Subscription, error) {
	var sub Subscription
	err := s.conn(ctx).
		Where("stripe_customer_id = ?", stripeCustomerID).
		Order("created_at desc").
		First(&sub).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *store) CreateInvoice(ctx context.Context, invoice *Invoice) error {
	return translate(s.conn(ctx).Create(invoice).Error)
}

func (s *store) UpdateInvoice(ctx context.Context, invoice *Invoice) error {
	return translate(s.conn(ctx).Save(invoice).Error)
}

func (s *store) GetInvoiceByStripeID(ctx context.Context, stripeInvoiceID string) (*Invoice, error) {
	var invoice Invoice
	err := s.conn(ctx).
		Where("stripe_invoice_id = ?", stripeInvoiceID).
		First(&invoice).Error
	if err != nil {
		return nil, translate(err)
	}
	return &invoice, nil
}

func (s *store) ListUserInvoices(ctx context.Context, userID uint, limit int) ([]*Invoice, error) {
	if limit <= 0 {
		limit = 50
	}
	var invoices []*Invoice
	err := s.conn(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&invoices).Error
	return invoices, translate(err)
}

// --- webhook ledger ---

func (s *store) WebhookEventExists(ctx context.Context, stripeEventID string) (bool, error) {
	var count int64
	err := s.conn(ctx).
		Model(&WebhookEvent{}).
		Where("stripe_event_id = ?", stripeEventID).
		Count(&count).Error
	return count > 0, translate(err)
}

func (s *store) RecordWebhookEvent(ctx context.Context, event *WebhookEvent) error {
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now()
	}
	return translate(s.conn(ctx).Create(event).Error)
}
