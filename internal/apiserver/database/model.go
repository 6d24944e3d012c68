package database

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/nimbuslab/crewbase/internal/common/cnst"
	"github.com/shopspring/decimal"
)

// User is an identity record. Users are never hard-deleted; deactivation
// flips IsActive.
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Email        string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255);not null"`
	FirstName    string    `json:"firstName" gorm:"type:varchar(100)"`
	LastName     string    `json:"lastName" gorm:"type:varchar(100)"`
	IsActive     bool      `json:"isActive" gorm:"not null;default:true"`
	Theme        string    `json:"theme" gorm:"type:varchar(20);not null;default:'system'"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Role is a named permission bundle. System roles cannot be renamed or
// deleted.
type Role struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Slug        string    `json:"slug" gorm:"type:varchar(100);uniqueIndex;not null"`
	Description string    `json:"description" gorm:"type:text"`
	IsSystem    bool      `json:"isSystem" gorm:"not null;default:false"`
	IsActive    bool      `json:"isActive" gorm:"not null;default:true;index"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Permission is an atomic capability named resource:action.
type Permission struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Resource    string    `json:"resource" gorm:"type:varchar(100);not null;index"`
	Action      string    `json:"action" gorm:"type:varchar(50);not null"`
	Name        string    `json:"name" gorm:"type:varchar(200);uniqueIndex;not null"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RolePermission links a role to a permission, unique per pair.
type RolePermission struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	RoleID       uint      `json:"roleId" gorm:"not null;uniqueIndex:ux_role_permissions,priority:1"`
	PermissionID uint      `json:"permissionId" gorm:"not null;uniqueIndex:ux_role_permissions,priority:2"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserRole is a global role assignment, unique per (user, role).
type UserRole struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    uint      `json:"userId" gorm:"not null;uniqueIndex:ux_user_roles,priority:1"`
	RoleID    uint      `json:"roleId" gorm:"not null;uniqueIndex:ux_user_roles,priority:2"`
	CreatedAt time.Time `json:"createdAt"`
}

// Team is a tenant. The owner always holds an active membership with the
// admin role from the moment the team is created.
type Team struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name" gorm:"type:varchar(200);uniqueIndex;not null"`
	Slug        string    `json:"slug" gorm:"type:varchar(200);uniqueIndex;not null"`
	Description string    `json:"description" gorm:"type:text"`
	OwnerID     uint      `json:"ownerId" gorm:"not null;index"`
	IsActive    bool      `json:"isActive" gorm:"not null;default:true"`
	Settings    string    `json:"settings" gorm:"type:text"` // free-form JSON blob
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TeamMember carries a team-scoped role, distinct from global UserRole
// assignments.
type TeamMember struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	TeamID    uint      `json:"teamId" gorm:"not null;uniqueIndex:ux_team_members,priority:1"`
	UserID    uint      `json:"userId" gorm:"not null;uniqueIndex:ux_team_members,priority:2"`
	RoleID    uint      `json:"roleId" gorm:"not null;index"`
	IsActive  bool      `json:"isActive" gorm:"not null;default:true"`
	JoinedAt  time.Time `json:"joinedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Invitation is a token-based, time-limited invite, optionally bound to a
// team and a role granted on acceptance.
type Invitation struct {
	ID          uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	Email       string     `json:"email" gorm:"type:varchar(255);not null;index"`
	Token       string     `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	TeamID      *uint      `json:"teamId" gorm:"index"`
	RoleID      *uint      `json:"roleId"`
	InvitedByID uint       `json:"invitedById" gorm:"not null;index"`
	Status      string     `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Message     string     `json:"message" gorm:"type:text"`
	ExpiresAt   time.Time  `json:"expiresAt" gorm:"not null;index"`
	AcceptedAt  *time.Time `json:"acceptedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// GenerateInvitationToken returns a cryptographically random, URL-safe token.
func GenerateInvitationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// DefaultInvitationExpiry is the default invitation lifetime.
const DefaultInvitationExpiry = 7 * 24 * time.Hour

// IsExpired reports whether the invitation's expiry has passed.
func (i *Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// IsValid reports whether the invitation can still be accepted: it must be
// pending and not expired. No other state is consulted.
func (i *Invitation) IsValid(now time.Time) bool {
	return i.Status == cnst.InvitationPending && !i.IsExpired(now)
}

// SubscriptionStatus mirrors the billing processor's subscription lifecycle.
type SubscriptionStatus string

const (
	SubscriptionActive            SubscriptionStatus = "active"
	SubscriptionTrialing          SubscriptionStatus = "trialing"
	SubscriptionPastDue           SubscriptionStatus = "past_due"
	SubscriptionCanceled          SubscriptionStatus = "canceled"
	SubscriptionUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionIncompleteExpired SubscriptionStatus = "incomplete_expired"
)

// Plan is a billing tier backed by an external price.
type Plan struct {
	ID            uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	Name          string          `json:"name" gorm:"type:varchar(100);not null"`
	Description   string          `json:"description" gorm:"type:text"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(10,2);not null"`
	Currency      string          `json:"currency" gorm:"type:varchar(3);not null;default:'usd'"`
	Interval      string          `json:"interval" gorm:"type:varchar(10);not null"` // day, week, month, year
	IntervalCount int             `json:"intervalCount" gorm:"not null;default:1"`
	StripePriceID string          `json:"stripePriceId" gorm:"type:varchar(255)"`
	IsActive      bool            `json:"isActive" gorm:"not null;default:true;index"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Subscription binds a user to a plan. The unique index on the external
// subscription id is the correctness backstop for concurrent webhook
// deliveries; the reconciler's existence checks are best-effort only.
type Subscription struct {
	ID                   uint               `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID               uint               `json:"userId" gorm:"not null;index"`
	PlanID               uint               `json:"planId" gorm:"not null"`
	StripeSubscriptionID string             `json:"stripeSubscriptionId" gorm:"type:varchar(255);uniqueIndex"`
	StripeCustomerID     string             `json:"stripeCustomerId" gorm:"type:varchar(255);index"`
	Status               SubscriptionStatus `json:"status" gorm:"type:varchar(32);not null;default:'incomplete';index"`
	CurrentPeriodStart   *time.Time         `json:"currentPeriodStart"`
	CurrentPeriodEnd     *time.Time         `json:"currentPeriodEnd" gorm:"index"`
	CancelAtPeriodEnd    bool               `json:"cancelAtPeriodEnd" gorm:"not null;default:false"`
	CanceledAt           *time.Time         `json:"canceledAt"`
	TrialStart           *time.Time         `json:"trialStart"`
	TrialEnd             *time.Time         `json:"trialEnd"`
	Metadata             string             `json:"metadata" gorm:"type:text"`
	CreatedAt            time.Time          `json:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt"`
}

// IsEntitled reports whether the subscription currently grants access.
func (s *Subscription) IsEntitled() bool {
	return s.Status == SubscriptionActive || s.Status == SubscriptionTrialing
}

// InvoiceStatus mirrors the billing processor's invoice states.
type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "draft"
	InvoiceOpen          InvoiceStatus = "open"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceUncollectible InvoiceStatus = "uncollectible"
	InvoiceVoid          InvoiceStatus = "void"
)

// Invoice records an external billing-system invoice. Amounts are stored in
// major units; the reconciler converts from the processor's minor units.
type Invoice struct {
	ID               uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID           uint            `json:"userId" gorm:"not null;index"`
	SubscriptionID   *uint           `json:"subscriptionId" gorm:"index"`
	StripeInvoiceID  string          `json:"stripeInvoiceId" gorm:"type:varchar(255);uniqueIndex;not null"`
	AmountDue        decimal.Decimal `json:"amountDue" gorm:"type:decimal(10,2);not null"`
	AmountPaid       decimal.Decimal `json:"amountPaid" gorm:"type:decimal(10,2);not null"`
	Currency         string          `json:"currency" gorm:"type:varchar(3);not null;default:'usd'"`
	Status           InvoiceStatus   `json:"status" gorm:"type:varchar(20);not null;default:'draft';index"`
	DueDate          *time.Time      `json:"dueDate"`
	PaidAt           *time.Time      `json:"paidAt"`
	InvoicePDFURL    string          `json:"invoicePdfUrl" gorm:"type:text"`
	HostedInvoiceURL string          `json:"hostedInvoiceUrl" gorm:"type:text"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// WebhookEvent is the idempotency ledger: one row per processed external
// event id. A row is written only after its handler succeeded.
type WebhookEvent struct {
	ID            uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	StripeEventID string    `json:"stripeEventId" gorm:"type:varchar(255);uniqueIndex;not null"`
	EventType     string    `json:"eventType" gorm:"type:varchar(100);not null;index"`
	Payload       string    `json:"payload" gorm:"type:text"`
	ProcessedAt   time.Time `json:"processedAt" gorm:"not null"`
	CreatedAt     time.Time `json:"createdAt"`
}
