package billing

import (
	"context"
	"errors"
	"strconv"

	"github.com/nimbuslab/crewbase/internal/apiserver/database"
	"github.com/nimbuslab/crewbase/internal/common/errorx"
	"go.uber.org/zap"
)

// Service is the user-facing side of billing: plan listing, checkout and
// portal redirects, and subscription lifecycle actions.
type Service struct {
	db      database.Database
	gateway Gateway
	logger  *zap.Logger
}

func NewService(db database.Database, gateway Gateway, logger *zap.Logger) *Service {
	return &Service{
		db:      db,
		gateway: gateway,
		logger:  logger.Named("billing"),
	}
}

func (s *Service) ListPlans(ctx context.Context) ([]*database.Plan, error) {
	return s.db.ListPlans(ctx, true)
}

// CurrentSubscription returns the user's entitling subscription, or
// errorx.ErrNotFound when there is none.
func (s *Service) CurrentSubscription(ctx context.Context, userID uint) (*database.Subscription, error) {
	sub, err := s.db.GetCurrentSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, errorx.ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}

// CreateCheckout starts a hosted checkout for the plan and returns the
// redirect URL. The user id rides along as the client reference so the
// completed-checkout event can attribute the subscription.
func (s *Service) CreateCheckout(ctx context.Context, user *database.User, planID uint) (string, error) {
	plan, err := s.db.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return "", errorx.ErrNotFound.WithMessage("plan not found")
		}
		return "", err
	}
	if !plan.IsActive || plan.StripePriceID == "" {
		return "", errorx.ErrInvalidInput.WithMessage("plan is not available for purchase")
	}

	if sub, err := s.db.GetCurrentSubscription(ctx, user.ID); err == nil && sub.IsEntitled() {
		return "", errorx.ErrConflict.WithMessage("an active subscription already exists")
	} else if err != nil && !errors.Is(err, database.ErrNotFound) {
		return "", err
	}

	params := &CheckoutParams{
		PriceID:           plan.StripePriceID,
		CustomerEmail:     user.Email,
		ClientReferenceID: strconv.FormatUint(uint64(user.ID), 10),
		Metadata:          map[string]string{"plan_id": strconv.FormatUint(uint64(plan.ID), 10)},
	}
	if customerID := s.customerID(ctx, user.ID); customerID != "" {
		params.CustomerID = customerID
		params.CustomerEmail = ""
	}

	url, err := s.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		s.logger.Error("checkout session creation failed", zap.Uint("user_id", user.ID), zap.Error(err))
		return "", errorx.ErrExternalService
	}
	return url, nil
}

// CreatePortal returns a billing portal URL for the user's customer record.
func (s *Service) CreatePortal(ctx context.Context, userID uint) (string, error) {
	customerID := s.customerID(ctx, userID)
	if customerID == "" {
		return "", errorx.ErrNotFound.WithMessage("no billing profile for this account")
	}
	url, err := s.gateway.CreatePortalSession(ctx, customerID)
	if err != nil {
		s.logger.Error("portal session creation failed", zap.Uint("user_id", userID), zap.Error(err))
		return "", errorx.ErrExternalService
	}
	return url, nil
}

// CancelAtPeriodEnd flags the user's current subscription to end at the
// period boundary. The local record is updated immediately; the webhook
// stream confirms it later.
func (s *Service) CancelAtPeriodEnd(ctx context.Context, userID uint) (*database.Subscription, error) {
	sub, err := s.db.GetCurrentSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, errorx.ErrNotFound.WithMessage("no active subscription")
		}
		return nil, err
	}

	if _, err := s.gateway.CancelAtPeriodEnd(ctx, sub.StripeSubscriptionID); err != nil {
		s.logger.Error("cancel request failed",
			zap.String("subscription", sub.StripeSubscriptionID),
			zap.Error(err))
		return nil, errorx.ErrExternalService
	}

	sub.CancelAtPeriodEnd = true
	if err := s.db.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Resume clears a pending cancelation before the period ends.
func (s *Service) Resume(ctx context.Context, userID uint) (*database.Subscription, error) {
	sub, err := s.db.GetCurrentSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, errorx.ErrNotFound.WithMessage("no active subscription")
		}
		return nil, err
	}
	if !sub.CancelAtPeriodEnd {
		return nil, errorx.ErrInvalidInput.WithMessage("subscription is not scheduled for cancelation")
	}

	if _, err := s.gateway.ResumeSubscription(ctx, sub.StripeSubscriptionID); err != nil {
		s.logger.Error("resume request failed",
			zap.String("subscription", sub.StripeSubscriptionID),
			zap.Error(err))
		return nil, errorx.ErrExternalService
	}

	sub.CancelAtPeriodEnd = false
	if err := s.db.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) ListInvoices(ctx context.Context, userID uint, limit int) ([]*database.Invoice, error) {
	return s.db.ListUserInvoices(ctx, userID, limit)
}

// customerID returns the user's external customer reference, if any
// subscription ever recorded one.
func (s *Service) customerID(ctx context.Context, userID uint) string {
	sub, err := s.db.GetCurrentSubscription(ctx, userID)
	if err == nil && sub.StripeCustomerID != "" {
		return sub.StripeCustomerID
	}
	return ""
}
