package billing

import (
	"context"
	"fmt"

	"github.com/nimbuslab/crewbase/internal/common/config"
	"github.com/stripe/stripe-go/v76"
	billingportalsession "github.com/stripe/stripe-go/v76/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/subscription"
)

// CheckoutParams describes one hosted checkout session.
type CheckoutParams struct {
	PriceID           string
	CustomerID        string
	CustomerEmail     string
	ClientReferenceID string
	Metadata          map[string]string
}

// Gateway is the outbound surface of the payment processor. The webhook
// reconciler and the subscription service both depend on it, which keeps
// the network out of their tests.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, p *CheckoutParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	ResumeSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
}

type stripeGateway struct {
	cfg *config.StripeConfig
}

// NewGateway creates the Stripe-backed gateway and installs the API key.
func NewGateway(cfg *config.StripeConfig) (Gateway, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is not configured")
	}
	stripe.Key = cfg.SecretKey
	return &stripeGateway{cfg: cfg}, nil
}

func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, p *CheckoutParams) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(g.cfg.SuccessURL),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		ClientReferenceID: stripe.String(p.ClientReferenceID),
	}
	params.Context = ctx
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	} else if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (g *stripeGateway) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(g.cfg.PortalURL),
	}
	params.Context = ctx

	sess, err := billingportalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return sess.URL, nil
}

func (g *stripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve subscription: %w", err)
	}
	return sub, nil
}

func (g *stripeGateway) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx
	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}
	return sub, nil
}

func (g *stripeGateway) ResumeSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
	}
	params.Context = ctx
	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to resume subscription: %w", err)
	}
	return sub, nil
}
