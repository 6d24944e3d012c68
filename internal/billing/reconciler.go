package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nimbuslab/crewbase/internal/apiserver/database"
	"github.com/nimbuslab/crewbase/internal/common/errorx"
	"github.com/nimbuslab/crewbase/internal/notify"
	"github.com/nimbuslab/crewbase/pkg/metrics"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Reconciler applies processor webhook events to local billing state.
// Every event is processed exactly once: a ledger keyed on the event id
// short-circuits redeliveries, and the ledger row is written only after
// the handler succeeds, so a failed event is retried on the next delivery.
type Reconciler struct {
	db       database.Database
	gateway  Gateway
	notifier *notify.Worker
	logger   *zap.Logger
	metrics  *metrics.Metrics
	secret   string
}

func NewReconciler(db database.Database, gateway Gateway, webhookSecret string, notifier *notify.Worker, m *metrics.Metrics, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		db:       db,
		gateway:  gateway,
		notifier: notifier,
		logger:   logger.Named("reconciler"),
		metrics:  m,
		secret:   webhookSecret,
	}
}

// HandleWebhook verifies the signature and processes the event.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, r.secret)
	if err != nil {
		r.logger.Warn("webhook signature verification failed", zap.Error(err))
		return errorx.ErrWebhookSignature
	}
	if event.ID == "" {
		return errorx.ErrWebhookPayload
	}
	return r.ProcessEvent(ctx, event.ID, string(event.Type), event.Data.Raw)
}

// ProcessEvent dispatches one already-verified event. Each event type is
// handled independently of delivery order: handlers look up current local
// state instead of assuming earlier events arrived first.
func (r *Reconciler) ProcessEvent(ctx context.Context, eventID, eventType string, data []byte) error {
	start := time.Now()

	seen, err := r.db.WebhookEventExists(ctx, eventID)
	if err != nil {
		return fmt.Errorf("check webhook ledger: %w", err)
	}
	if seen {
		r.logger.Debug("skipping already processed event",
			zap.String("event_id", eventID),
			zap.String("event_type", eventType))
		r.metrics.WebhookEventDone(eventType, "duplicate", start)
		return nil
	}

	outcome := "processed"
	switch eventType {
	case "checkout.session.completed":
		err = r.handleCheckoutCompleted(ctx, data)
	case "customer.subscription.created", "customer.subscription.updated":
		err = r.handleSubscriptionChanged(ctx, data)
	case "customer.subscription.deleted":
		err = r.handleSubscriptionDeleted(ctx, data)
	case "invoice.paid", "invoice.payment_succeeded":
		err = r.handleInvoicePaid(ctx, data)
	case "invoice.payment_failed":
		err = r.handleInvoicePaymentFailed(ctx, data)
	default:
		outcome = "ignored"
	}
	if err != nil {
		r.metrics.WebhookEventDone(eventType, "failed", start)
		return fmt.Errorf("process %s: %w", eventType, err)
	}

	if err := r.db.RecordWebhookEvent(ctx, &database.WebhookEvent{
		StripeEventID: eventID,
		EventType:     eventType,
		Payload:       string(data),
	}); err != nil {
		// a concurrent delivery beat us to the ledger; the work is done
		if errors.Is(err, database.ErrDuplicate) {
			r.metrics.WebhookEventDone(eventType, "duplicate", start)
			return nil
		}
		r.metrics.WebhookEventDone(eventType, "failed", start)
		return fmt.Errorf("record webhook event: %w", err)
	}

	r.metrics.WebhookEventDone(eventType, outcome, start)
	return nil
}

// handleCheckoutCompleted creates the local subscription for a finished
// checkout. The session payload carries only references, so period and
// trial fields are enriched from the processor when it answers; a failed
// read never drops the checkout.
func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, data []byte) error {
	doc := gjson.ParseBytes(data)
	subID := doc.Get("subscription").String()
	if subID == "" {
		// not a subscription checkout
		return nil
	}

	userID := parseUint(doc.Get("client_reference_id").String())
	if userID == 0 {
		r.logger.Warn("checkout session without user reference", zap.String("subscription", subID))
		return nil
	}
	planID := parseUint(doc.Get("metadata.plan_id").String())
	if planID == 0 {
		r.logger.Warn("checkout session without plan metadata",
			zap.Uint("user_id", userID),
			zap.String("subscription", subID))
		return nil
	}

	if _, err := r.db.GetSubscriptionByStripeID(ctx, subID); err == nil {
		// a subscription.created event already materialized it
		return nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}

	sub := &database.Subscription{
		UserID:               userID,
		PlanID:               planID,
		StripeSubscriptionID: subID,
		StripeCustomerID:     doc.Get("customer").String(),
		Status:               database.SubscriptionActive,
	}
	if remote, err := r.gateway.GetSubscription(ctx, subID); err != nil {
		// the next subscription event fills in what the session lacks
		r.logger.Warn("subscription fetch failed, storing checkout state only",
			zap.String("subscription", subID),
			zap.Error(err))
	} else {
		sub.Status = MapSubscriptionStatus(string(remote.Status))
		sub.CancelAtPeriodEnd = remote.CancelAtPeriodEnd
		sub.CurrentPeriodStart = unixTime(remote.CurrentPeriodStart)
		sub.CurrentPeriodEnd = unixTime(remote.CurrentPeriodEnd)
		sub.TrialStart = unixTime(remote.TrialStart)
		sub.TrialEnd = unixTime(remote.TrialEnd)
	}
	if err := r.db.CreateSubscription(ctx, sub); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil
		}
		return err
	}
	r.logger.Info("subscription created from checkout",
		zap.Uint("user_id", userID),
		zap.String("subscription", subID))
	return nil
}

// handleSubscriptionChanged updates the local record to mirror the
// processor's view. An update for a subscription that was never created
// locally is dropped rather than fabricated from partial data.
func (r *Reconciler) handleSubscriptionChanged(ctx context.Context, data []byte) error {
	doc := gjson.ParseBytes(data)
	subID := doc.Get("id").String()
	if subID == "" {
		return errorx.ErrWebhookPayload
	}

	sub, err := r.db.GetSubscriptionByStripeID(ctx, subID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			r.logger.Warn("update for unknown subscription", zap.String("subscription", subID))
			return nil
		}
		return err
	}

	sub.Status = MapSubscriptionStatus(doc.Get("status").String())
	sub.CancelAtPeriodEnd = doc.Get("cancel_at_period_end").Bool()
	sub.CurrentPeriodStart = unixTime(doc.Get("current_period_start").Int())
	sub.CurrentPeriodEnd = unixTime(doc.Get("current_period_end").Int())
	sub.TrialStart = unixTime(doc.Get("trial_start").Int())
	sub.TrialEnd = unixTime(doc.Get("trial_end").Int())
	sub.CanceledAt = unixTime(doc.Get("canceled_at").Int())
	if cust := doc.Get("customer").String(); cust != "" {
		sub.StripeCustomerID = cust
	}

	return r.db.UpdateSubscription(ctx, sub)
}

func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, data []byte) error {
	doc := gjson.ParseBytes(data)
	subID := doc.Get("id").String()
	if subID == "" {
		return errorx.ErrWebhookPayload
	}

	sub, err := r.db.GetSubscriptionByStripeID(ctx, subID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			r.logger.Warn("deletion of unknown subscription", zap.String("subscription", subID))
			return nil
		}
		return err
	}

	sub.Status = database.SubscriptionCanceled
	sub.CancelAtPeriodEnd = false
	if at := unixTime(doc.Get("canceled_at").Int()); at != nil {
		sub.CanceledAt = at
	} else {
		now := time.Now()
		sub.CanceledAt = &now
	}
	if err := r.db.UpdateSubscription(ctx, sub); err != nil {
		return err
	}
	r.logger.Info("subscription canceled", zap.String("subscription", subID))
	return nil
}

func (r *Reconciler) handleInvoicePaid(ctx context.Context, data []byte) error {
	doc := gjson.ParseBytes(data)
	invoiceID := doc.Get("id").String()
	if invoiceID == "" {
		return errorx.ErrWebhookPayload
	}

	userID, subRef := r.resolveInvoiceUser(ctx, doc)
	if userID == 0 {
		r.logger.Warn("invoice for unknown customer", zap.String("invoice", invoiceID))
		return nil
	}

	paidAt := unixTime(doc.Get("status_transitions.paid_at").Int())
	if paidAt == nil {
		now := time.Now()
		paidAt = &now
	}

	if err := r.upsertInvoice(ctx, doc, &database.Invoice{
		UserID:          userID,
		SubscriptionID:  subRef,
		StripeInvoiceID: invoiceID,
		Status:          database.InvoicePaid,
		PaidAt:          paidAt,
	}); err != nil {
		return err
	}

	r.mailInvoiceOwner(ctx, userID, func(email string) *notify.Message {
		return notify.ReceiptMessage(email, minorUnits(doc.Get("amount_paid").Int()), doc.Get("currency").String(), *paidAt)
	})
	return nil
}

// handleInvoicePaymentFailed records the failed attempt. After the third
// attempt the processor stops retrying, so the invoice is marked
// uncollectible.
func (r *Reconciler) handleInvoicePaymentFailed(ctx context.Context, data []byte) error {
	doc := gjson.ParseBytes(data)
	invoiceID := doc.Get("id").String()
	if invoiceID == "" {
		return errorx.ErrWebhookPayload
	}

	userID, subRef := r.resolveInvoiceUser(ctx, doc)
	if userID == 0 {
		r.logger.Warn("invoice for unknown customer", zap.String("invoice", invoiceID))
		return nil
	}

	status := MapInvoiceStatus(doc.Get("status").String())
	if doc.Get("attempt_count").Int() >= 3 {
		status = database.InvoiceUncollectible
	}

	if err := r.upsertInvoice(ctx, doc, &database.Invoice{
		UserID:          userID,
		SubscriptionID:  subRef,
		StripeInvoiceID: invoiceID,
		Status:          status,
	}); err != nil {
		return err
	}

	r.mailInvoiceOwner(ctx, userID, func(email string) *notify.Message {
		return notify.PaymentFailedMessage(email, minorUnits(doc.Get("amount_due").Int()), doc.Get("currency").String())
	})
	return nil
}

// upsertInvoice creates or updates the invoice keyed on its external id.
func (r *Reconciler) upsertInvoice(ctx context.Context, doc gjson.Result, next *database.Invoice) error {
	next.AmountDue = minorUnits(doc.Get("amount_due").Int())
	next.AmountPaid = minorUnits(doc.Get("amount_paid").Int())
	if cur := doc.Get("currency").String(); cur != "" {
		next.Currency = cur
	}
	next.HostedInvoiceURL = doc.Get("hosted_invoice_url").String()
	next.InvoicePDFURL = doc.Get("invoice_pdf").String()
	next.DueDate = unixTime(doc.Get("due_date").Int())

	existing, err := r.db.GetInvoiceByStripeID(ctx, next.StripeInvoiceID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			if cerr := r.db.CreateInvoice(ctx, next); cerr != nil && !errors.Is(cerr, database.ErrDuplicate) {
				return cerr
			}
			return nil
		}
		return err
	}

	existing.Status = next.Status
	existing.AmountDue = next.AmountDue
	existing.AmountPaid = next.AmountPaid
	existing.HostedInvoiceURL = next.HostedInvoiceURL
	existing.InvoicePDFURL = next.InvoicePDFURL
	existing.DueDate = next.DueDate
	if next.PaidAt != nil {
		existing.PaidAt = next.PaidAt
	}
	if next.SubscriptionID != nil {
		existing.SubscriptionID = next.SubscriptionID
	}
	return r.db.UpdateInvoice(ctx, existing)
}

// mailInvoiceOwner enqueues a billing notification for the invoice owner.
// Mail is sent only after the invoice write succeeds and never fails the
// event.
func (r *Reconciler) mailInvoiceOwner(ctx context.Context, userID uint, build func(email string) *notify.Message) {
	user, err := r.db.GetUserByID(ctx, userID)
	if err != nil {
		r.logger.Warn("invoice mail skipped, user lookup failed",
			zap.Uint("user_id", userID),
			zap.Error(err))
		return
	}
	r.notifier.Enqueue(build(user.Email))
}

// resolveInvoiceUser finds the local owner of an invoice: first through
// its subscription, then through the newest subscription of the customer.
func (r *Reconciler) resolveInvoiceUser(ctx context.Context, doc gjson.Result) (uint, *uint) {
	if subID := doc.Get("subscription").String(); subID != "" {
		sub, err := r.db.GetSubscriptionByStripeID(ctx, subID)
		if err == nil {
			return sub.UserID, &sub.ID
		}
		if !errors.Is(err, database.ErrNotFound) {
			r.logger.Warn("subscription lookup failed", zap.String("subscription", subID), zap.Error(err))
		}
	}
	if custID := doc.Get("customer").String(); custID != "" {
		sub, err := r.db.GetLatestSubscriptionByCustomer(ctx, custID)
		if err == nil {
			return sub.UserID, &sub.ID
		}
		if !errors.Is(err, database.ErrNotFound) {
			r.logger.Warn("customer lookup failed", zap.String("customer", custID), zap.Error(err))
		}
	}
	return 0, nil
}

// minorUnits converts a processor amount in cents to a decimal amount.
func minorUnits(v int64) decimal.Decimal {
	return decimal.NewFromInt(v).Div(decimal.NewFromInt(100))
}

func unixTime(v int64) *time.Time {
	if v == 0 {
		return nil
	}
	t := time.Unix(v, 0).UTC()
	return &t
}

func parseUint(s string) uint {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return uint(v)
}
