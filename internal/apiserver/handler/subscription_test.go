package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/nimbuslab/crewbase/internal/apiserver/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) seedPlan(name, priceID string) *database.Plan {
	e.t.Helper()
	plan := &database.Plan{
		Name:          name,
		Amount:        decimal.NewFromInt(29),
		Interval:      "month",
		StripePriceID: priceID,
		IsActive:      true,
	}
	require.NoError(e.t, e.db.CreatePlan(context.Background(), plan))
	return plan
}

func TestListPlansIsPublic(t *testing.T) {
	e := newTestEnv(t)
	e.seedPlan("Pro", "price_pro")

	w := e.do(http.MethodGet, "/api/plans", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, jsonField(w, "@this").Array(), 1)
	assert.Equal(t, "Pro", jsonField(w, "0.name").String())
}

func TestCheckoutFlow(t *testing.T) {
	e := newTestEnv(t)
	plan := e.seedPlan("Pro", "price_pro")
	_, token := e.signup("buyer@example.com")

	w := e.do(http.MethodPost, "/api/subscriptions/checkout", token, map[string]uint{"planId": plan.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "https://checkout.example.com/cs_test", jsonField(w, "url").String())

	w = e.do(http.MethodPost, "/api/subscriptions/checkout", token, map[string]uint{"planId": 9999})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCurrentSubscriptionAndCancel(t *testing.T) {
	e := newTestEnv(t)
	plan := e.seedPlan("Pro", "price_pro")
	user, token := e.signup("buyer@example.com")

	w := e.do(http.MethodGet, "/api/subscriptions/current", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, e.db.CreateSubscription(context.Background(), &database.Subscription{
		UserID:               user.ID,
		PlanID:               plan.ID,
		StripeSubscriptionID: "sub_1",
		StripeCustomerID:     "cus_1",
		Status:               database.SubscriptionActive,
	}))

	w = e.do(http.MethodGet, "/api/subscriptions/current", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", jsonField(w, "status").String())

	w = e.do(http.MethodPost, "/api/subscriptions/cancel", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, jsonField(w, "cancelAtPeriodEnd").Bool())

	w = e.do(http.MethodPost, "/api/subscriptions/resume", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, jsonField(w, "cancelAtPeriodEnd").Bool())
}

func TestPortalRequiresBillingProfile(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.signup("buyer@example.com")

	w := e.do(http.MethodPost, "/api/subscriptions/portal", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListInvoices(t *testing.T) {
	e := newTestEnv(t)
	user, token := e.signup("buyer@example.com")

	require.NoError(t, e.db.CreateInvoice(context.Background(), &database.Invoice{
		UserID:          user.ID,
		StripeInvoiceID: "in_1",
		AmountDue:       decimal.NewFromInt(29),
		AmountPaid:      decimal.NewFromInt(29),
		Status:          database.InvoicePaid,
	}))

	w := e.do(http.MethodGet, "/api/invoices", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, jsonField(w, "@this").Array(), 1)
	assert.Equal(t, "paid", jsonField(w, "0.status").String())
}
