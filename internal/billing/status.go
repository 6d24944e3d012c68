// Package billing integrates the Stripe payment processor: outbound
// checkout and portal sessions, and inbound webhook reconciliation.
package billing

import (
	"github.com/nimbuslab/crewbase/internal/apiserver/database"
)

// MapSubscriptionStatus converts a processor status string to the local
// lifecycle. Unknown or empty statuses map to incomplete so a record is
// never left in a state the rest of the system does not understand.
func MapSubscriptionStatus(s string) database.SubscriptionStatus {
	switch s {
	case "active":
		return database.SubscriptionActive
	case "trialing":
		return database.SubscriptionTrialing
	case "past_due":
		return database.SubscriptionPastDue
	case "canceled":
		return database.SubscriptionCanceled
	case "unpaid":
		return database.SubscriptionUnpaid
	case "incomplete_expired":
		return database.SubscriptionIncompleteExpired
	default:
		return database.SubscriptionIncomplete
	}
}

// MapInvoiceStatus converts a processor invoice status, defaulting to open.
func MapInvoiceStatus(s string) database.InvoiceStatus {
	switch s {
	case "draft":
		return database.InvoiceDraft
	case "paid":
		return database.InvoicePaid
	case "uncollectible":
		return database.InvoiceUncollectible
	case "void":
		return database.InvoiceVoid
	default:
		return database.InvoiceOpen
	}
}
