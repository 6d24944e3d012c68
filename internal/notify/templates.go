package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Template names, used for metrics labels and log fields.
const (
	TemplateWelcome       = "welcome"
	TemplateInvitation    = "invitation"
	TemplateReceipt       = "receipt"
	TemplatePaymentFailed = "payment_failed"
)

func WelcomeMessage(to, name string) *Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	b.WriteString("Your account is ready. Sign in to create your first team\n")
	b.WriteString("or accept a pending invitation.\n")
	return &Message{
		To:       to,
		Subject:  "Welcome aboard",
		Body:     b.String(),
		Template: TemplateWelcome,
	}
}

func InvitationMessage(to, inviterEmail, teamName, acceptURL string, expiresAt time.Time) *Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s invited you to join %s.\n\n", inviterEmail, teamName)
	fmt.Fprintf(&b, "Accept the invitation here:\n%s\n\n", acceptURL)
	fmt.Fprintf(&b, "The invitation expires on %s.\n", expiresAt.Format("Jan 2, 2006"))
	return &Message{
		To:       to,
		Subject:  fmt.Sprintf("You have been invited to %s", teamName),
		Body:     b.String(),
		Template: TemplateInvitation,
	}
}

func ReceiptMessage(to string, amount decimal.Decimal, currency string, paidAt time.Time) *Message {
	var b strings.Builder
	fmt.Fprintf(&b, "We received your payment of %s %s on %s.\n\n",
		amount.StringFixed(2), strings.ToUpper(currency), paidAt.Format("Jan 2, 2006"))
	b.WriteString("Thank you for your business.\n")
	return &Message{
		To:       to,
		Subject:  "Payment received",
		Body:     b.String(),
		Template: TemplateReceipt,
	}
}

func PaymentFailedMessage(to string, amount decimal.Decimal, currency string) *Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Your payment of %s %s could not be processed.\n\n",
		amount.StringFixed(2), strings.ToUpper(currency))
	b.WriteString("Please update your payment method to keep your subscription active.\n")
	return &Message{
		To:       to,
		Subject:  "Payment failed",
		Body:     b.String(),
		Template: TemplatePaymentFailed,
	}
}
