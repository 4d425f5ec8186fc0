package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"

	"github.com/iliyamo/showtime-booking/internal/config"
	"github.com/iliyamo/showtime-booking/internal/model"
)

// StripeGateway implements Gateway with Stripe PaymentIntents.
type StripeGateway struct {
	currency    string
	checkoutURL string

	newIntent func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	getIntent func(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	newRefund func(*stripe.RefundParams) (*stripe.Refund, error)
}

// NewStripeGateway sets the global Stripe key and returns the gateway.
func NewStripeGateway(cfg config.PaymentConfig) *StripeGateway {
	stripe.Key = cfg.StripeKey
	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = "usd"
	}
	return &StripeGateway{
		currency:    currency,
		checkoutURL: cfg.CheckoutURL,
		newIntent:   paymentintent.New,
		getIntent:   paymentintent.Get,
		newRefund:   refund.New,
	}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) CreatePayment(ctx context.Context, b *model.Booking) (*Intent, error) {
	if b == nil || b.TotalCents == 0 {
		return nil, fmt.Errorf("stripe: nothing to charge")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(b.TotalCents)),
		Currency: stripe.String(g.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(fmt.Sprintf("%s booking %s", b.Type, b.ID)),
		Metadata: map[string]string{
			"booking_id": b.ID,
			"user_id":    b.UserID,
		},
	}
	if b.UserEmail != "" {
		params.ReceiptEmail = stripe.String(b.UserEmail)
	}

	pi, err := g.newIntent(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return &Intent{
		Ref:          pi.ID,
		ClientSecret: pi.ClientSecret,
		RedirectURL:  redirectURL(g.checkoutURL, pi.ID),
	}, nil
}

func (g *StripeGateway) Status(ctx context.Context, ref string) (model.PaymentStatus, error) {
	if ref == "" {
		return "", ErrUnknownRef
	}
	pi, err := g.getIntent(ref, nil)
	if err != nil {
		return "", fmt.Errorf("stripe: get payment intent: %w", err)
	}
	return mapIntentStatus(pi), nil
}

func (g *StripeGateway) Refund(ctx context.Context, ref string, amountCents uint32) error {
	if ref == "" {
		return ErrUnknownRef
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(ref),
		Amount:        stripe.Int64(int64(amountCents)),
	}
	params.SetIdempotencyKey("refund-" + ref)
	if _, err := g.newRefund(params); err != nil {
		return fmt.Errorf("stripe: create refund: %w", err)
	}
	return nil
}

// mapIntentStatus folds Stripe's intent lifecycle onto booking payment
// states.  A fresh intent also sits in requires_payment_method, so that
// state only counts as failed once a payment attempt was declined.
func mapIntentStatus(pi *stripe.PaymentIntent) model.PaymentStatus {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return model.PaymentPaid
	case stripe.PaymentIntentStatusCanceled:
		return model.PaymentCancelled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return model.PaymentFailed
		}
		return model.PaymentPending
	default:
		return model.PaymentPending
	}
}
