// Package payment talks to the payment provider.  Bookings only store the
// provider reference and the mapped status; card data never passes through
// this service.
package payment

import (
	"context"
	"errors"

	"github.com/iliyamo/showtime-booking/internal/config"
	"github.com/iliyamo/showtime-booking/internal/logger"
	"github.com/iliyamo/showtime-booking/internal/model"
)

// ErrUnknownRef is returned when the provider has no payment for a ref.
var ErrUnknownRef = errors.New("unknown payment reference")

// Intent is a payment started for a booking.
type Intent struct {
	Ref          string `json:"payment_ref"`
	ClientSecret string `json:"client_secret,omitempty"`
	RedirectURL  string `json:"redirect_url,omitempty"`
}

// Gateway is implemented by every payment provider.
type Gateway interface {
	// CreatePayment starts a payment for the booking total.
	CreatePayment(ctx context.Context, b *model.Booking) (*Intent, error)
	// Status maps the provider state of ref onto a booking payment status.
	Status(ctx context.Context, ref string) (model.PaymentStatus, error)
	// Refund returns amountCents of the payment identified by ref.
	Refund(ctx context.Context, ref string, amountCents uint32) error
	Name() string
}

// New returns the Stripe gateway when a secret key is configured and the
// mock gateway otherwise.
func New(cfg config.PaymentConfig) Gateway {
	if cfg.StripeKey == "" {
		logger.Warn("payment: STRIPE_SECRET_KEY not set, using mock gateway")
		return NewMockGateway(cfg.CheckoutURL)
	}
	return NewStripeGateway(cfg)
}

func redirectURL(base, ref string) string {
	if base == "" {
		return ""
	}
	return base + "?payment_ref=" + ref
}
