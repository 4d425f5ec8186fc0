package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/iliyamo/showtime-booking/internal/model"
)

const mockPrefix = "pi_mock_"

// MockGateway settles every payment immediately.  It is used in
// development and when no provider key is configured.
type MockGateway struct {
	checkoutURL string

	mu       sync.Mutex
	refunded map[string]uint32
}

// NewMockGateway returns a mock gateway that links to checkoutURL.
func NewMockGateway(checkoutURL string) *MockGateway {
	return &MockGateway{checkoutURL: checkoutURL, refunded: make(map[string]uint32)}
}

func (g *MockGateway) Name() string { return "mock" }

func (g *MockGateway) CreatePayment(_ context.Context, b *model.Booking) (*Intent, error) {
	if b == nil || b.TotalCents == 0 {
		return nil, fmt.Errorf("mock: nothing to charge")
	}
	ref := mockPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	return &Intent{
		Ref:          ref,
		ClientSecret: ref + "_secret",
		RedirectURL:  redirectURL(g.checkoutURL, ref),
	}, nil
}

func (g *MockGateway) Status(_ context.Context, ref string) (model.PaymentStatus, error) {
	if !strings.HasPrefix(ref, mockPrefix) {
		return "", ErrUnknownRef
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.refunded[ref]; ok {
		return model.PaymentRefunded, nil
	}
	return model.PaymentPaid, nil
}

func (g *MockGateway) Refund(_ context.Context, ref string, amountCents uint32) error {
	if !strings.HasPrefix(ref, mockPrefix) {
		return ErrUnknownRef
	}
	g.mu.Lock()
	g.refunded[ref] += amountCents
	g.mu.Unlock()
	return nil
}

// Refunded returns the total refunded for ref.
func (g *MockGateway) Refunded(ref string) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunded[ref]
}
