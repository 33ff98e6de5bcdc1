// internal/services/gateway_service.go
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/medifund/lending-backend/internal/config"
)

// ErrPaymentNotConfirmed is returned when the payment-confirmation source
// does not report the referenced payment as succeeded.
var ErrPaymentNotConfirmed = errors.New("payment not confirmed by gateway")

// GatewayService is the payment-confirmation source. The engine never
// initiates charges; it only checks that an external transaction reference
// corresponds to a settled payment before applying it.
type GatewayService struct {
	cfg *config.Config
}

func NewGatewayService(cfg *config.Config) *GatewayService {
	if cfg.Gateway.StripeSecretKey != "" {
		stripe.Key = cfg.Gateway.StripeSecretKey
	}

	return &GatewayService{cfg: cfg}
}

// VerifyPayment resolves an external transaction reference to a confirmed
// payment. Stripe payment intents are looked up remotely; other references
// are accepted as-is when no gateway is configured (development mode).
func (s *GatewayService) VerifyPayment(reference string) error {
	if reference == "" {
		return fmt.Errorf("%w: empty transaction reference", ErrPaymentNotConfirmed)
	}

	if s.cfg.Gateway.StripeSecretKey == "" || !strings.HasPrefix(reference, "pi_") {
		return nil
	}

	pi, err := paymentintent.Get(reference, nil)
	if err != nil {
		return fmt.Errorf("failed to look up payment intent: %w", err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return fmt.Errorf("%w: intent status %s", ErrPaymentNotConfirmed, pi.Status)
	}

	return nil
}
