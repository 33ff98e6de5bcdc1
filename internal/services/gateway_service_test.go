// internal/services/gateway_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/medifund/lending-backend/internal/config"
)

func TestVerifyPaymentRejectsEmptyReference(t *testing.T) {
	gateway := NewGatewayService(&config.Config{})

	err := gateway.VerifyPayment("")
	assert.ErrorIs(t, err, ErrPaymentNotConfirmed)
}

func TestVerifyPaymentAcceptsReferenceWithoutGateway(t *testing.T) {
	// No Stripe key configured: non-intent references pass through so
	// bank-transfer style payments still work in development.
	gateway := NewGatewayService(&config.Config{})

	assert.NoError(t, gateway.VerifyPayment("bank_txn_20260831_001"))
}
