// internal/services/offer_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medifund/lending-backend/internal/models"
)

func TestBuildOffersOnePerProvider(t *testing.T) {
	validUntil := time.Now().AddDate(0, 0, 7)

	offers, err := BuildOffers(defaultProviders, uuid.New(),
		decimal.NewFromInt(150000), decimal.NewFromInt(75000), 24, nil, validUntil)
	require.NoError(t, err)
	require.Len(t, offers, len(defaultProviders))

	for _, offer := range offers {
		assert.Equal(t, models.OfferStatusActive, offer.Status)
		assert.Equal(t, validUntil, offer.ValidUntil)
		assert.True(t, offer.EmiAmount.GreaterThan(decimal.Zero))
		// Income is ample here, so every provider offers the full request.
		assert.True(t, offer.OfferedAmount.Equal(decimal.NewFromInt(150000)),
			"%s offered %s", offer.Provider, offer.OfferedAmount)
	}
}

func TestBuildOffersAffordabilityCap(t *testing.T) {
	// Income of 5000 caps Unity Trust Bank (10x multiplier) at 50000 even
	// though 150000 was requested.
	offers, err := BuildOffers(defaultProviders, uuid.New(),
		decimal.NewFromInt(150000), decimal.NewFromInt(5000), 24, nil, time.Now().AddDate(0, 0, 7))
	require.NoError(t, err)

	for _, offer := range offers {
		assert.True(t, offer.OfferedAmount.LessThanOrEqual(decimal.NewFromInt(150000)))
		if offer.Provider == "Unity Trust Bank" {
			assert.True(t, offer.OfferedAmount.Equal(decimal.NewFromInt(50000)),
				"got %s", offer.OfferedAmount)
		}
	}
}

func TestBuildOffersKeyRateOverridesBaseRate(t *testing.T) {
	keyRate := decimal.NewFromFloat(8.0)

	offers, err := BuildOffers(defaultProviders, uuid.New(),
		decimal.NewFromInt(100000), decimal.NewFromInt(50000), 12, &keyRate, time.Now().AddDate(0, 0, 7))
	require.NoError(t, err)

	for i, offer := range offers {
		want := keyRate.Add(defaultProviders[i].RateMargin)
		assert.True(t, offer.InterestRate.Equal(want),
			"%s rate %s, want %s", offer.Provider, offer.InterestRate, want)
	}
}

func TestBuildOffersClampsTenure(t *testing.T) {
	offers, err := BuildOffers(defaultProviders, uuid.New(),
		decimal.NewFromInt(100000), decimal.NewFromInt(50000), 96, nil, time.Now().AddDate(0, 0, 7))
	require.NoError(t, err)

	for i, offer := range offers {
		assert.LessOrEqual(t, offer.Tenure, defaultProviders[i].MaxTenureMonths,
			"%s tenure %d", offer.Provider, offer.Tenure)
	}
}

func TestBuildOffersZeroIncomeProducesNoOffers(t *testing.T) {
	offers, err := BuildOffers(defaultProviders, uuid.New(),
		decimal.NewFromInt(100000), decimal.Zero, 12, nil, time.Now().AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Empty(t, offers)
}

func TestBuildOffersProcessingFee(t *testing.T) {
	offers, err := BuildOffers(defaultProviders[:1], uuid.New(),
		decimal.NewFromInt(100000), decimal.NewFromInt(50000), 12, nil, time.Now().AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, offers, 1)

	// MediCare Capital charges 1% of the offered amount.
	assert.True(t, offers[0].ProcessingFee.Equal(decimal.NewFromInt(1000)),
		"got %s", offers[0].ProcessingFee)
}
