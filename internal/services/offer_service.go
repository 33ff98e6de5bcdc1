// internal/services/offer_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/medifund/lending-backend/internal/amortization"
	"github.com/medifund/lending-backend/internal/config"
	"github.com/medifund/lending-backend/internal/integrations/ratefeed"
	"github.com/medifund/lending-backend/internal/models"
)

// ProviderProfile describes one lending partner's pricing. The offered
// amount is always capped by the affordability gate
// min(requestedAmount, IncomeMultiplier * monthlyIncome).
type ProviderProfile struct {
	Name             string
	BaseRate         decimal.Decimal // annual percent, used when the rate feed is unavailable
	RateMargin       decimal.Decimal // added on top of the key rate
	FeePercent       decimal.Decimal // of the offered amount
	IncomeMultiplier decimal.Decimal
	MaxTenureMonths  int
}

var defaultProviders = []ProviderProfile{
	{
		Name:             "MediCare Capital",
		BaseRate:         decimal.NewFromFloat(10.5),
		RateMargin:       decimal.NewFromFloat(3.0),
		FeePercent:       decimal.NewFromFloat(1.0),
		IncomeMultiplier: decimal.NewFromInt(12),
		MaxTenureMonths:  60,
	},
	{
		Name:             "HealthFirst Finance",
		BaseRate:         decimal.NewFromFloat(11.25),
		RateMargin:       decimal.NewFromFloat(3.75),
		FeePercent:       decimal.NewFromFloat(0.5),
		IncomeMultiplier: decimal.NewFromInt(18),
		MaxTenureMonths:  48,
	},
	{
		Name:             "Unity Trust Bank",
		BaseRate:         decimal.NewFromFloat(9.75),
		RateMargin:       decimal.NewFromFloat(2.25),
		FeePercent:       decimal.NewFromFloat(2.0),
		IncomeMultiplier: decimal.NewFromInt(10),
		MaxTenureMonths:  84,
	},
}

type OfferService struct {
	db        *gorm.DB
	cfg       *config.Config
	rateFeed  *ratefeed.Client
	providers []ProviderProfile
}

func NewOfferService(db *gorm.DB, cfg *config.Config, feed *ratefeed.Client) *OfferService {
	return &OfferService{
		db:        db,
		cfg:       cfg,
		rateFeed:  feed,
		providers: defaultProviders,
	}
}

// BuildOffers prices one offer per provider. Pure: persistence is the
// caller's concern. keyRate may be nil when the rate feed is unavailable, in
// which case each provider's configured base rate applies.
func BuildOffers(providers []ProviderProfile, loanID uuid.UUID, requested, monthlyIncome decimal.Decimal,
	tenure int, keyRate *decimal.Decimal, validUntil time.Time) ([]models.LoanOffer, error) {

	offers := make([]models.LoanOffer, 0, len(providers))
	for _, p := range providers {
		rate := p.BaseRate
		if keyRate != nil {
			rate = keyRate.Add(p.RateMargin)
		}

		// Affordability gate: never offer above the requested amount or the
		// provider's income multiple.
		offered := requested
		affordable := monthlyIncome.Mul(p.IncomeMultiplier)
		if affordable.LessThan(offered) {
			offered = affordable
		}
		if offered.LessThanOrEqual(decimal.Zero) {
			continue
		}
		offered = offered.Round(2)

		offerTenure := tenure
		if p.MaxTenureMonths > 0 && offerTenure > p.MaxTenureMonths {
			offerTenure = p.MaxTenureMonths
		}

		emi, err := amortization.EMI(offered, rate, offerTenure)
		if err != nil {
			return nil, fmt.Errorf("failed to price offer from %s: %w", p.Name, err)
		}

		offers = append(offers, models.LoanOffer{
			LoanID:        loanID,
			Provider:      p.Name,
			OfferedAmount: offered,
			InterestRate:  rate,
			Tenure:        offerTenure,
			EmiAmount:     emi,
			ProcessingFee: offered.Mul(p.FeePercent).Div(decimal.NewFromInt(100)).Round(2),
			ValidUntil:    validUntil,
			Status:        models.OfferStatusActive,
		})
	}
	return offers, nil
}

// GenerateOffers prices and persists the competing offer set for a freshly
// submitted application. It does not mutate the application itself.
func (s *OfferService) GenerateOffers(loan *models.LoanApplication) ([]models.LoanOffer, error) {
	var keyRate *decimal.Decimal
	if s.cfg.RateFeed.Enabled && s.rateFeed != nil {
		if rate, err := s.rateFeed.GetKeyRate(); err != nil {
			logrus.WithError(err).Warn("Rate feed unavailable, using provider base rates")
		} else {
			d := decimal.NewFromFloat(rate)
			keyRate = &d
		}
	}

	validUntil := time.Now().AddDate(0, 0, s.cfg.Loan.OfferValidityDays)
	offers, err := BuildOffers(s.providers, loan.ID, loan.RequestedAmount, loan.MonthlyIncome,
		loan.RequestedTenure, keyRate, validUntil)
	if err != nil {
		return nil, err
	}
	if len(offers) == 0 {
		return nil, fmt.Errorf("%w: no provider can make an offer for this income", models.ErrInvalidAmount)
	}

	if err := s.db.Create(&offers).Error; err != nil {
		return nil, fmt.Errorf("failed to persist offers: %w", err)
	}

	return offers, nil
}

// GetOffers returns the offer set for a loan, most recent first.
func (s *OfferService) GetOffers(loanID uuid.UUID) ([]models.LoanOffer, error) {
	var offers []models.LoanOffer
	if err := s.db.Where("loan_id = ?", loanID).Order("created_at DESC").Find(&offers).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch offers: %w", err)
	}
	return offers, nil
}

// findSelectableOffer loads an active, unexpired offer inside tx.
func findSelectableOffer(tx *gorm.DB, loanID, offerID uuid.UUID, now time.Time) (*models.LoanOffer, error) {
	var offer models.LoanOffer
	if err := tx.Where("id = ? AND loan_id = ?", offerID, loanID).First(&offer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: offer", models.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if !offer.Selectable(now) {
		return nil, fmt.Errorf("%w: offer is %s", models.ErrInvalidState, offer.Status)
	}
	return &offer, nil
}
