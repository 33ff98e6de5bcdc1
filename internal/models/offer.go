// internal/models/offer.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanOffer is one of the competing offers generated at submission. Offers
// become immutable once selected or expired.
type LoanOffer struct {
	BaseModel
	LoanID        uuid.UUID       `json:"loan_id" gorm:"type:uuid;not null;index"`
	Provider      string          `json:"provider" gorm:"size:100;not null"`
	OfferedAmount decimal.Decimal `json:"offered_amount" gorm:"type:decimal(14,2);not null"`
	InterestRate  decimal.Decimal `json:"interest_rate" gorm:"type:decimal(6,3);not null"`
	Tenure        int             `json:"tenure" gorm:"not null"`
	EmiAmount     decimal.Decimal `json:"emi_amount" gorm:"type:decimal(14,2);not null"`
	ProcessingFee decimal.Decimal `json:"processing_fee" gorm:"type:decimal(14,2)"`
	ValidUntil    time.Time       `json:"valid_until" gorm:"not null"`
	Status        OfferStatus     `json:"status" gorm:"type:varchar(20);default:'active';index"`
}

// Selectable reports whether the offer can still be accepted.
func (o *LoanOffer) Selectable(now time.Time) bool {
	return o.Status == OfferStatusActive && now.Before(o.ValidUntil)
}
