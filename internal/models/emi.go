// internal/models/emi.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EmiPayment is one installment of a loan schedule. The batch is created once
// at schedule generation; only status and payment fields change afterwards,
// except for the one-time prepayment recalculation which shrinks pending
// principals.
type EmiPayment struct {
	BaseModel
	LoanID  uuid.UUID `json:"loan_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_emi_loan_ordinal"`
	Ordinal int       `json:"ordinal" gorm:"not null;uniqueIndex:idx_emi_loan_ordinal"`

	DueDate   time.Time       `json:"due_date" gorm:"not null;index"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:decimal(14,2);not null"`
	Principal decimal.Decimal `json:"principal" gorm:"type:decimal(14,2);not null"`
	Interest  decimal.Decimal `json:"interest" gorm:"type:decimal(14,2);not null"`
	Status    EmiStatus       `json:"status" gorm:"type:varchar(20);default:'pending';index"`

	PaidAt           *time.Time       `json:"paid_at"`
	PaymentMethod    string           `json:"payment_method,omitempty" gorm:"size:50"`
	PaymentReference string           `json:"payment_reference,omitempty" gorm:"size:255"`
	AmountPaid       *decimal.Decimal `json:"amount_paid,omitempty" gorm:"type:decimal(14,2)"`
}

// MarkPaid settles the installment with the given payment metadata.
func (e *EmiPayment) MarkPaid(method, reference string, amount decimal.Decimal, now time.Time) error {
	if !e.Status.Payable() {
		return ErrAlreadySettled
	}
	e.Status = EmiStatusPaid
	e.PaidAt = &now
	e.PaymentMethod = method
	e.PaymentReference = reference
	e.AmountPaid = &amount
	return nil
}
