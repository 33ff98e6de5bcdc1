// internal/amortization/calculator.go
package amortization

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrincipal = errors.New("principal must be positive")
	ErrInvalidRate      = errors.New("annual rate must not be negative")
	ErrInvalidTerm      = errors.New("term must be at least one month")
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// Installment is one row of an amortization schedule.
type Installment struct {
	Period    int             `json:"period"`
	DueDate   time.Time       `json:"due_date"`
	Principal decimal.Decimal `json:"principal"`
	Interest  decimal.Decimal `json:"interest"`
	Total     decimal.Decimal `json:"total"`
	Remaining decimal.Decimal `json:"remaining"`
}

// MonthlyRate converts an annual percentage rate to a monthly decimal rate.
func MonthlyRate(annualPercent decimal.Decimal) decimal.Decimal {
	return annualPercent.Div(hundred).Div(twelve)
}

// EMI computes the fixed equal monthly installment for a reducing-balance
// loan: P*i*(1+i)^n / ((1+i)^n - 1). The zero-rate case degenerates to an
// even split of the principal.
func EMI(principal, annualRatePercent decimal.Decimal, months int) (decimal.Decimal, error) {
	if principal.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidPrincipal
	}
	if annualRatePercent.IsNegative() {
		return decimal.Zero, ErrInvalidRate
	}
	if months < 1 {
		return decimal.Zero, ErrInvalidTerm
	}

	i := MonthlyRate(annualRatePercent)
	if i.IsZero() {
		return principal.Div(decimal.NewFromInt(int64(months))).Round(2), nil
	}

	compound := one.Add(i).Pow(decimal.NewFromInt(int64(months)))
	emi := principal.Mul(i).Mul(compound).Div(compound.Sub(one))
	return emi.Round(2), nil
}

// Schedule builds the full per-period principal/interest split. Each period
// rounds to the smallest currency unit; the final installment absorbs the
// rounding residual so the principal components sum exactly to the input
// principal. Due dates advance one month at a time from the anchor.
func Schedule(principal, annualRatePercent decimal.Decimal, months int, anchor time.Time) ([]Installment, error) {
	emi, err := EMI(principal, annualRatePercent, months)
	if err != nil {
		return nil, err
	}

	i := MonthlyRate(annualRatePercent)
	remaining := principal
	rows := make([]Installment, 0, months)

	for period := 1; period <= months; period++ {
		interest := remaining.Mul(i).Round(2)
		principalPart := emi.Sub(interest)
		total := emi

		if period == months {
			// Absorb the rounding residual so the balance lands on zero.
			principalPart = remaining
			total = principalPart.Add(interest)
		}

		remaining = remaining.Sub(principalPart)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}

		rows = append(rows, Installment{
			Period:    period,
			DueDate:   anchor.AddDate(0, period, 0),
			Principal: principalPart.Round(2),
			Interest:  interest,
			Total:     total.Round(2),
			Remaining: remaining.Round(2),
		})
	}

	return rows, nil
}
