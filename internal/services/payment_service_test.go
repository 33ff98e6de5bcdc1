// internal/services/payment_service_test.go
package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medifund/lending-backend/internal/models"
)

func pendingRows(principals, interests []float64) []models.EmiPayment {
	rows := make([]models.EmiPayment, len(principals))
	for i := range principals {
		p := decimal.NewFromFloat(principals[i])
		in := decimal.NewFromFloat(interests[i])
		rows[i] = models.EmiPayment{
			Ordinal:   i + 1,
			Principal: p,
			Interest:  in,
			Amount:    p.Add(in),
			Status:    models.EmiStatusPending,
		}
	}
	return rows
}

func TestReducePendingPrincipalsExactDistribution(t *testing.T) {
	rows := pendingRows(
		[]float64{1000.00, 1010.00, 1020.10},
		[]float64{300.00, 290.00, 279.90},
	)
	outstanding := decimal.NewFromFloat(3030.10)
	amount := decimal.NewFromFloat(500.00)

	require.NoError(t, ReducePendingPrincipals(rows, amount))

	reduced := decimal.Zero
	for _, row := range rows {
		reduced = reduced.Add(row.Principal)
	}

	// The reductions sum exactly to the prepayment; the residual lands in
	// the final row.
	assert.True(t, reduced.Equal(outstanding.Sub(amount)),
		"remaining principal %s, want %s", reduced, outstanding.Sub(amount))
}

func TestReducePendingPrincipalsKeepsInterestFixed(t *testing.T) {
	rows := pendingRows(
		[]float64{2000.00, 2020.00},
		[]float64{150.00, 130.00},
	)

	require.NoError(t, ReducePendingPrincipals(rows, decimal.NewFromInt(1000)))

	assert.True(t, rows[0].Interest.Equal(decimal.NewFromFloat(150.00)))
	assert.True(t, rows[1].Interest.Equal(decimal.NewFromFloat(130.00)))
	for _, row := range rows {
		assert.True(t, row.Amount.Equal(row.Principal.Add(row.Interest)),
			"installment %d amount out of sync", row.Ordinal)
	}
}

func TestReducePendingPrincipalsProportional(t *testing.T) {
	rows := pendingRows(
		[]float64{1000.00, 3000.00},
		[]float64{100.00, 100.00},
	)

	// 25% of the outstanding 4000 comes off each row proportionally.
	require.NoError(t, ReducePendingPrincipals(rows, decimal.NewFromInt(1000)))

	assert.True(t, rows[0].Principal.Equal(decimal.NewFromFloat(750.00)), "got %s", rows[0].Principal)
	assert.True(t, rows[1].Principal.Equal(decimal.NewFromFloat(2250.00)), "got %s", rows[1].Principal)
}

func TestReducePendingPrincipalsRejectsFullPayoff(t *testing.T) {
	rows := pendingRows([]float64{1000.00}, []float64{50.00})

	err := ReducePendingPrincipals(rows, decimal.NewFromInt(1000))
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	err = ReducePendingPrincipals(rows, decimal.NewFromInt(2000))
	assert.ErrorIs(t, err, models.ErrInvalidAmount)
}

func TestReducePendingPrincipalsRejectsEmptySchedule(t *testing.T) {
	err := ReducePendingPrincipals(nil, decimal.NewFromInt(100))
	assert.ErrorIs(t, err, models.ErrAlreadySettled)
}
