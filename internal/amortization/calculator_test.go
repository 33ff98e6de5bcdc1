// internal/amortization/calculator_test.go
package amortization

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMIKnownValue(t *testing.T) {
	// 500000 over 24 months at 10.5% per annum.
	emi, err := EMI(decimal.NewFromInt(500000), decimal.NewFromFloat(10.5), 24)
	require.NoError(t, err)

	assert.InDelta(t, 23188.0, emi.InexactFloat64(), 1.0)
}

func TestEMIZeroRate(t *testing.T) {
	emi, err := EMI(decimal.NewFromInt(120000), decimal.Zero, 12)
	require.NoError(t, err)

	assert.True(t, emi.Equal(decimal.NewFromInt(10000)), "got %s", emi)
}

func TestEMIInvalidInputs(t *testing.T) {
	tests := []struct {
		name      string
		principal decimal.Decimal
		rate      decimal.Decimal
		months    int
		wantErr   error
	}{
		{"zero principal", decimal.Zero, decimal.NewFromInt(10), 12, ErrInvalidPrincipal},
		{"negative principal", decimal.NewFromInt(-100), decimal.NewFromInt(10), 12, ErrInvalidPrincipal},
		{"negative rate", decimal.NewFromInt(1000), decimal.NewFromInt(-1), 12, ErrInvalidRate},
		{"zero months", decimal.NewFromInt(1000), decimal.NewFromInt(10), 0, ErrInvalidTerm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EMI(tt.principal, tt.rate, tt.months)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSchedulePrincipalSumsExactly(t *testing.T) {
	principal := decimal.NewFromInt(500000)
	anchor := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	rows, err := Schedule(principal, decimal.NewFromFloat(10.5), 24, anchor)
	require.NoError(t, err)
	require.Len(t, rows, 24)

	sum := decimal.Zero
	for _, row := range rows {
		sum = sum.Add(row.Principal)
		assert.True(t, row.Interest.GreaterThanOrEqual(decimal.Zero))
	}

	// The final installment absorbs the rounding residual, so the principal
	// components reconstruct the input exactly.
	assert.True(t, sum.Equal(principal), "principal sum %s, want %s", sum, principal)
	assert.True(t, rows[len(rows)-1].Remaining.IsZero(), "final remaining %s", rows[len(rows)-1].Remaining)
}

func TestScheduleDueDatesAndOrdinals(t *testing.T) {
	anchor := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	rows, err := Schedule(decimal.NewFromInt(60000), decimal.NewFromInt(12), 6, anchor)
	require.NoError(t, err)
	require.Len(t, rows, 6)

	for i, row := range rows {
		assert.Equal(t, i+1, row.Period)
		assert.Equal(t, anchor.AddDate(0, i+1, 0), row.DueDate)
	}
}

func TestScheduleZeroRate(t *testing.T) {
	rows, err := Schedule(decimal.NewFromInt(12000), decimal.Zero, 12, time.Now())
	require.NoError(t, err)
	require.Len(t, rows, 12)

	for _, row := range rows {
		assert.True(t, row.Interest.IsZero())
		assert.True(t, row.Principal.Equal(decimal.NewFromInt(1000)), "period %d principal %s", row.Period, row.Principal)
	}
}

func TestScheduleInterestDeclines(t *testing.T) {
	rows, err := Schedule(decimal.NewFromInt(100000), decimal.NewFromInt(12), 12, time.Now())
	require.NoError(t, err)

	for i := 1; i < len(rows); i++ {
		assert.True(t, rows[i].Interest.LessThanOrEqual(rows[i-1].Interest),
			"interest should not grow between periods %d and %d", i, i+1)
	}
}
