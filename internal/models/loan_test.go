// internal/models/loan_test.go
package models

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medifund/lending-backend/internal/lease"
)

func newTestLoan(status LoanStatus) *LoanApplication {
	return &LoanApplication{
		BaseModel:       BaseModel{ID: uuid.New()},
		PatientID:       uuid.New(),
		ApplicantType:   ApplicantTypePatient,
		RequestedAmount: decimal.NewFromInt(100000),
		RequestedTenure: 12,
		MonthlyIncome:   decimal.NewFromInt(50000),
		Status:          status,
	}
}

func testTerms() ApprovalTerms {
	return ApprovalTerms{
		Amount:       decimal.NewFromInt(100000),
		InterestRate: decimal.NewFromFloat(10.5),
		EmiAmount:    decimal.NewFromFloat(8815.11),
		Tenure:       12,
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    LoanStatus
		to      LoanStatus
		allowed bool
	}{
		{LoanStatusSubmitted, LoanStatusUnderReview, true},
		{LoanStatusSubmitted, LoanStatusApproved, true},
		{LoanStatusSubmitted, LoanStatusDisbursed, false},
		{LoanStatusUnderReview, LoanStatusCreditCheck, true},
		{LoanStatusCreditCheck, LoanStatusUnderReview, true},
		{LoanStatusDocumentsNeeded, LoanStatusApproved, true},
		{LoanStatusApproved, LoanStatusDisbursed, true},
		{LoanStatusApproved, LoanStatusClosed, true},
		{LoanStatusApproved, LoanStatusRejected, false},
		{LoanStatusDisbursed, LoanStatusClosed, true},
		{LoanStatusDisbursed, LoanStatusApproved, false},
		{LoanStatusRejected, LoanStatusUnderReview, false},
		{LoanStatusClosed, LoanStatusDisbursed, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, LoanStatusRejected.IsTerminal())
	assert.True(t, LoanStatusClosed.IsTerminal())
	assert.False(t, LoanStatusDisbursed.IsTerminal())
	assert.False(t, LoanStatusSubmitted.IsTerminal())
}

func TestSetApprovalTerms(t *testing.T) {
	loan := newTestLoan(LoanStatusUnderReview)
	actor := uuid.New()
	now := time.Now()

	require.NoError(t, loan.SetApprovalTerms(testTerms(), actor, now))
	assert.Equal(t, LoanStatusApproved, loan.Status)
	assert.True(t, loan.HasApproval())
	assert.Equal(t, actor, *loan.Approval.ApprovedBy)
}

func TestSetApprovalTermsRejectsSettledLoan(t *testing.T) {
	loan := newTestLoan(LoanStatusDisbursed)
	err := loan.SetApprovalTerms(testTerms(), uuid.New(), time.Now())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSetApprovalTermsRejectsNonPositiveAmount(t *testing.T) {
	loan := newTestLoan(LoanStatusSubmitted)
	terms := testTerms()
	terms.Amount = decimal.Zero

	err := loan.SetApprovalTerms(terms, uuid.New(), time.Now())
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestApprovalAndRejectionAreMutuallyExclusive(t *testing.T) {
	loan := newTestLoan(LoanStatusSubmitted)
	actor := uuid.New()
	now := time.Now()

	require.NoError(t, loan.SetApprovalTerms(testTerms(), actor, now))

	err := loan.SetRejectionTerms("insufficient income", actor, now)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSetRejectionTerms(t *testing.T) {
	loan := newTestLoan(LoanStatusCreditCheck)
	actor := uuid.New()

	require.NoError(t, loan.SetRejectionTerms("credit check failed", actor, time.Now()))
	assert.Equal(t, LoanStatusRejected, loan.Status)
	assert.True(t, loan.HasRejection())
	assert.Equal(t, "credit check failed", loan.Rejection.Reason)
}

func TestAttachScheduleOnlyOnce(t *testing.T) {
	loan := newTestLoan(LoanStatusSubmitted)
	require.NoError(t, loan.SetApprovalTerms(testTerms(), uuid.New(), time.Now()))

	firstDue := time.Now().AddDate(0, 1, 0)
	require.NoError(t, loan.AttachSchedule(decimal.NewFromFloat(8815.11), 12, firstDue))
	assert.True(t, loan.Emi.RemainingBalance.Equal(loan.Approval.Amount))
	assert.Equal(t, 12, loan.Emi.TotalEmis)

	err := loan.AttachSchedule(decimal.NewFromFloat(8815.11), 12, firstDue)
	assert.ErrorIs(t, err, ErrScheduleExists)
}

func TestAttachScheduleRequiresApproval(t *testing.T) {
	loan := newTestLoan(LoanStatusSubmitted)
	err := loan.AttachSchedule(decimal.NewFromInt(5000), 12, time.Now())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func approvedLoanWithSchedule(t *testing.T) *LoanApplication {
	t.Helper()
	loan := newTestLoan(LoanStatusSubmitted)
	require.NoError(t, loan.SetApprovalTerms(testTerms(), uuid.New(), time.Now()))
	require.NoError(t, loan.AttachSchedule(decimal.NewFromFloat(8815.11), 12, time.Now().AddDate(0, 1, 0)))
	return loan
}

func TestRecordInstallmentPaid(t *testing.T) {
	loan := approvedLoanWithSchedule(t)
	next := time.Now().AddDate(0, 2, 0)

	require.NoError(t, loan.RecordInstallmentPaid(decimal.NewFromInt(7940), &next))
	assert.Equal(t, 1, loan.Emi.PaidEmis)
	assert.True(t, loan.Emi.RemainingBalance.Equal(decimal.NewFromInt(92060)))
	assert.Equal(t, next, *loan.Emi.NextDueDate)
}

func TestRecordInstallmentPaidRejectsSettledSchedule(t *testing.T) {
	loan := approvedLoanWithSchedule(t)
	loan.Emi.PaidEmis = loan.Emi.TotalEmis

	err := loan.RecordInstallmentPaid(decimal.NewFromInt(100), nil)
	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestRecordInstallmentPaidClampsBalance(t *testing.T) {
	loan := approvedLoanWithSchedule(t)
	loan.Emi.RemainingBalance = decimal.NewFromInt(50)

	require.NoError(t, loan.RecordInstallmentPaid(decimal.NewFromInt(100), nil))
	assert.True(t, loan.Emi.RemainingBalance.IsZero())
}

func TestRecordPrepaymentPartial(t *testing.T) {
	loan := approvedLoanWithSchedule(t)

	closed, err := loan.RecordPrepayment(decimal.NewFromInt(40000))
	require.NoError(t, err)
	assert.False(t, closed)
	assert.True(t, loan.Emi.RemainingBalance.Equal(decimal.NewFromInt(60000)))
	assert.NotEqual(t, LoanStatusClosed, loan.Status)
}

func TestRecordPrepaymentClosesLoan(t *testing.T) {
	loan := approvedLoanWithSchedule(t)

	closed, err := loan.RecordPrepayment(decimal.NewFromInt(100000))
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, LoanStatusClosed, loan.Status)
	assert.True(t, loan.Emi.RemainingBalance.IsZero())
	assert.Equal(t, loan.Emi.TotalEmis, loan.Emi.PaidEmis)
	assert.Nil(t, loan.Emi.NextDueDate)
}

func TestRecordPrepaymentGuards(t *testing.T) {
	loan := approvedLoanWithSchedule(t)

	_, err := loan.RecordPrepayment(decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	loan.Status = LoanStatusClosed
	_, err = loan.RecordPrepayment(decimal.NewFromInt(100))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestOwnedBy(t *testing.T) {
	loan := newTestLoan(LoanStatusSubmitted)
	guarantor := uuid.New()
	loan.GuarantorID = &guarantor

	assert.True(t, loan.OwnedBy(loan.PatientID))
	assert.True(t, loan.OwnedBy(guarantor))
	assert.False(t, loan.OwnedBy(uuid.New()))
}

// Two payments racing on the same aggregate must both land: the lease forces
// the second read-modify-write to see the first one's result.
func TestConcurrentPaymentsSerializedByLease(t *testing.T) {
	loan := approvedLoanWithSchedule(t)
	keeper := lease.NewKeeper(5 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := keeper.Acquire(context.Background(), loan.ID)
			if err != nil {
				return
			}
			defer release()
			time.Sleep(time.Millisecond)
			_ = loan.RecordInstallmentPaid(decimal.NewFromInt(7940), nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, loan.Emi.PaidEmis)
	assert.True(t, loan.Emi.RemainingBalance.Equal(decimal.NewFromInt(84120)))
}

func TestEmiStatusPayable(t *testing.T) {
	assert.True(t, EmiStatusPending.Payable())
	assert.True(t, EmiStatusOverdue.Payable())
	assert.False(t, EmiStatusPaid.Payable())
	assert.False(t, EmiStatusPartiallyPaid.Payable())
}

func TestEmiMarkPaid(t *testing.T) {
	installment := &EmiPayment{
		LoanID:    uuid.New(),
		Ordinal:   1,
		Amount:    decimal.NewFromFloat(8815.11),
		Principal: decimal.NewFromFloat(7940.11),
		Interest:  decimal.NewFromFloat(875.00),
		Status:    EmiStatusOverdue,
	}
	now := time.Now()

	require.NoError(t, installment.MarkPaid("card", "pi_123", installment.Amount, now))
	assert.Equal(t, EmiStatusPaid, installment.Status)
	assert.Equal(t, now, *installment.PaidAt)

	err := installment.MarkPaid("card", "pi_456", installment.Amount, now)
	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestOfferSelectable(t *testing.T) {
	now := time.Now()
	offer := &LoanOffer{Status: OfferStatusActive, ValidUntil: now.Add(time.Hour)}

	assert.True(t, offer.Selectable(now))
	assert.False(t, offer.Selectable(now.Add(2*time.Hour)))

	offer.Status = OfferStatusExpired
	assert.False(t, offer.Selectable(now))
}
