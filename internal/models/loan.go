// internal/models/loan.go
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanApplication is the loan aggregate. All balance and status mutation goes
// through the methods below; services call them inside a per-loan lease and a
// database transaction so read-modify-write cycles never interleave.
type LoanApplication struct {
	BaseModel
	ApplicationNumber string        `json:"application_number" gorm:"uniqueIndex;size:20;not null"`
	PatientID         uuid.UUID     `json:"patient_id" gorm:"type:uuid;not null;index"`
	GuarantorID       *uuid.UUID    `json:"guarantor_id" gorm:"type:uuid;index"`
	ApplicantType     ApplicantType `json:"applicant_type" gorm:"type:varchar(20);not null"`

	RequestedAmount decimal.Decimal `json:"requested_amount" gorm:"type:decimal(14,2);not null"`
	Purpose         string          `json:"purpose" gorm:"type:text"`
	RequestedTenure int             `json:"requested_tenure" gorm:"not null"`
	MonthlyIncome   decimal.Decimal `json:"monthly_income" gorm:"type:decimal(14,2);not null"`
	EmploymentType  string          `json:"employment_type" gorm:"size:50"`

	Status LoanStatus `json:"status" gorm:"type:varchar(30);default:'submitted';index"`

	Approval  ApprovalDetails  `json:"approval" gorm:"embedded;embeddedPrefix:approval_"`
	Rejection RejectionDetails `json:"rejection" gorm:"embedded;embeddedPrefix:rejection_"`
	Emi       EmiDetails       `json:"emi" gorm:"embedded;embeddedPrefix:emi_"`

	// Relationships
	Patient   User          `json:"patient,omitempty" gorm:"foreignKey:PatientID"`
	Guarantor *User         `json:"guarantor,omitempty" gorm:"foreignKey:GuarantorID"`
	Offers    []LoanOffer   `json:"offers,omitempty" gorm:"foreignKey:LoanID"`
	Payments  []EmiPayment  `json:"payments,omitempty" gorm:"foreignKey:LoanID"`
	Comments  []LoanComment `json:"comments,omitempty" gorm:"foreignKey:LoanID"`
}

// ApprovalDetails is populated exactly once, when the loan is approved.
type ApprovalDetails struct {
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(14,2)"`
	InterestRate  decimal.Decimal `json:"interest_rate" gorm:"type:decimal(6,3)"`
	ProcessingFee decimal.Decimal `json:"processing_fee" gorm:"type:decimal(14,2)"`
	EmiAmount     decimal.Decimal `json:"emi_amount" gorm:"type:decimal(14,2)"`
	Tenure        int             `json:"tenure"`
	ApprovedBy    *uuid.UUID      `json:"approved_by" gorm:"type:uuid"`
	ApprovedAt    *time.Time      `json:"approved_at"`
	DisbursedAt   *time.Time      `json:"disbursed_at"`
}

type RejectionDetails struct {
	Reason     string     `json:"reason" gorm:"type:text"`
	RejectedBy *uuid.UUID `json:"rejected_by" gorm:"type:uuid"`
	RejectedAt *time.Time `json:"rejected_at"`
}

// EmiDetails is the cached schedule summary projected onto the aggregate.
type EmiDetails struct {
	Amount           decimal.Decimal `json:"amount" gorm:"type:decimal(14,2)"`
	TotalEmis        int             `json:"total_emis"`
	PaidEmis         int             `json:"paid_emis"`
	NextDueDate      *time.Time      `json:"next_due_date"`
	RemainingBalance decimal.Decimal `json:"remaining_balance" gorm:"type:decimal(14,2)"`
}

// LoanComment is the append-only activity log on a loan. Comments are never
// updated or deleted.
type LoanComment struct {
	BaseModel
	LoanID       uuid.UUID  `json:"loan_id" gorm:"type:uuid;not null;index"`
	AuthorID     *uuid.UUID `json:"author_id" gorm:"type:uuid"`
	Message      string     `json:"message" gorm:"type:text;not null"`
	StatusChange string     `json:"status_change,omitempty" gorm:"size:80"`
}

type LoanDocument struct {
	BaseModel
	LoanID      uuid.UUID `json:"loan_id" gorm:"type:uuid;not null;index"`
	UploaderID  uuid.UUID `json:"uploader_id" gorm:"type:uuid;not null"`
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	FileKey     string    `json:"file_key" gorm:"size:512"`
	FileURL     string    `json:"file_url" gorm:"size:1024"`
	ContentType string    `json:"content_type" gorm:"size:100"`
	Size        int64     `json:"size"`
}

// ApprovalTerms is the input for approving a loan.
type ApprovalTerms struct {
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	InterestRate  decimal.Decimal `json:"interest_rate"`
	ProcessingFee decimal.Decimal `json:"processing_fee"`
	EmiAmount     decimal.Decimal `json:"emi_amount"`
	Tenure        int             `json:"tenure" validate:"required,min=1"`
}

func (l *LoanApplication) HasApproval() bool {
	return l.Approval.ApprovedAt != nil
}

func (l *LoanApplication) HasRejection() bool {
	return l.Rejection.RejectedAt != nil
}

func (l *LoanApplication) HasSchedule() bool {
	return l.Emi.TotalEmis > 0
}

// OwnedBy reports whether the given user is the patient or guarantor on the
// loan.
func (l *LoanApplication) OwnedBy(userID uuid.UUID) bool {
	if l.PatientID == userID {
		return true
	}
	return l.GuarantorID != nil && *l.GuarantorID == userID
}

// SetApprovalTerms transitions the loan to approved and records the terms.
// It does not generate the schedule; the caller must do that before the
// approval becomes observable.
func (l *LoanApplication) SetApprovalTerms(terms ApprovalTerms, actorID uuid.UUID, now time.Time) error {
	if !l.Status.EligibleForDecision() {
		return fmt.Errorf("%w: cannot approve loan in status %s", ErrInvalidState, l.Status)
	}
	if l.HasRejection() {
		return fmt.Errorf("%w: loan already carries rejection details", ErrInvalidState)
	}
	if terms.Amount.LessThanOrEqual(decimal.Zero) || terms.Tenure < 1 {
		return fmt.Errorf("%w: approved amount and tenure must be positive", ErrInvalidAmount)
	}
	l.Status = LoanStatusApproved
	l.Approval = ApprovalDetails{
		Amount:        terms.Amount,
		InterestRate:  terms.InterestRate,
		ProcessingFee: terms.ProcessingFee,
		EmiAmount:     terms.EmiAmount,
		Tenure:        terms.Tenure,
		ApprovedBy:    &actorID,
		ApprovedAt:    &now,
	}
	return nil
}

// SetRejectionTerms transitions the loan to rejected.
func (l *LoanApplication) SetRejectionTerms(reason string, actorID uuid.UUID, now time.Time) error {
	if !l.Status.EligibleForDecision() {
		return fmt.Errorf("%w: cannot reject loan in status %s", ErrInvalidState, l.Status)
	}
	if l.HasApproval() {
		return fmt.Errorf("%w: loan already carries approval details", ErrInvalidState)
	}
	l.Status = LoanStatusRejected
	l.Rejection = RejectionDetails{
		Reason:     reason,
		RejectedBy: &actorID,
		RejectedAt: &now,
	}
	return nil
}

// AttachSchedule writes the schedule summary. Called exactly once, right
// after the installment batch is created.
func (l *LoanApplication) AttachSchedule(emiAmount decimal.Decimal, totalEmis int, firstDue time.Time) error {
	if l.HasSchedule() {
		return ErrScheduleExists
	}
	if !l.HasApproval() {
		return fmt.Errorf("%w: cannot attach schedule before approval", ErrInvalidState)
	}
	due := firstDue
	l.Emi = EmiDetails{
		Amount:           emiAmount,
		TotalEmis:        totalEmis,
		PaidEmis:         0,
		NextDueDate:      &due,
		RemainingBalance: l.Approval.Amount,
	}
	return nil
}

// RecordInstallmentPaid advances the schedule summary after one installment
// settles. nextDue is the due date of the next pending installment, nil when
// none remain.
func (l *LoanApplication) RecordInstallmentPaid(principalPaid decimal.Decimal, nextDue *time.Time) error {
	if !l.HasSchedule() {
		return fmt.Errorf("%w: loan has no schedule", ErrInvalidState)
	}
	if l.Emi.PaidEmis >= l.Emi.TotalEmis {
		return fmt.Errorf("%w: all installments already settled", ErrAlreadySettled)
	}
	l.Emi.PaidEmis++
	l.Emi.RemainingBalance = l.Emi.RemainingBalance.Sub(principalPaid)
	if l.Emi.RemainingBalance.IsNegative() {
		l.Emi.RemainingBalance = decimal.Zero
	}
	l.Emi.NextDueDate = nextDue
	return nil
}

// RecordPrepayment applies a lump sum to the remaining balance. When the
// balance reaches zero the loan closes. Returns true if the loan closed.
func (l *LoanApplication) RecordPrepayment(amount decimal.Decimal) (bool, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return false, fmt.Errorf("%w: prepayment must be positive", ErrInvalidAmount)
	}
	if !l.HasSchedule() {
		return false, fmt.Errorf("%w: loan has no schedule", ErrInvalidState)
	}
	if l.Status.IsTerminal() {
		return false, fmt.Errorf("%w: loan is %s", ErrInvalidState, l.Status)
	}
	l.Emi.RemainingBalance = l.Emi.RemainingBalance.Sub(amount)
	if l.Emi.RemainingBalance.LessThanOrEqual(decimal.Zero) {
		l.Emi.RemainingBalance = decimal.Zero
		l.Emi.PaidEmis = l.Emi.TotalEmis
		l.Emi.NextDueDate = nil
		l.Status = LoanStatusClosed
		return true, nil
	}
	return false, nil
}

// NewComment builds an append-only comment row for this loan. Always
// permitted regardless of status.
func (l *LoanApplication) NewComment(message string, authorID *uuid.UUID, statusChange string) LoanComment {
	return LoanComment{
		LoanID:       l.ID,
		AuthorID:     authorID,
		Message:      message,
		StatusChange: statusChange,
	}
}
