// internal/services/payment_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/medifund/lending-backend/internal/config"
	"github.com/medifund/lending-backend/internal/database"
	"github.com/medifund/lending-backend/internal/lease"
	"github.com/medifund/lending-backend/internal/metrics"
	"github.com/medifund/lending-backend/internal/models"
)

// PaymentService applies installment payments and prepayments to a loan.
// Every mutation runs under the loan's lease and a single transaction, so the
// aggregate summary and the installment rows can never drift apart.
type PaymentService struct {
	db            *gorm.DB
	cfg           *config.Config
	leases        *lease.Keeper
	gateway       *GatewayService
	notifications *NotificationService
	collector     *metrics.Collector
}

func NewPaymentService(db *gorm.DB, cfg *config.Config, leases *lease.Keeper,
	gateway *GatewayService, notifications *NotificationService, collector *metrics.Collector) *PaymentService {
	return &PaymentService{
		db:            db,
		cfg:           cfg,
		leases:        leases,
		gateway:       gateway,
		notifications: notifications,
		collector:     collector,
	}
}

type PayInstallmentRequest struct {
	InstallmentID    *uuid.UUID       `json:"installment_id"`
	Amount           *decimal.Decimal `json:"amount"`
	PaymentMethod    string           `json:"payment_method" validate:"required,max=50"`
	PaymentReference string           `json:"payment_reference" validate:"required,max=255"`
}

type PrepayRequest struct {
	Amount           decimal.Decimal `json:"amount" validate:"required"`
	PaymentMethod    string          `json:"payment_method" validate:"required,max=50"`
	PaymentReference string          `json:"payment_reference" validate:"required,max=255"`
}

// PayInstallment settles one installment. When no installment is named, the
// earliest payable one is taken. Closing the last installment closes the
// loan.
func (s *PaymentService) PayInstallment(ctx context.Context, loanID uuid.UUID, req *PayInstallmentRequest, actorID uuid.UUID, actorType models.UserType) (*models.EmiPayment, error) {
	if err := s.gateway.VerifyPayment(req.PaymentReference); err != nil {
		return nil, err
	}

	var installment *models.EmiPayment
	var loan *models.LoanApplication
	var closed bool

	err := s.withLoanLease(ctx, loanID, func() error {
		return database.WithTransaction(s.db, func(tx *gorm.DB) error {
			var err error
			loan, err = lockLoan(tx, loanID)
			if err != nil {
				return err
			}
			if !actorType.IsStaffRole() && !loan.OwnedBy(actorID) {
				return models.ErrUnauthorized
			}
			if loan.Status.IsTerminal() {
				return fmt.Errorf("%w: loan is %s", models.ErrInvalidState, loan.Status)
			}
			if !loan.HasSchedule() {
				return fmt.Errorf("%w: loan has no repayment schedule", models.ErrInvalidState)
			}

			installment, err = s.loadInstallment(tx, loanID, req.InstallmentID)
			if err != nil {
				return err
			}

			// Collected amount defaults to the scheduled one.
			collected := installment.Amount
			if req.Amount != nil {
				if req.Amount.LessThanOrEqual(decimal.Zero) {
					return fmt.Errorf("%w: collected amount must be positive", models.ErrInvalidAmount)
				}
				collected = *req.Amount
			}

			now := time.Now()
			if err := installment.MarkPaid(req.PaymentMethod, req.PaymentReference, collected, now); err != nil {
				return err
			}
			if err := tx.Save(installment).Error; err != nil {
				return fmt.Errorf("failed to save installment: %w", err)
			}

			nextDue, err := nextPayableDueDate(tx, loanID)
			if err != nil {
				return err
			}
			if err := loan.RecordInstallmentPaid(installment.Principal, nextDue); err != nil {
				return err
			}

			if loan.Emi.PaidEmis >= loan.Emi.TotalEmis && loan.Status.CanTransitionTo(models.LoanStatusClosed) {
				oldStatus := loan.Status
				loan.Status = models.LoanStatusClosed
				loan.Emi.RemainingBalance = decimal.Zero
				closed = true
				comment := loan.NewComment("All installments settled, loan closed", nil,
					fmt.Sprintf("%s:%s", oldStatus, models.LoanStatusClosed))
				if err := tx.Create(&comment).Error; err != nil {
					return fmt.Errorf("failed to record closure comment: %w", err)
				}
			}

			if err := tx.Save(loan).Error; err != nil {
				return fmt.Errorf("failed to save loan: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.collector.PaymentApplied()
	if closed {
		s.collector.LoanClosed()
		s.sendClosedEmail(loan)
	}

	logrus.WithFields(logrus.Fields{
		"loan_id": loanID,
		"ordinal": installment.Ordinal,
		"amount":  installment.Amount,
		"closed":  closed,
	}).Info("Installment payment applied")

	return installment, nil
}

// Prepay applies a lump sum against the outstanding principal. A sum covering
// the full outstanding principal settles every payable installment and closes
// the loan; a partial sum shrinks pending principals proportionally while the
// installment count and interest components stay fixed.
func (s *PaymentService) Prepay(ctx context.Context, loanID uuid.UUID, req *PrepayRequest, actorID uuid.UUID, actorType models.UserType) (*models.LoanApplication, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: prepayment must be positive", models.ErrInvalidAmount)
	}
	if err := s.gateway.VerifyPayment(req.PaymentReference); err != nil {
		return nil, err
	}

	var loan *models.LoanApplication
	var closed bool

	err := s.withLoanLease(ctx, loanID, func() error {
		return database.WithTransaction(s.db, func(tx *gorm.DB) error {
			var err error
			loan, err = lockLoan(tx, loanID)
			if err != nil {
				return err
			}
			if !actorType.IsStaffRole() && !loan.OwnedBy(actorID) {
				return models.ErrUnauthorized
			}
			if loan.Status.IsTerminal() {
				return fmt.Errorf("%w: loan is %s", models.ErrInvalidState, loan.Status)
			}
			if !loan.HasSchedule() {
				return fmt.Errorf("%w: loan has no repayment schedule", models.ErrInvalidState)
			}

			pending, err := payableInstallments(tx, loanID)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				return fmt.Errorf("%w: no payable installments remain", models.ErrAlreadySettled)
			}

			outstanding := decimal.Zero
			for i := range pending {
				outstanding = outstanding.Add(pending[i].Principal)
			}

			now := time.Now()
			applied := req.Amount
			if applied.GreaterThanOrEqual(outstanding) {
				// Full payoff: excess over the outstanding principal is not
				// accepted, the schedule settles at face value.
				applied = outstanding
				for i := range pending {
					if err := pending[i].MarkPaid(req.PaymentMethod, req.PaymentReference, pending[i].Amount, now); err != nil {
						return err
					}
					if err := tx.Save(&pending[i]).Error; err != nil {
						return fmt.Errorf("failed to settle installment %d: %w", pending[i].Ordinal, err)
					}
				}
			} else {
				if err := ReducePendingPrincipals(pending, applied); err != nil {
					return err
				}
				for i := range pending {
					if err := tx.Save(&pending[i]).Error; err != nil {
						return fmt.Errorf("failed to update installment %d: %w", pending[i].Ordinal, err)
					}
				}
			}

			oldStatus := loan.Status
			closed, err = loan.RecordPrepayment(applied)
			if err != nil {
				return err
			}

			message := fmt.Sprintf("Prepayment of %s applied", applied.StringFixed(2))
			change := ""
			if closed {
				message = fmt.Sprintf("Prepayment of %s applied, loan closed", applied.StringFixed(2))
				change = fmt.Sprintf("%s:%s", oldStatus, models.LoanStatusClosed)
			}
			comment := loan.NewComment(message, &actorID, change)
			if err := tx.Create(&comment).Error; err != nil {
				return fmt.Errorf("failed to record prepayment comment: %w", err)
			}

			if err := tx.Save(loan).Error; err != nil {
				return fmt.Errorf("failed to save loan: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.collector.PrepaymentApplied()
	if closed {
		s.collector.LoanClosed()
		s.sendClosedEmail(loan)
	}

	logrus.WithFields(logrus.Fields{
		"loan_id": loanID,
		"amount":  req.Amount,
		"closed":  closed,
	}).Info("Prepayment applied")

	return loan, nil
}

// ReducePendingPrincipals distributes a partial prepayment across payable
// installments in proportion to their principal components. Interest stays
// untouched; the final payable row absorbs the rounding residual so the
// reductions sum exactly to amount.
func ReducePendingPrincipals(pending []models.EmiPayment, amount decimal.Decimal) error {
	if len(pending) == 0 {
		return fmt.Errorf("%w: no payable installments", models.ErrAlreadySettled)
	}

	outstanding := decimal.Zero
	for i := range pending {
		outstanding = outstanding.Add(pending[i].Principal)
	}
	if amount.GreaterThanOrEqual(outstanding) {
		return fmt.Errorf("%w: reduction must be below the outstanding principal", models.ErrInvalidAmount)
	}

	ratio := amount.Div(outstanding)
	distributed := decimal.Zero
	for i := range pending {
		var reduction decimal.Decimal
		if i == len(pending)-1 {
			reduction = amount.Sub(distributed)
		} else {
			reduction = pending[i].Principal.Mul(ratio).Round(2)
			distributed = distributed.Add(reduction)
		}
		pending[i].Principal = pending[i].Principal.Sub(reduction)
		pending[i].Amount = pending[i].Principal.Add(pending[i].Interest)
	}
	return nil
}

// MarkOverdueInstallments flips pending installments past their due date to
// overdue. Run periodically; overdue installments remain payable.
func (s *PaymentService) MarkOverdueInstallments() (int64, error) {
	result := s.db.Model(&models.EmiPayment{}).
		Where("status = ? AND due_date < ?", models.EmiStatusPending, time.Now()).
		Update("status", models.EmiStatusOverdue)
	if result.Error != nil {
		return 0, fmt.Errorf("overdue sweep failed: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		logrus.WithField("count", result.RowsAffected).Info("Installments marked overdue")
	}
	return result.RowsAffected, nil
}

// loadInstallment resolves the target installment: an explicit id, or the
// earliest payable one.
func (s *PaymentService) loadInstallment(tx *gorm.DB, loanID uuid.UUID, installmentID *uuid.UUID) (*models.EmiPayment, error) {
	var installment models.EmiPayment

	query := tx.Where("loan_id = ?", loanID)
	if installmentID != nil {
		query = query.Where("id = ?", *installmentID)
	} else {
		query = query.Where("status IN ?", []models.EmiStatus{models.EmiStatusPending, models.EmiStatusOverdue}).
			Order("ordinal ASC")
	}

	if err := query.First(&installment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: installment", models.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &installment, nil
}

// payableInstallments returns pending and overdue rows in period order.
func payableInstallments(tx *gorm.DB, loanID uuid.UUID) ([]models.EmiPayment, error) {
	var pending []models.EmiPayment
	err := tx.Where("loan_id = ? AND status IN ?", loanID,
		[]models.EmiStatus{models.EmiStatusPending, models.EmiStatusOverdue}).
		Order("ordinal ASC").Find(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payable installments: %w", err)
	}
	return pending, nil
}

// nextPayableDueDate finds the due date of the earliest still-payable
// installment, nil when none remain.
func nextPayableDueDate(tx *gorm.DB, loanID uuid.UUID) (*time.Time, error) {
	var next models.EmiPayment
	err := tx.Where("loan_id = ? AND status IN ?", loanID,
		[]models.EmiStatus{models.EmiStatusPending, models.EmiStatusOverdue}).
		Order("ordinal ASC").First(&next).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &next.DueDate, nil
}

func (s *PaymentService) sendClosedEmail(loan *models.LoanApplication) {
	go func() {
		var patient models.User
		if err := s.db.First(&patient, "id = ?", loan.PatientID).Error; err != nil {
			logrus.WithError(err).WithField("loan_id", loan.ID).Warn("Failed to load patient for closure notification")
			return
		}
		s.notifications.SendLoanClosedEmail(&patient, loan)
	}()
}

// withLoanLease mirrors the loan service's lease wrapper for payment paths.
func (s *PaymentService) withLoanLease(ctx context.Context, loanID uuid.UUID, fn func() error) error {
	start := time.Now()
	defer func() { s.collector.ObserveMutation(time.Since(start)) }()

	retries := s.cfg.Loan.LeaseRetries
	if retries < 1 {
		retries = 1
	}

	var release func()
	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		release, err = s.leases.Acquire(ctx, loanID)
		if err == nil {
			break
		}
		if errors.Is(err, lease.ErrBusy) {
			s.collector.LeaseContention()
			continue
		}
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: loan is being modified by another operation", models.ErrConflict)
	}
	defer release()

	return fn()
}
