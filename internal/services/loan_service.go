// internal/services/loan_service.go
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
	"gorm.io/gorm/clause"

	"github.com/medifund/lending-backend/internal/amortization"
	"github.com/medifund/lending-backend/internal/config"
	"github.com/medifund/lending-backend/internal/database"
	"github.com/medifund/lending-backend/internal/lease"
	"github.com/medifund/lending-backend/internal/metrics"
	"github.com/medifund/lending-backend/internal/models"
	"github.com/medifund/lending-backend/internal/utils"
)

const applicationNumberAttempts = 5

type LoanService struct {
	db            *gorm.DB
	cfg           *config.Config
	leases        *lease.Keeper
	offers        *OfferService
	notifications *NotificationService
	wallet        *WalletService
	collector     *metrics.Collector
}

func NewLoanService(db *gorm.DB, cfg *config.Config, leases *lease.Keeper,
	offers *OfferService, notifications *NotificationService, wallet *WalletService,
	collector *metrics.Collector) *LoanService {
	return &LoanService{
		db:            db,
		cfg:           cfg,
		leases:        leases,
		offers:        offers,
		notifications: notifications,
		wallet:        wallet,
		collector:     collector,
	}
}

type SubmitLoanRequest struct {
	PatientID       *uuid.UUID      `json:"patient_id"`
	GuarantorID     *uuid.UUID      `json:"guarantor_id"`
	RequestedAmount decimal.Decimal `json:"requested_amount" validate:"required"`
	Purpose         string          `json:"purpose" validate:"required,min=3,max=1000"`
	RequestedTenure int             `json:"requested_tenure" validate:"required,min=1"`
	MonthlyIncome   decimal.Decimal `json:"monthly_income" validate:"required"`
	EmploymentType  string          `json:"employment_type" validate:"omitempty,max=50"`
}

type UpdateStatusRequest struct {
	Status  models.LoanStatus     `json:"status" validate:"required"`
	Comment string                `json:"comment" validate:"omitempty,max=1000"`
	Reason  string                `json:"reason" validate:"omitempty,max=1000"`
	Terms   *models.ApprovalTerms `json:"terms"`
}

type AddCommentRequest struct {
	Message string `json:"message" validate:"required,min=1,max=1000"`
}

// SubmitApplication creates a loan application in submitted status and
// immediately prices the competing offer set. The application number is
// retried on the rare collision of the random suffix.
func (s *LoanService) SubmitApplication(req *SubmitLoanRequest, actorID uuid.UUID, actorType models.UserType) (*models.LoanApplication, []models.LoanOffer, error) {
	if req.RequestedAmount.LessThanOrEqual(decimal.Zero) || req.MonthlyIncome.LessThanOrEqual(decimal.Zero) {
		return nil, nil, fmt.Errorf("%w: requested amount and monthly income must be positive", models.ErrInvalidAmount)
	}
	if req.RequestedTenure < 1 || req.RequestedTenure > s.cfg.Loan.MaxTenureMonths {
		return nil, nil, fmt.Errorf("%w: tenure must be between 1 and %d months", models.ErrInvalidAmount, s.cfg.Loan.MaxTenureMonths)
	}

	loan := &models.LoanApplication{
		RequestedAmount: req.RequestedAmount,
		Purpose:         req.Purpose,
		RequestedTenure: req.RequestedTenure,
		MonthlyIncome:   req.MonthlyIncome,
		EmploymentType:  req.EmploymentType,
		Status:          models.LoanStatusSubmitted,
	}

	switch actorType {
	case models.UserTypePatient:
		loan.PatientID = actorID
		loan.ApplicantType = models.ApplicantTypePatient
		loan.GuarantorID = req.GuarantorID
	case models.UserTypeGuarantor:
		if req.PatientID == nil {
			return nil, nil, fmt.Errorf("%w: guarantor applications must name the patient", models.ErrInvalidAmount)
		}
		loan.PatientID = *req.PatientID
		guarantorID := actorID
		loan.GuarantorID = &guarantorID
		loan.ApplicantType = models.ApplicantTypeGuarantor
	default:
		return nil, nil, fmt.Errorf("%w: only patients and guarantors may apply", models.ErrUnauthorized)
	}

	var created bool
	for attempt := 0; attempt < applicationNumberAttempts; attempt++ {
		number, err := utils.GenerateApplicationNumber(time.Now())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate application number: %w", err)
		}
		loan.ApplicationNumber = number
		err = s.db.Create(loan).Error
		if err == nil {
			created = true
			break
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil, fmt.Errorf("failed to create loan application: %w", err)
		}
	}
	if !created {
		return nil, nil, fmt.Errorf("failed to allocate a unique application number")
	}

	comment := loan.NewComment("Application submitted", &actorID, "")
	if err := s.db.Create(&comment).Error; err != nil {
		logrus.WithError(err).WithField("loan_id", loan.ID).Warn("Failed to record submission comment")
	}

	offers, err := s.offers.GenerateOffers(loan)
	if err != nil {
		// The application stands even when no offers could be priced; staff
		// can still decide it manually.
		logrus.WithError(err).WithField("loan_id", loan.ID).Warn("Offer generation failed")
		offers = nil
	}

	s.collector.ApplicationCreated()

	logrus.WithFields(logrus.Fields{
		"loan_id":            loan.ID,
		"application_number": loan.ApplicationNumber,
		"amount":             loan.RequestedAmount,
		"offers":             len(offers),
	}).Info("Loan application submitted")

	return loan, offers, nil
}

// GetLoan loads one application. Borrowers only see their own loans; staff
// see everything.
func (s *LoanService) GetLoan(loanID, actorID uuid.UUID, actorType models.UserType) (*models.LoanApplication, error) {
	var loan models.LoanApplication
	err := s.db.Preload("Offers").First(&loan, "id = ?", loanID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: loan", models.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if !actorType.IsStaffRole() && !loan.OwnedBy(actorID) {
		return nil, models.ErrUnauthorized
	}
	return &loan, nil
}

// ListLoans returns a page of applications. Staff can filter across all
// loans; borrowers are scoped to their own.
func (s *LoanService) ListLoans(actorID uuid.UUID, actorType models.UserType, params utils.PaginationParams) (*utils.PaginationResult, error) {
	query := s.db.Model(&models.LoanApplication{})

	if !actorType.IsStaffRole() {
		query = query.Where("patient_id = ? OR guarantor_id = ?", actorID, actorID)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count loans: %w", err)
	}

	var loans []models.LoanApplication
	query = utils.ApplySort(query, params, []string{"created_at", "status", "requested_amount"})
	query = utils.ApplyPagination(query, params)
	if err := query.Find(&loans).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch loans: %w", err)
	}

	result := utils.CreatePaginationResult(loans, total, params)
	return &result, nil
}

// UpdateStatus drives the loan through its lifecycle. Approval generates the
// repayment schedule in the same transaction, so an approved loan is never
// observable without its installments.
func (s *LoanService) UpdateStatus(ctx context.Context, loanID uuid.UUID, req *UpdateStatusRequest, actorID uuid.UUID) (*models.LoanApplication, error) {
	var loan *models.LoanApplication
	var approved, rejected, disbursed bool

	err := s.withLoanLease(ctx, loanID, func() error {
		return database.WithTransaction(s.db, func(tx *gorm.DB) error {
			var err error
			loan, err = lockLoan(tx, loanID)
			if err != nil {
				return err
			}

			oldStatus := loan.Status
			if oldStatus == req.Status {
				return fmt.Errorf("%w: loan is already %s", models.ErrInvalidState, oldStatus)
			}
			if !oldStatus.CanTransitionTo(req.Status) {
				return fmt.Errorf("%w: cannot move from %s to %s", models.ErrInvalidState, oldStatus, req.Status)
			}

			now := time.Now()
			switch req.Status {
			case models.LoanStatusApproved:
				if req.Terms == nil {
					return fmt.Errorf("%w: approval requires terms", models.ErrInvalidState)
				}
				if err := s.applyApproval(tx, loan, *req.Terms, actorID, now); err != nil {
					return err
				}
				approved = true

			case models.LoanStatusRejected:
				if req.Reason == "" {
					return fmt.Errorf("%w: rejection requires a reason", models.ErrInvalidState)
				}
				if err := loan.SetRejectionTerms(req.Reason, actorID, now); err != nil {
					return err
				}
				rejected = true

			case models.LoanStatusDisbursed:
				loan.Status = models.LoanStatusDisbursed
				loan.Approval.DisbursedAt = &now
				disbursed = true

			default:
				loan.Status = req.Status
			}

			if err := tx.Save(loan).Error; err != nil {
				return fmt.Errorf("failed to save loan: %w", err)
			}

			message := req.Comment
			if message == "" {
				message = fmt.Sprintf("Status changed from %s to %s", oldStatus, loan.Status)
			}
			change := fmt.Sprintf("%s:%s", oldStatus, loan.Status)
			comment := loan.NewComment(message, &actorID, change)
			if err := tx.Create(&comment).Error; err != nil {
				return fmt.Errorf("failed to record status comment: %w", err)
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterStatusChange(loan, approved, rejected, disbursed)
	return loan, nil
}

// SelectOffer is the borrower path into approval: the chosen offer becomes
// the loan terms, sibling offers expire and the schedule is generated, all in
// one transaction.
func (s *LoanService) SelectOffer(ctx context.Context, loanID, offerID, actorID uuid.UUID) (*models.LoanApplication, error) {
	var loan *models.LoanApplication

	err := s.withLoanLease(ctx, loanID, func() error {
		return database.WithTransaction(s.db, func(tx *gorm.DB) error {
			var err error
			loan, err = lockLoan(tx, loanID)
			if err != nil {
				return err
			}
			if !loan.OwnedBy(actorID) {
				return models.ErrUnauthorized
			}

			oldStatus := loan.Status
			now := time.Now()
			offer, err := findSelectableOffer(tx, loanID, offerID, now)
			if err != nil {
				return err
			}

			terms := models.ApprovalTerms{
				Amount:        offer.OfferedAmount,
				InterestRate:  offer.InterestRate,
				ProcessingFee: offer.ProcessingFee,
				EmiAmount:     offer.EmiAmount,
				Tenure:        offer.Tenure,
			}
			if err := s.applyApproval(tx, loan, terms, actorID, now); err != nil {
				return err
			}

			offer.Status = models.OfferStatusSelected
			if err := tx.Save(offer).Error; err != nil {
				return fmt.Errorf("failed to mark offer selected: %w", err)
			}
			err = tx.Model(&models.LoanOffer{}).
				Where("loan_id = ? AND id <> ? AND status = ?", loanID, offerID, models.OfferStatusActive).
				Update("status", models.OfferStatusExpired).Error
			if err != nil {
				return fmt.Errorf("failed to expire sibling offers: %w", err)
			}

			if err := tx.Save(loan).Error; err != nil {
				return fmt.Errorf("failed to save loan: %w", err)
			}

			comment := loan.NewComment(
				fmt.Sprintf("Offer from %s accepted", offer.Provider),
				&actorID,
				fmt.Sprintf("%s:%s", oldStatus, loan.Status),
			)
			if err := tx.Create(&comment).Error; err != nil {
				return fmt.Errorf("failed to record selection comment: %w", err)
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterStatusChange(loan, true, false, false)
	return loan, nil
}

// applyApproval records the approval terms and generates the repayment
// schedule inside tx. The EMI is recomputed when the terms carry none.
func (s *LoanService) applyApproval(tx *gorm.DB, loan *models.LoanApplication, terms models.ApprovalTerms, actorID uuid.UUID, now time.Time) error {
	if terms.EmiAmount.LessThanOrEqual(decimal.Zero) {
		emi, err := amortization.EMI(terms.Amount, terms.InterestRate, terms.Tenure)
		if err != nil {
			return fmt.Errorf("failed to compute installment: %w", err)
		}
		terms.EmiAmount = emi
	}

	if err := loan.SetApprovalTerms(terms, actorID, now); err != nil {
		return err
	}
	return s.generateSchedule(tx, loan, now)
}

// generateSchedule creates the installment batch and projects the summary
// onto the aggregate. Guarded so a second call for the same loan fails.
func (s *LoanService) generateSchedule(tx *gorm.DB, loan *models.LoanApplication, anchor time.Time) error {
	if loan.HasSchedule() {
		return models.ErrScheduleExists
	}

	rows, err := amortization.Schedule(loan.Approval.Amount, loan.Approval.InterestRate, loan.Approval.Tenure, anchor)
	if err != nil {
		return fmt.Errorf("failed to build schedule: %w", err)
	}

	installments := make([]models.EmiPayment, 0, len(rows))
	for _, row := range rows {
		installments = append(installments, models.EmiPayment{
			LoanID:    loan.ID,
			Ordinal:   row.Period,
			DueDate:   row.DueDate,
			Amount:    row.Total,
			Principal: row.Principal,
			Interest:  row.Interest,
			Status:    models.EmiStatusPending,
		})
	}
	if err := tx.Create(&installments).Error; err != nil {
		return fmt.Errorf("failed to persist schedule: %w", err)
	}

	return loan.AttachSchedule(loan.Approval.EmiAmount, len(installments), rows[0].DueDate)
}

// afterStatusChange fires the side effects that must not hold up the
// transition: borrower emails and the wallet disbursement notice.
func (s *LoanService) afterStatusChange(loan *models.LoanApplication, approved, rejected, disbursed bool) {
	if disbursed {
		go s.wallet.NotifyDisbursement(loan)
		return
	}
	if !approved && !rejected {
		return
	}

	go func() {
		var patient models.User
		if err := s.db.First(&patient, "id = ?", loan.PatientID).Error; err != nil {
			logrus.WithError(err).WithField("loan_id", loan.ID).Warn("Failed to load patient for notification")
			return
		}
		if approved {
			s.notifications.SendLoanApprovedEmail(&patient, loan)
		} else {
			s.notifications.SendLoanRejectedEmail(&patient, loan)
		}
	}()
}

// GetSchedule returns the full installment schedule in period order.
func (s *LoanService) GetSchedule(loanID, actorID uuid.UUID, actorType models.UserType) ([]models.EmiPayment, error) {
	if _, err := s.GetLoan(loanID, actorID, actorType); err != nil {
		return nil, err
	}

	var installments []models.EmiPayment
	if err := s.db.Where("loan_id = ?", loanID).Order("ordinal ASC").Find(&installments).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch schedule: %w", err)
	}
	return installments, nil
}

// GetComments returns the loan's activity log, oldest first.
func (s *LoanService) GetComments(loanID, actorID uuid.UUID, actorType models.UserType) ([]models.LoanComment, error) {
	if _, err := s.GetLoan(loanID, actorID, actorType); err != nil {
		return nil, err
	}

	var comments []models.LoanComment
	if err := s.db.Where("loan_id = ?", loanID).Order("created_at ASC").Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch comments: %w", err)
	}
	return comments, nil
}

// AddComment appends to the activity log. Allowed in any status, terminal
// ones included.
func (s *LoanService) AddComment(loanID, actorID uuid.UUID, actorType models.UserType, message string) (*models.LoanComment, error) {
	loan, err := s.GetLoan(loanID, actorID, actorType)
	if err != nil {
		return nil, err
	}

	comment := loan.NewComment(message, &actorID, "")
	if err := s.db.Create(&comment).Error; err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	return &comment, nil
}

// SaveDocument records an uploaded document's metadata against the loan.
func (s *LoanService) SaveDocument(loanID, actorID uuid.UUID, actorType models.UserType, fileName string, upload *UploadResult) (*models.LoanDocument, error) {
	loan, err := s.GetLoan(loanID, actorID, actorType)
	if err != nil {
		return nil, err
	}

	doc := &models.LoanDocument{
		LoanID:      loan.ID,
		UploaderID:  actorID,
		FileName:    fileName,
		FileKey:     upload.Key,
		FileURL:     upload.URL,
		ContentType: upload.MimeType,
		Size:        upload.Size,
	}
	if err := s.db.Create(doc).Error; err != nil {
		return nil, fmt.Errorf("failed to record document: %w", err)
	}
	return doc, nil
}

// withLoanLease serializes mutation of one loan. ErrBusy surfaces as
// ErrConflict after the configured retries.
func (s *LoanService) withLoanLease(ctx context.Context, loanID uuid.UUID, fn func() error) error {
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

// lockLoan loads a loan with a row lock inside tx.
func lockLoan(tx *gorm.DB, loanID uuid.UUID) (*models.LoanApplication, error) {
	var loan models.LoanApplication
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&loan, "id = ?", loanID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: loan", models.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &loan, nil
}
