// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type UserType string

const (
	UserTypePatient   UserType = "patient"
	UserTypeGuarantor UserType = "guarantor"
	UserTypeStaff     UserType = "hospital_staff"
	UserTypeAdmin     UserType = "admin"
)

// IsStaffRole reports whether this role may review and decide loans.
func (t UserType) IsStaffRole() bool {
	return t == UserTypeStaff || t == UserTypeAdmin
}

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

type ApplicantType string

const (
	ApplicantTypePatient   ApplicantType = "patient"
	ApplicantTypeGuarantor ApplicantType = "guarantor"
)

type LoanStatus string

const (
	LoanStatusSubmitted       LoanStatus = "submitted"
	LoanStatusUnderReview     LoanStatus = "under_review"
	LoanStatusCreditCheck     LoanStatus = "credit_check"
	LoanStatusDocumentsNeeded LoanStatus = "additional_documents_needed"
	LoanStatusApproved        LoanStatus = "approved"
	LoanStatusRejected        LoanStatus = "rejected"
	LoanStatusDisbursed       LoanStatus = "disbursed"
	LoanStatusClosed          LoanStatus = "closed"
)

// allowedTransitions is the loan state machine. Rejected and closed are
// terminal; the review statuses may move among each other before a decision.
var allowedTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusSubmitted:       {LoanStatusUnderReview, LoanStatusCreditCheck, LoanStatusDocumentsNeeded, LoanStatusApproved, LoanStatusRejected},
	LoanStatusUnderReview:     {LoanStatusCreditCheck, LoanStatusDocumentsNeeded, LoanStatusApproved, LoanStatusRejected},
	LoanStatusCreditCheck:     {LoanStatusUnderReview, LoanStatusDocumentsNeeded, LoanStatusApproved, LoanStatusRejected},
	LoanStatusDocumentsNeeded: {LoanStatusUnderReview, LoanStatusCreditCheck, LoanStatusApproved, LoanStatusRejected},
	LoanStatusApproved:        {LoanStatusDisbursed, LoanStatusClosed},
	LoanStatusDisbursed:       {LoanStatusClosed},
}

func (s LoanStatus) CanTransitionTo(target LoanStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s LoanStatus) IsTerminal() bool {
	return s == LoanStatusRejected || s == LoanStatusClosed
}

// EligibleForDecision reports whether a loan in this status may still be
// approved or rejected.
func (s LoanStatus) EligibleForDecision() bool {
	switch s {
	case LoanStatusSubmitted, LoanStatusUnderReview, LoanStatusCreditCheck, LoanStatusDocumentsNeeded:
		return true
	}
	return false
}

type OfferStatus string

const (
	OfferStatusActive   OfferStatus = "active"
	OfferStatusSelected OfferStatus = "selected"
	OfferStatusExpired  OfferStatus = "expired"
)

type EmiStatus string

const (
	EmiStatusPending       EmiStatus = "pending"
	EmiStatusPaid          EmiStatus = "paid"
	EmiStatusOverdue       EmiStatus = "overdue"
	EmiStatusPartiallyPaid EmiStatus = "partially_paid"
)

// Payable reports whether an installment in this status may still accept a
// payment. Overdue installments remain payable.
func (s EmiStatus) Payable() bool {
	return s == EmiStatusPending || s == EmiStatusOverdue
}
