// internal/services/wallet_service.go
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medifund/lending-backend/internal/config"
	"github.com/medifund/lending-backend/internal/models"
)

// WalletService notifies the external wallet collaborator when a loan is
// disbursed. Delivery is fire-and-forget with bounded retries: a failure is
// logged, never propagated back to the status transition that triggered it.
type WalletService struct {
	cfg    *config.Config
	client *http.Client
}

type disbursementNotice struct {
	LoanID            string `json:"loan_id"`
	ApplicationNumber string `json:"application_number"`
	PatientID         string `json:"patient_id"`
	Amount            string `json:"amount"`
	DisbursedAt       string `json:"disbursed_at"`
}

func NewWalletService(cfg *config.Config) *WalletService {
	return &WalletService{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.Wallet.TimeoutSeconds) * time.Second,
		},
	}
}

// NotifyDisbursement posts the disbursement event to the wallet sink,
// retrying with backoff. Intended to run in its own goroutine.
func (s *WalletService) NotifyDisbursement(loan *models.LoanApplication) {
	if s.cfg.Wallet.BaseURL == "" {
		logrus.WithField("loan_id", loan.ID).Debug("Wallet sink not configured, skipping disbursement notification")
		return
	}

	notice := disbursementNotice{
		LoanID:            loan.ID.String(),
		ApplicationNumber: loan.ApplicationNumber,
		PatientID:         loan.PatientID.String(),
		Amount:            loan.Approval.Amount.String(),
	}
	if loan.Approval.DisbursedAt != nil {
		notice.DisbursedAt = loan.Approval.DisbursedAt.Format(time.RFC3339)
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.Wallet.MaxRetries; attempt++ {
		if lastErr = s.send(notice); lastErr == nil {
			logrus.WithFields(logrus.Fields{
				"loan_id": loan.ID,
				"attempt": attempt,
			}).Info("Disbursement notification delivered")
			return
		}
		time.Sleep(time.Duration(attempt) * time.Second)
	}

	logrus.WithError(lastErr).WithField("loan_id", loan.ID).
		Error("Failed to deliver disbursement notification, giving up")
}

func (s *WalletService) send(notice disbursementNotice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to encode notice: %w", err)
	}

	resp, err := s.client.Post(s.cfg.Wallet.BaseURL+"/disbursements", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("wallet request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("wallet sink returned status %d", resp.StatusCode)
	}

	return nil
}
