// internal/services/notification_service.go
package services

import (
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/medifund/lending-backend/internal/config"
	"github.com/medifund/lending-backend/internal/models"
)

// NotificationService delivers lifecycle emails to borrowers. All sends are
// best-effort; callers fire them in goroutines and failures are logged.
type NotificationService struct {
	cfg *config.Config
}

func NewNotificationService(cfg *config.Config) *NotificationService {
	return &NotificationService{cfg: cfg}
}

func (s *NotificationService) SendLoanApprovedEmail(user *models.User, loan *models.LoanApplication) {
	subject := "Loan Approved - " + loan.ApplicationNumber
	body := fmt.Sprintf(
		"<p>Dear %s,</p><p>Your loan application %s has been approved for %s over %d months at %s%% per annum. "+
			"Your monthly installment is %s.</p>",
		user.Username, loan.ApplicationNumber, loan.Approval.Amount.StringFixed(2),
		loan.Approval.Tenure, loan.Approval.InterestRate.String(), loan.Approval.EmiAmount.StringFixed(2),
	)
	s.send(user.Email, subject, body)
}

func (s *NotificationService) SendLoanRejectedEmail(user *models.User, loan *models.LoanApplication) {
	subject := "Loan Application Update - " + loan.ApplicationNumber
	body := fmt.Sprintf(
		"<p>Dear %s,</p><p>Your loan application %s was not approved. Reason: %s</p>",
		user.Username, loan.ApplicationNumber, loan.Rejection.Reason,
	)
	s.send(user.Email, subject, body)
}

func (s *NotificationService) SendLoanClosedEmail(user *models.User, loan *models.LoanApplication) {
	subject := "Loan Closed - " + loan.ApplicationNumber
	body := fmt.Sprintf(
		"<p>Dear %s,</p><p>Your loan %s has been fully repaid and is now closed. Thank you.</p>",
		user.Username, loan.ApplicationNumber,
	)
	s.send(user.Email, subject, body)
}

func (s *NotificationService) send(to, subject, body string) {
	if s.cfg.Email.SMTPUsername == "" {
		logrus.WithField("to", to).Debug("SMTP not configured, skipping email")
		return
	}

	e := email.NewEmail()
	e.From = fmt.Sprintf("%s <%s>", s.cfg.Email.FromName, s.cfg.Email.FromEmail)
	e.To = []string{to}
	e.Subject = subject
	e.HTML = []byte(body)

	addr := s.cfg.Email.SMTPHost + ":" + s.cfg.Email.SMTPPort
	auth := smtp.PlainAuth("", s.cfg.Email.SMTPUsername, s.cfg.Email.SMTPPassword, s.cfg.Email.SMTPHost)

	if err := e.Send(addr, auth); err != nil {
		logrus.WithError(err).WithField("to", to).Error("Failed to send email")
	}
}
