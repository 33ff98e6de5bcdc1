// internal/handlers/payment.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/medifund/lending-backend/internal/services"
	"github.com/medifund/lending-backend/internal/utils"
)

type PaymentHandler struct {
	payments *services.PaymentService
}

func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// PayInstallment handles POST /v1/loans/:id/payments
func (h *PaymentHandler) PayInstallment(c *gin.Context) {
	userID, userType, ok := currentUser(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	loanID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.PayInstallmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	installment, err := h.payments.PayInstallment(c.Request.Context(), loanID, &req, userID, userType)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, installment)
}

// Prepay handles POST /v1/loans/:id/prepayments
func (h *PaymentHandler) Prepay(c *gin.Context) {
	userID, userType, ok := currentUser(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	loanID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.PrepayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	loan, err := h.payments.Prepay(c.Request.Context(), loanID, &req, userID, userType)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, loan)
}
