// internal/handlers/loan.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/medifund/lending-backend/internal/services"
	"github.com/medifund/lending-backend/internal/utils"
)

type LoanHandler struct {
	loans   *services.LoanService
	offers  *services.OfferService
	storage *services.StorageService
}

func NewLoanHandler(loans *services.LoanService, offers *services.OfferService, storage *services.StorageService) *LoanHandler {
	return &LoanHandler{loans: loans, offers: offers, storage: storage}
}

// Submit handles POST /v1/loans
func (h *LoanHandler) Submit(c *gin.Context) {
	userID, userType, ok := currentUser(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.SubmitLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	loan, offers, err := h.loans.SubmitApplication(&req, userID, userType)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"loan":   loan,
		"offers": offers,
	})
}

// Get handles GET /v1/loans/:id
func (h *LoanHandler) Get(c *gin.Context) {
	userID, userType, ok := currentUser(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	loanID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	loan, err := h.loans.GetLoan(loanID, userID, userType)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, loan)
}

// List handles GET /v1/loans
func (h *LoanHandler) List(c *gin.Context) {
	userID, userType, ok := currentUser(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	params := utils.GetPaginationParams(c)
	result, err := h.loans.ListLoans(userID, userType, params)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.PaginatedResponse(c, *result)
}

// UpdateStatus handles PATCH /v1/loans/:id/status (staff only, enforced by
// middleware).
func (h *LoanHandler) UpdateStatus(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	loanID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	loan, err := h.loans.UpdateStatus(c.Request.Context(), loanID, &req, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, loan)
}

// GetOffers handles GET /v1/loans/:id/offers
func (h *LoanHandler) GetOffers(c *gin.Context) {
	userID, userType, ok := currentUser(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	loanID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	// Ownership check rides on the loan load.
	if _, err := h.loans.GetLoan(loanID, userID, userType); err != nil {
		handleServiceError(c, err)
		return
	}

	offers, err := h.offers.GetOffers(loanID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, offers)
}

// SelectOffer handles POST /v1/loans/:id/offers/:offerId/select
func (h *LoanHandler) SelectOffer(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	loanID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	offerID, ok := parseUUIDParam(c, "offerId")
	if !ok {
		return
	}

	loan, err := h.loans.SelectOffer(c.Request.Context(), loanID, offerID, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, loan)
}

// GetSchedule handles GET /v1/loans/:id/schedule
func (h *LoanHandler) GetSchedule(c *gin.Context) {
	userID, userType, ok := currentUser(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	loanID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	schedule, err := h.loans.GetSchedule(loanID, userID, userType)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, schedule)
}

// GetComments handles GET /v1/loans/:id/comments
func (h *LoanHandler) GetComments(c *gin.Context) {
	userID, userType, ok := currentUser(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	loanID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	comments, err := h.loans.GetComments(loanID, userID, userType)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, comments)
}

// AddComment handles POST /v1/loans/:id/comments
func (h *LoanHandler) AddComment(c *gin.Context) {
	userID, userType, ok := currentUser(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	loanID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	comment, err := h.loans.AddComment(loanID, userID, userType, req.Message)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, comment)
}

// UploadDocument handles POST /v1/loans/:id/documents
func (h *LoanHandler) UploadDocument(c *gin.Context) {
	userID, userType, ok := currentUser(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	loanID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, "No file provided", nil)
		return
	}
	defer file.Close()

	upload, err := h.storage.UploadLoanDocument(file, header, loanID)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	doc, err := h.loans.SaveDocument(loanID, userID, userType, header.Filename, upload)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, doc)
}
