// internal/handlers/auth.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medifund/lending-backend/internal/models"
	"github.com/medifund/lending-backend/internal/services"
	"github.com/medifund/lending-backend/internal/utils"
)

type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Register handles POST /v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	resp, err := h.auth.Register(&req)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			utils.ConflictResponse(c, "Username or email already taken")
			return
		}
		handleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, resp)
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	resp, err := h.auth.Login(&req)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			utils.UnauthorizedResponse(c, "Invalid credentials")
			return
		}
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, resp)
}

// Refresh handles POST /v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req services.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}

	resp, err := h.auth.RefreshToken(&req)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			utils.UnauthorizedResponse(c, "Invalid refresh token")
			return
		}
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, resp)
}

// Profile handles GET /v1/auth/profile
func (h *AuthHandler) Profile(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok || userID == uuid.Nil {
		utils.UnauthorizedResponse(c, "")
		return
	}

	user, err := h.auth.GetProfile(userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, user)
}
