// internal/handlers/common.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medifund/lending-backend/internal/models"
	"github.com/medifund/lending-backend/internal/services"
	"github.com/medifund/lending-backend/internal/utils"
)

// currentUser pulls the authenticated identity from the request context.
func currentUser(c *gin.Context) (uuid.UUID, models.UserType, bool) {
	idStr, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return uuid.Nil, "", false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, "", false
	}
	typeStr, ok := utils.GetUserTypeFromContext(c)
	if !ok {
		return uuid.Nil, "", false
	}
	return id, models.UserType(typeStr), true
}

// parseUUIDParam parses a path parameter as a UUID, writing the error
// response itself on failure.
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

// handleServiceError maps domain errors onto HTTP responses.
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		utils.NotFoundResponse(c, "Resource")
	case errors.Is(err, models.ErrUnauthorized):
		utils.ForbiddenResponse(c, "You do not have access to this loan")
	case errors.Is(err, models.ErrInvalidAmount):
		utils.BadRequestResponse(c, err.Error(), nil)
	case errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrAlreadySettled),
		errors.Is(err, models.ErrScheduleExists),
		errors.Is(err, models.ErrConflict):
		utils.ConflictResponse(c, err.Error())
	case errors.Is(err, services.ErrPaymentNotConfirmed):
		utils.ErrorResponse(c, http.StatusPaymentRequired, "PAYMENT_NOT_CONFIRMED", err.Error(), nil)
	default:
		logrus.WithError(err).Error("Unhandled service error")
		utils.InternalErrorResponse(c, "")
	}
}
