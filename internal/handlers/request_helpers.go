package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"sidehustlers/internal/identity"
	"sidehustlers/internal/profile"
)

func respondValidationError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			field := lowerCamel(fieldError.Field())
			switch fieldError.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", field))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", field))
			}
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"details": details,
		})
		return
	}

	var profileErr *profile.ValidationError
	if errors.As(err, &profileErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"details": profileErr.Messages(),
		})
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "details": err.Error()})
}

func lowerCamel(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func respondWithError(c *gin.Context, logger *zap.Logger, status int, message string, err error) {
	fields := []zap.Field{zap.String("route", c.FullPath()), zap.Int("status", status)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if status >= http.StatusInternalServerError {
		logger.Error(message, fields...)
	} else {
		logger.Info(message, fields...)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// respondAuthError answers with the normalized code and its German message.
func respondAuthError(c *gin.Context, logger *zap.Logger, err error) {
	authErr := identity.ToAuthError(err)
	status := authStatus(authErr.Code)
	if status >= http.StatusInternalServerError {
		logger.Error("auth action failed", zap.String("route", c.FullPath()), zap.String("code", authErr.Code), zap.Error(err))
	} else {
		logger.Info("auth action rejected", zap.String("route", c.FullPath()), zap.String("code", authErr.Code))
	}
	c.AbortWithStatusJSON(status, gin.H{"code": authErr.Code, "message": authErr.Message})
}

func authStatus(code string) int {
	switch code {
	case identity.CodeWrongPassword, identity.CodeUserNotFound, identity.CodeInvalidCredential,
		identity.CodeInvalidIDToken, identity.CodeUserTokenExpired:
		return http.StatusUnauthorized
	case identity.CodeInvalidEmail, identity.CodeWeakPassword, identity.CodeCancelledPopupRequest,
		identity.CodePopupClosedByUser, identity.CodePopupBlocked:
		return http.StatusBadRequest
	case identity.CodeUserDisabled, identity.CodeOperationNotAllowed:
		return http.StatusForbidden
	case identity.CodeEmailAlreadyInUse:
		return http.StatusConflict
	case identity.CodeTooManyRequests:
		return http.StatusTooManyRequests
	case identity.CodeNetworkRequestFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func authErrorCode(err error) string {
	return identity.ToAuthError(err).Code
}
