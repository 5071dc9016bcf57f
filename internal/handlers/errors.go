package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/youthtracker/internal/services"
	appErrors "github.com/charlesng35/youthtracker/pkg/errors"
	"github.com/charlesng35/youthtracker/pkg/logger"
	"github.com/charlesng35/youthtracker/pkg/response"
)

var errReminderCooldown = appErrors.NewConflict("A reminder was sent recently; try again later")

// translateError maps service errors onto API errors.
func translateError(err error) *appErrors.AppError {
	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var validation *services.ValidationError
	if errors.As(err, &validation) {
		return appErrors.NewBadRequest("invalid request", validation.Details()...)
	}

	switch {
	case errors.Is(err, services.ErrInvalidToken):
		return appErrors.ErrInvalidToken
	case errors.Is(err, services.ErrNotFound):
		return appErrors.ErrNotFound
	case errors.Is(err, services.ErrReminderCooldown):
		return errReminderCooldown
	case errors.Is(err, services.ErrConflict):
		return appErrors.ErrConflict
	case errors.Is(err, services.ErrDocumentGeneration):
		return appErrors.ErrDependencyFailure.WithMessage("The waiver document could not be generated").WithInternal(err)
	case errors.Is(err, services.ErrInvalidCredentials):
		return appErrors.ErrInvalidCredentials
	default:
		return appErrors.ErrInternalServer.WithInternal(err)
	}
}

// renderError writes the error envelope and logs failures the client cannot fix.
func renderError(c *gin.Context, err error) {
	appErr := translateError(err)
	if appErr.StatusCode >= 500 {
		logger.WithModule("handlers").Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	response.Error(c, appErr)
}
