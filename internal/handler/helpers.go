package handler

import (
	"errors"
	"net/http"

	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/apierror"
	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails —
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid JSON: "+err.Error()))
		return false
	}
	if err := validate.Struct(req); err != nil {
		fields := make(map[string]string)
		for _, fe := range err.(validator.ValidationErrors) {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
// Validation → 400, state conflicts → 409, not found → 404. Anything else is
// an opaque infrastructure failure: logged via the error middleware, the
// client sees a generic retryable 500 distinct from business rejections.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidAdjustment),
		errors.Is(err, service.ErrInvalidOperationType),
		errors.Is(err, service.ErrEmptyDescription),
		errors.Is(err, service.ErrInvalidBusinessDate):
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
	case errors.Is(err, service.ErrSessionAlreadyOpen),
		errors.Is(err, service.ErrSessionNotOpen),
		errors.Is(err, service.ErrSessionStillOpen):
		c.JSON(http.StatusConflict, apierror.New(err.Error()))
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, apierror.New(err.Error()))
	default:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, apierror.New("Internal server error — please try again"))
	}
}
