package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pharmds-ddi-server/internal/domain"
	"github.com/pharmds-ddi-server/internal/middleware"
	"github.com/pharmds-ddi-server/internal/service"
)

// ResolutionDetails lists every name that failed to resolve.
type ResolutionDetails struct {
	NotFound  []*domain.NotFoundError      `json:"not_found,omitempty"`
	Ambiguous []*domain.AmbiguousNameError `json:"ambiguous,omitempty"`
}

// collectResolutionErrors flattens joined resolution errors.
func collectResolutionErrors(err error) ResolutionDetails {
	var out ResolutionDetails
	var walk func(error)
	walk = func(e error) {
		switch v := e.(type) {
		case nil:
		case *domain.NotFoundError:
			out.NotFound = append(out.NotFound, v)
		case *domain.AmbiguousNameError:
			out.Ambiguous = append(out.Ambiguous, v)
		case interface{ Unwrap() []error }:
			for _, inner := range v.Unwrap() {
				walk(inner)
			}
		default:
			walk(errors.Unwrap(e))
		}
	}
	walk(err)
	return out
}

// statusFor maps an engine error to an HTTP status and error code.
// Unknown names win over ambiguous ones when both occur.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, domain.CodeNotFound
	case errors.Is(err, domain.ErrAmbiguousName):
		return http.StatusConflict, domain.CodeAmbiguousName
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, domain.CodeValidation
	case errors.Is(err, service.ErrNoSnapshot):
		return http.StatusServiceUnavailable, domain.CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, domain.CodeTimeout
	default:
		return http.StatusInternalServerError, domain.CodeInternal
	}
}

// respondError writes the error envelope for err.
func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)

	var details any
	message := err.Error()
	switch code {
	case domain.CodeNotFound, domain.CodeAmbiguousName:
		details = collectResolutionErrors(err)
	case domain.CodeValidation:
		var list domain.ValidationErrors
		var single *domain.ValidationError
		if errors.As(err, &list) {
			details = list
		} else if errors.As(err, &single) {
			details = single
		}
	case domain.CodeInternal:
		_ = c.Error(err)
		message = "internal server error"
	}

	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, details, middleware.GetCorrelationID(c)))
}

func respondCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, nil, middleware.GetCorrelationID(c)))
}
