package server

import (
	"errors"
	"net/http"

	feeddomain "github.com/formgate/formgate/internal/feed/domain"
	orderdomain "github.com/formgate/formgate/internal/order/domain"
	paymentdomain "github.com/formgate/formgate/internal/payment/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware renders the last handler error as a JSON payload.
// Handlers push errors through AbortWithError and never write error bodies
// themselves.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// mapError translates domain sentinels into HTTP status and payload.
// DuplicateEvent and UnhandledEventKind never reach here; callback handlers
// acknowledge them with 200 so the processor stops redelivering.
func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, paymentdomain.ErrMalformedPayload):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "malformed payload",
		}
	case errors.Is(err, paymentdomain.ErrValidationFailed):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "payment verification failed",
		}
	case errors.Is(err, feeddomain.ErrInvalidConfig):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "invalid feed credentials",
		}
	case errors.Is(err, paymentdomain.ErrUnauthenticated):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, paymentdomain.ErrOrderAlreadyPaid):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "order already paid",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrGatewayUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "bad_gateway",
			Message: "payment processor unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, feeddomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog labels request-log entries without leaking internals.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if asValidationErrors(err) != nil {
		return "validation_error", "invalid_request"
	}
	switch {
	case errors.Is(err, paymentdomain.ErrMalformedPayload):
		return "validation_error", "malformed_payload"
	case errors.Is(err, paymentdomain.ErrValidationFailed):
		return "validation_error", "validation_failed"
	case errors.Is(err, feeddomain.ErrInvalidConfig):
		return "validation_error", "invalid_feed_config"
	case errors.Is(err, paymentdomain.ErrUnauthenticated):
		return "forbidden", "unauthenticated"
	case errors.Is(err, paymentdomain.ErrOrderAlreadyPaid):
		return "conflict", "order_already_paid"
	case isNotFoundError(err):
		return "not_found", "not_found"
	case errors.Is(err, paymentdomain.ErrGatewayUnavailable):
		return "bad_gateway", "gateway_unavailable"
	default:
		return "internal_error", "internal_error"
	}
}
