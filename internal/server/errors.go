package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/beacon/internal/audit/domain"
	authdomain "github.com/smallbiznis/beacon/internal/auth/domain"
	"github.com/smallbiznis/beacon/internal/authorization"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
	invitationdomain "github.com/smallbiznis/beacon/internal/invitation/domain"
	organizationdomain "github.com/smallbiznis/beacon/internal/organization/domain"
	projectdomain "github.com/smallbiznis/beacon/internal/project/domain"
	signupdomain "github.com/smallbiznis/beacon/internal/signup/domain"
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

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// ErrorHandlingMiddleware turns errors recorded on the gin context into the
// JSON error envelope. Handlers that already wrote a body are left alone.
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

// errorClass groups sentinel errors that share one HTTP rendering. The
// first matching class wins, so the narrower plan-limit class has to sit
// above the generic forbidden one.
type errorClass struct {
	status    int
	errType   string
	message   string
	sentinels []error
}

var errorClasses = []errorClass{
	{
		status:  http.StatusUnauthorized,
		errType: "unauthorized",
		message: "unauthorized",
		sentinels: []error{
			ErrUnauthorized,
			authorization.ErrUnauthenticated,
			authdomain.ErrInvalidCredentials,
			authdomain.ErrInvalidSession,
			authdomain.ErrSessionExpired,
			authdomain.ErrSessionRevoked,
			authdomain.ErrUserNotFound,
		},
	},
	{
		status:  http.StatusForbidden,
		errType: "plan_limit_reached",
		message: "plan limit reached",
		sentinels: []error{
			projectdomain.ErrPlanLimitReached,
			invitationdomain.ErrMemberLimitReached,
		},
	},
	{
		status:  http.StatusForbidden,
		errType: "forbidden",
		message: "forbidden",
		sentinels: []error{
			ErrForbidden,
			authorization.ErrForbidden,
			authorization.ErrNotAMember,
			authorization.ErrInsufficientRole,
			organizationdomain.ErrNotAMember,
		},
	},
	{
		status:  http.StatusConflict,
		errType: "conflict",
		message: "conflict",
		sentinels: []error{
			ErrConflict,
			authdomain.ErrUserExists,
			organizationdomain.ErrOrganizationExists,
			organizationdomain.ErrLastOwner,
			projectdomain.ErrDuplicateCredential,
		},
	},
	{
		status:  http.StatusNotFound,
		errType: "not_found",
		message: "not found",
		sentinels: []error{
			ErrNotFound,
			projectdomain.ErrProjectNotFound,
			invitationdomain.ErrInvitationNotFound,
			gorm.ErrRecordNotFound,
		},
	},
	{
		status:    http.StatusTooManyRequests,
		errType:   "rate_limited",
		message:   "rate limited",
		sentinels: []error{ErrRateLimited},
	},
	{
		status:    http.StatusServiceUnavailable,
		errType:   "service_unavailable",
		message:   "service unavailable",
		sentinels: []error{ErrServiceUnavailable},
	},
}

// validationSentinels render as a 400 with a single synthesized field
// error. Every domain keeps its error text in snake_case (invalid_name,
// invalid_page_token, ...), which doubles as the error code.
var validationSentinels = []error{
	ErrInvalidRequest,
	signupdomain.ErrInvalidRequest,
	authorization.ErrInvalidOrganization,
	authorization.ErrInvalidActor,
	authorization.ErrInvalidObject,
	authorization.ErrInvalidAction,
	organizationdomain.ErrInvalidName,
	organizationdomain.ErrInvalidPlan,
	organizationdomain.ErrInvalidUser,
	organizationdomain.ErrInvalidOrganization,
	organizationdomain.ErrInvalidRole,
	projectdomain.ErrInvalidOrganization,
	projectdomain.ErrInvalidName,
	projectdomain.ErrInvalidID,
	eventdomain.ErrInvalidOrganization,
	eventdomain.ErrInvalidProject,
	eventdomain.ErrInvalidEventName,
	eventdomain.ErrInvalidOccurredAt,
	invitationdomain.ErrInvalidEmail,
	invitationdomain.ErrInvalidRole,
	auditdomain.ErrInvalidOrganization,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
}

// mapError is the single place domain errors become HTTP statuses. Anything
// unrecognized is a 500 with no internal detail in the body.
func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalErrorPayload()
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if matchesAny(err, validationSentinels) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	for _, class := range errorClasses {
		if matchesAny(err, class.sentinels) {
			return class.status, errorPayload{Type: class.errType, Message: class.message}
		}
	}

	return http.StatusInternalServerError, internalErrorPayload()
}

func internalErrorPayload() errorPayload {
	return errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

func matchesAny(err error, sentinels []error) bool {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, signupdomain.ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	if code == "invalid_request" {
		return "invalid request"
	}
	return "invalid value"
}
