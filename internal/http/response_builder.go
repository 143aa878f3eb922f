package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"
	applog "github.com/FlashinnightPT/expense-echo-manager-sub001/internal/log"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/session"
	"github.com/go-playground/validator/v10"
)

// Error codes returned in the body of failed requests.
const (
	CodeValidation        = "validation_failed"
	CodeNotFound          = "not_found"
	CodeHasChildren       = "has_children"
	CodeInUse             = "in_use"
	CodeCircularReference = "circular_reference"
	CodeReadOnly          = "read_only"
	CodeUnavailable       = "storage_unavailable"
	CodeBadRequest        = "bad_request"
	CodeRateLimited       = "rate_limited"
	CodeInternal          = "internal_error"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// errBadRequest marks malformed input that never reached the domain.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps an error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity, CodeValidation
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, core.ErrHasChildren):
		return http.StatusConflict, CodeHasChildren
	case errors.Is(err, core.ErrInUse):
		return http.StatusConflict, CodeInUse
	case errors.Is(err, core.ErrCircularReference):
		return http.StatusConflict, CodeCircularReference
	case errors.Is(err, session.ErrReadOnly):
		return http.StatusForbidden, CodeReadOnly
	case errors.Is(err, session.ErrPersistence):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the mapped error body. Server-side failures are logged
// with the cause and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	detail := ErrorDetail{Code: code, Message: err.Error()}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		status, detail.Code = http.StatusUnprocessableEntity, CodeValidation
		detail.Message = "request validation failed"
		detail.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			detail.Fields[fe.Field()] = describeFieldError(fe)
		}
	}

	logger := applog.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed",
			applog.FieldError, err,
			applog.FieldErrorType, code,
			applog.FieldPath, r.URL.Path)
		if status == http.StatusInternalServerError {
			detail.Message = "internal error"
		} else {
			detail.Message = "storage is unavailable, retry later"
		}
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			applog.FieldError, err,
			applog.FieldErrorType, code)
	}
	writeJSON(w, status, ErrorBody{Error: detail})
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

func rateLimited(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, ErrorBody{Error: ErrorDetail{
		Code:    CodeRateLimited,
		Message: "rate limit exceeded, please try again later",
	}})
}

func suspicious(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{
		Code:    CodeBadRequest,
		Message: "request rejected",
	}})
}
