package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"anomaly-dashboard/internal/models"
)

type ErrorCode string

const (
	CodeInternal               ErrorCode = "INTERNAL_ERROR"
	CodeValidation             ErrorCode = "VALIDATION_ERROR"
	CodeNotFound               ErrorCode = "NOT_FOUND"
	CodeBadRequest             ErrorCode = "BAD_REQUEST"
	CodeConflict               ErrorCode = "CONFLICT"
	CodeRateLimit              ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeServiceUnavail         ErrorCode = "SERVICE_UNAVAILABLE"
	CodeInsufficientData       ErrorCode = "INSUFFICIENT_DATA"
	CodeDegenerateDistribution ErrorCode = "DEGENERATE_DISTRIBUTION"
	CodeGeneration             ErrorCode = "GENERATION_FAILED"
	CodeCancelled              ErrorCode = "CANCELLED"
	CodeTimeout                ErrorCode = "TIMEOUT"
)

type AppError struct {
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Details    string            `json:"details,omitempty"`
	StatusCode int               `json:"-"`
	Cause      error             `json:"-"`
	Timestamp  time.Time         `json:"timestamp"`
	RequestID  string            `json:"request_id,omitempty"`
	Key        *models.RecordKey `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: getStatusCode(code),
		Timestamp:  time.Now().UTC(),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

func Internal(message string) *AppError {
	return New(CodeInternal, message)
}

func InternalWrap(err error, message string) *AppError {
	return Wrap(err, CodeInternal, message)
}

func NotFound(message string) *AppError {
	return New(CodeNotFound, message)
}

func BadRequest(message string) *AppError {
	return New(CodeBadRequest, message)
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message)
}

func RateLimit(message string) *AppError {
	return New(CodeRateLimit, message)
}

// InsufficientData reports a batch too small for the requested anomaly count.
func InsufficientData(batchSize, anomalyCount int) *AppError {
	appErr := New(CodeInsufficientData, "batch size must exceed anomaly count")
	appErr.Details = fmt.Sprintf("batch_size=%d anomaly_count=%d", batchSize, anomalyCount)
	return appErr
}

// DegenerateDistribution reports a batch whose sales amounts cannot be
// standardized.
func DegenerateDistribution(message string) *AppError {
	return New(CodeDegenerateDistribution, message)
}

// Generation reports a failed explanation call for the record with the given key.
func Generation(key models.RecordKey, err error) *AppError {
	appErr := Wrap(err, CodeGeneration, "explanation generation failed")
	appErr.Details = "record " + key.String()
	appErr.Key = &key
	return appErr
}

// Cancelled reports a run stopped by the caller before it finished.
func Cancelled(err error) *AppError {
	return Wrap(err, CodeCancelled, "run cancelled")
}

// Timeout reports a run that exceeded its deadline.
func Timeout(err error) *AppError {
	return Wrap(err, CodeTimeout, "run timed out")
}

// FromContext converts a context cancellation or deadline in err's chain into
// a CANCELLED or TIMEOUT error. Errors that already carry an AppError, and
// any other error, are returned unchanged.
func FromContext(err error) error {
	var appErr *AppError
	switch {
	case err == nil:
		return nil
	case stderrors.As(err, &appErr):
		return err
	case stderrors.Is(err, context.DeadlineExceeded):
		return Timeout(err)
	case stderrors.Is(err, context.Canceled):
		return Cancelled(err)
	default:
		return err
	}
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// GenerationKey returns the key of the record whose explanation failed.
func GenerationKey(err error) (models.RecordKey, bool) {
	var appErr *AppError
	if !stderrors.As(err, &appErr) || appErr.Code != CodeGeneration || appErr.Key == nil {
		return models.RecordKey{}, false
	}
	return *appErr.Key, true
}

func getStatusCode(code ErrorCode) int {
	switch code {
	case CodeValidation, CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeCancelled:
		return http.StatusConflict
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeServiceUnavail:
		return http.StatusServiceUnavailable
	case CodeInsufficientData, CodeDegenerateDistribution:
		return http.StatusUnprocessableEntity
	case CodeGeneration:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type ErrorResponse struct {
	Error   *AppError `json:"error"`
	Success bool      `json:"success"`
}

func WriteError(w http.ResponseWriter, logger *slog.Logger, err error, requestID string) {
	var appErr *AppError
	if !stderrors.As(FromContext(err), &appErr) {
		appErr = InternalWrap(err, "An unexpected error occurred")
	}

	appErr.RequestID = requestID

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)

	response := ErrorResponse{
		Error:   appErr,
		Success: false,
	}

	if encodeErr := json.NewEncoder(w).Encode(response); encodeErr != nil {
		logger.Error("failed to encode error response",
			"encode_error", encodeErr,
			"original_error", err,
			"request_id", requestID,
		)
		return
	}

	logLevel := slog.LevelError
	if appErr.StatusCode < 500 || appErr.Code == CodeTimeout {
		logLevel = slog.LevelWarn
	}

	logger.Log(context.TODO(), logLevel, "request failed",
		"error_code", appErr.Code,
		"error_message", appErr.Message,
		"status_code", appErr.StatusCode,
		"request_id", requestID,
		"cause", appErr.Cause,
	)
}

type SuccessResponse struct {
	Data    any  `json:"data"`
	Success bool `json:"success"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessWithStatus(w, http.StatusOK, data)
}

func WriteSuccessWithStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(SuccessResponse{
		Data:    data,
		Success: true,
	})
}
