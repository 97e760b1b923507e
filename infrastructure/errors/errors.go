// Package errors provides unified error handling for the harvester.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Validation errors (3xxx)
	ErrCodeInvalidInput     ErrorCode = "VAL_3001"
	ErrCodeMissingParameter ErrorCode = "VAL_3002"
	ErrCodeInvalidFormat    ErrorCode = "VAL_3003"
	ErrCodeOutOfRange       ErrorCode = "VAL_3004"

	// Service errors (5xxx)
	ErrCodeInternal          ErrorCode = "SVC_5001"
	ErrCodeExternalAPI       ErrorCode = "SVC_5004"
	ErrCodeTimeout           ErrorCode = "SVC_5005"
	ErrCodeRateLimitExceeded ErrorCode = "SVC_5006"

	// Harvester errors (8xxx)
	ErrCodeDiscoveryFailed     ErrorCode = "HRV_8001"
	ErrCodeEnrichmentFailed    ErrorCode = "HRV_8002"
	ErrCodeValidationFailed    ErrorCode = "HRV_8003"
	ErrCodeRetentionFailed     ErrorCode = "HRV_8004"
	ErrCodeCompletenessFailed  ErrorCode = "HRV_8005"
	ErrCodeOrchestrationFailed ErrorCode = "HRV_8006"
	ErrCodeRollbackFailed      ErrorCode = "HRV_8007"
	ErrCodeCircuitOpen         ErrorCode = "HRV_8008"
)

// ServiceError represents a structured error with code, message, and HTTP status
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with a ServiceError
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Validation Errors

func InvalidInput(field, reason string) *ServiceError {
	return New(ErrCodeInvalidInput, "Invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func MissingParameter(param string) *ServiceError {
	return New(ErrCodeMissingParameter, "Missing required parameter", http.StatusBadRequest).
		WithDetails("parameter", param)
}

func InvalidFormat(field, expected string) *ServiceError {
	return New(ErrCodeInvalidFormat, "Invalid format", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("expected", expected)
}

func OutOfRange(field string, minValue, maxValue interface{}) *ServiceError {
	return New(ErrCodeOutOfRange, "Value out of range", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("min", minValue).
		WithDetails("max", maxValue)
}

// Service Errors

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

func ExternalAPIError(service string, err error) *ServiceError {
	return Wrap(ErrCodeExternalAPI, "External API call failed", http.StatusBadGateway, err).
		WithDetails("service", service)
}

func Timeout(operation string) *ServiceError {
	return New(ErrCodeTimeout, "Operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Harvester Errors

func DiscoveryFailed(strategy string, err error) *ServiceError {
	return Wrap(ErrCodeDiscoveryFailed, "Discovery strategy failed", http.StatusBadGateway, err).
		WithDetails("strategy", strategy)
}

func EnrichmentFailed(modelID string, err error) *ServiceError {
	return Wrap(ErrCodeEnrichmentFailed, "Model enrichment failed", http.StatusBadGateway, err).
		WithDetails("model_id", modelID)
}

func ValidationFailed(modelID string, issueCount int) *ServiceError {
	return New(ErrCodeValidationFailed, "Validation failed", http.StatusUnprocessableEntity).
		WithDetails("model_id", modelID).
		WithDetails("issue_count", issueCount)
}

func RetentionFailed(phase string, err error) *ServiceError {
	return Wrap(ErrCodeRetentionFailed, "Retention phase failed", http.StatusInternalServerError, err).
		WithDetails("phase", phase)
}

func CompletenessFailed(reason string) *ServiceError {
	return New(ErrCodeCompletenessFailed, "Completeness verification failed", http.StatusInternalServerError).
		WithDetails("reason", reason)
}

func OrchestrationFailed(phase string, err error) *ServiceError {
	return Wrap(ErrCodeOrchestrationFailed, "Orchestrator phase failed", http.StatusInternalServerError, err).
		WithDetails("phase", phase)
}

func RollbackFailed(point string, err error) *ServiceError {
	return Wrap(ErrCodeRollbackFailed, "Rollback failed", http.StatusInternalServerError, err).
		WithDetails("rollback_point", point)
}

func CircuitOpen(operation string) *ServiceError {
	return New(ErrCodeCircuitOpen, "Circuit breaker is open", http.StatusServiceUnavailable).
		WithDetails("operation", operation)
}

// Helper functions

// IsServiceError checks if an error is a ServiceError
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
