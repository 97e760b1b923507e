package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(ErrCodeInvalidInput, "test message", http.StatusBadRequest),
			want: "[VAL_3001] test message",
		},
		{
			name: "error with underlying error",
			err:  Wrap(ErrCodeInternal, "test message", http.StatusInternalServerError, errors.New("underlying")),
			want: "[SVC_5001] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(ErrCodeInternal, "test", http.StatusInternalServerError, underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestServiceError_WithDetails(t *testing.T) {
	err := New(ErrCodeInvalidInput, "test", http.StatusBadRequest)
	err.WithDetails("field", "name").WithDetails("reason", "empty")

	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}

	if err.Details["field"] != "name" {
		t.Errorf("Details[field] = %v, want name", err.Details["field"])
	}

	if err.Details["reason"] != "empty" {
		t.Errorf("Details[reason] = %v, want empty", err.Details["reason"])
	}
}

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("downloads", "negative value")

	if err.Code != ErrCodeInvalidInput {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidInput)
	}

	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}

	if err.Details["field"] != "downloads" {
		t.Errorf("Details[field] = %v, want downloads", err.Details["field"])
	}
}

func TestMissingParameter(t *testing.T) {
	err := MissingParameter("model_id")

	if err.Code != ErrCodeMissingParameter {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeMissingParameter)
	}

	if err.Details["parameter"] != "model_id" {
		t.Errorf("Details[parameter] = %v, want model_id", err.Details["parameter"])
	}
}

func TestOutOfRange(t *testing.T) {
	err := OutOfRange("quality_score", 0, 100)

	if err.Code != ErrCodeOutOfRange {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeOutOfRange)
	}

	if err.Details["field"] != "quality_score" {
		t.Errorf("Details[field] = %v, want quality_score", err.Details["field"])
	}

	if err.Details["min"] != 0 {
		t.Errorf("Details[min] = %v, want 0", err.Details["min"])
	}

	if err.Details["max"] != 100 {
		t.Errorf("Details[max] = %v, want 100", err.Details["max"])
	}
}

func TestInternal(t *testing.T) {
	underlying := errors.New("disk full")
	err := Internal("internal error", underlying)

	if err.Code != ErrCodeInternal {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInternal)
	}

	if err.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusInternalServerError)
	}

	if err.Err != underlying {
		t.Errorf("Err = %v, want %v", err.Err, underlying)
	}
}

func TestExternalAPIError(t *testing.T) {
	underlying := errors.New("connection refused")
	err := ExternalAPIError("hub", underlying)

	if err.Code != ErrCodeExternalAPI {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeExternalAPI)
	}

	if err.Details["service"] != "hub" {
		t.Errorf("Details[service] = %v, want hub", err.Details["service"])
	}
}

func TestRateLimitExceeded(t *testing.T) {
	err := RateLimitExceeded(100, "1m")

	if err.Code != ErrCodeRateLimitExceeded {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeRateLimitExceeded)
	}

	if err.HTTPStatus != http.StatusTooManyRequests {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusTooManyRequests)
	}

	if err.Details["limit"] != 100 {
		t.Errorf("Details[limit] = %v, want 100", err.Details["limit"])
	}
}

func TestTimeout(t *testing.T) {
	err := Timeout("list_models")

	if err.Code != ErrCodeTimeout {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeTimeout)
	}

	if err.HTTPStatus != http.StatusGatewayTimeout {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusGatewayTimeout)
	}

	if err.Details["operation"] != "list_models" {
		t.Errorf("Details[operation] = %v, want list_models", err.Details["operation"])
	}
}

func TestDiscoveryFailed(t *testing.T) {
	underlying := errors.New("search timed out")
	err := DiscoveryFailed("quantization_tags", underlying)

	if err.Code != ErrCodeDiscoveryFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeDiscoveryFailed)
	}

	if err.Details["strategy"] != "quantization_tags" {
		t.Errorf("Details[strategy] = %v, want quantization_tags", err.Details["strategy"])
	}
}

func TestEnrichmentFailed(t *testing.T) {
	underlying := errors.New("siblings fetch failed")
	err := EnrichmentFailed("org/model", underlying)

	if err.Code != ErrCodeEnrichmentFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeEnrichmentFailed)
	}

	if err.Details["model_id"] != "org/model" {
		t.Errorf("Details[model_id] = %v, want org/model", err.Details["model_id"])
	}
}

func TestValidationFailed(t *testing.T) {
	err := ValidationFailed("org/model", 3)

	if err.Code != ErrCodeValidationFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeValidationFailed)
	}

	if err.Details["issue_count"] != 3 {
		t.Errorf("Details[issue_count] = %v, want 3", err.Details["issue_count"])
	}
}

func TestRetentionFailed(t *testing.T) {
	underlying := errors.New("merge failed")
	err := RetentionFailed("merge", underlying)

	if err.Code != ErrCodeRetentionFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeRetentionFailed)
	}

	if err.Details["phase"] != "merge" {
		t.Errorf("Details[phase] = %v, want merge", err.Details["phase"])
	}
}

func TestCompletenessFailed(t *testing.T) {
	err := CompletenessFailed("hub total unavailable")

	if err.Code != ErrCodeCompletenessFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeCompletenessFailed)
	}

	if err.Details["reason"] != "hub total unavailable" {
		t.Errorf("Details[reason] = %v, want hub total unavailable", err.Details["reason"])
	}
}

func TestOrchestrationFailed(t *testing.T) {
	underlying := errors.New("phase panicked")
	err := OrchestrationFailed("discovery", underlying)

	if err.Code != ErrCodeOrchestrationFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeOrchestrationFailed)
	}
}

func TestRollbackFailed(t *testing.T) {
	underlying := errors.New("copy failed")
	err := RollbackFailed("merge_phase", underlying)

	if err.Code != ErrCodeRollbackFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeRollbackFailed)
	}

	if err.Details["rollback_point"] != "merge_phase" {
		t.Errorf("Details[rollback_point] = %v, want merge_phase", err.Details["rollback_point"])
	}
}

func TestCircuitOpen(t *testing.T) {
	err := CircuitOpen("hub.list_models")

	if err.Code != ErrCodeCircuitOpen {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeCircuitOpen)
	}

	if err.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusServiceUnavailable)
	}
}

func TestIsServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "service error",
			err:  New(ErrCodeInternal, "test", http.StatusInternalServerError),
			want: true,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsServiceError(tt.err); got != tt.want {
				t.Errorf("IsServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetServiceError(t *testing.T) {
	serviceErr := New(ErrCodeInternal, "test", http.StatusInternalServerError)
	standardErr := errors.New("standard error")

	tests := []struct {
		name string
		err  error
		want *ServiceError
	}{
		{
			name: "service error",
			err:  serviceErr,
			want: serviceErr,
		},
		{
			name: "standard error",
			err:  standardErr,
			want: nil,
		},
		{
			name: "nil error",
			err:  nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetServiceError(tt.err)
			if got != tt.want {
				t.Errorf("GetServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "service error",
			err:  New(ErrCodeTimeout, "test", http.StatusGatewayTimeout),
			want: http.StatusGatewayTimeout,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: http.StatusInternalServerError,
		},
		{
			name: "nil error",
			err:  nil,
			want: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHTTPStatus(tt.err); got != tt.want {
				t.Errorf("GetHTTPStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}
