package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// TestAppErrorImplementsError verifies that *AppError satisfies the error interface.
func TestAppErrorImplementsError(t *testing.T) {
	var _ error = (*AppError)(nil)
}

// TestAppErrorErrorFormat verifies the Error() method produces "code: message".
func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeValidationMissingURL,
		Message: "missing url parameter",
	}

	expected := "validation_missing_url: missing url parameter"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection reset")
	appErr := NewAppError(ErrCodeUpstreamUnavailable, "upstream unavailable", underlying)

	if appErr.Unwrap() != underlying {
		t.Errorf("Unwrap() returned unexpected error: got %v, want %v", appErr.Unwrap(), underlying)
	}
	if !errors.Is(appErr, underlying) {
		t.Error("errors.Is should find the underlying error through Unwrap")
	}
}

func TestAppErrorErrorsAs(t *testing.T) {
	appErr := NewAppError(ErrCodeMethodNotAllowed, "method not allowed", nil)
	wrappedErr := fmt.Errorf("handler failed: %w", appErr)

	var target *AppError
	if !errors.As(wrappedErr, &target) {
		t.Fatal("errors.As should find AppError in the chain")
	}
	if target.Code != ErrCodeMethodNotAllowed {
		t.Errorf("extracted Code = %q, want %q", target.Code, ErrCodeMethodNotAllowed)
	}
}

// TestAppErrorWithDetails verifies the WithDetails method creates a copy with merged details.
func TestAppErrorWithDetails(t *testing.T) {
	original := NewAppErrorWithDetails(
		ErrCodeValidationRejectedURL,
		"protocol not allowed: ftp",
		nil,
		map[string]any{"url": "ftp://example.com"},
	)

	enhanced := original.WithDetails(map[string]any{"stage": "initial"})

	if _, ok := original.Details["stage"]; ok {
		t.Error("WithDetails should not mutate the original error")
	}
	if enhanced.Details["url"] != "ftp://example.com" {
		t.Errorf("enhanced should retain original detail: url = %v", enhanced.Details["url"])
	}
	if enhanced.Details["stage"] != "initial" {
		t.Errorf("enhanced should have new detail: stage = %v", enhanced.Details["stage"])
	}
	if enhanced.Code != original.Code || enhanced.Message != original.Message {
		t.Errorf("Code and Message should carry over: got %q/%q", enhanced.Code, enhanced.Message)
	}
}

func TestAppErrorWithDetailsNilOriginal(t *testing.T) {
	original := NewAppError(ErrCodeValidationMissingURL, "missing url parameter", nil)
	enhanced := original.WithDetails(map[string]any{"method": "GET"})

	if enhanced.Details["method"] != "GET" {
		t.Errorf("WithDetails on nil original should work: method = %v", enhanced.Details["method"])
	}
}

// TestErrorCodeHTTPStatusMapping covers every error code category.
func TestErrorCodeHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{ErrCodeValidationMissingURL, http.StatusBadRequest},
		{ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{ErrCodeValidationRejectedURL, http.StatusBadRequest},
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationUnknownField, http.StatusBadRequest},
		{ErrCodeValidationInvalidPayload, http.StatusBadRequest},
		{ErrCodeValidationBodyTooLarge, http.StatusRequestEntityTooLarge},
		{ErrCodeMethodNotAllowed, http.StatusMethodNotAllowed},
		{ErrCodeNotFoundRoute, http.StatusNotFound},
		{ErrCodeUpstreamUnavailable, http.StatusBadGateway},
		{ErrCodeUpstreamTimeout, http.StatusGatewayTimeout},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrorCode("something_unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}
