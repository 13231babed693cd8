package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoreError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CoreError
		expected string
	}{
		{
			name: "error without cause",
			err: &CoreError{
				Code:    CodeInvalidRequest,
				Message: "invalid input",
			},
			expected: "INVALID_REQUEST: invalid input",
		},
		{
			name: "error with cause",
			err: &CoreError{
				Code:    CodeInternal,
				Message: "operation failed",
				Cause:   fmt.Errorf("underlying error"),
			},
			expected: "INTERNAL_ERROR: operation failed (caused by: underlying error)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestCoreError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(cause, CodeExternalService, "model call failed")

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
}

func TestCoreError_Is(t *testing.T) {
	err := New(CodeNotFound, "session abc not found")

	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.False(t, errors.Is(err, ErrCapacityExceeded))
	assert.False(t, errors.Is(err, fmt.Errorf("plain error")))

	timeout := Wrap(fmt.Errorf("context deadline exceeded"), CodeDeadlineExceeded, "ask timed out")
	assert.True(t, errors.Is(timeout, ErrRequestTimeout))
}

func TestCoreError_WithDetailDoesNotMutateSentinel(t *testing.T) {
	annotated := ErrCapacityExceeded.WithDetail("rows", 600000)

	require.NotNil(t, annotated)
	assert.Equal(t, 600000, annotated.Details["rows"])
	assert.Nil(t, ErrCapacityExceeded.Details)
	assert.True(t, errors.Is(annotated, ErrCapacityExceeded))
}

func TestCoreError_WithDetailChains(t *testing.T) {
	err := New(CodeSchemaError, "bad header").
		WithDetail("header", "Distância").
		WithDetail("position", 3)

	assert.Equal(t, "Distância", err.Details["header"])
	assert.Equal(t, 3, err.Details["position"])
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeInternal, "should vanish"))
	assert.Nil(t, Wrapf(nil, CodeInternal, "should vanish %d", 1))
}

func TestWrapf_FormatsMessage(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrapf(cause, CodeExternalService, "call %d failed", 2)

	assert.Equal(t, "call 2 failed", err.Message)
	assert.Equal(t, cause, err.Cause)
}

func TestNewf_FormatsMessage(t *testing.T) {
	err := Newf(CodeUnresolvableQuery, "unknown column %q", "motorista")
	assert.Equal(t, `unknown column "motorista"`, err.Message)
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"core error", ErrEmptySheet, CodeSchemaError},
		{"wrapped core error", fmt.Errorf("outer: %w", ErrSessionNotFound), CodeNotFound},
		{"plain error", fmt.Errorf("plain"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetCode(tt.err))
		})
	}
}

func TestGetMessage(t *testing.T) {
	assert.Equal(t, "sheet has no data rows", GetMessage(ErrEmptySheet))
	assert.Equal(t, "plain failure", GetMessage(fmt.Errorf("plain failure")))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsNotFound(ErrSessionNotFound))
	assert.True(t, IsSchemaError(ErrDuplicateHeader))
	assert.True(t, IsCapacityExceeded(ErrCapacityExceeded))
	assert.True(t, IsUnresolvableQuery(ErrUnresolvableQuery))
	assert.True(t, IsExternalService(ErrModelUnavailable))
	assert.True(t, IsInsufficientData(ErrInsufficientData))

	plain := fmt.Errorf("plain")
	assert.False(t, IsNotFound(plain))
	assert.False(t, IsExternalService(plain))
}
