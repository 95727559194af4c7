package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndRetryPolicy(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{"config invalid", ErrCodeConfigInvalid, CategoryConfig, SeverityFatal, false},
		{"index corrupt", ErrCodeIndexCorrupt, CategoryStorage, SeverityWarning, false},
		{"model unavailable", ErrCodeModelUnavailable, CategoryModel, SeverityError, true},
		{"embedding failed", ErrCodeEmbeddingFailed, CategoryInternal, SeverityError, true},
		{"consistency", ErrCodeConsistency, CategoryInternal, SeverityError, false},
		{"invalid input", ErrCodeInvalidInput, CategoryValidation, SeverityFatal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestCoreError_ErrorFormat(t *testing.T) {
	err := New(ErrCodeModelUnavailable, "embedding backend down", nil)
	assert.Equal(t, "[ERR_301_MODEL_UNAVAILABLE] embedding backend down", err.Error())
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(ErrCodeModelUnavailable, cause)

	require.NotNil(t, err)
	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, IsRetryable(err))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(ErrCodeIndexCorrupt, "first", nil)
	b := New(ErrCodeIndexCorrupt, "second", nil)
	c := New(ErrCodeInternal, "other", nil)

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestIsRetryable_WrappedChain(t *testing.T) {
	inner := ModelUnavailable("backend gone", nil)
	outer := fmt.Errorf("ingest tenant 7: %w", inner)

	assert.True(t, IsRetryable(outer))
	assert.Equal(t, ErrCodeModelUnavailable, GetCode(outer))
}

func TestIsRetryable_PlainError(t *testing.T) {
	assert.False(t, IsRetryable(stderrors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ConfigError("overlap >= max tokens", nil)))
	assert.False(t, IsFatal(ModelUnavailable("down", nil)))
}

func TestWithDetail(t *testing.T) {
	err := ConsistencyError("chunk missing vector", nil).
		WithDetail("tenant_id", "42").
		WithDetail("chunk_id", "1001")

	assert.Equal(t, "42", err.Details["tenant_id"])
	assert.Equal(t, "1001", err.Details["chunk_id"])
}
