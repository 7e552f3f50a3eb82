package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryError_Error(t *testing.T) {
	err := New(CodeStorage, "index corrupt", nil)
	assert.Equal(t, "[STORAGE] index corrupt", err.Error())
}

func TestMemoryError_Unwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(CodeStorage, cause)
	require.NotNil(t, err)
	assert.Equal(t, cause, stderrors.Unwrap(err))
	assert.True(t, stderrors.Is(err, cause))
}

func TestMemoryError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", QualityRejected("too short"))
	assert.True(t, stderrors.Is(err, New(CodeQualityRejected, "", nil)))
	assert.False(t, stderrors.Is(err, New(CodeStorage, "", nil)))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	var me *MemoryError = Wrap(CodeStorage, nil)
	assert.Nil(t, me)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeConfig, CodeOf(ConfigError("bad toml", nil)))
	assert.Equal(t, CodeConfig, CodeOf(fmt.Errorf("wrapped: %w", ConfigError("bad toml", nil))))
	assert.Equal(t, CodeInternal, CodeOf(stderrors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(EmbeddingUnavailable("ollama down", nil)))
	assert.False(t, IsRetryable(StorageError("bad db", nil)))
	assert.False(t, IsRetryable(nil))
}

func TestQualityRejected_CarriesReason(t *testing.T) {
	err := QualityRejected("content too short")
	assert.Equal(t, "content too short", err.Details["reason"])
	assert.Equal(t, "content too short", err.Message)
}
