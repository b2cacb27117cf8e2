package errors

import (
	stdErrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrorCarriesFieldContext(t *testing.T) {
	err := NewValidationError(nil, ErrorCodeInvalidInput, "bad field").
		WithField("ttl").WithRule("range").WithProvided(-1).WithExpected(">= 0")

	assert.Equal(t, "ttl", err.Field())
	assert.Equal(t, "range", err.Rule())
	assert.Equal(t, -1, err.Provided())
	assert.Equal(t, ">= 0", err.Expected())
}

func TestIsValidationErrorDetectsWrappedValidationError(t *testing.T) {
	err := NewRequiredFieldError("key")
	assert.True(t, IsValidationError(err))
	assert.False(t, IsStorageError(err))
}

func TestAsStorageErrorExtractsLocationContext(t *testing.T) {
	err := NewStorageError(nil, ErrorCodeSegmentCorrupted, "bad magic").
		WithSegmentID(7).WithOffset(128).WithFileName("segment_00007.seg")

	se, ok := AsStorageError(err)
	require.True(t, ok)
	assert.Equal(t, 7, se.SegmentId())
	assert.Equal(t, 128, se.Offset())
	assert.Equal(t, "segment_00007.seg", se.FileName())
}

func TestGetErrorCodeFallsBackToInternalForPlainErrors(t *testing.T) {
	assert.Equal(t, ErrorCodeInternal, GetErrorCode(stdErrors.New("boom")))
}

func TestGetErrorCodePrefersValidationOverGenericWrapping(t *testing.T) {
	err := NewValidationError(nil, ErrorCodeInvalidInput, "bad")
	assert.Equal(t, ErrorCodeInvalidInput, GetErrorCode(err))
}

func TestGetErrorDetailsReturnsEmptyMapNotNil(t *testing.T) {
	details := GetErrorDetails(stdErrors.New("boom"))
	assert.NotNil(t, details)
	assert.Empty(t, details)
}

func TestGetErrorDetailsSurfacesAttachedContext(t *testing.T) {
	err := NewStorageError(nil, ErrorCodeIO, "write failed").WithDetail("attempt", 3)
	details := GetErrorDetails(err)
	assert.Equal(t, 3, details["attempt"])
}

func TestWithDetailLazilyInitializesTheMap(t *testing.T) {
	err := NewStorageError(nil, ErrorCodeIO, "msg")
	assert.Nil(t, err.Details())

	err.WithDetail("k", "v")
	assert.Equal(t, "v", err.Details()["k"])
}

func TestEngineErrorIsHelpersMatchTheirSentinel(t *testing.T) {
	err := NewEngineError(ErrNotFound, ErrorCodeNotFound, "key not found").WithKey("k1")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsCasMismatch(err))
	assert.Equal(t, "k1", err.Key())
}

func TestEngineErrorUnwrapsToItsSentinelCause(t *testing.T) {
	err := NewEngineError(ErrCasMismatch, ErrorCodeCasMismatch, "stale token")
	assert.True(t, stdErrors.Is(err, ErrCasMismatch))
	assert.ErrorIs(t, err, ErrCasMismatch)
}

func TestClassifyDirectoryCreationErrorDefaultsToIOError(t *testing.T) {
	err := ClassifyDirectoryCreationError(stdErrors.New("unexpected"), "/data/segments")
	se, ok := AsStorageError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeIO, se.Code())
	assert.Equal(t, "/data/segments", se.Path())
}
