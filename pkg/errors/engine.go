package errors

import stdErrors "errors"

// Sentinel causes for the engine's error kinds. EngineError wraps one of
// these as its cause, so callers can use
// stdlib errors.Is against the sentinel without depending on this
// package's richer EngineError type.
var (
	ErrOversized      = stdErrors.New("item exceeds maximum segment capacity")
	ErrNoFreeSegments = stdErrors.New("no free segment available for allocation")
	ErrExists         = stdErrors.New("key already exists")
	ErrNotFound       = stdErrors.New("key not found")
	ErrCasMismatch    = stdErrors.New("cas token does not match current generation")
	ErrNotNumeric     = stdErrors.New("item value is not a numeric string")
	ErrDataCorrupted  = stdErrors.New("segment or item magic mismatch")
)

// EngineError is the typed error returned by the cache core's item-level
// API (get/insert/delete/cas/incr/decr/expire). It follows the same
// embed-and-extend pattern as StorageError: a *baseError for the common
// machinery, plus fields specific to diagnosing a cache operation failure.
type EngineError struct {
	*baseError
	key       string
	segmentID uint32
	offset    uint32
}

// NewEngineError creates a new engine error wrapping one of the sentinel
// causes above (or nil for ad-hoc internal errors).
func NewEngineError(cause error, code ErrorCode, msg string) *EngineError {
	return &EngineError{baseError: NewBaseError(cause, code, msg)}
}

// WithMessage updates the error message while preserving the EngineError type.
func (ee *EngineError) WithMessage(msg string) *EngineError {
	ee.baseError.WithMessage(msg)
	return ee
}

// WithDetail adds contextual information while preserving the EngineError type.
func (ee *EngineError) WithDetail(key string, value any) *EngineError {
	ee.baseError.WithDetail(key, value)
	return ee
}

// WithKey records which key the operation was processing.
func (ee *EngineError) WithKey(key string) *EngineError {
	ee.key = key
	return ee
}

// WithSegmentID records which segment the operation touched.
func (ee *EngineError) WithSegmentID(id uint32) *EngineError {
	ee.segmentID = id
	return ee
}

// WithOffset records the item offset within the segment, in bytes.
func (ee *EngineError) WithOffset(offset uint32) *EngineError {
	ee.offset = offset
	return ee
}

// Key returns the key the failing operation was processing.
func (ee *EngineError) Key() string { return ee.key }

// SegmentID returns the segment id involved in the failure, if any.
func (ee *EngineError) SegmentID() uint32 { return ee.segmentID }

// Offset returns the item's byte offset within its segment, if any.
func (ee *EngineError) Offset() uint32 { return ee.offset }

// IsOversized reports whether err ultimately wraps ErrOversized.
func IsOversized(err error) bool { return stdErrors.Is(err, ErrOversized) }

// IsNoFreeSegments reports whether err ultimately wraps ErrNoFreeSegments.
func IsNoFreeSegments(err error) bool { return stdErrors.Is(err, ErrNoFreeSegments) }

// IsExists reports whether err ultimately wraps ErrExists.
func IsExists(err error) bool { return stdErrors.Is(err, ErrExists) }

// IsNotFound reports whether err ultimately wraps ErrNotFound.
func IsNotFound(err error) bool { return stdErrors.Is(err, ErrNotFound) }

// IsCasMismatch reports whether err ultimately wraps ErrCasMismatch.
func IsCasMismatch(err error) bool { return stdErrors.Is(err, ErrCasMismatch) }

// IsNotNumeric reports whether err ultimately wraps ErrNotNumeric.
func IsNotNumeric(err error) bool { return stdErrors.Is(err, ErrNotNumeric) }

// IsDataCorrupted reports whether err ultimately wraps ErrDataCorrupted.
func IsDataCorrupted(err error) bool { return stdErrors.Is(err, ErrDataCorrupted) }
