// Package options provides data structures and functions for configuring
// the Ignite database. It defines various parameters that control Ignite's
// storage behavior, performance, and maintenance operations, such as
// directory paths, segment characteristics, and compaction intervals.
package options

import (
	"strings"
	"time"

	apperrors "github.com/ignitedb/ignite/pkg/errors"
)

// Defines configurable parameters for each segment.
// It provides fine-grained control over segment behavior, performance, and resource utilization.
type segmentOptions struct {
	// Fixed size of every segment in the datapool, in bytes. Items are
	// appended to a bucket's tail segment until the next one does not fit,
	// and then a fresh segment is taken for the bucket.
	//
	//  - Default: 1MiB
	//  - Maximum: 8MiB (bounded by the hashtable's 20-bit offset encoding)
	//  - Minimum: 1MiB
	Size uint32 `json:"segmentSize"`

	// A subdirectory name relative to DataDir. The engine does not read
	// it: a file-backed datapool is opened at DatapoolPath as given.
	//
	// Default: "segments"
	Directory string `json:"directory"`

	// Defines the filename prefix for checkpoint generations. The
	// datapool's own file is DatapoolPath as given.
	//
	// Default: "segment"
	Prefix string `json:"prefix"`

	// Total bytes of the datapool. Rounded down to a multiple of Size if
	// it is not already one; the trailing slack is never used.
	//
	// Default: 64MiB
	HeapSize uint64 `json:"heapSize"`

	// Log2 of the hashtable's primary bucket count.
	//
	// Default: 16
	HashPower uint8 `json:"hashPower"`

	// Initial size of the overflow-bucket pool, as a fraction of the
	// primary bucket count.
	//
	// Default: 0.1
	OverflowFactor float64 `json:"overflowFactor"`

	// Eviction policy used when the free segment pool is exhausted.
	//
	// Default: "random"
	Eviction Eviction `json:"eviction"`

	// If set, the datapool is a memory-mapped file at this path instead
	// of an anonymous heap allocation.
	DatapoolPath string `json:"datapoolPath,omitempty"`

	// If true, the heap-backed datapool is forced resident at startup by
	// touching every page. Ignored for file-backed datapools.
	Prefault bool `json:"prefault"`
}

// checkpointOptions configures periodic snapshotting of the datapool for
// best-effort warm-restart recovery.
type checkpointOptions struct {
	// Directory (relative to DataDir) holding checkpoint generations.
	//
	// Default: "checkpoints"
	Directory string `json:"directory"`

	// How often the datapool is snapshotted. Zero disables checkpointing.
	Interval time.Duration `json:"interval"`

	// Whether checkpoint generations are zstd-compressed on write.
	Compression bool `json:"compression"`
}

// Defines the configuration parameters for Ignite DB.
// It provides control over storage, performance and maintenance aspects.
type Options struct {
	// Specifies the base path where files will be stored.
	//
	// Default: "/var/lib/ignitedb"
	DataDir string `json:"dataDir"`

	// Defines how often the compaction scheduler runs the expiry sweep
	// and scans for merge candidates.
	//
	// Default: 5m
	CompactInterval time.Duration `json:"compactInterval"`

	// Optional cron expression governing compaction scheduling. When
	// set, it takes precedence over CompactInterval for computing the
	// next run time.
	CompactionCron string `json:"compactionCron,omitempty"`

	// Segments-per-call budget for the expiry sweep. Zero means
	// exhaustive (walk every due bucket to completion on each call).
	ExpireBudget int `json:"expireBudget"`

	// How externally supplied TTLs are interpreted: "unix", "delta", or
	// "memcache".
	//
	// Default: "memcache"
	TimeType TimeType `json:"timeType"`

	// Human-readable label identifying this engine instance in logs.
	// Auto-generated if unset.
	InstanceLabel string `json:"instanceLabel,omitempty"`

	// Configures segment management including size limits and naming convention.
	SegmentOptions *segmentOptions `json:"segmentOptions"`

	// Configures datapool checkpointing for warm-restart recovery.
	CheckpointOptions *checkpointOptions `json:"checkpointOptions"`
}

// OptionFunc is a function type that modifies the Ignite system's configuration.
type OptionFunc func(*Options)

// Applies a predefined set of default configuration values to the Options struct.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		opts := NewDefaultOptions()
		*o = opts
	}
}

// Sets the primary data directory for Ignite.
func WithDataDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.DataDir = directory
		}
	}
}

// Sets the interval at which the compaction scheduler runs.
func WithCompactInterval(interval time.Duration) OptionFunc {
	return func(o *Options) {
		if interval > 0 {
			o.CompactInterval = interval
		}
	}
}

// Sets a cron expression for compaction scheduling, taking precedence
// over CompactInterval when set.
func WithCompactionCron(expr string) OptionFunc {
	return func(o *Options) {
		expr = strings.TrimSpace(expr)
		if expr != "" {
			o.CompactionCron = expr
		}
	}
}

// Sets the per-call segment budget for the expiry sweep. 0 = exhaustive.
func WithExpireBudget(budget int) OptionFunc {
	return func(o *Options) {
		if budget >= 0 {
			o.ExpireBudget = budget
		}
	}
}

// Sets how externally supplied TTLs are interpreted.
func WithTimeType(t TimeType) OptionFunc {
	return func(o *Options) {
		switch t {
		case TimeTypeUnix, TimeTypeDelta, TimeTypeMemcache:
			o.TimeType = t
		}
	}
}

// Sets the human-readable instance label attached to log output.
func WithInstanceLabel(label string) OptionFunc {
	return func(o *Options) {
		label = strings.TrimSpace(label)
		if label != "" {
			o.InstanceLabel = label
		}
	}
}

// Sets SegmentOptions.Directory, which the engine does not read; a
// file-backed datapool is opened at DatapoolPath as given.
func WithSegmentDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.SegmentOptions.Directory = directory
		}
	}
}

// Sets the file name prefix for checkpoint generations.
func WithSegmentPrefix(prefix string) OptionFunc {
	return func(o *Options) {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" {
			o.SegmentOptions.Prefix = prefix
		}
	}
}

// Sets the size of individual segments within the datapool.
func WithSegmentSize(size uint32) OptionFunc {
	return func(o *Options) {
		if size >= MinSegmentSize && size <= MaxSegmentSize {
			o.SegmentOptions.Size = size
		}
	}
}

// Sets the total bytes of the datapool.
func WithHeapSize(size uint64) OptionFunc {
	return func(o *Options) {
		if size > 0 {
			o.SegmentOptions.HeapSize = size
		}
	}
}

// Sets log2 of the hashtable's primary bucket count.
func WithHashPower(power uint8) OptionFunc {
	return func(o *Options) {
		if power >= MinHashPower && power <= MaxHashPower {
			o.SegmentOptions.HashPower = power
		}
	}
}

// Sets the initial overflow-bucket pool size as a fraction of the
// primary bucket count.
func WithOverflowFactor(factor float64) OptionFunc {
	return func(o *Options) {
		if factor > 0 {
			o.SegmentOptions.OverflowFactor = factor
		}
	}
}

// Sets the eviction policy used when the free segment pool is exhausted.
func WithEviction(policy Eviction) OptionFunc {
	return func(o *Options) {
		switch policy {
		case EvictionNone, EvictionRandom, EvictionFIFO, EvictionCTE, EvictionMerge:
			o.SegmentOptions.Eviction = policy
		}
	}
}

// Sets a file path for a memory-mapped datapool, instead of an
// anonymous heap allocation.
func WithDatapoolPath(path string) OptionFunc {
	return func(o *Options) {
		path = strings.TrimSpace(path)
		if path != "" {
			o.SegmentOptions.DatapoolPath = path
		}
	}
}

// Forces the heap-backed datapool resident at startup.
func WithPrefault(prefault bool) OptionFunc {
	return func(o *Options) {
		o.SegmentOptions.Prefault = prefault
	}
}

// Sets the interval at which the datapool is checkpointed. Zero disables
// checkpointing.
func WithCheckpointInterval(interval time.Duration) OptionFunc {
	return func(o *Options) {
		if interval >= 0 {
			o.CheckpointOptions.Interval = interval
		}
	}
}

// Enables zstd compression of checkpoint generations.
func WithCheckpointCompression(enabled bool) OptionFunc {
	return func(o *Options) {
		o.CheckpointOptions.Compression = enabled
	}
}

// Sets the directory (relative to DataDir) holding checkpoint generations.
func WithCheckpointDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.CheckpointOptions.Directory = directory
		}
	}
}

// SegmentSize returns the configured per-segment size in bytes.
func (o *Options) SegmentSize() uint32 { return o.SegmentOptions.Size }

// HeapSize returns the configured total datapool size in bytes.
func (o *Options) HeapSize() uint64 { return o.SegmentOptions.HeapSize }

// HashPower returns log2 of the hashtable's primary bucket count.
func (o *Options) HashPower() uint8 { return o.SegmentOptions.HashPower }

// OverflowFactor returns the configured overflow-bucket pool fraction.
func (o *Options) OverflowFactor() float64 { return o.SegmentOptions.OverflowFactor }

// EvictionPolicy returns the configured eviction policy.
func (o *Options) EvictionPolicy() Eviction { return o.SegmentOptions.Eviction }

// DatapoolPath returns the configured file-backed datapool path, or "" for
// an anonymous heap allocation.
func (o *Options) DatapoolPath() string { return o.SegmentOptions.DatapoolPath }

// Prefault reports whether the heap-backed datapool should be forced
// resident at startup.
func (o *Options) Prefault() bool { return o.SegmentOptions.Prefault }

// NumSegments returns how many whole segments fit in the configured heap.
func (o *Options) NumSegments() uint32 {
	if o.SegmentOptions.Size == 0 {
		return 0
	}
	return uint32(o.SegmentOptions.HeapSize / uint64(o.SegmentOptions.Size))
}

// Validate checks that Options describes a startable engine, returning a
// *errors.ValidationError identifying the first field that fails. New
// calls this before touching the datapool, so a bad config is rejected
// before any file or memory allocation happens.
func (o *Options) Validate() error {
	if o.SegmentOptions == nil {
		return apperrors.NewRequiredFieldError("segmentOptions")
	}

	if o.SegmentOptions.Size < MinSegmentSize || o.SegmentOptions.Size > MaxSegmentSize {
		return apperrors.NewFieldRangeError("segmentOptions.size", o.SegmentOptions.Size, MinSegmentSize, MaxSegmentSize)
	}

	if o.SegmentOptions.HashPower < MinHashPower || o.SegmentOptions.HashPower > MaxHashPower {
		return apperrors.NewFieldRangeError("segmentOptions.hashPower", o.SegmentOptions.HashPower, MinHashPower, MaxHashPower)
	}

	if o.SegmentOptions.HeapSize == 0 {
		return apperrors.NewRequiredFieldError("segmentOptions.heapSize")
	}

	switch o.SegmentOptions.Eviction {
	case EvictionNone, EvictionRandom, EvictionFIFO, EvictionCTE, EvictionMerge:
	default:
		return apperrors.NewFieldFormatError("segmentOptions.eviction", o.SegmentOptions.Eviction,
			`one of "none", "random", "fifo", "cte", "merge"`)
	}

	switch o.TimeType {
	case TimeTypeUnix, TimeTypeDelta, TimeTypeMemcache:
	default:
		return apperrors.NewFieldFormatError("timeType", o.TimeType, `one of "unix", "delta", "memcache"`)
	}

	if o.CheckpointOptions != nil && o.CheckpointOptions.Interval < 0 {
		return apperrors.NewFieldRangeError("checkpointOptions.interval", o.CheckpointOptions.Interval, 0, nil)
	}

	if o.NumSegments() == 0 {
		return apperrors.NewConfigurationValidationError("segmentOptions",
			"heapSize is too small to hold even one segment of the configured size")
	}

	return nil
}
