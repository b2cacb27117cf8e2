package options

import (
	"time"

	"github.com/jinzhu/copier"
)

const (
	// DefaultDataDir is the base directory used when no other directory is
	// specified during initialization.
	DefaultDataDir = "/var/lib/ignitedb"

	// DefaultCompactInterval is how often the background scheduler runs the
	// expiry sweep and scans for merge candidates.
	DefaultCompactInterval = time.Minute * 5

	// MinSegmentSize and MaxSegmentSize bound segment_size. The upper bound
	// comes from the hashtable's 20-bit, 8-byte-unit offset encoding: 2^20 *
	// 8 bytes = 8 MiB is the largest offset the index can address.
	MinSegmentSize uint32 = 1 * 1024 * 1024
	MaxSegmentSize uint32 = 8 * 1024 * 1024

	// DefaultSegmentSize is the target size for a new segment in bytes.
	DefaultSegmentSize uint32 = 1 * 1024 * 1024

	// DefaultHeapSize is the total datapool size used when unspecified.
	DefaultHeapSize uint64 = 64 * 1024 * 1024

	// DefaultHashPower is log2 of the primary hashtable bucket count
	// (2^16 buckets of 7 item slots each, after one metadata word ⇒
	// 458,752 slots before overflow).
	DefaultHashPower uint8 = 16

	// MinHashPower and MaxHashPower bound hash_power to sane values.
	MinHashPower uint8 = 4
	MaxHashPower uint8 = 32

	// DefaultOverflowFactor sizes the initial overflow-bucket pool as a
	// fraction of the primary bucket count.
	DefaultOverflowFactor float64 = 0.1

	// DefaultSegmentDirectory is the default for SegmentOptions.Directory.
	// The engine does not read that field: a file-backed datapool is
	// opened at DatapoolPath as given.
	DefaultSegmentDirectory = "segments"

	// DefaultSegmentPrefix names the checkpoint subsystem's generation
	// files. The datapool's own file is DatapoolPath as given.
	DefaultSegmentPrefix = "segment"

	// DefaultCheckpointDirectory is the subdirectory of DataDir holding
	// checkpoint generations.
	DefaultCheckpointDirectory = "checkpoints"

	// DefaultCheckpointInterval is how often the datapool is snapshotted.
	// Zero disables checkpointing.
	DefaultCheckpointInterval time.Duration = 0

	// DefaultExpireBudget is the number of segments the expiry sweep will
	// reclaim per call before yielding. Zero means exhaustive.
	DefaultExpireBudget = 0
)

// Eviction names the supported eviction policies.
type Eviction string

const (
	EvictionNone   Eviction = "none"
	EvictionRandom Eviction = "random"
	EvictionFIFO   Eviction = "fifo"
	EvictionCTE    Eviction = "cte"
	EvictionMerge  Eviction = "merge"
)

// DefaultEviction is used when no eviction policy is configured.
const DefaultEviction = EvictionRandom

// TimeType governs how externally supplied TTLs are interpreted.
type TimeType string

const (
	// TimeTypeUnix treats the supplied TTL as an absolute Unix timestamp.
	TimeTypeUnix TimeType = "unix"
	// TimeTypeDelta treats the supplied TTL as seconds relative to now.
	TimeTypeDelta TimeType = "delta"
	// TimeTypeMemcache mimics memcached's dual interpretation: values
	// ≤ 30 days are relative, larger values are absolute Unix timestamps.
	TimeTypeMemcache TimeType = "memcache"
)

// DefaultTimeType matches the memcache-compatible protocols this core was
// originally built to serve.
const DefaultTimeType = TimeTypeMemcache

// MemcacheRelativeTTLThreshold is the cutoff used by TimeTypeMemcache: TTLs
// at or below this many seconds are relative, above it they are absolute.
const MemcacheRelativeTTLThreshold = 30 * 24 * 60 * 60

// Holds the default configuration settings for an IgniteDB instance.
var defaultOptions = Options{
	DataDir:         DefaultDataDir,
	CompactInterval: DefaultCompactInterval,
	ExpireBudget:    DefaultExpireBudget,
	TimeType:        DefaultTimeType,

	SegmentOptions: &segmentOptions{
		Size:           DefaultSegmentSize,
		Prefix:         DefaultSegmentPrefix,
		Directory:      DefaultSegmentDirectory,
		HeapSize:       DefaultHeapSize,
		HashPower:      DefaultHashPower,
		OverflowFactor: DefaultOverflowFactor,
		Eviction:       DefaultEviction,
	},

	CheckpointOptions: &checkpointOptions{
		Directory:   DefaultCheckpointDirectory,
		Interval:    DefaultCheckpointInterval,
		Compression: false,
	},
}

// NewDefaultOptions returns a deep copy of the default configuration,
// ready to be mutated by OptionFuncs without aliasing the package-level
// defaultOptions through its SegmentOptions/CheckpointOptions pointers.
func NewDefaultOptions() Options {
	var opts Options
	if err := copier.CopyWithOption(&opts, &defaultOptions, copier.Option{DeepCopy: true}); err != nil {
		// defaultOptions is a fixed, package-controlled literal; a copy
		// failure here means the struct shape itself is broken.
		panic("options: failed to copy default configuration: " + err.Error())
	}
	return opts
}
