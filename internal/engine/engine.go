// Package engine provides the core database engine implementation for the
// Ignite storage system.
//
// The engine is a single-owner façade that wires together every subsystem
// a caller never touches directly: the datapool's backing bytes, the
// segment array and its free chain, the ttl-bucket chains that drive
// eager expiration, the hashtable that resolves keys, the configured
// eviction policy, the background compaction scheduler, and best-effort
// checkpoint recovery. It exposes the item-level call surface: get,
// insert, delete, cas, incr, decr, expire.
package engine

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ignitedb/ignite/internal/checkpoint"
	"github.com/ignitedb/ignite/internal/compaction"
	"github.com/ignitedb/ignite/internal/datapool"
	"github.com/ignitedb/ignite/internal/eviction"
	"github.com/ignitedb/ignite/internal/hashtable"
	"github.com/ignitedb/ignite/internal/segment"
	"github.com/ignitedb/ignite/internal/ttlbucket"
	"github.com/ignitedb/ignite/pkg/clock"
	apperrors "github.com/ignitedb/ignite/pkg/errors"
	"github.com/ignitedb/ignite/pkg/logger"
	"github.com/ignitedb/ignite/pkg/options"
)

// ErrEngineClosed is returned when attempting to perform operations on a closed engine.
var ErrEngineClosed = errors.New("operation failed: cannot access closed engine")

// GetResult is the caller-facing view of a successful get.
type GetResult struct {
	Value        []byte
	Flags        []byte
	CAS          uint32
	TTLRemaining uint32
	Numeric      bool
}

// Engine coordinates every subsystem and is the primary interface for
// database operations. A coarse mutex realises the single-owner contract
// for embedders that drive the engine from more than one goroutine; every
// subsystem underneath assumes it is already serialised.
type Engine struct {
	id      uuid.UUID
	options *options.Options
	log     *zap.SugaredLogger
	closed  atomic.Bool
	mu      sync.Mutex

	clk        *clock.Coarse
	pool       *datapool.Pool
	segments   *segment.Manager
	buckets    *ttlbucket.Buckets
	table      *hashtable.Table
	policy     segment.EvictionPolicy
	evictKind  options.Eviction
	scheduler  *compaction.Scheduler
	checkpoint *checkpoint.Manager

	ckptCancel context.CancelFunc
	ckptDone   chan struct{}
}

// Config holds all the parameters needed to initialize a new Engine instance.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}

// New creates and initializes a new Engine instance with the provided configuration.
func New(ctx context.Context, config *Config) (*Engine, error) {
	opts := config.Options
	log := config.Logger

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if opts.InstanceLabel == "" {
		opts.InstanceLabel = petname.Generate(2, "-")
	}
	if log != nil {
		log = logger.WithInstance(log, opts.InstanceLabel)
	}

	numSegments := opts.NumSegments()
	segSize := opts.SegmentSize()
	poolSize := uint64(numSegments) * uint64(segSize)

	clk := clock.NewCoarse(time.Second)
	nowFn := clk.Unix

	buckets := ttlbucket.New(nowFn)
	policy := buildEvictionPolicy(opts.EvictionPolicy(), buckets)

	pool, err := openDatapool(opts, poolSize)
	if err != nil {
		clk.Stop()
		return nil, err
	}

	ckptDir := filepath.Join(opts.DataDir, opts.CheckpointOptions.Directory)
	ckptMgr, err := checkpoint.New(ckptDir, opts.SegmentOptions.Prefix, opts.CheckpointOptions.Compression)
	if err != nil {
		clk.Stop()
		_ = pool.Close()
		return nil, err
	}

	data := pool.AsMutSlice()
	recovered := false
	if raw, ok, rerr := ckptMgr.Recover(); rerr != nil {
		if log != nil {
			log.Warnw("checkpoint recovery failed, starting from an empty datapool", "error", rerr)
		}
	} else if ok && uint64(len(raw)) == poolSize {
		copy(data, raw)
		recovered = true
	} else if ok && log != nil {
		log.Warnw("discarding checkpoint generation with mismatched size", "expectedSize", poolSize, "actualSize", len(raw))
	}

	segments := segment.NewManager(data, segSize, numSegments, policy, nowFn)
	table := hashtable.New(opts.HashPower(), segments, buckets, nowFn)
	segments.SetHashRemover(table)

	if recovered {
		rebuildIndex(segments, buckets, table, numSegments, nowFn())
	}

	e := &Engine{
		id:         uuid.New(),
		options:    opts,
		log:        log,
		clk:        clk,
		pool:       pool,
		segments:   segments,
		buckets:    buckets,
		table:      table,
		policy:     policy,
		evictKind:  opts.EvictionPolicy(),
		checkpoint: ckptMgr,
	}

	sched, err := compaction.New(e, opts.CompactInterval, opts.CompactionCron, opts.ExpireBudget, log)
	if err != nil {
		clk.Stop()
		_ = pool.Close()
		return nil, err
	}
	sched.Start(ctx)
	e.scheduler = sched

	if opts.CheckpointOptions.Interval > 0 {
		ckptCtx, cancel := context.WithCancel(ctx)
		e.ckptCancel = cancel
		e.ckptDone = make(chan struct{})
		go e.checkpointLoop(ckptCtx)
	}

	if log != nil {
		log.Infow("engine started", "instance_id", e.id.String(), "recovered", recovered, "segments", numSegments)
	}

	return e, nil
}

// ID returns the engine's process-lifetime unique identifier, distinct
// from the human-readable InstanceLabel, for correlating log lines and
// metrics across a restart that reuses the same label.
func (e *Engine) ID() uuid.UUID { return e.id }

// openDatapool builds a file-backed pool when DatapoolPath is configured,
// otherwise an anonymous heap allocation.
func openDatapool(opts *options.Options, poolSize uint64) (*datapool.Pool, error) {
	if path := opts.DatapoolPath(); path != "" {
		return datapool.CreateFile(path, poolSize)
	}
	return datapool.Create(poolSize, opts.Prefault()), nil
}

// buildEvictionPolicy constructs the configured eviction policy. Random is
// the default, seeded from a real entropy source since no PRNG library
// anywhere in the retrieved corpus supplies one (see DESIGN.md).
func buildEvictionPolicy(kind options.Eviction, buckets *ttlbucket.Buckets) segment.EvictionPolicy {
	switch kind {
	case options.EvictionNone:
		return eviction.None{}
	case options.EvictionFIFO:
		return eviction.NewFIFO(buckets)
	case options.EvictionCTE:
		return eviction.NewCTE(buckets)
	case options.EvictionMerge:
		return eviction.NewMerge(buckets)
	default:
		return eviction.NewRandom(buckets, randomSeed())
	}
}

func randomSeed() [32]byte {
	var seed [32]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		binary.LittleEndian.PutUint64(seed[:8], uint64(time.Now().UnixNano()))
	}
	return seed
}

// rebuildIndex replays every segment's live items (recovered via
// segment.Manager.Scan) back into the ttl-bucket chains and the
// hashtable. A segment's recovered ttl is approximated as the ttl of its
// last live item (0 if it has none), since segment metadata itself is not
// part of the persisted image.
func rebuildIndex(segments *segment.Manager, buckets *ttlbucket.Buckets, table *hashtable.Table, numSegments uint32, now uint32) {
	for id := uint32(1); id <= numSegments; id++ {
		items, writeOffset, occupied, nItem := segments.Scan(id)
		if writeOffset == 0 {
			continue
		}

		var ttl uint32
		if len(items) > 0 {
			ttl = items[len(items)-1].TTL
		}

		owner := buckets.Bucket(ttl)
		segments.Recover(owner, id, writeOffset, occupied, nItem, ttl, now)

		for _, li := range items {
			table.Restore(li.Key, id, li.Offset)
		}
	}
}

// now reads the engine's coarse clock.
func (e *Engine) now() uint32 { return e.clk.Unix() }

// interpretTTL converts a caller-supplied TTL into the duration-until-expiry
// the segment/ttl-bucket machinery expects, per the configured time_type.
// 0 always means "never expires" in every mode.
func (e *Engine) interpretTTL(ttl uint32) uint32 {
	if ttl == 0 {
		return 0
	}

	switch e.options.TimeType {
	case options.TimeTypeUnix:
		return toDelta(ttl, e.now())
	case options.TimeTypeMemcache:
		if ttl <= options.MemcacheRelativeTTLThreshold {
			return ttl
		}
		return toDelta(ttl, e.now())
	default: // TimeTypeDelta
		return ttl
	}
}

// toDelta converts an absolute unix timestamp into seconds-from-now,
// clamped to at least 1 so an already-past deadline still expires on the
// next sweep rather than being mistaken for the "never expires" sentinel.
func toDelta(absolute, now uint32) uint32 {
	if absolute <= now {
		return 1
	}
	return absolute - now
}

// Get resolves key to its live item.
func (e *Engine) Get(key []byte) (GetResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return GetResult{}, ErrEngineClosed
	}

	it, ok, err := e.table.Get(key)
	if err != nil {
		return GetResult{}, err
	}
	if !ok {
		return GetResult{}, apperrors.NewEngineError(apperrors.ErrNotFound, apperrors.ErrorCodeNotFound, "key not found").WithKey(string(key))
	}

	return GetResult{
		Value:        it.Value,
		Flags:        it.Flags,
		CAS:          it.CAS,
		TTLRemaining: e.ttlRemaining(it),
		Numeric:      it.Numeric,
	}, nil
}

// ttlRemaining approximates an item's remaining ttl using its owning
// segment's CreateAt timestamp as a lower bound on when the item was
// actually written — always an over-estimate of elapsed time, so the
// returned value never exceeds the originally stored ttl.
func (e *Engine) ttlRemaining(it hashtable.Item) uint32 {
	if it.TTL == 0 {
		return 0
	}

	h := e.segments.Header(it.SegmentID)
	elapsed := e.now() - h.CreateAt
	if elapsed >= it.TTL {
		return 0
	}
	return it.TTL - elapsed
}

// Insert upserts key unconditionally. Returns the bucket's post-write CAS
// value. The item's numeric flag is derived from value's bytes, not taken
// from the caller.
func (e *Engine) Insert(key, value, optional []byte, ttl uint32) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	return e.table.Insert(key, value, optional, e.interpretTTL(ttl), nil)
}

// Delete removes key's live entry, failing with ErrNotFound if absent.
func (e *Engine) Delete(key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return ErrEngineClosed
	}

	return e.table.Delete(key)
}

// Cas updates key only if it already exists and its current CAS value
// matches casExpected. Unlike Insert it never creates a new key: a
// missing key fails NotFound regardless of casExpected, and a generation
// mismatch is surfaced as ErrExists, meaning a conflicting version
// already exists (see DESIGN.md).
func (e *Engine) Cas(key, value, optional []byte, casExpected uint32, ttl uint32) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	if !e.table.Exists(key) {
		return 0, apperrors.NewEngineError(apperrors.ErrNotFound, apperrors.ErrorCodeNotFound, "key not found").WithKey(string(key))
	}

	expected := casExpected
	newCas, err := e.table.Insert(key, value, optional, e.interpretTTL(ttl), &expected)
	if apperrors.IsCasMismatch(err) {
		return 0, apperrors.NewEngineError(apperrors.ErrExists, apperrors.ErrorCodeExists, "cas token is stale; a newer value already exists").WithKey(string(key))
	}
	return newCas, err
}

// Incr adds delta to a numeric item's value.
func (e *Engine) Incr(key []byte, delta uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	return e.table.IncrDecr(key, int64(delta))
}

// Decr subtracts delta from a numeric item's value, clamping at zero.
func (e *Engine) Decr(key []byte, delta uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	return e.table.IncrDecr(key, -int64(delta))
}

// Expire runs the ttl-bucket sweep to completion, reclaiming every
// currently-expired segment. Returns the number of segments reclaimed.
func (e *Engine) Expire() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	return e.buckets.ExpireAll(e.segments, e.now(), 0), nil
}

// ExpireSweep implements compaction.Target: a budgeted expiry pass driven
// by the background scheduler rather than an explicit caller.
func (e *Engine) ExpireSweep(budget int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return 0
	}
	return e.buckets.ExpireAll(e.segments, e.now(), budget)
}

// MergeCandidate implements compaction.Target: it only does anything when
// the configured eviction policy is Merge — proactively compacting sparse
// chains under any other policy would evict live data the policy was
// never asked to give up.
func (e *Engine) MergeCandidate() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() || e.evictKind != options.EvictionMerge {
		return false
	}
	return e.policy.Reclaim(e.segments) == nil
}

// checkpointLoop periodically snapshots the datapool for warm-restart
// recovery.
func (e *Engine) checkpointLoop(ctx context.Context) {
	defer close(e.ckptDone)

	for {
		if !clock.SleepInterruptibly(ctx, e.options.CheckpointOptions.Interval) {
			return
		}
		e.writeCheckpoint()
	}
}

func (e *Engine) writeCheckpoint() {
	e.mu.Lock()
	snapshot := append([]byte(nil), e.pool.AsSlice()...)
	e.mu.Unlock()

	if _, err := e.checkpoint.Write(snapshot); err != nil && e.log != nil {
		e.log.Warnw("checkpoint write failed", "error", err)
	}
}

// Close gracefully shuts down the engine and releases all associated resources.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}

	if e.scheduler != nil {
		e.scheduler.Stop()
	}
	if e.ckptCancel != nil {
		e.ckptCancel()
		<-e.ckptDone
	}
	if e.options.CheckpointOptions.Interval > 0 {
		e.writeCheckpoint()
	}

	e.clk.Stop()

	if err := e.pool.Flush(); err != nil {
		return err
	}
	return e.pool.Close()
}
