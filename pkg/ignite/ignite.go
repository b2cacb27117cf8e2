// Package ignite provides a segment-structured, ttl-eager-expiration
// key/value cache store: an in-memory hashtable over a fixed-size
// datapool of equal-sized segments, grouped by expiration into ttl
// buckets so an entire expired segment is reclaimed in one step instead
// of touching every key inside it. It is designed for workloads that
// look like memcached or Redis with TTLs on everything: caching,
// session storage, and rate-limiting counters.
package ignite

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignitedb/ignite/internal/engine"
	"github.com/ignitedb/ignite/pkg/logger"
	"github.com/ignitedb/ignite/pkg/options"
)

// Item is the caller-facing view of a stored value.
type Item struct {
	Value        []byte
	Flags        []byte
	CAS          uint32
	TTLRemaining time.Duration
	Numeric      bool
}

// Instance is the primary entry point for interacting with the Ignite
// store: get, set, delete, cas, incr/decr, and expire, backed by the
// internal engine façade.
type Instance struct {
	engine  *engine.Engine
	options *options.Options
}

// NewInstance creates and initializes a new Ignite instance, applying any
// OptionFuncs over the library defaults.
func NewInstance(ctx context.Context, service string, opts ...options.OptionFunc) (*Instance, error) {
	log := logger.New(service)

	cfg := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	eng, err := engine.New(ctx, &engine.Config{Logger: log, Options: &cfg})
	if err != nil {
		return nil, err
	}

	return &Instance{engine: eng, options: &cfg}, nil
}

// Get retrieves the value and metadata associated with key.
func (i *Instance) Get(ctx context.Context, key string) (Item, error) {
	res, err := i.engine.Get([]byte(key))
	if err != nil {
		return Item{}, err
	}

	return Item{
		Value:        res.Value,
		Flags:        res.Flags,
		CAS:          res.CAS,
		TTLRemaining: time.Duration(res.TTLRemaining) * time.Second,
		Numeric:      res.Numeric,
	}, nil
}

// Set stores key unconditionally with no expiration. If the key already
// exists, its value is replaced.
func (i *Instance) Set(ctx context.Context, key string, value []byte) error {
	_, err := i.engine.Insert([]byte(key), value, nil, 0)
	return err
}

// SetX stores key unconditionally, expiring after ttl. A zero ttl never
// expires.
func (i *Instance) SetX(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := i.engine.Insert([]byte(key), value, nil, ttlSeconds(ttl))
	return err
}

// SetWithFlags is SetX plus an opaque flags byte string carried alongside
// the value, and returns the bucket's post-write CAS value for a
// subsequent Cas call.
func (i *Instance) SetWithFlags(ctx context.Context, key string, value, flags []byte, ttl time.Duration) (uint32, error) {
	return i.engine.Insert([]byte(key), value, flags, ttlSeconds(ttl))
}

// Delete removes key's live entry, failing with a NotFound error if absent.
func (i *Instance) Delete(ctx context.Context, key string) error {
	return i.engine.Delete([]byte(key))
}

// Cas updates key only if it already exists and its current CAS value
// matches casExpected. A missing key fails NotFound; a stale casExpected
// fails with the store's Exists error.
func (i *Instance) Cas(ctx context.Context, key string, value []byte, casExpected uint32, ttl time.Duration) (uint32, error) {
	return i.engine.Cas([]byte(key), value, nil, casExpected, ttlSeconds(ttl))
}

// Incr adds delta to a numeric item's stored value, failing NotFound if
// key is absent or NotNumeric if its value isn't an ASCII integer.
func (i *Instance) Incr(ctx context.Context, key string, delta uint64) (uint64, error) {
	return i.engine.Incr([]byte(key), delta)
}

// Decr subtracts delta from a numeric item's stored value, clamping at zero.
func (i *Instance) Decr(ctx context.Context, key string, delta uint64) (uint64, error) {
	return i.engine.Decr([]byte(key), delta)
}

// Expire runs the ttl-bucket sweep to completion, reclaiming every
// currently-expired segment, and returns how many segments were
// reclaimed. The background compaction scheduler also runs this
// automatically; Expire is for callers that want it to happen now.
func (i *Instance) Expire(ctx context.Context) (int, error) {
	return i.engine.Expire()
}

// Close gracefully shuts down the Ignite instance: stops the background
// compaction scheduler, writes a final checkpoint if enabled, and
// releases the datapool's resources.
func (i *Instance) Close(ctx context.Context) error {
	return i.engine.Close()
}

// ID returns the instance's process-lifetime unique identifier.
func (i *Instance) ID() uuid.UUID {
	return i.engine.ID()
}

// Label returns the instance's human-readable label, either configured
// via WithInstanceLabel or auto-generated at startup.
func (i *Instance) Label() string {
	return i.options.InstanceLabel
}

func ttlSeconds(ttl time.Duration) uint32 {
	if ttl <= 0 {
		return 0
	}
	seconds := ttl / time.Second
	if seconds > time.Duration(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(seconds)
}
