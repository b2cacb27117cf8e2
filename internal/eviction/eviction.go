// Package eviction implements the victim-selection policies invoked when
// the segment free list is empty: None, Random, FIFO, CTE, and Merge. Each
// type implements segment.EvictionPolicy.
package eviction

import (
	"math/rand/v2"

	"github.com/ignitedb/ignite/internal/segment"
	"github.com/ignitedb/ignite/internal/ttlbucket"
	apperrors "github.com/ignitedb/ignite/pkg/errors"
)

// candidate pairs a segment id with the bucket that currently owns its
// chain — everything Clear/Merge need to detach it.
type candidate struct {
	bucket *ttlbucket.Bucket
	segID  uint32
}

// scanCandidates walks every bucket's chain, collecting every segment
// currently on a TTL chain (i.e. not already free) along with its owning
// bucket.
func scanCandidates(buckets *ttlbucket.Buckets, m *segment.Manager) []candidate {
	var out []candidate
	for _, b := range buckets.All() {
		for _, id := range b.ChainIDs(m) {
			out = append(out, candidate{bucket: b, segID: id})
		}
	}
	return out
}

// None always fails: the configured policy when no segment may ever be
// evicted.
type None struct{}

func (None) Reclaim(m *segment.Manager) error {
	return apperrors.NewEngineError(apperrors.ErrNoFreeSegments, apperrors.ErrorCodeNoFreeSegments, "eviction disabled")
}

// Random selects a uniformly random evictable segment, seeded with a
// math/rand/v2 ChaCha8 source (no corpus dependency supplies a PRNG, so
// this is a deliberate, documented stdlib use — see DESIGN.md).
type Random struct {
	buckets *ttlbucket.Buckets
	rng     *rand.Rand
}

// NewRandom builds a Random policy seeded from the given 32-byte seed.
// Reproducibility across runs isn't required, but a fixed seed makes
// tests deterministic.
func NewRandom(buckets *ttlbucket.Buckets, seed [32]byte) *Random {
	return &Random{buckets: buckets, rng: rand.New(rand.NewChaCha8(seed))}
}

func (r *Random) Reclaim(m *segment.Manager) error {
	candidates := scanCandidates(r.buckets, m)
	if len(candidates) == 0 {
		return apperrors.NewEngineError(apperrors.ErrNoFreeSegments, apperrors.ErrorCodeNoFreeSegments, "no evictable segments")
	}

	victim := candidates[r.rng.IntN(len(candidates))]
	return m.Clear(victim.bucket, victim.segID)
}

// FIFO evicts the head of the oldest non-empty TTL bucket chain: the
// longest-resident segment. Ties break on lower segment id.
type FIFO struct {
	buckets *ttlbucket.Buckets
}

func NewFIFO(buckets *ttlbucket.Buckets) *FIFO { return &FIFO{buckets: buckets} }

func (f *FIFO) Reclaim(m *segment.Manager) error {
	var best *candidate
	var bestCreateAt uint32

	for _, b := range f.buckets.All() {
		head := b.HeadSeg()
		if head == 0 {
			continue
		}
		h := m.Header(head)
		if best == nil || h.CreateAt < bestCreateAt ||
			(h.CreateAt == bestCreateAt && head < best.segID) {
			c := candidate{bucket: b, segID: head}
			best = &c
			bestCreateAt = h.CreateAt
		}
	}

	if best == nil {
		return apperrors.NewEngineError(apperrors.ErrNoFreeSegments, apperrors.ErrorCodeNoFreeSegments, "no evictable segments")
	}

	return m.Clear(best.bucket, best.segID)
}

// CTE (Closest-To-Expiration) evicts the evictable segment whose
// create_at + ttl is soonest, scanning TTL-bucket heads. Ties break on
// lower segment id.
type CTE struct {
	buckets *ttlbucket.Buckets
}

func NewCTE(buckets *ttlbucket.Buckets) *CTE { return &CTE{buckets: buckets} }

func (c *CTE) Reclaim(m *segment.Manager) error {
	var best *candidate
	var bestExpiry uint32

	for _, b := range c.buckets.All() {
		head := b.HeadSeg()
		if head == 0 {
			continue
		}
		h := m.Header(head)
		expiry := h.CreateAt + h.TTL

		if best == nil || expiry < bestExpiry || (expiry == bestExpiry && head < best.segID) {
			cand := candidate{bucket: b, segID: head}
			best = &cand
			bestExpiry = expiry
		}
	}

	if best == nil {
		return apperrors.NewEngineError(apperrors.ErrNoFreeSegments, apperrors.ErrorCodeNoFreeSegments, "no evictable segments")
	}

	return m.Clear(best.bucket, best.segID)
}

// Merge reclaims space by compacting a run of sparsely-live segments from
// one TTL bucket into a single denser segment. It picks the bucket (of
// those with at least two segments) whose whole chain has the lowest
// average live-byte density, then merges the run starting at that
// chain's head.
type Merge struct {
	buckets *ttlbucket.Buckets
}

func NewMerge(buckets *ttlbucket.Buckets) *Merge { return &Merge{buckets: buckets} }

func (mp *Merge) Reclaim(m *segment.Manager) error {
	var bestBucket *ttlbucket.Bucket
	var bestDensity float64 = 2.0 // > 1.0, any real bucket beats this

	for _, b := range mp.buckets.All() {
		ids := b.ChainIDs(m)
		if len(ids) < 2 {
			continue
		}

		density := averageDensity(m, ids)
		if density < bestDensity {
			bestDensity = density
			bestBucket = b
		}
	}

	if bestBucket == nil {
		return apperrors.NewEngineError(apperrors.ErrNoFreeSegments, apperrors.ErrorCodeNoFreeSegments, "no mergeable bucket found")
	}

	_, _, err := m.Merge(bestBucket, bestBucket.ChainIDs(m), bestBucket.TTL)
	return err
}

func averageDensity(m *segment.Manager, ids []uint32) float64 {
	var total, occupied float64
	for _, id := range ids {
		h := m.Header(id)
		total += float64(m.SegmentSize())
		occupied += float64(h.OccupiedSize)
	}
	if total == 0 {
		return 2.0
	}
	return occupied / total
}
