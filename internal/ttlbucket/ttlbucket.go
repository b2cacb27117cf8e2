// Package ttlbucket implements the TTL-bucket chains that group segments
// by expiration class and drive eager, whole-segment expiration.
package ttlbucket

import (
	"github.com/ignitedb/ignite/internal/segment"
)

// Band layout: four bands of 256 buckets each, with per-band interval
// widths of 8s, 128s, 2048s, 32768s.
const (
	bucketsPerBand = 256
	totalBuckets   = bucketsPerBand * 4
)

var bandIntervals = [4]uint32{8, 128, 2048, 32768}

// bandStart[i] is the raw-TTL lower edge of band i, derived from the
// cumulative width of all narrower bands.
var bandStart = [4]uint32{
	0,
	bucketsPerBand * bandIntervals[0],
	bucketsPerBand*bandIntervals[0] + bucketsPerBand*bandIntervals[1],
	bucketsPerBand*bandIntervals[0] + bucketsPerBand*bandIntervals[1] + bucketsPerBand*bandIntervals[2],
}

// maxTTL is the raw TTL at which the top band saturates: TTLs larger than
// the top band saturate to the last bucket.
var maxTTL = bandStart[3] + bucketsPerBand*bandIntervals[3]

// BucketFor is the deterministic, pure, idempotent, per-band-monotonic
// quantisation function mapping a raw TTL in seconds to a bucket index in
// [0, totalBuckets). TTL 0 ("no expiry") saturates to the last bucket,
// same as an over-long TTL.
func BucketFor(ttl uint32) int {
	if ttl == 0 || ttl >= maxTTL {
		return totalBuckets - 1
	}

	for band := 3; band >= 0; band-- {
		if ttl >= bandStart[band] {
			offset := (ttl - bandStart[band]) / bandIntervals[band]
			if offset >= bucketsPerBand {
				offset = bucketsPerBand - 1
			}
			return band*bucketsPerBand + int(offset)
		}
	}

	return 0
}

// Bucket owns one doubly-linked segment chain for one bucketed TTL range.
// It implements segment.ChainOwner so internal/segment can allocate into
// and unlink from it without depending on this package.
type Bucket struct {
	TTL            uint32
	head, tail     uint32
	nSegment       uint32
	NextExpiration uint32
}

func (b *Bucket) HeadSeg() uint32      { return b.head }
func (b *Bucket) TailSeg() uint32      { return b.tail }
func (b *Bucket) SetHeadSeg(id uint32) { b.head = id }
func (b *Bucket) SetTailSeg(id uint32) { b.tail = id }
func (b *Bucket) SegmentCount() uint32 { return b.nSegment }
func (b *Bucket) IncrSegmentCount(d int) {
	b.nSegment = uint32(int(b.nSegment) + d)
}

// ReservedItem is the location an append_item call reserved for an
// encoded item: which segment it landed in, and its 8-byte-unit offset.
type ReservedItem struct {
	SegmentID uint32
	Offset    uint32
}

// Buckets is the full array of 1024 TTL buckets plus the clock function
// passed to New. The segment manager is passed in per call.
type Buckets struct {
	buckets [totalBuckets]Bucket
	nowFn   func() uint32
}

// New builds the bucket array, each initialized with the nominal TTL
// (lower edge) of its range.
func New(nowFn func() uint32) *Buckets {
	tb := &Buckets{nowFn: nowFn}
	for i := range tb.buckets {
		tb.buckets[i].TTL = rawTTLForBucket(i)
	}
	return tb
}

// rawTTLForBucket is BucketFor's inverse-ish: the lower-edge raw TTL that
// bucket i represents, used to seed Bucket.TTL at construction.
func rawTTLForBucket(idx int) uint32 {
	band := idx / bucketsPerBand
	offset := idx % bucketsPerBand
	return bandStart[band] + uint32(offset)*bandIntervals[band]
}

// Bucket returns the bucket for a raw TTL, for callers that need direct
// access (the eviction policies' FIFO/CTE scans).
func (tb *Buckets) Bucket(ttl uint32) *Bucket {
	return &tb.buckets[BucketFor(ttl)]
}

// All returns every bucket, for policies that must scan across all of
// them (CTE, the merge candidate scan).
func (tb *Buckets) All() []*Bucket {
	out := make([]*Bucket, 0, totalBuckets)
	for i := range tb.buckets {
		out = append(out, &tb.buckets[i])
	}
	return out
}

// AppendItem selects ttl's bucket, tries to fit encoded into its tail
// segment, and if it doesn't fit (or the bucket has no segment yet)
// allocates a fresh one from segments. Returns the reserved location.
func (tb *Buckets) AppendItem(segments *segment.Manager, ttl uint32, encoded []byte) (ReservedItem, error) {
	b := tb.Bucket(ttl)

	if b.tail != 0 {
		if off, err := segments.Append(b.tail, encoded); err == nil {
			return ReservedItem{SegmentID: b.tail, Offset: off}, nil
		}
	}

	segID, err := segments.Allocate(b, ttl)
	if err != nil {
		return ReservedItem{}, err
	}
	// A bucket whose chain was empty at its last sweep was pushed far into
	// the future; the new segment makes it due on the next sweep.
	b.NextExpiration = 0

	off, err := segments.Append(segID, encoded)
	if err != nil {
		return ReservedItem{}, err
	}

	return ReservedItem{SegmentID: segID, Offset: off}, nil
}

// ExpireAll walks every bucket whose NextExpiration is due, reclaiming
// any segment whose ttl has expired, as an eager whole-segment expiration
// pass. budget caps the number of segments reclaimed in this call; 0
// means exhaustive. Returns how many segments were reclaimed.
func (tb *Buckets) ExpireAll(segments *segment.Manager, now uint32, budget int) int {
	reclaimed := 0

	for i := range tb.buckets {
		b := &tb.buckets[i]
		if b.NextExpiration > now {
			continue
		}

		for b.head != 0 {
			if budget > 0 && reclaimed >= budget {
				return reclaimed
			}

			segID := b.head
			h := segments.Header(segID)
			if !segmentExpired(h, now) {
				break
			}

			if err := segments.Expire(b, segID); err != nil {
				break
			}
			reclaimed++
		}

		b.NextExpiration = nextExpirationFor(b, now)
	}

	return reclaimed
}

func segmentExpired(h segment.Header, now uint32) bool {
	if h.TTL == 0 {
		return false
	}
	return h.CreateAt+h.TTL <= now
}

// nextExpirationFor recomputes when a bucket should next be scanned: on the
// next sweep after now while its chain holds segments, or far in the future
// if the chain is empty (AppendItem makes it due again when it links a new
// segment).
func nextExpirationFor(b *Bucket, now uint32) uint32 {
	if b.head == 0 {
		return now + bandIntervals[3]*bucketsPerBand
	}
	return now + 1
}

// chainIDs returns every segment id in bucket b's chain, head-first. The
// Merge eviction policy reads it through ChainIDs.
func (b *Bucket) chainIDs(segments *segment.Manager) []uint32 {
	ids := make([]uint32, 0, b.nSegment)
	for id := b.head; id != 0; {
		ids = append(ids, id)
		id = segments.Header(id).NextSeg
	}
	return ids
}

// ChainIDs exposes chainIDs for the eviction package's Merge policy.
func (b *Bucket) ChainIDs(segments *segment.Manager) []uint32 {
	return b.chainIDs(segments)
}
