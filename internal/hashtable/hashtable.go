// Package hashtable implements the bucket-chained open-addressed table
// mapping key to item location.
//
// Each bucket is 8 packed 64-bit words: the first is a metadata word (CAS
// generation counter, a coarse timestamp, and an overflow chain length),
// the remaining 7 are item entries. Overflow buckets extend a primary
// bucket's chain and are allocated lazily, one at a time, as a bucket
// fills up.
package hashtable

import (
	"bytes"
	"strconv"

	"github.com/ignitedb/ignite/internal/item"
	"github.com/ignitedb/ignite/internal/keyhash"
	"github.com/ignitedb/ignite/internal/segment"
	"github.com/ignitedb/ignite/internal/ttlbucket"
	apperrors "github.com/ignitedb/ignite/pkg/errors"
)

// entrySlotsPerBucket is the number of item slots per bucket, after
// reserving slot 0 for bucket metadata.
const entrySlotsPerBucket = 7

// Entry bit layout within a 64-bit word:
//
//	bits 52-63 (12 bits): tag — top 12 bits of the key hash
//	bits 44-51 (8 bits):  freq — approximate access frequency counter
//	bits 20-43 (24 bits): segID — owning segment id
//	bits 0-19  (20 bits): offset — 8-byte-unit offset within the segment
const (
	offsetBits = 20
	segIDBits  = 24
	freqBits   = 8
	tagBits    = 12

	offsetMask = 1<<offsetBits - 1
	segIDMask  = 1<<segIDBits - 1
	freqMask   = 1<<freqBits - 1
	tagMask    = 1<<tagBits - 1

	segIDShift = offsetBits
	freqShift  = offsetBits + segIDBits
	tagShift   = offsetBits + segIDBits + freqBits
)

func packEntry(tag uint16, freq uint8, segID uint32, offset uint32) uint64 {
	return uint64(offset&offsetMask) |
		uint64(segID&segIDMask)<<segIDShift |
		uint64(freq&freqMask)<<freqShift |
		uint64(tag&tagMask)<<tagShift
}

func entryTag(e uint64) uint16    { return uint16((e >> tagShift) & tagMask) }
func entryFreq(e uint64) uint8    { return uint8((e >> freqShift) & freqMask) }
func entrySegID(e uint64) uint32  { return uint32((e >> segIDShift) & segIDMask) }
func entryOffset(e uint64) uint32 { return uint32(e & offsetMask) }

// Meta word bit layout: bits 32-63 are the 32-bit CAS generation counter,
// bits 8-31 a coarse timestamp, bits 0-7 the overflow chain length.
const (
	metaCASShift   = 32
	metaTimeShift  = 8
	metaChainMask  = 0xff
	metaTimeMask   = 0xffffff
)

func packMeta(cas uint32, timestamp uint32, chainLen uint8) uint64 {
	return uint64(cas)<<metaCASShift | uint64(timestamp&metaTimeMask)<<metaTimeShift | uint64(chainLen)
}

func metaCAS(m uint64) uint32      { return uint32(m >> metaCASShift) }
func metaChainLen(m uint64) uint8  { return uint8(m & metaChainMask) }

// bucket is one 8-word hashtable bucket: metadata plus 7 item slots.
type bucket struct {
	meta  uint64
	slots [entrySlotsPerBucket]uint64
}

// Item is the decoded, caller-facing view of a stored record.
type Item struct {
	Value     []byte
	Flags     []byte
	TTL       uint32
	CAS       uint32
	Numeric   bool
	SegmentID uint32
}

// Table is the hashtable façade: primary buckets, lazily-grown overflow
// chains, and the collaborators it writes items through.
type Table struct {
	primary  []bucket
	overflow [][]bucket // per primary bucket index, its overflow chain

	segments *segment.Manager
	buckets  *ttlbucket.Buckets
	nowFn    func() uint32

	hashPower uint8
}

// New builds a hashtable with 2^hashPower primary buckets, backed by
// segments for item storage and buckets for TTL-bucket placement.
func New(hashPower uint8, segments *segment.Manager, buckets *ttlbucket.Buckets, nowFn func() uint32) *Table {
	return &Table{
		primary:   make([]bucket, 1<<hashPower),
		overflow:  make([][]bucket, 1<<hashPower),
		segments:  segments,
		buckets:   buckets,
		nowFn:     nowFn,
		hashPower: hashPower,
	}
}

// location identifies exactly which slot in the bucket chain an entry
// lives in, so callers can overwrite or zero it in place.
type location struct {
	primaryIdx int
	overflowAt int // -1 for the primary bucket itself
	slotIdx    int
	entry      uint64
}

// find scans the primary bucket and its overflow chain for an entry whose
// tag matches and whose item key matches byte-for-byte.
func (t *Table) find(key []byte) (location, bool) {
	hash := keyhash.Sum(key)
	tag := keyhash.Tag(hash)
	idx := int(keyhash.BucketIndex(hash, t.hashPower))

	if loc, ok := t.scanBucket(&t.primary[idx], idx, -1, tag, key); ok {
		return loc, true
	}

	for i := range t.overflow[idx] {
		if loc, ok := t.scanBucket(&t.overflow[idx][i], idx, i, tag, key); ok {
			return loc, true
		}
	}

	return location{}, false
}

func (t *Table) scanBucket(b *bucket, primaryIdx, overflowAt int, tag uint16, key []byte) (location, bool) {
	for i, e := range b.slots {
		if e == 0 || entryTag(e) != tag {
			continue
		}
		body := t.segments.ItemBytes(entrySegID(e), entryOffset(e))
		if body == nil {
			continue
		}
		hdr, err := item.DecodeHeader(body)
		if err != nil || hdr.Deleted {
			continue
		}
		if bytes.Equal(hdr.Key(body), key) {
			return location{primaryIdx: primaryIdx, overflowAt: overflowAt, slotIdx: i, entry: e}, true
		}
	}
	return location{}, false
}

func (t *Table) bucketAt(loc location) *bucket {
	if loc.overflowAt < 0 {
		return &t.primary[loc.primaryIdx]
	}
	return &t.overflow[loc.primaryIdx][loc.overflowAt]
}

// Get resolves key to its live item, bumping the entry's frequency
// counter and triggering per-bucket smoothing on overflow: smoothing is
// per-bucket, on overflow of the counter's high bit, not on a global
// cadence (see DESIGN.md).
func (t *Table) Get(key []byte) (Item, bool, error) {
	loc, ok := t.find(key)
	if !ok {
		return Item{}, false, nil
	}

	body := t.segments.ItemBytes(entrySegID(loc.entry), entryOffset(loc.entry))
	hdr, err := item.DecodeHeader(body)
	if err != nil {
		return Item{}, false, err
	}

	t.bumpFrequency(loc)

	return Item{
		Value:     append([]byte(nil), hdr.Value(body)...),
		Flags:     append([]byte(nil), hdr.Optional(body)...),
		TTL:       hdr.TTL,
		CAS:       metaCAS(t.primary[loc.primaryIdx].meta),
		Numeric:   hdr.Numeric,
		SegmentID: entrySegID(loc.entry),
	}, true, nil
}

// Exists reports whether key currently resolves to a live item, without
// copying its value or bumping its frequency counter.
func (t *Table) Exists(key []byte) bool {
	_, ok := t.find(key)
	return ok
}

// Restore places an entry for key pointing at a location whose encoded
// item bytes already exist in the segment body (used when rebuilding the
// hashtable from a recovered datapool image — see internal/engine's
// startup recovery path). It does not encode, append, or tombstone
// anything; the caller has already validated the bytes at (segID,
// offsetUnits) via segment.Manager.Scan.
func (t *Table) Restore(key []byte, segID, offsetUnits uint32) {
	hash := keyhash.Sum(key)
	tag := keyhash.Tag(hash)
	idx := int(keyhash.BucketIndex(hash, t.hashPower))

	loc, err := t.place(idx, tag)
	if err != nil {
		return
	}

	b := t.bucketAt(loc)
	b.slots[loc.slotIdx] = packEntry(tag, 0, segID, offsetUnits)
}

const freqHighBit = 1 << (freqBits - 1)

// bumpFrequency increments loc's frequency counter; if the counter's high
// bit is already set, every slot in the bucket is halved first (a coarse
// decay that keeps formerly-hot items from pinning the counter at
// saturation forever).
func (t *Table) bumpFrequency(loc location) {
	b := t.bucketAt(loc)
	e := b.slots[loc.slotIdx]
	freq := entryFreq(e)

	if freq&freqHighBit != 0 {
		for i, s := range b.slots {
			if s == 0 {
				continue
			}
			b.slots[i] = packEntry(entryTag(s), entryFreq(s)>>1, entrySegID(s), entryOffset(s))
		}
		e = b.slots[loc.slotIdx]
		freq = entryFreq(e)
	}

	if freq < freqMask {
		freq++
	}
	b.slots[loc.slotIdx] = packEntry(entryTag(e), freq, entrySegID(e), entryOffset(e))
}

// CurrentCAS returns the CAS generation counter for key's bucket, without
// touching any item.
func (t *Table) CurrentCAS(key []byte) uint32 {
	hash := keyhash.Sum(key)
	idx := int(keyhash.BucketIndex(hash, t.hashPower))
	return metaCAS(t.primary[idx].meta)
}

// Insert writes key/value/optional under ttl, replacing any existing
// live item for key. If casExpected is non-nil, the bucket's current CAS
// word must match it or the call fails with ErrCasMismatch. Returns the
// bucket's CAS value after the write. The item's numeric flag is derived
// from value, not taken from the caller.
func (t *Table) Insert(key, value, optional []byte, ttl uint32, casExpected *uint32) (uint32, error) {
	hash := keyhash.Sum(key)
	tag := keyhash.Tag(hash)
	idx := int(keyhash.BucketIndex(hash, t.hashPower))

	if casExpected != nil {
		current := metaCAS(t.primary[idx].meta)
		if current != *casExpected {
			return 0, apperrors.NewEngineError(apperrors.ErrCasMismatch, apperrors.ErrorCodeCasMismatch, "cas token does not match bucket generation").WithKey(string(key))
		}
	}

	size := item.EncodedSize(len(key), len(value), len(optional))
	buf := make([]byte, size)
	if _, err := item.Encode(buf, key, value, optional, ttl); err != nil {
		return 0, err
	}

	reserved, err := t.buckets.AppendItem(t.segments, ttl, buf)
	if err != nil {
		return 0, err
	}

	loc, hadExisting := t.find(key)
	if hadExisting {
		t.tombstone(loc)
	} else {
		loc, err = t.place(idx, tag)
		if err != nil {
			return 0, err
		}
	}

	b := t.bucketAt(loc)
	b.slots[loc.slotIdx] = packEntry(tag, 0, reserved.SegmentID, reserved.Offset)

	primary := &t.primary[idx]
	primary.meta = packMeta(metaCAS(primary.meta)+1, t.now(), metaChainLen(primary.meta))

	return metaCAS(primary.meta), nil
}

// tombstone marks loc's current item deleted and accounts for the freed
// bytes in its segment, without yet reusing the hashtable slot (the
// caller overwrites it immediately after).
func (t *Table) tombstone(loc location) {
	segID, offset := entrySegID(loc.entry), entryOffset(loc.entry)
	body := t.segments.ItemBytes(segID, offset)
	if body == nil {
		return
	}
	hdr, err := item.DecodeHeader(body)
	if err != nil {
		return
	}
	item.MarkDeleted(body)
	t.segments.MarkRemoved(segID, uint32(hdr.Size()))
}

// place finds an empty slot for tag in bucket idx's chain, growing the
// overflow chain by one bucket if every existing slot is occupied.
func (t *Table) place(idx int, tag uint16) (location, error) {
	if loc, ok := t.firstEmpty(&t.primary[idx], idx, -1); ok {
		return loc, nil
	}

	for i := range t.overflow[idx] {
		if loc, ok := t.firstEmpty(&t.overflow[idx][i], idx, i); ok {
			return loc, nil
		}
	}

	t.overflow[idx] = append(t.overflow[idx], bucket{})
	newIdx := len(t.overflow[idx]) - 1
	t.primary[idx].meta = packMeta(metaCAS(t.primary[idx].meta), t.now(), uint8(len(t.overflow[idx])))

	loc, _ := t.firstEmpty(&t.overflow[idx][newIdx], idx, newIdx)
	return loc, nil
}

func (t *Table) firstEmpty(b *bucket, primaryIdx, overflowAt int) (location, bool) {
	for i, e := range b.slots {
		if e == 0 {
			return location{primaryIdx: primaryIdx, overflowAt: overflowAt, slotIdx: i}, true
		}
	}
	return location{}, false
}

// Delete unlinks key's entry, marking its item tombstoned. Fails with
// ErrNotFound if absent.
func (t *Table) Delete(key []byte) error {
	loc, ok := t.find(key)
	if !ok {
		return apperrors.NewEngineError(apperrors.ErrNotFound, apperrors.ErrorCodeNotFound, "key not found").WithKey(string(key))
	}

	t.tombstone(loc)
	b := t.bucketAt(loc)
	b.slots[loc.slotIdx] = 0
	return nil
}

// IncrDecr applies delta (negated for decrement) to a numeric item's
// value, reinserting the item with the arithmetic result. Fails with
// ErrNotFound if key is absent, ErrNotNumeric if its value isn't an ASCII
// integer.
func (t *Table) IncrDecr(key []byte, delta int64) (uint64, error) {
	loc, ok := t.find(key)
	if !ok {
		return 0, apperrors.NewEngineError(apperrors.ErrNotFound, apperrors.ErrorCodeNotFound, "key not found").WithKey(string(key))
	}

	body := t.segments.ItemBytes(entrySegID(loc.entry), entryOffset(loc.entry))
	hdr, err := item.DecodeHeader(body)
	if err != nil {
		return 0, err
	}
	if !hdr.Numeric {
		return 0, apperrors.NewEngineError(apperrors.ErrNotNumeric, apperrors.ErrorCodeNotNumeric, "item value is not numeric").WithKey(string(key))
	}

	current, err := strconv.ParseUint(string(hdr.Value(body)), 10, 64)
	if err != nil {
		return 0, apperrors.NewEngineError(apperrors.ErrNotNumeric, apperrors.ErrorCodeNotNumeric, "item value is not a valid integer").WithKey(string(key))
	}

	var next uint64
	if delta >= 0 {
		next = current + uint64(delta)
	} else if neg := uint64(-delta); neg > current {
		next = 0
	} else {
		next = current - neg
	}

	optional := append([]byte(nil), hdr.Optional(body)...)
	newValue := []byte(strconv.FormatUint(next, 10))

	if _, err := t.Insert(key, newValue, optional, hdr.TTL, nil); err != nil {
		return 0, err
	}

	return next, nil
}

func (t *Table) now() uint32 {
	if t.nowFn == nil {
		return 0
	}
	return t.nowFn()
}

// RemoveAt implements segment.HashRemover for Clear/Expire: it unlinks
// the entry for key, which the caller guarantees currently points at
// (segID, offsetUnits).
func (t *Table) RemoveAt(segID uint32, offsetUnits uint32, key []byte) error {
	hash := keyhash.Sum(key)
	tag := keyhash.Tag(hash)
	idx := int(keyhash.BucketIndex(hash, t.hashPower))

	if loc, ok := t.findBySlotValue(idx, tag, segID, offsetUnits); ok {
		b := t.bucketAt(loc)
		b.slots[loc.slotIdx] = 0
	}
	return nil
}

// Relink implements segment.HashRemover for Merge: it repoints the entry
// for key from its old location to its new one, preserving tag/freq.
func (t *Table) Relink(oldSegID, oldOffsetUnits, newSegID, newOffsetUnits uint32, key []byte) error {
	hash := keyhash.Sum(key)
	tag := keyhash.Tag(hash)
	idx := int(keyhash.BucketIndex(hash, t.hashPower))

	if loc, ok := t.findBySlotValue(idx, tag, oldSegID, oldOffsetUnits); ok {
		b := t.bucketAt(loc)
		e := b.slots[loc.slotIdx]
		b.slots[loc.slotIdx] = packEntry(entryTag(e), entryFreq(e), newSegID, newOffsetUnits)
	}
	return nil
}

func (t *Table) findBySlotValue(idx int, tag uint16, segID, offset uint32) (location, bool) {
	if loc, ok := matchSlotValue(&t.primary[idx], idx, -1, tag, segID, offset); ok {
		return loc, true
	}
	for i := range t.overflow[idx] {
		if loc, ok := matchSlotValue(&t.overflow[idx][i], idx, i, tag, segID, offset); ok {
			return loc, true
		}
	}
	return location{}, false
}

func matchSlotValue(b *bucket, primaryIdx, overflowAt int, tag uint16, segID, offset uint32) (location, bool) {
	for i, e := range b.slots {
		if e == 0 || entryTag(e) != tag {
			continue
		}
		if entrySegID(e) == segID && entryOffset(e) == offset {
			return location{primaryIdx: primaryIdx, overflowAt: overflowAt, slotIdx: i, entry: e}, true
		}
	}
	return location{}, false
}
