// Package segment owns the segment array carved out of the datapool: the
// free chain, allocation, reclamation, and merge.
//
// This is the lowest-level package in the dependency chain that needs to
// reach both "up" into a TTL bucket's chain bookkeeping and "up" into the
// hashtable's entries, so the interfaces those collaborators implement
// (ChainOwner, EvictionPolicy, HashRemover) are defined here rather than in
// the packages that implement them — the idiomatic Go way to break what
// would otherwise be an import cycle (internal/ttlbucket and
// internal/hashtable both import internal/segment, never the reverse).
package segment

import (
	"github.com/ignitedb/ignite/internal/item"
	apperrors "github.com/ignitedb/ignite/pkg/errors"
)

// noSegment is the sentinel "none" segment id: id 0 is reserved as none.
const noSegment uint32 = 0

// Header is a segment's in-memory metadata. It never touches disk; it is
// rebuilt by replaying the item stream on startup only when a checkpoint
// generation has been restored into the datapool (see Scan and Recover).
type Header struct {
	ID           uint32
	WriteOffset  uint32
	OccupiedSize uint32
	NItem        uint32
	PrevSeg      uint32
	NextSeg      uint32
	TTL          uint32
	CreateAt     uint32
	MergeAt      uint32
	Accessible   bool
	Evictable    bool
}

// ChainOwner is implemented by whatever owns a doubly-linked segment
// chain — the free list (internally) and internal/ttlbucket's TtlBucket.
// Manager calls back into it so segments can move on and off a chain
// without segment needing to know anything about TTL buckets.
type ChainOwner interface {
	HeadSeg() uint32
	TailSeg() uint32
	SetHeadSeg(id uint32)
	SetTailSeg(id uint32)
	SegmentCount() uint32
	IncrSegmentCount(delta int)
}

// EvictionPolicy reclaims at least one segment onto the free chain when
// Allocate finds the free chain empty. Implemented by internal/eviction's
// policy types, each of which holds whatever extra state it needs (a
// *ttlbucket.Buckets reference, a PRNG) to pick a victim and call back
// into Manager's Clear/Merge to actually free it.
type EvictionPolicy interface {
	// Reclaim must push at least one segment onto m's free chain, or
	// return an error (ErrNoFreeSegments) if nothing is evictable.
	Reclaim(m *Manager) error
}

// HashRemover unlinks or relocates a hashtable entry pointing at a
// specific item. Implemented by internal/hashtable.Table.
type HashRemover interface {
	// RemoveAt unlinks the entry for key, which must currently point at
	// (segID, offsetUnits). Called by Clear/Expire for every live item
	// in a segment being reclaimed.
	RemoveAt(segID uint32, offsetUnits uint32, key []byte) error

	// Relink repoints the entry for key from its old location to its
	// new one, preserving the entry's CAS/frequency metadata. Called by
	// Merge for every live item it relocates.
	Relink(oldSegID, oldOffsetUnits, newSegID, newOffsetUnits uint32, key []byte) error
}

// Manager owns the segment array: the backing bytes, per-segment headers,
// and the free chain. It is not safe for concurrent use; the engine's
// single-owner contract guarantees serialized access.
type Manager struct {
	data    []byte
	size    uint32 // bytes per segment
	headers []Header

	freeOwner freeChain
	policy    EvictionPolicy
	remover   HashRemover

	nowFn func() uint32
}

// freeChain is the Manager's own ChainOwner for the free list, so the
// same Unlink/Allocate plumbing used for TTL buckets also manages free
// segments.
type freeChain struct {
	head, tail uint32
	count      uint32
}

func (f *freeChain) HeadSeg() uint32          { return f.head }
func (f *freeChain) TailSeg() uint32          { return f.tail }
func (f *freeChain) SetHeadSeg(id uint32)     { f.head = id }
func (f *freeChain) SetTailSeg(id uint32)     { f.tail = id }
func (f *freeChain) SegmentCount() uint32     { return f.count }
func (f *freeChain) IncrSegmentCount(d int)   { f.count = uint32(int(f.count) + d) }

// NewManager builds a Manager over data, partitioned into numSegments
// equal-sized segments of segmentSize bytes each. Every segment starts on
// the free chain. nowFn supplies the coarse clock used for CreateAt/
// MergeAt timestamps.
func NewManager(data []byte, segmentSize uint32, numSegments uint32, policy EvictionPolicy, nowFn func() uint32) *Manager {
	m := &Manager{
		data:    data,
		size:    segmentSize,
		headers: make([]Header, numSegments+1), // index 0 unused (noSegment)
		policy:  policy,
		nowFn:   nowFn,
	}

	var prev uint32 = noSegment
	for id := uint32(1); id <= numSegments; id++ {
		m.headers[id] = Header{ID: id, PrevSeg: prev, Evictable: true}
		if prev != noSegment {
			m.headers[prev].NextSeg = id
		} else {
			m.freeOwner.head = id
		}
		prev = id
	}
	m.freeOwner.tail = prev
	m.freeOwner.count = numSegments

	return m
}

// SetHashRemover wires the hashtable collaborator used by Clear/Expire.
// Called once during engine construction, after the hashtable itself has
// been built (it needs a *Manager to read item bytes from).
func (m *Manager) SetHashRemover(r HashRemover) { m.remover = r }

// NumSegments returns the total number of segments (excluding the unused
// sentinel index 0).
func (m *Manager) NumSegments() uint32 { return uint32(len(m.headers) - 1) }

// SegmentSize returns the configured per-segment size in bytes.
func (m *Manager) SegmentSize() uint32 { return m.size }

// FreeCount returns how many segments currently sit on the free chain.
func (m *Manager) FreeCount() uint32 { return m.freeOwner.count }

// Header returns a copy of segment id's header. Valid ids are 1..NumSegments.
func (m *Manager) Header(id uint32) Header { return m.headers[id] }

// Evictable reports whether segment id may currently be reclaimed.
func (m *Manager) Evictable(id uint32) bool { return m.headers[id].Evictable }

// Accessible reports whether readers may currently follow pointers into
// segment id.
func (m *Manager) Accessible(id uint32) bool { return m.headers[id].Accessible }

// Body returns the full byte region backing segment id.
func (m *Manager) Body(id uint32) []byte {
	start := uint32(id-1) * m.size
	return m.data[start : start+m.size]
}

// ItemBytes returns the slice of segment id's body starting at the given
// 8-byte-unit offset, extending to the segment's current write offset.
// Callers decode an item.Header from the start of this slice.
func (m *Manager) ItemBytes(id uint32, offsetUnits uint32) []byte {
	h := m.headers[id]
	body := m.Body(id)
	start := offsetUnits * 8
	if start >= h.WriteOffset {
		return nil
	}
	return body[start:h.WriteOffset]
}

// Allocate pops a free segment (evicting one per policy if none are free)
// and appends it to the tail of owner's chain with the given ttl. Fails
// with ErrNoFreeSegments when the free chain is empty and the eviction
// policy frees nothing (always the case under a policy that never evicts).
func (m *Manager) Allocate(owner ChainOwner, ttl uint32) (uint32, error) {
	if m.freeOwner.head == noSegment {
		if err := m.reclaimOne(); err != nil {
			return 0, err
		}
	}

	id := m.popFree()
	h := &m.headers[id]
	h.TTL = ttl
	h.CreateAt = m.now()
	h.MergeAt = 0
	h.Accessible = true
	h.Evictable = true
	h.WriteOffset = 0
	h.OccupiedSize = 0
	h.NItem = 0

	m.linkTail(owner, id)
	return id, nil
}

// reclaimOne asks the eviction policy to free at least one segment, so
// the next popFree call has something to pop.
func (m *Manager) reclaimOne() error {
	if m.policy == nil {
		return apperrors.NewEngineError(apperrors.ErrNoFreeSegments, apperrors.ErrorCodeNoFreeSegments, "no free segments and no eviction policy configured")
	}

	if err := m.policy.Reclaim(m); err != nil {
		return err
	}

	if m.freeOwner.head == noSegment {
		return apperrors.NewEngineError(apperrors.ErrNoFreeSegments, apperrors.ErrorCodeNoFreeSegments, "eviction policy ran but freed no segment")
	}

	return nil
}

// evictAndFree implements the eviction ordering: clear accessible before
// unlinking hashtable entries, unlink all entries, detach the segment from
// owner's chain, then recycle it onto the free chain.
func (m *Manager) evictAndFree(owner ChainOwner, id uint32) error {
	h := &m.headers[id]
	h.Accessible = false

	if err := m.walkAndUnlink(id); err != nil {
		return err
	}

	m.unlinkFromChain(owner, id)
	m.pushFree(id)
	return nil
}

// Clear is the external entry point for evicting a specific segment:
// evictAndFree with the chain that currently owns it (a TTL bucket, when
// called outside of reclaimOne's free-list bookkeeping).
func (m *Manager) Clear(owner ChainOwner, id uint32) error {
	return m.evictAndFree(owner, id)
}

// Expire behaves like Clear but is invoked by the TTL sweep rather than
// the eviction policy; the reclamation is identical, the separate name
// only marks the expiry call site.
func (m *Manager) Expire(owner ChainOwner, id uint32) error {
	return m.Clear(owner, id)
}

// walkAndUnlink scans segment id's live items in offset order (the
// reclamation walk invariant: walking from 0 by each item's encoded size
// reaches write_offset exactly on completion) and removes each live
// item's hashtable entry.
func (m *Manager) walkAndUnlink(id uint32) error {
	if m.remover == nil {
		return nil
	}

	h := m.headers[id]
	body := m.Body(id)
	offset := uint32(0)

	for offset < h.WriteOffset {
		hdr, err := item.DecodeHeader(body[offset:])
		if err != nil {
			return err
		}

		size := hdr.Size()
		if !hdr.Deleted {
			key := hdr.Key(body[offset:])
			if err := m.remover.RemoveAt(id, offset/8, key); err != nil {
				return err
			}
		}

		offset += uint32(size)
	}

	return nil
}

// Append writes encoded item bytes at the tail of segment id's body,
// returning the 8-byte-unit offset the item was written at. Returns
// ErrOversized if the item does not fit in the remaining space.
func (m *Manager) Append(id uint32, encoded []byte) (uint32, error) {
	h := &m.headers[id]
	remaining := m.size - h.WriteOffset
	if uint32(len(encoded)) > remaining {
		return 0, apperrors.NewEngineError(apperrors.ErrOversized, apperrors.ErrorCodeOversized, "item does not fit in remaining segment space").
			WithSegmentID(id)
	}

	body := m.Body(id)
	offsetUnits := h.WriteOffset / 8
	copy(body[h.WriteOffset:], encoded)

	h.WriteOffset += uint32(len(encoded))
	h.OccupiedSize += uint32(len(encoded))
	h.NItem++

	return offsetUnits, nil
}

// MarkRemoved accounts for an item being deleted or overwritten without
// walking the segment: decrements occupied_size and n_item. The item's
// tombstone bit itself is set by the hashtable via item.MarkDeleted on the
// raw bytes.
func (m *Manager) MarkRemoved(id uint32, size uint32) {
	h := &m.headers[id]
	if h.OccupiedSize >= size {
		h.OccupiedSize -= size
	} else {
		h.OccupiedSize = 0
	}
	if h.NItem > 0 {
		h.NItem--
	}
}

// Merge compacts the live items of a run of sparse segments from one TTL
// bucket chain into the first segment of that run, freeing the rest.
// candidates is walked in order, accumulating occupied_size, and the run
// stops at the first segment whose inclusion would push the total over
// segment_size — that segment and everything after it in candidates is
// left untouched. The destination is satisfied from the run itself
// rather than a separate free segment, so Merge never depends on the
// free chain already holding a spare: the only way to reclaim a segment
// under eviction=merge is to run out of it, so requiring one up front
// would deadlock. Requires at least 2 segments to merge profitably (a
// run of 1 has nothing to free); returns the destination's id and how
// many source segments were freed (always len(included)-1).
func (m *Manager) Merge(owner ChainOwner, candidates []uint32, ttl uint32) (uint32, int, error) {
	included := make([]uint32, 0, len(candidates))
	var total uint32
	for _, id := range candidates {
		occ := m.headers[id].OccupiedSize
		if total+occ > m.size {
			break
		}
		total += occ
		included = append(included, id)
	}

	if len(included) < 2 {
		return 0, 0, apperrors.NewEngineError(apperrors.ErrNoFreeSegments, apperrors.ErrorCodeNoFreeSegments, "no mergeable run of segments found")
	}

	dstID := included[0]
	srcs := included[1:]

	dstHeader := m.headers[dstID]
	h := &m.headers[dstID]
	h.TTL = ttl
	h.MergeAt = m.now()
	h.WriteOffset = 0
	h.OccupiedSize = 0
	h.NItem = 0

	m.relocateLiveItems(dstID, dstID, dstHeader.WriteOffset)
	for _, srcID := range srcs {
		m.relocateLiveItems(srcID, dstID, m.headers[srcID].WriteOffset)
		m.unlinkFromChain(owner, srcID)
		m.pushFree(srcID)
	}

	return dstID, len(srcs), nil
}

// relocateLiveItems copies every live item from the first readLen bytes
// of src into dst (already known to have room, by Merge's prefix-sum
// check) and repoints the hashtable entry for each relocated key. src
// and dst may be the same segment: the read cursor walks src's bytes as
// they were before this call started, while dst's write cursor — reset
// to 0 by the caller — only ever advances to or behind it, so
// copy-in-place never clobbers an item before it's read.
func (m *Manager) relocateLiveItems(srcID, dstID, readLen uint32) {
	srcBody := m.Body(srcID)
	offset := uint32(0)

	for offset < readLen {
		hdr, err := item.DecodeHeader(srcBody[offset:])
		if err != nil {
			break
		}
		size := uint32(hdr.Size())

		if !hdr.Deleted {
			key := append([]byte(nil), hdr.Key(srcBody[offset:])...)
			newOffset, err := m.Append(dstID, srcBody[offset:offset+size])
			if err == nil && m.remover != nil {
				_ = m.remover.Relink(srcID, offset/8, dstID, newOffset, key)
			}
		}

		offset += size
	}
}

// popFree removes and returns the head of the free chain. Caller must
// have ensured it is non-empty.
func (m *Manager) popFree() uint32 {
	id := m.freeOwner.head
	m.unlinkFromChain(&m.freeOwner, id)
	return id
}

// pushFree appends id to the tail of the free chain.
func (m *Manager) pushFree(id uint32) {
	h := &m.headers[id]
	h.Accessible = false
	h.Evictable = false
	h.TTL = 0
	m.linkTail(&m.freeOwner, id)
}

// linkTail appends id to the tail of owner's chain, updating both the
// segment's prev/next pointers and owner's head/tail bookkeeping.
func (m *Manager) linkTail(owner ChainOwner, id uint32) {
	h := &m.headers[id]
	h.PrevSeg = owner.TailSeg()
	h.NextSeg = noSegment

	if owner.TailSeg() != noSegment {
		m.headers[owner.TailSeg()].NextSeg = id
	} else {
		owner.SetHeadSeg(id)
	}
	owner.SetTailSeg(id)
	owner.IncrSegmentCount(1)
}

// unlinkFromChain detaches id from owner's doubly-linked chain, keeping
// the other members' pointers and owner's head/tail consistent.
func (m *Manager) unlinkFromChain(owner ChainOwner, id uint32) {
	h := &m.headers[id]
	prev, next := h.PrevSeg, h.NextSeg

	if prev != noSegment {
		m.headers[prev].NextSeg = next
	} else {
		owner.SetHeadSeg(next)
	}
	if next != noSegment {
		m.headers[next].PrevSeg = prev
	} else {
		owner.SetTailSeg(prev)
	}

	h.PrevSeg = noSegment
	h.NextSeg = noSegment
	owner.IncrSegmentCount(-1)
}

// LiveItem is one surviving record found by Scan, ready to be re-indexed.
type LiveItem struct {
	Offset uint32 // 8-byte-unit offset, as stored in a hashtable entry
	Key    []byte
	TTL    uint32
}

// Scan walks segment id's body from its start, decoding items until it
// finds one whose magic word doesn't verify (the end of what was ever
// written — datapool bytes beyond the last write are always zero). It is
// used only during startup recovery from a checkpointed datapool image,
// where headers were never persisted and must be rebuilt from the raw
// bytes. Returns every live (non-tombstoned) item plus the write offset,
// occupied size, and item count the segment's header should be restored
// to.
func (m *Manager) Scan(id uint32) (items []LiveItem, writeOffset, occupied, nItem uint32) {
	body := m.Body(id)
	offset := uint32(0)

	for offset < m.size && item.VerifyMagic(body[offset:]) {
		hdr, err := item.DecodeHeader(body[offset:])
		if err != nil {
			break
		}
		size := uint32(hdr.Size())
		if offset+size > m.size {
			break
		}

		if !hdr.Deleted {
			key := append([]byte(nil), hdr.Key(body[offset:])...)
			items = append(items, LiveItem{Offset: offset / 8, Key: key, TTL: hdr.TTL})
			occupied += size
			nItem++
		}

		offset += size
	}

	return items, offset, occupied, nItem
}

// Recover restores segment id's header from values Scan computed and
// links it onto owner's chain, replacing its default place on the free
// chain that NewManager put it on. now is used as an approximation of
// CreateAt, since segment creation time is not part of the persisted
// image.
func (m *Manager) Recover(owner ChainOwner, id uint32, writeOffset, occupied, nItem, ttl, now uint32) {
	m.unlinkFromChain(&m.freeOwner, id)

	h := &m.headers[id]
	h.WriteOffset = writeOffset
	h.OccupiedSize = occupied
	h.NItem = nItem
	h.TTL = ttl
	h.CreateAt = now
	h.Accessible = true
	h.Evictable = true

	m.linkTail(owner, id)
}

func (m *Manager) now() uint32 {
	if m.nowFn == nil {
		return 0
	}
	return m.nowFn()
}
