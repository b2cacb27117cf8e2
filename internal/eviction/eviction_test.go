package eviction

import (
	"testing"

	"github.com/ignitedb/ignite/internal/segment"
	"github.com/ignitedb/ignite/internal/ttlbucket"
	apperrors "github.com/ignitedb/ignite/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManagerWithPolicy(t *testing.T, numSegments, segSize uint32, policy segment.EvictionPolicy, now func() uint32) *segment.Manager {
	t.Helper()
	data := make([]byte, uint64(numSegments)*uint64(segSize))
	return segment.NewManager(data, segSize, numSegments, policy, now)
}

func TestNoneAlwaysFails(t *testing.T) {
	now := func() uint32 { return 0 }
	mgr := newManagerWithPolicy(t, 1, 64, None{}, now)

	err := (None{}).Reclaim(mgr)
	assert.True(t, apperrors.IsNoFreeSegments(err))
}

func TestRandomReclaimsAnEvictableSegmentWhenFreeChainEmpty(t *testing.T) {
	now := func() uint32 { return 0 }
	buckets := ttlbucket.New(now)
	policy := NewRandom(buckets, [32]byte{1})
	mgr := newManagerWithPolicy(t, 2, 64, policy, now)

	b := buckets.Bucket(60)
	_, err := mgr.Allocate(b, 60)
	require.NoError(t, err)
	_, err = mgr.Allocate(b, 60)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), mgr.FreeCount())

	// Free chain is now empty; a third allocate must evict one of the two
	// already-allocated segments to make room.
	_, err = mgr.Allocate(b, 60)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), mgr.FreeCount())
	assert.Equal(t, uint32(2), b.SegmentCount())
}

func TestFIFOEvictsOldestSegmentFirst(t *testing.T) {
	now := func() uint32 { return 0 }
	buckets := ttlbucket.New(now)
	tick := uint32(0)
	nowFn := func() uint32 { return tick }

	policy := NewFIFO(buckets)
	mgr := newManagerWithPolicy(t, 2, 64, policy, nowFn)

	b := buckets.Bucket(60)
	tick = 10
	oldest, err := mgr.Allocate(b, 60)
	require.NoError(t, err)
	tick = 20
	_, err = mgr.Allocate(b, 60)
	require.NoError(t, err)

	require.NoError(t, policy.Reclaim(mgr))
	assert.False(t, mgr.Accessible(oldest), "FIFO should have evicted the oldest (lowest CreateAt) segment")
}

func TestCTEEvictsSoonestToExpireFirst(t *testing.T) {
	now := func() uint32 { return 0 }
	buckets := ttlbucket.New(now)
	tick := uint32(100)
	nowFn := func() uint32 { return tick }

	policy := NewCTE(buckets)
	mgr := newManagerWithPolicy(t, 2, 64, policy, nowFn)

	bFar := buckets.Bucket(5000)
	bNear := buckets.Bucket(10)

	_, err := mgr.Allocate(bFar, 5000)
	require.NoError(t, err)
	nearID, err := mgr.Allocate(bNear, 10)
	require.NoError(t, err)

	require.NoError(t, policy.Reclaim(mgr))
	assert.False(t, mgr.Accessible(nearID), "CTE should evict the segment expiring soonest")
}

func TestFIFOAndCTEFailWhenNothingEvictable(t *testing.T) {
	now := func() uint32 { return 0 }
	buckets := ttlbucket.New(now)

	assert.Error(t, NewFIFO(buckets).Reclaim(newManagerWithPolicy(t, 1, 64, NewFIFO(buckets), now)))
	assert.Error(t, NewCTE(buckets).Reclaim(newManagerWithPolicy(t, 1, 64, NewCTE(buckets), now)))
}

func TestMergePolicyCompactsSparsestBucket(t *testing.T) {
	now := func() uint32 { return 0 }
	buckets := ttlbucket.New(now)
	policy := NewMerge(buckets)
	mgr := newManagerWithPolicy(t, 4, 64, policy, now)

	b := buckets.Bucket(60)
	id1, err := mgr.Allocate(b, 60)
	require.NoError(t, err)
	id2, err := mgr.Allocate(b, 60)
	require.NoError(t, err)

	_, err = mgr.Append(id1, make([]byte, 8))
	require.NoError(t, err)
	_, err = mgr.Append(id2, make([]byte, 8))
	require.NoError(t, err)

	require.NoError(t, policy.Reclaim(mgr))
	assert.True(t, mgr.Accessible(id1), "the chain's head segment is reused in place as the merge destination")
	assert.False(t, mgr.Accessible(id2))
	assert.Equal(t, uint32(3), mgr.FreeCount(), "merging two segments in place frees exactly one")
}

func TestMergePolicyFailsWithNoMergeableBucket(t *testing.T) {
	now := func() uint32 { return 0 }
	buckets := ttlbucket.New(now)
	policy := NewMerge(buckets)
	mgr := newManagerWithPolicy(t, 2, 64, policy, now)

	err := policy.Reclaim(mgr)
	assert.Error(t, err)
}

// TestMergeReclaimsWithoutAnyPreexistingFreeSegment guards against a
// deadlock where eviction=merge could only ever run while free segments
// already existed, making it permanently unable to reclaim once the pool
// genuinely filled up.
func TestMergeReclaimsWithoutAnyPreexistingFreeSegment(t *testing.T) {
	now := func() uint32 { return 0 }
	buckets := ttlbucket.New(now)
	policy := NewMerge(buckets)
	mgr := newManagerWithPolicy(t, 2, 64, policy, now)

	b := buckets.Bucket(60)
	id1, err := mgr.Allocate(b, 60)
	require.NoError(t, err)
	id2, err := mgr.Allocate(b, 60)
	require.NoError(t, err)
	require.Equal(t, uint32(0), mgr.FreeCount())

	_, err = mgr.Append(id1, make([]byte, 8))
	require.NoError(t, err)
	_, err = mgr.Append(id2, make([]byte, 8))
	require.NoError(t, err)

	// Both segments are taken and nothing is free: the only way Allocate
	// can succeed is by having the merge policy reclaim in place.
	third, err := mgr.Allocate(b, 60)
	require.NoError(t, err, "merge must reclaim a segment even though none was free beforehand")
	assert.True(t, mgr.Accessible(id1), "the merge destination keeps serving the chain")
	assert.Equal(t, id2, third, "the segment freed by the merge is the one handed back out")
	assert.Equal(t, uint32(0), mgr.FreeCount())
}
