package ttlbucket

import (
	"testing"

	"github.com/ignitedb/ignite/internal/segment"
	apperrors "github.com/ignitedb/ignite/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// alwaysFailEviction mirrors eviction.None without importing internal/eviction,
// which itself depends on this package.
type alwaysFailEviction struct{}

func (alwaysFailEviction) Reclaim(m *segment.Manager) error {
	return apperrors.NewEngineError(apperrors.ErrNoFreeSegments, apperrors.ErrorCodeNoFreeSegments, "test: no eviction")
}

func TestBucketForIsMonotonicWithinEachBand(t *testing.T) {
	assert.Less(t, BucketFor(1), BucketFor(9))
	assert.Less(t, BucketFor(9), BucketFor(200))
	assert.Less(t, BucketFor(200), BucketFor(3000))
}

func TestBucketForZeroMeansNeverExpires(t *testing.T) {
	assert.Equal(t, totalBuckets-1, BucketFor(0))
}

func TestBucketForSaturatesOverlongTTL(t *testing.T) {
	assert.Equal(t, totalBuckets-1, BucketFor(maxTTL))
	assert.Equal(t, totalBuckets-1, BucketFor(maxTTL*2))
}

func TestBucketForIsIdempotentUnderItsOwnLowerEdge(t *testing.T) {
	for _, idx := range []int{0, 1, 255, 256, 511, 512, 1022} {
		ttl := rawTTLForBucket(idx)
		assert.Equal(t, idx, BucketFor(ttl), "rawTTLForBucket(%d)=%d should round-trip", idx, ttl)
	}
}

func TestNewSeedsEachBucketWithItsLowerEdgeTTL(t *testing.T) {
	tb := New(func() uint32 { return 0 })
	assert.Equal(t, uint32(0), tb.buckets[0].TTL)
	assert.Equal(t, bandStart[1], tb.buckets[bucketsPerBand].TTL)
}

func TestAppendItemAllocatesASegmentOnFirstWrite(t *testing.T) {
	tb := New(func() uint32 { return 10 })
	data := make([]byte, 4*64)
	mgr := segment.NewManager(data, 64, 4, alwaysFailEviction{}, func() uint32 { return 10 })

	reserved, err := tb.AppendItem(mgr, 60, make([]byte, 16))
	require.NoError(t, err)
	assert.NotZero(t, reserved.SegmentID)
	assert.Equal(t, uint32(0), reserved.Offset)
}

func TestAppendItemReusesTailSegmentWhenItFits(t *testing.T) {
	tb := New(func() uint32 { return 10 })
	data := make([]byte, 4*64)
	mgr := segment.NewManager(data, 64, 4, alwaysFailEviction{}, func() uint32 { return 10 })

	first, err := tb.AppendItem(mgr, 60, make([]byte, 16))
	require.NoError(t, err)
	second, err := tb.AppendItem(mgr, 60, make([]byte, 16))
	require.NoError(t, err)

	assert.Equal(t, first.SegmentID, second.SegmentID)
	assert.NotEqual(t, first.Offset, second.Offset)
}

func TestAppendItemAllocatesNewSegmentWhenTailIsFull(t *testing.T) {
	tb := New(func() uint32 { return 10 })
	data := make([]byte, 4*32)
	mgr := segment.NewManager(data, 32, 4, alwaysFailEviction{}, func() uint32 { return 10 })

	first, err := tb.AppendItem(mgr, 60, make([]byte, 24))
	require.NoError(t, err)
	second, err := tb.AppendItem(mgr, 60, make([]byte, 24))
	require.NoError(t, err)

	assert.NotEqual(t, first.SegmentID, second.SegmentID)
}

func TestExpireAllReclaimsOnlyExpiredSegments(t *testing.T) {
	now := uint32(1000)
	tb := New(func() uint32 { return now })
	data := make([]byte, 4*64)
	mgr := segment.NewManager(data, 64, 4, alwaysFailEviction{}, func() uint32 { return now })

	_, err := tb.AppendItem(mgr, 10, make([]byte, 8)) // expires at ~10+createAt
	require.NoError(t, err)
	_, err = tb.AppendItem(mgr, 5000, make([]byte, 8)) // still live at now+1000
	require.NoError(t, err)

	reclaimed := tb.ExpireAll(mgr, now+1000, 0)
	assert.Equal(t, 1, reclaimed)
	assert.Equal(t, uint32(1), tb.Bucket(5000).SegmentCount())
}

func TestExpireAllRespectsBudget(t *testing.T) {
	now := uint32(1000)
	tb := New(func() uint32 { return now })
	data := make([]byte, 8*64)
	mgr := segment.NewManager(data, 64, 8, alwaysFailEviction{}, func() uint32 { return now })

	for i := 0; i < 4; i++ {
		_, err := tb.AppendItem(mgr, 10, make([]byte, 64))
		require.NoError(t, err)
	}

	reclaimed := tb.ExpireAll(mgr, now+1000, 2)
	assert.Equal(t, 2, reclaimed)
}

func TestChainIDsWalksHeadToTail(t *testing.T) {
	tb := New(func() uint32 { return 0 })
	data := make([]byte, 4*32)
	mgr := segment.NewManager(data, 32, 4, alwaysFailEviction{}, func() uint32 { return 0 })

	b := tb.Bucket(60)
	id1, err := mgr.Allocate(b, 60)
	require.NoError(t, err)
	id2, err := mgr.Allocate(b, 60)
	require.NoError(t, err)

	ids := b.ChainIDs(mgr)
	assert.Equal(t, []uint32{id1, id2}, ids)
}
