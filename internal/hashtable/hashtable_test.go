package hashtable

import (
	"testing"

	"github.com/ignitedb/ignite/internal/segment"
	"github.com/ignitedb/ignite/internal/ttlbucket"
	apperrors "github.com/ignitedb/ignite/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alwaysFailEviction struct{}

func (alwaysFailEviction) Reclaim(m *segment.Manager) error {
	return apperrors.NewEngineError(apperrors.ErrNoFreeSegments, apperrors.ErrorCodeNoFreeSegments, "test: no eviction")
}

func newTestTable(t *testing.T, numSegments uint32, segSize uint32) (*Table, *segment.Manager) {
	t.Helper()
	now := func() uint32 { return 1000 }
	buckets := ttlbucket.New(now)
	data := make([]byte, uint64(numSegments)*uint64(segSize))
	mgr := segment.NewManager(data, segSize, numSegments, alwaysFailEviction{}, now)
	tbl := New(4, mgr, buckets, now)
	mgr.SetHashRemover(tbl)
	return tbl, mgr
}

func TestInsertThenGetRoundTrips(t *testing.T) {
	tbl, _ := newTestTable(t, 4, 256)

	cas, err := tbl.Insert([]byte("k1"), []byte("v1"), []byte("fl"), 60, nil)
	require.NoError(t, err)
	assert.NotZero(t, cas)

	got, ok, err := tbl.Get([]byte("k1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got.Value)
	assert.Equal(t, []byte("fl"), got.Flags)
	assert.Equal(t, uint32(60), got.TTL)
	assert.Equal(t, cas, got.CAS)
}

func TestGetMissingKeyReturnsNotOk(t *testing.T) {
	tbl, _ := newTestTable(t, 4, 256)
	_, ok, err := tbl.Get([]byte("nope"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInsertOverwritesExistingKey(t *testing.T) {
	tbl, _ := newTestTable(t, 4, 256)
	_, err := tbl.Insert([]byte("k"), []byte("v1"), nil, 60, nil)
	require.NoError(t, err)
	_, err = tbl.Insert([]byte("k"), []byte("v2"), nil, 60, nil)
	require.NoError(t, err)

	got, ok, err := tbl.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), got.Value)
}

func TestDeleteRemovesKey(t *testing.T) {
	tbl, _ := newTestTable(t, 4, 256)
	_, err := tbl.Insert([]byte("k"), []byte("v"), nil, 60, nil)
	require.NoError(t, err)

	require.NoError(t, tbl.Delete([]byte("k")))

	_, ok, err := tbl.Get([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteMissingKeyFailsNotFound(t *testing.T) {
	tbl, _ := newTestTable(t, 4, 256)
	err := tbl.Delete([]byte("ghost"))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCasMismatchRejectsStaleToken(t *testing.T) {
	tbl, _ := newTestTable(t, 4, 256)
	_, err := tbl.Insert([]byte("k"), []byte("v1"), nil, 60, nil)
	require.NoError(t, err)

	stale := uint32(999999)
	_, err = tbl.Insert([]byte("k"), []byte("v2"), nil, 60, &stale)
	assert.True(t, apperrors.IsCasMismatch(err))
}

func TestCasMatchingTokenSucceeds(t *testing.T) {
	tbl, _ := newTestTable(t, 4, 256)
	cas1, err := tbl.Insert([]byte("k"), []byte("v1"), nil, 60, nil)
	require.NoError(t, err)

	cas2, err := tbl.Insert([]byte("k"), []byte("v2"), nil, 60, &cas1)
	require.NoError(t, err)
	assert.NotEqual(t, cas1, cas2)
}

func TestIncrDecrOnNumericItem(t *testing.T) {
	tbl, _ := newTestTable(t, 4, 256)
	_, err := tbl.Insert([]byte("counter"), []byte("10"), nil, 0, nil)
	require.NoError(t, err)

	v, err := tbl.IncrDecr([]byte("counter"), 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), v)

	v, err = tbl.IncrDecr([]byte("counter"), -20)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v, "decrement below zero clamps to zero")
}

func TestIncrDecrOnNonNumericItemFails(t *testing.T) {
	tbl, _ := newTestTable(t, 4, 256)
	_, err := tbl.Insert([]byte("k"), []byte("not-a-number"), nil, 0, nil)
	require.NoError(t, err)

	_, err = tbl.IncrDecr([]byte("k"), 1)
	assert.True(t, apperrors.IsNotNumeric(err))
}

func TestExistsDoesNotBumpFrequency(t *testing.T) {
	tbl, _ := newTestTable(t, 4, 256)
	_, err := tbl.Insert([]byte("k"), []byte("v"), nil, 60, nil)
	require.NoError(t, err)

	assert.True(t, tbl.Exists([]byte("k")))
	assert.False(t, tbl.Exists([]byte("absent")))

	loc, ok := tbl.find([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, uint8(0), entryFreq(loc.entry))
}

func TestRemoveAtUnlinksEntryUsedBySegmentReclamation(t *testing.T) {
	tbl, mgr := newTestTable(t, 4, 256)
	_, err := tbl.Insert([]byte("k"), []byte("v"), nil, 60, nil)
	require.NoError(t, err)

	got, ok, err := tbl.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tbl.RemoveAt(got.SegmentID, 0, []byte("k")))

	_, ok, err = tbl.Get([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)

	_ = mgr
}

func TestOverflowChainGrowsWhenPrimaryBucketFills(t *testing.T) {
	tbl, _ := newTestTable(t, 8, 512)

	// hashPower=4 => 16 primary buckets, 7 slots each. Insert enough keys
	// that collisions are likely and at least one primary bucket overflows.
	for i := 0; i < 200; i++ {
		key := []byte{byte(i), byte(i >> 8)}
		_, err := tbl.Insert(key, []byte("v"), nil, 3600, nil)
		require.NoError(t, err)
	}

	var anyOverflow bool
	for _, chain := range tbl.overflow {
		if len(chain) > 0 {
			anyOverflow = true
			break
		}
	}
	assert.True(t, anyOverflow, "expected at least one bucket to have grown an overflow chain")
}
