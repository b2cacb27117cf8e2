package keyhash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSumIsDeterministic(t *testing.T) {
	key := []byte("some-cache-key")
	assert.Equal(t, Sum(key), Sum(key))
}

func TestSumAndSumStringAgree(t *testing.T) {
	assert.Equal(t, Sum([]byte("agreement")), SumString("agreement"))
}

func TestSumDistinguishesDifferentKeys(t *testing.T) {
	assert.NotEqual(t, Sum([]byte("a")), Sum([]byte("b")))
}

func TestBucketIndexMasksToHashPower(t *testing.T) {
	hash := uint64(0xFFFFFFFFFFFFFFFF)
	assert.Equal(t, uint64(0), BucketIndex(hash, 0))
	assert.Equal(t, uint64(0b1), BucketIndex(hash, 1))
	assert.Equal(t, uint64(0xFF), BucketIndex(hash, 8))
}

func TestBucketIndexHighHashPowerReturnsWholeHash(t *testing.T) {
	hash := uint64(12345)
	assert.Equal(t, hash, BucketIndex(hash, 64))
}

func TestTagExtractsTopTwelveBits(t *testing.T) {
	var hash uint64 = 0xABC0_0000_0000_0000
	assert.Equal(t, uint16(0xABC), Tag(hash))
}

func TestTagAndBucketIndexDoNotOverlapBits(t *testing.T) {
	hash := Sum([]byte("no-overlap"))
	tag := Tag(hash)
	idx := BucketIndex(hash, 12)
	assert.LessOrEqual(t, idx, uint64(1<<12-1))
	assert.LessOrEqual(t, uint64(tag), uint64(1<<12-1))
}
