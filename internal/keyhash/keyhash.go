// Package keyhash computes the 64-bit key hash the hashtable uses to pick a
// primary bucket and a 12-bit in-bucket filter tag.
package keyhash

import "github.com/cespare/xxhash/v2"

// Sum hashes key with xxhash64. The hashtable derives its primary bucket
// index from the low bits of this value and its 12-bit tag from the high
// bits, so a fast, well-distributed 64-bit hash is all that's required.
func Sum(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// SumString is Sum without a []byte(key) allocation for string keys.
func SumString(key string) uint64 {
	return xxhash.Sum64String(key)
}

// Tag extracts the 12-bit in-bucket filter tag from a key hash: the top 12
// bits of the 64-bit value.
func Tag(hash uint64) uint16 {
	return uint16(hash >> 52)
}

// BucketIndex extracts the primary bucket index from a key hash, given
// hashPower (log2 of the bucket count). It uses the low hashPower bits so
// it is independent of the Tag bits drawn from the high end.
func BucketIndex(hash uint64, hashPower uint8) uint64 {
	if hashPower >= 64 {
		return hash
	}
	mask := (uint64(1) << hashPower) - 1
	return hash & mask
}
