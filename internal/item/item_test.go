package item

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key := []byte("hello")
	value := []byte("world!!")
	optional := []byte("ab")

	size := EncodedSize(len(key), len(value), len(optional))
	dst := make([]byte, size)

	n, err := Encode(dst, key, value, optional, 42)
	require.NoError(t, err)
	assert.Equal(t, size, n)

	hdr, err := DecodeHeader(dst)
	require.NoError(t, err)
	assert.Equal(t, Magic, hdr.Magic)
	assert.Equal(t, uint8(len(key)), hdr.KeyLen)
	assert.Equal(t, uint32(len(value)), hdr.ValueLen)
	assert.Equal(t, uint8(len(optional)), hdr.OptLen)
	assert.Equal(t, uint32(42), hdr.TTL)
	assert.False(t, hdr.Numeric, "value is not an ASCII integer")
	assert.False(t, hdr.Deleted)

	assert.Equal(t, key, hdr.Key(dst))
	assert.Equal(t, value, hdr.Value(dst))
	assert.Equal(t, optional, hdr.Optional(dst))
}

func TestEncodedSizeAlignsTo8Bytes(t *testing.T) {
	for _, tc := range []struct{ k, v, o int }{
		{1, 1, 0},
		{3, 5, 1},
		{0, 0, 0},
		{255, 1000, 63},
	} {
		size := EncodedSize(tc.k, tc.v, tc.o)
		assert.Zero(t, size%8, "size %d not 8-byte aligned for %+v", size, tc)
		assert.GreaterOrEqual(t, size, HeaderSize+tc.k+tc.v+tc.o)
	}
}

func TestEncodeRejectsOversizedComponents(t *testing.T) {
	dst := make([]byte, 4096)

	_, err := Encode(dst, make([]byte, MaxKeyLen+1), nil, nil, 0)
	assert.Error(t, err)

	_, err = Encode(dst, nil, make([]byte, MaxValueLen+1), nil, 0)
	assert.Error(t, err)

	_, err = Encode(dst, nil, nil, make([]byte, MaxOptionalLen+1), 0)
	assert.Error(t, err)
}

func TestEncodeRejectsUndersizedDestination(t *testing.T) {
	dst := make([]byte, 4)
	_, err := Encode(dst, []byte("k"), []byte("v"), nil, 0)
	assert.Error(t, err)
}

func TestDecodeHeaderRejectsTruncatedBuffer(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	assert.Error(t, err)
}

func TestMarkDeletedSetsTombstoneBit(t *testing.T) {
	dst := make([]byte, EncodedSize(1, 1, 0))
	_, err := Encode(dst, []byte("k"), []byte("v"), nil, 0)
	require.NoError(t, err)

	hdr, err := DecodeHeader(dst)
	require.NoError(t, err)
	assert.False(t, hdr.Deleted)

	MarkDeleted(dst)

	hdr, err = DecodeHeader(dst)
	require.NoError(t, err)
	assert.True(t, hdr.Deleted)
}

func TestVerifyMagic(t *testing.T) {
	dst := make([]byte, EncodedSize(1, 0, 0))
	_, err := Encode(dst, []byte("k"), nil, nil, 0)
	require.NoError(t, err)

	assert.True(t, VerifyMagic(dst))
	assert.False(t, VerifyMagic(make([]byte, len(dst))))
	assert.False(t, VerifyMagic(nil))
}

func TestDecodeHeaderAcrossVaryingShapes(t *testing.T) {
	cases := []struct {
		name     string
		key      []byte
		value    []byte
		optional []byte
		ttl      uint32
		want     Header
	}{
		{
			name: "empty value and optional",
			key:  []byte("k"),
			ttl:  0,
			want: Header{Magic: Magic, KeyLen: 1, ValueLen: 0, OptLen: 0, TTL: 0},
		},
		{
			name:     "flags carried as optional bytes",
			key:      []byte("session"),
			value:    []byte("payload"),
			optional: []byte("fl"),
			ttl:      3600,
			want:     Header{Magic: Magic, KeyLen: 7, ValueLen: 7, OptLen: 2, TTL: 3600},
		},
		{
			name:  "numeric item derives its flag from an all-digit value",
			key:   []byte("counter"),
			value: []byte("42"),
			ttl:   0,
			want:  Header{Magic: Magic, KeyLen: 7, ValueLen: 2, OptLen: 0, TTL: 0, Numeric: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dst := make([]byte, EncodedSize(len(tc.key), len(tc.value), len(tc.optional)))
			_, err := Encode(dst, tc.key, tc.value, tc.optional, tc.ttl)
			require.NoError(t, err)

			got, err := DecodeHeader(dst)
			require.NoError(t, err)

			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("decoded header mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHeaderSizeMatchesItsOwnEncoding(t *testing.T) {
	dst := make([]byte, EncodedSize(3, 4, 5))
	_, err := Encode(dst, []byte("abc"), []byte("abcd"), []byte("abcde"), 7)
	require.NoError(t, err)

	hdr, err := DecodeHeader(dst)
	require.NoError(t, err)
	assert.Equal(t, EncodedSize(3, 4, 5), hdr.Size())
}
