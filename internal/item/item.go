// Package item implements the on-disk codec for one stored record inside a
// segment's body.
//
// Layout, all fields little-endian:
//
//	magic       uint32   // always written; counted in HeaderSize
//	packedWord  uint32   // klen (low 8 bits) | vlen (upper 24 bits)
//	packedByte  byte     // olen (low 6 bits) | deleted (bit 6) | numeric (bit 7)
//	ttl         uint32   // seconds; interpretation owned by the caller
//	key         []byte   // klen bytes
//	value       []byte   // vlen bytes
//	optional    []byte   // olen bytes
//	padding     []byte   // pads the whole record to an 8-byte multiple
package item

import (
	"encoding/binary"

	apperrors "github.com/ignitedb/ignite/pkg/errors"
)

// Magic is the sentinel written at the start of every item so corruption
// can be detected by a mismatched read. segment.Manager.Scan also relies
// on it to find the end of the written items when rebuilding headers from
// a recovered datapool image.
const Magic uint32 = 0x49544d31 // "ITM1"

// HeaderSize is the fixed, non-variable portion of an encoded item: magic
// (4) + packed word (4) + packed byte (1) + ttl (4).
const HeaderSize = 13

// MaxKeyLen, MaxValueLen, and MaxOptionalLen are the limits imposed by the
// packed header's field widths.
const (
	MaxKeyLen      = 1<<8 - 1        // klen: 8 bits
	MaxValueLen    = 1<<24 - 1       // vlen: 24 bits
	MaxOptionalLen = 1<<6 - 1        // olen: 6 bits
	deletedBit     = 1 << 6
	numericBit     = 1 << 7
)

// Header is the decoded, in-memory view of an item's fixed header.
type Header struct {
	Magic    uint32
	KeyLen   uint8
	ValueLen uint32
	OptLen   uint8
	Deleted  bool
	Numeric  bool
	TTL      uint32
}

// EncodedSize returns the full on-disk size of an item with the given
// component lengths, rounded up to an 8-byte multiple, required for the
// hashtable's 8-byte-unit offset encoding.
func EncodedSize(keyLen, valueLen, optLen int) int {
	raw := HeaderSize + keyLen + valueLen + optLen
	return align8(raw)
}

func align8(n int) int {
	return (n + 7) &^ 7
}

// isNumericValue reports whether value is a non-empty ASCII decimal
// integer, the shape IncrDecr requires to treat an item as a counter.
func isNumericValue(value []byte) bool {
	if len(value) == 0 {
		return false
	}
	for _, b := range value {
		if b < '0' || b > '9' {
			return false
		}
	}
	return true
}

// Encode writes key, value, and optional bytes into dst at offset 0,
// returning the number of bytes the encoded item occupies (including
// padding). dst must be at least EncodedSize(len(key), len(value),
// len(optional)) bytes long. The numeric header bit is derived from value
// itself, not supplied by the caller: an item is numeric exactly when its
// value is an ASCII decimal integer.
func Encode(dst []byte, key, value, optional []byte, ttl uint32) (int, error) {
	if len(key) > MaxKeyLen {
		return 0, apperrors.NewEngineError(apperrors.ErrOversized, apperrors.ErrorCodeOversized, "key exceeds maximum key length").
			WithDetail("keyLen", len(key))
	}
	if len(value) > MaxValueLen {
		return 0, apperrors.NewEngineError(apperrors.ErrOversized, apperrors.ErrorCodeOversized, "value exceeds maximum value length").
			WithDetail("valueLen", len(value))
	}
	if len(optional) > MaxOptionalLen {
		return 0, apperrors.NewEngineError(apperrors.ErrOversized, apperrors.ErrorCodeOversized, "optional bytes exceed maximum optional length").
			WithDetail("optLen", len(optional))
	}

	size := EncodedSize(len(key), len(value), len(optional))
	if len(dst) < size {
		return 0, apperrors.NewEngineError(apperrors.ErrOversized, apperrors.ErrorCodeOversized, "destination buffer too small for encoded item")
	}

	binary.LittleEndian.PutUint32(dst[0:4], Magic)

	packedWord := uint32(len(key)) | (uint32(len(value)) << 8)
	binary.LittleEndian.PutUint32(dst[4:8], packedWord)

	packedByte := byte(len(optional))
	if isNumericValue(value) {
		packedByte |= numericBit
	}
	dst[8] = packedByte

	binary.LittleEndian.PutUint32(dst[9:13], ttl)

	off := HeaderSize
	off += copy(dst[off:], key)
	off += copy(dst[off:], value)
	off += copy(dst[off:], optional)

	for i := off; i < size; i++ {
		dst[i] = 0
	}

	return size, nil
}

// DecodeHeader reads the fixed header at the start of src without copying
// key/value/optional bytes.
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, apperrors.NewEngineError(apperrors.ErrDataCorrupted, apperrors.ErrorCodeDataCorrupted, "buffer too small to contain an item header")
	}

	magic := binary.LittleEndian.Uint32(src[0:4])
	packedWord := binary.LittleEndian.Uint32(src[4:8])
	packedByte := src[8]
	ttl := binary.LittleEndian.Uint32(src[9:13])

	return Header{
		Magic:    magic,
		KeyLen:   uint8(packedWord & 0xff),
		ValueLen: packedWord >> 8,
		OptLen:   packedByte & MaxOptionalLen,
		Deleted:  packedByte&deletedBit != 0,
		Numeric:  packedByte&numericBit != 0,
		TTL:      ttl,
	}, nil
}

// Size returns the total on-disk size (including padding) of the item
// encoded in src, given its already-decoded header.
func (h Header) Size() int {
	return EncodedSize(int(h.KeyLen), int(h.ValueLen), int(h.OptLen))
}

// Key, Value, and Optional slice the respective component out of src,
// given its decoded header. The caller must have decoded h from src.
func (h Header) Key(src []byte) []byte {
	return src[HeaderSize : HeaderSize+int(h.KeyLen)]
}

func (h Header) Value(src []byte) []byte {
	start := HeaderSize + int(h.KeyLen)
	return src[start : start+int(h.ValueLen)]
}

func (h Header) Optional(src []byte) []byte {
	start := HeaderSize + int(h.KeyLen) + int(h.ValueLen)
	return src[start : start+int(h.OptLen)]
}

// MarkDeleted flips the tombstone bit in place, given src is the full
// encoded item starting at its header.
func MarkDeleted(src []byte) {
	src[8] |= deletedBit
}

// VerifyMagic reports whether src's magic word matches the expected
// sentinel. Used for corruption checks and by segment.Manager.Scan to
// detect the end of the written items in a segment body.
func VerifyMagic(src []byte) bool {
	if len(src) < 4 {
		return false
	}
	return binary.LittleEndian.Uint32(src[0:4]) == Magic
}
