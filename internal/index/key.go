package index

import "github.com/cespare/xxhash/v2"

// Key is the 8-byte composite index key: a 4-byte name_hash half in the
// high bits, followed by a 4-byte value_prefix_hash half. Keys compare as
// big-endian unsigned integers, so sorting Key values sorts first by name
// half, then by value half, which is what lets matcher resolution scan a
// contiguous range for a single label name.
type Key uint64

// nameMaskShift is the bit position where the name half begins.
const nameMaskShift = 32

// MakeKey composes the index key for a (name, value) label pair.
func MakeKey(name, value string) Key {
	return Key(uint64(hashName(name))<<nameMaskShift | uint64(valuePrefixHash(value)))
}

func hashName(name string) uint32 {
	return uint32(xxhash.Sum64String(name))
}

// valuePrefixHash packs up to 2 bytes of the value's raw prefix
// (left-padded with NULs if the value is shorter) into the high 2 bytes,
// and 2 bytes of a stable hash of the whole value into the low 2 bytes.
func valuePrefixHash(value string) uint32 {
	var p0, p1 byte
	switch len(value) {
	case 0:
		// both bytes stay zero (NUL-padded)
	case 1:
		p1 = value[0]
	default:
		p0, p1 = value[0], value[1]
	}
	valHash := uint16(xxhash.Sum64String(value))
	return uint32(p0)<<24 | uint32(p1)<<16 | uint32(valHash)
}

// NameRange returns the half-open bounds [lo, hi) of the key
// space occupied by every (name, *) pair: lo has the name half set and the
// value half zeroed; hi is lo plus one in the least-significant byte of
// the name half (i.e. the first key of the next name's range).
func NameRange(name string) (lo, hi Key) {
	nameHalf := uint64(hashName(name)) << nameMaskShift
	lo = Key(nameHalf)
	hi = Key(nameHalf + (1 << nameMaskShift))
	return lo, hi
}
