package dataconfig

import "encoding/binary"

// SumUint64Merge treats both the existing buffered value and the incoming
// delta as little-endian uint64 counters and returns their sum. It is the
// accumulator shape exercised by the counter-increment workload scenarios:
// each Update call buffers a small delta (e.g. +1), and repeated updates
// within one transaction collapse to a single summed effective update
// instead of last-write-wins overwriting earlier increments.
func SumUint64Merge(_ []byte, existing, delta []byte) ([]byte, error) {
	var a, b uint64
	if len(existing) == 8 {
		a = binary.LittleEndian.Uint64(existing)
	}
	if len(delta) == 8 {
		b = binary.LittleEndian.Uint64(delta)
	}
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, a+b)
	return out, nil
}

// EncodeUint64 is a small helper for building counter deltas/values.
func EncodeUint64(v uint64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, v)
	return out
}

// DecodeUint64 is the inverse of EncodeUint64; it returns 0 for anything
// that isn't exactly 8 bytes.
func DecodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}
