package metric

import "math/bits"

// HammingWords counts differing bits between two packed binary vectors.
// Vectors are packed little-endian into uint64 words, four words (256
// bits) per unrolled step. Word counts must match; the caller guarantees
// it because both sides come from the same fixed-dimension store.
func HammingWords(a, b []uint64) int {
	var n int
	i := 0
	for ; i+4 <= len(a); i += 4 {
		n += bits.OnesCount64(a[i] ^ b[i])
		n += bits.OnesCount64(a[i+1] ^ b[i+1])
		n += bits.OnesCount64(a[i+2] ^ b[i+2])
		n += bits.OnesCount64(a[i+3] ^ b[i+3])
	}
	for ; i < len(a); i++ {
		n += bits.OnesCount64(a[i] ^ b[i])
	}
	return n
}
