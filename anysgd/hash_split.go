package anysgd

import (
	"encoding/binary"
	"math"
)

// A Hasher is a SampleList which can hash its samples.
type Hasher interface {
	SampleList
	Hash(i int) []byte
}

// HashSplit partitions a Hasher by the hashes of its
// samples, so a given sample always lands on the same
// side regardless of the rest of the list.
//
// About leftRatio of the samples go to the left
// partition.
// The order of h is modified.
func HashSplit(h Hasher, leftRatio float64) (left, right SampleList) {
	if leftRatio <= 0 {
		return h.Slice(0, 0), h
	} else if leftRatio >= 1 {
		return h, h.Slice(0, 0)
	}
	cutoff := uint64(leftRatio * math.MaxUint64)
	var numLeft int
	for i := 0; i < h.Len(); i++ {
		if hashPrefix(h.Hash(i)) < cutoff {
			h.Swap(numLeft, i)
			numLeft++
		}
	}
	return h.Slice(0, numLeft), h.Slice(numLeft, h.Len())
}

// hashPrefix reads the first 8 bytes of a hash as a
// big-endian integer, zero-padding short hashes.
func hashPrefix(hash []byte) uint64 {
	var buf [8]byte
	copy(buf[:], hash)
	return binary.BigEndian.Uint64(buf[:])
}
