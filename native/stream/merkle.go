package stream

import (
	"bytes"
	"sort"

	"photon/core/codec"
	"photon/crypto"
)

// leafOf hashes one finalized datum into its Merkle leaf: double
// keccak256 over its canonical encoding, matching the leaf construction a
// destination-chain verifier recomputes from the same raw datum.
func leafOf(d finalizedDatum) [32]byte {
	encoded := codec.PackFinalizedDatum(d.DataKey, d.Timestamp.Unix(), d.Data)
	inner := crypto.Keccak256(encoded)
	outer := crypto.Keccak256(inner[:])
	return outer
}

// calcMerkleRoot builds a complete binary tree over leaves sorted
// ascending as big-endian 256-bit integers, with the real leaves placed
// at the tail of the tree's bottom row and the head padded with zero
// leaves up to the next power of two. Every non-leaf node is
// keccak256(min(left,right) || max(left,right)), so the function is
// insensitive to which child lands on which side.
func calcMerkleRoot(leaves [][32]byte) [32]byte {
	if len(leaves) == 0 {
		return [32]byte{}
	}
	sorted := append([][32]byte(nil), leaves...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i][:], sorted[j][:]) < 0 })

	size := 1
	for size < len(sorted) {
		size *= 2
	}
	level := make([][32]byte, size)
	pad := size - len(sorted)
	copy(level[pad:], sorted)

	for len(level) > 1 {
		next := make([][32]byte, len(level)/2)
		for i := range next {
			a, b := level[2*i], level[2*i+1]
			lo, hi := a, b
			if bytes.Compare(a[:], b[:]) > 0 {
				lo, hi = b, a
			}
			next[i] = crypto.Keccak256(lo[:], hi[:])
		}
		level = next
	}
	return level[0]
}

