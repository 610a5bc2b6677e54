package domain

import (
	"encoding/binary"
	"math/bits"
	"strconv"

	"github.com/zeebo/blake3"
)

// Combine folds a child fingerprint into an accumulator. The rotation makes
// the fold order-sensitive, so set-typed children must be fed in sorted order.
func Combine(acc, h uint64) uint64 {
	return bits.RotateLeft64(acc, 1) ^ h
}

// HashString reduces a scalar to 64 bits using the first eight bytes of its BLAKE3 digest.
func HashString(s string) uint64 {
	sum := blake3.Sum256([]byte(s))
	return binary.LittleEndian.Uint64(sum[:8])
}

// hasher accumulates the fingerprint of one node. Every scalar is tagged with
// its field name so that adjacent fields cannot trade bytes without changing the sum.
type hasher struct {
	acc uint64
}

func newHasher(kind string) *hasher {
	return &hasher{acc: HashString("kind\x00" + kind)}
}

func (h *hasher) str(tag, value string) *hasher {
	h.acc = Combine(h.acc, HashString(tag+"\x00"+value))
	return h
}

func (h *hasher) optional(tag string, value *string) *hasher {
	if value == nil {
		h.acc = Combine(h.acc, HashString(tag+"\x01"))
		return h
	}
	return h.str(tag, *value)
}

func (h *hasher) int(tag string, value int) *hasher {
	return h.str(tag, strconv.Itoa(value))
}

func (h *hasher) bool(tag string, value bool) *hasher {
	return h.str(tag, strconv.FormatBool(value))
}

func (h *hasher) child(fp uint64) *hasher {
	h.acc = Combine(h.acc, fp)
	return h
}

// strs folds a sorted set or an ordered sequence of plain names.
func (h *hasher) strs(tag string, values []string) *hasher {
	h.int(tag+"#", len(values))
	for _, v := range values {
		h.str(tag, v)
	}
	return h
}

func (h *hasher) sum() uint64 {
	return h.acc
}

// fingerprinted is satisfied by every element of the tree.
type fingerprinted interface {
	Fingerprint() uint64
}

// foldChildren folds the fingerprints of an already sorted child list.
func foldChildren[V fingerprinted](h *hasher, tag string, children []V) {
	h.int(tag+"#", len(children))
	for _, c := range children {
		h.child(c.Fingerprint())
	}
}
