// Package codec implements the hub's canonical wire packing: a
// deterministic, big-endian, tightly-packed byte encoding of an operation,
// used both as the destination-gov proposal payload and as the hashing
// preimage for signatures. Packing never hides bit manipulation inside data
// types; it is all explicit here via a Builder.
package codec

import (
	"encoding/binary"

	"photon/core/types"
)

// Builder appends fields to a single byte buffer in declaration order. It
// has no error return: every Write call is infallible by construction.
type Builder struct {
	buf []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// WriteBytes appends raw bytes verbatim.
func (b *Builder) WriteBytes(p []byte) *Builder {
	b.buf = append(b.buf, p...)
	return b
}

// WriteByte appends a single byte.
func (b *Builder) WriteByte(v byte) *Builder {
	b.buf = append(b.buf, v)
	return b
}

// WriteUint32 appends a big-endian uint32.
func (b *Builder) WriteUint32(v uint32) *Builder {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

// WriteUint64 appends a big-endian uint64.
func (b *Builder) WriteUint64(v uint64) *Builder {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

// Bytes returns the accumulated buffer.
func (b *Builder) Bytes() []byte { return b.buf }

// PackOperationData renders an OperationData into the canonical wire
// encoding an operation must use to be hashed and signed.
func PackOperationData(d types.OperationData) []byte {
	b := NewBuilder()
	b.WriteBytes(d.ProtocolId[:])
	b.WriteBytes(d.Meta[:])
	srcChain := d.SrcChainId.Bytes32()
	b.WriteBytes(srcChain[:])
	srcBlock := d.SrcBlockNumber.Bytes32()
	b.WriteBytes(srcBlock[:])
	b.WriteBytes(d.SrcOpTxId[:])
	nonce := d.Nonce.Bytes32()
	b.WriteBytes(nonce[:])
	destChain := d.DestChainId.Bytes32()
	b.WriteBytes(destChain[:])
	b.WriteBytes(d.ProtocolAddr)
	b.WriteBytes(PackSelector(d.Selector))
	b.WriteBytes(d.Params)
	b.WriteBytes(d.Reserved)
	return b.Bytes()
}

// PackSelector encodes a Selector as one type byte, one length byte, then
// the selector's payload bytes.
func PackSelector(s types.Selector) []byte {
	b := NewBuilder()
	b.WriteByte(byte(s.Type))
	b.WriteByte(byte(len(s.Data)))
	b.WriteBytes(s.Data)
	return b.Bytes()
}
