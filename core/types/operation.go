package types

import (
	"photon/crypto"
	huberrors "photon/core/errors"
)

// OperationData is the cross-chain payload a transmitter proposes (spec
// §3). Params and ProtocolAddr are bounded per AddressMaxLen/ParamsMaxLen;
// Reserved is opaque and propagated verbatim.
type OperationData struct {
	ProtocolId     ProtocolId
	Meta           Meta
	SrcChainId     ChainId
	SrcBlockNumber ChainId
	SrcOpTxId      [64]byte
	Nonce          ChainId
	DestChainId    ChainId
	ProtocolAddr   OpaqueAddr
	Selector       Selector
	Params         []byte
	Reserved       []byte
}

// Valid enforces the size invariants required of every
// OperationData before it is hashed or stored.
func (d OperationData) Valid() error {
	if len(d.ProtocolAddr) > AddressMaxLen {
		return huberrors.ErrAddrTooBig
	}
	if len(d.Params) > ParamsMaxLen {
		return huberrors.ErrParamsTooBig
	}
	if !d.Selector.Valid() {
		return huberrors.ErrAddrTooBig
	}
	return nil
}

// Proof is a single transmitter's signature over an operation's hash.
type Proof struct {
	Transmitter TransmitterId
	Signature   crypto.Signature
}

// Operation is the hub's central per-opHash record. It is
// created on the first proof and never destroyed while history may be
// queried.
type Operation struct {
	Data         OperationData
	Approved     bool
	Executed     bool
	Round        RoundId
	ApproveBlock uint64
	Proofs       []Proof
	Watchers     []WatcherId
}

// ProofsCount mirrors a redundant on-chain counter; it is recomputed from
// Proofs on every call rather than stored separately.
func (o *Operation) ProofsCount() int { return len(o.Proofs) }

// WatcherCount mirrors a redundant on-chain counter.
func (o *Operation) WatcherCount() int { return len(o.Watchers) }

// HasProofFrom reports whether transmitter already has a proof recorded.
func (o *Operation) HasProofFrom(id TransmitterId) bool {
	for _, p := range o.Proofs {
		if p.Transmitter == id {
			return true
		}
	}
	return false
}

// HasWatcher reports whether watcher already confirmed execution.
func (o *Operation) HasWatcher(id WatcherId) bool {
	for _, w := range o.Watchers {
		if w == id {
			return true
		}
	}
	return false
}

// ProofTransmitters returns the transmitter identities that currently hold
// a proof on this operation, in submission order.
func (o *Operation) ProofTransmitters() []TransmitterId {
	out := make([]TransmitterId, len(o.Proofs))
	for i, p := range o.Proofs {
		out[i] = p.Transmitter
	}
	return out
}
