// Package operation implements OperationRegistry: the central object that
// ingests proposed cross-chain operations, aggregates transmitter proofs
// towards a consensus threshold, tracks watcher execution confirmations,
// and owns the per-(protocol, chain) governance admission state machine
// that queues and flushes admin changes while a chain is still coming
// online.
package operation

import (
	"photon/core/types"
)

// addrSet is a set of opaque destination-chain addresses, keyed by their
// byte content since OpaqueAddr is a slice and cannot key a map directly.
type addrSet map[string]types.OpaqueAddr

func (s addrSet) add(a types.OpaqueAddr)    { s[string(a)] = append([]byte(nil), a...) }
func (s addrSet) remove(a types.OpaqueAddr) { delete(s, string(a)) }
func (s addrSet) has(a types.OpaqueAddr) bool {
	_, ok := s[string(a)]
	return ok
}

func (s addrSet) list() []types.OpaqueAddr {
	out := make([]types.OpaqueAddr, 0, len(s))
	for _, a := range s {
		out = append(out, a)
	}
	return out
}

// chainAdmission is the per-(protocolId, chainId) governance record: its
// InitState, the three queues accumulated while OnInition, and the three
// sets that hold once Inited.
type chainAdmission struct {
	State types.InitState

	// QueuedProtocolAddrs and QueuedProposerAddrs accumulate every address
	// declared while the chain is still OnInition, flushed in the order
	// added once the endpoint confirms admission.
	QueuedProtocolAddrs []types.OpaqueAddr
	QueuedProposerAddrs []types.OpaqueAddr
	// QueuedTransmitters holds the pending full transmitter set to flush
	// once Inited. See queueOnInitionTransmitters for the quirk in how this field
	// is filled while OnInition.
	QueuedTransmitters []types.TransmitterId

	ProtocolAddrs addrSet
	ProposerAddrs addrSet
	Executors     addrSet
}

func newChainAdmission() *chainAdmission {
	return &chainAdmission{
		ProtocolAddrs: make(addrSet),
		ProposerAddrs: make(addrSet),
		Executors:     make(addrSet),
	}
}

// protocolState is the registry's per-protocol bookkeeping: which chains
// it has ever touched (insertion order, so queueOnInitionTransmitters' outer loop
// index is stable), the admission record per chain, the current resolved
// transmitter set, and the in-order execution watermark per source chain.
type protocolState struct {
	Chains    []types.ChainId
	Admission map[types.ChainId]*chainAdmission

	CurrentTransmitters map[string]types.TransmitterId

	// LastExecutedNonce[srcChainId] is advanced exactly once per in-order
	// execution confirmation.
	LastExecutedNonce map[types.ChainId]types.ChainId
}

func newProtocolState() *protocolState {
	return &protocolState{
		Admission:           make(map[types.ChainId]*chainAdmission),
		CurrentTransmitters: make(map[string]types.TransmitterId),
		LastExecutedNonce:   make(map[types.ChainId]types.ChainId),
	}
}

func (p *protocolState) admission(chainId types.ChainId) *chainAdmission {
	a, ok := p.Admission[chainId]
	if !ok {
		a = newChainAdmission()
		p.Admission[chainId] = a
		p.Chains = append(p.Chains, chainId)
	}
	return a
}

func (p *protocolState) chainIndex(chainId types.ChainId) int {
	for i, c := range p.Chains {
		if c.Equal(chainId) {
			return i
		}
	}
	return -1
}

func (p *protocolState) transmitterSet() []types.TransmitterId {
	out := make([]types.TransmitterId, 0, len(p.CurrentTransmitters))
	for _, t := range p.CurrentTransmitters {
		out = append(out, t)
	}
	return out
}

func (p *protocolState) hasTransmitter(id types.TransmitterId) bool {
	_, ok := p.CurrentTransmitters[string(id[:])]
	return ok
}
