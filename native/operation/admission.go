package operation

import (
	"photon/core/codec"
	"photon/core/errors"
	"photon/core/events"
	"photon/core/types"
	"photon/crypto"
)

// ChainState reports a protocol's admission state on chainId.
func (r *Registry) ChainState(protocolId types.ProtocolId, chainId types.ChainId) types.InitState {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.protocolStates[protocolId]
	if !ok {
		return types.NotInited
	}
	adm, ok := ps.Admission[chainId]
	if !ok {
		return types.NotInited
	}
	return adm.State
}

// beginAdmission returns protocolId's admission record for chainId,
// transitioning NotInited to OnInition on first touch: charges
// InitNewChainFee, proposes the chain to the endpoint with the protocol's
// current consensus rate and transmitter set, then waits for
// HandleAddAllowedProtocol. Called with r.mu held.
func (r *Registry) beginAdmission(ps *protocolState, protocolId types.ProtocolId, chainId types.ChainId, tokens TokenSink, feePayer crypto.Identity) *chainAdmission {
	adm := ps.admission(chainId)
	if adm.State != types.NotInited {
		return adm
	}
	adm.State = types.OnInition
	if tokens != nil && r.cfg.InitNewChainFee > 0 {
		_ = tokens.Debit(feePayer, r.cfg.InitNewChainFee)
	}
	if r.gov != nil {
		rate := r.protocols.ConsensusTargetRate(protocolId)
		_ = r.gov.Emit(chainId, codec.SelectorAddAllowedProtocol, codec.PackAddAllowedProtocol(protocolId, rate, ps.transmitterSet()))
	}
	return adm
}

// initedAdmission resolves protocolId's admission record on chainId,
// requiring it already be Inited. Called with r.mu held.
func (r *Registry) initedAdmission(protocolId types.ProtocolId, chainId types.ChainId) (*chainAdmission, error) {
	ps, ok := r.protocolStates[protocolId]
	if !ok {
		return nil, errors.ErrProtocolIsNotInited
	}
	adm, ok := ps.Admission[chainId]
	if !ok || adm.State != types.Inited {
		return nil, errors.ErrProtocolIsNotInitedOnChain
	}
	return adm, nil
}

// installProtocolAddr records addr as an allowed protocol contract address
// on chainId and emits the corresponding gov message and event. Called
// with r.mu held, both from a direct Inited-chain add and from the
// OnInition flush.
func (r *Registry) installProtocolAddr(adm *chainAdmission, protocolId types.ProtocolId, chainId types.ChainId, addr types.OpaqueAddr) {
	adm.ProtocolAddrs.add(addr)
	if r.gov != nil {
		_ = r.gov.Emit(chainId, codec.SelectorAddAllowedProtocolAddress, codec.PackAddOrRemoveActorAddress(protocolId, addr))
	}
	r.emitter.Emit(events.ProtocolAddressChange{ProtocolId: protocolId, ChainId: chainId, Address: addr})
}

// installProposerAddr is installProtocolAddr's proposer-address twin.
func (r *Registry) installProposerAddr(adm *chainAdmission, protocolId types.ProtocolId, chainId types.ChainId, addr types.OpaqueAddr) {
	adm.ProposerAddrs.add(addr)
	if r.gov != nil {
		_ = r.gov.Emit(chainId, codec.SelectorAddAllowedProposerAddress, codec.PackAddOrRemoveActorAddress(protocolId, addr))
	}
	r.emitter.Emit(events.ProtocolAddressChange{ProtocolId: protocolId, ChainId: chainId, Address: addr, Proposer: true})
}

// AddAllowedProtocolAddress admits addr as protocolId's contract address on
// chainId. The first address or proposer address ever added for this
// (protocolId, chainId) pair moves the chain from NotInited to OnInition
// and queues addr rather than installing it immediately.
func (r *Registry) AddAllowedProtocolAddress(caller crypto.Identity, protocolId types.ProtocolId, chainId types.ChainId, addr types.OpaqueAddr, tokens TokenSink) error {
	if caller != r.authority.Admin {
		return errors.ErrUnauthorized
	}
	if len(addr) == 0 || len(addr) > types.AddressMaxLen {
		return errors.ErrAddrTooBig
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.protocolStates[protocolId]
	if !ok {
		return errors.ErrProtocolIsNotInited
	}
	adm := r.beginAdmission(ps, protocolId, chainId, tokens, caller)
	if adm.State == types.OnInition {
		adm.QueuedProtocolAddrs = append(adm.QueuedProtocolAddrs, addr)
		return nil
	}
	r.installProtocolAddr(adm, protocolId, chainId, addr)
	return nil
}

// RemoveAllowedProtocolAddress revokes addr as protocolId's contract
// address on chainId. Only valid once the chain is Inited.
func (r *Registry) RemoveAllowedProtocolAddress(caller crypto.Identity, protocolId types.ProtocolId, chainId types.ChainId, addr types.OpaqueAddr) error {
	if caller != r.authority.Admin {
		return errors.ErrUnauthorized
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	adm, err := r.initedAdmission(protocolId, chainId)
	if err != nil {
		return err
	}
	adm.ProtocolAddrs.remove(addr)
	if r.gov != nil {
		_ = r.gov.Emit(chainId, codec.SelectorRemoveAllowedProtocolAddress, codec.PackAddOrRemoveActorAddress(protocolId, addr))
	}
	r.emitter.Emit(events.ProtocolAddressChange{ProtocolId: protocolId, ChainId: chainId, Address: addr, Removed: true})
	return nil
}

// AddAllowedProposerAddress is AddAllowedProtocolAddress's proposer twin:
// an address trusted to relay proposals into the destination gov contract
// on protocolId's behalf.
func (r *Registry) AddAllowedProposerAddress(caller crypto.Identity, protocolId types.ProtocolId, chainId types.ChainId, addr types.OpaqueAddr, tokens TokenSink) error {
	if caller != r.authority.Admin {
		return errors.ErrUnauthorized
	}
	if len(addr) == 0 || len(addr) > types.AddressMaxLen {
		return errors.ErrAddrTooBig
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.protocolStates[protocolId]
	if !ok {
		return errors.ErrProtocolIsNotInited
	}
	adm := r.beginAdmission(ps, protocolId, chainId, tokens, caller)
	if adm.State == types.OnInition {
		adm.QueuedProposerAddrs = append(adm.QueuedProposerAddrs, addr)
		return nil
	}
	r.installProposerAddr(adm, protocolId, chainId, addr)
	return nil
}

// RemoveAllowedProposerAddress revokes addr as an allowed proposer on
// chainId.
func (r *Registry) RemoveAllowedProposerAddress(caller crypto.Identity, protocolId types.ProtocolId, chainId types.ChainId, addr types.OpaqueAddr) error {
	if caller != r.authority.Admin {
		return errors.ErrUnauthorized
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	adm, err := r.initedAdmission(protocolId, chainId)
	if err != nil {
		return err
	}
	adm.ProposerAddrs.remove(addr)
	if r.gov != nil {
		_ = r.gov.Emit(chainId, codec.SelectorRemoveAllowedProposerAddress, codec.PackAddOrRemoveActorAddress(protocolId, addr))
	}
	r.emitter.Emit(events.ProtocolAddressChange{ProtocolId: protocolId, ChainId: chainId, Address: addr, Removed: true, Proposer: true})
	return nil
}

// AddExecutor admits executor as trusted to call destination-side
// execution for protocolId on chainId. Requires the chain already Inited;
// executors are not part of the queued admission state.
func (r *Registry) AddExecutor(caller crypto.Identity, protocolId types.ProtocolId, chainId types.ChainId, executor types.OpaqueAddr) error {
	if caller != r.authority.Admin {
		return errors.ErrUnauthorized
	}
	if len(executor) == 0 || len(executor) > types.AddressMaxLen {
		return errors.ErrAddrTooBig
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	adm, err := r.initedAdmission(protocolId, chainId)
	if err != nil {
		return err
	}
	adm.Executors.add(executor)
	if r.gov != nil {
		_ = r.gov.Emit(chainId, codec.SelectorAddExecutor, codec.PackAddOrRemoveExecutor(protocolId, executor))
	}
	r.emitter.Emit(events.ExecutorChange{ProtocolId: protocolId, ChainId: chainId, Executor: executor})
	return nil
}

// RemoveExecutor revokes executor's execution rights for protocolId on
// chainId. Removing the last executor on a chain is forbidden: a protocol
// with zero executors could never execute again.
func (r *Registry) RemoveExecutor(caller crypto.Identity, protocolId types.ProtocolId, chainId types.ChainId, executor types.OpaqueAddr) error {
	if caller != r.authority.Admin {
		return errors.ErrUnauthorized
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	adm, err := r.initedAdmission(protocolId, chainId)
	if err != nil {
		return err
	}
	if !adm.Executors.has(executor) {
		return errors.ErrAddressNotFound
	}
	if len(adm.Executors) <= 1 {
		return errors.ErrLastExecutor
	}
	adm.Executors.remove(executor)
	if r.gov != nil {
		_ = r.gov.Emit(chainId, codec.SelectorRemoveExecutor, codec.PackAddOrRemoveExecutor(protocolId, executor))
	}
	r.emitter.Emit(events.ExecutorChange{ProtocolId: protocolId, ChainId: chainId, Executor: executor, Removed: true})
	return nil
}

// HandleAddAllowedProtocol is the endpoint's callback confirming
// protocolId was admitted on chainId: transitions OnInition to Inited and
// flushes the three queues in order (protocol addresses, proposer
// addresses, then transmitters filtered to the currently-allowed set).
func (r *Registry) HandleAddAllowedProtocol(caller crypto.Identity, protocolId types.ProtocolId, chainId types.ChainId) error {
	if caller != r.authority.Endpoint {
		return errors.ErrUnauthorized
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.protocolStates[protocolId]
	if !ok {
		return errors.ErrProtocolIsNotInited
	}
	adm, ok := ps.Admission[chainId]
	if !ok || adm.State != types.OnInition {
		return errors.ErrInvalidAdmissionState
	}
	adm.State = types.Inited

	queuedProtoAddrs := adm.QueuedProtocolAddrs
	adm.QueuedProtocolAddrs = nil
	for _, addr := range queuedProtoAddrs {
		r.installProtocolAddr(adm, protocolId, chainId, addr)
	}

	queuedProposerAddrs := adm.QueuedProposerAddrs
	adm.QueuedProposerAddrs = nil
	for _, addr := range queuedProposerAddrs {
		r.installProposerAddr(adm, protocolId, chainId, addr)
	}

	queuedTransmitters := adm.QueuedTransmitters
	adm.QueuedTransmitters = nil
	filtered := make([]types.TransmitterId, 0, len(queuedTransmitters))
	for _, t := range queuedTransmitters {
		if ps.hasTransmitter(t) {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) > 0 {
		if r.gov != nil {
			_ = r.gov.Emit(chainId, codec.SelectorAddTransmitters, codec.PackAddOrRemoveTransmitters(protocolId, filtered))
		}
		r.emitter.Emit(events.UpdateTransmitters{ProtocolId: protocolId, ChainId: chainId, Added: filtered})
	}
	return nil
}
