package operation

import (
	"sync"

	"photon/config"
	"photon/core/codec"
	"photon/core/errors"
	"photon/core/events"
	"photon/core/types"
	"photon/crypto"
	"photon/observability/metrics"
)

// BetPlacer is the narrow slice of BetBook OperationRegistry drives: one
// bet placed per proof, refunded on round-rotation eviction, released with
// reward on execution confirmation.
type BetPlacer interface {
	PlaceBet(protocolId types.ProtocolId, transmitter types.TransmitterId, betType types.BetType, opHash types.OpHash) error
	RefundBet(protocolId types.ProtocolId, opHash types.OpHash, transmitter types.TransmitterId) error
	ReleaseBetsAndReward(protocolId types.ProtocolId, winnerTransmitters []types.TransmitterId, opHash types.OpHash) error
}

// ProtocolView is the narrow slice of ProtocolRegistry state
// OperationRegistry reads: whether the protocol exists and is the reserved
// gov protocol, its active consensus rate, and its fee balance.
type ProtocolView interface {
	Exists(protocolId types.ProtocolId) bool
	IsGovProtocol(protocolId types.ProtocolId) bool
	ConsensusTargetRate(protocolId types.ProtocolId) uint32
	DeduceFee(protocolId types.ProtocolId, amount uint64) bool
}

// GovEmitter is the narrow slice of EndpointEmitter (C11): a single typed
// governance message addressed to one destination chain. Every admin
// change OperationRegistry processes maps to exactly one call here.
type GovEmitter interface {
	Emit(chainId types.ChainId, selector types.Selector, params []byte) error
}

// TokenSink charges the agent wallet for an admission fee; satisfied by
// the same ledger native/protocol and native/staking use.
type TokenSink interface {
	Debit(from crypto.Identity, amount uint64) error
}

// Authority names the identities trusted for registry-gated capabilities.
// UpdateTransmitters, RemoveTransmitter, and ClearTransmitters carry no
// caller check: they are reached only through the narrow
// TransmitterElector/BetBook/ProtocolRegistry interfaces above, which is
// the trust boundary, the same pattern BetBook's OperationSink uses.
type Authority struct {
	Endpoint crypto.Identity // ENDPOINT: may call ApproveOperationExecuting and HandleAddAllowedProtocol
	Admin    crypto.Identity // ADMIN: may manage protocol/proposer addresses and executors
}

// Registry is OperationRegistry: operation ingestion, proof aggregation,
// watcher confirmation, and the per-(protocol, chain) governance admission
// state machine.
type Registry struct {
	mu         sync.Mutex
	cfg        *config.GlobalConfig
	authority  Authority
	govProtoId types.ProtocolId
	bets       BetPlacer
	protocols  ProtocolView
	gov        GovEmitter
	emitter    events.Emitter

	protocolStates map[types.ProtocolId]*protocolState
	operations     map[types.OpHash]*types.Operation
	watcherRefs    map[types.WatcherId]int

	currentRound types.RoundId
	seq          uint64
}

// NewRegistry constructs an OperationRegistry. govProtoId names the
// reserved protocol the hub uses to carry its own governance messages
// through this same consensus pipeline.
func NewRegistry(cfg *config.GlobalConfig, authority Authority, govProtoId types.ProtocolId, bets BetPlacer, protocols ProtocolView, gov GovEmitter, emitter events.Emitter) *Registry {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Registry{
		cfg:            cfg,
		authority:      authority,
		govProtoId:     govProtoId,
		bets:           bets,
		protocols:      protocols,
		gov:            gov,
		emitter:        emitter,
		protocolStates: make(map[types.ProtocolId]*protocolState),
		operations:     make(map[types.OpHash]*types.Operation),
		watcherRefs:    make(map[types.WatcherId]int),
		currentRound:   1,
	}
}

func (r *Registry) state(protocolId types.ProtocolId) (*protocolState, bool) {
	ps, ok := r.protocolStates[protocolId]
	return ps, ok
}

// AdmitProtocol satisfies native/protocol's Admitter interface, called
// once by RegisterProtocol to seed this registry's per-protocol state.
func (r *Registry) AdmitProtocol(protocolId types.ProtocolId) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.protocolStates[protocolId]; exists {
		return errors.ErrInvalidProtocolId
	}
	r.protocolStates[protocolId] = newProtocolState()
	return nil
}

// ChainsOf satisfies native/protocol's ChainLister interface.
func (r *Registry) ChainsOf(protocolId types.ProtocolId) []types.ChainId {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.protocolStates[protocolId]
	if !ok {
		return nil
	}
	return append([]types.ChainId(nil), ps.Chains...)
}

// AdvanceRound increments the round that operations proposed from now on
// are stamped with. RoundCoordinator's turn does not call it, and the
// approval-grace-window check does not use it: that check's currentBlock
// is the per-call sequence from nextSeq, since a reimplementation has no
// block height and ordering is instead "input queue order".
func (r *Registry) AdvanceRound() types.RoundId {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentRound++
	return r.currentRound
}

// CurrentRound reports the round OperationRegistry currently considers
// in-flight proofs to belong to.
func (r *Registry) CurrentRound() types.RoundId {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentRound
}

// nextSeq bumps and returns the per-call sequence counter that stands in
// for "currentBlock" in this reimplementation: external ordering here is
// input-queue order (one ProposeOperation call is one unit of that order),
// not a block height.
func (r *Registry) nextSeq() uint64 {
	r.seq++
	return r.seq
}

// ProposeOperation ingests one transmitter's signed proof of opData.
// Returns the operation's hash on success.
func (r *Registry) ProposeOperation(caller types.TransmitterId, data types.OperationData, sig crypto.Signature) (types.OpHash, error) {
	if err := data.Valid(); err != nil {
		return types.OpHash{}, err
	}
	if !r.protocols.Exists(data.ProtocolId) {
		return types.OpHash{}, errors.ErrProtocolIsNotAllowed
	}

	r.mu.Lock()
	ps, ok := r.protocolStates[data.ProtocolId]
	if !ok {
		r.mu.Unlock()
		return types.OpHash{}, errors.ErrProtocolIsNotInited
	}
	adm, chainOk := ps.Admission[data.DestChainId]
	if !chainOk || adm.State != types.Inited {
		r.mu.Unlock()
		return types.OpHash{}, errors.ErrProtocolIsNotInitedOnChain
	}
	if !ps.hasTransmitter(caller) {
		r.mu.Unlock()
		return types.OpHash{}, errors.ErrTransmitterIsNotAllowed
	}
	r.mu.Unlock()

	opHash := codec.OperationHash(data)
	if !crypto.VerifySigner(opHash, sig, caller) {
		return types.OpHash{}, errors.ErrSignatureCheckFailed
	}

	if err := r.bets.PlaceBet(data.ProtocolId, caller, types.BetMsg, opHash); err != nil {
		return types.OpHash{}, err
	}

	seq := r.nextSeq()
	r.mu.Lock()
	defer r.mu.Unlock()

	op, exists := r.operations[opHash]
	if !exists {
		op = &types.Operation{
			Data:   data,
			Round:  r.currentRound,
			Proofs: []types.Proof{{Transmitter: caller, Signature: sig}},
		}
		r.operations[opHash] = op
		r.emitter.Emit(events.NewOperation{ProtocolId: data.ProtocolId, OpHash: opHash, Round: r.currentRound})
		metrics.Hub().IncOperationProposed(data.ProtocolId.String())
		r.maybeApprove(ps, op, data.ProtocolId, opHash, seq)
		return opHash, nil
	}

	wasApproved := op.Approved
	if wasApproved {
		if seq > op.ApproveBlock+1 {
			return types.OpHash{}, errors.ErrOperationIsAlreadyApproved
		}
		if op.HasProofFrom(caller) {
			return types.OpHash{}, errors.ErrTransmitterIsAlreadyApproved
		}
	} else if op.HasProofFrom(caller) {
		return types.OpHash{}, errors.ErrTransmitterIsAlreadyApproved
	}

	if !wasApproved && op.Round != r.currentRound {
		kept := op.Proofs[:0]
		for _, p := range op.Proofs {
			if ps.hasTransmitter(p.Transmitter) {
				kept = append(kept, p)
			} else {
				_ = r.bets.RefundBet(data.ProtocolId, opHash, p.Transmitter)
				metrics.Hub().IncProofsRefunded(data.ProtocolId.String(), 1)
			}
		}
		op.Proofs = append(kept, types.Proof{Transmitter: caller, Signature: sig})
		op.Round = r.currentRound
	} else {
		op.Proofs = append(op.Proofs, types.Proof{Transmitter: caller, Signature: sig})
	}
	metrics.Hub().IncProofAccepted(data.ProtocolId.String())
	r.maybeApprove(ps, op, data.ProtocolId, opHash, seq)
	return opHash, nil
}

// ProposeInternalOperation records the hub's own outbound governance
// message through this same pipeline, as native/endpoint's EndpointEmitter
// does for every admin change it carries. It is restricted to the
// reserved gov protocol and, unlike ProposeOperation, carries no
// transmitter signature to verify and no bet to place: the hub itself is
// the authoritative source of the message, not an external claim staked
// against a bet. The resulting Operation is stored pre-approved so it
// reads back through Operation/ChainsOf exactly like user traffic.
func (r *Registry) ProposeInternalOperation(data types.OperationData) (types.OpHash, error) {
	if data.ProtocolId != r.govProtoId {
		return types.OpHash{}, errors.ErrProtocolIsNotAllowed
	}
	if err := data.Valid(); err != nil {
		return types.OpHash{}, err
	}

	opHash := codec.OperationHash(data)

	seq := r.nextSeq()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.operations[opHash]; exists {
		return opHash, nil
	}
	op := &types.Operation{
		Data:         data,
		Round:        r.currentRound,
		Approved:     true,
		ApproveBlock: seq,
	}
	r.operations[opHash] = op
	r.emitter.Emit(events.NewOperation{ProtocolId: data.ProtocolId, OpHash: opHash, Round: r.currentRound})
	metrics.Hub().IncOperationProposed(data.ProtocolId.String())
	return opHash, nil
}

// maybeApprove flips an unapproved operation to approved once its proof
// ratio reaches the protocol's consensus target rate. Called with r.mu
// held.
func (r *Registry) maybeApprove(ps *protocolState, op *types.Operation, protocolId types.ProtocolId, opHash types.OpHash, seq uint64) {
	if op.Approved {
		return
	}
	total := len(ps.CurrentTransmitters)
	if total == 0 {
		return
	}
	rate := r.protocols.ConsensusTargetRate(protocolId)
	ratio := uint64(op.ProofsCount()) * 10000 / uint64(total)
	if ratio >= uint64(rate) {
		op.Approved = true
		op.ApproveBlock = seq
		r.emitter.Emit(events.ProposalApproved{OpHash: opHash, ApproveBlock: seq})
		metrics.Hub().IncOperationApproved(protocolId.String())
	}
}

// ApproveOperationExecuting records a watcher's confirmation that an
// approved operation executed on its destination chain. Callable only by
// the ENDPOINT capability.
func (r *Registry) ApproveOperationExecuting(caller crypto.Identity, watcher types.WatcherId, opHash types.OpHash) error {
	if caller != r.authority.Endpoint {
		return errors.ErrUnauthorized
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.operations[opHash]
	if !ok {
		return errors.ErrOperationNotFound
	}
	if op.Executed {
		return nil
	}
	if !op.Approved {
		return errors.ErrOpIsNotApproved
	}
	if r.watcherRefs[watcher] <= 0 {
		return errors.ErrWatcherIsNotAllowed
	}
	if op.HasWatcher(watcher) {
		return errors.ErrWatcherIsAlreadyApproved
	}
	op.Watchers = append(op.Watchers, watcher)

	total := r.totalWatchers()
	ratio := uint64(op.WatcherCount()) * 10000 / uint64(total)
	if ratio < uint64(r.cfg.WatchersConsensusRateBps) {
		return nil
	}
	op.Executed = true
	if op.Data.Meta.IsInOrder() {
		ps := r.protocolStates[op.Data.ProtocolId]
		if ps != nil {
			ps.LastExecutedNonce[op.Data.SrcChainId] = op.Data.Nonce
		}
	}
	if err := r.bets.ReleaseBetsAndReward(op.Data.ProtocolId, op.ProofTransmitters(), opHash); err != nil {
		return err
	}
	r.emitter.Emit(events.ProposalExecuted{OpHash: opHash})
	metrics.Hub().IncOperationExecuted(op.Data.ProtocolId.String())
	return nil
}

// totalWatchers is the size of the global watcher set, the union of every
// protocol's current transmitter set. Called with r.mu held.
func (r *Registry) totalWatchers() int {
	n := 0
	for _, count := range r.watcherRefs {
		if count > 0 {
			n++
		}
	}
	return n
}

// LastExecutedNonce reports the nonce watermark an in-order destination
// executor should consult before accepting opData.Nonce as next.
func (r *Registry) LastExecutedNonce(protocolId types.ProtocolId, srcChainId types.ChainId) (types.ChainId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.protocolStates[protocolId]
	if !ok {
		return types.ChainId{}, false
	}
	n, ok := ps.LastExecutedNonce[srcChainId]
	return n, ok
}

// Operation returns a copy of an operation's record.
func (r *Registry) Operation(opHash types.OpHash) (types.Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.operations[opHash]
	if !ok {
		return types.Operation{}, false
	}
	return *op, true
}

// queueOnInitionTransmitters fills an OnInition chain's pending transmitter
// queue. The intended behavior is to copy the full current set so it can
// be flushed verbatim once the chain transitions to Inited; this instead
// indexes the destination slice by chainIndex (the chain's position in the
// protocol's chain list) rather than by each transmitter's own position,
// so at most one slot of the result ends up populated.
func queueOnInitionTransmitters(chainIndex int, newSet []types.TransmitterId) []types.TransmitterId {
	toQueue := make([]types.TransmitterId, len(newSet))
	for range newSet {
		if chainIndex < len(toQueue) {
			toQueue[chainIndex] = newSet[chainIndex]
		}
	}
	return toQueue
}

// UpdateTransmitters installs protocolId's newly elected transmitter set,
// diffing against the previous set to adjust the global watcher refcount
// and to emit the narrowest gov message (or queue it) per admitted chain.
func (r *Registry) UpdateTransmitters(protocolId types.ProtocolId, newSet []types.TransmitterId) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.protocolStates[protocolId]
	if !ok {
		return errors.ErrProtocolIsNotInited
	}

	old := ps.CurrentTransmitters
	next := make(map[string]types.TransmitterId, len(newSet))
	for _, t := range newSet {
		next[string(t[:])] = t
	}

	var added, removed []types.TransmitterId
	for k, t := range next {
		if _, existed := old[k]; !existed {
			added = append(added, t)
		}
	}
	for k, t := range old {
		if _, still := next[k]; !still {
			removed = append(removed, t)
		}
	}
	ps.CurrentTransmitters = next

	for _, t := range added {
		r.watcherRefs[t]++
	}
	for _, t := range removed {
		if r.watcherRefs[t] > 0 {
			r.watcherRefs[t]--
		}
	}

	if len(added) == 0 && len(removed) == 0 {
		return nil
	}
	for i, chainId := range ps.Chains {
		adm := ps.Admission[chainId]
		switch adm.State {
		case types.Inited:
			r.emitTransmitterDiff(protocolId, chainId, added, removed)
		case types.OnInition:
			adm.QueuedTransmitters = queueOnInitionTransmitters(i, newSet)
		}
	}
	r.emitter.Emit(events.UpdateTransmitters{ProtocolId: protocolId, Added: added, Removed: removed})
	return nil
}

// emitTransmitterDiff picks the narrowest gov message for a transmitter
// diff on one already-Inited chain. Called with r.mu held.
func (r *Registry) emitTransmitterDiff(protocolId types.ProtocolId, chainId types.ChainId, added, removed []types.TransmitterId) {
	if r.gov == nil {
		return
	}
	switch {
	case len(added) > 0 && len(removed) > 0:
		_ = r.gov.Emit(chainId, codec.SelectorUpdateTransmitters, codec.PackUpdateTransmitters(protocolId, added, removed))
	case len(added) > 0:
		_ = r.gov.Emit(chainId, codec.SelectorAddTransmitters, codec.PackAddOrRemoveTransmitters(protocolId, added))
	case len(removed) > 0:
		_ = r.gov.Emit(chainId, codec.SelectorRemoveTransmitters, codec.PackAddOrRemoveTransmitters(protocolId, removed))
	}
}

// RemoveTransmitter drops a single transmitter from protocolId's current
// set. Satisfies native/bet's OperationSink interface, reached only
// through that narrow call path (inactivity eviction); no caller check.
func (r *Registry) RemoveTransmitter(protocolId types.ProtocolId, transmitter types.TransmitterId) error {
	r.mu.Lock()
	ps, ok := r.protocolStates[protocolId]
	if !ok {
		r.mu.Unlock()
		return errors.ErrProtocolIsNotInited
	}
	next := make([]types.TransmitterId, 0, len(ps.CurrentTransmitters))
	for _, t := range ps.CurrentTransmitters {
		if t != transmitter {
			next = append(next, t)
		}
	}
	r.mu.Unlock()

	if err := r.UpdateTransmitters(protocolId, next); err != nil {
		return err
	}
	r.emitter.Emit(events.RemoveTransmitter{ProtocolId: protocolId, Transmitter: transmitter})
	return nil
}

// ClearTransmitters replaces protocolId's current set with the empty set.
// Satisfies native/protocol's TransmitterClearer interface.
func (r *Registry) ClearTransmitters(protocolId types.ProtocolId) error {
	return r.UpdateTransmitters(protocolId, nil)
}

// EmitConsensusRateChange satisfies native/protocol's RateChangeNotifier
// interface, translating a changed active consensus rate into the one gov
// message that propagates it to chainId.
func (r *Registry) EmitConsensusRateChange(protocolId types.ProtocolId, chainId types.ChainId, rateBps uint32) error {
	if r.gov == nil {
		return nil
	}
	return r.gov.Emit(chainId, codec.SelectorSetConsensusTargetRate, codec.PackSetConsensusTargetRate(protocolId, rateBps))
}
