package protocol

import (
	"bytes"
	"sort"
	"sync"

	"photon/config"
	"photon/core/errors"
	"photon/core/events"
	"photon/core/types"
	"photon/crypto"
	"photon/native/staking"
)

// Admitter is called once, by RegisterProtocol, to hand the newly
// registered protocol off to OperationRegistry.
type Admitter interface {
	AdmitProtocol(protocolId types.ProtocolId) error
}

// RateChangeNotifier emits the governance message that propagates a
// changed consensus target rate out to one destination chain.
type RateChangeNotifier interface {
	EmitConsensusRateChange(protocolId types.ProtocolId, chainId types.ChainId, rateBps uint32) error
}

// ChainLister reports the chains a protocol is admitted on, so TurnRound
// can propagate a rate change to every one of them. Implemented by
// OperationRegistry, which owns the per-(protocol, chain) admission state.
type ChainLister interface {
	ChainsOf(protocolId types.ProtocolId) []types.ChainId
}

// TransmitterClearer tells OperationRegistry to replace a deactivated
// protocol's transmitter set with the empty set.
type TransmitterClearer interface {
	ClearTransmitters(protocolId types.ProtocolId) error
}

// Authority names the identities trusted for registry-gated capabilities.
type Authority struct {
	Admin        crypto.Identity
	RoundManager crypto.Identity
}

// Registry is the per-protocol parameter, balance, and fee ledger
// (ProtocolRegistry).
type Registry struct {
	mu            sync.Mutex
	cfg           *config.GlobalConfig
	authority     Authority
	emitter       events.Emitter
	admitter      Admitter
	rateNotifier  RateChangeNotifier
	chains        ChainLister
	clearer       TransmitterClearer
	govProtocolId types.ProtocolId

	protocols     map[types.ProtocolId]*ProtocolInfo
	claimedManual map[types.TransmitterId]types.ProtocolId
	unlocked      map[types.AgentId]uint64 // owner -> swept balance awaiting withdrawal
}

// NewRegistry constructs a ProtocolRegistry. govProtocolId names the
// reserved protocol whose operations are the hub's own governance
// updates; it is exempt from manual-transmitter fees and the per-
// operation protocol fee sweep.
func NewRegistry(cfg *config.GlobalConfig, authority Authority, govProtocolId types.ProtocolId, admitter Admitter, rateNotifier RateChangeNotifier, chains ChainLister, clearer TransmitterClearer, emitter events.Emitter) *Registry {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Registry{
		cfg:           cfg,
		authority:     authority,
		emitter:       emitter,
		admitter:      admitter,
		rateNotifier:  rateNotifier,
		chains:        chains,
		clearer:       clearer,
		govProtocolId: govProtocolId,
		protocols:     make(map[types.ProtocolId]*ProtocolInfo),
		claimedManual: make(map[types.TransmitterId]types.ProtocolId),
		unlocked:      make(map[types.AgentId]uint64),
	}
}

func (r *Registry) protocol(id types.ProtocolId) (*ProtocolInfo, error) {
	p, ok := r.protocols[id]
	if !ok {
		return nil, errors.ErrProtocolIsNotAllowed
	}
	return p, nil
}

func (r *Registry) claimManual(id types.ProtocolId, transmitters []types.TransmitterId) error {
	seen := make(map[types.TransmitterId]struct{}, len(transmitters))
	for _, t := range transmitters {
		if t.IsZero() {
			return errors.ErrZeroAddress
		}
		if _, dup := seen[t]; dup {
			return errors.ErrDuplicateTransmitter
		}
		seen[t] = struct{}{}
		if owner, claimed := r.claimedManual[t]; claimed && owner != id {
			return errors.ErrDuplicateTransmitter
		}
	}
	return nil
}

func (r *Registry) releaseManualClaims(id types.ProtocolId, transmitters []types.TransmitterId) {
	for _, t := range transmitters {
		if r.claimedManual[t] == id {
			delete(r.claimedManual, t)
		}
	}
}

func (r *Registry) claimManualLocked(id types.ProtocolId, transmitters []types.TransmitterId) {
	for _, t := range transmitters {
		r.claimedManual[t] = id
	}
}

// RegisterProtocol admits a brand-new protocol: charges
// ProtocolRegisterFee from caller, validates and installs params and the
// manual transmitter list, then hands the protocol to OperationRegistry.
func (r *Registry) RegisterProtocol(caller types.AgentId, protocolId types.ProtocolId, params Params, manual []types.TransmitterId, isGov bool, tokens staking.TokenSink) error {
	if protocolId.IsZero() {
		return errors.ErrInvalidProtocolId
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.protocols[protocolId]; exists {
		return errors.ErrInvalidProtocolId
	}
	if err := r.claimManual(protocolId, manual); err != nil {
		return err
	}
	if err := params.validate(isGov, len(manual), r.cfg.MaxTransmittersCount); err != nil {
		return err
	}
	if tokens != nil {
		if err := tokens.Debit(caller, r.cfg.ProtocolRegisterFee); err != nil {
			return err
		}
	}
	r.claimManualLocked(protocolId, manual)
	info := &ProtocolInfo{
		Owner:              caller,
		Active:             true,
		IsGov:              isGov,
		RealtimeParams:     params,
		ActiveParams:       params,
		ManualTransmitters: append([]types.TransmitterId(nil), manual...),
		ActiveTransmitters: append([]types.TransmitterId(nil), manual...),
	}
	r.protocols[protocolId] = info
	if r.admitter != nil {
		if err := r.admitter.AdmitProtocol(protocolId); err != nil {
			delete(r.protocols, protocolId)
			r.releaseManualClaims(protocolId, manual)
			return err
		}
	}
	r.emitter.Emit(events.AddAllowedProtocol{ProtocolId: protocolId, ConsensusTargetRate: params.ConsensusTargetRateBps})
	return nil
}

// SetManualTransmitters replaces a protocol's manual transmitter list,
// charging ManualTransmitterFee per newly-added address on non-gov
// protocols.
func (r *Registry) SetManualTransmitters(caller types.AgentId, protocolId types.ProtocolId, transmitters []types.TransmitterId, tokens staking.TokenSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.protocol(protocolId)
	if err != nil {
		return err
	}
	if p.Owner != caller {
		return errors.ErrIsNotOwner
	}
	r.releaseManualClaims(protocolId, p.ManualTransmitters)
	if err := r.claimManual(protocolId, transmitters); err != nil {
		r.claimManualLocked(protocolId, p.ManualTransmitters)
		return err
	}
	if err := p.RealtimeParams.validate(p.IsGov, len(transmitters), r.cfg.MaxTransmittersCount); err != nil {
		r.claimManualLocked(protocolId, p.ManualTransmitters)
		return err
	}
	if !p.IsGov && tokens != nil {
		added := 0
		old := make(map[types.TransmitterId]struct{}, len(p.ManualTransmitters))
		for _, t := range p.ManualTransmitters {
			old[t] = struct{}{}
		}
		for _, t := range transmitters {
			if _, existed := old[t]; !existed {
				added++
			}
		}
		if added > 0 {
			if p.Balance < uint64(added)*r.cfg.ManualTransmitterFee {
				r.claimManualLocked(protocolId, p.ManualTransmitters)
				return errors.ErrInsufficientFunds
			}
			p.Balance -= uint64(added) * r.cfg.ManualTransmitterFee
		}
	}
	r.claimManualLocked(protocolId, transmitters)
	p.ManualTransmitters = append([]types.TransmitterId(nil), transmitters...)
	return nil
}

// SetParams replaces a protocol's realtime parameter set, charging
// ChangeProtocolParamsFee. Takes effect at the next round turn.
func (r *Registry) SetParams(caller types.AgentId, protocolId types.ProtocolId, params Params, tokens staking.TokenSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.protocol(protocolId)
	if err != nil {
		return err
	}
	if p.Owner != caller {
		return errors.ErrIsNotOwner
	}
	if err := params.validate(p.IsGov, len(p.ManualTransmitters), r.cfg.MaxTransmittersCount); err != nil {
		return err
	}
	if tokens != nil {
		if p.Balance < r.cfg.ChangeProtocolParamsFee {
			return errors.ErrInsufficientFunds
		}
		p.Balance -= r.cfg.ChangeProtocolParamsFee
	}
	p.RealtimeParams = params
	return nil
}

// SetOwner transfers protocol ownership.
func (r *Registry) SetOwner(caller types.AgentId, protocolId types.ProtocolId, newOwner types.AgentId) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.protocol(protocolId)
	if err != nil {
		return err
	}
	if p.Owner != caller {
		return errors.ErrIsNotOwner
	}
	if newOwner.IsZero() {
		return errors.ErrZeroAddress
	}
	p.Owner = newOwner
	return nil
}

// Deposit adds to a protocol's balance; funded by anyone (typically the
// owner), used to pay per-operation and manual-transmitter fees.
func (r *Registry) Deposit(protocolId types.ProtocolId, amount uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.protocol(protocolId)
	if err != nil {
		return err
	}
	p.Balance += amount
	return nil
}

// DeduceFee subtracts amount from the protocol's balance if it strictly
// exceeds amount; otherwise it pauses the protocol and returns false.
func (r *Registry) DeduceFee(protocolId types.ProtocolId, amount uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.protocols[protocolId]
	if !ok {
		return false
	}
	if p.Balance > amount {
		p.Balance -= amount
		return true
	}
	if !p.Paused {
		p.Paused = true
		r.emitter.Emit(events.SetProtocolPause{ProtocolId: protocolId, Paused: true})
	}
	return false
}

// SetActiveTransmitters installs the resolved transmitter set for a
// protocol, computed by TransmitterElector (or supplied verbatim for a
// manual-only protocol). BetBook reads this back as CurrentTransmitters.
func (r *Registry) SetActiveTransmitters(protocolId types.ProtocolId, transmitters []types.TransmitterId) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.protocol(protocolId)
	if err != nil {
		return err
	}
	p.ActiveTransmitters = append([]types.TransmitterId(nil), transmitters...)
	return nil
}

// TurnRound promotes every protocol's realtime parameters into active,
// propagates a changed consensus rate to every chain the protocol is
// admitted on, and pauses or sweeps an unhealthy/deactivated protocol.
func (r *Registry) TurnRound(caller types.AgentId) error {
	if caller != r.authority.RoundManager {
		return errors.ErrUnauthorized
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.protocols {
		if p.ActiveParams.ConsensusTargetRateBps != p.RealtimeParams.ConsensusTargetRateBps && r.rateNotifier != nil && r.chains != nil {
			for _, chainId := range r.chains.ChainsOf(id) {
				_ = r.rateNotifier.EmitConsensusRateChange(id, chainId, p.RealtimeParams.ConsensusTargetRateBps)
			}
			r.emitter.Emit(events.SetConsensusTargetRate{ProtocolId: id, Rate: p.RealtimeParams.ConsensusTargetRateBps})
		}
		p.ActiveParams = p.RealtimeParams

		if !p.IsGov && !p.Paused && (p.Balance < r.cfg.MinProtocolBalance || !p.Active) {
			p.Paused = true
			r.emitter.Emit(events.SetProtocolPause{ProtocolId: id, Paused: true})
		}
		if !p.Active {
			if p.Balance > 0 {
				r.unlocked[p.Owner] += p.Balance
				p.Balance = 0
			}
			if len(p.ActiveTransmitters) > 0 {
				p.ActiveTransmitters = nil
				if r.clearer != nil {
					_ = r.clearer.ClearTransmitters(id)
				}
			}
		}
	}
	return nil
}

// Deactivate marks a protocol inactive; its balance and transmitter set
// are swept on the next TurnRound.
func (r *Registry) Deactivate(caller types.AgentId, protocolId types.ProtocolId) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.protocol(protocolId)
	if err != nil {
		return err
	}
	if p.Owner != caller && caller != r.authority.Admin {
		return errors.ErrIsNotOwner
	}
	p.Active = false
	return nil
}

// UnlockedBalance reports the balance swept to owner on deactivation and
// awaiting withdrawal.
func (r *Registry) UnlockedBalance(owner types.AgentId) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unlocked[owner]
}

// WithdrawUnlockedBalance pays out an owner's swept balance via tokens.
func (r *Registry) WithdrawUnlockedBalance(owner types.AgentId, tokens staking.TokenSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	amount := r.unlocked[owner]
	if amount == 0 {
		return errors.ErrZeroAmount
	}
	r.unlocked[owner] = 0
	if tokens != nil {
		tokens.Credit(owner, amount)
	}
	return nil
}

// --- BetBook.ProtocolView ---

func (r *Registry) IsPaused(protocolId types.ProtocolId) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.protocols[protocolId]
	return ok && p.Paused
}

func (r *Registry) IsGovProtocol(protocolId types.ProtocolId) bool {
	return protocolId == r.govProtocolId
}

// Exists reports whether protocolId names a currently registered protocol,
// regardless of active/paused state. Used by AgentDirectory to reject
// support declarations against unknown protocols.
func (r *Registry) Exists(protocolId types.ProtocolId) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.protocols[protocolId]
	return ok
}

// ActiveElectableProtocolIds lists every active, non-gov protocol
// RoundCoordinator should run TransmitterElector over this round. Manual
// transmitters are never the whole story for a non-gov protocol: every
// protocol keeps at least one manual entry (the parameter-validity floor),
// but a non-gov protocol also fills the rest of its transmitter set from
// the staked-agent directory, so it stays electable regardless of how many
// manual transmitters it declared. The gov protocol is manual-only by
// construction and is excluded here. Sorted by protocol id for a
// deterministic turn order.
func (r *Registry) ActiveElectableProtocolIds() []types.ProtocolId {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]types.ProtocolId, 0, len(r.protocols))
	for id, p := range r.protocols {
		if p.Active && !p.IsGov {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}

// OwnerOf reports protocolId's current owner, consulted by native/stream
// when gating source registration without importing this package's full
// surface.
func (r *Registry) OwnerOf(protocolId types.ProtocolId) (types.AgentId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.protocols[protocolId]
	if !ok {
		return types.AgentId{}, false
	}
	return p.Owner, true
}

func (r *Registry) IsManualTransmitter(protocolId types.ProtocolId, transmitter types.TransmitterId) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.protocols[protocolId]
	if !ok {
		return false
	}
	return p.isManual(transmitter)
}

// ConsensusTargetRate reports a protocol's active consensus rate (basis
// points out of 10000), consulted by OperationRegistry when deciding
// whether a proposal has reached approval threshold.
func (r *Registry) ConsensusTargetRate(protocolId types.ProtocolId) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.protocols[protocolId]
	if !ok {
		return 0
	}
	return p.ActiveParams.ConsensusTargetRateBps
}

// IsTransmitterAllowed reports whether transmitter currently sits in
// protocolId's active transmitter set (manual or elected).
func (r *Registry) IsTransmitterAllowed(protocolId types.ProtocolId, transmitter types.TransmitterId) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.protocols[protocolId]
	if !ok {
		return false
	}
	for _, t := range p.ActiveTransmitters {
		if t == transmitter {
			return true
		}
	}
	return false
}

func (r *Registry) CurrentTransmitters(protocolId types.ProtocolId) []types.TransmitterId {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.protocols[protocolId]
	if !ok {
		return nil
	}
	return append([]types.TransmitterId(nil), p.ActiveTransmitters...)
}

func (r *Registry) BetAmount(protocolId types.ProtocolId, betType types.BetType) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.protocols[protocolId]
	if !ok {
		return 0
	}
	return p.ActiveParams.BetAmount(betType)
}

func (r *Registry) RewardAmount(protocolId types.ProtocolId, betType types.BetType, isFirstBet bool) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.protocols[protocolId]
	if !ok {
		return 0
	}
	return p.ActiveParams.RewardAmount(betType, isFirstBet)
}

func (r *Registry) MinPersonalAmount(protocolId types.ProtocolId) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.protocols[protocolId]
	if !ok {
		return 0
	}
	return p.ActiveParams.MinPersonalStake
}

func (r *Registry) ProtocolFee(protocolId types.ProtocolId) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.protocols[protocolId]
	if !ok {
		return 0
	}
	return p.ActiveParams.ProtocolFee
}

// --- staking.ProtocolView (per-protocol accessors; bound into the
// adapter consensus/round builds per protocol, combining these with
// AgentDirectory's SupportsProtocol/TransmitterFor) ---

func (r *Registry) ManualTransmittersOf(protocolId types.ProtocolId) []types.TransmitterId {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.protocols[protocolId]
	if !ok {
		return nil
	}
	return append([]types.TransmitterId(nil), p.ManualTransmitters...)
}

func (r *Registry) IsGovDriven(protocolId types.ProtocolId) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.protocols[protocolId]
	return ok && p.IsGov
}

func (r *Registry) MaxTransmittersOf(protocolId types.ProtocolId) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.protocols[protocolId]
	if !ok {
		return 0
	}
	return p.ActiveParams.MaxTransmitters
}

func (r *Registry) MinDelegateStakeOf(protocolId types.ProtocolId) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.protocols[protocolId]
	if !ok {
		return 0
	}
	return p.ActiveParams.MinDelegateStake
}

func (r *Registry) MinPersonalStakeOf(protocolId types.ProtocolId) uint64 {
	return r.MinPersonalAmount(protocolId)
}

// Snapshot returns a copy of a protocol's record for read-only callers.
func (r *Registry) Snapshot(protocolId types.ProtocolId) (ProtocolInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.protocol(protocolId)
	if err != nil {
		return ProtocolInfo{}, err
	}
	return *p, nil
}
