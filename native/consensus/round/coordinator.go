// Package round implements RoundCoordinator (C13): the single trusted
// entry point that advances the hub from one round to the next in the
// fixed order every other native package assumes — protocol bookkeeping,
// then staking, then transmitter re-election, then stream parameter
// promotion. Turn does not distribute rewards; native/bet hands them to
// the staking ledger as each bet is released.
package round

import (
	"sync"
	"time"

	"photon/config"
	"photon/core/errors"
	"photon/core/types"
	"photon/crypto"
	"photon/native/staking"
)

// StakingLedger is the narrow slice of native/staking RoundCoordinator
// drives directly. Reward distribution itself already happens inline as
// native/bet releases each bet (ReleaseBetsAndReward calls
// staking.Ledger.DistributeRewards per operation, not in a round-end
// batch), so the only round-boundary call left here is TurnRound.
type StakingLedger interface {
	TurnRound(caller crypto.Identity) error
}

// ProtocolRegistry is the narrow slice of native/protocol RoundCoordinator
// drives: promote realtime params, sweep deactivated protocols, and list
// which protocols need a fresh transmitter election this round.
type ProtocolRegistry interface {
	TurnRound(caller types.AgentId) error
	ActiveElectableProtocolIds() []types.ProtocolId
}

// Elector picks a protocol's transmitter set for the coming round
// (native/staking.Ledger.SelectTransmittersForProtocol, fed a per-protocol
// view built from ProtocolParams/AgentSupport below, scoped to one
// protocolId ahead of time so it satisfies staking.ProtocolView's
// zero-argument shape).
type Elector interface {
	SelectTransmittersForProtocol(p staking.ProtocolView) ([]types.TransmitterId, error)
}

// ProtocolParamsSource supplies the per-protocolId accessors
// staking.ProtocolView needs; native/protocol.Registry implements it.
type ProtocolParamsSource interface {
	IsGovDriven(protocolId types.ProtocolId) bool
	MaxTransmittersOf(protocolId types.ProtocolId) uint32
	MinDelegateStakeOf(protocolId types.ProtocolId) uint64
	MinPersonalStakeOf(protocolId types.ProtocolId) uint64
	ManualTransmittersOf(protocolId types.ProtocolId) []types.TransmitterId
}

// AgentSupport supplies the per-protocolId agent queries
// staking.ProtocolView needs; native/agent.Directory implements it.
type AgentSupport interface {
	SupportsProtocol(protocolId types.ProtocolId, agent types.AgentId) bool
	TransmitterFor(protocolId types.ProtocolId, agent types.AgentId) (types.TransmitterId, bool)
}

// TransmitterSink is where a freshly elected set lands; native/operation's
// Registry.UpdateTransmitters.
type TransmitterSink interface {
	UpdateTransmitters(protocolId types.ProtocolId, newSet []types.TransmitterId) error
}

// StreamConsensus is the narrow slice of native/stream RoundCoordinator
// drives: applying pended per-source parameter changes.
type StreamConsensus interface {
	TurnRound() error
}

// Authority names the identity trusted to call Turn.
type Authority struct {
	Trigger crypto.Identity // ROUND_TRIGGER
}

// Coordinator is RoundCoordinator (C13).
type Coordinator struct {
	mu sync.Mutex

	cfg       *config.GlobalConfig
	authority Authority

	staking   StakingLedger
	protocols ProtocolRegistry
	params    ProtocolParamsSource
	agents    AgentSupport
	elector   Elector
	sink      TransmitterSink
	streams   StreamConsensus

	nowFn             func() time.Time
	lastRoundTimestamp time.Time
}

// NewCoordinator constructs a RoundCoordinator wired to every package a
// round turn touches.
func NewCoordinator(cfg *config.GlobalConfig, authority Authority, staking StakingLedger, protocols ProtocolRegistry, params ProtocolParamsSource, agents AgentSupport, elector Elector, sink TransmitterSink, streams StreamConsensus) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		authority: authority,
		staking:   staking,
		protocols: protocols,
		params:    params,
		agents:    agents,
		elector:   elector,
		sink:      sink,
		streams:   streams,
		nowFn:     time.Now,
	}
}

// Turn advances one round: ProtocolRegistry.TurnRound, StakingLedger.TurnRound,
// a fresh transmitter election per electable protocol (each pushed through
// TransmitterSink.UpdateTransmitters), then StreamConsensus.TurnRound. The
// ordering matters: protocol bookkeeping (pause sweeps, param promotion)
// must land before the staking snapshot the coming round's rewards will be
// computed against, and the staking snapshot must land before transmitter
// re-election reads it.
func (c *Coordinator) Turn(caller crypto.Identity) error {
	if caller != c.authority.Trigger {
		return errors.ErrUnauthorized
	}
	c.mu.Lock()
	now := c.nowFn()
	if !c.lastRoundTimestamp.IsZero() && now.Sub(c.lastRoundTimestamp) < c.cfg.MinRoundTime() {
		c.mu.Unlock()
		return errors.ErrMinRoundTimeNotReached
	}
	c.mu.Unlock()

	if err := c.protocols.TurnRound(types.AgentId(caller)); err != nil {
		return err
	}
	if err := c.staking.TurnRound(caller); err != nil {
		return err
	}
	for _, protocolId := range c.protocols.ActiveElectableProtocolIds() {
		view := protocolView{protocolId: protocolId, params: c.params, agents: c.agents}
		newSet, err := c.elector.SelectTransmittersForProtocol(view)
		if err != nil {
			return err
		}
		if err := c.sink.UpdateTransmitters(protocolId, newSet); err != nil {
			return err
		}
	}
	if c.streams != nil {
		if err := c.streams.TurnRound(); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.lastRoundTimestamp = now
	c.mu.Unlock()
	return nil
}

// LastRoundTimestamp reports when Turn last succeeded.
func (c *Coordinator) LastRoundTimestamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRoundTimestamp
}

// protocolView binds a single protocolId to ProtocolParamsSource/AgentSupport
// so it satisfies staking.ProtocolView without either source package
// needing to know about per-protocol scoping.
type protocolView struct {
	protocolId types.ProtocolId
	params     ProtocolParamsSource
	agents     AgentSupport
}

func (v protocolView) ManualTransmitters() []types.TransmitterId {
	return v.params.ManualTransmittersOf(v.protocolId)
}
func (v protocolView) IsGovDriven() bool         { return v.params.IsGovDriven(v.protocolId) }
func (v protocolView) MaxTransmitters() uint32   { return v.params.MaxTransmittersOf(v.protocolId) }
func (v protocolView) MinDelegateStake() uint64  { return v.params.MinDelegateStakeOf(v.protocolId) }
func (v protocolView) MinPersonalStake() uint64  { return v.params.MinPersonalStakeOf(v.protocolId) }
func (v protocolView) SupportsProtocol(agent types.AgentId) bool {
	return v.agents.SupportsProtocol(v.protocolId, agent)
}
func (v protocolView) TransmitterFor(agent types.AgentId) (types.TransmitterId, bool) {
	return v.agents.TransmitterFor(v.protocolId, agent)
}
