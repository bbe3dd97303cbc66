package bet

import (
	"sync"
	"time"

	"photon/config"
	"photon/core/errors"
	"photon/core/events"
	"photon/core/types"
	"photon/crypto"
	"photon/native/staking"
	"photon/observability/metrics"
)

// RewardSink is the narrow slice of StakingLedger the bet book drives:
// locking/unlocking bet collateral, forfeiting it on timeout, slashing for
// inactivity, and batching reward payouts at settlement time. Consuming it
// as an interface keeps native/bet from importing native/staking's full
// surface and lets tests substitute a fake ledger.
type RewardSink interface {
	LockAgentStake(caller crypto.Identity, agent types.AgentId, amount uint64) error
	UnlockAgentStake(caller crypto.Identity, agent types.AgentId, amount uint64) error
	ForfeitLockedStake(caller crypto.Identity, agent types.AgentId, amount uint64) (uint64, error)
	Slash(agent types.AgentId, amount uint64, reason string) (uint64, error)
	DistributeRewards(caller crypto.Identity, rewards []staking.AgentReward) (uint64, error)
}

// ProtocolView is the slice of ProtocolRegistry state the bet book needs:
// pause status, bet/reward amounts, fee deduction, and whether a protocol
// is the reserved governance protocol (which never locks stake).
type ProtocolView interface {
	IsPaused(protocolId types.ProtocolId) bool
	IsGovProtocol(protocolId types.ProtocolId) bool
	IsManualTransmitter(protocolId types.ProtocolId, transmitter types.TransmitterId) bool
	CurrentTransmitters(protocolId types.ProtocolId) []types.TransmitterId
	BetAmount(protocolId types.ProtocolId, betType types.BetType) uint64
	RewardAmount(protocolId types.ProtocolId, betType types.BetType, isFirstBet bool) uint64
	MinPersonalAmount(protocolId types.ProtocolId) uint64
	ProtocolFee(protocolId types.ProtocolId) uint64
	DeduceFee(protocolId types.ProtocolId, amount uint64) bool
}

// Directory is the slice of AgentDirectory state the bet book needs: the
// transmitter-to-agent mapping it locks and unlocks stake against.
type Directory interface {
	AgentByTransmitter(protocolId types.ProtocolId, transmitter types.TransmitterId) (types.AgentId, bool)
}

// OperationSink is the slice of OperationRegistry the bet book drives when
// an agent is evicted for inactivity.
type OperationSink interface {
	RemoveTransmitter(protocolId types.ProtocolId, transmitter types.TransmitterId) error
}

// FeeSink receives swept bet collateral and protocol fees; satisfied by
// the same token ledger StakingLedger uses.
type FeeSink interface {
	Credit(to crypto.Identity, amount uint64)
}

// Authority names the identities trusted for bet-book-gated capabilities.
type Authority struct {
	Self   crypto.Identity // presented to RewardSink as the AB_MANAGER caller
	Pruner crypto.Identity // PRUNER: may call PruneBet
}

type betKey struct {
	Agent  types.AgentId
	OpHash types.OpHash
}

// Book is the per-hub bet ledger (BetBook).
type Book struct {
	mu        sync.Mutex
	cfg       *config.GlobalConfig
	authority Authority
	stake     RewardSink
	protocols ProtocolView
	directory Directory
	ops       OperationSink
	fees      FeeSink
	emitter   events.Emitter
	nowFn     func() time.Time

	operations         map[types.OpHash]*opState
	bets               map[betKey]*record
	inactivityCounters map[string]uint32
}

// NewBook constructs a BetBook. cfg, authority, and the collaborator
// interfaces are captured once; fees is the non-reentrant sink bet
// settlement credits the system fee through.
func NewBook(cfg *config.GlobalConfig, authority Authority, stake RewardSink, protocols ProtocolView, directory Directory, ops OperationSink, fees FeeSink, emitter events.Emitter) *Book {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Book{
		cfg:       cfg,
		authority: authority,
		stake:     stake,
		protocols: protocols,
		directory: directory,
		ops:       ops,
		fees:      fees,
		emitter:   emitter,
		nowFn:      time.Now,
		operations: make(map[types.OpHash]*opState),
		bets:       make(map[betKey]*record),
	}
}

func snapshotSet(ids []types.TransmitterId) map[types.TransmitterId]struct{} {
	out := make(map[types.TransmitterId]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

// PlaceBet records a transmitter's participation in opHash and, unless the
// transmitter is manually enrolled, locks the agent's personal stake as
// collateral. The first bet on an opHash fixes its bet type and snapshots
// the protocol's current transmitter set; later bets on the same opHash
// are assumed (by construction of the two callers, OperationRegistry and
// StreamConsensus) to always carry the same bet type.
func (b *Book) PlaceBet(protocolId types.ProtocolId, transmitter types.TransmitterId, betType types.BetType, opHash types.OpHash) error {
	if b.protocols.IsPaused(protocolId) {
		return errors.ErrProtocolIsNotAllowed
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.operations[opHash]
	if !ok {
		st = &opState{
			ProtocolId:      protocolId,
			BetType:         betType,
			FirstBet:        transmitter,
			CurTransmitters: snapshotSet(b.protocols.CurrentTransmitters(protocolId)),
		}
		b.operations[opHash] = st
	}

	if b.protocols.IsManualTransmitter(protocolId, transmitter) {
		metrics.Hub().IncBetPlaced(protocolId.String(), st.BetType.String())
		return nil
	}

	agent, ok := b.directory.AgentByTransmitter(protocolId, transmitter)
	if !ok {
		return errors.ErrAgentNotFound
	}
	amount := b.protocols.BetAmount(protocolId, st.BetType)
	if amount == 0 {
		metrics.Hub().IncBetPlaced(protocolId.String(), st.BetType.String())
		return nil
	}
	if err := b.stake.LockAgentStake(b.authority.Self, agent, amount); err != nil {
		return err
	}
	key := betKey{Agent: agent, OpHash: opHash}
	r, ok := b.bets[key]
	if !ok {
		r = &record{Timestamp: b.nowFn()}
		b.bets[key] = r
	}
	r.Amount += amount
	metrics.Hub().IncBetPlaced(protocolId.String(), st.BetType.String())
	return nil
}

// ReleaseBetsAndReward settles opHash: winners are paid and unlocked,
// everyone else still sitting in the operation's transmitter snapshot is
// charged one inactivity strike (and slashed + evicted at the configured
// border), and finally the protocol's per-operation fee is swept to the
// system fee collector.
func (b *Book) ReleaseBetsAndReward(protocolId types.ProtocolId, winnerTransmitters []types.TransmitterId, opHash types.OpHash) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.operations[opHash]
	if !ok {
		// Nothing was ever bet on this operation (e.g. all-manual
		// transmitter set); still honor the fee sweep below.
		st = &opState{ProtocolId: protocolId, CurTransmitters: map[types.TransmitterId]struct{}{}}
	}

	var rewards []staking.AgentReward
	for _, winner := range winnerTransmitters {
		if b.protocols.IsManualTransmitter(protocolId, winner) {
			continue
		}
		agent, ok := b.directory.AgentByTransmitter(protocolId, winner)
		if !ok {
			continue
		}
		key := betKey{Agent: agent, OpHash: opHash}
		r, ok := b.bets[key]
		if !ok || r.Amount == 0 {
			continue
		}
		isFirst := winner == st.FirstBet
		reward := b.protocols.RewardAmount(protocolId, st.BetType, isFirst)
		if reward > 0 && b.protocols.DeduceFee(protocolId, reward) {
			rewards = append(rewards, staking.AgentReward{Agent: agent, Amount: reward})
		}
		if err := b.stake.UnlockAgentStake(b.authority.Self, agent, r.Amount); err == nil {
			delete(b.bets, key)
		}
		b.resetInactivity(protocolId, agent)
		delete(st.CurTransmitters, winner)
		metrics.Hub().IncBetReleased(protocolId.String())
	}
	st.ProcessedAt = b.nowFn()

	if len(rewards) > 0 {
		systemFee, err := b.stake.DistributeRewards(b.authority.Self, rewards)
		if err == nil && systemFee > 0 && b.fees != nil {
			b.fees.Credit(b.cfg.FeeCollector, systemFee)
		}
	}

	for transmitter := range st.CurTransmitters {
		if transmitter.IsZero() || b.protocols.IsManualTransmitter(protocolId, transmitter) {
			continue
		}
		agent, ok := b.directory.AgentByTransmitter(protocolId, transmitter)
		if !ok {
			continue
		}
		count := b.bumpInactivity(protocolId, agent)
		if count >= b.cfg.SlashingBorder {
			slashed, err := b.stake.Slash(agent, b.protocols.MinPersonalAmount(protocolId), "inactivity")
			if err == nil && slashed > 0 && b.fees != nil {
				b.fees.Credit(b.cfg.FeeCollector, slashed)
			}
			_ = b.ops.RemoveTransmitter(protocolId, transmitter)
			b.resetInactivity(protocolId, agent)
		}
	}
	delete(b.operations, opHash)

	if !b.protocols.IsGovProtocol(protocolId) {
		fee := b.protocols.ProtocolFee(protocolId)
		if fee > 0 && b.protocols.DeduceFee(protocolId, fee) && b.fees != nil {
			b.fees.Credit(b.cfg.FeeCollector, fee)
		}
	}
	return nil
}

// RefundBet unlocks a bet without paying a reward: used when a round
// rotation evicts a transmitter whose proof is still outstanding.
func (b *Book) RefundBet(protocolId types.ProtocolId, opHash types.OpHash, transmitter types.TransmitterId) error {
	if b.protocols.IsManualTransmitter(protocolId, transmitter) {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	agent, ok := b.directory.AgentByTransmitter(protocolId, transmitter)
	if !ok {
		return nil
	}
	key := betKey{Agent: agent, OpHash: opHash}
	r, ok := b.bets[key]
	if !ok {
		return nil
	}
	if err := b.stake.UnlockAgentStake(b.authority.Self, agent, r.Amount); err != nil {
		return err
	}
	delete(b.bets, key)
	metrics.Hub().IncBetRefunded(protocolId.String())
	return nil
}

// PruneBet forfeits an open bet once it has sat unsettled for at least
// BetTimeout, sweeping the locked collateral to the system fee collector.
// Callable only by the PRUNER capability.
func (b *Book) PruneBet(caller crypto.Identity, agent types.AgentId, opHash types.OpHash) error {
	if caller != b.authority.Pruner {
		return errors.ErrUnauthorized
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := betKey{Agent: agent, OpHash: opHash}
	r, ok := b.bets[key]
	if !ok || r.Amount == 0 {
		return errors.ErrNoWithdrawRequested
	}
	if b.nowFn().Sub(r.Timestamp) < b.cfg.BetTimeout() {
		return errors.ErrTimeoutNotElapsed
	}
	forfeited, err := b.stake.ForfeitLockedStake(b.authority.Self, agent, r.Amount)
	if err != nil {
		return err
	}
	delete(b.bets, key)
	if forfeited > 0 && b.fees != nil {
		b.fees.Credit(b.cfg.FeeCollector, forfeited)
	}
	if st, ok := b.operations[opHash]; ok {
		metrics.Hub().IncBetPruned(st.ProtocolId.String())
	} else {
		metrics.Hub().IncBetPruned("unknown")
	}
	return nil
}

func (b *Book) resetInactivity(protocolId types.ProtocolId, agent types.AgentId) {
	delete(b.missedCounters(), inactivityKeyString(protocolId, agent))
}

func (b *Book) bumpInactivity(protocolId types.ProtocolId, agent types.AgentId) uint32 {
	m := b.missedCounters()
	k := inactivityKeyString(protocolId, agent)
	m[k]++
	return m[k]
}

// missedCounters lazily initializes the per-(protocol, agent) inactivity
// counter map, keyed by a flattened string rather than a struct to avoid
// a second comparable-key type.
func (b *Book) missedCounters() map[string]uint32 {
	if b.inactivityCounters == nil {
		b.inactivityCounters = make(map[string]uint32)
	}
	return b.inactivityCounters
}

func inactivityKeyString(protocolId types.ProtocolId, agent types.AgentId) string {
	return string(protocolId[:]) + "|" + string(agent[:])
}
