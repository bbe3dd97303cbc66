package staking

import (
	"encoding/hex"
	"sync"

	"photon/config"
	"photon/core/errors"
	"photon/core/events"
	"photon/core/list"
	"photon/core/types"
	"photon/crypto"
	"photon/observability/metrics"
)

// TokenSink is the non-reentrant ledger abstraction token movements go
// through: token movements never call back into a mutator, only move
// balances. Implementations MUST NOT call back into the staking ledger.
type TokenSink interface {
	Credit(to crypto.Identity, amount uint64)
	Debit(from crypto.Identity, amount uint64) error
}

// Authority is the compile-time capability table: each field names the
// single identity trusted for that capability. It is supplied once at
// construction (the equivalent of a single-shot setContracts call)
// and never mutated afterwards.
type Authority struct {
	Admin        crypto.Identity
	BetManager   crypto.Identity // AB_MANAGER: lock/unlock agent stake, distributeRewards
	RoundManager crypto.Identity // ROUND_MANAGER/ROUND_TRIGGER: turnRound, distributeRewards
}

func identityKey(id crypto.Identity) string { return hex.EncodeToString(id[:]) }

// Ledger is the delegator-agent staking ledger.
type Ledger struct {
	mu         sync.Mutex
	cfg        *config.GlobalConfig
	authority  Authority
	emitter    events.Emitter
	round      types.RoundId
	agents     map[types.AgentId]*AgentInfo
	directory  *list.OrderedList // sorted by TotalDelegation, descending
	collectors map[string]crypto.Identity
}

// NewLedger constructs a StakingLedger. cfg and authority are captured once
// and never mutated by this package.
func NewLedger(cfg *config.GlobalConfig, authority Authority, emitter events.Emitter) *Ledger {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Ledger{
		cfg:        cfg,
		authority:  authority,
		emitter:    emitter,
		round:      1,
		agents:     make(map[types.AgentId]*AgentInfo),
		directory:  list.New(list.Descending),
		collectors: make(map[string]crypto.Identity),
	}
}

// Round reports the current round id.
func (l *Ledger) Round() types.RoundId {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.round
}

func (l *Ledger) agent(id types.AgentId) (*AgentInfo, error) {
	a, ok := l.agents[id]
	if !ok {
		return nil, errors.ErrAgentNotFound
	}
	return a, nil
}

// EnsureAgent returns the agent's info, creating a fresh entry on first
// reference (e.g. when TransmitterElector or AgentDirectory register a new
// agent before any delegation has occurred).
func (l *Ledger) EnsureAgent(id types.AgentId) *AgentInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ensureAgent(id)
}

func (l *Ledger) ensureAgent(id types.AgentId) *AgentInfo {
	a, ok := l.agents[id]
	if !ok {
		a = newAgentInfo()
		l.agents[id] = a
	}
	return a
}

// AgentSnapshot returns a copy of the agent's info for read-only callers
// (RPC, tests). Returns ErrAgentNotFound if the agent is unknown.
func (l *Ledger) AgentSnapshot(id types.AgentId) (AgentInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.agent(id)
	if err != nil {
		return AgentInfo{}, err
	}
	return *a, nil
}

// PersonalStakeOf returns an agent's unlocked personal stake, or 0 if the
// agent is unknown. Used by AgentDirectory to enforce its
// stake-per-transmitter support cap.
func (l *Ledger) PersonalStakeOf(id types.AgentId) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.agents[id]
	if !ok {
		return 0
	}
	return a.PersonalStake
}

// SetRewardCollector installs an override recipient for a (delegator,
// agent) pair's claimed rewards.
func (l *Ledger) SetRewardCollector(delegator types.DelegatorId, agent types.AgentId, collector crypto.Identity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.collectors[identityKey(delegator)+"|"+identityKey(agent)] = collector
}

func (l *Ledger) rewardCollector(delegator types.DelegatorId, agent types.AgentId, fallback crypto.Identity) crypto.Identity {
	if c, ok := l.collectors[identityKey(delegator)+"|"+identityKey(agent)]; ok {
		return c
	}
	return fallback
}

// Delegate adds amount of delegated stake from delegator to agent.
// Pending rewards are claimed first so old and new shares never mix.
func (l *Ledger) Delegate(delegator types.DelegatorId, agent types.AgentId, amount uint64, tokens TokenSink) error {
	if amount == 0 {
		return errors.ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.agent(agent)
	if err != nil {
		return err
	}
	if !a.Approved {
		return errors.ErrAgentNotActive
	}
	if err := l.claimRewardsLocked(delegator, agent, a, tokens); err != nil {
		return err
	}
	d := l.delegatorEntryLocked(a, delegator)
	d.Stake += amount
	a.RealtimeStake += amount
	d.LastStakeUnstakeRound = l.round
	l.directory.Set(identityKey(agent), a.TotalDelegation())
	l.emitter.Emit(events.Delegate{Delegator: delegator, Agent: agent, Amount: amount})
	metrics.Hub().SetDelegatedStake(identityKey(agent), float64(a.RealtimeStake))
	return nil
}

// Withdraw removes amount of delegated stake, symmetric to Delegate.
func (l *Ledger) Withdraw(delegator types.DelegatorId, agent types.AgentId, amount uint64, tokens TokenSink) error {
	if amount == 0 {
		return errors.ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.agent(agent)
	if err != nil {
		return err
	}
	if err := l.claimRewardsLocked(delegator, agent, a, tokens); err != nil {
		return err
	}
	d := l.delegatorEntryLocked(a, delegator)
	if d.Stake < amount {
		return errors.ErrInsufficientStake
	}
	d.Stake -= amount
	a.RealtimeStake -= amount
	d.LastStakeUnstakeRound = l.round
	l.directory.Set(identityKey(agent), a.TotalDelegation())
	l.emitter.Emit(events.Withdraw{Delegator: delegator, Agent: agent, Amount: amount})
	metrics.Hub().SetDelegatedStake(identityKey(agent), float64(a.RealtimeStake))
	return nil
}

// Redelegate moves amount of stake from one agent to another: a Withdraw
// followed by a Delegate.
func (l *Ledger) Redelegate(delegator types.DelegatorId, from, to types.AgentId, amount uint64, tokens TokenSink) error {
	if err := l.Withdraw(delegator, from, amount, tokens); err != nil {
		return err
	}
	if err := l.Delegate(delegator, to, amount, tokens); err != nil {
		return err
	}
	l.mu.Lock()
	l.emitter.Emit(events.Redelegate{Delegator: delegator, From: from, To: to, Amount: amount})
	l.mu.Unlock()
	return nil
}

func (l *Ledger) delegatorEntryLocked(a *AgentInfo, delegator types.DelegatorId) *DelegatorInfo {
	d, ok := a.Delegators[delegator]
	if !ok {
		d = &DelegatorInfo{LastClaimRound: l.round, LastStakeUnstakeRound: l.round}
		a.Delegators[delegator] = d
	}
	return d
}

// ClaimRewards claims a delegator's pending rewards for agent and transfers
// them via tokens.
func (l *Ledger) ClaimRewards(delegator types.DelegatorId, agent types.AgentId, tokens TokenSink) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.agent(agent)
	if err != nil {
		return err
	}
	return l.claimRewardsLocked(delegator, agent, a, tokens)
}

// claimRewardsLocked enumerates rounds [delegator.lastClaimRound, round)
// and accrues delegateReward*stake/totalDelegate for each non-slashed round
// with non-zero denominators.
func (l *Ledger) claimRewardsLocked(delegator types.DelegatorId, agent types.AgentId, a *AgentInfo, tokens TokenSink) error {
	d, ok := a.Delegators[delegator]
	if !ok {
		// Nothing delegated yet; nothing to claim.
		return nil
	}
	var total uint64
	for r := d.LastClaimRound; r < l.round; r++ {
		reward, ok := a.Rewards[r]
		if !ok || reward.Slashed || reward.TotalDelegate == 0 || d.Stake == 0 {
			continue
		}
		total += reward.DelegateReward * d.Stake / reward.TotalDelegate
	}
	d.LastClaimRound = l.round
	if total == 0 {
		return nil
	}
	recipient := l.rewardCollector(delegator, agent, delegator)
	if tokens != nil {
		tokens.Credit(recipient, total)
	}
	l.emitter.Emit(events.RewardClaimed{Delegator: delegator, Agent: agent, Amount: total})
	return nil
}

// ClaimAgentReward lets an agent claim its own accrued agentReward share
// across unclaimed rounds, analogous to claimRewardsLocked but against the
// agent-level counter rather than a delegator's.
func (l *Ledger) ClaimAgentReward(agent types.AgentId, tokens TokenSink) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.agent(agent)
	if err != nil {
		return err
	}
	var total uint64
	for r := a.LastClaimRound; r < l.round; r++ {
		reward, ok := a.Rewards[r]
		if !ok || reward.Slashed {
			continue
		}
		total += reward.AgentReward
	}
	a.LastClaimRound = l.round
	if total == 0 {
		return nil
	}
	if tokens != nil {
		tokens.Credit(agent, total)
	}
	l.emitter.Emit(events.AgentRewardClaimed{Agent: agent, Amount: total})
	return nil
}

// SetFeeRate sets the agent's realtime fee rate (bps of 10000), effective
// from the next round turn.
func (l *Ledger) SetFeeRate(agent types.AgentId, bps uint32) error {
	if bps > 10000 {
		return errors.ErrInvalidFeeRate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.agent(agent)
	if err != nil {
		return err
	}
	a.RealtimeFeeBps = bps
	l.emitter.Emit(events.UpdateFee{Agent: agent, FeeBps: bps})
	return nil
}

// DepositPersonalStake adds to an agent's own bonded personal stake.
func (l *Ledger) DepositPersonalStake(agent types.AgentId, amount uint64, tokens TokenSink) error {
	if amount == 0 {
		return errors.ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.ensureAgent(agent)
	a.PersonalStake += amount
	l.emitter.Emit(events.DepositPersonalStake{Agent: agent, Amount: amount})
	return nil
}

// RequestWithdrawPersonalStake queues amount for withdrawal; it must not
// exceed personal+locked.
func (l *Ledger) RequestWithdrawPersonalStake(agent types.AgentId, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.agent(agent)
	if err != nil {
		return err
	}
	if amount > a.PersonalStake+a.LockedPersonalStake {
		return errors.ErrTryingToWithdrawTooMuch
	}
	a.WithdrawRequested = amount
	l.emitter.Emit(events.RequestWithdrawPersonalStake{Agent: agent, Amount: amount})
	return nil
}

// CancelWithdrawPersonalStake clears a pending withdraw request. It emits
// TypeRequestWithdrawPersonalStake rather than a dedicated cancel event —
// a quirk carried through verbatim; see DESIGN.md.
func (l *Ledger) CancelWithdrawPersonalStake(agent types.AgentId) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.agent(agent)
	if err != nil {
		return err
	}
	a.WithdrawRequested = 0
	l.emitter.Emit(events.CancelWithdrawPersonalStake{Agent: agent})
	return nil
}

// WithdrawPersonalStake pays out only the amount already promoted into
// WithdrawReady by a prior round turn.
func (l *Ledger) WithdrawPersonalStake(agent types.AgentId, tokens TokenSink) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.agent(agent)
	if err != nil {
		return err
	}
	if a.WithdrawReady == 0 {
		return errors.ErrNoWithdrawRequested
	}
	// Capture the pre-zero amount: emitting after zeroing would always
	// carry 0; see DESIGN.md for why we emit the pre-zero value instead.
	amount := a.WithdrawReady
	a.WithdrawReady = 0
	if tokens != nil {
		tokens.Credit(agent, amount)
	}
	l.emitter.Emit(events.WithdrawPersonalStake{Agent: agent, Amount: amount})
	return nil
}

// LockAgentStake is called by BetBook (capability AB_MANAGER) to lock
// personal stake backing a bet.
func (l *Ledger) LockAgentStake(caller crypto.Identity, agent types.AgentId, amount uint64) error {
	if caller != l.authority.BetManager {
		return errors.ErrUnauthorized
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.agent(agent)
	if err != nil {
		return err
	}
	if a.PersonalStake < amount {
		return errors.ErrInsufficientPersonalStake
	}
	a.PersonalStake -= amount
	a.LockedPersonalStake += amount
	return nil
}

// UnlockAgentStake reverses LockAgentStake.
func (l *Ledger) UnlockAgentStake(caller crypto.Identity, agent types.AgentId, amount uint64) error {
	if caller != l.authority.BetManager {
		return errors.ErrUnauthorized
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.agent(agent)
	if err != nil {
		return err
	}
	if a.LockedPersonalStake < amount {
		return errors.ErrUnlockTooMuch
	}
	a.LockedPersonalStake -= amount
	a.PersonalStake += amount
	return nil
}

// Slash moves up to amount from the agent's personal stake to the system
// fee accumulator, marking the current round's Reward as slashed. Returns
// the amount actually slashed (min(amount, personalStake)).
func (l *Ledger) Slash(agent types.AgentId, amount uint64, reason string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.agent(agent)
	if err != nil {
		return 0, err
	}
	slashed := amount
	if slashed > a.PersonalStake {
		slashed = a.PersonalStake
	}
	a.PersonalStake -= slashed
	a.rewardAt(l.round).Slashed = true
	a.LastSlashRound = l.round
	l.emitter.Emit(events.Slashed{Agent: agent, Amount: slashed, Reason: reason})
	metrics.Hub().IncAgentSlashed(reason)
	return slashed, nil
}

// ForfeitLockedStake moves up to amount from the agent's locked personal
// stake to the system fee accumulator, without touching unlocked personal
// stake. Used by BetBook to sweep a timed-out bet's locked collateral;
// unlike Slash it does not mark the round as slashed, since the agent
// itself did not misbehave within this round's economics, only failed to
// have its bet settled in time.
func (l *Ledger) ForfeitLockedStake(caller crypto.Identity, agent types.AgentId, amount uint64) (uint64, error) {
	if caller != l.authority.BetManager {
		return 0, errors.ErrUnauthorized
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.agent(agent)
	if err != nil {
		return 0, err
	}
	forfeited := amount
	if forfeited > a.LockedPersonalStake {
		forfeited = a.LockedPersonalStake
	}
	a.LockedPersonalStake -= forfeited
	return forfeited, nil
}

// BanAgent marks an agent not-approved and slashes its entire personal
// stake. Used by AgentDirectory.BanAgent.
func (l *Ledger) BanAgent(agent types.AgentId) (uint64, error) {
	l.mu.Lock()
	a, err := l.agent(agent)
	if err != nil {
		l.mu.Unlock()
		return 0, err
	}
	a.Approved = false
	full := a.PersonalStake
	l.mu.Unlock()
	if full == 0 {
		return 0, nil
	}
	return l.Slash(agent, full, "banned")
}

// AgentReward is one payout instruction produced by BetBook's reward
// distribution pass.
type AgentReward struct {
	Agent  types.AgentId
	Amount uint64
}

// DistributeRewards consumes (agent, amount) payouts from BetBook before
// the round turn: slashed-round rewards go entirely to the system fee
// (returned to the caller to credit); otherwise agentRewardFee is skimmed
// to system fee and the remainder splits between agentReward and
// delegateReward by the agent's active fee rate.
func (l *Ledger) DistributeRewards(caller crypto.Identity, rewards []AgentReward) (systemFee uint64, err error) {
	if caller != l.authority.RoundManager && caller != l.authority.BetManager {
		return 0, errors.ErrUnauthorized
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, payout := range rewards {
		a, ok := l.agents[payout.Agent]
		if !ok {
			continue
		}
		reward := a.rewardAt(l.round)
		if reward.Slashed {
			systemFee += payout.Amount
			continue
		}
		fee := payout.Amount * uint64(l.cfg.AgentRewardFeeBps) / 10000
		systemFee += fee
		remainder := payout.Amount - fee
		agentShare := remainder * uint64(a.ActiveFeeBps) / 10000
		reward.AgentReward += agentShare
		reward.DelegateReward += remainder - agentShare
	}
	return systemFee, nil
}

// TurnRound advances the round: promotes realtime stake/fee into the
// active snapshot, snapshots Reward.TotalDelegate, processes queued
// personal-stake withdraw requests, then increments the round counter.
func (l *Ledger) TurnRound(caller crypto.Identity) error {
	if caller != l.authority.RoundManager {
		return errors.ErrUnauthorized
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, a := range l.agents {
		a.ActiveRoundStake = a.RealtimeStake
		a.ActiveFeeBps = a.RealtimeFeeBps
		a.rewardAt(l.round).TotalDelegate = a.RealtimeStake
		if a.WithdrawRequested > 0 {
			ready := a.WithdrawRequested
			if ready > a.PersonalStake {
				ready = a.PersonalStake
			}
			a.PersonalStake -= ready
			a.WithdrawReady += ready
			a.WithdrawRequested = 0
		}
		metrics.Hub().SetActiveRoundStake(identityKey(id), float64(a.ActiveRoundStake))
	}
	l.round++
	return nil
}

// Eligible reports whether agent currently satisfies the staking-side
// eligibility predicate used by transmitter selection: approved, not
// paused, and above the supplied minimum thresholds.
func (l *Ledger) Eligible(agent types.AgentId, minDelegate, minPersonal uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.agents[agent]
	if !ok {
		return false
	}
	if !a.Approved || a.Paused {
		return false
	}
	if a.ActiveRoundStake < minDelegate {
		return false
	}
	if a.PersonalStake < minPersonal {
		return false
	}
	return true
}

// SortedAgentsDescending returns agent identities ordered by current total
// delegation, descending; earliest-inserted wins ties.
func (l *Ledger) SortedAgentsDescending() ([]types.AgentId, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys, err := l.directory.Enumerate()
	if err != nil {
		return nil, err
	}
	out := make([]types.AgentId, 0, len(keys))
	for _, k := range keys {
		raw, decodeErr := hex.DecodeString(k)
		if decodeErr != nil {
			continue
		}
		id, idErr := crypto.IdentityFromBytes(raw)
		if idErr != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// SetPaused toggles an agent's paused flag, excluding it from eligibility
// without altering its stake.
func (l *Ledger) SetPaused(agent types.AgentId, paused bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.agent(agent)
	if err != nil {
		return err
	}
	a.Paused = paused
	return nil
}
