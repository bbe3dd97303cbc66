// Package staking implements the delegator-agent DPoS ledger, per-round
// reward snapshots, personal-stake lifecycle, and the sorted-agent
// directory that drives transmitter selection for every protocol.
package staking

import (
	"photon/core/types"
)

// Reward is the per-round economic snapshot recorded against an agent.
// TotalDelegate is captured at round-turn time so every delegator's share
// of round r is proportional to their round-start stake.
type Reward struct {
	AgentReward    uint64
	DelegateReward uint64
	TotalDelegate  uint64
	Slashed        bool
}

// DelegatorInfo is the per-(delegator, agent) stake position.
type DelegatorInfo struct {
	Stake                 uint64
	LastStakeUnstakeRound types.RoundId
	LastClaimRound        types.RoundId
}

// AgentInfo is the per-agent staking position.
type AgentInfo struct {
	Approved            bool
	Paused               bool
	RealtimeStake        uint64
	ActiveRoundStake     uint64
	RealtimeFeeBps       uint32
	ActiveFeeBps         uint32
	PersonalStake        uint64
	LockedPersonalStake  uint64
	WithdrawRequested    uint64
	WithdrawReady        uint64
	LastClaimRound       types.RoundId
	LastSlashRound       types.RoundId
	Rewards              map[types.RoundId]*Reward
	Delegators           map[types.DelegatorId]*DelegatorInfo
}

func newAgentInfo() *AgentInfo {
	return &AgentInfo{
		Approved:   true,
		Rewards:    make(map[types.RoundId]*Reward),
		Delegators: make(map[types.DelegatorId]*DelegatorInfo),
	}
}

func (a *AgentInfo) rewardAt(round types.RoundId) *Reward {
	r, ok := a.Rewards[round]
	if !ok {
		r = &Reward{}
		a.Rewards[round] = r
	}
	return r
}

// TotalDelegation is the score used to order the sorted agent directory:
// descending total delegation drives transmitter selection.
func (a *AgentInfo) TotalDelegation() int64 {
	return int64(a.RealtimeStake)
}
