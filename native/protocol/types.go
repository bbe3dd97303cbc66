// Package protocol implements the per-protocol parameter and balance
// registry: realtime vs active parameter snapshots, manual transmitter
// management, fee deduction against protocol balance, and the per-round
// promotion and health-pause sweep driven by RoundCoordinator.
package protocol

import (
	"photon/core/errors"
	"photon/core/types"
)

// Params is one protocol's tunable economic parameters. Two copies are
// held per protocol (realtime, active); realtime is settable any time by
// the owner for a fee, and is copied into active only at round turn, so a
// mid-round parameter change never affects operations already in flight.
type Params struct {
	ConsensusTargetRateBps uint32
	MaxTransmitters        uint32
	MinDelegateStake       uint64
	MinPersonalStake       uint64

	MsgBetAmount  uint64
	DataBetAmount uint64

	MsgBetFirstReward  uint64
	MsgBetReward       uint64
	DataBetFirstReward uint64
	DataBetReward      uint64

	// ProtocolFee is deducted from protocol balance once per settled
	// operation (BetBook.ReleaseBetsAndReward's final step).
	ProtocolFee uint64
}

// BetAmount returns the stake amount locked per bet of betType.
func (p Params) BetAmount(betType types.BetType) uint64 {
	if betType == types.BetData {
		return p.DataBetAmount
	}
	return p.MsgBetAmount
}

// RewardAmount returns the payout for a bet of betType, higher for the
// transmitter that placed the first bet on an operation.
func (p Params) RewardAmount(betType types.BetType, isFirstBet bool) uint64 {
	if betType == types.BetData {
		if isFirstBet {
			return p.DataBetFirstReward
		}
		return p.DataBetReward
	}
	if isFirstBet {
		return p.MsgBetFirstReward
	}
	return p.MsgBetReward
}

// manualTransmitterCap is the maximum number of manual transmitters a
// non-gov protocol may enroll: enough below maxTransmitters that manuals
// alone can never reach consensus on their own.
func manualTransmitterCap(maxTransmitters uint32, consensusTargetRateBps uint32) uint32 {
	return uint32(uint64(maxTransmitters)*uint64(10000-consensusTargetRateBps)/10000) + 1
}

// validate enforces the parameter-validity invariant required after every
// setter. adminMaxTransmitters is the global ceiling from GlobalConfig.
func (p Params) validate(isGov bool, manualCount int, adminMaxTransmitters uint32) error {
	if p.ConsensusTargetRateBps <= 5500 || p.ConsensusTargetRateBps > 10000 {
		return errors.ErrInvalidConsensusRate
	}
	if p.MaxTransmitters == 0 || p.MaxTransmitters > adminMaxTransmitters {
		return errors.ErrInvalidConsensusRate
	}
	if manualCount == 0 {
		return errors.ErrManualTransmittersLimitExceeded
	}
	if !isGov {
		manualCap := manualTransmitterCap(p.MaxTransmitters, p.ConsensusTargetRateBps)
		if uint32(manualCount) > manualCap {
			return errors.ErrManualTransmittersLimitExceeded
		}
	}
	return nil
}

// ProtocolInfo is the registry's per-protocol record.
type ProtocolInfo struct {
	Owner              types.AgentId
	Active             bool
	Paused             bool
	IsGov              bool
	Balance            uint64
	RealtimeParams     Params
	ActiveParams       Params
	ManualTransmitters []types.TransmitterId
	// ActiveTransmitters is the resolved transmitter set last computed by
	// TransmitterElector (or, for a gov/manual-only protocol, the manual
	// list itself); cached here so BetBook and OperationRegistry can read
	// "the current transmitter set" without depending on each other.
	ActiveTransmitters []types.TransmitterId
}

func (p *ProtocolInfo) isManual(transmitter types.TransmitterId) bool {
	for _, m := range p.ManualTransmitters {
		if m == transmitter {
			return true
		}
	}
	return false
}
