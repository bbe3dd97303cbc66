// Package events defines the hub's typed, structured events. Every admin
// or consensus state change emits exactly one of these; names are
// normative. This mirrors a typed-event package design (an Event
// interface plus one struct per event type) rather than a generic
// string-keyed bag.
package events

import (
	"photon/core/types"
)

// Event is implemented by every emitted event struct.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (RPC, indexers). The
// zero value NoopEmitter discards everything.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies Emitter while discarding every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// CollectingEmitter accumulates events in-memory; used by tests and by the
// RPC package's recent-activity feed.
type CollectingEmitter struct {
	Events []Event
}

func (c *CollectingEmitter) Emit(e Event) { c.Events = append(c.Events, e) }

const (
	TypeNewOperation      = "operation.new"
	TypeNewProof          = "operation.proof"
	TypeProposalApproved  = "operation.approved"
	TypeProposalExecuted  = "operation.executed"
	TypeRemoveTransmitter = "operation.transmitter_removed"

	TypeAddAllowedProtocol           = "gov.protocol_added"
	TypeSetProtocolPause             = "gov.protocol_paused"
	TypeAddAllowedProtocolAddress    = "gov.protocol_address_added"
	TypeRemoveAllowedProtocolAddress = "gov.protocol_address_removed"
	TypeAddAllowedProposerAddress    = "gov.proposer_address_added"
	TypeRemoveAllowedProposerAddress = "gov.proposer_address_removed"
	TypeUpdateTransmitters           = "gov.transmitters_updated"
	TypeAddExecutor                  = "gov.executor_added"
	TypeRemoveExecutor                = "gov.executor_removed"
	TypeSetConsensusTargetRate       = "gov.consensus_rate_set"

	TypeDelegate                     = "stake.delegate"
	TypeWithdraw                     = "stake.withdraw"
	TypeRedelegate                   = "stake.redelegate"
	TypeRewardClaimed                = "stake.reward_claimed"
	TypeAgentRewardClaimed           = "stake.agent_reward_claimed"
	TypeUpdateFee                    = "stake.fee_updated"
	TypeDepositPersonalStake         = "stake.personal_deposit"
	TypeRequestWithdrawPersonalStake = "stake.personal_withdraw_requested"
	TypeCancelWithdrawPersonalStake  = "stake.personal_withdraw_cancelled"
	TypeWithdrawPersonalStake        = "stake.personal_withdrawn"
	TypeSlashed                      = "stake.slashed"

	TypeDeclareProtocolSupport = "agent.support_declared"
	TypeRevokeProtocolSupport  = "agent.support_revoked"
	TypeBanAgent               = "agent.banned"

	TypeNewStreamDataSpotter     = "stream.spotter_created"
	TypeDataFinalized            = "stream.finalized"
	TypeNewMerkleRoot            = "stream.merkle_root"
	TypeConsensusReadyToFinalize = "stream.ready_to_finalize"
)

type NewOperation struct {
	ProtocolId types.ProtocolId
	OpHash     types.OpHash
	Round      types.RoundId
}

func (NewOperation) EventType() string { return TypeNewOperation }

type NewProof struct {
	OpHash      types.OpHash
	Transmitter types.TransmitterId
}

func (NewProof) EventType() string { return TypeNewProof }

type ProposalApproved struct {
	OpHash       types.OpHash
	ApproveBlock uint64
}

func (ProposalApproved) EventType() string { return TypeProposalApproved }

type ProposalExecuted struct {
	OpHash types.OpHash
}

func (ProposalExecuted) EventType() string { return TypeProposalExecuted }

type RemoveTransmitter struct {
	ProtocolId  types.ProtocolId
	Transmitter types.TransmitterId
}

func (RemoveTransmitter) EventType() string { return TypeRemoveTransmitter }

type AddAllowedProtocol struct {
	ProtocolId         types.ProtocolId
	ChainId            types.ChainId
	ConsensusTargetRate uint32
}

func (AddAllowedProtocol) EventType() string { return TypeAddAllowedProtocol }

type SetProtocolPause struct {
	ProtocolId types.ProtocolId
	Paused     bool
}

func (SetProtocolPause) EventType() string { return TypeSetProtocolPause }

type ProtocolAddressChange struct {
	ProtocolId types.ProtocolId
	ChainId    types.ChainId
	Address    types.OpaqueAddr
	Removed    bool
	Proposer   bool
}

func (e ProtocolAddressChange) EventType() string {
	switch {
	case e.Proposer && e.Removed:
		return TypeRemoveAllowedProposerAddress
	case e.Proposer:
		return TypeAddAllowedProposerAddress
	case e.Removed:
		return TypeRemoveAllowedProtocolAddress
	default:
		return TypeAddAllowedProtocolAddress
	}
}

type UpdateTransmitters struct {
	ProtocolId types.ProtocolId
	ChainId    types.ChainId
	Added      []types.TransmitterId
	Removed    []types.TransmitterId
}

func (UpdateTransmitters) EventType() string { return TypeUpdateTransmitters }

type ExecutorChange struct {
	ProtocolId types.ProtocolId
	ChainId    types.ChainId
	Executor   types.OpaqueAddr
	Removed    bool
}

func (e ExecutorChange) EventType() string {
	if e.Removed {
		return TypeRemoveExecutor
	}
	return TypeAddExecutor
}

type SetConsensusTargetRate struct {
	ProtocolId types.ProtocolId
	Rate       uint32
}

func (SetConsensusTargetRate) EventType() string { return TypeSetConsensusTargetRate }

type Delegate struct {
	Delegator types.DelegatorId
	Agent     types.AgentId
	Amount    uint64
}

func (Delegate) EventType() string { return TypeDelegate }

type Withdraw struct {
	Delegator types.DelegatorId
	Agent     types.AgentId
	Amount    uint64
}

func (Withdraw) EventType() string { return TypeWithdraw }

type Redelegate struct {
	Delegator types.DelegatorId
	From      types.AgentId
	To        types.AgentId
	Amount    uint64
}

func (Redelegate) EventType() string { return TypeRedelegate }

type RewardClaimed struct {
	Delegator types.DelegatorId
	Agent     types.AgentId
	Amount    uint64
}

func (RewardClaimed) EventType() string { return TypeRewardClaimed }

type AgentRewardClaimed struct {
	Agent  types.AgentId
	Amount uint64
}

func (AgentRewardClaimed) EventType() string { return TypeAgentRewardClaimed }

type UpdateFee struct {
	Agent  types.AgentId
	FeeBps uint32
}

func (UpdateFee) EventType() string { return TypeUpdateFee }

type DepositPersonalStake struct {
	Agent  types.AgentId
	Amount uint64
}

func (DepositPersonalStake) EventType() string { return TypeDepositPersonalStake }

type RequestWithdrawPersonalStake struct {
	Agent  types.AgentId
	Amount uint64
}

func (RequestWithdrawPersonalStake) EventType() string {
	return TypeRequestWithdrawPersonalStake
}

// CancelWithdrawPersonalStake intentionally reuses
// TypeRequestWithdrawPersonalStake rather than a dedicated cancel event;
// see DESIGN.md for the reasoning.
type CancelWithdrawPersonalStake struct {
	Agent types.AgentId
}

func (CancelWithdrawPersonalStake) EventType() string {
	return TypeRequestWithdrawPersonalStake
}

type WithdrawPersonalStake struct {
	Agent  types.AgentId
	Amount uint64
}

func (WithdrawPersonalStake) EventType() string { return TypeWithdrawPersonalStake }

type Slashed struct {
	Agent  types.AgentId
	Amount uint64
	Reason string
}

func (Slashed) EventType() string { return TypeSlashed }

type DeclareProtocolSupport struct {
	Agent       types.AgentId
	ProtocolId  types.ProtocolId
	Transmitter types.TransmitterId
}

func (DeclareProtocolSupport) EventType() string { return TypeDeclareProtocolSupport }

type RevokeProtocolSupport struct {
	Agent      types.AgentId
	ProtocolId types.ProtocolId
}

func (RevokeProtocolSupport) EventType() string { return TypeRevokeProtocolSupport }

type BanAgent struct {
	Agent   types.AgentId
	Slashed uint64
}

func (BanAgent) EventType() string { return TypeBanAgent }

type NewStreamDataSpotter struct {
	ProtocolId types.ProtocolId
	SourceId   string
}

func (NewStreamDataSpotter) EventType() string { return TypeNewStreamDataSpotter }

type DataFinalized struct {
	ProtocolId types.ProtocolId
	SourceId   string
	DataKey    string
}

func (DataFinalized) EventType() string { return TypeDataFinalized }

type NewMerkleRoot struct {
	ProtocolId types.ProtocolId
	SourceId   string
	Root       [32]byte
}

func (NewMerkleRoot) EventType() string { return TypeNewMerkleRoot }

type ConsensusReadyToFinalize struct {
	ProtocolId types.ProtocolId
	SourceId   string
	DataKey    string
}

func (ConsensusReadyToFinalize) EventType() string { return TypeConsensusReadyToFinalize }
