package rpc

import (
	"photon/core/types"
	"photon/crypto"
	"photon/native/protocol"
	"photon/native/staking"
)

// OperationView is the narrow slice of OperationRegistry the HTTP surface
// reads.
type OperationView interface {
	Operation(opHash types.OpHash) (types.Operation, bool)
	ChainsOf(protocolId types.ProtocolId) []types.ChainId
	ChainState(protocolId types.ProtocolId, chainId types.ChainId) types.InitState
}

// ProtocolView is the narrow slice of ProtocolRegistry the HTTP surface
// reads.
type ProtocolView interface {
	Snapshot(protocolId types.ProtocolId) (protocol.ProtocolInfo, error)
}

// AgentView is the narrow slice of StakingLedger the HTTP surface reads.
type AgentView interface {
	AgentSnapshot(id types.AgentId) (staking.AgentInfo, error)
}

// StreamView is the narrow slice of StreamConsensus the HTTP surface
// reads.
type StreamView interface {
	MerkleRoot(protocolId types.ProtocolId, sourceId string) ([32]byte, bool)
	FinalizedValue(protocolId types.ProtocolId, sourceId, dataKey string) ([]byte, bool)
}

// RoundTrigger is the narrow slice of RoundCoordinator the admin group
// drives.
type RoundTrigger interface {
	Turn(caller crypto.Identity) error
}
