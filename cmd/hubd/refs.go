package main

// The hub's native packages are wired as a ring: ProtocolRegistry hands
// newly admitted protocols to OperationRegistry, OperationRegistry places
// bets through BetBook and emits governance messages through
// EndpointEmitter, and BetBook reads protocol state back from
// ProtocolRegistry. Each of those three edges closes a cycle that cannot
// be satisfied by constructor order alone, so the far end of each cyclic
// edge is a ref: a struct implementing the narrow interface the near side
// expects, whose target is filled in once the far side is actually built.
// Nothing calls through a ref during construction, only afterwards once
// every registry exists, so the nil check is defensive, not load-bearing.

import (
	"photon/core/types"
	"photon/native/bet"
	"photon/native/endpoint"
	"photon/native/operation"
)

type operationRef struct {
	target *operation.Registry
}

func (r *operationRef) AdmitProtocol(protocolId types.ProtocolId) error {
	return r.target.AdmitProtocol(protocolId)
}

func (r *operationRef) EmitConsensusRateChange(protocolId types.ProtocolId, chainId types.ChainId, rateBps uint32) error {
	return r.target.EmitConsensusRateChange(protocolId, chainId, rateBps)
}

func (r *operationRef) ChainsOf(protocolId types.ProtocolId) []types.ChainId {
	return r.target.ChainsOf(protocolId)
}

func (r *operationRef) ClearTransmitters(protocolId types.ProtocolId) error {
	return r.target.ClearTransmitters(protocolId)
}

type betRef struct {
	target *bet.Book
}

func (r *betRef) PlaceBet(protocolId types.ProtocolId, transmitter types.TransmitterId, betType types.BetType, opHash types.OpHash) error {
	return r.target.PlaceBet(protocolId, transmitter, betType, opHash)
}

func (r *betRef) RefundBet(protocolId types.ProtocolId, opHash types.OpHash, transmitter types.TransmitterId) error {
	return r.target.RefundBet(protocolId, opHash, transmitter)
}

func (r *betRef) ReleaseBetsAndReward(protocolId types.ProtocolId, winnerTransmitters []types.TransmitterId, opHash types.OpHash) error {
	return r.target.ReleaseBetsAndReward(protocolId, winnerTransmitters, opHash)
}

type endpointRef struct {
	target *endpoint.Emitter
}

func (r *endpointRef) Emit(chainId types.ChainId, selector types.Selector, params []byte) error {
	return r.target.Emit(chainId, selector, params)
}
