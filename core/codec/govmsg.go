package codec

import (
	"photon/core/types"
)

// Governance selectors are the stable EVM-style 4-byte tags every
// destination chain's gov contract dispatches on, regardless of the
// chain's own native addressing scheme. OperationRegistry picks one of
// these per admin change and emits exactly one operation carrying it.
var (
	SelectorAddAllowedProtocol           = types.EVMSelector([4]byte{0x45, 0xa0, 0x04, 0xb9})
	SelectorAddAllowedProtocolAddress    = types.EVMSelector([4]byte{0xd2, 0x96, 0xa0, 0xff})
	SelectorRemoveAllowedProtocolAddress = types.EVMSelector([4]byte{0xb0, 0xa4, 0xca, 0x98})
	SelectorAddAllowedProposerAddress    = types.EVMSelector([4]byte{0xce, 0x09, 0x40, 0xa5})
	SelectorRemoveAllowedProposerAddress = types.EVMSelector([4]byte{0xb8, 0xe5, 0xf3, 0xf4})
	SelectorAddExecutor                  = types.EVMSelector([4]byte{0xe0, 0xaa, 0xfb, 0x68})
	SelectorRemoveExecutor               = types.EVMSelector([4]byte{0x04, 0xfa, 0x38, 0x4a})
	SelectorAddTransmitters              = types.EVMSelector([4]byte{0x6c, 0x5f, 0x56, 0x66})
	SelectorRemoveTransmitters           = types.EVMSelector([4]byte{0x52, 0x06, 0xda, 0x70})
	SelectorUpdateTransmitters           = types.EVMSelector([4]byte{0x65, 0x4b, 0x46, 0xe1})
	SelectorSetConsensusTargetRate       = types.EVMSelector([4]byte{0x97, 0x0b, 0x61, 0x09})
)

func packTransmitterList(b *Builder, ids []types.TransmitterId) {
	b.WriteUint32(uint32(len(ids)))
	for _, id := range ids {
		b.WriteBytes(id[:])
	}
}

// PackAddAllowedProtocol encodes the AddAllowedProtocol{protocolId,
// consensusTargetRate, transmitters[]} payload sent once a protocol
// transitions a chain to OnInition.
func PackAddAllowedProtocol(protocolId types.ProtocolId, consensusRate uint32, transmitters []types.TransmitterId) []byte {
	b := NewBuilder()
	b.WriteBytes(protocolId[:])
	b.WriteUint32(consensusRate)
	packTransmitterList(b, transmitters)
	return b.Bytes()
}

// PackAddOrRemoveActorAddress encodes AddOrRemoveActorAddress{protocolId,
// actorAddress}, reused for both protocol and proposer addresses, add or
// remove (the selector alone distinguishes the four variants).
func PackAddOrRemoveActorAddress(protocolId types.ProtocolId, actor types.OpaqueAddr) []byte {
	b := NewBuilder()
	b.WriteBytes(protocolId[:])
	b.WriteByte(byte(len(actor)))
	b.WriteBytes(actor)
	return b.Bytes()
}

// PackAddOrRemoveExecutor encodes AddOrRemoveExecutor{protocolId, executor}.
func PackAddOrRemoveExecutor(protocolId types.ProtocolId, executor types.OpaqueAddr) []byte {
	b := NewBuilder()
	b.WriteBytes(protocolId[:])
	b.WriteByte(byte(len(executor)))
	b.WriteBytes(executor)
	return b.Bytes()
}

// PackAddOrRemoveTransmitters encodes AddOrRemoveTransmitters{protocolId,
// transmitters[]}, used for the narrowest single add-only or remove-only
// gov message.
func PackAddOrRemoveTransmitters(protocolId types.ProtocolId, transmitters []types.TransmitterId) []byte {
	b := NewBuilder()
	b.WriteBytes(protocolId[:])
	packTransmitterList(b, transmitters)
	return b.Bytes()
}

// PackUpdateTransmitters encodes UpdateTransmitters{protocolId, toAdd[],
// toRemove[]}, used when a diff has both additions and removals and a
// single combined message is cheaper than two.
func PackUpdateTransmitters(protocolId types.ProtocolId, toAdd, toRemove []types.TransmitterId) []byte {
	b := NewBuilder()
	b.WriteBytes(protocolId[:])
	packTransmitterList(b, toAdd)
	packTransmitterList(b, toRemove)
	return b.Bytes()
}

// PackSetConsensusTargetRate encodes SetConsensusTargetRate{protocolId,
// consensusTargetRate}.
func PackSetConsensusTargetRate(protocolId types.ProtocolId, rateBps uint32) []byte {
	b := NewBuilder()
	b.WriteBytes(protocolId[:])
	b.WriteUint32(rateBps)
	return b.Bytes()
}

// PackSetDAOProtocolOwner encodes SetDAOProtocolOwner{protocolId,
// protocolOwner}.
func PackSetDAOProtocolOwner(protocolId types.ProtocolId, owner types.OpaqueAddr) []byte {
	b := NewBuilder()
	b.WriteBytes(protocolId[:])
	b.WriteByte(byte(len(owner)))
	b.WriteBytes(owner)
	return b.Bytes()
}
