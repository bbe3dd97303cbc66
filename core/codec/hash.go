package codec

import (
	"photon/core/types"
	"photon/crypto"
)

// OperationHash computes the opHash every transmitter signs over: the
// canonical packing is hashed, then wrapped in the Ethereum personal-sign
// prefix and hashed again, so a standard personal-sign flow can be used by
// transmitters.
func OperationHash(d types.OperationData) types.OpHash {
	packed := PackOperationData(d)
	digest := crypto.EthSignedDigest(packed)
	return types.OpHash(digest)
}
