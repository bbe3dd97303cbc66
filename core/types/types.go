// Package types defines the hub's core data model: identifiers,
// the cross-chain Operation/OperationData entities, and the bet/round
// vocabulary shared across native/* packages.
package types

import (
	"github.com/holiman/uint256"

	"photon/crypto"
)

const (
	// ProtocolIdLen is the byte width of a ProtocolId tag.
	ProtocolIdLen = 32
	// AddressMaxLen bounds OpaqueAddr and protocol/proposer addresses.
	AddressMaxLen = 128
	// ParamsMaxLen bounds OperationData.Params.
	ParamsMaxLen = 4096
	// SelectorMaxLen bounds a function selector payload.
	SelectorMaxLen = 32
)

// ProtocolId is a 32-byte application-chosen tag identifying a protocol.
type ProtocolId [32]byte

// IsZero reports whether the protocol id is unset.
func (p ProtocolId) IsZero() bool { return p == ProtocolId{} }

// String renders the protocol id trimmed of trailing NUL bytes, matching
// the common ASCII-name convention.
func (p ProtocolId) String() string {
	end := len(p)
	for end > 0 && p[end-1] == 0 {
		end--
	}
	return string(p[:end])
}

// ProtocolIdFromString right-pads an ASCII name into a ProtocolId.
func ProtocolIdFromString(name string) ProtocolId {
	var id ProtocolId
	copy(id[:], name)
	return id
}

// ChainId is an unsigned 256-bit chain identifier.
type ChainId struct{ v uint256.Int }

// NewChainId builds a ChainId from a uint64.
func NewChainId(v uint64) ChainId {
	var c ChainId
	c.v.SetUint64(v)
	return c
}

// Uint64 truncates the chain id to 64 bits (valid for every chain id in
// practice; the 256-bit width exists to accommodate non-EVM chains with
// larger identifier spaces).
func (c ChainId) Uint64() uint64 { return c.v.Uint64() }

// Equal reports value equality between two chain ids.
func (c ChainId) Equal(o ChainId) bool { return c.v.Eq(&o.v) }

// Bytes32 returns the big-endian 32-byte encoding used in the wire format.
func (c ChainId) Bytes32() [32]byte { return c.v.Bytes32() }

// ChainIdFromBytes32 decodes a big-endian 32-byte chain id.
func ChainIdFromBytes32(b [32]byte) ChainId {
	var c ChainId
	c.v.SetBytes(b[:])
	return c
}

// OpaqueAddr is a variable-length destination-chain address (1..128 bytes),
// wide enough to hold non-EVM public keys.
type OpaqueAddr []byte

// Valid reports whether the address respects the size bound.
func (a OpaqueAddr) Valid() bool { return len(a) >= 1 && len(a) <= AddressMaxLen }

// TransmitterId, AgentId, DelegatorId and WatcherId are all 20-byte
// identities recoverable from a signature; they share the crypto.Identity
// representation but are kept as distinct names for readability at call
// sites.
type (
	TransmitterId = crypto.Identity
	AgentId       = crypto.Identity
	DelegatorId   = crypto.Identity
	WatcherId     = crypto.Identity
)

// OpHash is the 256-bit digest of an operation's canonical encoding; it is
// the primary key under which Operation state is stored.
type OpHash [32]byte

// IsZero reports whether the hash is unset.
func (h OpHash) IsZero() bool { return h == OpHash{} }

// RoundId is a monotonically increasing round counter, starting at 1.
type RoundId uint64

// SelectorType identifies the encoding family of a function selector.
type SelectorType byte

const (
	SelectorEVMABI        SelectorType = 0
	SelectorSolanaAnchor  SelectorType = 1
	SelectorSolanaNative  SelectorType = 2
)

// Selector is a typed, opaque byte blob naming the destination-chain
// function to invoke.
type Selector struct {
	Type SelectorType
	Data []byte
}

// Valid reports whether the selector respects the size bound.
func (s Selector) Valid() bool { return len(s.Data) <= SelectorMaxLen }

// EVMSelector wraps a 4-byte ABI selector into its 32-byte carried form.
func EVMSelector(tag [4]byte) Selector {
	data := make([]byte, 32)
	copy(data, tag[:])
	return Selector{Type: SelectorEVMABI, Data: data}
}

// BetType distinguishes message-consensus bets from data-stream bets.
type BetType byte

const (
	BetMsg  BetType = 0
	BetData BetType = 1
)

func (t BetType) String() string {
	if t == BetData {
		return "data"
	}
	return "msg"
}

// InitState is the per-(protocol, chain) admission lifecycle.
type InitState byte

const (
	NotInited InitState = iota
	OnInition
	Inited
)

func (s InitState) String() string {
	switch s {
	case OnInition:
		return "on_inition"
	case Inited:
		return "inited"
	default:
		return "not_inited"
	}
}
