// Package crypto provides the hub's cryptographic facade: keccak digests,
// the Ethereum "personal" signing prefix, ECDSA signer recovery, and the
// 20-byte recoverable identities used as TransmitterId, AgentId,
// DelegatorId and WatcherId throughout the core.
package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// IdentityPrefix is the human-readable bech32 prefix used when rendering an
// Identity for CLI or RPC output.
type IdentityPrefix string

const (
	// HubPrefix is used for hub-native identities (agents, transmitters).
	HubPrefix IdentityPrefix = "photon"
)

// Identity is a 20-byte address-shaped identifier, recoverable from an ECDSA
// signature. It backs TransmitterId, AgentId, DelegatorId and WatcherId.
type Identity [20]byte

// IsZero reports whether the identity is the zero value.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// Bytes returns a defensive copy of the identity's bytes.
func (id Identity) Bytes() []byte {
	out := make([]byte, 20)
	copy(out, id[:])
	return out
}

// String renders the identity using the hub's bech32 prefix.
func (id Identity) String() string {
	conv, err := bech32.ConvertBits(id[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(HubPrefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// IdentityFromBytes builds an Identity from a 20-byte slice.
func IdentityFromBytes(b []byte) (Identity, error) {
	var id Identity
	if len(b) != 20 {
		return id, fmt.Errorf("crypto: identity must be 20 bytes, got %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// DecodeIdentity parses a bech32-encoded identity string.
func DecodeIdentity(s string) (Identity, error) {
	_, decoded, err := bech32.Decode(s)
	if err != nil {
		return Identity{}, fmt.Errorf("crypto: invalid bech32 identity: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Identity{}, fmt.Errorf("crypto: error converting bits: %w", err)
	}
	return IdentityFromBytes(conv)
}

// PrivateKey wraps an ECDSA private key belonging to a transmitter, watcher
// or agent operator.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// GeneratePrivateKey creates a new secp256k1 private key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromBytes decodes a raw secp256k1 scalar into a PrivateKey.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the raw scalar encoding of the private key.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

// Identity derives the 20-byte recoverable identity for this key.
func (k *PrivateKey) Identity() Identity {
	addr := ethcrypto.PubkeyToAddress(k.PublicKey)
	var id Identity
	copy(id[:], addr.Bytes())
	return id
}

// Sign produces a 65-byte [R || S || V] signature over a 32-byte digest,
// suitable for Recover below.
func (k *PrivateKey) Sign(digest [32]byte) (Signature, error) {
	sig, err := ethcrypto.Sign(digest[:], k.PrivateKey)
	if err != nil {
		return Signature{}, err
	}
	var out Signature
	copy(out[:], sig)
	return out, nil
}
