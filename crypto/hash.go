package crypto

import (
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrSignatureNotRecoverable is returned when a signature cannot be resolved
// to a public key (malformed R/S/V components).
var ErrSignatureNotRecoverable = errors.New("crypto: signature not recoverable")

// personalPrefix is the Ethereum "personal_sign" prefix applied before
// hashing a message digest a second time, so signers can use a standard
// personal-sign flow against an already-hashed payload.
const personalPrefix = "\x19Ethereum Signed Message:\n32"

// Signature is a 65-byte [R(32) || S(32) || V(1)] recoverable ECDSA
// signature, as produced by PrivateKey.Sign.
type Signature [65]byte

// Keccak256 returns the 32-byte Keccak-256 digest of the concatenation of
// the supplied byte slices.
func Keccak256(data ...[]byte) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(data...))
	return out
}

// EthSignedDigest computes keccak("\x19Ethereum Signed Message:\n32" ||
// keccak(msg)), the digest transmitters actually sign over.
func EthSignedDigest(msg []byte) [32]byte {
	inner := Keccak256(msg)
	return Keccak256([]byte(personalPrefix), inner[:])
}

// Recover resolves the signer identity from a digest and signature. A
// signature that does not recover to a valid public key (wrong length,
// invalid recovery id, malformed curve point) yields
// ErrSignatureNotRecoverable rather than a zero identity, so callers never
// mistake an unrecoverable signature for the zero identity.
func Recover(digest [32]byte, sig Signature) (Identity, error) {
	pub, err := ethcrypto.SigToPub(digest[:], sig[:])
	if err != nil {
		return Identity{}, ErrSignatureNotRecoverable
	}
	addr := ethcrypto.PubkeyToAddress(*pub)
	var id Identity
	copy(id[:], addr.Bytes())
	return id, nil
}

// VerifySigner recovers the signer of digest/sig and reports whether it
// matches the declared sender. Non-recoverable signatures are rejected.
func VerifySigner(digest [32]byte, sig Signature, declared Identity) bool {
	recovered, err := Recover(digest, sig)
	if err != nil {
		return false
	}
	return recovered == declared
}
