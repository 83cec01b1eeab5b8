// Package keys holds the client identity: a secp256k1 keypair whose
// Ethereum-style address is the on-chain allowlist entry, plus the Signer
// capability set external wallets implement.
package keys

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fabstir/llm-session-go/pkg/crypto"
	"github.com/fabstir/llm-session-go/pkg/errors"
)

// Signer is the wallet capability set the engine consumes: a stable owner
// address and ECDSA signatures over 32-byte digests with a recovery id.
type Signer interface {
	// Address returns the 20-byte owner address.
	Address() common.Address

	// SignDigest signs a 32-byte digest, returning the compact r||s
	// signature and its recovery id.
	SignDigest(digest [32]byte) (sig [crypto.SignatureSize]byte, recid byte, err error)
}

// KeyPair is an in-process secp256k1 identity. It implements Signer and
// additionally exposes the raw private scalar for ECDH, which the engine
// uses when available. The private key is reachable only through Priv.
type KeyPair struct {
	priv *secp256k1.PrivateKey
	pub  *secp256k1.PublicKey
	addr common.Address
}

// Generate creates a fresh random keypair.
func Generate() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, errors.Wrap(errors.CodeCryptoUnavailable, "secp256k1 key generation failed", err)
	}
	return fromPrivate(priv), nil
}

// FromHex builds a keypair from a 32-byte private scalar in hex.
func FromHex(s string) (*KeyPair, error) {
	b, err := crypto.HexToBytesExact(s, 32)
	if err != nil {
		return nil, err
	}
	return FromSeed(b)
}

// FromSeed derives a keypair from arbitrary seed bytes. A 32-byte seed is
// taken as the scalar itself; seeds of any other length are SHA-256 hashed
// first. Zero or overflowing candidates are re-hashed so the result is
// always a valid non-zero scalar.
func FromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) == 0 {
		return nil, errors.New(errors.CodeInvalidInput, "empty seed")
	}
	candidate := seed
	if len(candidate) != 32 {
		sum := sha256.Sum256(candidate)
		candidate = sum[:]
	}
	for i := 0; i < 256; i++ {
		var scalar secp256k1.ModNScalar
		overflow := scalar.SetByteSlice(candidate)
		if !overflow && !scalar.IsZero() {
			return fromPrivate(secp256k1.NewPrivateKey(&scalar)), nil
		}
		sum := sha256.Sum256(candidate)
		candidate = sum[:]
	}
	return nil, errors.New(errors.CodeCryptoUnavailable, "could not map seed onto scalar field")
}

func fromPrivate(priv *secp256k1.PrivateKey) *KeyPair {
	pub := priv.PubKey()
	return &KeyPair{
		priv: priv,
		pub:  pub,
		addr: crypto.AddressFromPubKey(pub),
	}
}

// Address returns the cached 20-byte owner address.
func (kp *KeyPair) Address() common.Address {
	return kp.addr
}

// PublicKey returns the compressed 33-byte public key.
func (kp *KeyPair) PublicKey() []byte {
	return kp.pub.SerializeCompressed()
}

// Pub returns the parsed public key.
func (kp *KeyPair) Pub() *secp256k1.PublicKey {
	return kp.pub
}

// Priv returns the private key for ECDH. Callers must not retain it beyond
// the operation at hand.
func (kp *KeyPair) Priv() *secp256k1.PrivateKey {
	return kp.priv
}

// SignDigest implements Signer using the compact recoverable encoding.
func (kp *KeyPair) SignDigest(digest [32]byte) ([crypto.SignatureSize]byte, byte, error) {
	return crypto.SignDigestCompact(kp.priv, digest)
}
