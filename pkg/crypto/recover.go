// Fabstir LLM Session - end-to-end encrypted inference session transport
// Copyright (C) 2026 Fabstir
//
// This file is part of the Fabstir LLM session library.
//
// This library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this library. If not, see <https://www.gnu.org/licenses/>.

package crypto

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fabstir/llm-session-go/pkg/errors"
)

// compactSigMagicOffset is the header offset used by the compact signature
// encoding for uncompressed recovery (recid 0..3 map to headers 27..30).
const compactSigMagicOffset = 27

// SignDigestCompact signs a 32-byte digest with the given private key and
// returns the compact r||s signature plus the two-bit recovery id.
func SignDigestCompact(priv *secp256k1.PrivateKey, digest [32]byte) (sig [SignatureSize]byte, recid byte, err error) {
	compact := ecdsa.SignCompact(priv, digest[:], false)
	if len(compact) != SignatureSize+1 {
		return sig, 0, errors.New(errors.CodeCryptoUnavailable, "unexpected compact signature length")
	}
	recid = compact[0] - compactSigMagicOffset
	copy(sig[:], compact[1:])
	return sig, recid, nil
}

// RecoverPubKey recovers the candidate public key from an r||s signature,
// its recovery id and the signed digest.
func RecoverPubKey(sig []byte, recid byte, digest [32]byte) (*secp256k1.PublicKey, error) {
	if len(sig) != SignatureSize {
		return nil, errors.Newf(errors.CodeInvalidInput, "signature is %d bytes, want %d", len(sig), SignatureSize)
	}
	if recid > 3 {
		return nil, errors.Newf(errors.CodeInvalidInput, "recovery id %d out of range", recid)
	}
	compact := make([]byte, SignatureSize+1)
	compact[0] = recid + compactSigMagicOffset
	copy(compact[1:], sig)

	pub, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return nil, errors.Wrap(errors.CodeRecoveryFailed, "no recoverable point", err)
	}
	return pub, nil
}

// VerifyDigest checks an r||s signature over a digest against a public key.
func VerifyDigest(sig []byte, digest [32]byte, pub *secp256k1.PublicKey) bool {
	if len(sig) != SignatureSize {
		return false
	}
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return false
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return false
	}
	return ecdsa.NewSignature(&r, &s).Verify(digest[:], pub)
}

// RecoverSigner reconstructs the handshake transcript exactly as the sealer
// built it, recovers the signing key from the compact signature and recid,
// re-verifies the signature against the recovered key, and derives the
// signer's checksummed address.
func RecoverSigner(ephPub, recipientPub, salt, nonce, info, aad, sig []byte, recid byte) (common.Address, error) {
	digest, err := TranscriptDigest(ephPub, recipientPub, salt, nonce, info, aad)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := RecoverPubKey(sig, recid, digest)
	if err != nil {
		return common.Address{}, err
	}
	// Defense in depth: the recovered key must also verify the signature.
	if !VerifyDigest(sig, digest, pub) {
		return common.Address{}, errors.New(errors.CodeVerificationFailed, "recovered key does not verify signature")
	}
	return AddressFromPubKey(pub), nil
}
