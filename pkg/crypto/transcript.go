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
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/fabstir/llm-session-go/pkg/errors"
)

// MaxTranscriptVarField bounds the variable-length transcript inputs
// (info and aad). Fixed-length fields are checked exactly.
const MaxTranscriptVarField = 4096

// Transcript concatenates the six handshake fields in wire order:
// ephemeral pub || recipient pub || salt || nonce || info || aad.
// The ordering is part of the wire contract; empty info and aad contribute
// zero bytes. Both the sealer and the recoverer must build identical bytes.
func Transcript(ephPub, recipientPub, salt, nonce, info, aad []byte) ([]byte, error) {
	if len(ephPub) != CompressedPubKeySize || len(recipientPub) != CompressedPubKeySize {
		return nil, errors.New(errors.CodeInvalidInput, "transcript public keys must be 33 bytes")
	}
	if len(salt) != SaltSize {
		return nil, errors.Newf(errors.CodeInvalidInput, "transcript salt is %d bytes, want %d", len(salt), SaltSize)
	}
	if len(nonce) != NonceSize {
		return nil, errors.Newf(errors.CodeInvalidInput, "transcript nonce is %d bytes, want %d", len(nonce), NonceSize)
	}
	if len(info) > MaxTranscriptVarField || len(aad) > MaxTranscriptVarField {
		return nil, errors.New(errors.CodeInvalidInput, "transcript info/aad exceeds bound")
	}

	t := make([]byte, 0, 2*CompressedPubKeySize+SaltSize+NonceSize+len(info)+len(aad))
	t = append(t, ephPub...)
	t = append(t, recipientPub...)
	t = append(t, salt...)
	t = append(t, nonce...)
	t = append(t, info...)
	t = append(t, aad...)
	return t, nil
}

// TranscriptDigest returns keccak256 over the transcript bytes. The digest
// is the message fed to ECDSA signing and recovery.
func TranscriptDigest(ephPub, recipientPub, salt, nonce, info, aad []byte) ([32]byte, error) {
	var digest [32]byte
	t, err := Transcript(ephPub, recipientPub, salt, nonce, info, aad)
	if err != nil {
		return digest, err
	}
	copy(digest[:], ethcrypto.Keccak256(t))
	return digest, nil
}
