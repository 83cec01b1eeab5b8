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

	"github.com/fabstir/llm-session-go/pkg/errors"
)

// Byte lengths fixed by the wire contract.
const (
	CompressedPubKeySize = 33
	SharedSecretSize     = 32
	SaltSize             = 16
	KeySize              = 32
	SignatureSize        = 64
)

// SharedSecret computes the 32-byte x-coordinate of d*P on secp256k1.
func SharedSecret(priv *secp256k1.PrivateKey, pub *secp256k1.PublicKey) []byte {
	return secp256k1.GenerateSharedSecret(priv, pub)
}

// ParseCompressedPubKey parses a 33-byte compressed secp256k1 public key.
func ParseCompressedPubKey(b []byte) (*secp256k1.PublicKey, error) {
	if len(b) != CompressedPubKeySize {
		return nil, errors.Newf(errors.CodeInvalidInput, "compressed public key is %d bytes, want %d", len(b), CompressedPubKeySize)
	}
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInvalidInput, "invalid secp256k1 point", err)
	}
	return pub, nil
}
