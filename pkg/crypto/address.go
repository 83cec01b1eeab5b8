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
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressFromPubKey derives the Ethereum-style 20-byte address from a
// secp256k1 public key: keccak256 over the 64 uncompressed coordinate
// bytes, low 20 bytes.
func AddressFromPubKey(pub *secp256k1.PublicKey) common.Address {
	uncompressed := pub.SerializeUncompressed()
	return common.BytesToAddress(ethcrypto.Keccak256(uncompressed[1:])[12:])
}

// ChecksumAddress formats an address with the EIP-55 mixed-case checksum.
func ChecksumAddress(addr common.Address) string {
	return addr.Hex()
}
