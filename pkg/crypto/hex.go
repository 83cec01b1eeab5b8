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

// Package crypto implements the deterministic primitives of the session
// protocol: hex codec, secp256k1 ECDH, HKDF-SHA256, XChaCha20-Poly1305,
// the signed handshake transcript and Ethereum-style address derivation.
//
// All functions are pure; none hold shared mutable state.
package crypto

import (
	"encoding/hex"
	"strings"

	"github.com/fabstir/llm-session-go/pkg/errors"
)

// BytesToHex encodes b as a lower-case hex string without a 0x prefix.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// HexToBytes decodes a hex string, tolerating an optional 0x prefix.
// Odd-length or non-hex input yields an InvalidInput error.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		return nil, errors.New(errors.CodeInvalidInput, "odd-length hex string")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInvalidInput, "malformed hex string", err)
	}
	return b, nil
}

// HexToBytesExact decodes a hex string and enforces the decoded length.
func HexToBytesExact(s string, want int) ([]byte, error) {
	b, err := HexToBytes(s)
	if err != nil {
		return nil, err
	}
	if len(b) != want {
		return nil, errors.Newf(errors.CodeInvalidInput, "hex field decodes to %d bytes, want %d", len(b), want)
	}
	return b, nil
}
