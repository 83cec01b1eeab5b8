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
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/fabstir/llm-session-go/pkg/errors"
)

// DeriveKey runs HKDF-SHA256 extract-then-expand over ikm with the given
// salt and info, producing a 32-byte symmetric key. A nil info is treated
// as a zero-length context label.
func DeriveKey(salt, ikm, info []byte) ([]byte, error) {
	if len(ikm) == 0 {
		return nil, errors.New(errors.CodeInvalidInput, "empty input key material")
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, info), key); err != nil {
		return nil, errors.Wrap(errors.CodeCryptoUnavailable, "hkdf expansion failed", err)
	}
	return key, nil
}
