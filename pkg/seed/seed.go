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

// Package seed derives the deterministic object-store credential: a
// 32-byte entropy scoped to owner address and chain id, mapped to a
// 15-token phrase. No signing popup is required; the derivation is stable
// for a given address and chain.
package seed

import (
	"crypto/sha256"
	"encoding/binary"
	"io"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/hkdf"

	"github.com/fabstir/llm-session-go/pkg/errors"
)

const (
	entropyLabel = "fabstir-llm-storage-seed-v1"
	phraseLabel  = "fabstir-llm-storage-phrase-v1"

	// PhraseTokens is the number of tokens in a storage phrase.
	PhraseTokens = 15

	tokenBytes = 3
)

// DeriveEntropy returns the 32-byte storage entropy for an owner address
// on a chain: HKDF-SHA256 over the lower-cased address with the chain id
// as salt and a fixed label as context.
func DeriveEntropy(owner common.Address, chainID uint64) ([]byte, error) {
	ikm := []byte(strings.ToLower(owner.Hex()))
	salt := make([]byte, 8)
	binary.BigEndian.PutUint64(salt, chainID)

	entropy := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte(entropyLabel)), entropy); err != nil {
		return nil, errors.Wrap(errors.CodeCryptoUnavailable, "entropy derivation failed", err)
	}
	return entropy, nil
}

// Phrase maps 32-byte entropy to a 15-token phrase. The entropy is
// expanded to 45 bytes and each 3-byte group becomes one base58 token.
func Phrase(entropy []byte) (string, error) {
	if len(entropy) != 32 {
		return "", errors.Newf(errors.CodeInvalidInput, "entropy is %d bytes, want 32", len(entropy))
	}
	expanded := make([]byte, PhraseTokens*tokenBytes)
	if _, err := io.ReadFull(hkdf.New(sha256.New, entropy, nil, []byte(phraseLabel)), expanded); err != nil {
		return "", errors.Wrap(errors.CodeCryptoUnavailable, "phrase expansion failed", err)
	}

	tokens := make([]string, PhraseTokens)
	for i := range tokens {
		tokens[i] = base58.Encode(expanded[i*tokenBytes : (i+1)*tokenBytes])
	}
	return strings.Join(tokens, " "), nil
}

// phraseCache is the only process-wide state: lower-cased owner address to
// stored phrase. Initialized lazily, evicted on explicit request, never
// shared across owner addresses.
var (
	cacheMu     sync.Mutex
	phraseCache map[string]string
)

// PhraseForOwner derives (or returns the cached) storage phrase for an
// owner on a chain. The cache is keyed by owner address only: once an
// owner's phrase is cached, later calls return it whatever chainID is given.
func PhraseForOwner(owner common.Address, chainID uint64) (string, error) {
	key := strings.ToLower(owner.Hex())

	cacheMu.Lock()
	if phraseCache != nil {
		if phrase, ok := phraseCache[key]; ok {
			cacheMu.Unlock()
			return phrase, nil
		}
	}
	cacheMu.Unlock()

	entropy, err := DeriveEntropy(owner, chainID)
	if err != nil {
		return "", err
	}
	phrase, err := Phrase(entropy)
	if err != nil {
		return "", err
	}

	cacheMu.Lock()
	if phraseCache == nil {
		phraseCache = make(map[string]string)
	}
	phraseCache[key] = phrase
	cacheMu.Unlock()
	return phrase, nil
}

// Evict drops the cached phrase for an owner.
func Evict(owner common.Address) {
	cacheMu.Lock()
	if phraseCache != nil {
		delete(phraseCache, strings.ToLower(owner.Hex()))
	}
	cacheMu.Unlock()
}
