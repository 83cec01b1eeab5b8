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

// Package wire defines the canonical message envelopes of the session
// protocol. Field names, byte lengths and the big-integer "n" sentinel are
// part of the wire contract and are case-sensitive.
package wire

import (
	"encoding/json"

	"github.com/fabstir/llm-session-go/pkg/crypto"
	"github.com/fabstir/llm-session-go/pkg/errors"
)

// Alg identifies the handshake algorithm suite. Constant for this protocol.
const Alg = "ecdh-secp256k1-hkdf-sha256-xchacha20poly1305"

// SealedEnvelope is the authenticated ciphertext produced by the handshake
// sealing mode. All hex fields are lower-case without a 0x prefix.
type SealedEnvelope struct {
	EphPubHex     string `json:"ephPubHex"`
	SaltHex       string `json:"saltHex"`
	NonceHex      string `json:"nonceHex"`
	CiphertextHex string `json:"ciphertextHex"`
	SignatureHex  string `json:"signatureHex"`
	Recid         int    `json:"recid"`
	Alg           string `json:"alg"`
	Info          string `json:"info"`
	AADHex        string `json:"aadHex"`
}

// Validate checks every field against its stated length. Empty info and
// aadHex are valid and equivalent to zero-length byte arrays.
func (e *SealedEnvelope) Validate() error {
	if _, err := crypto.HexToBytesExact(e.EphPubHex, crypto.CompressedPubKeySize); err != nil {
		return errors.Wrap(errors.CodeInvalidInput, "ephPubHex", err)
	}
	if _, err := crypto.HexToBytesExact(e.SaltHex, crypto.SaltSize); err != nil {
		return errors.Wrap(errors.CodeInvalidInput, "saltHex", err)
	}
	if _, err := crypto.HexToBytesExact(e.NonceHex, crypto.NonceSize); err != nil {
		return errors.Wrap(errors.CodeInvalidInput, "nonceHex", err)
	}
	ct, err := crypto.HexToBytes(e.CiphertextHex)
	if err != nil {
		return errors.Wrap(errors.CodeInvalidInput, "ciphertextHex", err)
	}
	if len(ct) < crypto.TagSize {
		return errors.New(errors.CodeInvalidInput, "ciphertextHex shorter than the aead tag")
	}
	if _, err := crypto.HexToBytesExact(e.SignatureHex, crypto.SignatureSize); err != nil {
		return errors.Wrap(errors.CodeInvalidInput, "signatureHex", err)
	}
	if e.Recid < 0 || e.Recid > 3 {
		return errors.Newf(errors.CodeInvalidInput, "recid %d out of range", e.Recid)
	}
	if e.Alg != Alg {
		return errors.Newf(errors.CodeInvalidInput, "unknown alg %q", e.Alg)
	}
	if _, err := crypto.HexToBytes(e.Info); err != nil {
		return errors.Wrap(errors.CodeInvalidInput, "info", err)
	}
	if _, err := crypto.HexToBytes(e.AADHex); err != nil {
		return errors.Wrap(errors.CodeInvalidInput, "aadHex", err)
	}
	return nil
}

// envelope fields required on the wire. Historical names (sigHex) are not
// accepted; schema validation fails when signatureHex is absent.
var envelopeRequiredFields = []string{
	"ephPubHex", "saltHex", "nonceHex", "ciphertextHex", "signatureHex", "recid", "alg",
}

// ValidateEnvelopeJSON checks a raw JSON envelope for the exact canonical
// field names before decoding, rejecting legacy spellings.
func ValidateEnvelopeJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return errors.Wrap(errors.CodeInvalidInput, "envelope is not a JSON object", err)
	}
	for _, name := range envelopeRequiredFields {
		if _, ok := fields[name]; !ok {
			return errors.Newf(errors.CodeInvalidInput, "envelope missing required field %q", name)
		}
	}
	return nil
}

// HandshakePayload carries the client-chosen session parameters, sealed to
// the host during session init.
type HandshakePayload struct {
	JobID             *IntString `json:"jobId"`
	ModelName         string     `json:"modelName"`
	SessionKey        string     `json:"sessionKey"`
	PricePerToken     *BigInt    `json:"pricePerToken"`
	RecoveryPublicKey string     `json:"recoveryPublicKey,omitempty"`
}

// Validate checks field presence and hex lengths.
func (p *HandshakePayload) Validate() error {
	if p.JobID == nil {
		return errors.New(errors.CodeInvalidInput, "missing jobId")
	}
	if p.PricePerToken == nil {
		return errors.New(errors.CodeInvalidInput, "missing pricePerToken")
	}
	if _, err := crypto.HexToBytesExact(p.SessionKey, crypto.KeySize); err != nil {
		return errors.Wrap(errors.CodeInvalidInput, "sessionKey", err)
	}
	if p.RecoveryPublicKey != "" {
		if _, err := crypto.HexToBytesExact(p.RecoveryPublicKey, crypto.CompressedPubKeySize); err != nil {
			return errors.Wrap(errors.CodeInvalidInput, "recoveryPublicKey", err)
		}
	}
	return nil
}

// SymmetricMessage is a streaming frame sealed under the session key.
type SymmetricMessage struct {
	CiphertextHex string `json:"ciphertextHex"`
	NonceHex      string `json:"nonceHex"`
	AADHex        string `json:"aadHex"`
}

// SymmetricAAD is the associated data bound into every streaming frame.
// It travels hex-encoded in AADHex and decodes to UTF-8 JSON.
type SymmetricAAD struct {
	MessageIndex uint64 `json:"message_index"`
	Timestamp    int64  `json:"timestamp"`
}

// EncryptedRecord is a persisted conversation blob: a handshake-sealed
// payload attributable to its signer.
type EncryptedRecord struct {
	Payload        SealedEnvelope `json:"payload"`
	StoredAt       string         `json:"storedAt"`
	ConversationID string         `json:"conversationId"`
}

// Validate checks the record envelope and the 16-byte conversation id.
func (r *EncryptedRecord) Validate() error {
	if err := r.Payload.Validate(); err != nil {
		return err
	}
	if _, err := crypto.HexToBytesExact(r.ConversationID, 16); err != nil {
		return errors.Wrap(errors.CodeInvalidInput, "conversationId", err)
	}
	return nil
}
