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

// Package engine implements the encryption engine: the three sealing modes
// of the protocol (authenticated handshake, symmetric streaming, persisted
// records) over one owned identity. The engine is read-only after
// construction and safe to share across sessions; failures never mutate
// engine state.
package engine

import (
	"encoding/json"
	"time"

	"github.com/awnumar/memguard"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/fabstir/llm-session-go/internal/metrics"
	"github.com/fabstir/llm-session-go/pkg/crypto"
	"github.com/fabstir/llm-session-go/pkg/crypto/keys"
	"github.com/fabstir/llm-session-go/pkg/errors"
	"github.com/fabstir/llm-session-go/pkg/wire"
)

// Engine owns the identity private scalar and exposes the protocol's
// sealing modes. The private key is never returned by reference.
type Engine struct {
	signer   keys.Signer
	ecdhKey  *keys.KeyPair
	recovery *keys.KeyPair // nil: recovery key aliases the identity key
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithRecoveryKeyPair installs a recovery identity distinct from the
// static key. By default the recovery public key aliases the identity key.
func WithRecoveryKeyPair(kp *keys.KeyPair) Option {
	return func(e *Engine) { e.recovery = kp }
}

// New builds an engine from an in-process keypair. The keypair serves both
// signing and ECDH.
func New(kp *keys.KeyPair, opts ...Option) *Engine {
	e := &Engine{signer: kp, ecdhKey: kp}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewFromSigner builds an engine around an external wallet signer that
// cannot expose its private key. ECDH runs over a stable keypair derived
// from the provided seed; signatures go through the wallet.
func NewFromSigner(signer keys.Signer, seed []byte, opts ...Option) (*Engine, error) {
	kp, err := keys.FromSeed(seed)
	if err != nil {
		return nil, err
	}
	e := &Engine{signer: signer, ecdhKey: kp}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Address returns the signing identity's 20-byte address.
func (e *Engine) Address() common.Address {
	return e.signer.Address()
}

// PublicKey returns the stable 33-byte compressed public key used for ECDH.
func (e *Engine) PublicKey() []byte {
	return e.ecdhKey.PublicKey()
}

// RecoveryPublicKey returns the key counterparties seal recovery artifacts
// to. It aliases the identity key unless a separate pair was installed.
func (e *Engine) RecoveryPublicKey() []byte {
	if e.recovery != nil {
		return e.recovery.PublicKey()
	}
	return e.ecdhKey.PublicKey()
}

// SealOptions carries the optional HKDF context label and AEAD associated
// data for handshake sealing.
type SealOptions struct {
	Info []byte
	AAD  []byte
}

// SealHandshake serializes value as canonical JSON, seals it to the
// recipient's static public key and signs the transcript with the owner's
// long-term key.
func (e *Engine) SealHandshake(recipientPub *secp256k1.PublicKey, value interface{}, opts SealOptions) (*wire.SealedEnvelope, error) {
	start := time.Now()
	env, err := e.sealHandshake(recipientPub, value, opts)
	observe("seal_handshake", start, err)
	return env, err
}

func (e *Engine) sealHandshake(recipientPub *secp256k1.PublicKey, value interface{}, opts SealOptions) (*wire.SealedEnvelope, error) {
	if recipientPub == nil {
		return nil, errors.New(errors.CodeInvalidInput, "nil recipient public key")
	}
	plaintext, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInvalidInput, "payload not serializable", err)
	}

	eph, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, errors.Wrap(errors.CodeCryptoUnavailable, "ephemeral key generation failed", err)
	}
	ephPub := eph.PubKey().SerializeCompressed()
	recipientBytes := recipientPub.SerializeCompressed()

	salt, err := crypto.RandomBytes(crypto.SaltSize)
	if err != nil {
		return nil, err
	}
	nonce, err := crypto.RandomNonce()
	if err != nil {
		return nil, err
	}

	ss := crypto.SharedSecret(eph, recipientPub)
	defer memguard.WipeBytes(ss)
	eph.Zero()

	key, err := crypto.DeriveKey(salt, ss, opts.Info)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(key)

	digest, err := crypto.TranscriptDigest(ephPub, recipientBytes, salt, nonce, opts.Info, opts.AAD)
	if err != nil {
		return nil, err
	}
	sig, recid, err := e.signer.SignDigest(digest)
	if err != nil {
		return nil, errors.Wrap(errors.CodeCryptoUnavailable, "transcript signing failed", err)
	}

	ciphertext, err := crypto.AEADSeal(key, nonce, plaintext, opts.AAD)
	if err != nil {
		return nil, err
	}

	return &wire.SealedEnvelope{
		EphPubHex:     crypto.BytesToHex(ephPub),
		SaltHex:       crypto.BytesToHex(salt),
		NonceHex:      crypto.BytesToHex(nonce),
		CiphertextHex: crypto.BytesToHex(ciphertext),
		SignatureHex:  crypto.BytesToHex(sig[:]),
		Recid:         int(recid),
		Alg:           wire.Alg,
		Info:          crypto.BytesToHex(opts.Info),
		AADHex:        crypto.BytesToHex(opts.AAD),
	}, nil
}

// Opened is the result of opening a handshake envelope: the decrypted
// payload bytes and the recovered, checksummed sender address.
type Opened struct {
	Data          []byte
	SenderAddress common.Address
}

// OpenHandshake decrypts an envelope sealed to this engine's static key
// and recovers the sender's address from the transcript signature.
func (e *Engine) OpenHandshake(env *wire.SealedEnvelope) (*Opened, error) {
	start := time.Now()
	opened, err := e.openHandshake(env)
	observe("open_handshake", start, err)
	return opened, err
}

func (e *Engine) openHandshake(env *wire.SealedEnvelope) (*Opened, error) {
	return e.openWith(e.ecdhKey, env)
}

// openWith decrypts an envelope sealed to the given keypair's public key.
func (e *Engine) openWith(kp *keys.KeyPair, env *wire.SealedEnvelope) (*Opened, error) {
	if env == nil {
		return nil, errors.New(errors.CodeInvalidInput, "nil envelope")
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}

	ephPubBytes, _ := crypto.HexToBytes(env.EphPubHex)
	salt, _ := crypto.HexToBytes(env.SaltHex)
	nonce, _ := crypto.HexToBytes(env.NonceHex)
	ciphertext, _ := crypto.HexToBytes(env.CiphertextHex)
	sig, _ := crypto.HexToBytes(env.SignatureHex)
	info, _ := crypto.HexToBytes(env.Info)
	aad, _ := crypto.HexToBytes(env.AADHex)

	ephPub, err := crypto.ParseCompressedPubKey(ephPubBytes)
	if err != nil {
		return nil, err
	}

	ss := crypto.SharedSecret(kp.Priv(), ephPub)
	defer memguard.WipeBytes(ss)

	key, err := crypto.DeriveKey(salt, ss, info)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(key)

	plaintext, err := crypto.AEADOpen(key, nonce, ciphertext, aad)
	if err != nil {
		return nil, err
	}

	sender, err := crypto.RecoverSigner(ephPubBytes, kp.PublicKey(), salt, nonce, info, aad, sig, byte(env.Recid))
	if err != nil {
		return nil, err
	}

	return &Opened{Data: plaintext, SenderAddress: sender}, nil
}

// OpenHandshakePayload opens an envelope and decodes the session
// parameters, restoring big-integer sentinel fields.
func (e *Engine) OpenHandshakePayload(env *wire.SealedEnvelope) (*wire.HandshakePayload, common.Address, error) {
	opened, err := e.OpenHandshake(env)
	if err != nil {
		return nil, common.Address{}, err
	}
	var payload wire.HandshakePayload
	if err := json.Unmarshal(opened.Data, &payload); err != nil {
		return nil, common.Address{}, errors.Wrap(errors.CodeInvalidInput, "malformed handshake payload", err)
	}
	return &payload, opened.SenderAddress, nil
}

// SealSymmetric seals one streaming frame under the session key, binding
// the message index and a millisecond timestamp into the AEAD AAD.
func (e *Engine) SealSymmetric(sessionKey, plaintext []byte, messageIndex uint64) (*wire.SymmetricMessage, error) {
	start := time.Now()
	msg, err := e.sealSymmetric(sessionKey, plaintext, messageIndex)
	observe("seal_symmetric", start, err)
	return msg, err
}

func (e *Engine) sealSymmetric(sessionKey, plaintext []byte, messageIndex uint64) (*wire.SymmetricMessage, error) {
	nonce, err := crypto.RandomNonce()
	if err != nil {
		return nil, err
	}
	aad, err := json.Marshal(wire.SymmetricAAD{
		MessageIndex: messageIndex,
		Timestamp:    time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, errors.Wrap(errors.CodeCryptoUnavailable, "aad serialization failed", err)
	}
	ciphertext, err := crypto.AEADSeal(sessionKey, nonce, plaintext, aad)
	if err != nil {
		return nil, err
	}
	return &wire.SymmetricMessage{
		CiphertextHex: crypto.BytesToHex(ciphertext),
		NonceHex:      crypto.BytesToHex(nonce),
		AADHex:        crypto.BytesToHex(aad),
	}, nil
}

// OpenSymmetric is the inverse of SealSymmetric. Tag failures, tampered
// AAD and malformed fields all surface as DecryptionFailed.
func (e *Engine) OpenSymmetric(sessionKey []byte, msg *wire.SymmetricMessage) ([]byte, *wire.SymmetricAAD, error) {
	start := time.Now()
	plaintext, aad, err := e.openSymmetric(sessionKey, msg)
	observe("open_symmetric", start, err)
	return plaintext, aad, err
}

func (e *Engine) openSymmetric(sessionKey []byte, msg *wire.SymmetricMessage) ([]byte, *wire.SymmetricAAD, error) {
	if msg == nil {
		return nil, nil, errors.New(errors.CodeDecryptionFailed, "nil symmetric message")
	}
	nonce, err := crypto.HexToBytesExact(msg.NonceHex, crypto.NonceSize)
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodeDecryptionFailed, "malformed nonce", err)
	}
	ciphertext, err := crypto.HexToBytes(msg.CiphertextHex)
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodeDecryptionFailed, "malformed ciphertext", err)
	}
	aadBytes, err := crypto.HexToBytes(msg.AADHex)
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodeDecryptionFailed, "malformed aad", err)
	}

	plaintext, err := crypto.AEADOpen(sessionKey, nonce, ciphertext, aadBytes)
	if err != nil {
		return nil, nil, err
	}

	var aad wire.SymmetricAAD
	if err := json.Unmarshal(aadBytes, &aad); err != nil {
		return nil, nil, errors.Wrap(errors.CodeDecryptionFailed, "aad is not valid JSON", err)
	}
	return plaintext, &aad, nil
}

// SealRecord seals a value for persistence, stamping it with a fresh
// 16-byte conversation id and an ISO-8601 timestamp.
func (e *Engine) SealRecord(recipientPub *secp256k1.PublicKey, value interface{}) (*wire.EncryptedRecord, error) {
	start := time.Now()
	rec, err := e.sealRecord(recipientPub, value)
	observe("seal_record", start, err)
	return rec, err
}

func (e *Engine) sealRecord(recipientPub *secp256k1.PublicKey, value interface{}) (*wire.EncryptedRecord, error) {
	env, err := e.sealHandshake(recipientPub, value, SealOptions{})
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	return &wire.EncryptedRecord{
		Payload:        *env,
		StoredAt:       time.Now().UTC().Format(time.RFC3339),
		ConversationID: crypto.BytesToHex(id[:]),
	}, nil
}

// OpenRecord decrypts a persisted record and recovers its signer.
func (e *Engine) OpenRecord(rec *wire.EncryptedRecord) (*Opened, error) {
	start := time.Now()
	opened, err := e.openRecord(rec)
	observe("open_record", start, err)
	return opened, err
}

func (e *Engine) openRecord(rec *wire.EncryptedRecord) (*Opened, error) {
	if rec == nil {
		return nil, errors.New(errors.CodeInvalidInput, "nil record")
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	// Records are sealed to the recovery key, which may be a separate pair.
	if e.recovery != nil {
		return e.openWith(e.recovery, &rec.Payload)
	}
	return e.openHandshake(&rec.Payload)
}

func observe(op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.CryptoOperations.WithLabelValues(op, result).Inc()
	metrics.CryptoOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
