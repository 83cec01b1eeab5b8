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
	"crypto/cipher"
	"crypto/rand"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/fabstir/llm-session-go/pkg/errors"
)

// NonceSize is the XChaCha20-Poly1305 nonce length (24 bytes).
const NonceSize = chacha20poly1305.NonceSizeX

// TagSize is the Poly1305 tag length appended to every ciphertext.
const TagSize = chacha20poly1305.Overhead

// AEADSeal encrypts plaintext with XChaCha20-Poly1305 under key and nonce,
// binding aad. The returned slice is ciphertext || 16-byte tag.
func AEADSeal(key, nonce, plaintext, aad []byte) ([]byte, error) {
	aead, err := newXChaCha(key, nonce)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// AEADOpen verifies the tag and decrypts. Tag mismatch, tampered aad or a
// wrong key all yield DecryptionFailed.
func AEADOpen(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	aead, err := newXChaCha(key, nonce)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < TagSize {
		return nil, errors.New(errors.CodeDecryptionFailed, "ciphertext shorter than tag")
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDecryptionFailed, "aead open failed", err)
	}
	return plaintext, nil
}

// RandomNonce draws a fresh 24-byte nonce from the CSPRNG.
func RandomNonce() ([]byte, error) {
	return RandomBytes(NonceSize)
}

// RandomBytes draws n bytes from the CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, errors.Wrap(errors.CodeCryptoUnavailable, "csprng read failed", err)
	}
	return b, nil
}

func newXChaCha(key, nonce []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, errors.Newf(errors.CodeInvalidInput, "aead key is %d bytes, want %d", len(key), KeySize)
	}
	if len(nonce) != NonceSize {
		return nil, errors.Newf(errors.CodeInvalidInput, "aead nonce is %d bytes, want %d", len(nonce), NonceSize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(errors.CodeCryptoUnavailable, "xchacha20poly1305 init failed", err)
	}
	return aead, nil
}
