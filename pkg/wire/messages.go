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

package wire

import (
	"encoding/json"
	"strings"

	"github.com/fabstir/llm-session-go/pkg/errors"
)

// Message type discriminants. Envelopes are a tagged union over "type";
// switch exhaustively, never subclass.
const (
	TypeEncryptedSessionInit = "encrypted_session_init"
	TypeSessionInit          = "session_init"
	TypeAck                  = "ack"
	TypeOK                   = "ok"
	TypeError                = "error"
	TypePrompt               = "prompt"
	TypeEncryptedPrompt      = "encrypted_prompt"
	TypeStreamChunk          = "stream_chunk"
	TypeEncryptedChunk       = "encrypted_chunk"
	TypeStreamEnd            = "stream_end"
	TypeStreamCancel         = "stream_cancel"
	TypeSessionComplete      = "session_complete"
)

// Message is any typed envelope exchanged on the transport.
type Message interface {
	MessageType() string
}

// SessionInitMessage opens an encrypted session. The identifiers are
// stringified integers at the top level and all three are required.
type SessionInitMessage struct {
	Type      string         `json:"type"`
	ChainID   string         `json:"chain_id"`
	SessionID string         `json:"session_id"`
	JobID     string         `json:"job_id"`
	Payload   SealedEnvelope `json:"payload"`
}

func (m *SessionInitMessage) MessageType() string { return TypeEncryptedSessionInit }

// Validate enforces the top-level schema and the payload envelope.
func (m *SessionInitMessage) Validate() error {
	if m.Type != TypeEncryptedSessionInit {
		return errors.Newf(errors.CodeInvalidInput, "type is %q, want %q", m.Type, TypeEncryptedSessionInit)
	}
	for name, v := range map[string]string{
		"chain_id":   m.ChainID,
		"session_id": m.SessionID,
		"job_id":     m.JobID,
	} {
		if !isDecimal(v) {
			return errors.Newf(errors.CodeInvalidInput, "%s must be a stringified integer, got %q", name, v)
		}
	}
	return m.Payload.Validate()
}

// PlainSessionInitMessage is the cleartext fallback taken when the host
// signals EncryptionNotSupported. It carries the same session parameters
// with no cipher envelope.
type PlainSessionInitMessage struct {
	Type          string  `json:"type"`
	ChainID       string  `json:"chain_id"`
	SessionID     string  `json:"session_id"`
	JobID         string  `json:"job_id"`
	ModelName     string  `json:"model_name"`
	PricePerToken *BigInt `json:"price_per_token"`
}

func (m *PlainSessionInitMessage) MessageType() string { return TypeSessionInit }

// AckMessage acknowledges a session init; handshake complete.
type AckMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

func (m *AckMessage) MessageType() string { return m.Type }

// ErrorMessage is a counterpart-signalled failure.
type ErrorMessage struct {
	Type    string                 `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (m *ErrorMessage) MessageType() string { return TypeError }

// Err converts the envelope into a coded error.
func (m *ErrorMessage) Err() error {
	return errors.FromCode(m.Code, m.Message)
}

// PromptMessage is a cleartext prompt (plaintext fallback mode only).
type PromptMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

func (m *PromptMessage) MessageType() string { return TypePrompt }

// EncryptedPromptMessage is a prompt sealed under the session key.
type EncryptedPromptMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	SymmetricMessage
}

func (m *EncryptedPromptMessage) MessageType() string { return TypeEncryptedPrompt }

// StreamChunkMessage is one cleartext response chunk.
type StreamChunkMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func (m *StreamChunkMessage) MessageType() string { return TypeStreamChunk }

// EncryptedChunkMessage is one response chunk sealed under the session key.
type EncryptedChunkMessage struct {
	Type string `json:"type"`
	SymmetricMessage
}

func (m *EncryptedChunkMessage) MessageType() string { return TypeEncryptedChunk }

// StreamEndMessage terminates a streamed response.
type StreamEndMessage struct {
	Type       string `json:"type"`
	TokenCount uint64 `json:"token_count"`
}

func (m *StreamEndMessage) MessageType() string { return TypeStreamEnd }

// StreamCancelMessage aborts an in-flight stream, either direction.
type StreamCancelMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (m *StreamCancelMessage) MessageType() string { return TypeStreamCancel }

// CompletionMessage closes a session with the final accounting proof.
type CompletionMessage struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	TokenCount uint64 `json:"token_count"`
	Proof      string `json:"final_proof,omitempty"`
}

func (m *CompletionMessage) MessageType() string { return TypeSessionComplete }

// ParseEnvelope decodes a frame into its typed message. Unknown
// discriminants are an InvalidInput error, never silently dropped.
func ParseEnvelope(data []byte) (Message, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, errors.Wrap(errors.CodeInvalidInput, "frame is not a JSON envelope", err)
	}

	var msg Message
	switch head.Type {
	case TypeEncryptedSessionInit:
		msg = &SessionInitMessage{}
	case TypeSessionInit:
		msg = &PlainSessionInitMessage{}
	case TypeAck, TypeOK:
		msg = &AckMessage{}
	case TypeError:
		msg = &ErrorMessage{}
	case TypePrompt:
		msg = &PromptMessage{}
	case TypeEncryptedPrompt:
		msg = &EncryptedPromptMessage{}
	case TypeStreamChunk:
		msg = &StreamChunkMessage{}
	case TypeEncryptedChunk:
		msg = &EncryptedChunkMessage{}
	case TypeStreamEnd:
		msg = &StreamEndMessage{}
	case TypeStreamCancel:
		msg = &StreamCancelMessage{}
	case TypeSessionComplete:
		msg = &CompletionMessage{}
	default:
		return nil, errors.Newf(errors.CodeInvalidInput, "unknown envelope type %q", head.Type)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, errors.Wrap(errors.CodeInvalidInput, "malformed envelope", err)
	}
	return msg, nil
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) == -1
}
