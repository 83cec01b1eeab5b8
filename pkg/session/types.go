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

package session

import (
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/fabstir/llm-session-go/pkg/errors"
	"github.com/fabstir/llm-session-go/pkg/wire"
)

// State is the session lifecycle state.
type State int

const (
	StateInitializing State = iota
	StateActive
	StatePaused
	StateCompleting
	StateCompleted
	StateAborted
	StateFailed
)

// String implements the Stringer interface for State.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateCompleting:
		return "completing"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateFailed
}

// Config carries the immutable parameters of one session.
type Config struct {
	// ChainID, SessionID and JobID are stringified integers; all three
	// travel at the top level of the session-init message.
	ChainID   string
	SessionID string
	JobID     string

	// ModelName selects the model served by the host.
	ModelName string

	// PricePerToken is the agreed price, possibly beyond 2^53.
	PricePerToken *wire.BigInt

	// HostPub is the host's static compressed public key.
	HostPub *secp256k1.PublicKey

	// HostAddress is the host's advertised address or endpoint, kept for
	// bookkeeping only.
	HostAddress string

	// OperationTimeout bounds every outbound round trip.
	OperationTimeout time.Duration

	// InactivityTimeout bounds the gap between received chunks.
	InactivityTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.OperationTimeout == 0 {
		out.OperationTimeout = 30 * time.Second
	}
	if out.InactivityTimeout == 0 {
		out.InactivityTimeout = 60 * time.Second
	}
	if out.PricePerToken == nil {
		out.PricePerToken = wire.NewBigInt(0)
	}
	return out
}

func (c *Config) validate() error {
	if c.HostPub == nil {
		return errors.New(errors.CodeInvalidInput, "missing host public key")
	}
	if c.SessionID == "" || c.JobID == "" || c.ChainID == "" {
		return errors.New(errors.CodeInvalidInput, "chain_id, session_id and job_id are required")
	}
	return nil
}

// Checkpoint is a caller-requested snapshot of stream progress.
type Checkpoint struct {
	MessageIndex  uint64    `json:"message_index"`
	PromptCount   int       `json:"prompt_count"`
	ResponseCount int       `json:"response_count"`
	TokenCount    uint64    `json:"token_count"`
	At            time.Time `json:"at"`
}

// Transcript is a copy of the session's accumulated exchange.
type Transcript struct {
	Prompts   []string
	Responses []string
}
