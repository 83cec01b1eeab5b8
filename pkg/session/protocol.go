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

// Package session implements the client-side protocol state machine: the
// authenticated handshake, symmetric streaming with monotonic message
// indices, cancellation, completion and the plaintext fallback path.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/fabstir/llm-session-go/internal/logger"
	"github.com/fabstir/llm-session-go/internal/metrics"
	"github.com/fabstir/llm-session-go/pkg/crypto"
	"github.com/fabstir/llm-session-go/pkg/engine"
	"github.com/fabstir/llm-session-go/pkg/errors"
	"github.com/fabstir/llm-session-go/pkg/transport"
	"github.com/fabstir/llm-session-go/pkg/wire"
)

// cancelSendTimeout bounds the best-effort stream_cancel emitted when a
// caller aborts an in-flight prompt.
const cancelSendTimeout = 2 * time.Second

// Protocol drives one session over one transport adapter. Public methods
// serialize on an internal mutex; the state machine and the outgoing
// message index are mutated only under it.
type Protocol struct {
	mu      sync.Mutex
	engine  *engine.Engine
	adapter transport.Adapter
	cfg     Config
	log     logger.Logger

	state      State
	sessionKey []byte // nil in plaintext mode and after terminal states
	plaintext  bool

	messageIndex     uint64 // outgoing, strictly increasing
	lastInboundIndex uint64
	seenInbound      bool

	prompts     []string
	responses   []string
	tokenCount  uint64
	checkpoints []Checkpoint
}

// New creates a session in the Initializing state.
func New(eng *engine.Engine, adapter transport.Adapter, cfg Config) (*Protocol, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Protocol{
		engine:  eng,
		adapter: adapter,
		cfg:     cfg.withDefaults(),
		state:   StateInitializing,
		log: logger.GetDefaultLogger().WithFields(
			logger.String("component", "session"),
			logger.String("session_id", cfg.SessionID),
		),
	}, nil
}

// State returns the current lifecycle state.
func (p *Protocol) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Encrypted reports whether the session runs in encrypted mode.
func (p *Protocol) Encrypted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.plaintext && p.sessionKey != nil
}

// MessageIndex returns the next outgoing message index.
func (p *Protocol) MessageIndex() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messageIndex
}

// Transcript returns a copy of the accumulated prompts and responses.
func (p *Protocol) Transcript() Transcript {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Transcript{
		Prompts:   append([]string(nil), p.prompts...),
		Responses: append([]string(nil), p.responses...),
	}
}

// TokenCount returns the accumulated token count reported by the host.
func (p *Protocol) TokenCount() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenCount
}

// Checkpoint records and returns a snapshot of stream progress.
func (p *Protocol) Checkpoint() Checkpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := Checkpoint{
		MessageIndex:  p.messageIndex,
		PromptCount:   len(p.prompts),
		ResponseCount: len(p.responses),
		TokenCount:    p.tokenCount,
		At:            time.Now().UTC(),
	}
	p.checkpoints = append(p.checkpoints, cp)
	return cp
}

// transition moves the state machine, zeroizing the session key on entry
// to any terminal state. Callers hold p.mu.
func (p *Protocol) transition(to State) {
	if p.state == to {
		return
	}
	p.log.Debug("session state transition",
		logger.String("from", p.state.String()),
		logger.String("to", to.String()),
	)
	metrics.SessionStateTransitions.WithLabelValues(to.String()).Inc()
	p.state = to
	if to.Terminal() && p.sessionKey != nil {
		memguard.WipeBytes(p.sessionKey)
		p.sessionKey = nil
	}
}

// Handshake performs the session-init round trip. On success the session
// is Active in encrypted mode; if the host signals EncryptionNotSupported
// the protocol falls back to a plaintext session init carrying the same
// identifiers and discards the session key.
func (p *Protocol) Handshake(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateInitializing {
		p.mu.Unlock()
		return errors.Newf(errors.CodeInvalidInput, "handshake in state %s", p.state)
	}
	cfg := p.cfg
	p.mu.Unlock()

	start := time.Now()
	metrics.HandshakesInitiated.WithLabelValues("encrypted").Inc()

	key, err := crypto.RandomBytes(crypto.KeySize)
	if err != nil {
		return p.fail(err)
	}

	jobID, err := wire.NewIntStringFromString(cfg.JobID)
	if err != nil {
		return p.fail(err)
	}
	payload := &wire.HandshakePayload{
		JobID:             jobID,
		ModelName:         cfg.ModelName,
		SessionKey:        crypto.BytesToHex(key),
		PricePerToken:     cfg.PricePerToken,
		RecoveryPublicKey: crypto.BytesToHex(p.engine.RecoveryPublicKey()),
	}
	sealed, err := p.engine.SealHandshake(cfg.HostPub, payload, engine.SealOptions{})
	if err != nil {
		return p.fail(err)
	}

	init := &wire.SessionInitMessage{
		Type:      wire.TypeEncryptedSessionInit,
		ChainID:   cfg.ChainID,
		SessionID: cfg.SessionID,
		JobID:     cfg.JobID,
		Payload:   *sealed,
	}
	reply, err := p.roundTrip(ctx, init)
	if err != nil {
		return p.fail(err)
	}

	switch m := reply.(type) {
	case *wire.AckMessage:
		p.mu.Lock()
		p.sessionKey = key
		p.transition(StateActive)
		p.mu.Unlock()
		metrics.HandshakeDuration.Observe(time.Since(start).Seconds())
		return nil

	case *wire.ErrorMessage:
		if errors.Code(m.Code) == errors.CodeEncryptionNotSupported {
			memguard.WipeBytes(key)
			return p.plaintextFallback(ctx, start)
		}
		if errors.Code(m.Code) == errors.CodeDecryptionFailed {
			p.mu.Lock()
			p.transition(StateAborted)
			p.mu.Unlock()
			return m.Err()
		}
		return p.fail(m.Err())

	default:
		return p.fail(errors.Newf(errors.CodeInvalidInput, "unexpected handshake reply %q", reply.MessageType()))
	}
}

// plaintextFallback re-sends the session init in cleartext with the same
// identifiers. All subsequent messages use the plaintext envelope types.
func (p *Protocol) plaintextFallback(ctx context.Context, start time.Time) error {
	p.mu.Lock()
	cfg := p.cfg
	p.plaintext = true
	p.mu.Unlock()

	p.log.Info("host does not support encryption, falling back to plaintext session")
	metrics.HandshakesInitiated.WithLabelValues("plaintext_fallback").Inc()

	init := &wire.PlainSessionInitMessage{
		Type:          wire.TypeSessionInit,
		ChainID:       cfg.ChainID,
		SessionID:     cfg.SessionID,
		JobID:         cfg.JobID,
		ModelName:     cfg.ModelName,
		PricePerToken: cfg.PricePerToken,
	}
	reply, err := p.roundTrip(ctx, init)
	if err != nil {
		return p.fail(err)
	}
	switch m := reply.(type) {
	case *wire.AckMessage:
		p.mu.Lock()
		p.transition(StateActive)
		p.mu.Unlock()
		metrics.HandshakeDuration.Observe(time.Since(start).Seconds())
		return nil
	case *wire.ErrorMessage:
		return p.fail(m.Err())
	default:
		return p.fail(errors.Newf(errors.CodeInvalidInput, "unexpected fallback reply %q", reply.MessageType()))
	}
}

// roundTrip sends one envelope and waits for the first ack or error reply
// within the operation timeout. Used only during the handshake, where the
// session is not yet bound to a stream.
func (p *Protocol) roundTrip(ctx context.Context, msg wire.Message) (wire.Message, error) {
	frame, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInvalidInput, "marshal envelope", err)
	}

	replies := make(chan wire.Message, 1)
	unsubscribe := p.adapter.OnMessage(func(raw []byte) {
		parsed, err := wire.ParseEnvelope(raw)
		if err != nil {
			return
		}
		switch parsed.(type) {
		case *wire.AckMessage, *wire.ErrorMessage:
			select {
			case replies <- parsed:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := p.adapter.Send(ctx, frame); err != nil {
		return nil, err
	}

	timer := time.NewTimer(p.cfg.OperationTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(errors.CodeTimeout, "handshake cancelled", ctx.Err())
	case <-timer.C:
		return nil, errors.New(errors.CodeTimeout, "no handshake reply within operation timeout")
	case reply := <-replies:
		return reply, nil
	}
}

// Prompt sends one prompt and streams the response. onChunk is invoked
// once per received chunk, in order; the return value is the concatenated
// plaintext. ctx is the cancellation token: if it is already signalled no
// bytes are sent and the call resolves empty; if it fires mid-stream the
// call resolves with whatever accumulated, emits a best-effort
// stream_cancel and leaves the transport open.
func (p *Protocol) Prompt(ctx context.Context, text string, onChunk func(string)) (string, error) {
	if ctx.Err() != nil {
		return "", nil
	}

	p.mu.Lock()
	switch p.state {
	case StateActive:
	case StatePaused:
		p.transition(StateActive)
	default:
		p.mu.Unlock()
		return "", errors.Newf(errors.CodeInvalidInput, "prompt in state %s", p.state)
	}
	frame, err := p.sealPromptLocked(text)
	if err != nil {
		p.mu.Unlock()
		return "", err
	}
	p.mu.Unlock()

	inbound := make(chan wire.Message, 64)
	unsubscribe := p.adapter.OnMessage(func(raw []byte) {
		parsed, err := wire.ParseEnvelope(raw)
		if err != nil {
			p.log.Debug("dropping unparseable frame", logger.Error(err))
			return
		}
		switch parsed.(type) {
		case *wire.StreamChunkMessage, *wire.EncryptedChunkMessage,
			*wire.StreamEndMessage, *wire.StreamCancelMessage, *wire.ErrorMessage:
			select {
			case inbound <- parsed:
			default:
				p.log.Warn("inbound stream buffer full, dropping frame")
			}
		}
	})

	if err := p.adapter.Send(ctx, frame); err != nil {
		unsubscribe()
		return "", p.sendFailure(err)
	}

	p.mu.Lock()
	p.messageIndex++
	p.prompts = append(p.prompts, text)
	p.mu.Unlock()
	metrics.StreamChunks.WithLabelValues("sent").Inc()
	metrics.SessionMessageSize.WithLabelValues("encrypted").Observe(float64(len(frame)))

	return p.receiveStream(ctx, inbound, unsubscribe, onChunk)
}

// sealPromptLocked builds the outgoing prompt frame at the current message
// index. Callers hold p.mu.
func (p *Protocol) sealPromptLocked(text string) ([]byte, error) {
	if p.plaintext {
		return json.Marshal(&wire.PromptMessage{
			Type:      wire.TypePrompt,
			SessionID: p.cfg.SessionID,
			Content:   text,
		})
	}
	sm, err := p.engine.SealSymmetric(p.sessionKey, []byte(text), p.messageIndex)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&wire.EncryptedPromptMessage{
		Type:             wire.TypeEncryptedPrompt,
		SessionID:        p.cfg.SessionID,
		SymmetricMessage: *sm,
	})
}

// receiveStream accumulates chunks until an end marker, a cancel, an error
// or the inactivity timeout.
func (p *Protocol) receiveStream(ctx context.Context, inbound <-chan wire.Message, unsubscribe func(), onChunk func(string)) (string, error) {
	var accumulated strings.Builder
	inactivity := time.NewTimer(p.cfg.InactivityTimeout)
	defer inactivity.Stop()
	defer unsubscribe()

	finish := func() string {
		out := accumulated.String()
		p.mu.Lock()
		p.responses = append(p.responses, out)
		p.mu.Unlock()
		return out
	}

	for {
		select {
		case <-ctx.Done():
			// Cancel mid-stream: keep the session, surrender the stream.
			inactivity.Stop()
			unsubscribe()
			p.sendCancelBestEffort("client cancelled")
			return finish(), nil

		case <-inactivity.C:
			return finish(), errors.New(errors.CodeTimeout, "no chunk within inactivity timeout")

		case msg := <-inbound:
			switch m := msg.(type) {
			case *wire.StreamChunkMessage:
				if !p.plaintextMode() {
					continue // plaintext chunk on an encrypted session
				}
				accumulated.WriteString(m.Content)
				metrics.StreamChunks.WithLabelValues("received").Inc()
				if onChunk != nil {
					onChunk(m.Content)
				}
				resetTimer(inactivity, p.cfg.InactivityTimeout)

			case *wire.EncryptedChunkMessage:
				content, err := p.openChunk(&m.SymmetricMessage)
				if err != nil {
					return finish(), err
				}
				accumulated.WriteString(content)
				metrics.StreamChunks.WithLabelValues("received").Inc()
				if onChunk != nil {
					onChunk(content)
				}
				resetTimer(inactivity, p.cfg.InactivityTimeout)

			case *wire.StreamEndMessage:
				p.mu.Lock()
				p.tokenCount += m.TokenCount
				p.mu.Unlock()
				return finish(), nil

			case *wire.StreamCancelMessage:
				p.log.Info("host cancelled stream", logger.String("reason", m.Reason))
				return finish(), nil

			case *wire.ErrorMessage:
				err := m.Err()
				p.mu.Lock()
				if errors.Code(m.Code) == errors.CodeDecryptionFailed {
					p.transition(StateAborted)
				} else {
					p.transition(StateFailed)
				}
				p.mu.Unlock()
				return finish(), err
			}
		}
	}
}

// openChunk decrypts one encrypted chunk and enforces monotonic
// non-decreasing counterpart indices. Any crypto failure is fatal for the
// session.
func (p *Protocol) openChunk(sm *wire.SymmetricMessage) (string, error) {
	p.mu.Lock()
	key := p.sessionKey
	p.mu.Unlock()
	if key == nil {
		return "", errors.New(errors.CodeDecryptionFailed, "no session key")
	}

	plaintext, aad, err := p.engine.OpenSymmetric(key, sm)
	if err != nil {
		p.mu.Lock()
		p.transition(StateFailed)
		p.mu.Unlock()
		return "", err
	}
	metrics.SessionMessageSize.WithLabelValues("decrypted").Observe(float64(len(plaintext)))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seenInbound && aad.MessageIndex < p.lastInboundIndex {
		p.transition(StateFailed)
		return "", errors.Newf(errors.CodeInvalidInput,
			"out-of-order chunk: index %d after %d", aad.MessageIndex, p.lastInboundIndex)
	}
	p.lastInboundIndex = aad.MessageIndex
	p.seenInbound = true
	return string(plaintext), nil
}

func (p *Protocol) plaintextMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plaintext
}

// sendCancelBestEffort emits a stream_cancel; failures are swallowed.
func (p *Protocol) sendCancelBestEffort(reason string) {
	frame, err := json.Marshal(&wire.StreamCancelMessage{
		Type:   wire.TypeStreamCancel,
		Reason: reason,
	})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cancelSendTimeout)
	defer cancel()
	if err := p.adapter.Send(ctx, frame); err != nil {
		p.log.Debug("stream_cancel send failed", logger.Error(err))
	}
}

// Pause moves an active session to Paused. Paused sessions re-enter
// Active on the next prompt.
func (p *Protocol) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateActive {
		return errors.Newf(errors.CodeInvalidInput, "pause in state %s", p.state)
	}
	p.transition(StatePaused)
	return nil
}

// Complete emits the completion control message with the final accounting
// proof, zeroizes the session key and settles in Completed. Idempotent
// once Completed.
func (p *Protocol) Complete(ctx context.Context, tokenCount uint64, finalProof string) error {
	p.mu.Lock()
	if p.state == StateCompleted {
		p.mu.Unlock()
		return nil
	}
	if p.state.Terminal() {
		st := p.state
		p.mu.Unlock()
		return errors.Newf(errors.CodeInvalidInput, "complete in state %s", st)
	}
	p.transition(StateCompleting)
	sessionID := p.cfg.SessionID
	p.mu.Unlock()

	frame, err := json.Marshal(&wire.CompletionMessage{
		Type:       wire.TypeSessionComplete,
		SessionID:  sessionID,
		TokenCount: tokenCount,
		Proof:      finalProof,
	})
	if err != nil {
		return errors.Wrap(errors.CodeInvalidInput, "marshal completion", err)
	}
	sendErr := p.adapter.Send(ctx, frame)

	p.mu.Lock()
	p.transition(StateCompleted)
	p.mu.Unlock()

	if sendErr != nil {
		p.log.Warn("completion send failed", logger.Error(sendErr))
	}
	return nil
}

// Abort tears the session down. The caller must open a new session
// afterwards; cancellation alone never destroys a session.
func (p *Protocol) Abort(reason string) {
	p.mu.Lock()
	if p.state.Terminal() {
		p.mu.Unlock()
		return
	}
	p.transition(StateAborted)
	p.mu.Unlock()
	p.sendCancelBestEffort(reason)
}

// Reconnect re-establishes a dropped transport, when the adapter supports
// it, and resets the protocol for a fresh handshake. Session keys are
// never reused across reconnects.
func (p *Protocol) Reconnect(ctx context.Context) error {
	rc, ok := p.adapter.(transport.Reconnector)
	if !ok {
		p.mu.Lock()
		p.transition(StateFailed)
		p.mu.Unlock()
		return errors.New(errors.CodeTransportClosed, "adapter cannot reconnect")
	}
	if err := rc.Reconnect(ctx); err != nil {
		p.mu.Lock()
		p.transition(StateFailed)
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	if p.sessionKey != nil {
		memguard.WipeBytes(p.sessionKey)
		p.sessionKey = nil
	}
	p.plaintext = false
	p.messageIndex = 0
	p.lastInboundIndex = 0
	p.seenInbound = false
	p.state = StateInitializing
	p.mu.Unlock()
	return nil
}

// fail records an unrecoverable error. Before the handshake completes any
// failure is fatal for the session.
func (p *Protocol) fail(err error) error {
	p.mu.Lock()
	if !p.state.Terminal() {
		p.transition(StateFailed)
	}
	p.mu.Unlock()
	return err
}

// sendFailure maps a mid-session send error. Transport loss after Active
// leaves the protocol eligible for Reconnect; everything else fails the
// session.
func (p *Protocol) sendFailure(err error) error {
	if errors.Is(err, errors.ErrTransportClosed) {
		p.mu.Lock()
		p.transition(StatePaused)
		p.mu.Unlock()
		return err
	}
	return p.fail(err)
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
