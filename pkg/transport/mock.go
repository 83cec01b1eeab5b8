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

package transport

import (
	"context"
	"sync"

	"github.com/fabstir/llm-session-go/pkg/errors"
)

// Mock is an in-memory adapter for tests. Outbound frames are captured for
// inspection; inbound frames are injected with Deliver.
type Mock struct {
	mu       sync.Mutex
	sent     [][]byte
	handlers map[int]func([]byte)
	nextID   int
	closed   bool

	// SendHook, when set, runs on every Send and may fail it.
	SendHook func(frame []byte) error
}

// NewMock creates an open mock adapter.
func NewMock() *Mock {
	return &Mock{handlers: make(map[int]func([]byte))}
}

// Send records the frame.
func (m *Mock) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.ErrTransportClosed
	}
	hook := m.SendHook
	cp := append([]byte(nil), frame...)
	m.sent = append(m.sent, cp)
	m.mu.Unlock()

	if hook != nil {
		return hook(cp)
	}
	return nil
}

// OnMessage registers a handler.
func (m *Mock) OnMessage(handler func(frame []byte)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.handlers[id] = handler
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.handlers, id)
		m.mu.Unlock()
	}
}

// Close marks the adapter closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Deliver injects an inbound frame to all registered handlers.
func (m *Mock) Deliver(frame []byte) {
	m.mu.Lock()
	handlers := make([]func([]byte), 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(frame)
	}
}

// Sent returns a snapshot of all captured outbound frames.
func (m *Mock) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// HandlerCount reports how many handlers are currently subscribed.
func (m *Mock) HandlerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}
