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

// Package websocket implements the transport adapter over a persistent
// WebSocket connection to the compute host.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fabstir/llm-session-go/internal/logger"
	"github.com/fabstir/llm-session-go/pkg/errors"
	"github.com/fabstir/llm-session-go/pkg/transport"
)

// Adapter is a WebSocket-backed transport.Adapter. Writes are serialized
// with a mutex; a single read pump dispatches inbound frames to the
// registered handlers in arrival order.
type Adapter struct {
	url          string
	dialTimeout  time.Duration
	writeTimeout time.Duration
	readTimeout  time.Duration

	mu     sync.Mutex // guards conn and writes
	conn   *websocket.Conn
	closed bool

	handlerMu sync.RWMutex
	handlers  map[int]func([]byte)
	nextID    int

	log logger.Logger
}

// Options tunes connection timeouts.
type Options struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// New creates a disconnected adapter for the given ws:// or wss:// URL.
func New(url string, opts Options) *Adapter {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 120 * time.Second
	}
	return &Adapter{
		url:          url,
		dialTimeout:  opts.DialTimeout,
		writeTimeout: opts.WriteTimeout,
		readTimeout:  opts.ReadTimeout,
		handlers:     make(map[int]func([]byte)),
		log:          logger.GetDefaultLogger().WithFields(logger.String("component", "ws_transport")),
	}
}

// Connect dials the host and starts the read pump.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errors.ErrTransportClosed
	}
	if a.conn != nil {
		return nil
	}

	dialer := &websocket.Dialer{HandshakeTimeout: a.dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, a.url, nil)
	if err != nil {
		if resp != nil {
			return errors.Wrap(errors.CodeTransportClosed, "websocket dial failed", err).
				WithDetail("http_status", resp.StatusCode)
		}
		return errors.Wrap(errors.CodeTransportClosed, "websocket dial failed", err)
	}
	a.conn = conn
	go a.readPump(conn)
	return nil
}

// Reconnect implements transport.Reconnector: drops any existing
// connection and dials again. Callers must re-handshake afterwards.
func (a *Adapter) Reconnect(ctx context.Context) error {
	a.mu.Lock()
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
	a.mu.Unlock()
	return a.Connect(ctx)
}

// Send writes one text frame, serialized across callers.
func (a *Adapter) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.conn == nil {
		return errors.ErrTransportClosed
	}

	deadline := time.Now().Add(a.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := a.conn.SetWriteDeadline(deadline); err != nil {
		return errors.Wrap(errors.CodeTransportClosed, "set write deadline", err)
	}
	if err := a.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return errors.Wrap(errors.CodeTransportClosed, "websocket write failed", err)
	}
	return nil
}

// OnMessage registers a frame handler and returns its unsubscribe.
func (a *Adapter) OnMessage(handler func(frame []byte)) func() {
	a.handlerMu.Lock()
	id := a.nextID
	a.nextID++
	a.handlers[id] = handler
	a.handlerMu.Unlock()

	return func() {
		a.handlerMu.Lock()
		delete(a.handlers, id)
		a.handlerMu.Unlock()
	}
}

// Close sends a close frame and tears the connection down.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	if a.conn == nil {
		return nil
	}
	_ = a.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	err := a.conn.Close()
	a.conn = nil
	return err
}

func (a *Adapter) readPump(conn *websocket.Conn) {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(a.readTimeout)); err != nil {
			return
		}
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.log.Warn("websocket read failed", logger.Error(err))
			}
			a.mu.Lock()
			if a.conn == conn {
				a.conn = nil
			}
			a.mu.Unlock()
			return
		}
		a.dispatch(frame)
	}
}

func (a *Adapter) dispatch(frame []byte) {
	a.handlerMu.RLock()
	handlers := make([]func([]byte), 0, len(a.handlers))
	for _, h := range a.handlers {
		handlers = append(handlers, h)
	}
	a.handlerMu.RUnlock()

	for _, h := range handlers {
		h(frame)
	}
}
