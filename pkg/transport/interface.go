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

// Package transport provides the duplex channel abstraction the session
// protocol runs over. Adapters carry opaque frames only: they never
// inspect or transform payloads. Backpressure is the adapter's concern;
// the protocol's contract is one adapter instance per session with
// serialized sends.
package transport

import "context"

// Adapter is a bidirectional channel of typed envelopes (as encoded JSON
// frames). Send delivers frames in FIFO order with best-effort
// reliability.
type Adapter interface {
	// Send transmits one frame. Implementations serialize concurrent
	// callers.
	Send(ctx context.Context, frame []byte) error

	// OnMessage registers a handler invoked once per inbound frame, in
	// arrival order. The returned function unsubscribes the handler.
	OnMessage(handler func(frame []byte)) (unsubscribe func())

	// Close terminates the channel. Subsequent sends fail with
	// TransportClosed.
	Close() error
}

// Reconnector is implemented by adapters that can re-establish a dropped
// connection. The protocol re-handshakes after a reconnect; session keys
// are never reused across connections.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}
