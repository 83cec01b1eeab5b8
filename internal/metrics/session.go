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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HandshakesInitiated counts session-init attempts.
	HandshakesInitiated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "handshakes_initiated_total",
			Help:      "Total number of session handshakes initiated",
		},
		[]string{"mode"}, // encrypted, plaintext_fallback
	)

	// HandshakeDuration tracks end-to-end handshake latency.
	HandshakeDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "handshake_duration_seconds",
			Help:      "Handshake round-trip duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// SessionStateTransitions counts lifecycle transitions.
	SessionStateTransitions = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "state_transitions_total",
			Help:      "Total number of session state transitions",
		},
		[]string{"to"},
	)

	// StreamChunks counts streamed chunks by direction.
	StreamChunks = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "stream_chunks_total",
			Help:      "Total number of streamed chunks",
		},
		[]string{"direction"}, // sent, received
	)

	// SessionMessageSize observes wire message sizes.
	SessionMessageSize = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "message_size_bytes",
			Help:      "Size of session messages in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"kind"}, // encrypted, decrypted
	)
)
