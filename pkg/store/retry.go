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

package store

import (
	"context"
	"time"

	"github.com/fabstir/llm-session-go/internal/metrics"
	"github.com/fabstir/llm-session-go/pkg/errors"
)

// retry runs op up to attempts times with exponential backoff, doubling
// the delay after each failure. NotFound is retried too: during network
// verification a fresh write may not be visible yet.
func retry(ctx context.Context, attempts int, baseDelay time.Duration, op func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	delay := baseDelay
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.CodeTimeout, "retry budget cancelled", err)
		}
		if i > 0 {
			metrics.StoreRetries.Inc()
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Wrap(errors.CodeTimeout, "retry budget cancelled", ctx.Err())
			case <-timer.C:
			}
			delay *= 2
		}
		if lastErr = op(ctx); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
