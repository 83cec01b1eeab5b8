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

// Package store persists encrypted conversation records. The encrypted
// store seals records with the handshake primitive so every stored blob is
// attributable to its signer, and layers a cache, bounded retries and an
// optional network-verified write over a pluggable object store.
package store

import (
	"context"
	"time"
)

// EntryType distinguishes listing entries.
type EntryType string

const (
	EntryFile      EntryType = "file"
	EntryDirectory EntryType = "directory"
)

// Entry is one listing result.
type Entry struct {
	Type EntryType
	Name string
}

// ObjectInfo is object metadata from a probe that does not fetch content.
type ObjectInfo struct {
	Path       string
	Size       int64
	ModifiedAt time.Time
}

// ObjectStore is the minimal backend contract: an addressable blob store.
// Implementations must return a NotFound coded error for absent paths.
type ObjectStore interface {
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]Entry, error)
	Delete(ctx context.Context, path string) error
	Metadata(ctx context.Context, path string) (*ObjectInfo, error)
}
