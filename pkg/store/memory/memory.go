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

// Package memory is an in-memory object store for tests and ephemeral use.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fabstir/llm-session-go/pkg/errors"
	"github.com/fabstir/llm-session-go/pkg/store"
)

type object struct {
	data       []byte
	modifiedAt time.Time
}

// Store implements store.ObjectStore over a map.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object

	// FailPuts makes the next N Put calls fail, for retry tests.
	FailPuts int
	// FailGets makes the next N Get calls fail, for verification tests.
	FailGets int
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{objects: make(map[string]object)}
}

// Put stores a copy of data at path.
func (s *Store) Put(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPuts > 0 {
		s.FailPuts--
		return errors.New(errors.CodeTimeout, "injected put failure")
	}
	s.objects[path] = object{
		data:       append([]byte(nil), data...),
		modifiedAt: time.Now().UTC(),
	}
	return nil
}

// Get returns a copy of the object at path.
func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.FailGets > 0 {
		s.FailGets--
		s.mu.Unlock()
		return nil, errors.New(errors.CodeTimeout, "injected get failure")
	}
	obj, ok := s.objects[path]
	s.mu.Unlock()
	if !ok {
		return nil, errors.Newf(errors.CodeNotFound, "no object at %q", path)
	}
	return append([]byte(nil), obj.data...), nil
}

// List enumerates direct children of prefix, sorted by name.
func (s *Store) List(ctx context.Context, prefix string) ([]store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix = strings.TrimSuffix(prefix, "/") + "/"

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]store.EntryType)
	for path := range s.objects {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(path, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			seen[rest[:i]] = store.EntryDirectory
		} else {
			seen[rest] = store.EntryFile
		}
	}

	entries := make([]store.Entry, 0, len(seen))
	for name, typ := range seen {
		entries = append(entries, store.Entry{Type: typ, Name: name})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Delete removes the object at path. Deleting an absent path is an error.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[path]; !ok {
		return errors.Newf(errors.CodeNotFound, "no object at %q", path)
	}
	delete(s.objects, path)
	return nil
}

// Metadata probes an object without returning its content.
func (s *Store) Metadata(ctx context.Context, path string) (*store.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	if !ok {
		return nil, errors.Newf(errors.CodeNotFound, "no object at %q", path)
	}
	return &store.ObjectInfo{
		Path:       path,
		Size:       int64(len(obj.data)),
		ModifiedAt: obj.modifiedAt,
	}, nil
}

// Len reports the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
