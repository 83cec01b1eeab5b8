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

// Package postgres backs the object store with a single blob table, for
// deployments that keep encrypted conversation records in Postgres rather
// than a remote object store.
package postgres

import (
	"context"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabstir/llm-session-go/pkg/errors"
	"github.com/fabstir/llm-session-go/pkg/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS objects (
	path       TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store implements store.ObjectStore over a Postgres table.
type Store struct {
	pool *pgxpool.Pool
}

// New connects, pings and ensures the objects table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(errors.CodeCryptoUnavailable, "postgres connect failed", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(errors.CodeTransportClosed, "postgres ping failed", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, errors.Wrap(errors.CodeCryptoUnavailable, "objects table init failed", err)
	}
	return &Store{pool: pool}, nil
}

// Put upserts the blob at path.
func (s *Store) Put(ctx context.Context, path string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO objects (path, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (path) DO UPDATE SET data = $2, updated_at = now()`,
		path, data,
	)
	if err != nil {
		return errors.Wrap(errors.CodeTransportClosed, "postgres put failed", err)
	}
	return nil
}

// Get fetches the blob at path.
func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM objects WHERE path = $1`, path).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Newf(errors.CodeNotFound, "no object at %q", path)
		}
		return nil, errors.Wrap(errors.CodeTransportClosed, "postgres get failed", err)
	}
	return data, nil
}

// List enumerates direct children of prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]store.Entry, error) {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	rows, err := s.pool.Query(ctx,
		`SELECT path FROM objects WHERE path LIKE $1 || '%'`, prefix)
	if err != nil {
		return nil, errors.Wrap(errors.CodeTransportClosed, "postgres list failed", err)
	}
	defer rows.Close()

	seen := make(map[string]store.EntryType)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, errors.Wrap(errors.CodeTransportClosed, "postgres scan failed", err)
		}
		rest := strings.TrimPrefix(path, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			seen[rest[:i]] = store.EntryDirectory
		} else {
			seen[rest] = store.EntryFile
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.CodeTransportClosed, "postgres list failed", err)
	}

	entries := make([]store.Entry, 0, len(seen))
	for name, typ := range seen {
		entries = append(entries, store.Entry{Type: typ, Name: name})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Delete removes the blob at path. Absent paths are NotFound.
func (s *Store) Delete(ctx context.Context, path string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM objects WHERE path = $1`, path)
	if err != nil {
		return errors.Wrap(errors.CodeTransportClosed, "postgres delete failed", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Newf(errors.CodeNotFound, "no object at %q", path)
	}
	return nil
}

// Metadata probes a blob without fetching its content.
func (s *Store) Metadata(ctx context.Context, path string) (*store.ObjectInfo, error) {
	info := &store.ObjectInfo{Path: path}
	err := s.pool.QueryRow(ctx,
		`SELECT length(data), updated_at FROM objects WHERE path = $1`, path,
	).Scan(&info.Size, &info.ModifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Newf(errors.CodeNotFound, "no object at %q", path)
		}
		return nil, errors.Wrap(errors.CodeTransportClosed, "postgres metadata failed", err)
	}
	return info, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
