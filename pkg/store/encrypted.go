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
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/sync/errgroup"

	"github.com/fabstir/llm-session-go/internal/logger"
	"github.com/fabstir/llm-session-go/internal/metrics"
	"github.com/fabstir/llm-session-go/pkg/crypto"
	"github.com/fabstir/llm-session-go/pkg/engine"
	"github.com/fabstir/llm-session-go/pkg/errors"
	"github.com/fabstir/llm-session-go/pkg/wire"
)

// listDecryptConcurrency bounds parallel decryption during List.
const listDecryptConcurrency = 4

// Config tunes the encrypted store.
type Config struct {
	// Root is the top-level prefix; records live under
	// root/<owner-address>/<record-id>.json.
	Root string

	// MaxAttempts and BaseDelay parameterize retry with exponential
	// backoff on backend calls.
	MaxAttempts int
	BaseDelay   time.Duration

	// OperationTimeout bounds a single backend call.
	OperationTimeout time.Duration

	// WaitForNetwork re-reads and decrypts every write before reporting
	// success. withDefaults leaves it as given, so the zero Config does not
	// verify; config.Default turns it on.
	WaitForNetwork bool

	// Retryer, when set, owns the retry policy instead of the built-in
	// exponential backoff; a higher-level coordinator plugs in here.
	Retryer Retryer
}

// Retryer runs op until it succeeds or the policy gives up.
type Retryer func(ctx context.Context, op func(context.Context) error) error

func (c Config) withDefaults() Config {
	if c.Root == "" {
		c.Root = "conversations"
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = time.Second
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = 10 * time.Second
	}
	return c
}

// PutOptions overrides per-write behavior.
type PutOptions struct {
	// WaitForNetwork, when set, overrides the store default.
	WaitForNetwork *bool
}

// Stored is a decrypted record as returned to callers: always a snapshot,
// never shared mutable state.
type Stored struct {
	ID             string          `json:"id"`
	Value          json.RawMessage `json:"value"`
	StoredAt       time.Time       `json:"storedAt"`
	ConversationID string          `json:"conversationId"`
}

// sealedValue is the JSON carried inside the record envelope. The embedded
// id is what network verification checks against the requested key.
type sealedValue struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
}

// EncryptedStore encrypts records at rest. At most one live writer per key
// within a process: all cache access is serialized by the store mutex.
type EncryptedStore struct {
	mu      sync.Mutex
	cache   map[string]*Stored
	eng     *engine.Engine
	backend ObjectStore
	// recipient is the recovery public key records are sealed to.
	recipient *secp256k1.PublicKey
	cfg       Config
	log       logger.Logger
}

// New builds an encrypted store over a backend. Records are sealed to the
// engine's recovery public key so the owner can decrypt them later.
func New(eng *engine.Engine, backend ObjectStore, cfg Config) (*EncryptedStore, error) {
	recipient, err := crypto.ParseCompressedPubKey(eng.RecoveryPublicKey())
	if err != nil {
		return nil, err
	}
	return &EncryptedStore{
		cache:     make(map[string]*Stored),
		eng:       eng,
		backend:   backend,
		recipient: recipient,
		cfg:       cfg.withDefaults(),
		log: logger.GetDefaultLogger().WithFields(
			logger.String("component", "encrypted_store"),
		),
	}, nil
}

// ownerPrefix is root/<owner-address>; per-owner paths give tenant
// isolation.
func (s *EncryptedStore) ownerPrefix() string {
	return s.cfg.Root + "/" + s.eng.Address().Hex()
}

func (s *EncryptedStore) pathFor(recordID string) string {
	return s.ownerPrefix() + "/" + recordID + ".json"
}

// Put seals value under recordID and writes it with bounded retries. With
// WaitForNetwork the write is durability-verified by an evict-and-re-read
// before returning; on verification failure the local cache entry is
// preserved and NetworkVerificationFailed is returned.
func (s *EncryptedStore) Put(ctx context.Context, recordID string, value interface{}, opts PutOptions) error {
	if err := validateRecordID(recordID); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(errors.CodeInvalidInput, "value not serializable", err)
	}

	rec, err := s.eng.SealRecord(s.recipient, &sealedValue{ID: recordID, Value: raw})
	if err != nil {
		metrics.StoreOperations.WithLabelValues("put", "failure").Inc()
		return err
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(errors.CodeInvalidInput, "record not serializable", err)
	}

	path := s.pathFor(recordID)
	err = s.retryOp(ctx, func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
		defer cancel()
		return s.backend.Put(opCtx, path, blob)
	})
	if err != nil {
		metrics.StoreOperations.WithLabelValues("put", "failure").Inc()
		return err
	}

	storedAt, _ := time.Parse(time.RFC3339, rec.StoredAt)
	entry := &Stored{
		ID:             recordID,
		Value:          append(json.RawMessage(nil), raw...),
		StoredAt:       storedAt,
		ConversationID: rec.ConversationID,
	}
	s.mu.Lock()
	s.cache[recordID] = entry
	s.mu.Unlock()

	wait := s.cfg.WaitForNetwork
	if opts.WaitForNetwork != nil {
		wait = *opts.WaitForNetwork
	}
	if wait {
		if err := s.verifyNetworkWrite(ctx, recordID, entry); err != nil {
			metrics.StoreVerifications.WithLabelValues("failure").Inc()
			return err
		}
		metrics.StoreVerifications.WithLabelValues("success").Inc()
	}
	metrics.StoreOperations.WithLabelValues("put", "success").Inc()
	return nil
}

// verifyNetworkWrite evicts the cache entry, re-reads the blob from the
// backend, decrypts it and checks the embedded id. The cache entry is
// restored either way: the local write is preserved even when durability
// could not be confirmed.
func (s *EncryptedStore) verifyNetworkWrite(ctx context.Context, recordID string, entry *Stored) error {
	s.mu.Lock()
	delete(s.cache, recordID)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cache[recordID] = entry
		s.mu.Unlock()
	}()

	var fetched *Stored
	err := s.retryOp(ctx, func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
		defer cancel()
		var err error
		fetched, err = s.fetch(opCtx, recordID)
		return err
	})
	if err != nil {
		return errors.Wrap(errors.CodeNetworkVerificationFailed, "re-read after write failed", err)
	}
	if fetched.ID != recordID {
		return errors.Newf(errors.CodeNetworkVerificationFailed,
			"stored record id %q does not match %q", fetched.ID, recordID)
	}
	return nil
}

// retryOp delegates to the configured retry coordinator when present,
// otherwise applies the built-in bounded exponential backoff.
func (s *EncryptedStore) retryOp(ctx context.Context, op func(context.Context) error) error {
	if s.cfg.Retryer != nil {
		return s.cfg.Retryer(ctx, op)
	}
	return retry(ctx, s.cfg.MaxAttempts, s.cfg.BaseDelay, op)
}

// Get returns the record, cache-first. Returned values are snapshots.
func (s *EncryptedStore) Get(ctx context.Context, recordID string) (*Stored, error) {
	if err := validateRecordID(recordID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if entry, ok := s.cache[recordID]; ok {
		s.mu.Unlock()
		metrics.StoreOperations.WithLabelValues("get", "cache_hit").Inc()
		return entry.clone(), nil
	}
	s.mu.Unlock()

	fetched, err := s.fetch(ctx, recordID)
	if err != nil {
		metrics.StoreOperations.WithLabelValues("get", "failure").Inc()
		return nil, err
	}

	s.mu.Lock()
	s.cache[recordID] = fetched
	s.mu.Unlock()
	metrics.StoreOperations.WithLabelValues("get", "success").Inc()
	return fetched.clone(), nil
}

// fetch reads and decrypts one record from the backend.
func (s *EncryptedStore) fetch(ctx context.Context, recordID string) (*Stored, error) {
	blob, err := s.backend.Get(ctx, s.pathFor(recordID))
	if err != nil {
		return nil, err
	}
	return s.decryptBlob(blob, recordID)
}

// decryptBlob opens a stored blob and rehydrates semantic fields from
// their string forms.
func (s *EncryptedStore) decryptBlob(blob []byte, wantID string) (*Stored, error) {
	var rec wire.EncryptedRecord
	if err := json.Unmarshal(blob, &rec); err != nil {
		return nil, errors.Wrap(errors.CodeInvalidInput, "stored blob is not a record", err)
	}
	opened, err := s.eng.OpenRecord(&rec)
	if err != nil {
		return nil, err
	}
	var inner sealedValue
	if err := json.Unmarshal(opened.Data, &inner); err != nil {
		return nil, errors.Wrap(errors.CodeInvalidInput, "sealed value malformed", err)
	}
	if wantID != "" && inner.ID != wantID {
		return nil, errors.Newf(errors.CodeInvalidInput,
			"record id %q does not match requested %q", inner.ID, wantID)
	}
	storedAt, _ := time.Parse(time.RFC3339, rec.StoredAt)
	return &Stored{
		ID:             inner.ID,
		Value:          inner.Value,
		StoredAt:       storedAt,
		ConversationID: rec.ConversationID,
	}, nil
}

// List enumerates the owner's records, decrypting each. Entries that fail
// to decrypt are logged and skipped; they can be cross-session or
// rotated-identity artifacts.
func (s *EncryptedStore) List(ctx context.Context) ([]*Stored, error) {
	entries, err := s.backend.List(ctx, s.ownerPrefix())
	if err != nil {
		metrics.StoreOperations.WithLabelValues("list", "failure").Inc()
		return nil, err
	}

	results := make([]*Stored, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listDecryptConcurrency)
	for i, entry := range entries {
		if entry.Type != EntryFile {
			continue
		}
		recordID := strings.TrimSuffix(entry.Name, ".json")
		g.Go(func() error {
			blob, err := s.backend.Get(gctx, s.pathFor(recordID))
			if err != nil {
				s.log.Warn("list: unreadable record skipped",
					logger.String("record_id", recordID), logger.Error(err))
				return nil
			}
			stored, err := s.decryptBlob(blob, "")
			if err != nil {
				s.log.Warn("list: undecryptable record skipped",
					logger.String("record_id", recordID), logger.Error(err))
				return nil
			}
			results[i] = stored
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*Stored, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	metrics.StoreOperations.WithLabelValues("list", "success").Inc()
	return out, nil
}

// Delete hard-deletes the record from backend and cache.
func (s *EncryptedStore) Delete(ctx context.Context, recordID string) error {
	if err := validateRecordID(recordID); err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, s.pathFor(recordID)); err != nil {
		metrics.StoreOperations.WithLabelValues("delete", "failure").Inc()
		return err
	}
	s.mu.Lock()
	delete(s.cache, recordID)
	s.mu.Unlock()
	metrics.StoreOperations.WithLabelValues("delete", "success").Inc()
	return nil
}

// Exists checks the cache, then probes metadata without decrypting.
func (s *EncryptedStore) Exists(ctx context.Context, recordID string) (bool, error) {
	if err := validateRecordID(recordID); err != nil {
		return false, err
	}
	s.mu.Lock()
	_, hit := s.cache[recordID]
	s.mu.Unlock()
	if hit {
		return true, nil
	}
	info, err := s.backend.Metadata(ctx, s.pathFor(recordID))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return info != nil, nil
}

func (st *Stored) clone() *Stored {
	cp := *st
	cp.Value = append(json.RawMessage(nil), st.Value...)
	return &cp
}

func validateRecordID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\") {
		return errors.Newf(errors.CodeInvalidInput, "invalid record id %q", id)
	}
	return nil
}
