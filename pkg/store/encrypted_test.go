package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabstir/llm-session-go/pkg/crypto/keys"
	"github.com/fabstir/llm-session-go/pkg/engine"
	"github.com/fabstir/llm-session-go/pkg/errors"
	"github.com/fabstir/llm-session-go/pkg/store/memory"
)

type conversation struct {
	Title    string   `json:"title"`
	Messages []string `json:"messages"`
}

func testConfig() Config {
	return Config{
		MaxAttempts:      3,
		BaseDelay:        time.Millisecond,
		OperationTimeout: time.Second,
		WaitForNetwork:   true,
	}
}

func newTestStore(t *testing.T) (*EncryptedStore, *memory.Store, *engine.Engine) {
	t.Helper()
	kp, err := keys.FromSeed(ethcrypto.Keccak256([]byte("owner/1")))
	require.NoError(t, err)
	eng := engine.New(kp)

	backend := memory.New()
	s, err := New(eng, backend, testConfig())
	require.NoError(t, err)
	return s, backend, eng
}

func TestPutGetRoundTrip(t *testing.T) {
	s, backend, eng := newTestStore(t)
	ctx := context.Background()

	value := &conversation{Title: "t", Messages: []string{"hi", "there"}}
	require.NoError(t, s.Put(ctx, "conv-1", value, PutOptions{}))

	got, err := s.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", got.ID)
	assert.False(t, got.StoredAt.IsZero())
	assert.Len(t, got.ConversationID, 32)

	var back conversation
	require.NoError(t, json.Unmarshal(got.Value, &back))
	assert.Equal(t, *value, back)

	// The blob lives under root/<owner-address>/<record-id>.json.
	path := "conversations/" + eng.Address().Hex() + "/conv-1.json"
	_, err = backend.Get(ctx, path)
	require.NoError(t, err)
}

func TestGetIsCacheFirst(t *testing.T) {
	s, backend, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "conv-1", &conversation{Title: "t"}, PutOptions{}))

	// Breaking the backend does not affect cached reads.
	backend.FailGets = 100
	got, err := s.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", got.ID)
}

func TestGetReturnsSnapshots(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "conv-1", &conversation{Title: "t"}, PutOptions{}))

	a, err := s.Get(ctx, "conv-1")
	require.NoError(t, err)
	a.Value[0] = 'X' // mutating the snapshot must not leak into the cache

	b, err := s.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.NotEqual(t, a.Value[0], b.Value[0])
}

func TestPutRetriesTransientFailures(t *testing.T) {
	s, backend, _ := newTestStore(t)
	ctx := context.Background()

	backend.FailPuts = 2 // two failures, third attempt succeeds
	require.NoError(t, s.Put(ctx, "conv-1", &conversation{Title: "t"}, PutOptions{}))
	assert.Equal(t, 1, backend.Len())
}

func TestPutExhaustedRetriesFail(t *testing.T) {
	s, backend, _ := newTestStore(t)
	ctx := context.Background()

	backend.FailPuts = 3
	err := s.Put(ctx, "conv-1", &conversation{Title: "t"}, PutOptions{})
	require.Error(t, err)
	assert.Equal(t, 0, backend.Len())
}

func TestNetworkVerificationFailurePreservesLocalWrite(t *testing.T) {
	s, backend, _ := newTestStore(t)
	ctx := context.Background()

	backend.FailGets = 3 // the verification re-reads all fail
	err := s.Put(ctx, "conv-1", &conversation{Title: "t"}, PutOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNetworkVerificationFailed))

	// The local write is preserved: cache still serves the record.
	got, err := s.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", got.ID)
}

func TestPutWithoutNetworkVerification(t *testing.T) {
	s, backend, _ := newTestStore(t)
	ctx := context.Background()

	noWait := false
	backend.FailGets = 100
	require.NoError(t, s.Put(ctx, "conv-1", &conversation{Title: "t"}, PutOptions{WaitForNetwork: &noWait}))
}

func TestExternalRetryCoordinator(t *testing.T) {
	kp, err := keys.FromSeed(ethcrypto.Keccak256([]byte("owner/1")))
	require.NoError(t, err)
	eng := engine.New(kp)

	backend := memory.New()
	calls := 0
	cfg := testConfig()
	cfg.WaitForNetwork = false
	cfg.Retryer = func(ctx context.Context, op func(context.Context) error) error {
		calls++
		return op(ctx)
	}
	s, err := New(eng, backend, cfg)
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), "conv-1", &conversation{Title: "t"}, PutOptions{}))
	assert.Equal(t, 1, calls)
}

func TestListSkipsUndecryptableEntries(t *testing.T) {
	s, backend, eng := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "conv-1", &conversation{Title: "a"}, PutOptions{}))
	require.NoError(t, s.Put(ctx, "conv-2", &conversation{Title: "b"}, PutOptions{}))

	// A record sealed by a different identity lands in the owner's path
	// (e.g. a rotated identity); it is skipped, not fatal.
	otherKP, err := keys.Generate()
	require.NoError(t, err)
	other := engine.New(otherKP)
	otherStore, err := New(other, backend, testConfig())
	require.NoError(t, err)
	require.NoError(t, otherStore.Put(ctx, "foreign", &conversation{Title: "x"}, PutOptions{}))
	foreignPath := "conversations/" + eng.Address().Hex() + "/foreign.json"
	blob, err := backend.Get(ctx, "conversations/"+other.Address().Hex()+"/foreign.json")
	require.NoError(t, err)
	require.NoError(t, backend.Put(ctx, foreignPath, blob))

	// Garbage alongside is skipped too.
	garbage := "conversations/" + eng.Address().Hex() + "/garbage.json"
	require.NoError(t, backend.Put(ctx, garbage, []byte("not a record")))

	records, err := s.List(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"conv-1", "conv-2"}, ids)
}

func TestDeleteIsHard(t *testing.T) {
	s, backend, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "conv-1", &conversation{Title: "t"}, PutOptions{}))
	require.NoError(t, s.Delete(ctx, "conv-1"))
	assert.Equal(t, 0, backend.Len())

	_, err := s.Get(ctx, "conv-1")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestExists(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "conv-1", &conversation{Title: "t"}, PutOptions{}))
	ok, err = s.Exists(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTenantIsolation(t *testing.T) {
	s, backend, eng := newTestStore(t)
	ctx := context.Background()

	otherKP, err := keys.Generate()
	require.NoError(t, err)
	otherStore, err := New(engine.New(otherKP), backend, testConfig())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "conv-1", &conversation{Title: "mine"}, PutOptions{}))
	require.NoError(t, otherStore.Put(ctx, "conv-1", &conversation{Title: "theirs"}, PutOptions{}))

	mine, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	var got conversation
	require.NoError(t, json.Unmarshal(mine[0].Value, &got))
	assert.Equal(t, "mine", got.Title)

	// Paths are distinct per owner address.
	assert.NotEqual(t, eng.Address(), engine.New(otherKP).Address())
	assert.Equal(t, 2, backend.Len())
}

func TestRecordIDValidation(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"", "a/b", `a\b`} {
		err := s.Put(ctx, id, &conversation{}, PutOptions{})
		assert.True(t, errors.Is(err, errors.ErrInvalidInput), "id %q", id)
	}
}

func TestSealedValueEmbedsID(t *testing.T) {
	s, backend, eng := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "conv-1", &conversation{Title: "t"}, PutOptions{}))

	// Rewriting conv-2's path with conv-1's blob makes verification of the
	// embedded id fail on read.
	blob, err := backend.Get(ctx, "conversations/"+eng.Address().Hex()+"/conv-1.json")
	require.NoError(t, err)
	require.NoError(t, backend.Put(ctx, "conversations/"+eng.Address().Hex()+"/conv-2.json", blob))

	_, err = s.Get(ctx, "conv-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestStoredTimestampsRehydrate(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, s.Put(ctx, "conv-1", &conversation{Title: "t"}, PutOptions{}))

	got, err := s.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, got.StoredAt.After(before))
}
