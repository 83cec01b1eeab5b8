package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabstir/llm-session-go/pkg/errors"
	"github.com/fabstir/llm-session-go/pkg/store"
)

func TestPutGetDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "root/a/x.json", []byte("data")))

	got, err := s.Get(ctx, "root/a/x.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)

	// Returned slices are copies.
	got[0] = 'X'
	again, err := s.Get(ctx, "root/a/x.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), again)

	require.NoError(t, s.Delete(ctx, "root/a/x.json"))
	_, err = s.Get(ctx, "root/a/x.json")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.True(t, errors.Is(s.Delete(ctx, "root/a/x.json"), errors.ErrNotFound))
}

func TestListDirectChildren(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "root/a/x.json", []byte("1")))
	require.NoError(t, s.Put(ctx, "root/a/y.json", []byte("2")))
	require.NoError(t, s.Put(ctx, "root/a/sub/z.json", []byte("3")))
	require.NoError(t, s.Put(ctx, "root/b/w.json", []byte("4")))

	entries, err := s.List(ctx, "root/a")
	require.NoError(t, err)
	assert.Equal(t, []store.Entry{
		{Type: store.EntryDirectory, Name: "sub"},
		{Type: store.EntryFile, Name: "x.json"},
		{Type: store.EntryFile, Name: "y.json"},
	}, entries)
}

func TestMetadata(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "root/x.json", []byte("12345")))

	info, err := s.Metadata(ctx, "root/x.json")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.False(t, info.ModifiedAt.IsZero())

	_, err = s.Metadata(ctx, "root/missing.json")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestInjectedFailures(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.FailPuts = 1
	require.Error(t, s.Put(ctx, "p", []byte("x")))
	require.NoError(t, s.Put(ctx, "p", []byte("x")))

	s.FailGets = 1
	_, err := s.Get(ctx, "p")
	require.Error(t, err)
	_, err = s.Get(ctx, "p")
	require.NoError(t, err)
}
