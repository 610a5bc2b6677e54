package contentstore_test

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/karidc/api/internal/adapters/contentstore"
	"github.com/irgordon/karidc/api/internal/core/domain"
	"github.com/irgordon/karidc/api/internal/core/domain/domaintest"
	"github.com/irgordon/karidc/api/internal/core/update"
)

var _ update.ContentStore = (*contentstore.Store)(nil)

func TestStore_PutMatchesDomainHash(t *testing.T) {
	s, err := contentstore.New(t.TempDir(), nil)
	require.NoError(t, err)

	hash, err := s.Put(context.Background(), bytes.NewReader(domaintest.AppContent))
	require.NoError(t, err)
	assert.Equal(t, domaintest.AppHash, hash)
	assert.True(t, s.Has(hash))

	again, err := s.Put(context.Background(), bytes.NewReader(domaintest.AppContent))
	require.NoError(t, err)
	assert.Equal(t, hash, again)
}

func TestStore_MountsAreSharedAndCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := contentstore.New(t.TempDir(), nil)
	require.NoError(t, err)
	hash, err := s.Put(ctx, bytes.NewReader(domaintest.AppContent))
	require.NoError(t, err)

	a, err := s.Mount(ctx, hash)
	require.NoError(t, err)
	b, err := s.Mount(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, a.Path(), b.Path())
	assert.Equal(t, 2, s.Mounted(hash))

	data, err := os.ReadFile(a.Path())
	require.NoError(t, err)
	assert.Equal(t, domaintest.AppContent, data)

	assert.ErrorIs(t, s.Remove(hash), contentstore.ErrContentInUse)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, 1, s.Mounted(hash))
	require.NoError(t, b.Close())
	assert.Equal(t, 0, s.Mounted(hash))

	require.NoError(t, s.Remove(hash))
	assert.False(t, s.Has(hash))
}

func TestStore_MountMissingContent(t *testing.T) {
	s, err := contentstore.New(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = s.Mount(context.Background(), domain.HashContent([]byte("never stored")))
	assert.ErrorIs(t, err, contentstore.ErrContentMissing)
}

func TestStore_PutHonoursCancellation(t *testing.T) {
	s, err := contentstore.New(t.TempDir(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Put(ctx, bytes.NewReader(domaintest.AppContent))
	assert.ErrorIs(t, err, context.Canceled)
}
