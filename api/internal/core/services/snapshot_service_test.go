package services_test

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/karidc/api/internal/core/domain"
	"github.com/irgordon/karidc/api/internal/core/domain/domaintest"
	"github.com/irgordon/karidc/api/internal/core/services"
	"github.com/irgordon/karidc/api/internal/core/update"
	"github.com/irgordon/karidc/api/internal/infrastructure/codec"
	"github.com/irgordon/karidc/api/internal/infrastructure/crypto"
)

// memSnapshots is a SnapshotRepository with the same optimistic rules as the
// Postgres one.
type memSnapshots struct {
	mu    sync.Mutex
	snaps map[string]domain.Snapshot
}

func newMemSnapshots() *memSnapshots { return &memSnapshots{snaps: map[string]domain.Snapshot{}} }

func (m *memSnapshots) Load(_ context.Context, kind, name string) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[kind+"/"+name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *memSnapshots) Save(_ context.Context, snap *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := snap.Kind + "/" + snap.Name
	if cur := m.snaps[key]; cur.Version != snap.Version {
		return domain.ErrConcurrencyConflict
	}
	snap.Version++
	m.snaps[key] = *snap
	return nil
}

func newSealer(t *testing.T) *crypto.AESCryptoService {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	svc, err := crypto.NewAESCryptoService(hex.EncodeToString(key))
	require.NoError(t, err)
	return svc
}

func TestSnapshotService_SealedRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newMemSnapshots()
	svc := services.NewSnapshotService(repo, codec.CBOR{}, newSealer(t), nil)

	d := domaintest.Domain()
	v, err := svc.SaveDomain(ctx, d, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	back, version, err := svc.LoadDomain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Equal(t, d.Fingerprint(), back.Fingerprint())

	_, err = svc.SaveDomain(ctx, d, 0)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	_, _, err = svc.LoadHost(ctx, domaintest.HostName)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSnapshotService_SwappedSnapshotFailsIntegrity(t *testing.T) {
	ctx := context.Background()
	repo := newMemSnapshots()
	svc := services.NewSnapshotService(repo, codec.CBOR{}, newSealer(t), nil)

	_, err := svc.SaveHost(ctx, domaintest.Host(), 0)
	require.NoError(t, err)

	// replay the host ciphertext as another host's snapshot
	stolen, err := repo.Load(ctx, domain.SnapshotHost, domaintest.HostName)
	require.NoError(t, err)
	stolen.Name = "node-2"
	stolen.Version = 0
	require.NoError(t, repo.Save(ctx, stolen))

	_, _, err = svc.LoadHost(ctx, "node-2")
	assert.ErrorContains(t, err, "integrity violation")
}

func TestSnapshotService_FingerprintMismatchIsCorruption(t *testing.T) {
	ctx := context.Background()
	repo := newMemSnapshots()
	svc := services.NewSnapshotService(repo, codec.CBOR{}, nil, nil)

	_, err := svc.SaveDomain(ctx, domaintest.Domain(), 0)
	require.NoError(t, err)
	snap, err := repo.Load(ctx, domain.SnapshotDomain, "")
	require.NoError(t, err)
	snap.Fingerprint++
	require.NoError(t, repo.Save(ctx, snap))

	_, _, err = svc.LoadDomain(ctx)
	assert.ErrorContains(t, err, "fingerprint")
}

func TestController_PersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	repo := newMemSnapshots()
	snapshots := services.NewSnapshotService(repo, codec.CBOR{}, newSealer(t), nil)

	c := services.NewController(domaintest.Domain(), []*domain.Host{domaintest.Host()}, services.ControllerDeps{Snapshots: snapshots})
	result, err := c.ApplyDomainUpdates(ctx, []update.DomainUpdate{
		&update.DomainPropertySet{Name: "region", Value: domain.Ptr("eu")},
	}, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Version)

	result, err = c.ApplyDomainUpdates(ctx, []update.DomainUpdate{
		&update.DomainPropertySet{Name: "zone", Value: domain.Ptr("a")},
	}, "test")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Version)
	want := c.DomainFingerprint()

	// a fresh process starts from the fixtures and picks the stored tree up
	restarted := services.NewController(domaintest.Domain(), []*domain.Host{domaintest.Host()}, services.ControllerDeps{Snapshots: snapshots})
	require.NoError(t, restarted.Restore(ctx))
	d, version := restarted.Domain()
	assert.Equal(t, 2, version)
	assert.Equal(t, want, d.Fingerprint())

	_, hostVersion, err := restarted.Host(domaintest.HostName)
	require.NoError(t, err)
	assert.Equal(t, 0, hostVersion)
}

func TestController_ConflictingWriterRevertsChange(t *testing.T) {
	ctx := context.Background()
	repo := newMemSnapshots()
	snapshots := services.NewSnapshotService(repo, codec.CBOR{}, nil, nil)

	// another controller already stored version 1
	_, err := snapshots.SaveDomain(ctx, domaintest.Domain(), 0)
	require.NoError(t, err)

	c := services.NewController(domaintest.Domain(), []*domain.Host{domaintest.Host()}, services.ControllerDeps{Snapshots: snapshots})
	before := c.DomainFingerprint()
	_, err = c.ApplyDomainUpdates(ctx, []update.DomainUpdate{
		&update.DomainPropertySet{Name: "region", Value: domain.Ptr("eu")},
	}, "test")
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	d, _ := c.Domain()
	assert.Equal(t, before, d.Fingerprint())
	assert.False(t, d.Properties().Has("region"))
}
