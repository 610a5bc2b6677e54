package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/karidc/api/internal/adapters/watch"
)

func TestDocumentWatcher_CoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "domain.yaml")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("profiles: []\n"), 0o600))

	var loads atomic.Int32
	var last atomic.Value
	w := watch.NewDocumentWatcher(100*time.Millisecond, nil, watch.Target{
		Path: path,
		Load: func(_ context.Context, p string) error {
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			last.Store(string(data))
			loads.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o600))
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("profiles: [{name: base}]\n"), 0o600))
	}

	require.Eventually(t, func() bool { return loads.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, "profiles: [{name: base}]\n", last.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
