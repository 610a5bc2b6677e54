// Package contentstore keeps deployment content on disk, addressed by its
// BLAKE3 hash, and hands out shared read-only mounts of it.
package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/irgordon/karidc/api/internal/core/domain"
	"github.com/irgordon/karidc/api/internal/core/update"
)

var (
	ErrContentMissing = errors.New("content not found")
	ErrContentInUse   = errors.New("content is mounted")
	ErrHashMismatch   = errors.New("content does not match its hash")
)

// Store is a content-addressed file store. It implements update.ContentStore.
type Store struct {
	root   string
	logger *slog.Logger

	mu     sync.Mutex
	mounts map[domain.ContentHash]*mount
}

type mount struct {
	hash domain.ContentHash
	path string
	refs int
}

func New(root string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("content root %s: %w", root, err)
	}
	return &Store{root: root, logger: logger, mounts: make(map[domain.ContentHash]*mount)}, nil
}

// path fans content out over 256 directories keyed by the first hash byte.
func (s *Store) path(hash domain.ContentHash) string {
	hex := hash.String()
	return filepath.Join(s.root, hex[:2], hex[2:])
}

// Put streams r into the store and returns its hash. Storing content that is
// already present is a no-op.
func (s *Store) Put(ctx context.Context, r io.Reader) (domain.ContentHash, error) {
	var hash domain.ContentHash
	tmp, err := os.CreateTemp(s.root, ".incoming-*")
	if err != nil {
		return hash, fmt.Errorf("staging content: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := blake3.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), readerWithContext(ctx, r)); err != nil {
		tmp.Close()
		return hash, fmt.Errorf("staging content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return hash, fmt.Errorf("staging content: %w", err)
	}
	copy(hash[:], hasher.Sum(nil))

	dst := s.path(hash)
	if _, err := os.Stat(dst); err == nil {
		return hash, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return hash, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return hash, fmt.Errorf("storing content %s: %w", hash, err)
	}
	if err := os.Chmod(dst, 0o440); err != nil {
		return hash, err
	}
	s.logger.Info("content stored", slog.String("hash", hash.String()))
	return hash, nil
}

func (s *Store) Has(hash domain.ContentHash) bool {
	_, err := os.Stat(s.path(hash))
	return err == nil
}

// Mount returns a handle on the content. Every Mount of the same hash shares
// one verified entry until the last handle is closed.
func (s *Store) Mount(ctx context.Context, hash domain.ContentHash) (update.MountedContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mounts[hash]
	if !ok {
		p := s.path(hash)
		if err := verify(ctx, p, hash); err != nil {
			return nil, err
		}
		m = &mount{hash: hash, path: p}
		s.mounts[hash] = m
	}
	m.refs++
	return &handle{store: s, m: m}, nil
}

// Mounted reports how many open handles share the content.
func (s *Store) Mounted(hash domain.ContentHash) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.mounts[hash]; ok {
		return m.refs
	}
	return 0
}

// Remove deletes content that nothing has mounted.
func (s *Store) Remove(hash domain.ContentHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mounts[hash]; ok {
		return fmt.Errorf("%s: %w", hash, ErrContentInUse)
	}
	if err := os.Remove(s.path(hash)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", hash, ErrContentMissing)
		}
		return err
	}
	return nil
}

func (s *Store) release(m *mount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.refs--
	if m.refs <= 0 {
		delete(s.mounts, m.hash)
	}
}

func verify(ctx context.Context, path string, want domain.ContentHash) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", want, ErrContentMissing)
		}
		return err
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, readerWithContext(ctx, f)); err != nil {
		return err
	}
	var got domain.ContentHash
	copy(got[:], hasher.Sum(nil))
	if got != want {
		return fmt.Errorf("%s: %w", want, ErrHashMismatch)
	}
	return nil
}

type handle struct {
	store *Store
	m     *mount
	once  sync.Once
}

func (h *handle) Path() string             { return h.m.path }
func (h *handle) Hash() domain.ContentHash { return h.m.hash }

func (h *handle) Close() error {
	h.once.Do(func() { h.store.release(h.m) })
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader { return ctxReader{ctx, r} }

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
