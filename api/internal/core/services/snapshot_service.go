package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/irgordon/karidc/api/internal/core/domain"
)

// SnapshotService encodes, seals and stores model trees.
type SnapshotService struct {
	repo          domain.SnapshotRepository
	codec         domain.ModelCodec
	cryptoService domain.CryptoService
	logger        *slog.Logger
}

// NewSnapshotService wires the snapshot pipeline. crypto may be nil, in which
// case documents are stored in the clear.
func NewSnapshotService(
	repo domain.SnapshotRepository,
	codec domain.ModelCodec,
	crypto domain.CryptoService,
	logger *slog.Logger,
) *SnapshotService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotService{
		repo:          repo,
		codec:         codec,
		cryptoService: crypto,
		logger:        logger,
	}
}

// associatedData binds a sealed document to the model it belongs to.
func associatedData(kind, name string) []byte {
	return []byte("karidc/" + kind + "/" + name)
}

func (s *SnapshotService) seal(ctx context.Context, kind, name string, doc []byte) ([]byte, error) {
	if s.cryptoService == nil {
		return doc, nil
	}
	sealed, err := s.cryptoService.Encrypt(ctx, doc, associatedData(kind, name))
	if err != nil {
		s.logger.Error("snapshot encryption failure", slog.String("kind", kind), slog.String("name", name))
		return nil, fmt.Errorf("cryptographic failure")
	}
	return []byte(sealed), nil
}

func (s *SnapshotService) open(ctx context.Context, snap *domain.Snapshot) ([]byte, error) {
	if s.cryptoService == nil {
		return snap.Document, nil
	}
	plain, err := s.cryptoService.Decrypt(ctx, string(snap.Document), associatedData(snap.Kind, snap.Name))
	if err != nil {
		return nil, fmt.Errorf("integrity violation: failed to open %s snapshot %q", snap.Kind, snap.Name)
	}
	return plain, nil
}

func (s *SnapshotService) save(ctx context.Context, kind, name string, version int, fp uint64, doc []byte) (int, error) {
	sealed, err := s.seal(ctx, kind, name, doc)
	if err != nil {
		return version, err
	}
	snap := &domain.Snapshot{Kind: kind, Name: name, Version: version, Fingerprint: fp, Document: sealed}
	if err := s.repo.Save(ctx, snap); err != nil {
		return version, fmt.Errorf("save %s snapshot: %w", kind, err)
	}
	return snap.Version, nil
}

// SaveDomain stores d on top of version and returns the new version.
func (s *SnapshotService) SaveDomain(ctx context.Context, d *domain.Domain, version int) (int, error) {
	doc, err := s.codec.EncodeDomain(d)
	if err != nil {
		return version, fmt.Errorf("encode domain: %w", err)
	}
	return s.save(ctx, domain.SnapshotDomain, "", version, d.Fingerprint(), doc)
}

// SaveHost stores h on top of version and returns the new version.
func (s *SnapshotService) SaveHost(ctx context.Context, h *domain.Host, version int) (int, error) {
	doc, err := s.codec.EncodeHost(h)
	if err != nil {
		return version, fmt.Errorf("encode host %q: %w", h.Name(), err)
	}
	return s.save(ctx, domain.SnapshotHost, h.Name(), version, h.Fingerprint(), doc)
}

// LoadDomain returns the stored domain and its version. A stored fingerprint
// that does not match the decoded tree is reported as corruption.
func (s *SnapshotService) LoadDomain(ctx context.Context) (*domain.Domain, int, error) {
	snap, err := s.repo.Load(ctx, domain.SnapshotDomain, "")
	if err != nil {
		return nil, 0, err
	}
	plain, err := s.open(ctx, snap)
	if err != nil {
		return nil, 0, err
	}
	d, err := s.codec.DecodeDomain(plain)
	if err != nil {
		return nil, 0, fmt.Errorf("decode domain: %w", err)
	}
	if snap.Fingerprint != 0 && d.Fingerprint() != snap.Fingerprint {
		return nil, 0, errors.New("stored domain does not match its fingerprint")
	}
	return d, snap.Version, nil
}

// LoadHost returns a stored host and its version.
func (s *SnapshotService) LoadHost(ctx context.Context, name string) (*domain.Host, int, error) {
	snap, err := s.repo.Load(ctx, domain.SnapshotHost, name)
	if err != nil {
		return nil, 0, err
	}
	plain, err := s.open(ctx, snap)
	if err != nil {
		return nil, 0, err
	}
	h, err := s.codec.DecodeHost(plain)
	if err != nil {
		return nil, 0, fmt.Errorf("decode host %q: %w", name, err)
	}
	if snap.Fingerprint != 0 && h.Fingerprint() != snap.Fingerprint {
		return nil, 0, fmt.Errorf("stored host %q does not match its fingerprint", name)
	}
	return h, snap.Version, nil
}
