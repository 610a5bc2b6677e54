package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/irgordon/karidc/api/internal/core/domain"
)

// SnapshotRepository implements domain.SnapshotRepository.
// 🛡️ SLA: Wraps the high-performance pgx connection pool.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new instance of the repository.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

var _ domain.SnapshotRepository = (*SnapshotRepository)(nil)

// Load fetches the stored document of one model tree.
func (r *SnapshotRepository) Load(ctx context.Context, kind, name string) (*domain.Snapshot, error) {
	const query = `
		SELECT kind, name, version, fingerprint, document, updated_at
		FROM model_snapshots
		WHERE kind = $1 AND name = $2;
	`

	var (
		s  domain.Snapshot
		fp int64
	)
	err := r.pool.QueryRow(ctx, query, kind, name).Scan(
		&s.Kind,
		&s.Name,
		&s.Version,
		&fp,
		&s.Document,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s snapshot %q: %w", kind, name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query %s snapshot: %w", kind, err)
	}
	s.Fingerprint = fromColumn(fp)
	return &s, nil
}

// Save writes the snapshot using Optimistic Concurrency Control (OCC).
// Version 0 means "nothing stored yet".
func (r *SnapshotRepository) Save(ctx context.Context, snap *domain.Snapshot) error {
	if snap.Kind != domain.SnapshotDomain && snap.Kind != domain.SnapshotHost {
		return fmt.Errorf("invalid snapshot kind %q", snap.Kind)
	}

	// 1. 🛡️ Zero-Trust SQL Injection Defense & OCC
	// The first write inserts; a concurrent first write loses the ON CONFLICT race.
	// Every later write requires `version = $5`.
	const insert = `
		INSERT INTO model_snapshots (kind, name, version, fingerprint, document, updated_at)
		VALUES ($1, $2, 1, $3, $4, $5)
		ON CONFLICT (kind, name) DO NOTHING;
	`
	const update = `
		UPDATE model_snapshots SET
			fingerprint = $3,
			document = $4,
			version = version + 1,
			updated_at = $6
		WHERE kind = $1 AND name = $2 AND version = $5;
	`

	now := time.Now().UTC()
	fp := toColumn(snap.Fingerprint)

	var (
		affected int64
		err      error
	)
	if snap.Version == 0 {
		tag, execErr := r.pool.Exec(ctx, insert, snap.Kind, snap.Name, fp, snap.Document, now)
		affected, err = tag.RowsAffected(), execErr
	} else {
		tag, execErr := r.pool.Exec(ctx, update, snap.Kind, snap.Name, fp, snap.Document, snap.Version, now)
		affected, err = tag.RowsAffected(), execErr
	}
	if err != nil {
		return fmt.Errorf("failed to save %s snapshot: %w", snap.Kind, err)
	}

	// 2. 🛡️ Stability: The Optimistic Lock Evaluation
	// Zero rows means another writer moved the version first.
	if affected == 0 {
		return domain.ErrConcurrencyConflict
	}

	snap.Version++
	snap.UpdatedAt = now
	return nil
}

// BIGINT is signed; fingerprints are stored bit-for-bit.
func toColumn(fp uint64) int64  { return int64(fp) }
func fromColumn(v int64) uint64 { return uint64(v) }
