package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Snapshot kinds.
const (
	SnapshotDomain = "domain"
	SnapshotHost   = "host"
)

// Snapshot is a stored, encoded copy of a Domain or Host tree.
type Snapshot struct {
	Kind        string
	Name        string // host name, or "" for the domain
	Version     int
	Fingerprint uint64
	Document    []byte
	UpdatedAt   time.Time
}

// SnapshotRepository persists model snapshots with optimistic concurrency.
type SnapshotRepository interface {
	// Load returns ErrNotFound when nothing was stored yet.
	Load(ctx context.Context, kind, name string) (*Snapshot, error)

	// Save stores snap if the stored version still equals snap.Version and
	// bumps snap.Version on success. A moved version yields ErrConcurrencyConflict.
	Save(ctx context.Context, snap *Snapshot) error
}

// ModelCodec turns trees into stored documents and back.
type ModelCodec interface {
	EncodeDomain(d *Domain) ([]byte, error)
	DecodeDomain(data []byte) (*Domain, error)
	EncodeHost(h *Host) ([]byte, error)
	DecodeHost(data []byte) (*Host, error)
}

// BatchRecord is the journal entry of one server batch.
type BatchRecord struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Host            string    `json:"host" db:"host"`
	Server          string    `json:"server" db:"server"`
	Trigger         string    `json:"trigger" db:"trigger"`
	State           string    `json:"state" db:"state"`
	Updates         int       `json:"updates" db:"updates"`
	Failed          int       `json:"failed" db:"failed"`
	RolledBack      int       `json:"rolled_back" db:"rolled_back"`
	RestartRequired bool      `json:"restart_required" db:"restart_required"`
	Detail          string    `json:"detail,omitempty" db:"detail"`
	StartedAt       time.Time `json:"started_at" db:"started_at"`
	FinishedAt      time.Time `json:"finished_at" db:"finished_at"`
}

// BatchFilter narrows journal queries. Zero values mean "any".
type BatchFilter struct {
	Host   string
	Server string
	State  string
	Limit  int
	Offset int
}

// BatchJournal is the append-only history of applied batches.
type BatchJournal interface {
	Record(ctx context.Context, rec *BatchRecord) error
	List(ctx context.Context, filter BatchFilter) ([]BatchRecord, int, error)
}
