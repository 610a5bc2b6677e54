package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is idempotent; the daemon applies it on start.
const Schema = `
CREATE TABLE IF NOT EXISTS model_snapshots (
	kind        TEXT        NOT NULL CHECK (kind IN ('domain', 'host')),
	name        TEXT        NOT NULL,
	version     INTEGER     NOT NULL,
	fingerprint BIGINT      NOT NULL,
	document    BYTEA       NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (kind, name)
);

CREATE TABLE IF NOT EXISTS batch_journal (
	id               UUID PRIMARY KEY,
	host             TEXT        NOT NULL,
	server           TEXT        NOT NULL,
	trigger          TEXT        NOT NULL,
	state            TEXT        NOT NULL,
	updates          INTEGER     NOT NULL,
	failed           INTEGER     NOT NULL,
	rolled_back      INTEGER     NOT NULL,
	restart_required BOOLEAN     NOT NULL,
	detail           TEXT        NOT NULL DEFAULT '',
	started_at       TIMESTAMPTZ NOT NULL,
	finished_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS batch_journal_server_idx ON batch_journal (host, server, finished_at DESC);
`

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
