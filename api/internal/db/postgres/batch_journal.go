package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/irgordon/karidc/api/internal/core/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// BatchJournal implements domain.BatchJournal on sqlx.
type BatchJournal struct {
	db *sqlx.DB
}

func NewBatchJournal(db *sqlx.DB) *BatchJournal {
	return &BatchJournal{db: db}
}

var _ domain.BatchJournal = (*BatchJournal)(nil)

// Record appends one batch outcome. Batch IDs are generated by the coordinator,
// so a replayed record is ignored instead of duplicated.
func (j *BatchJournal) Record(ctx context.Context, rec *domain.BatchRecord) error {
	const query = `
		INSERT INTO batch_journal (id, host, server, trigger, state, updates, failed, rolled_back,
			restart_required, detail, started_at, finished_at)
		VALUES (:id, :host, :server, :trigger, :state, :updates, :failed, :rolled_back,
			:restart_required, :detail, :started_at, :finished_at)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := j.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to journal batch %s: %w", rec.ID, err)
	}
	return nil
}

// List returns one page of the journal, newest first, plus the total match count.
func (j *BatchJournal) List(ctx context.Context, filter domain.BatchFilter) ([]domain.BatchRecord, int, error) {
	query, countQuery, args := batchQuery(filter)

	var total int
	if err := j.db.GetContext(ctx, &total, countQuery, args[:len(args)-2]...); err != nil {
		return nil, 0, fmt.Errorf("failed to count batches: %w", err)
	}

	records := []domain.BatchRecord{}
	if err := j.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to fetch batches: %w", err)
	}
	return records, total, nil
}

// batchQuery builds the page and count statements for filter. The last two
// args are LIMIT and OFFSET and belong to the page statement only.
func batchQuery(filter domain.BatchFilter) (query, countQuery string, args []any) {
	var where strings.Builder
	add := func(column string, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		fmt.Fprintf(&where, " AND %s = $%d", column, len(args))
	}
	add("host", filter.Host)
	add("server", filter.Server)
	add("state", filter.State)

	countQuery = `SELECT COUNT(*) FROM batch_journal WHERE 1=1` + where.String()

	// 🛡️ SLA Pagination Limits
	limit := filter.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := max(filter.Offset, 0)

	query = `SELECT id, host, server, trigger, state, updates, failed, rolled_back, restart_required,
		detail, started_at, finished_at FROM batch_journal WHERE 1=1` + where.String() +
		fmt.Sprintf(" ORDER BY finished_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	return query, countQuery, args
}
