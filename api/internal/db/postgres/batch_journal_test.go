package postgres

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/irgordon/karidc/api/internal/core/domain"
)

func TestBatchQuery(t *testing.T) {
	t.Run("no filter pages with defaults", func(t *testing.T) {
		query, count, args := batchQuery(domain.BatchFilter{})

		assert.Equal(t, `SELECT COUNT(*) FROM batch_journal WHERE 1=1`, count)
		assert.True(t, strings.HasSuffix(query, " ORDER BY finished_at DESC LIMIT $1 OFFSET $2"))
		assert.Equal(t, []any{defaultPageSize, 0}, args)
	})

	t.Run("filters are numbered in order", func(t *testing.T) {
		query, count, args := batchQuery(domain.BatchFilter{
			Host: "node-1", State: "rolled-back", Limit: 10, Offset: 20,
		})

		assert.Equal(t, `SELECT COUNT(*) FROM batch_journal WHERE 1=1 AND host = $1 AND state = $2`, count)
		assert.Contains(t, query, " AND host = $1 AND state = $2 ORDER BY")
		assert.True(t, strings.HasSuffix(query, "LIMIT $3 OFFSET $4"))
		assert.Equal(t, []any{"node-1", "rolled-back", 10, 20}, args)
	})

	t.Run("limits are clamped", func(t *testing.T) {
		_, _, args := batchQuery(domain.BatchFilter{Server: "server-one", Limit: 5000, Offset: -3})

		assert.Equal(t, []any{"server-one", defaultPageSize, 0}, args)
	})
}

func TestFingerprintColumn(t *testing.T) {
	for _, fp := range []uint64{0, 1, math.MaxInt64, math.MaxInt64 + 1, math.MaxUint64} {
		assert.Equal(t, fp, fromColumn(toColumn(fp)))
	}
	assert.Equal(t, int64(-1), toColumn(math.MaxUint64))
}
