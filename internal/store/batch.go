package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxBatch is a thin queue-then-send wrapper around pgx.Batch, used by the
// tick batch writer to commit up to N=1000 ticks in one round trip.
type pgxBatch struct {
	batch pgx.Batch
}

func (b *pgxBatch) queue(sql string, args ...interface{}) {
	b.batch.Queue(sql, args...)
}

// execAll sends the queued statements and returns how many rows were
// affected in total (duplicates silently excluded by ON CONFLICT DO NOTHING).
func (b *pgxBatch) execAll(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	n := b.batch.Len()
	if n == 0 {
		return 0, nil
	}
	br := pool.SendBatch(ctx, &b.batch)
	defer br.Close()

	affected := 0
	for i := 0; i < n; i++ {
		tag, err := br.Exec()
		if err != nil {
			return affected, err
		}
		affected += int(tag.RowsAffected())
	}
	return affected, nil
}
