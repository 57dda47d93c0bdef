package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agreemo/dashboard/backend/internal/model"
)

type PollRunRepository struct {
	pool *pgxpool.Pool
}

func NewPollRunRepository(pool *pgxpool.Pool) *PollRunRepository {
	return &PollRunRepository{pool: pool}
}

func (r *PollRunRepository) Record(ctx context.Context, run *model.PollRun) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO poll_runs (domain, started_at, duration_ms, changed, fingerprint, error)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		run.Domain, run.StartedAt, run.DurationMs, run.Changed, run.Fingerprint, run.Error,
	).Scan(&run.ID)
}

func (r *PollRunRepository) ListRecent(ctx context.Context, domain string, limit int) ([]model.PollRun, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, domain, started_at, duration_ms, changed, fingerprint, error
		FROM poll_runs
		WHERE domain = $1
		ORDER BY started_at DESC, id DESC
		LIMIT $2`, domain, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.PollRun
	for rows.Next() {
		var run model.PollRun
		if err := rows.Scan(&run.ID, &run.Domain, &run.StartedAt, &run.DurationMs,
			&run.Changed, &run.Fingerprint, &run.Error); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Prune deletes runs older than the retention window and returns how many
// rows were removed.
func (r *PollRunRepository) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM poll_runs WHERE started_at < $1`, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
