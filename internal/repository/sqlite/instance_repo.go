package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/instance"
)

var _ instance.Repo = (*InstanceRepoImpl)(nil)

type InstanceRepoImpl struct {
	db *DB
}

func NewInstanceRepo(db *DB) *InstanceRepoImpl { return &InstanceRepoImpl{db: db} }

const (
	qInstanceInsert = `
INSERT INTO instances (id, display_name, enabled, is_paused, paused_until, check_interval_seconds, concurrency_limit, time_zone_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`

	qInstanceSelect = `
SELECT id, display_name, enabled, is_paused, paused_until, check_interval_seconds, concurrency_limit, time_zone_id, created_at
FROM instances
`

	qInstanceGetByID = qInstanceSelect + `WHERE id = ?;`

	qInstanceList = qInstanceSelect + `ORDER BY id;`

	qInstanceListEnabled = qInstanceSelect + `WHERE enabled = 1 ORDER BY id;`

	qInstanceUpdate = `
UPDATE instances
SET display_name = ?, enabled = ?, is_paused = ?, paused_until = ?, check_interval_seconds = ?, concurrency_limit = ?, time_zone_id = ?
WHERE id = ?;
`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner, i *instance.Instance) error {
	var (
		pausedUntil sql.NullString
		intervalSec int
		createdAt   string
	)
	if err := row.Scan(
		&i.ID,
		&i.DisplayName,
		&i.Enabled,
		&i.IsPaused,
		&pausedUntil,
		&intervalSec,
		&i.Concurrency,
		&i.TimeZoneID,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan instance: %w", err)
	}
	var err error
	if i.PausedUntil, err = parseTimePtr(pausedUntil); err != nil {
		return err
	}
	if i.CreatedAt, err = parseTime(createdAt); err != nil {
		return err
	}
	i.CheckInterval = time.Duration(intervalSec) * time.Second
	return nil
}

func (r *InstanceRepoImpl) Create(ctx context.Context, i *instance.Instance) error {
	if !instance.ValidID(i.ID) {
		return fmt.Errorf("%w: bad instance id %q", ErrConflict, i.ID)
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.q(ctx).ExecContext(ctx, qInstanceInsert,
		i.ID, i.DisplayName, i.Enabled, i.IsPaused, fmtTimePtr(i.PausedUntil),
		int(i.CheckInterval/time.Second), i.Concurrency, i.TimeZoneID, fmtTime(i.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}
	return nil
}

func (r *InstanceRepoImpl) GetByID(ctx context.Context, id string) (*instance.Instance, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var i instance.Instance
	if err := scanInstance(r.db.q(ctx).QueryRowContext(ctx, qInstanceGetByID, id), &i); err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *InstanceRepoImpl) List(ctx context.Context) ([]*instance.Instance, error) {
	return r.list(ctx, qInstanceList)
}

func (r *InstanceRepoImpl) ListEnabled(ctx context.Context) ([]*instance.Instance, error) {
	return r.list(ctx, qInstanceListEnabled)
}

func (r *InstanceRepoImpl) list(ctx context.Context, q string) ([]*instance.Instance, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.q(ctx).QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()

	var out []*instance.Instance
	for rows.Next() {
		var i instance.Instance
		if err := scanInstance(rows, &i); err != nil {
			return nil, err
		}
		out = append(out, &i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *InstanceRepoImpl) Update(ctx context.Context, i *instance.Instance) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	res, err := r.db.q(ctx).ExecContext(ctx, qInstanceUpdate,
		i.DisplayName, i.Enabled, i.IsPaused, fmtTimePtr(i.PausedUntil),
		int(i.CheckInterval/time.Second), i.Concurrency, i.TimeZoneID, i.ID,
	)
	if err != nil {
		return fmt.Errorf("update instance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
