package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/target"
)

var _ target.Repo = (*TargetRepoImpl)(nil)

type TargetRepoImpl struct {
	db *DB
}

func NewTargetRepo(db *DB) *TargetRepoImpl { return &TargetRepoImpl{db: db} }

const (
	qTargetInsert = `
INSERT INTO targets (instance_id, url, enabled, expected_status_min, expected_status_max, login_rule)
VALUES (?, ?, ?, ?, ?, ?);
`

	qTargetSelect = `
SELECT id, instance_id, url, enabled, expected_status_min, expected_status_max, login_rule
FROM targets
`

	qTargetGetByID = qTargetSelect + `WHERE id = ?;`

	qTargetListByInstance = qTargetSelect + `WHERE instance_id = ? ORDER BY id;`

	qTargetListEnabled = qTargetSelect + `WHERE instance_id = ? AND enabled = 1 ORDER BY id;`

	qTargetUpdate = `
UPDATE targets
SET url = ?, enabled = ?, expected_status_min = ?, expected_status_max = ?, login_rule = ?
WHERE id = ?;
`
)

func scanTarget(row rowScanner, t *target.Target) error {
	var loginRule sql.NullString
	if err := row.Scan(
		&t.ID,
		&t.InstanceID,
		&t.URL,
		&t.Enabled,
		&t.ExpectedStatusMin,
		&t.ExpectedStatusMax,
		&loginRule,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan target: %w", err)
	}
	t.LoginRule = strPtr(loginRule)
	return nil
}

func (r *TargetRepoImpl) Create(ctx context.Context, t *target.Target) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if t.ExpectedStatusMin == 0 {
		t.ExpectedStatusMin = target.DefaultExpectedStatusMin
	}
	if t.ExpectedStatusMax == 0 {
		t.ExpectedStatusMax = target.DefaultExpectedStatusMax
	}
	res, err := r.db.q(ctx).ExecContext(ctx, qTargetInsert,
		t.InstanceID, t.URL, t.Enabled, t.ExpectedStatusMin, t.ExpectedStatusMax, nullStr(t.LoginRule),
	)
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("target id: %w", err)
	}
	t.ID = id
	return nil
}

func (r *TargetRepoImpl) GetByID(ctx context.Context, id int64) (*target.Target, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var t target.Target
	if err := scanTarget(r.db.q(ctx).QueryRowContext(ctx, qTargetGetByID, id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TargetRepoImpl) ListByInstance(ctx context.Context, instanceID string) ([]*target.Target, error) {
	return r.list(ctx, qTargetListByInstance, instanceID)
}

func (r *TargetRepoImpl) ListEnabledByInstance(ctx context.Context, instanceID string) ([]*target.Target, error) {
	return r.list(ctx, qTargetListEnabled, instanceID)
}

func (r *TargetRepoImpl) list(ctx context.Context, q string, args ...any) ([]*target.Target, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.q(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer rows.Close()

	var out []*target.Target
	for rows.Next() {
		var t target.Target
		if err := scanTarget(rows, &t); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *TargetRepoImpl) Update(ctx context.Context, t *target.Target) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	res, err := r.db.q(ctx).ExecContext(ctx, qTargetUpdate,
		t.URL, t.Enabled, t.ExpectedStatusMin, t.ExpectedStatusMax, nullStr(t.LoginRule), t.ID,
	)
	if err != nil {
		return fmt.Errorf("update target: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
