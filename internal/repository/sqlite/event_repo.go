package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/event"
)

var _ event.Repo = (*EventRepoImpl)(nil)

type EventRepoImpl struct {
	db *DB
}

func NewEventRepo(db *DB) *EventRepoImpl { return &EventRepoImpl{db: db} }

const (
	qEventInsert = `
INSERT INTO events (instance_id, target_id, ts, type, message)
VALUES (?, ?, ?, ?, ?);
`

	qEventListByInstance = `
SELECT id, instance_id, target_id, ts, type, message
FROM events
WHERE instance_id = ?
ORDER BY id DESC
LIMIT ?;
`
)

func scanEvent(row rowScanner, e *event.Event) error {
	var (
		targetID sql.NullInt64
		ts       string
		typ      string
	)
	if err := row.Scan(&e.ID, &e.InstanceID, &targetID, &ts, &typ, &e.Message); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan event: %w", err)
	}
	if targetID.Valid {
		v := targetID.Int64
		e.TargetID = &v
	}
	var err error
	if e.Timestamp, err = parseTime(ts); err != nil {
		return err
	}
	e.Type = event.Type(typ)
	return nil
}

func (r *EventRepoImpl) Insert(ctx context.Context, e *event.Event) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var targetID any
	if e.TargetID != nil {
		targetID = *e.TargetID
	}
	res, err := r.db.q(ctx).ExecContext(ctx, qEventInsert,
		e.InstanceID, targetID, fmtTime(e.Timestamp), string(e.Type), e.Message,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	e.ID = id
	return nil
}

func (r *EventRepoImpl) ListByInstance(ctx context.Context, instanceID string, limit int) ([]*event.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.q(ctx).QueryContext(ctx, qEventListByInstance, instanceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		var e event.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
