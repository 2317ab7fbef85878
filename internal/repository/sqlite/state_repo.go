package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/target"
)

var _ target.StateRepo = (*StateRepoImpl)(nil)

type StateRepoImpl struct {
	db *DB
}

func NewStateRepo(db *DB) *StateRepoImpl { return &StateRepoImpl{db: db} }

const (
	qStateCols = `target_id, is_up, last_check_at, state_since, last_change_at, consecutive_failures,
last_summary, last_final_url, last_used_ip, last_login_type, login_detected_last, login_detected_ever,
down_first_notified_at, last_notified_at, next_notify_at, recovered_due_at, recovered_notified_at`

	qStateGet = `SELECT ` + qStateCols + ` FROM target_state WHERE target_id = ?;`

	qStateListByInstance = `
SELECT ` + qStateCols + `
FROM target_state
WHERE target_id IN (SELECT id FROM targets WHERE instance_id = ?)
ORDER BY target_id;
`

	qStateUpsert = `
INSERT INTO target_state (` + qStateCols + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(target_id) DO UPDATE SET
  is_up = excluded.is_up,
  last_check_at = excluded.last_check_at,
  state_since = excluded.state_since,
  last_change_at = excluded.last_change_at,
  consecutive_failures = excluded.consecutive_failures,
  last_summary = excluded.last_summary,
  last_final_url = excluded.last_final_url,
  last_used_ip = excluded.last_used_ip,
  last_login_type = excluded.last_login_type,
  login_detected_last = excluded.login_detected_last,
  login_detected_ever = excluded.login_detected_ever,
  down_first_notified_at = excluded.down_first_notified_at,
  last_notified_at = excluded.last_notified_at,
  next_notify_at = excluded.next_notify_at,
  recovered_due_at = excluded.recovered_due_at,
  recovered_notified_at = excluded.recovered_notified_at;
`

	qStateUpdateAlert = `
UPDATE target_state
SET down_first_notified_at = ?, last_notified_at = ?, next_notify_at = ?, recovered_due_at = ?, recovered_notified_at = ?
WHERE target_id = ?;
`
)

func scanState(row rowScanner, s *target.State) error {
	var (
		lastCheckAt  string
		stateSince   string
		lastChangeAt string
		finalURL     sql.NullString
		usedIP       sql.NullString
		loginType    sql.NullString
		downFirst    sql.NullString
		lastNotified sql.NullString
		nextNotify   sql.NullString
		recDue       sql.NullString
		recNotified  sql.NullString
	)
	if err := row.Scan(
		&s.TargetID,
		&s.IsUp,
		&lastCheckAt,
		&stateSince,
		&lastChangeAt,
		&s.ConsecutiveFailures,
		&s.LastSummary,
		&finalURL,
		&usedIP,
		&loginType,
		&s.LoginDetectedLast,
		&s.LoginDetectedEver,
		&downFirst,
		&lastNotified,
		&nextNotify,
		&recDue,
		&recNotified,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan state: %w", err)
	}
	var err error
	if s.LastCheckAt, err = parseTime(lastCheckAt); err != nil {
		return err
	}
	if s.StateSince, err = parseTime(stateSince); err != nil {
		return err
	}
	if s.LastChangeAt, err = parseTime(lastChangeAt); err != nil {
		return err
	}
	s.LastFinalURL = strPtr(finalURL)
	s.LastUsedIP = strPtr(usedIP)
	s.LastLoginType = strPtr(loginType)
	if s.DownFirstNotifiedAt, err = parseTimePtr(downFirst); err != nil {
		return err
	}
	if s.LastNotifiedAt, err = parseTimePtr(lastNotified); err != nil {
		return err
	}
	if s.NextNotifyAt, err = parseTimePtr(nextNotify); err != nil {
		return err
	}
	if s.RecoveredDueAt, err = parseTimePtr(recDue); err != nil {
		return err
	}
	if s.RecoveredNotifiedAt, err = parseTimePtr(recNotified); err != nil {
		return err
	}
	return nil
}

func (r *StateRepoImpl) Get(ctx context.Context, targetID int64) (*target.State, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var s target.State
	if err := scanState(r.db.q(ctx).QueryRowContext(ctx, qStateGet, targetID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *StateRepoImpl) GetForTargets(ctx context.Context, targetIDs []int64) (map[int64]*target.State, error) {
	out := make(map[int64]*target.State, len(targetIDs))
	if len(targetIDs) == 0 {
		return out, nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	ph := make([]string, len(targetIDs))
	args := make([]any, len(targetIDs))
	for i, id := range targetIDs {
		ph[i] = "?"
		args[i] = id
	}
	q := `SELECT ` + qStateCols + ` FROM target_state WHERE target_id IN (` + strings.Join(ph, ",") + `);`

	rows, err := r.db.q(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s target.State
		if err := scanState(rows, &s); err != nil {
			return nil, err
		}
		out[s.TargetID] = &s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *StateRepoImpl) ListByInstance(ctx context.Context, instanceID string) ([]*target.State, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.q(ctx).QueryContext(ctx, qStateListByInstance, instanceID)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()

	var out []*target.State
	for rows.Next() {
		var s target.State
		if err := scanState(rows, &s); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *StateRepoImpl) Upsert(ctx context.Context, s *target.State) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.q(ctx).ExecContext(ctx, qStateUpsert,
		s.TargetID, s.IsUp, fmtTime(s.LastCheckAt), fmtTime(s.StateSince), fmtTime(s.LastChangeAt),
		s.ConsecutiveFailures, s.LastSummary, nullStr(s.LastFinalURL), nullStr(s.LastUsedIP),
		nullStr(s.LastLoginType), s.LoginDetectedLast, s.LoginDetectedEver,
		fmtTimePtr(s.DownFirstNotifiedAt), fmtTimePtr(s.LastNotifiedAt), fmtTimePtr(s.NextNotifyAt),
		fmtTimePtr(s.RecoveredDueAt), fmtTimePtr(s.RecoveredNotifiedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

func (r *StateRepoImpl) UpdateAlertFields(ctx context.Context, s *target.State) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	res, err := r.db.q(ctx).ExecContext(ctx, qStateUpdateAlert,
		fmtTimePtr(s.DownFirstNotifiedAt), fmtTimePtr(s.LastNotifiedAt), fmtTimePtr(s.NextNotifyAt),
		fmtTimePtr(s.RecoveredDueAt), fmtTimePtr(s.RecoveredNotifiedAt), s.TargetID,
	)
	if err != nil {
		return fmt.Errorf("update alert fields: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
