package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/check"
)

var _ check.Repo = (*CheckRepoImpl)(nil)

type CheckRepoImpl struct {
	db *DB
}

func NewCheckRepo(db *DB) *CheckRepoImpl { return &CheckRepoImpl{db: db} }

const (
	qCheckInsert = `
INSERT INTO checks (target_id, ts, tcp_ok, http_ok, http_status_code, tcp_latency_ms, http_latency_ms, final_url, used_ip, detected_login_type, login_detected, summary)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`

	qCheckListByTarget = `
SELECT id, target_id, ts, tcp_ok, http_ok, http_status_code, tcp_latency_ms, http_latency_ms, final_url, used_ip, detected_login_type, login_detected, summary
FROM checks
WHERE target_id = ?
ORDER BY id DESC
LIMIT ?;
`
)

func scanCheck(row rowScanner, c *check.Check) error {
	var (
		ts        string
		code      sql.NullInt64
		finalURL  sql.NullString
		usedIP    sql.NullString
		loginType sql.NullString
	)
	if err := row.Scan(
		&c.ID,
		&c.TargetID,
		&ts,
		&c.TCPOk,
		&c.HTTPOk,
		&code,
		&c.TCPLatencyMS,
		&c.HTTPLatencyMS,
		&finalURL,
		&usedIP,
		&loginType,
		&c.LoginDetected,
		&c.Summary,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan check: %w", err)
	}
	var err error
	if c.Timestamp, err = parseTime(ts); err != nil {
		return err
	}
	c.HTTPStatusCode = intPtr(code)
	c.FinalURL = strPtr(finalURL)
	c.UsedIP = strPtr(usedIP)
	c.DetectedLoginType = strPtr(loginType)
	return nil
}

func (r *CheckRepoImpl) Insert(ctx context.Context, c *check.Check) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	res, err := r.db.q(ctx).ExecContext(ctx, qCheckInsert,
		c.TargetID, fmtTime(c.Timestamp), c.TCPOk, c.HTTPOk, nullInt(c.HTTPStatusCode),
		c.TCPLatencyMS, c.HTTPLatencyMS, nullStr(c.FinalURL), nullStr(c.UsedIP),
		nullStr(c.DetectedLoginType), c.LoginDetected, c.Summary,
	)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("check id: %w", err)
	}
	c.ID = id
	return nil
}

func (r *CheckRepoImpl) ListByTarget(ctx context.Context, targetID int64, limit int) ([]*check.Check, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.q(ctx).QueryContext(ctx, qCheckListByTarget, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("query checks: %w", err)
	}
	defer rows.Close()

	var out []*check.Check
	for rows.Next() {
		var c check.Check
		if err := scanCheck(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
