package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/scottbadams/ITWebsiteMonitor/internal/obs/retry"
)

type Config struct {
	DataRoot     string
	QueryTimeout time.Duration
}

const dbFileName = "monitor.db"

// DB wraps the embedded store. The store allows many readers but a single
// writer, so every write transaction goes through InWriteTx: a process-wide
// gate plus busy/locked retry. Reads run ungated on the pool.
type DB struct {
	SQL          *sql.DB
	QueryTimeout time.Duration

	writeMu sync.Mutex
	gate    retry.Policy
	log     *zap.Logger
}

func Open(ctx context.Context, cfg Config, log *zap.Logger) (*DB, error) {
	if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create data root: %w", err)
	}
	path := filepath.Join(cfg.DataRoot, dbFileName)
	dsn := "file:" + path +
		"?_txlock=immediate" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)"

	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sdb.PingContext(hctx); err != nil {
		_ = sdb.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	db := &DB{
		SQL:          sdb,
		QueryTimeout: cfg.QueryTimeout,
		log:          log,
	}
	db.gate = retry.StorePolicy(log, IsBusy)
	return db, nil
}

func (db *DB) Close() error { return db.SQL.Close() }

func (db *DB) Ping(ctx context.Context) error { return db.SQL.PingContext(ctx) }

func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, db.QueryTimeout)
}

// queryer is satisfied by both *sql.DB and *sql.Tx so repositories run the
// same statements inside and outside a write transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

func (db *DB) q(ctx context.Context) queryer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok && tx != nil {
		return tx
	}
	return db.SQL
}

// InWriteTx runs fn inside one write transaction under the write gate.
// A busy/locked failure rolls back, releases the gate, and retries the whole
// attempt per the store policy. fn must be safe to re-run.
func (db *DB) InWriteTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, func() error {
		db.writeMu.Lock()
		defer db.writeMu.Unlock()
		return db.runTx(ctx, fn)
	}, db.gate)
}

func (db *DB) runTx(parent context.Context, fn func(ctx context.Context) error) (txErr error) {
	ctx, cancel := db.withTimeout(parent)
	defer cancel()

	tx, err := db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if txErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				db.log.Error("rollback", zap.Error(rbErr))
			}
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// IsBusy reports whether err is the store's transient contention signal
// (SQLITE_BUSY / SQLITE_LOCKED, possibly wrapped).
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "table is locked")
}
