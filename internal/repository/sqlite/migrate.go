package sqlite

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/scottbadams/ITWebsiteMonitor/migrations"
)

// Migrate applies pending schema migrations from the embedded set.
func Migrate(ctx context.Context, db *DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.SQL, "."); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
