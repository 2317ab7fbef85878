package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/scottbadams/ITWebsiteMonitor/internal/repository/sqlite"
)

// Standalone migration runner for deployments that apply schema changes
// before rolling the service. monitord also migrates at boot, so this is
// optional in single-node setups.
func main() {
	dataRoot := flag.String("data-root", "./data", "directory holding the store")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := sqlite.Open(ctx, sqlite.Config{DataRoot: *dataRoot, QueryTimeout: 30 * time.Second}, zap.NewNop())
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer db.Close()

	if err := sqlite.Migrate(ctx, db); err != nil {
		log.Fatalf("migrate up: %v", err)
	}
	log.Println("migrations: up OK")
}
