package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/prepworks/prepworks-engine/internal/config"
	"github.com/prepworks/prepworks-engine/internal/db"
	"github.com/prepworks/prepworks-engine/internal/delivery"
	syncx "github.com/prepworks/prepworks-engine/internal/sync"
)

// sweeperd runs the submission expiration sweep as a standalone daemon for
// deployments where the gateway is scaled out and should not each run one.
func main() {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	store := delivery.NewSQLStore(dbh, cfg.DBDriver)
	events := syncx.NewEventRepo(dbh)

	sweeper := delivery.NewSweeper(store, cfg.SweepInterval, delivery.SweepEvents(events))
	if _, err := sweeper.SweepOnce(ctx); err != nil {
		log.Printf("initial sweep: %v", err)
	}
	log.Printf("sweeping every %s (db=%s)", cfg.SweepInterval, cfg.DBDriver)
	sweeper.Run(ctx)
}
