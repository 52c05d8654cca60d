// Command dedupe reconciles the transaction store once and exits: every group
// of rows sharing (description, amount, recorded_at) is reduced to its oldest
// row inside a single database transaction.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"

	"github.com/yanga-finance/yanga/internal/config"
	"github.com/yanga-finance/yanga/internal/data/postgres"
	"github.com/yanga-finance/yanga/internal/logger"
	"github.com/yanga-finance/yanga/internal/platform/persistence"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig("api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	postgresDB, err := persistence.NewPostgresDB(ctx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer postgresDB.Close()

	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)

	var deleted int64
	err = postgresDB.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var sweepErr error
		deleted, sweepErr = transactionRepo.WithTx(tx).SweepDuplicates(ctx)
		return sweepErr
	})
	if err != nil {
		log.Error("Duplicate sweep failed, no rows were removed", "error", err)
		os.Exit(1)
	}

	log.Info("Duplicate sweep completed", "deleted_rows", deleted)
}
