package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/jobpulse/harvester/internal/ingest"
)

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Close stale job records",
	Long:  "Mark active records past their expiration as expired. Records are closed, never deleted.",
	RunE:  runExpire,
}

func init() {
	rootCmd.AddCommand(expireCmd)
}

func runExpire(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("pgxpool.New: %w", err)
	}
	defer pool.Close()

	ingestor := ingest.New(pool, logger)
	closed, err := ingestor.ExpireStale(ctx)
	if err != nil {
		return err
	}

	logger.Info("stale records closed", "count", closed)
	return nil
}
