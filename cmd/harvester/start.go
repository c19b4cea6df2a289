package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jobpulse/harvester/internal/orchestrate"
	"github.com/jobpulse/harvester/internal/schedule"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the harvest daemon",
	Long:  "Run harvest cycles on the configured interval; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := buildEnv(ctx, logger)
	if err != nil {
		return err
	}
	defer env.close()

	logger.Info("daemon starting",
		"interval", env.cfg.Run.Interval.String(),
		"cooldown", env.cfg.Run.Cooldown.String(),
		"queue", env.cfg.Queue.Name,
	)

	sched := schedule.New(env.orchestrator, orchestrate.RunConfig{
		MaxCompanies: env.cfg.Run.MaxCompanies,
	}, env.cfg.Run.Interval, logger)

	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	sched.Stop()
	logger.Info("goodbye")
	return nil
}
