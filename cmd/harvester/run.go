package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jobpulse/harvester/internal/orchestrate"
)

var (
	runForce        bool
	runMaxCompanies int
	runSeed         bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one harvest cycle and exit",
	Long:  "Seed work units for every cataloged company, process them through the worker pool, and print the run summary. Refuses to run inside the cooldown window unless --force is set.",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force", false, "bypass the run cooldown window")
	runCmd.Flags().IntVar(&runMaxCompanies, "max-companies", 0, "cap on companies this run (0 = all)")
	runCmd.Flags().BoolVar(&runSeed, "seed", false, "load the curated company list into the catalog first")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := buildEnv(ctx, logger)
	if err != nil {
		return err
	}
	defer env.close()

	if runSeed {
		n, err := env.catalog.Seed(ctx)
		if err != nil {
			return err
		}
		logger.Info("catalog seeded", "companies", n)
	}

	maxCompanies := env.cfg.Run.MaxCompanies
	if runMaxCompanies > 0 {
		maxCompanies = runMaxCompanies
	}

	summary, err := env.orchestrator.Run(ctx, orchestrate.RunConfig{
		MaxCompanies: maxCompanies,
		Force:        runForce,
	})
	if errors.Is(err, orchestrate.ErrCooldownActive) {
		return fmt.Errorf("%w (use --force to override)", err)
	}
	if err != nil {
		return err
	}

	fmt.Printf("queued:     %d\n", summary.Queued)
	fmt.Printf("completed:  %d\n", summary.Completed)
	fmt.Printf("failed:     %d\n", summary.Failed)
	fmt.Printf("jobs found: %d\n", summary.JobsFound)
	fmt.Printf("inserted:   %d\n", summary.Inserted)
	fmt.Printf("duplicates: %d\n", summary.Duplicates)
	for company, msg := range summary.CompanyErrors {
		fmt.Printf("error %s: %s\n", company, msg)
	}
	return nil
}
