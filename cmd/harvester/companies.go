package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jobpulse/harvester/internal/catalog"
	"github.com/jobpulse/harvester/internal/config"
	"github.com/jobpulse/harvester/internal/model"
)

var (
	addCareerURL string
	addSystem    string
	addSystemID  string
)

var companiesCmd = &cobra.Command{
	Use:   "companies",
	Short: "Inspect and grow the company catalog",
}

var companiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cataloged companies",
	RunE:  runCompaniesList,
}

var companiesAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add or update a company",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompaniesAdd,
}

var companiesDiscoverCmd = &cobra.Command{
	Use:   "discover <url>",
	Short: "Discover candidate employers from a listing page",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompaniesDiscover,
}

var companiesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the curated company list",
	RunE:  runCompaniesSeed,
}

func init() {
	companiesAddCmd.Flags().StringVar(&addCareerURL, "url", "", "career page URL")
	companiesAddCmd.Flags().StringVar(&addSystem, "system", "unknown", "listing system tag")
	companiesAddCmd.Flags().StringVar(&addSystemID, "system-id", "", "listing-system identifier (board token / slug)")

	companiesCmd.AddCommand(companiesListCmd, companiesAddCmd, companiesDiscoverCmd, companiesSeedCmd)
	rootCmd.AddCommand(companiesCmd)
}

// openCatalog opens just the catalog; the companies subcommands do not need
// the queue or the job store.
func openCatalog() (*config.Config, *catalog.Catalog, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cat, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, cat, nil
}

func runCompaniesList(cmd *cobra.Command, args []string) error {
	_, cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	companies, err := cat.List(context.Background())
	if err != nil {
		return err
	}

	for _, c := range companies {
		fmt.Printf("%-30s %-16s %-20s conf=%.2f (%s)\n",
			c.Name, c.System, c.SystemID, c.Confidence, c.Provenance)
	}
	fmt.Printf("%d companies\n", len(companies))
	return nil
}

func runCompaniesAdd(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	_, cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	dc := model.DiscoveredCompany{
		Name:       args[0],
		CareerURL:  addCareerURL,
		System:     model.ListingSystem(addSystem),
		SystemID:   addSystemID,
		Provenance: model.ProvenanceCurated,
		Confidence: 0.9,
	}
	if err := cat.Add(context.Background(), dc); err != nil {
		return err
	}
	logger.Info("company added", "name", args[0], "system", addSystem)
	return nil
}

func runCompaniesDiscover(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg, cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: cfg.HTTP.FetchTimeout}
	discoverer := catalog.NewDiscoverer(cat, client, cfg.HTTP.UserAgent, logger)

	added, err := discoverer.Discover(ctx, args[0])
	if err != nil {
		return err
	}
	for _, c := range added {
		fmt.Println(c.Name)
	}
	fmt.Printf("%d candidates added\n", len(added))
	return nil
}

func runCompaniesSeed(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	_, cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	n, err := cat.Seed(context.Background())
	if err != nil {
		return err
	}
	logger.Info("catalog seeded", "companies", n)
	return nil
}
