package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aitoolsdir/harvester/internal/catalog"
	catalogMemory "github.com/aitoolsdir/harvester/internal/catalog/memory"
	catalogPostgres "github.com/aitoolsdir/harvester/internal/catalog/postgres"
	"github.com/aitoolsdir/harvester/internal/config"
)

func newImportCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <staging.csv>",
		Short: "Imports a staging CSV into the catalog",
		Long: `Reads a staging CSV (harvester or legacy export headers) and upserts
each row into the catalog by slug. Existing tools keep their ingestion
status; new tools arrive as Pending Review. With --dry-run the rows are
imported into an in-memory catalog and only the counters are reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), args[0], dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "count outcomes without touching the database")
	return cmd
}

func runImport(ctx context.Context, path string, dryRun bool) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := openCatalogStore(ctx, cfg, dryRun)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := catalog.NewImporter(store, logger).ImportFile(ctx, path)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}

	logger.Info("import finished",
		zap.String("path", path),
		zap.Bool("dry_run", dryRun),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
	)
	return nil
}

// openCatalogStore picks the backing store: in-memory for dry runs or when no
// DSN is configured, postgres otherwise.
func openCatalogStore(ctx context.Context, cfg config.Config, dryRun bool) (catalog.Store, error) {
	if dryRun || cfg.DB.DSN == "" {
		return catalogMemory.NewStore(), nil
	}
	store, err := catalogPostgres.NewStore(ctx, catalogPostgres.StoreConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect catalog database: %w", err)
	}
	return store, nil
}
