package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	gcstorage "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aitoolsdir/harvester/internal/api"
	"github.com/aitoolsdir/harvester/internal/catalog"
	systemclock "github.com/aitoolsdir/harvester/internal/clock/system"
	"github.com/aitoolsdir/harvester/internal/config"
	"github.com/aitoolsdir/harvester/internal/harvest"
	uuidgen "github.com/aitoolsdir/harvester/internal/id/uuid"
	"github.com/aitoolsdir/harvester/internal/jobs"
	"github.com/aitoolsdir/harvester/internal/metrics"
	pubsubPublisher "github.com/aitoolsdir/harvester/internal/publisher/pubsub"
	gcsStore "github.com/aitoolsdir/harvester/internal/storage/gcs"
	localStore "github.com/aitoolsdir/harvester/internal/storage/local"
	memoryStore "github.com/aitoolsdir/harvester/internal/storage/memory"
)

const shutdownGrace = 15 * time.Second

// fallbackDepthFactor sizes the overflow queue relative to the primary.
const fallbackDepthFactor = 4

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the harvester HTTP service",
		Long: `Starts the HTTP API: background harvest jobs with offset-based log
tailing, a synchronous run endpoint, CSV import, and bulk moderation.
Background jobs re-invoke this binary's scrape subcommand as a subprocess
and import its staging CSV on success.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	metrics.Init()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openCatalogStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()
	importer := catalog.NewImporter(store, logger)

	logDir, err := jobs.NewLogDir(cfg.Jobs.LogDir)
	if err != nil {
		return fmt.Errorf("prepare job log directory: %w", err)
	}

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	publisher, pubsubClose, err := openPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	if pubsubClose != nil {
		defer pubsubClose()
	}

	scrapeCmd, err := scrapeSubprocess()
	if err != nil {
		return err
	}

	primary := jobs.NewMemoryQueue(cfg.Jobs.QueueDepth)
	fallback := jobs.NewMemoryQueue(cfg.Jobs.QueueDepth * fallbackDepthFactor)
	defer primary.Close()
	defer fallback.Close()

	orch, err := jobs.New(
		jobs.Config{
			ScrapeCmd:     scrapeCmd,
			OutputCSV:     cfg.Pipeline.OutputCSV,
			JobTimeout:    cfg.JobTimeout(),
			Topic:         cfg.PubSub.TopicName,
			ArchivePrefix: cfg.Storage.Prefix,
		},
		primary,
		jobs.NewMemoryStatusStore(),
		logDir,
		importer,
		uuidgen.New(),
		systemclock.New(),
		jobs.Options{Fallback: fallback, Publisher: publisher, Blobs: blobs},
		logger,
	)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}
	go orch.Run(ctx)
	go orch.RunFallback(ctx)

	server := api.NewServer(orch, store, importer, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// scrapeSubprocess builds the argv background jobs run: this binary's own
// scrape subcommand, with the config file forwarded.
func scrapeSubprocess() ([]string, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable path: %w", err)
	}
	args := []string{exe, "scrape"}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	return args, nil
}

func openBlobStore(ctx context.Context, cfg config.Config) (harvest.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "":
		return nil, nil
	case "memory":
		return memoryStore.NewBlobStore(), nil
	case "local":
		store, err := localStore.New(localStore.Config{BaseDir: cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("open local blob store: %w", err)
		}
		return store, nil
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcsStore.New(client, gcsStore.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("open gcs blob store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage provider %q", errBadConfig, cfg.Storage.Provider)
	}
}

// openPublisher builds the completion-event publisher when Pub/Sub is
// configured. The returned close func, when non-nil, releases the client.
func openPublisher(ctx context.Context, cfg config.Config) (harvest.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		return nil, nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topicPublisher := client.Publisher(cfg.PubSub.TopicName)
	closeFn := func() {
		topicPublisher.Stop()
		_ = client.Close()
	}
	return pubsubPublisher.New(topicPublisher), closeFn, nil
}
