package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/repo-harvester/internal/metrics"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs the harvest
// loop until the cursor reaches the configured limit.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run the resumable harvest loop",
		Long: `Reads the cursor from the checkpoint file, fetches the listing page after
it, clones the first repository, then advances the cursor by the skip
amount. The loop repeats until the cursor reaches the limit.`,
		Args: cobra.NoArgs,
		RunE: runCrawlCommand,
	}
	cmd.Flags().String("base-url", "", "listing API URL")
	cmd.Flags().Int64("limit", 0, "stop once the cursor reaches this ID")
	cmd.Flags().Int64("skip", 0, "IDs to advance after every iteration")
	cmd.Flags().String("checkpoint", "", "cursor file path")
	cmd.Flags().String("metrics-addr", "", "serve /metrics, /healthz and /status on this address")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()
	cfg := appInstance.GetConfig()

	engine, err := appInstance.NewEngine()
	if err != nil {
		return err
	}

	logger.Info("starting harvest",
		zap.String("base_url", cfg.Crawl.BaseURL),
		zap.Int64("limit", cfg.Crawl.IDLimit),
		zap.Int64("skip", cfg.Crawl.IDSkip),
		zap.String("checkpoint", cfg.Crawl.CheckpointPath),
	)

	g, ctx := errgroup.WithContext(cmd.Context())
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	if addr := cfg.Metrics.Addr; addr != "" {
		router := metrics.NewRouter(func() any { return engine.Snapshot() })
		g.Go(func() error {
			return metrics.Serve(serverCtx, addr, router, logger.Named("metrics"))
		})
	}
	g.Go(func() error {
		defer stopServer()
		return engine.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("harvest interrupted", zap.Int64("cursor", engine.Snapshot().Cursor))
			return nil
		}
		return fmt.Errorf("run harvest: %w", err)
	}

	logger.Info("Crawl command finished.", zap.Int64("cursor", engine.Snapshot().Cursor))
	return nil
}
