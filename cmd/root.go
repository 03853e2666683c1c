// Package cmd defines and implements the CLI commands for the harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/repo-harvester/internal/app"
	"github.com/JakeFAU/repo-harvester/internal/checkpoint"
	"github.com/JakeFAU/repo-harvester/internal/config"
	"github.com/JakeFAU/repo-harvester/internal/harvest"
	"github.com/JakeFAU/repo-harvester/internal/logging"
	"github.com/JakeFAU/repo-harvester/internal/process"
	"github.com/JakeFAU/repo-harvester/internal/vcs"
)

type ctxKey string

const (
	appKey   ctxKey = "app"
	viperKey ctxKey = "viper"
)

// App defines the application services the commands use.
// Tests may swap the factory for one returning a stub.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetConfig() config.Config
	GetRunID() string
	CheckpointStore() *checkpoint.Store
	NewEngine() (*harvest.Engine, error)
	NewCloner(kind string) (*vcs.Cloner, error)
	NewSupervisor(args []string, logPath string) (*process.Supervisor, error)
}

// newApp is the application factory.
var newApp = func(cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(cfg, logger), nil
}

// flagKeys maps command flags onto configuration keys. Only flags the
// running command defines are bound.
var flagKeys = map[string]string{
	"base-url":     "crawl.base_url",
	"limit":        "crawl.id_limit",
	"skip":         "crawl.id_skip",
	"checkpoint":   "crawl.checkpoint_path",
	"vcs":          "crawl.vcs",
	"metrics-addr": "metrics.addr",
	"log":          "supervisor.log_path",
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Walks the public repository listing and clones one repository per step.",
		Long: `harvester walks the repository listing API by ID, cloning the first
repository after each cursor position and persisting the cursor so an
interrupted harvest resumes where it stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v := config.New()
			if err := bindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.LoadViper(v, cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			var outputs []string
			if cfg.Logging.File != "" {
				outputs = append(outputs, cfg.Logging.File)
			}
			logger, err := logging.New(cfg.Logging.Development, outputs...)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}

			appInstance, err := newApp(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			ctx = context.WithValue(ctx, viperKey, v)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")

	cmd.AddCommand(
		newCrawlCmd(),
		newSuperviseCmd(),
		newCloneCmd(),
		newInitCmd(),
		newStatusCmd(),
		newConfigCmd(),
	)
	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func resolveViper(ctx context.Context) (*viper.Viper, error) {
	v, ok := ctx.Value(viperKey).(*viper.Viper)
	if !ok || v == nil {
		return nil, errors.New("configuration not loaded")
	}
	return v, nil
}

// run executes the root command with args against out and returns the
// error instead of exiting.
func run(ctx context.Context, args []string, out io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the
// command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err == nil {
		return
	}
	logger, lerr := logging.New(true)
	if lerr != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Fatal("Command execution failed", zap.Error(err))
}
