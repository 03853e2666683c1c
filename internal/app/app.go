// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/repo-harvester/internal/audit"
	"github.com/JakeFAU/repo-harvester/internal/checkpoint"
	"github.com/JakeFAU/repo-harvester/internal/clock/system"
	"github.com/JakeFAU/repo-harvester/internal/config"
	"github.com/JakeFAU/repo-harvester/internal/harvest"
	"github.com/JakeFAU/repo-harvester/internal/id/uuid"
	"github.com/JakeFAU/repo-harvester/internal/listing"
	"github.com/JakeFAU/repo-harvester/internal/metrics"
	"github.com/JakeFAU/repo-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/repo-harvester/internal/process"
	"github.com/JakeFAU/repo-harvester/internal/vcs"
)

// App holds the shared, long-lived services of one command invocation.
// It is built once in the root command and handed to subcommands.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	runID  string
	runner *process.Runner
	clock  *system.Clock
	out    io.Writer
}

// Option customizes an App.
type Option func(*App)

// WithOutput redirects user facing output and inherited child streams.
func WithOutput(w io.Writer) Option {
	return func(a *App) {
		a.out = w
	}
}

// New creates an App from a loaded configuration.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		runID:  uuid.New().MustID(),
		clock:  system.New(),
		out:    os.Stdout,
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("run_id", a.runID))
	a.runner = process.NewRunner(
		process.WithOutput(a.out, a.out),
		process.WithLogger(a.logger.Named("process")),
	)
	metrics.Init()
	return a
}

// GetConfig returns the effective configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetRunID returns the identifier tagging this invocation.
func (a *App) GetRunID() string {
	return a.runID
}

// GetRunner returns the process runner.
func (a *App) GetRunner() *process.Runner {
	return a.runner
}

// GetOutput returns the writer for user facing output.
func (a *App) GetOutput() io.Writer {
	return a.out
}

// CheckpointStore returns the cursor store at the configured path.
func (a *App) CheckpointStore() *checkpoint.Store {
	return checkpoint.New(a.cfg.Crawl.CheckpointPath)
}

// NewCloner builds the configured vcs cloner.
func (a *App) NewCloner(kind string) (*vcs.Cloner, error) {
	if kind == "" {
		kind = a.cfg.Crawl.VCS
	}
	k, err := vcs.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	return vcs.New(vcs.Config{
		Kind:    k,
		Root:    a.cfg.Crawl.CloneDir,
		LogPath: a.cfg.Crawl.CloneLog,
	}, a.runner, vcs.WithLogger(a.logger.Named("vcs")))
}

// NewListingClient builds the paced listing client.
func (a *App) NewListingClient() (*listing.Client, error) {
	pacer := ratelimit.NewPacer(ratelimit.PacerConfig{RequestsPerMinute: a.cfg.HTTP.RequestsPerMinute})
	return listing.New(listing.Config{
		BaseURL:   a.cfg.Crawl.BaseURL,
		DumpDir:   a.cfg.Crawl.DumpDir,
		UserAgent: a.cfg.HTTP.UserAgent,
		Timeout:   a.cfg.RequestTimeout(),
	}, listing.WithPacer(pacer), listing.WithLogger(a.logger.Named("listing")))
}

// NewEngine wires the crawl engine from configuration.
func (a *App) NewEngine() (*harvest.Engine, error) {
	lister, err := a.NewListingClient()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize listing client: %w", err)
	}
	cloner, err := a.NewCloner("")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloner: %w", err)
	}
	auditLog, err := audit.Open(a.cfg.Crawl.AuditLog, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit log: %w", err)
	}

	c := a.cfg.Crawl
	return harvest.New(harvest.Config{
		Limit:          c.IDLimit,
		Skip:           c.IDSkip,
		PollInterval:   c.PollInterval,
		MaxWait:        c.MaxWait,
		IterationDelay: c.IterationDelay,
		RateBatch:      c.RateBatch,
		RateWindow:     c.RateWindow,
		RateMinSleep:   c.RateMinSleep,
	}, harvest.Deps{
		Store:  a.CheckpointStore(),
		Lister: lister,
		Cloner: cloneDispatcher{cloner: cloner},
		Clock:  a.clock,
		Audit:  auditLog,
	}, harvest.WithLogger(a.logger.Named("harvest")), harvest.WithRunID(a.runID))
}

// NewSupervisor keeps args alive. With a logPath the command runs
// through the shell with output appended to that file.
func (a *App) NewSupervisor(args []string, logPath string) (*process.Supervisor, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no command to supervise")
	}
	logger := a.logger.Named("supervisor")
	spawn := func() (*process.Handle, error) {
		if logPath != "" {
			return a.runner.StartLogged(logPath, args...)
		}
		return a.runner.Start(process.Args(args...))
	}
	onEvent := func(ev process.Event) {
		if ev.Kind == process.EventRestarted {
			metrics.IncSupervisorRestarts()
		}
	}
	return process.NewSupervisor(spawn,
		process.WithPollInterval(a.cfg.Supervisor.PollInterval),
		process.WithCooldown(a.cfg.Supervisor.Cooldown),
		process.WithClock(a.clock),
		process.WithEventHandler(onEvent),
		process.WithSupervisorLogger(logger),
	), nil
}

// Close flushes the logger.
func (a *App) Close() {
	// Sync fails on terminals; nothing useful can be done about it.
	_ = a.logger.Sync()
}

type cloneDispatcher struct {
	cloner *vcs.Cloner
}

func (d cloneDispatcher) Clone(ctx context.Context, url string) (harvest.Process, string, error) {
	h, dir, err := d.cloner.Clone(ctx, url)
	if err != nil || h == nil {
		return nil, dir, err
	}
	return h, dir, nil
}
