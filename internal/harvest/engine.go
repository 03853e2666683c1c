package harvest

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/JakeFAU/repo-harvester/internal/metrics"
	"github.com/JakeFAU/repo-harvester/internal/policy/ratelimit"
)

// Defaults for Config.
const (
	DefaultLimit          = 10000000
	DefaultSkip           = 1000
	DefaultPollInterval   = 5 * time.Second
	DefaultMaxWait        = time.Hour
	DefaultIterationDelay = 10 * time.Second
)

// Config tunes the crawl loop.
type Config struct {
	// Limit ends the crawl once the cursor reaches it.
	Limit int64
	// Skip is added to the cursor after every iteration.
	Skip           int64
	PollInterval   time.Duration
	MaxWait        time.Duration
	IterationDelay time.Duration
	RateBatch      int
	RateWindow     time.Duration
	RateMinSleep   time.Duration
}

// DefaultConfig returns the stock crawl settings.
func DefaultConfig() Config {
	return Config{
		Limit:          DefaultLimit,
		Skip:           DefaultSkip,
		PollInterval:   DefaultPollInterval,
		MaxWait:        DefaultMaxWait,
		IterationDelay: DefaultIterationDelay,
		RateBatch:      ratelimit.DefaultBatch,
		RateWindow:     ratelimit.DefaultWindow,
		RateMinSleep:   ratelimit.DefaultMinSleep,
	}
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Store  CursorStore
	Lister Lister
	Cloner Cloner
	Clock  Clock
	Audit  AuditLog
}

// Status is a point-in-time view of crawl progress.
type Status struct {
	RunID       string    `json:"run_id"`
	Cursor      int64     `json:"cursor"`
	Limit       int64     `json:"limit"`
	Iterations  int       `json:"iterations"`
	Cloned      int       `json:"cloned"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	LastOutcome Kind      `json:"last_outcome,omitempty"`
	LastURL     string    `json:"last_url,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Engine drives the crawl loop.
type Engine struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	runID  string

	mu     sync.Mutex
	status Status
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRunID tags logs and audit records with id.
func WithRunID(id string) Option {
	return func(e *Engine) {
		e.runID = id
	}
}

// New validates cfg and deps and returns an Engine.
func New(cfg Config, deps Deps, opts ...Option) (*Engine, error) {
	if deps.Store == nil || deps.Lister == nil || deps.Cloner == nil || deps.Clock == nil {
		return nil, errors.New("harvest: store, lister, cloner and clock are required")
	}
	if cfg.Skip <= 0 {
		return nil, fmt.Errorf("harvest: skip must be positive, got %d", cfg.Skip)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	e := &Engine{
		cfg:    cfg,
		deps:   deps,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runID != "" {
		e.logger = e.logger.With(zap.String("run_id", e.runID))
	}
	e.status = Status{RunID: e.runID, Limit: cfg.Limit}
	return e, nil
}

// Snapshot returns the current progress.
func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Run iterates until the cursor reaches the limit, a fatal checkpoint
// error occurs or ctx is canceled. An interrupted iteration does not
// advance the cursor.
func (e *Engine) Run(ctx context.Context) error {
	window := ratelimit.NewWindow(e.cfg.RateBatch, e.cfg.RateWindow, e.cfg.RateMinSleep, e.deps.Clock.Now())
	for {
		cursor, err := e.deps.Store.Read()
		if err != nil {
			return fmt.Errorf("load cursor: %w", err)
		}
		e.setCursor(cursor)
		if cursor >= e.cfg.Limit {
			e.logger.Info("cursor reached limit", zap.Int64("cursor", cursor), zap.Int64("limit", e.cfg.Limit))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("harvest stopped: %w", err)
		}

		out := e.iterate(ctx, cursor)
		if err := ctx.Err(); err != nil {
			e.logger.Warn("iteration interrupted", zap.Int64("cursor", cursor))
			return fmt.Errorf("harvest stopped: %w", err)
		}
		if err := e.deps.Clock.Sleep(ctx, e.cfg.IterationDelay); err != nil {
			e.logger.Warn("iteration interrupted", zap.Int64("cursor", cursor))
			return fmt.Errorf("harvest stopped: %w", err)
		}
		e.report(out)

		next := cursor + e.cfg.Skip
		if err := e.deps.Store.Write(next); err != nil {
			return fmt.Errorf("save cursor: %w", err)
		}
		e.setCursor(next)
		metrics.SetCursor(next)

		if pause, full := window.Tick(e.deps.Clock.Now()); full {
			e.logger.Info("rate limit reached, sleeping",
				zap.Duration("pause", pause),
				zap.String("until", humanize.Time(e.deps.Clock.Now().Add(pause))),
			)
			metrics.ObserveRateLimitSleep(pause)
			if err := e.deps.Clock.Sleep(ctx, pause); err != nil {
				return fmt.Errorf("harvest stopped: %w", err)
			}
			window.Reset(e.deps.Clock.Now())
		}
	}
}

func (e *Engine) iterate(ctx context.Context, cursor int64) (out Outcome) {
	out = Outcome{Cursor: cursor, Started: e.deps.Clock.Now()}
	defer func() {
		if r := recover(); r != nil {
			out.Kind = KindFailed
			out.Err = fmt.Errorf("panic: %v", r)
			out.Stack = fmt.Sprintf("panic: %v\n%s", r, debug.Stack())
		}
		out.Finished = e.deps.Clock.Now()
	}()

	page, err := e.deps.Lister.FetchPage(ctx, cursor)
	if err != nil {
		return failed(out, err)
	}
	d, ok := page.First()
	if !ok {
		out.Kind = KindSkipped
		return out
	}
	out.Descriptor = d
	if err := d.Validate(page.StatusCode); err != nil {
		return failed(out, err)
	}

	out.Started = e.deps.Clock.Now()
	proc, dir, err := e.deps.Cloner.Clone(ctx, d.URL)
	out.Dir = dir
	if err != nil {
		return failed(out, err)
	}
	if proc == nil {
		return failed(out, errors.New("clone returned no process"))
	}
	if err := e.monitor(ctx, proc, &out); err != nil {
		return failed(out, err)
	}

	code := proc.ExitCode()
	out.ExitCode = &code
	if code != 0 {
		return failed(out, fmt.Errorf("clone exited with code %d", code))
	}
	out.Kind = KindCloned
	return out
}

// monitor polls p until it terminates. Exceeding MaxWait is a warning
// once per elapsed MaxWait period and a debug entry on every poll after
// that; the clone is never killed.
func (e *Engine) monitor(ctx context.Context, p Process, out *Outcome) error {
	start := e.deps.Clock.Now()
	threshold := e.cfg.MaxWait
	for p.Running() {
		elapsed := e.deps.Clock.Now().Sub(start)
		if e.cfg.MaxWait > 0 && elapsed > e.cfg.MaxWait {
			e.logger.Debug("max wait exceeded",
				zap.Int64("cursor", out.Cursor),
				zap.Duration("elapsed", elapsed),
			)
		}
		if e.cfg.MaxWait > 0 && elapsed > threshold {
			out.MaxWaitExceeded = true
			threshold += e.cfg.MaxWait
			metrics.ObserveMaxWaitExceeded()
			e.logger.Warn("max wait exceeded",
				zap.Int64("cursor", out.Cursor),
				zap.String("url", out.Descriptor.URL),
				zap.Duration("elapsed", elapsed),
			)
		}
		if err := e.deps.Clock.Sleep(ctx, e.cfg.PollInterval); err != nil {
			return err
		}
	}
	metrics.ObserveClone(e.deps.Clock.Now().Sub(start))
	return nil
}

func failed(out Outcome, err error) Outcome {
	out.Kind = KindFailed
	out.Err = pkgerrors.WithStack(err)
	out.Stack = fmt.Sprintf("%+v", out.Err)
	return out
}

func (e *Engine) report(out Outcome) {
	metrics.ObserveIteration(string(out.Kind))

	fields := []zap.Field{
		zap.String("outcome", string(out.Kind)),
		zap.Int64("cursor", out.Cursor),
	}
	if out.Descriptor.ID != nil {
		fields = append(fields, zap.Int64("repo_id", *out.Descriptor.ID), zap.String("url", out.Descriptor.URL))
	}
	if out.Dir != "" {
		fields = append(fields, zap.String("dir", out.Dir))
	}
	if out.ExitCode != nil {
		fields = append(fields, zap.Int("exit_code", *out.ExitCode))
	}
	switch out.Kind {
	case KindFailed:
		e.logger.Error("iteration failed", append(fields, zap.Error(out.Err))...)
	case KindSkipped:
		e.logger.Info("empty listing page", fields...)
	default:
		e.logger.Info("repository cloned", append(fields, zap.Duration("took", out.Finished.Sub(out.Started)))...)
	}

	if e.deps.Audit != nil {
		if err := e.deps.Audit.Append(out.Record(e.runID)); err != nil {
			e.logger.Error("could not append audit record", zap.Error(err))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.Iterations++
	switch out.Kind {
	case KindCloned:
		e.status.Cloned++
	case KindSkipped:
		e.status.Skipped++
	case KindFailed:
		e.status.Failed++
	}
	e.status.LastOutcome = out.Kind
	e.status.LastURL = out.Descriptor.URL
	e.status.UpdatedAt = out.Finished
}

func (e *Engine) setCursor(cursor int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.Cursor = cursor
}
