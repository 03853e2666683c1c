// Package vcs builds and dispatches repository clone commands.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/repo-harvester/internal/process"
)

// Kind names a version control tool.
type Kind string

// Supported tools.
const (
	Git       Kind = "git"
	Mercurial Kind = "hg"
)

// ErrUnsupported reports an unknown Kind.
var ErrUnsupported = errors.New("unsupported vcs")

// maxCollisions bounds the numeric suffix search for a free directory.
const maxCollisions = 1000

// ParseKind validates a configured tool name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Git, Mercurial:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, s)
	}
}

// Runner is the subset of process.Runner used for cloning.
type Runner interface {
	Start(c process.Command) (*process.Handle, error)
	StartLogged(logPath string, parts ...string) (*process.Handle, error)
	RunSync(ctx context.Context, c process.Command) ([]byte, int, error)
}

// Config controls where and how repositories are cloned.
type Config struct {
	Kind Kind
	// Root is the directory clones are created in.
	Root string
	// LogPath, when set, receives clone output through a shell redirect.
	LogPath string
}

// Cloner dispatches clones through a Runner.
type Cloner struct {
	cfg    Config
	runner Runner
	now    func() time.Time
	logger *zap.Logger
}

// Option customizes a Cloner.
type Option func(*Cloner)

// WithNow overrides the clock used for collision suffixes.
func WithNow(now func() time.Time) Option {
	return func(c *Cloner) {
		c.now = now
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cloner) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New returns a Cloner for cfg.
func New(cfg Config, runner Runner, opts ...Option) (*Cloner, error) {
	if runner == nil {
		return nil, errors.New("vcs: runner is required")
	}
	kind, err := ParseKind(string(cfg.Kind))
	if err != nil {
		return nil, err
	}
	cfg.Kind = kind
	if cfg.Root == "" {
		cfg.Root = "."
	}
	c := &Cloner{
		cfg:    cfg,
		runner: runner,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Kind reports the configured tool.
func (c *Cloner) Kind() Kind {
	return c.cfg.Kind
}

// DirName derives a clone directory name from the last path segment of
// rawURL, without a trailing slash or ".git" suffix.
func DirName(rawURL string) (string, error) {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	name := strings.TrimSuffix(path.Base(p), ".git")
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("cannot derive directory from %q", rawURL)
	}
	return name, nil
}

// Destination returns a path under the clone root that does not exist
// yet. An existing name gets "_<unix seconds>" appended, then "_<n>".
func (c *Cloner) Destination(rawURL string) (string, error) {
	name, err := DirName(rawURL)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(c.cfg.Root, name)
	if !exists(dest) {
		return dest, nil
	}
	stamped := dest + "_" + strconv.FormatInt(c.now().Unix(), 10)
	if !exists(stamped) {
		return stamped, nil
	}
	for n := 1; n <= maxCollisions; n++ {
		candidate := stamped + "_" + strconv.Itoa(n)
		if !exists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free directory for %q", rawURL)
}

// Args builds the clone argument vector for rawURL into dir.
func (c *Cloner) Args(rawURL, dir string) []string {
	if c.cfg.Kind == Mercurial {
		return []string{"hg", "clone", rawURL, dir}
	}
	src := rawURL
	if !strings.HasSuffix(src, ".git") {
		src += ".git"
	}
	return []string{"git", "clone", src, dir, "-v"}
}

// Clone starts an asynchronous clone of rawURL and returns its handle
// and destination directory.
func (c *Cloner) Clone(ctx context.Context, rawURL string) (*process.Handle, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	dir, err := c.Destination(rawURL)
	if err != nil {
		return nil, "", err
	}
	args := c.Args(rawURL, dir)

	var h *process.Handle
	if c.cfg.LogPath != "" {
		h, err = c.runner.StartLogged(c.cfg.LogPath, args...)
	} else {
		h, err = c.runner.Start(process.Args(args...))
	}
	if err != nil {
		return nil, dir, fmt.Errorf("start %s clone: %w", c.cfg.Kind, err)
	}
	c.logger.Info("clone dispatched",
		zap.String("url", rawURL),
		zap.String("dir", dir),
		zap.Int("pid", h.PID()),
	)
	return h, dir, nil
}

// CloneSync clones rawURL to completion and returns the combined output
// and exit code. With shell set the command line goes through the host
// shell.
func (c *Cloner) CloneSync(ctx context.Context, rawURL string, shell bool) ([]byte, int, error) {
	dir, err := c.Destination(rawURL)
	if err != nil {
		return nil, -1, err
	}
	args := c.Args(rawURL, dir)
	cmd := process.Args(args...)
	if shell {
		cmd = process.Shell(process.JoinArgs(args...))
	}
	out, code, err := c.runner.RunSync(ctx, cmd)
	if err != nil {
		return out, code, fmt.Errorf("run %s clone: %w", c.cfg.Kind, err)
	}
	return out, code, nil
}

func exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}
