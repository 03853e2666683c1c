package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// Runner spawns external commands.
type Runner struct {
	stdout    io.Writer
	stderr    io.Writer
	tempDir   string
	lockProbe LockProbe
	logger    *zap.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithOutput sets the streams inherited by children started with Start.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithTempDir sets where RunSync spools child output.
func WithTempDir(dir string) Option {
	return func(r *Runner) {
		r.tempDir = dir
	}
}

// WithLockProbe replaces the log lock probe used by StartLogged.
func WithLockProbe(probe LockProbe) Option {
	return func(r *Runner) {
		r.lockProbe = probe
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner builds a Runner whose children inherit the process streams.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		lockProbe: ProbeLocked,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// RunSync runs c to completion and returns its stdout followed by its
// stderr, plus the exit code. A non-zero exit is reported through the
// code, not the error.
func (r *Runner) RunSync(ctx context.Context, c Command) ([]byte, int, error) {
	if len(c.Args) == 0 {
		return nil, -1, errors.New("empty command")
	}
	stdout, err := os.CreateTemp(r.tempDir, "harvester-stdout-*")
	if err != nil {
		return nil, -1, fmt.Errorf("create stdout spool: %w", err)
	}
	defer discard(stdout)
	stderr, err := os.CreateTemp(r.tempDir, "harvester-stderr-*")
	if err != nil {
		return nil, -1, fmt.Errorf("create stderr spool: %w", err)
	}
	defer discard(stderr)

	r.logger.Debug("run", zap.Strings("args", c.Args))
	// #nosec G204 -- executing operator supplied commands is the purpose of this package.
	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	code := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, -1, fmt.Errorf("run %s: %w", c.Args[0], err)
		}
		code = exitErr.ExitCode()
	}

	out, err := readSpool(stdout)
	if err != nil {
		return nil, code, err
	}
	errOut, err := readSpool(stderr)
	if err != nil {
		return nil, code, err
	}
	return append(out, errOut...), code, nil
}

// Start spawns c without waiting. The child inherits the runner's
// streams.
func (r *Runner) Start(c Command) (*Handle, error) {
	if len(c.Args) == 0 {
		return nil, errors.New("empty command")
	}
	// #nosec G204 -- executing operator supplied commands is the purpose of this package.
	cmd := exec.Command(c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	return r.spawn(cmd, "", nil)
}

// StartLogged spawns the joined parts through the shell with stdout and
// stderr appended to logPath. When logPath is held by another run a
// numbered sibling is used instead; the chosen path is on the Handle.
func (r *Runner) StartLogged(logPath string, parts ...string) (*Handle, error) {
	resolved, err := ResolveLogPath(logPath, r.lockProbe)
	if err != nil {
		return nil, err
	}
	if resolved != NormalizeSeparators(logPath) {
		r.logger.Warn("lock found on log file, redirecting output",
			zap.String("requested", logPath), zap.String("log_path", resolved))
	}
	release := holdLock(resolved, r.logger)
	line := ShellLine(resolved, parts...)
	r.logger.Info("running command", zap.String("command", line))

	c := Shell(line)
	// #nosec G204 -- executing operator supplied commands is the purpose of this package.
	cmd := exec.Command(c.Args[0], c.Args[1:]...)
	return r.spawn(cmd, resolved, release)
}

func (r *Runner) spawn(cmd *exec.Cmd, logPath string, release func()) (*Handle, error) {
	if err := cmd.Start(); err != nil {
		if release != nil {
			release()
		}
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	h := newHandle(cmd, time.Now().UTC(), logPath)
	go h.reap(release)
	r.logger.Debug("process started", zap.Int("pid", h.PID()), zap.String("path", cmd.Path))
	return h, nil
}

func readSpool(f *os.File) ([]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind %s: %w", f.Name(), err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name(), err)
	}
	return data, nil
}

func discard(f *os.File) {
	_ = f.Close()
	_ = os.Remove(f.Name())
}
