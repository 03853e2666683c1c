package process

import (
	"errors"
	"os/exec"
	"sync"
	"time"
)

// Handle references one spawned child. It is owned by whoever started
// it and must not be shared between supervisors.
type Handle struct {
	cmd     *exec.Cmd
	started time.Time
	logPath string
	done    chan struct{}

	mu       sync.Mutex
	exitCode int
	waitErr  error
}

func newHandle(cmd *exec.Cmd, started time.Time, logPath string) *Handle {
	return &Handle{
		cmd:      cmd,
		started:  started,
		logPath:  logPath,
		done:     make(chan struct{}),
		exitCode: -1,
	}
}

// reap waits for the child and records how it ended. release runs after
// the exit status is stored and before Done is closed.
func (h *Handle) reap(release func()) {
	err := h.cmd.Wait()
	h.mu.Lock()
	if h.cmd.ProcessState != nil {
		h.exitCode = h.cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		h.waitErr = err
	}
	h.mu.Unlock()
	if release != nil {
		release()
	}
	close(h.done)
}

// Running reports whether the child has not yet exited. It never blocks.
func (h *Handle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Done is closed once the child has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitCode returns the child's exit status. It is -1 while the child is
// running and when it was terminated by a signal.
func (h *Handle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

// Err returns a wait failure other than a non-zero exit.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitErr
}

// PID returns the operating system process id.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// StartedAt returns when the child was spawned.
func (h *Handle) StartedAt() time.Time {
	return h.started
}

// LogPath returns the log file receiving the child's output, if any.
func (h *Handle) LogPath() string {
	return h.logPath
}

// IsRunning reports liveness for a possibly nil handle.
func IsRunning(h *Handle) bool {
	return h != nil && h.Running()
}
