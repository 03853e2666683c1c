package process

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/repo-harvester/internal/clock/system"
)

// Supervisor defaults.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultCooldown     = time.Hour
)

// ErrInvalidHandle is returned when a SpawnFunc yields no handle.
var ErrInvalidHandle = errors.New("spawn function must return a process handle")

// SpawnFunc starts (or restarts) the supervised child.
type SpawnFunc func() (*Handle, error)

// Clock abstracts time so supervision can be tested without waiting.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// EventKind classifies supervisor events.
type EventKind string

// Supervisor event kinds.
const (
	EventStarted   EventKind = "started"
	EventExited    EventKind = "exited"
	EventRestarted EventKind = "restarted"
)

// Event reports a change in the supervised child.
type Event struct {
	Kind     EventKind
	PID      int
	ExitCode int
	Restarts int
	At       time.Time
}

// Supervisor keeps one child alive, restarting it after a cool-down
// whenever it exits. It owns exactly one Handle at a time.
type Supervisor struct {
	spawn    SpawnFunc
	poll     time.Duration
	cooldown time.Duration
	clock    Clock
	onEvent  func(Event)
	logger   *zap.Logger

	current  *Handle
	restarts int
}

// SupervisorOption customizes a Supervisor.
type SupervisorOption func(*Supervisor)

// WithPollInterval sets how often liveness is checked.
func WithPollInterval(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.poll = d }
}

// WithCooldown sets the wait between an exit and the restart.
func WithCooldown(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.cooldown = d }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) SupervisorOption {
	return func(s *Supervisor) { s.clock = c }
}

// WithEventHandler registers a callback for start, exit and restart
// events. It runs on the supervision goroutine.
func WithEventHandler(fn func(Event)) SupervisorOption {
	return func(s *Supervisor) { s.onEvent = fn }
}

// WithSupervisorLogger attaches a structured logger.
func WithSupervisorLogger(logger *zap.Logger) SupervisorOption {
	return func(s *Supervisor) { s.logger = logger }
}

// NewSupervisor builds a Supervisor for spawn.
func NewSupervisor(spawn SpawnFunc, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		spawn:    spawn,
		poll:     DefaultPollInterval,
		cooldown: DefaultCooldown,
		clock:    system.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Restarts returns how many times the child has been respawned.
func (s *Supervisor) Restarts() int {
	return s.restarts
}

// Run spawns the child and supervises it until ctx is done or a fault
// occurs. A fault (spawn failure or panic) is logged with its stack and
// ends supervision; it is not retried. The child is left running when
// ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			s.logger.Error("supervision aborted", zap.Any("panic", r), zap.ByteString("stacktrace", stack))
			err = fmt.Errorf("supervision aborted: %v", r)
		}
	}()

	h, err := s.spawnChecked()
	if err != nil {
		return err
	}
	s.current = h
	s.emit(EventStarted, h)

	for {
		if !IsRunning(s.current) {
			s.emit(EventExited, s.current)
			s.logger.Info("process exited; sleeping before restart",
				zap.Int("exit_code", s.current.ExitCode()),
				zap.Duration("cooldown", s.cooldown))
			if err := s.clock.Sleep(ctx, s.cooldown); err != nil {
				return fmt.Errorf("supervision stopped: %w", err)
			}
			h, err := s.spawnChecked()
			if err != nil {
				s.logger.Error("restart failed", zap.Error(err), zap.Stack("stacktrace"))
				return fmt.Errorf("restart: %w", err)
			}
			s.current = h
			s.restarts++
			s.emit(EventRestarted, h)
		}
		if err := s.clock.Sleep(ctx, s.poll); err != nil {
			return fmt.Errorf("supervision stopped: %w", err)
		}
	}
}

func (s *Supervisor) spawnChecked() (*Handle, error) {
	h, err := s.spawn()
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrInvalidHandle
	}
	return h, nil
}

func (s *Supervisor) emit(kind EventKind, h *Handle) {
	evt := Event{
		Kind:     kind,
		PID:      h.PID(),
		ExitCode: h.ExitCode(),
		Restarts: s.restarts,
		At:       s.clock.Now(),
	}
	s.logger.Info("supervisor event",
		zap.String("event", string(kind)),
		zap.Int("pid", evt.PID),
		zap.Int("restarts", evt.Restarts))
	if s.onEvent != nil {
		s.onEvent(evt)
	}
}
