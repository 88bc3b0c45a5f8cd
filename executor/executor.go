package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/caffeineduck/runjs/hostfunc"
	"go.uber.org/zap"
)

// Executor owns the capability registry shared by every session it creates.
type Executor struct {
	registry *hostfunc.Registry
	logger   *zap.Logger
	workers  int

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// New creates an Executor. File capabilities are installed when at least one
// mount is configured; fetch is always installed and denies every host unless
// some are allowed.
func New(opts ...ExecutorOption) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var fs *hostfunc.FS
	if len(cfg.mounts) > 0 {
		fs = hostfunc.NewFS(cfg.mounts, cfg.fsOptions...)
	}
	http := hostfunc.NewHTTP(cfg.httpConfig)

	middleware := append([]hostfunc.Middleware{
		hostfunc.RecoverMiddleware(),
		hostfunc.LoggingMiddleware(cfg.logger),
	}, cfg.middleware...)

	registry, err := hostfunc.NewRegistry(
		hostfunc.WithMiddleware(middleware...),
		hostfunc.WithEntries(hostfunc.Builtins(fs, http)...),
	)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	var mounts []string
	if fs != nil {
		for _, m := range fs.Mounts() {
			mounts = append(mounts, m.VirtualPath+":"+m.HostPath+":"+m.Mode.String())
		}
	}
	cfg.logger.Debug("executor ready",
		zap.Strings("capabilities", registry.Names()),
		zap.Strings("mounts", mounts),
		zap.Int("workers", cfg.workers))

	return &Executor{
		registry: registry,
		logger:   cfg.logger,
		workers:  cfg.workers,
		sessions: make(map[*Session]struct{}),
	}, nil
}

// Registry returns the capability table installed into every session.
func (e *Executor) Registry() *hostfunc.Registry {
	return e.registry
}

// Run executes a script in a fresh session and closes it.
func (e *Executor) Run(ctx context.Context, script Script, opts ...SessionOption) Result {
	start := time.Now()

	s, err := e.NewSession(opts...)
	if err != nil {
		return Result{State: StateTerminated, Duration: time.Since(start), Error: err}
	}
	defer s.Close()

	if err := s.Load(script); err != nil {
		return s.result(start)
	}
	return s.Run(ctx)
}

func (e *Executor) track(s *Session) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExecutorClosed
	}
	e.sessions[s] = struct{}{}
	return nil
}

func (e *Executor) untrack(s *Session) {
	e.mu.Lock()
	delete(e.sessions, s)
	e.mu.Unlock()
}

// Close rejects new sessions and closes the ones still open.
func (e *Executor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	open := make([]*Session, 0, len(e.sessions))
	for s := range e.sessions {
		open = append(open, s)
	}
	e.mu.Unlock()

	for _, s := range open {
		s.Close()
	}
	return nil
}
