package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caffeineduck/runjs/bridge"
	"github.com/caffeineduck/runjs/hostfunc"
	"github.com/caffeineduck/runjs/value"
	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

var errDrainTimeout = errors.New("drain timeout")

// Session is one script engine instance, the script loaded into it and the
// host operations that script started. A session runs at most once.
//
// All engine access happens on the goroutine that calls Run. Close may be
// called from any goroutine.
type Session struct {
	id     string
	exec   *Executor
	cfg    sessionConfig
	logger *zap.Logger

	vm      *goja.Runtime
	marshal *value.Marshaler
	script  Script
	program *goja.Program
	state   atomic.Int32

	// owned by the running loop
	top       *goja.Promise
	unhandled []*goja.Promise
	errs      *multierror.Error
	timedOut  bool

	mu      sync.Mutex
	bridge  *bridge.Bridge
	closed  bool
	closing chan struct{}
	runDone chan struct{}
}

// NewSession creates a session with every registered capability installed.
func (e *Executor) NewSession(opts ...SessionOption) (*Session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Session{
		id:      uuid.NewString(),
		exec:    e,
		cfg:     cfg,
		vm:      goja.New(),
		closing: make(chan struct{}),
	}
	s.logger = e.logger.With(zap.String("session", s.id))
	s.marshal = value.NewMarshaler(s.vm)
	s.vm.SetPromiseRejectionTracker(s.trackRejection)

	if err := s.install(); err != nil {
		return nil, err
	}
	if err := e.track(s); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.logger.Debug("session state", zap.Stringer("from", prev), zap.Stringer("state", st))
	}
}

// Load compiles a script. A parse failure is fatal: it is reported, the
// session terminates and nothing executes.
func (s *Session) Load(script Script) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateLoading)) {
		return ErrAlreadyLoaded
	}
	s.logger.Debug("session state", zap.Stringer("from", StateCreated), zap.Stringer("state", StateLoading))

	s.script = script
	prg, err := compile(script)
	if err != nil {
		s.report(err)
		s.setState(StateTerminated)
		return err
	}
	s.program = prg
	return nil
}

// Run executes the loaded script and its event loop until the session
// terminates. It returns once every continuation has run or the session was
// aborted.
func (s *Session) Run(ctx context.Context) Result {
	start := time.Now()

	if s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.timeout)
		defer cancel()
	}

	if err := s.begin(ctx); err != nil {
		return Result{SessionID: s.id, State: s.State(), Duration: time.Since(start), Error: err}
	}
	defer close(s.runDone)

	stop := context.AfterFunc(ctx, func() {
		s.vm.Interrupt(s.interruptCause(ctx))
	})
	defer stop()

	s.setState(StateRunning)
	s.loop(ctx)

	s.bridge.Detach(ErrSessionClosed)
	s.setState(StateTerminated)

	res := s.result(start)
	s.logger.Debug("session finished",
		zap.Duration("duration", res.Duration),
		zap.Int64("operations", res.Operations),
		zap.Bool("timed_out", res.TimedOut),
		zap.Error(res.Error))
	return res
}

func (s *Session) begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	switch {
	case s.State() == StateCreated:
		return ErrNotLoaded
	case s.program == nil:
		return ErrNotLoaded
	case s.State() != StateLoading:
		return ErrAlreadyRun
	}

	s.bridge = bridge.New(
		bridge.WithContext(ctx),
		bridge.WithWorkers(s.exec.workers),
		bridge.WithLogger(s.logger),
	)
	s.runDone = make(chan struct{})
	return nil
}

func (s *Session) loop(ctx context.Context) {
	v, err := s.vm.RunProgram(s.program)
	if err != nil {
		s.abort(s.fromEngine(err))
		return
	}
	top, ok := v.Export().(*goja.Promise)
	if !ok {
		s.abort(&EngineError{Kind: UncaughtException, Script: s.script.Name, Message: "script did not produce a promise"})
		return
	}
	s.top = top

	var drain <-chan time.Time
	for {
		if !s.afterTurn() {
			return
		}

		if s.State() == StateRunning && s.top.State() == goja.PromiseStateFulfilled {
			s.setState(StateDraining)
			if s.cfg.drainTimeout > 0 && s.bridge.Len() > 0 {
				timer := time.NewTimer(s.cfg.drainTimeout)
				defer timer.Stop()
				drain = timer.C
			}
		}

		if s.bridge.Len() == 0 {
			if s.top.State() == goja.PromiseStatePending {
				s.report(ErrUnsettled)
			}
			return
		}

		select {
		case p := <-s.bridge.Completed():
			if err := s.bridge.Settle(p); err != nil {
				s.abort(s.fromEngine(err))
				return
			}
		case <-drain:
			s.forceCancel()
			return
		case <-ctx.Done():
			cause := s.interruptCause(ctx)
			s.abort(&EngineError{Kind: Interrupted, Script: s.script.Name, Message: cause.Error(), Err: cause})
			return
		case <-s.closing:
			s.abort(&EngineError{Kind: Interrupted, Script: s.script.Name, Message: ErrSessionClosed.Error(), Err: ErrSessionClosed})
			return
		}
	}
}

// afterTurn inspects the engine once the job queue is empty. It reports false
// when the session must stop resuming continuations.
func (s *Session) afterTurn() bool {
	if s.top != nil && s.top.State() == goja.PromiseStateRejected {
		s.abort(&EngineError{
			Kind:    UncaughtException,
			Script:  s.script.Name,
			Message: s.describe(s.top.Result()),
		})
		return false
	}

	var uncaught bool
	for _, p := range s.unhandled {
		if p == s.top {
			continue
		}
		uncaught = true
		s.report(&EngineError{
			Kind:    UncaughtException,
			Script:  s.script.Name,
			Message: "unhandled rejection: " + s.describe(p.Result()),
		})
	}
	s.unhandled = s.unhandled[:0]
	if uncaught {
		s.abort(nil)
		return false
	}
	return true
}

func (s *Session) trackRejection(p *goja.Promise, op goja.PromiseRejectionOperation) {
	switch op {
	case goja.PromiseRejectionReject:
		s.unhandled = append(s.unhandled, p)
	case goja.PromiseRejectionHandle:
		for i, u := range s.unhandled {
			if u == p {
				s.unhandled = append(s.unhandled[:i], s.unhandled[i+1:]...)
				break
			}
		}
	}
}

// abort reports err, when set, and detaches every pending operation without
// resuming its continuation.
func (s *Session) abort(err error) {
	if err != nil {
		s.report(err)
	}
	if left := s.bridge.Detach(ErrSessionClosed); len(left) > 0 {
		s.logger.Debug("detached pending operations", zap.Int("pending", len(left)))
	}
}

// forceCancel ends Draining. Remaining operations are cancelled and their
// promises rejected with Timeout; the continuations get one final turn.
func (s *Session) forceCancel() {
	s.timedOut = true
	left := s.bridge.Detach(errDrainTimeout)
	s.logger.Warn("drain timeout",
		zap.Duration("timeout", s.cfg.drainTimeout),
		zap.Int("pending", len(left)))

	for _, p := range left {
		err := &hostfunc.CapabilityError{
			Kind:       hostfunc.Timeout,
			Capability: p.Capability,
			Message:    fmt.Sprintf("cancelled after %v", s.cfg.drainTimeout),
			Err:        errDrainTimeout,
		}
		if rerr := p.Abandon(err); rerr != nil {
			s.report(s.fromEngine(rerr))
			return
		}
	}
	s.afterTurn()
}

func (s *Session) interruptCause(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, context.DeadlineExceeded) && s.cfg.timeout > 0 {
		return fmt.Errorf("timeout after %v", s.cfg.timeout)
	}
	return cause
}

func (s *Session) report(err error) {
	s.errs = multierror.Append(s.errs, err)
	s.errs.ErrorFormat = formatErrors
	if s.cfg.errorSink != nil {
		s.cfg.errorSink(err)
		return
	}
	s.logger.Error("script error", zap.Error(err))
}

func formatErrors(errs []error) string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(errs), strings.Join(msgs, "; "))
}

// describe renders a thrown or rejected value for an error message. It runs
// with the engine idle, so anything escaping the marshaler is swallowed.
func (s *Session) describe(v goja.Value) (text string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("describe failed", zap.Any("panic", r))
			text = "<unprintable value>"
		}
	}()
	return value.Format(s.marshal.FromScript(v))
}

func (s *Session) result(start time.Time) Result {
	r := Result{
		SessionID: s.id,
		State:     s.State(),
		Duration:  time.Since(start),
		TimedOut:  s.timedOut,
		Error:     s.errs.ErrorOrNil(),
	}
	if s.bridge != nil {
		r.Operations = s.bridge.Created()
	}
	return r
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close terminates the session. A running script is interrupted, pending
// operations are detached and their results discarded. Close waits for Run
// and for the operation workers to return.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closing)
	b, done := s.bridge, s.runDone
	s.mu.Unlock()

	s.vm.Interrupt(ErrSessionClosed)
	if done != nil {
		<-done
	}
	if b != nil {
		b.Detach(ErrSessionClosed)
		b.Wait()
	}
	s.setState(StateTerminated)
	s.exec.untrack(s)
	return nil
}
