// Package bridge turns host-side blocking operations into deferred results
// that a single-threaded script event loop can consume.
//
// An operation is started with [Bridge.Invoke], which returns immediately.
// A worker goroutine runs the operation, stores its outcome once, and hands
// the record to the event loop through [Bridge.Completed]. The loop then calls
// [Bridge.Settle] to resume the waiting script continuation. Records arrive in
// completion order, not invocation order.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caffeineduck/runjs/value"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Kind classifies a pending operation.
type Kind string

const (
	KindRead   Kind = "read"
	KindWrite  Kind = "write"
	KindRemove Kind = "remove"
	KindFetch  Kind = "fetch"
)

// Operation is the blocking part of a capability call. It runs on a worker
// goroutine and must honour ctx cancellation.
type Operation func(ctx context.Context) (value.Value, error)

// Deferred is the script-visible handle an operation resolves. Its methods are
// only called on the event loop goroutine.
type Deferred interface {
	Resolve(v value.Value) error
	Reject(err error) error
}

// ErrDetached is the default cancellation cause of a detached bridge.
var ErrDetached = errors.New("bridge detached")

// Outcome is the completion slot of a pending operation.
type Outcome struct {
	Value value.Value
	Err   error
}

// PendingOperation is the bookkeeping record of one in-flight call.
type PendingOperation struct {
	ID         uint64
	Kind       Kind
	Capability string
	Started    time.Time

	deferred Deferred
	outcome  Outcome // written by the worker before the record is enqueued
}

// Outcome returns the completion slot. It is only meaningful after the record
// has been received from Completed.
func (p *PendingOperation) Outcome() Outcome { return p.outcome }

// Abandon rejects the deferred handle without waiting for the worker. Used for
// records returned by Detach.
func (p *PendingOperation) Abandon(err error) error {
	return p.deferred.Reject(err)
}

// Bridge schedules operations for one session.
type Bridge struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	sem    *semaphore.Weighted
	logger *zap.Logger

	completed  chan *PendingOperation
	detached   chan struct{}
	detachOnce sync.Once

	mu      sync.Mutex
	pending map[uint64]*PendingOperation

	nextID  atomic.Uint64
	created atomic.Int64
	wg      sync.WaitGroup
}

// New returns a Bridge.
func New(opts ...Option) *Bridge {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancelCause(cfg.ctx)
	return &Bridge{
		ctx:       ctx,
		cancel:    cancel,
		sem:       semaphore.NewWeighted(int64(cfg.workers)),
		logger:    cfg.logger,
		completed: make(chan *PendingOperation),
		detached:  make(chan struct{}),
		pending:   make(map[uint64]*PendingOperation),
	}
}

// Invoke records a pending operation and starts it on a worker. It never
// blocks on the operation itself.
func (b *Bridge) Invoke(kind Kind, capability string, d Deferred, op Operation) *PendingOperation {
	p := &PendingOperation{
		ID:         b.nextID.Add(1),
		Kind:       kind,
		Capability: capability,
		Started:    time.Now(),
		deferred:   d,
	}

	b.mu.Lock()
	b.pending[p.ID] = p
	b.mu.Unlock()
	b.created.Add(1)

	b.logger.Debug("operation scheduled",
		zap.Uint64("op", p.ID),
		zap.String("kind", string(kind)),
		zap.String("capability", capability))

	b.wg.Add(1)
	go b.work(p, op)
	return p
}

func (b *Bridge) work(p *PendingOperation, op Operation) {
	defer b.wg.Done()

	if err := b.sem.Acquire(b.ctx, 1); err != nil {
		p.outcome = Outcome{Err: context.Cause(b.ctx)}
	} else {
		p.outcome = run(b.ctx, op)
		b.sem.Release(1)
	}

	select {
	case b.completed <- p:
	case <-b.detached:
		b.logger.Debug("discarding detached result",
			zap.Uint64("op", p.ID),
			zap.String("capability", p.Capability))
	}
}

func run(ctx context.Context, op Operation) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Err: fmt.Errorf("operation panicked: %v", r)}
		}
	}()
	v, err := op(ctx)
	return Outcome{Value: v, Err: err}
}

// Completed delivers finished operations in the order they finished.
func (b *Bridge) Completed() <-chan *PendingOperation {
	return b.completed
}

// Settle delivers the outcome of p to its deferred handle and forgets p. The
// returned error is whatever the handle reports, typically an exception raised
// while running the resumed continuation.
func (b *Bridge) Settle(p *PendingOperation) error {
	b.mu.Lock()
	_, ok := b.pending[p.ID]
	delete(b.pending, p.ID)
	b.mu.Unlock()
	if !ok {
		return nil
	}

	if p.outcome.Err != nil {
		return p.deferred.Reject(p.outcome.Err)
	}
	return p.deferred.Resolve(p.outcome.Value)
}

// Len returns the number of operations not yet settled.
func (b *Bridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Created returns how many operations this bridge has ever recorded.
func (b *Bridge) Created() int64 {
	return b.created.Load()
}

// Context returns the context operations run under. It is cancelled by Detach.
func (b *Bridge) Context() context.Context {
	return b.ctx
}

// Detach cancels every running operation with cause and stops accepting
// their results. Results that arrive later are discarded. The records still
// pending are returned in invocation order and are no longer tracked.
func (b *Bridge) Detach(cause error) []*PendingOperation {
	if cause == nil {
		cause = ErrDetached
	}
	b.detachOnce.Do(func() {
		b.cancel(cause)
		close(b.detached)
	})

	b.mu.Lock()
	left := make([]*PendingOperation, 0, len(b.pending))
	for id, p := range b.pending {
		left = append(left, p)
		delete(b.pending, id)
	}
	b.mu.Unlock()

	sort.Slice(left, func(i, j int) bool { return left[i].ID < left[j].ID })
	return left
}

// Wait blocks until every worker has returned.
func (b *Bridge) Wait() {
	b.wg.Wait()
}
