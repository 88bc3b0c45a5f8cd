package bridge

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caffeineduck/runjs/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	name     string
	log      *[]string
	resolved value.Value
	rejected error
	fail     error
}

func (r *recorder) Resolve(v value.Value) error {
	r.resolved = v
	*r.log = append(*r.log, r.name)
	return r.fail
}

func (r *recorder) Reject(err error) error {
	r.rejected = err
	*r.log = append(*r.log, r.name+" rejected")
	return r.fail
}

func sleepOp(d time.Duration, result string) Operation {
	return func(ctx context.Context) (value.Value, error) {
		select {
		case <-time.After(d):
			return value.String(result), nil
		case <-ctx.Done():
			return value.Value{}, context.Cause(ctx)
		}
	}
}

func blockOp(started chan<- struct{}, seen *atomic.Value) Operation {
	return func(ctx context.Context) (value.Value, error) {
		close(started)
		<-ctx.Done()
		seen.Store(context.Cause(ctx))
		return value.Value{}, ctx.Err()
	}
}

func receive(t *testing.T, b *Bridge) *PendingOperation {
	t.Helper()
	select {
	case p := <-b.Completed():
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("no operation completed")
		return nil
	}
}

func TestSettleInCompletionOrder(t *testing.T) {
	b := New()
	var log []string

	b.Invoke(KindRead, "slow", &recorder{name: "slow", log: &log}, sleepOp(150*time.Millisecond, "s"))
	b.Invoke(KindRead, "fast", &recorder{name: "fast", log: &log}, sleepOp(10*time.Millisecond, "f"))
	assert.Equal(t, 2, b.Len())

	for b.Len() > 0 {
		require.NoError(t, b.Settle(receive(t, b)))
	}
	assert.Equal(t, []string{"fast", "slow"}, log)
	assert.Equal(t, int64(2), b.Created())
	b.Wait()
}

func TestSettleDeliversOutcome(t *testing.T) {
	b := New()
	var log []string
	ok := &recorder{name: "ok", log: &log}
	bad := &recorder{name: "bad", log: &log}
	boom := errors.New("boom")

	b.Invoke(KindWrite, "ok", ok, func(context.Context) (value.Value, error) {
		return value.Number(7), nil
	})
	require.NoError(t, b.Settle(receive(t, b)))

	p := b.Invoke(KindRemove, "bad", bad, func(context.Context) (value.Value, error) {
		return value.Value{}, boom
	})
	got := receive(t, b)
	assert.Same(t, p, got)
	assert.ErrorIs(t, got.Outcome().Err, boom)
	require.NoError(t, b.Settle(got))

	assert.Equal(t, float64(7), ok.resolved.Number())
	assert.ErrorIs(t, bad.rejected, boom)
	assert.Equal(t, []string{"ok", "bad rejected"}, log)
}

func TestSettleTwiceIsNoop(t *testing.T) {
	b := New()
	var log []string

	b.Invoke(KindRead, "once", &recorder{name: "once", log: &log}, sleepOp(0, "x"))
	p := receive(t, b)
	require.NoError(t, b.Settle(p))
	require.NoError(t, b.Settle(p))
	assert.Equal(t, []string{"once"}, log)
}

func TestSettleReturnsContinuationError(t *testing.T) {
	b := New()
	var log []string
	thrown := errors.New("thrown by continuation")

	b.Invoke(KindFetch, "fetch", &recorder{name: "r", log: &log, fail: thrown}, sleepOp(0, "x"))
	assert.ErrorIs(t, b.Settle(receive(t, b)), thrown)
}

func TestWorkersBoundConcurrency(t *testing.T) {
	b := New(WithWorkers(2))
	var log []string
	var running, peak atomic.Int32

	op := func(context.Context) (value.Value, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return value.Undefined(), nil
	}

	for i := 0; i < 6; i++ {
		b.Invoke(KindRead, "read", &recorder{name: "r", log: &log}, op)
	}
	for b.Len() > 0 {
		require.NoError(t, b.Settle(receive(t, b)))
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Len(t, log, 6)
}

func TestPanicBecomesError(t *testing.T) {
	b := New()
	var log []string
	r := &recorder{name: "p", log: &log}

	b.Invoke(KindRead, "panics", r, func(context.Context) (value.Value, error) {
		panic("kaboom")
	})
	require.NoError(t, b.Settle(receive(t, b)))
	require.Error(t, r.rejected)
	assert.Contains(t, r.rejected.Error(), "operation panicked: kaboom")
}

func TestDetachCancelsAndDiscards(t *testing.T) {
	b := New()
	var log []string
	var seen atomic.Value
	cause := errors.New("session over")

	first, second := make(chan struct{}), make(chan struct{})
	p1 := b.Invoke(KindFetch, "a", &recorder{name: "a", log: &log}, blockOp(first, &seen))
	p2 := b.Invoke(KindFetch, "b", &recorder{name: "b", log: &log}, blockOp(second, &seen))
	<-first
	<-second

	left := b.Detach(cause)
	require.Len(t, left, 2)
	assert.Same(t, p1, left[0])
	assert.Same(t, p2, left[1])
	assert.Zero(t, b.Len())

	b.Wait()
	assert.ErrorIs(t, seen.Load().(error), cause)
	assert.ErrorIs(t, context.Cause(b.Context()), cause)
	assert.Empty(t, log, "detached results never reach their handles")

	select {
	case p := <-b.Completed():
		t.Fatalf("unexpected completion of op %d", p.ID)
	default:
	}

	// a second detach is harmless
	assert.Empty(t, b.Detach(nil))
}

func TestAbandonRejects(t *testing.T) {
	b := New()
	var log []string
	var seen atomic.Value
	r := &recorder{name: "a", log: &log}

	started := make(chan struct{})
	b.Invoke(KindWrite, "a", r, blockOp(started, &seen))
	<-started

	timeout := errors.New("timed out")
	for _, p := range b.Detach(nil) {
		require.NoError(t, p.Abandon(timeout))
	}
	b.Wait()

	assert.ErrorIs(t, r.rejected, timeout)
	assert.ErrorIs(t, seen.Load().(error), ErrDetached)
}

func TestParentContextCancelsOperations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := New(WithContext(ctx))
	var log []string
	r := &recorder{name: "a", log: &log}

	b.Invoke(KindFetch, "a", r, sleepOp(5*time.Second, "late"))
	cancel()

	require.NoError(t, b.Settle(receive(t, b)))
	assert.ErrorIs(t, r.rejected, context.Canceled)
}

func TestQueuedOperationSeesDetach(t *testing.T) {
	b := New(WithWorkers(1))
	var log []string
	var seen atomic.Value

	started := make(chan struct{})
	b.Invoke(KindRead, "busy", &recorder{name: "busy", log: &log}, blockOp(started, &seen))
	<-started

	ran := make(chan struct{}, 1)
	b.Invoke(KindRead, "queued", &recorder{name: "queued", log: &log}, func(context.Context) (value.Value, error) {
		ran <- struct{}{}
		return value.Undefined(), nil
	})

	b.Detach(nil)
	b.Wait()
	select {
	case <-ran:
		t.Fatal("queued operation ran after detach")
	default:
	}
}
