package scheduler

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counter is a job that records how often it ran and the state it saw.
type counter struct {
	mu    sync.Mutex
	runs  int
	state string
	input atomic.Value
}

func (c *counter) run(_ context.Context, _ string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs++
	c.state, _ = c.input.Load().(string)
	return c.state
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

type recorder struct {
	submitted atomic.Int32
	coalesced atomic.Int32
	completed atomic.Int32
}

func (r *recorder) Submitted(_ string, coalesced bool) {
	r.submitted.Add(1)
	if coalesced {
		r.coalesced.Add(1)
	}
}

func (r *recorder) Completed(string, time.Duration) { r.completed.Add(1) }

func TestScheduler_CoalescesSubmissions(t *testing.T) {
	t.Parallel()
	c := &counter{}
	obs := &recorder{}
	s := New(c.run, WithDelay(50*time.Millisecond), WithObserver(obs))
	t.Cleanup(s.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := range 10 {
		c.input.Store("edit-" + strconv.Itoa(i))
		s.Submit("entry")
		time.Sleep(2 * time.Millisecond)
	}
	assert.Equal(t, Scheduled, s.State("entry"))

	got, err := s.Next(ctx, "entry")
	require.NoError(t, err)
	assert.Equal(t, "edit-9", got)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, c.count())
	assert.Equal(t, int32(10), obs.submitted.Load())
	assert.Equal(t, int32(9), obs.coalesced.Load())
	assert.Equal(t, int32(1), obs.completed.Load())
	assert.Equal(t, Idle, s.State("entry"))

	latest, ok := s.Latest("entry")
	require.True(t, ok)
	assert.Equal(t, "edit-9", latest)
}

func TestScheduler_PublishesWithoutReaders(t *testing.T) {
	t.Parallel()
	c := &counter{}
	s := New(c.run, WithDelay(10*time.Millisecond))
	t.Cleanup(s.Close)

	s.Submit("entry")
	require.Eventually(t, func() bool { return s.Runs("entry") == 1 }, 2*time.Second, 5*time.Millisecond)

	// Nobody called Latest in between; the next submission must still run.
	s.Submit("entry")
	require.Eventually(t, func() bool { return s.Runs("entry") == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, c.count())
}

func TestScheduler_SubmitWhileRunning(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var runs atomic.Int32
	s := New(func(context.Context, string) int {
		n := runs.Add(1)
		started <- struct{}{}
		if n == 1 {
			<-release
		}
		return int(n)
	}, WithDelay(10*time.Millisecond))
	t.Cleanup(s.Close)

	s.Submit("entry")
	<-started
	assert.Equal(t, Running, s.State("entry"))

	s.Submit("entry")
	close(release)

	require.Eventually(t, func() bool { return s.Runs("entry") == 2 }, 2*time.Second, 5*time.Millisecond)
	latest, ok := s.Latest("entry")
	require.True(t, ok)
	assert.Equal(t, 2, latest)
}

func TestScheduler_OneRunAtATime(t *testing.T) {
	t.Parallel()
	var active, peak atomic.Int32
	s := New(func(context.Context, string) bool {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		return true
	}, WithDelay(time.Millisecond))
	t.Cleanup(s.Close)

	for _, key := range []string{"a", "b", "c", "d"} {
		s.Submit(key)
	}
	require.Eventually(t, func() bool {
		return s.Runs("a") == 1 && s.Runs("b") == 1 && s.Runs("c") == 1 && s.Runs("d") == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), peak.Load())
}

func TestScheduler_SetDelayRearms(t *testing.T) {
	t.Parallel()
	c := &counter{}
	s := New(c.run, WithDelay(time.Hour))
	t.Cleanup(s.Close)

	s.Submit("entry")
	assert.Equal(t, Scheduled, s.State("entry"))
	s.SetDelay(5 * time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, s.Delay())

	require.Eventually(t, func() bool { return s.Runs("entry") == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_NextHonoursContext(t *testing.T) {
	t.Parallel()
	s := New(func(context.Context, string) int { return 1 })
	t.Cleanup(s.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Next(ctx, "never")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_Forget(t *testing.T) {
	t.Parallel()
	c := &counter{}
	s := New(c.run, WithDelay(time.Hour))
	t.Cleanup(s.Close)

	s.Submit("entry")
	done := make(chan error, 1)
	go func() {
		_, err := s.Next(context.Background(), "entry")
		done <- err
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.entries["entry"].waiters) == 1
	}, time.Second, time.Millisecond)

	s.Forget("entry")
	assert.ErrorIs(t, <-done, ErrForgotten)
	assert.Equal(t, Idle, s.State("entry"))
	_, ok := s.Latest("entry")
	assert.False(t, ok)
	assert.Zero(t, c.count())
}

func TestScheduler_ForgetWhileRunning(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	finished := make(chan struct{}, 1)
	s := New(func(context.Context, string) string {
		started <- struct{}{}
		<-release
		finished <- struct{}{}
		return "stale"
	}, WithDelay(time.Millisecond))
	t.Cleanup(s.Close)

	s.Submit("entry")
	<-started
	s.Forget("entry")
	close(release)
	<-finished

	// The worker publishes under the lock right after the job returns.
	time.Sleep(20 * time.Millisecond)
	_, ok := s.Latest("entry")
	assert.False(t, ok, "a forgotten key must not get its result back")
	assert.Zero(t, s.Runs("entry"))
	assert.Equal(t, Idle, s.State("entry"))
}

func TestScheduler_CloseAnswersWaiters(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	s := New(func(_ context.Context, key string) string {
		if key == "a" {
			started <- struct{}{}
			<-release
		}
		return key
	}, WithDelay(time.Millisecond))

	s.Submit("a")
	<-started
	runNow := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background(), "b")
		runNow <- err
	}()
	next := make(chan error, 1)
	go func() {
		_, err := s.Next(context.Background(), "c")
		next <- err
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		b, c := s.entries["b"], s.entries["c"]
		return b != nil && len(b.waiters) == 1 && c != nil && len(c.waiters) == 1
	}, time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	for _, ch := range []chan error{runNow, next} {
		select {
		case err := <-ch:
			assert.ErrorIs(t, err, ErrClosed)
		case <-time.After(5 * time.Second):
			t.Fatal("waiter still blocked after Close")
		}
	}
	close(release)
	<-closed

	_, err := s.Next(context.Background(), "a")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestScheduler_CloseDropsPending(t *testing.T) {
	t.Parallel()
	c := &counter{}
	s := New(c.run, WithDelay(20*time.Millisecond))
	s.Submit("entry")
	s.Close()
	s.Submit("entry")
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, c.count())
	s.Close()
}

func TestScheduler_RunNow(t *testing.T) {
	t.Parallel()
	c := &counter{}
	s := New(c.run, WithDelay(time.Hour))
	t.Cleanup(s.Close)

	c.input.Store("v1")
	s.Submit("k")
	got, err := s.RunNow(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)
	assert.Equal(t, 1, c.count(), "the pending submission is folded into the immediate run")
	assert.Equal(t, Idle, s.State("k"))

	s.Close()
	_, err = s.RunNow(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestScheduler_RunNowWhileRunning(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var calls atomic.Int32
	s := New(func(_ context.Context, _ string) int {
		n := int(calls.Add(1))
		started <- struct{}{}
		if n == 1 {
			<-release
		}
		return n
	}, WithDelay(0))
	t.Cleanup(s.Close)

	s.Submit("k")
	<-started
	done := make(chan int, 1)
	go func() {
		r, err := s.RunNow(context.Background(), "k")
		assert.NoError(t, err)
		done <- r
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.entries["k"].deferred) == 1
	}, time.Second, 5*time.Millisecond)
	close(release)

	select {
	case r := <-done:
		assert.Equal(t, 2, r, "the result comes from the run after the one in progress")
	case <-time.After(5 * time.Second):
		t.Fatal("RunNow did not return")
	}
}
