// Package scheduler runs debounced jobs on a single worker goroutine.
//
// Each key moves through Idle, Scheduled and Running. Submitting a key
// (re)arms its debounce timer; when the timer fires the job for that key is
// queued for the worker, which runs it to completion and publishes the
// result. Publishing and clearing the running state happen under one lock,
// so a submission is never lost because nobody read the previous result.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrForgotten is returned by Next when the key is forgotten while waiting.
var ErrForgotten = errors.New("scheduler: key forgotten")

// ErrClosed is returned by Next and RunNow after Close.
var ErrClosed = errors.New("scheduler: closed")

// State is the scheduling state of one key.
type State int

const (
	Idle State = iota
	Scheduled
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scheduled:
		return "scheduled"
	case Running:
		return "running"
	}
	return "unknown"
}

// Func performs one job for key.
type Func[T any] func(ctx context.Context, key string) T

// Observer is told about scheduling activity. Implementations must be safe
// for concurrent use and must not block.
type Observer interface {
	Submitted(key string, coalesced bool)
	Completed(key string, elapsed time.Duration)
}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	delay    time.Duration
	logger   *slog.Logger
	observer Observer
}

// WithDelay sets the debounce interval. The default is one second.
func WithDelay(d time.Duration) Option {
	return func(o *options) { o.delay = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver reports submissions and completed runs to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

type entry[T any] struct {
	timer   *time.Timer
	token   uint64
	queued  bool
	running bool

	latest  T
	has     bool
	runs    uint64
	waiters []chan T
	// deferred waiters want the run after the one in progress.
	deferred []chan T
}

func (e *entry[T]) state() State {
	switch {
	case e.running:
		return Running
	case e.timer != nil || e.queued:
		return Scheduled
	}
	return Idle
}

// Scheduler coalesces submissions per key and runs at most one job at a
// time.
type Scheduler[T any] struct {
	run      Func[T]
	logger   *slog.Logger
	observer Observer

	mu      sync.Mutex
	delay   time.Duration
	entries map[string]*entry[T]
	queue   []string
	closed  bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// New starts a scheduler whose worker calls run.
func New[T any](run Func[T], opts ...Option) *Scheduler[T] {
	o := options{delay: time.Second, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Scheduler[T]{
		run:      run,
		logger:   o.logger,
		observer: o.observer,
		delay:    o.delay,
		entries:  make(map[string]*entry[T]),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

func (s *Scheduler[T]) entry(key string) *entry[T] {
	e, ok := s.entries[key]
	if !ok {
		e = &entry[T]{}
		s.entries[key] = e
	}
	return e
}

// Submit requests a run for key after the debounce interval. A pending
// request for the same key is replaced. Submitting while the key is running
// arms a fresh timer so the edit is picked up by a later run.
func (s *Scheduler[T]) Submit(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	e := s.entry(key)
	coalesced := e.timer != nil
	s.arm(key, e)
	if s.observer != nil {
		s.observer.Submitted(key, coalesced)
	}
	s.logger.Debug("submit", slog.String("key", key), slog.Bool("coalesced", coalesced))
}

// arm (re)starts the debounce timer of e. Must be called with mu held.
func (s *Scheduler[T]) arm(key string, e *entry[T]) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.token++
	tok := e.token
	e.timer = time.AfterFunc(s.delay, func() { s.fire(key, tok) })
}

func (s *Scheduler[T]) fire(key string, tok uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || s.closed || e.token != tok {
		return
	}
	e.timer = nil
	if !e.queued {
		e.queued = true
		s.queue = append(s.queue, key)
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler[T]) worker() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		key := s.queue[0]
		s.queue = s.queue[1:]
		e, ok := s.entries[key]
		if !ok {
			s.mu.Unlock()
			continue
		}
		e.queued = false
		e.running = true
		e.waiters = append(e.waiters, e.deferred...)
		e.deferred = nil
		s.mu.Unlock()

		start := time.Now()
		result := s.run(context.Background(), key)
		elapsed := time.Since(start)

		s.mu.Lock()
		e.running = false
		if s.closed || s.entries[key] != e {
			// Forgotten or closed while running; its waiters were already answered.
			s.mu.Unlock()
			continue
		}
		e.latest, e.has = result, true
		e.runs++
		waiters := e.waiters
		e.waiters = nil
		s.mu.Unlock()

		for _, w := range waiters {
			w <- result
		}
		if s.observer != nil {
			s.observer.Completed(key, elapsed)
		}
		s.logger.Debug("run complete", slog.String("key", key), slog.Duration("elapsed", elapsed))
	}
}

// Latest returns the most recently published result for key.
func (s *Scheduler[T]) Latest(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.has {
		return e.latest, true
	}
	var zero T
	return zero, false
}

// Next blocks until a run for key that completes after the call, or until
// ctx is done.
func (s *Scheduler[T]) Next(ctx context.Context, key string) (T, error) {
	ch := make(chan T, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		var zero T
		return zero, ErrClosed
	}
	e := s.entry(key)
	e.waiters = append(e.waiters, ch)
	s.mu.Unlock()
	return s.wait(ctx, ch)
}

// wait receives the result sent on ch. A closed channel means the key was
// forgotten or the scheduler closed.
func (s *Scheduler[T]) wait(ctx context.Context, ch chan T) (T, error) {
	select {
	case r, ok := <-ch:
		if ok {
			return r, nil
		}
		var zero T
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return zero, ErrClosed
		}
		return zero, ErrForgotten
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// RunNow queues key without waiting for the debounce interval and blocks
// until that run completes. When key is already running, the result is the
// one of the following run.
func (s *Scheduler[T]) RunNow(ctx context.Context, key string) (T, error) {
	ch := make(chan T, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		var zero T
		return zero, ErrClosed
	}
	e := s.entry(key)
	e.token++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.running {
		e.deferred = append(e.deferred, ch)
	} else {
		e.waiters = append(e.waiters, ch)
	}
	if !e.queued {
		e.queued = true
		s.queue = append(s.queue, key)
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.mu.Unlock()
	return s.wait(ctx, ch)
}

// State reports the scheduling state of key.
func (s *Scheduler[T]) State(key string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.state()
	}
	return Idle
}

// Runs returns how many runs for key have completed.
func (s *Scheduler[T]) Runs(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.runs
	}
	return 0
}

// Delay returns the debounce interval.
func (s *Scheduler[T]) Delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

// SetDelay changes the debounce interval and re-arms every pending timer
// with it.
func (s *Scheduler[T]) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
	for key, e := range s.entries {
		if e.timer != nil {
			s.arm(key, e)
		}
	}
}

// Forget cancels any pending run for key and drops its published result.
// Waiters get ErrForgotten. A run already in progress finishes but its
// result is discarded.
func (s *Scheduler[T]) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return
	}
	delete(s.entries, key)
	e.release()
}

// release stops e's timer and closes its waiters. Must be called with mu
// held.
func (e *entry[T]) release() {
	e.token++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	for _, w := range append(e.waiters, e.deferred...) {
		close(w)
	}
	e.waiters, e.deferred = nil, nil
}

// Close stops accepting submissions and cancels pending timers. Blocked
// Next and RunNow calls return ErrClosed. Close waits for a run in progress
// to finish.
func (s *Scheduler[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, e := range s.entries {
		e.release()
	}
	s.queue = nil
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
}
