// Package scheduler debounces parameter changes and runs graph evaluations
// one at a time.
//
// A Scheduler owns the only path to the evaluator. Changes submitted while
// the debounce timer runs replace each other per node; when the timer fires
// the latest values are handed to the Task. An evaluation in flight is never
// cancelled and never overlapped: changes arriving meanwhile are debounced
// as usual and the batch starts as soon as the running evaluation returns.
// No timeout is applied to the Task; a Task that hangs stalls the scheduler.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/chazu/knurl/pkg/graph"
)

// DefaultDebounce is the quiet interval before a burst of changes is
// evaluated.
const DefaultDebounce = 120 * time.Millisecond

// ErrClosed is returned by operations on a closed Scheduler.
var ErrClosed = errors.New("scheduler: closed")

// State is the scheduler's externally visible phase.
type State int

const (
	Idle State = iota
	Debouncing
	Evaluating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Debouncing:
		return "debouncing"
	case Evaluating:
		return "evaluating"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Request is one coalesced batch of node updates.
type Request struct {
	Updates     map[graph.NodeID]float64
	RequestedAt time.Time // time of the latest change folded into the batch
}

// Task performs one evaluation. It is responsible for applying the result
// atomically and only on success.
type Task func(ctx context.Context, req Request) error

// Stats counts completed evaluations.
type Stats struct {
	Evaluations int
	Failures    int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDebounce sets the debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(s *Scheduler) { s.debounce = d }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithContext sets the context handed to debounced evaluations.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) { s.ctx = ctx }
}

// Scheduler serializes evaluations of one graph instance.
type Scheduler struct {
	task     Task
	clock    Clock
	debounce time.Duration
	logger   *slog.Logger
	ctx      context.Context

	mu        sync.Mutex
	pending   map[graph.NodeID]float64
	changedAt time.Time
	timer     Timer
	token     uint64 // identifies the armed timer; stale fires are ignored
	armed     bool
	due       bool // timer fired while an evaluation was in flight
	inFlight  bool
	flightCh  chan struct{} // closed when the current flight ends
	idleCh    chan struct{} // closed when the scheduler becomes idle
	closed    bool
	stats     Stats
}

// New creates a Scheduler running task.
func New(task Task, opts ...Option) *Scheduler {
	s := &Scheduler{
		task:     task,
		clock:    RealClock{},
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports the current phase. An evaluation in flight dominates a
// running debounce timer.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Scheduler) stateLocked() State {
	switch {
	case s.inFlight:
		return Evaluating
	case s.armed || s.due:
		return Debouncing
	default:
		return Idle
	}
}

// Stats returns evaluation counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Submit records new values and restarts the debounce timer. Values for
// the same node overwrite earlier ones.
func (s *Scheduler) Submit(updates map[graph.NodeID]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.pending == nil {
		s.pending = make(map[graph.NodeID]float64, len(updates))
	}
	maps.Copy(s.pending, updates)
	s.changedAt = s.clock.Now()
	s.armLocked()
	return nil
}

// armLocked cancels the current timer and starts a fresh one.
func (s *Scheduler) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.token++
	token := s.token
	s.armed = true
	s.due = false // the new timer carries the deferred batch
	s.busyLocked()
	s.timer = s.clock.AfterFunc(s.debounce, func() { s.fire(token) })
}

func (s *Scheduler) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.token++
	s.armed = false
}

// fire is the debounce timer callback.
func (s *Scheduler) fire(token uint64) {
	s.mu.Lock()
	if token != s.token || s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.armed = false
	if s.inFlight {
		s.due = true
		s.mu.Unlock()
		s.logger.Debug("debounce elapsed during evaluation; deferring")
		return
	}
	req := s.takeLocked()
	s.startFlightLocked()
	s.mu.Unlock()

	go s.run(s.ctx, req)
}

func (s *Scheduler) takeLocked() Request {
	req := Request{Updates: s.pending, RequestedAt: s.changedAt}
	if req.Updates == nil {
		req.Updates = map[graph.NodeID]float64{}
	}
	s.pending = nil
	return req
}

func (s *Scheduler) startFlightLocked() {
	s.inFlight = true
	s.flightCh = make(chan struct{})
	s.busyLocked()
}

func (s *Scheduler) busyLocked() {
	if s.idleCh == nil {
		s.idleCh = make(chan struct{})
	}
}

func (s *Scheduler) settleLocked() {
	if s.inFlight || s.armed || s.due || s.idleCh == nil {
		return
	}
	close(s.idleCh)
	s.idleCh = nil
}

// run executes a debounced batch and then decides what comes next.
func (s *Scheduler) run(ctx context.Context, req Request) {
	err := s.invoke(ctx, req)
	s.finish(err)
}

// invoke calls the task, converting a panic into an error.
func (s *Scheduler) invoke(ctx context.Context, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during evaluation: %v", r)
		}
	}()
	start := s.clock.Now()
	err = s.task(ctx, req)
	s.logger.Debug("evaluation finished",
		"updates", len(req.Updates),
		"duration", s.clock.Now().Sub(start),
		"ok", err == nil)
	return err
}

// finish ends the current flight and starts a deferred batch if the
// debounce timer elapsed while it ran.
func (s *Scheduler) finish(err error) {
	s.mu.Lock()
	s.stats.Evaluations++
	if err != nil {
		s.stats.Failures++
		s.logger.Error("evaluation failed; keeping last good result", "err", err)
	}
	s.inFlight = false
	if s.flightCh != nil {
		close(s.flightCh)
		s.flightCh = nil
	}

	if s.due && !s.closed {
		s.due = false
		req := s.takeLocked()
		s.startFlightLocked()
		s.mu.Unlock()
		go s.run(s.ctx, req)
		return
	}
	s.due = false
	s.settleLocked()
	s.mu.Unlock()
}

// Exclusive waits for any evaluation in flight, then runs fn while holding
// the single-flight guard. Pending changes and the debounce timer are left
// untouched. It is used to load graphs and for the initial evaluation.
func (s *Scheduler) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	err := s.invokeFn(ctx, fn)
	s.finishExclusive()
	return err
}

// RunNow evaluates immediately, folding any pending changes into updates.
// It waits for an evaluation in flight first.
func (s *Scheduler) RunNow(ctx context.Context, updates map[graph.NodeID]float64) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	if s.pending == nil {
		s.pending = make(map[graph.NodeID]float64, len(updates))
	}
	maps.Copy(s.pending, updates)
	s.changedAt = s.clock.Now()
	s.disarmLocked()
	s.due = false
	req := s.takeLocked()
	s.mu.Unlock()

	err := s.invoke(ctx, req)
	s.finish(err)
	return err
}

func (s *Scheduler) acquire(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		if !s.inFlight {
			s.startFlightLocked()
			s.mu.Unlock()
			return nil
		}
		ch := s.flightCh
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) invokeFn(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in exclusive section: %v", r)
		}
	}()
	return fn(ctx)
}

func (s *Scheduler) finishExclusive() {
	s.mu.Lock()
	s.inFlight = false
	if s.flightCh != nil {
		close(s.flightCh)
		s.flightCh = nil
	}
	if s.due && !s.closed {
		s.due = false
		req := s.takeLocked()
		s.startFlightLocked()
		s.mu.Unlock()
		go s.run(s.ctx, req)
		return
	}
	s.due = false
	s.settleLocked()
	s.mu.Unlock()
}

// Reset discards pending changes and stops the debounce timer. An
// evaluation in flight is unaffected.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.due = false
	s.disarmLocked()
	s.settleLocked()
}

// WaitIdle blocks until nothing is pending or running.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	ch := s.idleCh
	s.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the timer and rejects further work. An evaluation in flight
// runs to completion.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.pending = nil
	s.due = false
	s.disarmLocked()
	s.settleLocked()
}
