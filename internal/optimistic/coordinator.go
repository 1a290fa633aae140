// Package optimistic applies a change to local state immediately, persists it
// through a caller supplied remote write, and restores the previous state if
// that write fails.
//
// A Coordinator owns the local state of every target it manages. Each target
// (one scheduled item, one ordered list) runs at most one mutation at a time:
//
//	Idle -> Applying -> Persisting -> Committed   -> Idle
//	                               -> RollingBack -> Idle
//
// Distinct targets never block each other.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

var (
	ErrMutationInProgress = errors.New("a mutation is already in progress for this target")
	ErrNotFound           = errors.New("target has no local state")
	ErrAlreadyExists      = errors.New("target already has local state")
)

// MutationFailedError is returned when the remote write failed. By the time
// a caller sees it the local state has already been restored.
type MutationFailedError struct {
	Target string
	Err    error
}

func (e *MutationFailedError) Error() string {
	return fmt.Sprintf("mutation of %s failed: %v", e.Target, e.Err)
}

func (e *MutationFailedError) Unwrap() error {
	return e.Err
}

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseApplying
	PhasePersisting
	PhaseCommitted
	PhaseRollingBack
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseApplying:
		return "applying"
	case PhasePersisting:
		return "persisting"
	case PhaseCommitted:
		return "committed"
	case PhaseRollingBack:
		return "rolling_back"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Outcome is what a caller gets back for every mutation that reached the
// Applying phase. On failure State is the restored state; Present is false
// when the target has no state (after a delete, or a failed create).
type Outcome[S any] struct {
	OK      bool
	Target  string
	State   S
	Present bool
	Err     error
}

// Event reports a phase transition to observers.
type Event struct {
	Coordinator string
	Target      string
	Op          string
	Phase       Phase
	// Rejected is set when a mutation was refused with ErrMutationInProgress.
	Rejected bool
	Elapsed  time.Duration
	Err      error
}

type Observer interface {
	Observe(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

type value[S any] struct {
	v       S
	present bool
}

type Coordinator[S any] struct {
	name      string
	clone     func(S) S
	observers []Observer

	mu     sync.Mutex
	states map[string]S
	phases map[string]Phase
}

// New creates a coordinator. clone must return a deep copy: snapshots and
// values handed to callers are produced with it.
func New[S any](name string, clone func(S) S, observers ...Observer) *Coordinator[S] {
	if clone == nil {
		clone = func(s S) S { return s }
	}
	return &Coordinator[S]{
		name:      name,
		clone:     clone,
		observers: observers,
		states:    make(map[string]S),
		phases:    make(map[string]Phase),
	}
}

func (c *Coordinator[S]) Name() string {
	return c.name
}

// AddObserver registers an observer for subsequent transitions.
func (c *Coordinator[S]) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// Load seeds authoritative state for target. It refuses to overwrite a
// target with a mutation in flight and reports whether it stored the value.
func (c *Coordinator[S]) Load(target string, v S) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.phases[target]; busy {
		return false
	}
	c.states[target] = c.clone(v)
	return true
}

// Forget drops the local state of an idle target.
func (c *Coordinator[S]) Forget(target string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.phases[target]; busy {
		return false
	}
	delete(c.states, target)
	return true
}

// Get returns a copy of the current local state, optimistic or committed.
func (c *Coordinator[S]) Get(target string) (S, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.states[target]
	if !ok {
		var zero S
		return zero, false
	}
	return c.clone(v), true
}

// Select returns copies of every state accepted by match, ordered by target.
func (c *Coordinator[S]) Select(match func(target string, v S) bool) []S {
	c.mu.Lock()
	defer c.mu.Unlock()

	targets := make([]string, 0, len(c.states))
	for t, v := range c.states {
		if match == nil || match(t, v) {
			targets = append(targets, t)
		}
	}
	sort.Strings(targets)

	out := make([]S, 0, len(targets))
	for _, t := range targets {
		out = append(out, c.clone(c.states[t]))
	}
	return out
}

func (c *Coordinator[S]) Phase(target string) Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phases[target]
}

// Update proposes a new state computed from the current one and persists it.
// propose runs under the coordinator lock and must not call back into it; an
// error or panic from propose is returned and leaves state untouched. persist
// returns the state to commit, which may differ from the proposal when the
// store assigns fields.
func (c *Coordinator[S]) Update(
	ctx context.Context,
	target string,
	propose func(current S) (S, error),
	persist func(ctx context.Context, proposed S) (S, error),
) (*Outcome[S], error) {
	return c.run(ctx, target, "update",
		func(cur S, present bool) (value[S], error) {
			if !present {
				return value[S]{}, ErrNotFound
			}
			next, err := propose(cur)
			if err != nil {
				return value[S]{}, err
			}
			return value[S]{v: next, present: true}, nil
		},
		func(ctx context.Context, next value[S]) (value[S], error) {
			committed, err := persist(ctx, next.v)
			return value[S]{v: committed, present: true}, err
		},
	)
}

// Create inserts v under target and persists it; a failed write removes it
// again.
func (c *Coordinator[S]) Create(
	ctx context.Context,
	target string,
	v S,
	persist func(ctx context.Context, proposed S) (S, error),
) (*Outcome[S], error) {
	return c.run(ctx, target, "create",
		func(_ S, present bool) (value[S], error) {
			if present {
				return value[S]{}, ErrAlreadyExists
			}
			return value[S]{v: c.clone(v), present: true}, nil
		},
		func(ctx context.Context, next value[S]) (value[S], error) {
			committed, err := persist(ctx, next.v)
			return value[S]{v: committed, present: true}, err
		},
	)
}

// Delete removes target locally and persists the removal; a failed write
// restores it.
func (c *Coordinator[S]) Delete(
	ctx context.Context,
	target string,
	persist func(ctx context.Context, current S) error,
) (*Outcome[S], error) {
	var removed S
	return c.run(ctx, target, "delete",
		func(cur S, present bool) (value[S], error) {
			if !present {
				return value[S]{}, ErrNotFound
			}
			removed = cur
			return value[S]{}, nil
		},
		func(ctx context.Context, _ value[S]) (value[S], error) {
			return value[S]{}, persist(ctx, removed)
		},
	)
}

func (c *Coordinator[S]) run(
	ctx context.Context,
	target, op string,
	propose func(cur S, present bool) (value[S], error),
	persist func(ctx context.Context, next value[S]) (value[S], error),
) (*Outcome[S], error) {
	c.mu.Lock()
	if _, busy := c.phases[target]; busy {
		c.mu.Unlock()
		c.emit(Event{Target: target, Op: op, Phase: PhaseIdle, Rejected: true, Err: ErrMutationInProgress})
		return nil, ErrMutationInProgress
	}

	cur, present := c.states[target]
	snapshot := value[S]{present: present}
	if present {
		snapshot.v = c.clone(cur)
	}

	next, err := c.propose(propose, cur, present)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	c.phases[target] = PhaseApplying
	c.setLocked(target, next)
	c.phases[target] = PhasePersisting
	c.mu.Unlock()

	c.emit(Event{Target: target, Op: op, Phase: PhaseApplying})
	c.emit(Event{Target: target, Op: op, Phase: PhasePersisting})

	started := time.Now()
	proposed := value[S]{v: c.clone(next.v), present: next.present}
	committed, err := c.persist(context.WithoutCancel(ctx), persist, proposed)
	elapsed := time.Since(started)

	if err != nil {
		c.mu.Lock()
		c.phases[target] = PhaseRollingBack
		c.setLocked(target, snapshot)
		delete(c.phases, target)
		c.mu.Unlock()

		log.Printf("[optimistic] %s: %s of %s rolled back: %v", c.name, op, target, err)
		failure := &MutationFailedError{Target: target, Err: err}
		c.emit(Event{Target: target, Op: op, Phase: PhaseRollingBack, Elapsed: elapsed, Err: failure})

		out := &Outcome[S]{Target: target, Present: snapshot.present, Err: failure}
		if snapshot.present {
			out.State = c.clone(snapshot.v)
		}
		return out, failure
	}

	c.mu.Lock()
	c.phases[target] = PhaseCommitted
	c.setLocked(target, committed)
	delete(c.phases, target)
	c.mu.Unlock()

	c.emit(Event{Target: target, Op: op, Phase: PhaseCommitted, Elapsed: elapsed})

	out := &Outcome[S]{OK: true, Target: target, Present: committed.present}
	if committed.present {
		out.State = c.clone(committed.v)
	}
	return out, nil
}

// propose computes the next state under c.mu. A panic becomes an error so
// the lock is still released.
func (c *Coordinator[S]) propose(
	fn func(cur S, present bool) (value[S], error),
	cur S,
	present bool,
) (out value[S], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("proposal panicked: %v", r)
		}
	}()
	return fn(c.clone(cur), present)
}

// persist runs the remote write, turning a panic into an error so the
// mutation still resolves to a rollback.
func (c *Coordinator[S]) persist(
	ctx context.Context,
	fn func(ctx context.Context, next value[S]) (value[S], error),
	next value[S],
) (out value[S], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("remote write panicked: %v", r)
		}
	}()
	return fn(ctx, next)
}

func (c *Coordinator[S]) setLocked(target string, v value[S]) {
	if !v.present {
		delete(c.states, target)
		return
	}
	c.states[target] = v.v
}

func (c *Coordinator[S]) emit(e Event) {
	c.mu.Lock()
	observers := c.observers
	c.mu.Unlock()

	e.Coordinator = c.name
	for _, o := range observers {
		o.Observe(e)
	}
}
