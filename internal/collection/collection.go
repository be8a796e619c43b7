// Package collection keeps an in-memory list of remote entities in step with
// the backend under single-client assumptions: creates wait for the server,
// updates and removals are applied locally first and rolled back when the
// backend rejects them.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// Entity is anything addressable by a stable identifier.
type Entity interface {
	Key() string
}

// Placement decides where a newly created entity lands in the list.
type Placement int

const (
	Append Placement = iota
	Prepend
)

var (
	ErrClosed   = errors.New("collection closed")
	ErrNotFound = errors.New("entity not in collection")
)

// Remote binds a collection to its backend endpoints. C is the create input
// and P the partial update type.
type Remote[T Entity, C, P any] struct {
	List   func(ctx context.Context, scope string) ([]T, error)
	Insert func(ctx context.Context, scope string, input C) (T, error)
	Update func(ctx context.Context, id string, patch P) (T, error)
	Delete func(ctx context.Context, id string) error
	// Apply merges a patch into an entity for the optimistic local copy.
	Apply func(T, P) T
	// Reposition copies the list-position fields that whole-list
	// transactions maintain (a chapter's order) from pos onto entity. When
	// set, single-entity results keep the position the list already holds.
	Reposition func(entity, pos T) T
}

type Option func(*options)

type options struct {
	placement Placement
	logger    *log.Logger
}

func WithPlacement(p Placement) Option {
	return func(o *options) { o.placement = p }
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Store is the optimistic collection. All reads return copies; the list is
// mutated only by the Store's own operations.
type Store[T Entity, C, P any] struct {
	name      string
	scope     string
	remote    Remote[T, C, P]
	placement Placement
	logger    *log.Logger

	life context.Context
	stop context.CancelFunc

	mu        sync.RWMutex
	items     []T
	loading   int
	lastErr   string
	closed    bool
	rev       uint64
	gens      map[string]uint64
	confirmed map[string]T
	listeners map[int]func()
	nextSub   int
}

// New creates a store for one scope (an owner id, a parent id, a viewer id).
func New[T Entity, C, P any](name, scope string, remote Remote[T, C, P], opts ...Option) *Store[T, C, P] {
	o := options{placement: Append, logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	life, stop := context.WithCancel(context.Background())
	return &Store[T, C, P]{
		name:      name,
		scope:     scope,
		remote:    remote,
		placement: o.placement,
		logger:    o.logger,
		life:      life,
		stop:      stop,
		items:     make([]T, 0),
		gens:      make(map[string]uint64),
		confirmed: make(map[string]T),
		listeners: make(map[int]func()),
	}
}

func (s *Store[T, C, P]) Name() string  { return s.name }
func (s *Store[T, C, P]) Scope() string { return s.scope }

// Items returns a copy of the current list.
func (s *Store[T, C, P]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]T(nil), s.items...)
}

func (s *Store[T, C, P]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], true
	}
	var zero T
	return zero, false
}

func (s *Store[T, C, P]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Loading reports whether a fetch is in flight.
func (s *Store[T, C, P]) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// LastError is the message of the most recent failed operation, for display.
func (s *Store[T, C, P]) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Store[T, C, P]) ClearError() {
	s.mu.Lock()
	s.lastErr = ""
	s.mu.Unlock()
	s.notify()
}

// Subscribe registers fn to run after every state change. The returned func
// removes the subscription.
func (s *Store[T, C, P]) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Close cancels in-flight calls and makes later results no-ops.
func (s *Store[T, C, P]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.listeners = make(map[int]func())
	s.mu.Unlock()
	s.stop()
}

func (s *Store[T, C, P]) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Fetch replaces the list with the backend's view of the scope. On failure
// the list is left empty and the error recorded.
func (s *Store[T, C, P]) Fetch(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.loading++
	s.lastErr = ""
	s.mu.Unlock()
	s.notify()

	ctx, done := s.scoped(ctx)
	defer done()

	items, err := s.remote.List(ctx, s.scope)

	s.mu.Lock()
	s.loading--
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.rev++
	s.gens = make(map[string]uint64)
	s.confirmed = make(map[string]T)
	if err != nil {
		s.items = make([]T, 0)
		s.lastErr = err.Error()
	} else {
		s.items = append(make([]T, 0, len(items)), items...)
		s.confirmAllLocked(s.items)
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		s.logger.Printf("%s: fetch %s failed: %v", s.name, s.scope, err)
		return err
	}
	return nil
}

// Create waits for the backend insert, since identifiers are server
// assigned, then places the returned row in the list.
func (s *Store[T, C, P]) Create(ctx context.Context, input C) (T, error) {
	var zero T
	if s.Closed() {
		return zero, ErrClosed
	}
	ctx, done := s.scoped(ctx)
	defer done()

	created, err := s.remote.Insert(ctx, s.scope, input)
	if err != nil {
		s.fail("create", "", err)
		return zero, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return created, ErrClosed
	}
	if s.placement == Prepend {
		s.items = append([]T{created}, s.items...)
	} else {
		s.items = append(s.items, created)
	}
	s.confirmed[created.Key()] = created
	s.rev++
	s.mu.Unlock()
	s.notify()
	return created, nil
}

// Update patches the local entity immediately, then persists the patch. If
// the backend rejects it the entity is restored to its last confirmed value,
// which is its pre-call value unless an earlier update was still in flight.
// A rejected update that a newer local change has superseded leaves the newer
// change in place; that change settles the entity when it completes. With
// Reposition set, the result keeps the position a concurrent Transact gave
// the entity.
func (s *Store[T, C, P]) Update(ctx context.Context, id string, patch P) (T, error) {
	var zero T
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return zero, ErrClosed
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return zero, fmt.Errorf("%s %s: %w", s.name, id, ErrNotFound)
	}
	before := s.items[i]
	s.items[i] = s.remote.Apply(before, patch)
	gen := s.bumpLocked(id)
	s.mu.Unlock()
	s.notify()

	ctx, done := s.scoped(ctx)
	defer done()

	saved, err := s.remote.Update(ctx, id, patch)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return zero, ErrClosed
	}
	if err == nil {
		if prev, ok := s.confirmed[id]; ok {
			saved = s.repositionLocked(saved, prev)
		}
		s.confirmed[id] = saved
	}
	if j := s.indexLocked(id); j >= 0 && s.gens[id] == gen {
		next := saved
		if err != nil {
			restore, ok := s.confirmed[id]
			if !ok {
				restore = before
			}
			next = restore
		}
		s.items[j] = s.repositionLocked(next, s.items[j])
	}
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		s.logger.Printf("%s: update %s failed, restored previous value: %v", s.name, id, err)
		return before, err
	}
	return saved, nil
}

// Remove drops the entity locally, then deletes it remotely. A failed delete
// puts the entity back at its previous position.
func (s *Store[T, C, P]) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%s %s: %w", s.name, id, ErrNotFound)
	}
	removed := s.items[i]
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	gen := s.bumpLocked(id)
	s.mu.Unlock()
	s.notify()

	ctx, done := s.scoped(ctx)
	defer done()

	err := s.remote.Delete(ctx, id)
	if err == nil {
		s.mu.Lock()
		delete(s.confirmed, id)
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.gens[id] == gen && s.indexLocked(id) < 0 {
		at := i
		if at > len(s.items) {
			at = len(s.items)
		}
		s.items = append(s.items[:at:at], append([]T{removed}, s.items[at:]...)...)
	}
	s.lastErr = err.Error()
	s.mu.Unlock()
	s.notify()

	s.logger.Printf("%s: remove %s failed, restored: %v", s.name, id, err)
	return err
}

// Transact applies a whole-list mutation locally and persists it with
// persist. mutate runs under the store lock on a copy of the list and reports
// whether anything changed; when it did not, persist is not called. On
// persist failure the snapshot taken before the mutation is restored if no
// other change happened since. When other changes did happen and Reposition
// is set, only the snapshot's positions are restored and the newer entity
// contents are kept.
func (s *Store[T, C, P]) Transact(
	ctx context.Context,
	op string,
	mutate func(items []T) ([]T, bool),
	persist func(ctx context.Context, before, after []T) error,
) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	before := append([]T(nil), s.items...)
	after, changed := mutate(append([]T(nil), s.items...))
	if !changed {
		s.mu.Unlock()
		return nil
	}
	s.items = after
	s.rev++
	rev := s.rev
	s.mu.Unlock()
	s.notify()

	ctx, done := s.scoped(ctx)
	defer done()

	err := persist(ctx, before, append([]T(nil), after...))
	if err == nil {
		s.mu.Lock()
		for _, item := range after {
			if prev, ok := s.confirmed[item.Key()]; ok {
				item = s.repositionLocked(prev, item)
			}
			s.confirmed[item.Key()] = item
		}
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	restored := true
	switch {
	case s.rev == rev:
		s.items = before
		s.rev++
	case s.remote.Reposition != nil:
		s.items = s.unwindLocked(before, after)
		s.rev++
	default:
		restored = false
	}
	s.lastErr = err.Error()
	s.mu.Unlock()
	s.notify()

	if restored {
		s.logger.Printf("%s: %s failed, restored snapshot: %v", s.name, op, err)
	} else {
		s.logger.Printf("%s: %s failed after newer changes, snapshot not restored: %v", s.name, op, err)
	}
	return err
}

// Patch changes local state only, for mirroring a change the backend has
// already accepted.
func (s *Store[T, C, P]) Patch(fn func(items []T) []T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.items = fn(append([]T(nil), s.items...))
	s.confirmAllLocked(s.items)
	s.rev++
	s.mu.Unlock()
	s.notify()
}

// unwindLocked rebuilds the list in before's sequence and positions while
// keeping each entity's current contents. Entities this transaction dropped
// come back; entities removed or created since stay removed or are appended.
func (s *Store[T, C, P]) unwindLocked(before, after []T) []T {
	current := make(map[string]T, len(s.items))
	for _, item := range s.items {
		current[item.Key()] = item
	}
	inAfter := make(map[string]bool, len(after))
	for _, item := range after {
		inAfter[item.Key()] = true
	}

	out := make([]T, 0, len(before)+len(s.items))
	seen := make(map[string]bool, len(before))
	for _, prev := range before {
		id := prev.Key()
		if item, ok := current[id]; ok {
			out = append(out, s.remote.Reposition(item, prev))
		} else if !inAfter[id] {
			out = append(out, prev)
		} else {
			continue
		}
		seen[id] = true
	}
	for _, item := range s.items {
		if !seen[item.Key()] {
			out = append(out, item)
		}
	}
	return out
}

// repositionLocked keeps pos's list position on entity when the remote
// tracks one.
func (s *Store[T, C, P]) repositionLocked(entity, pos T) T {
	if s.remote.Reposition == nil {
		return entity
	}
	return s.remote.Reposition(entity, pos)
}

func (s *Store[T, C, P]) fail(op, id string, err error) {
	s.mu.Lock()
	if !s.closed {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()
	s.notify()
	if id != "" {
		s.logger.Printf("%s: %s %s failed: %v", s.name, op, id, err)
		return
	}
	s.logger.Printf("%s: %s failed: %v", s.name, op, err)
}

func (s *Store[T, C, P]) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Store[T, C, P]) indexLocked(id string) int {
	for i, item := range s.items {
		if item.Key() == id {
			return i
		}
	}
	return -1
}

func (s *Store[T, C, P]) confirmAllLocked(items []T) {
	for _, item := range items {
		s.confirmed[item.Key()] = item
	}
}

func (s *Store[T, C, P]) bumpLocked(id string) uint64 {
	s.rev++
	s.gens[id] = s.rev
	return s.rev
}

func (s *Store[T, C, P]) notify() {
	s.mu.RLock()
	listeners := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}
