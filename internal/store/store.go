// Package store holds the shared parameter registry and its change mailbox.
//
// All state is guarded by one mutex. A condition variable on that mutex lets
// notification handlers sleep until a mutation arms the single pending-change
// slot. The slot is overwritten, not queued: consumers see the latest value,
// not every value.
package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/kalambet/tweaker/internal/param"
)

var (
	ErrDuplicateName = errors.New("parameter already exists")
	ErrUnknownName   = errors.New("unknown parameter")
	ErrKindMismatch  = errors.New("parameter kind mismatch")
)

// Field is one registered parameter as seen by display code.
// Increment is the zero Value when the parameter is not steppable.
type Field struct {
	Name      string
	Value     param.Value
	Increment param.Value
}

// Steppable reports whether the field can be adjusted by +/- steps.
func (f Field) Steppable() bool {
	return f.Increment.IsValid()
}

// Change is the content of the pending-change slot.
type Change struct {
	Name  string
	Value param.Value
}

// Values returns the change as a one-entry mapping, the shape of a delta
// message on the wire.
func (c Change) Values() *param.Values {
	vs := param.NewValues()
	vs.Set(c.Name, c.Value)
	return vs
}

// entry is the persisted form of a parameter.
type entry struct {
	Value     param.Value `json:"value"`
	Increment param.Value `json:"increment,omitzero"`
}

// Store is the parameter registry. The zero value is not usable; construct
// with New or Load.
type Store struct {
	path string

	mu      sync.Mutex
	cond    *sync.Cond
	params  *orderedmap.OrderedMap[string, entry]
	pending *Change
	notify  bool
	version uint64
}

// New returns an empty store that saves to path.
func New(path string) *Store {
	s := &Store{
		path:   path,
		params: orderedmap.New[string, entry](),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Path returns the snapshot file path.
func (s *Store) Path() string { return s.path }

// Version increases with every successful Register or Set.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Len returns the number of registered parameters.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params.Len()
}

// Register adds a parameter. The kind of initial becomes the parameter's
// permanent kind. increment may be the zero Value.
func (s *Store) Register(name string, initial, increment param.Value) error {
	if !initial.IsValid() {
		return fmt.Errorf("%w: %q has no initial value", ErrKindMismatch, name)
	}
	if increment.IsValid() && increment.Kind() != initial.Kind() {
		return fmt.Errorf("%w: %q is %s but increment is %s", ErrKindMismatch, name, initial.Kind(), increment.Kind())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.params.Get(name); ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	s.params.Set(name, entry{Value: initial, Increment: increment})
	s.version++
	return nil
}

// Set coerces raw into the parameter's kind and stores it. When
// notifications are enabled the change is posted to the pending slot,
// replacing whatever was there, and all waiters are woken.
func (s *Store) Set(name, raw string) (param.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.params.Get(name)
	if !ok {
		return param.Value{}, fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
	v, err := e.Value.Coerce(raw)
	if err != nil {
		return param.Value{}, fmt.Errorf("setting %q: %w", name, err)
	}
	e.Value = v
	s.params.Set(name, e)
	s.version++

	if s.notify {
		s.pending = &Change{Name: name, Value: v}
		s.cond.Broadcast()
	}
	return v, nil
}

// Get returns the current value of name.
func (s *Store) Get(name string) (param.Value, bool) {
	f, ok := s.Field(name)
	return f.Value, ok
}

// Field returns the named parameter with its increment.
func (s *Store) Field(name string) (Field, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.params.Get(name)
	if !ok {
		return Field{}, false
	}
	return Field{Name: name, Value: e.Value, Increment: e.Increment}, true
}

// Snapshot returns a point-in-time copy of every name and value.
func (s *Store) Snapshot() *param.Values {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := param.NewValues()
	for p := s.params.Oldest(); p != nil; p = p.Next() {
		vs.Set(p.Key, p.Value.Value)
	}
	return vs
}

// Fields yields every parameter in registration order. Each iteration
// works on a copy taken when it starts, so ranging again sees fresh values.
func (s *Store) Fields() iter.Seq[Field] {
	return func(yield func(Field) bool) {
		s.mu.Lock()
		fields := make([]Field, 0, s.params.Len())
		for p := s.params.Oldest(); p != nil; p = p.Next() {
			fields = append(fields, Field{Name: p.Key, Value: p.Value.Value, Increment: p.Value.Increment})
		}
		s.mu.Unlock()

		for _, f := range fields {
			if !yield(f) {
				return
			}
		}
	}
}

// Adopt registers every parameter of other that s does not have yet, in
// other's order. Parameters s already has keep their current value. It
// returns the names added.
func (s *Store) Adopt(other *Store) []string {
	incoming := slices.Collect(other.Fields())

	s.mu.Lock()
	defer s.mu.Unlock()

	var added []string
	for _, f := range incoming {
		if _, ok := s.params.Get(f.Name); ok {
			continue
		}
		s.params.Set(f.Name, entry{Value: f.Value, Increment: f.Increment})
		added = append(added, f.Name)
	}
	if len(added) > 0 {
		s.version++
	}
	return added
}

// EnableNotifications makes subsequent Set calls arm the pending slot.
func (s *Store) EnableNotifications() {
	s.mu.Lock()
	s.notify = true
	s.mu.Unlock()
}

// Pending returns the pending change without clearing it.
func (s *Store) Pending() (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return Change{}, false
	}
	return *s.pending, true
}

// TakeChange reads and clears the pending slot. An empty slot is not an
// error.
func (s *Store) TakeChange() (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.takeChangeLocked()
}

// takeChangeLocked must be called with s.mu held.
func (s *Store) takeChangeLocked() (Change, bool) {
	if s.pending == nil {
		return Change{}, false
	}
	c := *s.pending
	s.pending = nil
	return c, true
}

// Drain blocks until the pending slot is armed and then calls deliver with
// the store locked. The slot is cleared only when deliver succeeds; on error
// it stays armed for the next consumer and the error is returned.
//
// Mutation and Save are blocked for as long as deliver runs.
//
// Drain returns ctx.Err() once ctx is done.
func (s *Store) Drain(ctx context.Context, deliver func(Change) error) error {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for s.pending == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := deliver(*s.pending); err != nil {
		return err
	}
	s.takeChangeLocked()
	return nil
}
