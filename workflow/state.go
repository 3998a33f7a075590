package workflow

import (
	"maps"
	"slices"
	"sort"
	"sync"
)

// Reducer defines how to merge a state update into the current value.
type Reducer func(current, update any) any

// TypedReducer adapts a typed merge function. Updates of another type replace
// the current value.
func TypedReducer[T any](fn func(current, update T) T) Reducer {
	return func(current, update any) any {
		u, ok := update.(T)
		if !ok {
			return update
		}
		c, _ := current.(T)
		return fn(c, u)
	}
}

// Built-in reducers

// LastValueReducer returns the most recent value (default).
func LastValueReducer() Reducer {
	return func(_, update any) any { return update }
}

// AppendReducer appends slices together.
func AppendReducer[T any]() Reducer {
	return TypedReducer(func(current, update []T) []T {
		result := make([]T, 0, len(current)+len(update))
		result = append(result, current...)
		result = append(result, update...)
		return result
	})
}

// MergeMapReducer merges maps, with update values taking precedence.
func MergeMapReducer[K comparable, V any]() Reducer {
	return TypedReducer(func(current, update map[K]V) map[K]V {
		result := make(map[K]V, len(current)+len(update))
		for k, v := range current {
			result[k] = v
		}
		for k, v := range update {
			result[k] = v
		}
		return result
	})
}

// SumReducer sums numeric values.
func SumReducer[T ~int | ~int64 | ~float64]() Reducer {
	return TypedReducer(func(current, update T) T { return current + update })
}

// MaxReducer keeps the maximum value.
func MaxReducer[T ~int | ~int64 | ~float64]() Reducer {
	return TypedReducer(func(current, update T) T {
		if update > current {
			return update
		}
		return current
	})
}

// State is the mutable container node bodies write to during a run. It is
// safe for concurrent use. Keys may carry a reducer; keys without one use
// last-write-wins.
type State struct {
	mu       sync.RWMutex
	values   map[string]any
	versions map[string]uint64
	reducers map[string]Reducer
}

// StateOption configures a State.
type StateOption func(*State)

// WithStateReducer registers a reducer for key.
func WithStateReducer(key string, r Reducer) StateOption {
	return func(s *State) { s.reducers[key] = r }
}

// NewState creates a state seeded with initial values.
func NewState(initial map[string]any, opts ...StateOption) *State {
	s := &State{
		values:   make(map[string]any, len(initial)),
		versions: make(map[string]uint64, len(initial)),
		reducers: make(map[string]Reducer),
	}
	for k, v := range initial {
		s.values[k] = v
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the value stored under key.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set applies an update to key through its reducer and returns the new value.
func (s *State) Set(key string, update any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(key, update)
}

// Update applies several updates atomically.
func (s *State) Update(updates map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.setLocked(k, updates[k])
	}
}

func (s *State) setLocked(key string, update any) any {
	r, ok := s.reducers[key]
	if !ok {
		r = LastValueReducer()
	}
	v := r(s.values[key], update)
	s.values[key] = v
	s.versions[key]++
	return v
}

// Values returns a shallow copy of all values.
func (s *State) Values() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// StateSnapshot captures the current values and versions.
type StateSnapshot struct {
	Values   map[string]any    `json:"values"`
	Versions map[string]uint64 `json:"versions"`
}

// Snapshot creates a snapshot of the current state.
func (s *State) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StateSnapshot{
		Values:   maps.Clone(s.values),
		Versions: maps.Clone(s.versions),
	}
}

// Fork returns an isolated copy. Top-level maps and slices are copied, so
// writes to the fork never reach the parent. Reducers are shared.
func (s *State) Fork() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f := &State{
		values:   make(map[string]any, len(s.values)),
		versions: maps.Clone(s.versions),
		reducers: maps.Clone(s.reducers),
	}
	for k, v := range s.values {
		f.values[k] = cloneValue(v)
	}
	return f
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	case []string:
		return slices.Clone(t)
	case []int:
		return slices.Clone(t)
	case []float64:
		return slices.Clone(t)
	default:
		return v
	}
}
