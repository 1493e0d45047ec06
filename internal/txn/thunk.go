package txn

import (
	"errors"
	"fmt"

	"github.com/fairyhunter13/maelstrom-txn/internal/domain"
)

// thunkState tracks the lifecycle of a lazily loaded value.
type thunkState int

const (
	// thunkAbsent means the value has not been fetched yet.
	thunkAbsent thunkState = iota
	// thunkLoaded means the in-memory value matches the stored one.
	thunkLoaded
	// thunkDirty means the in-memory value awaits persisting.
	thunkDirty
)

// Thunk is a lazily loaded KV value: fetched on first access, replaced
// wholesale on save. Chunks and partitions each use independent instances.
type Thunk[T any] struct {
	kv    domain.KV
	id    string
	state thunkState
	value T
}

// NewThunk wraps an existing stored id. The value is fetched on first Load.
func NewThunk[T any](kv domain.KV, id string) *Thunk[T] {
	return &Thunk[T]{kv: kv, id: id}
}

// NewDirtyThunk stages a fresh value under a fresh id, awaiting Save.
func NewDirtyThunk[T any](kv domain.KV, id string, value T) *Thunk[T] {
	return &Thunk[T]{kv: kv, id: id, state: thunkDirty, value: value}
}

// ID returns the id the value lives (or will live) under.
func (t *Thunk[T]) ID() string { return t.id }

// Load returns the value, fetching it on first access. An absent key loads
// as the zero value: for this store, "never written" and "empty" coincide.
func (t *Thunk[T]) Load(ctx domain.Context) (T, error) {
	if t.state != thunkAbsent {
		return t.value, nil
	}
	var v T
	if err := t.kv.ReadInto(ctx, t.id, &v); err != nil {
		if !errors.Is(err, domain.ErrKeyNotFound) {
			var zero T
			return zero, fmt.Errorf("op=thunk.Load id=%s: %w", t.id, err)
		}
		v = *new(T)
	}
	t.value = v
	t.state = thunkLoaded
	return t.value, nil
}

// Set replaces the in-memory value and marks the thunk dirty.
func (t *Thunk[T]) Set(v T) {
	t.value = v
	t.state = thunkDirty
}

// Save persists a dirty value and marks it clean. Saving a clean thunk is a
// no-op.
func (t *Thunk[T]) Save(ctx domain.Context) error {
	if t.state != thunkDirty {
		return nil
	}
	if err := t.kv.Write(ctx, t.id, t.value); err != nil {
		return fmt.Errorf("op=thunk.Save id=%s: %w", t.id, err)
	}
	t.state = thunkLoaded
	return nil
}
