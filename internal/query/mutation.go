package query

import (
	"context"
	"sync"
)

// mutationStatus is the state of a mutation.
type mutationStatus int

const (
	mutationIdle mutationStatus = iota
	mutationPending
	mutationSuccess
	mutationError
)

func (s mutationStatus) String() string {
	switch s {
	case mutationIdle:
		return "idle"
	case mutationPending:
		return "pending"
	case mutationSuccess:
		return "success"
	case mutationError:
		return "error"
	default:
		return "unknown"
	}
}

// mutation wraps a write. On success every key in Invalidates is marked stale
// so dependent reads refetch; on failure nothing is invalidated.
type mutation[T any] struct {
	client      *Client
	fn          func(context.Context) (T, error)
	invalidates []Key

	mu     sync.Mutex
	status mutationStatus
	err    error
	result T
}

// newMutation binds fn to c. invalidates lists the key prefixes to mark stale
// after a successful run.
func newMutation[T any](c *Client, fn func(context.Context) (T, error), invalidates ...Key) *mutation[T] {
	return &mutation[T]{client: c, fn: fn, invalidates: invalidates}
}

// Run executes the write and, on success, invalidates the bound keys before
// returning.
func (m *mutation[T]) Run(ctx context.Context) (T, error) {
	m.mu.Lock()
	m.status = mutationPending
	m.err = nil
	m.mu.Unlock()

	result, err := m.fn(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.status = mutationError
		m.err = err
		var zero T
		return zero, err
	}
	m.status = mutationSuccess
	m.result = result

	for _, k := range m.invalidates {
		m.client.Invalidate(k)
	}
	return result, nil
}

// Status reports the state of the most recent Run.
func (m *mutation[T]) Status() mutationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Err is the error of the most recent Run, if it failed.
func (m *mutation[T]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Mutate runs fn once as a mutation and returns its outcome.
func Mutate[T any](ctx context.Context, c *Client, fn func(context.Context) (T, error), invalidates ...Key) (T, error) {
	return newMutation(c, fn, invalidates...).Run(ctx)
}
