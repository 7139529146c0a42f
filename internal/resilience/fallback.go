package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has an
// open circuit breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for the breaker created per entry. Its
	// Name is replaced by the entry name.
	CircuitBreaker CircuitBreakerConfig

	// Permanent reports errors that no other entry could fix, such as a
	// rejected request. They are returned immediately and do not count
	// against the entry's breaker. Context cancellation is always permanent.
	Permanent func(error) bool
}

// EntryStatus is a snapshot of one entry of a [FallbackGroup].
type EntryStatus struct {
	Name  string
	State State
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the
// same provider type. Entries are tried in registration order; entries with an
// open breaker are skipped.
//
// Entries must be registered before the group is used concurrently.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a fallback entry, tried after all earlier entries.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Len returns the number of entries including the primary.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Status returns the breaker state of every entry in order.
func (fg *FallbackGroup[T]) Status() []EntryStatus {
	out := make([]EntryStatus, len(fg.entries))
	for i, e := range fg.entries {
		out[i] = EntryStatus{Name: e.name, State: e.breaker.State()}
	}
	return out
}

// Execute tries fn against each entry in order until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry in the group until one
// succeeds and returns its result. Permanent errors end the walk at once.
// When every entry fails the returned error wraps [ErrAllFailed] and the last
// entry's error.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var zero R
	errs := make([]error, 0, len(fg.entries))

	for i := range fg.entries {
		entry := &fg.entries[i]
		var (
			result  R
			stopErr error
		)
		err := entry.breaker.Execute(func() error {
			r, callErr := fn(entry.value)
			if callErr != nil && fg.permanent(callErr) {
				stopErr = callErr
				return nil
			}
			result = r
			return callErr
		})
		if stopErr != nil {
			return zero, stopErr
		}
		if err == nil {
			return result, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", entry.name, err))
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider, circuit open", "provider", entry.name)
			continue
		}
		slog.Warn("provider failed, trying next", "provider", entry.name, "err", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

func (fg *FallbackGroup[T]) permanent(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return fg.cfg.Permanent != nil && fg.cfg.Permanent(err)
}
