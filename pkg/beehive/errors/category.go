// Package errors provides the beehive error taxonomy, categorization and
// retry helpers.
//
// The package implements a layered error handling approach:
//   - Taxonomy: typed errors for each failure site (transform, production,
//     lifecycle, transport, configuration, precondition, panic)
//   - Categorization: decide whether a failure is retried, isolated or fatal
//   - Retry: handle transient transport failures with exponential backoff
//
// Import it under an alias to avoid shadowing the standard library:
//
//	import bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
package errors

import (
	"errors"
	"fmt"
	"net"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: a socket that would block, a refused connection.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: invalid configuration, oversized frames, closed clients.
	CategoryPermanent

	// CategoryIsolated indicates a failure confined to one node.
	// The node's hook is notified and the hive keeps running.
	// Examples: a listener transform error, a failing stream.
	CategoryIsolated
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryIsolated:
		return "isolated"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Retries is the number of attempts that have been made.
	Retries int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Retries)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Retries)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  context,
	}
}

// Transient creates a transient error.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Permanent creates a permanent error.
func Permanent(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, context)
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent // shouldn't happen, fail safe
	}

	// Node-scoped failures never stop the hive, whatever they wrap.
	var transformErr *TransformError
	if errors.As(err, &transformErr) {
		return CategoryIsolated
	}
	var productionErr *ProductionError
	if errors.As(err, &productionErr) {
		return CategoryIsolated
	}
	var lifecycleErr *LifecycleError
	if errors.As(err, &lifecycleErr) {
		return CategoryIsolated
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		if transportErr.Temporary {
			return CategoryTransient
		}
		return CategoryPermanent
	}

	if errors.Is(err, ErrWouldBlock) || errors.Is(err, ErrNotConnected) {
		return CategoryTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTransient
	}

	// Unknown errors are permanent (fail safe)
	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// IsIsolated reports whether the error is confined to a single node.
func IsIsolated(err error) bool {
	return Categorize(err) == CategoryIsolated
}
