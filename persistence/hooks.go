package persistence

import (
	"context"

	"github.com/google/uuid"

	"github.com/teranos/cdr/logger"
)

// Mode says what happens to a write's transaction once the work succeeds.
type Mode int

const (
	// ModeCommit commits the transaction and invalidates caches.
	ModeCommit Mode = iota
	// ModeRollback runs the full write and rolls it back. Caches are left
	// alone since nothing changed.
	ModeRollback
)

func (m Mode) String() string {
	if m == ModeRollback {
		return "rollback"
	}
	return "commit"
}

// Operation names a write operation.
type Operation string

const (
	OpInsert   Operation = "insert"
	OpUpdate   Operation = "update"
	OpObsolete Operation = "obsolete"
	OpGet      Operation = "get"
	OpQuery    Operation = "query"
)

// Decision is an interceptor's verdict.
type Decision int

const (
	Continue Decision = iota
	// Cancel stops the write before any storage access. The caller gets the
	// model it passed in and no error.
	Cancel
)

// Event describes a write to interceptors and observers. Model is the zero
// value for an obsoletion's persisting event; Key is always set.
type Event[T any] struct {
	Operation Operation
	Key       uuid.UUID
	Model     T
	Actor     string
	Mode      Mode
}

// Interceptor runs synchronously before a write opens its transaction.
type Interceptor[T any] func(ctx context.Context, e *Event[T]) Decision

// Observer runs synchronously after a write commits. Writes made with
// ModeRollback are never observed.
type Observer[T any] func(ctx context.Context, e *Event[T])

// OnPersisting appends an interceptor. Register hooks before serving calls.
func (s *Service[T]) OnPersisting(fn Interceptor[T]) {
	s.persisting = append(s.persisting, fn)
}

// OnPersisted appends an observer. Register hooks before serving calls.
func (s *Service[T]) OnPersisted(fn Observer[T]) {
	s.persisted = append(s.persisted, fn)
}

func (s *Service[T]) intercept(ctx context.Context, e *Event[T]) Decision {
	for _, fn := range s.persisting {
		if fn(ctx, e) == Cancel {
			s.logger.Infow("write cancelled by interceptor",
				logger.FieldOperation, string(e.Operation),
				logger.FieldKey, e.Key,
				logger.FieldActor, e.Actor)
			return Cancel
		}
	}
	return Continue
}

func (s *Service[T]) notify(ctx context.Context, e *Event[T]) {
	for _, fn := range s.persisted {
		fn(ctx, e)
	}
}
