package persistence

import (
	"reflect"
	"sync"

	"github.com/teranos/cdr/errors"
)

// Registry resolves the persistence service for a model type. Factories are
// registered at startup and run at most once, on first resolution; concurrent
// first lookups wait for the same construction.
type Registry struct {
	entries sync.Map // reflect.Type -> *registryEntry
}

type registryEntry struct {
	build func() (any, error)
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

func typeKey[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// Register binds a lazily constructed service to model type T. Registering
// the same type twice is an error.
func Register[T any, S any](r *Registry, factory func() (S, error)) error {
	entry := &registryEntry{build: sync.OnceValues(func() (any, error) {
		return factory()
	})}
	if _, loaded := r.entries.LoadOrStore(typeKey[T](), entry); loaded {
		return errors.Newf("service for %s already registered", typeKey[T]())
	}
	return nil
}

// Resolve returns the service registered for model type T.
func Resolve[T any, S any](r *Registry) (S, error) {
	var zero S
	v, ok := r.entries.Load(typeKey[T]())
	if !ok {
		return zero, errors.Newf("no service registered for %s", typeKey[T]())
	}
	svc, err := v.(*registryEntry).build()
	if err != nil {
		return zero, errors.Wrapf(err, "build service for %s", typeKey[T]())
	}
	s, ok := svc.(S)
	if !ok {
		return zero, errors.Newf("service for %s is %T, not %s", typeKey[T](), svc, reflect.TypeFor[S]())
	}
	return s, nil
}

// Registered reports whether a service is bound to model type T.
func Registered[T any](r *Registry) bool {
	_, ok := r.entries.Load(typeKey[T]())
	return ok
}
