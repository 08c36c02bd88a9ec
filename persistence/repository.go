package persistence

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/cache"
	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/logger"
	"github.com/teranos/cdr/model"
	"github.com/teranos/cdr/orm"
	"github.com/teranos/cdr/querystate"
)

// Options carries a repository's collaborators. Every field may be left
// zero: no cache, an in-memory query registry, no metrics, the full clinical
// classification map and a no-op logger.
type Options struct {
	Cache    cache.Service
	Registry querystate.Registry
	Metrics  *Metrics
	Classes  *ClassificationMap
	Logger   *zap.SugaredLogger
	Now      func() time.Time
}

// Repository holds the persistence services of every model type over one
// provider.
type Repository struct {
	ExtensionTypes *Service[*model.ExtensionType]
	Authorities    *Service[*model.AssigningAuthority]
	Acts           *VersionedService[model.ActModel]
	// Providers resolves a service by model type, subtype services included.
	Providers *Registry

	store *actStore
	deps  serviceDeps
}

// New wires the services.
func New(cfg am.PersistenceConfig, p *orm.Provider, opts Options) (*Repository, error) {
	if p == nil {
		return nil, errors.New("persistence requires a provider")
	}
	log := logger.OrNop(opts.Logger)
	now := opts.Now
	if now == nil {
		now = utcNow
	}
	classes := opts.Classes
	if classes == nil {
		classes = DefaultClassificationMap()
	}
	registry := opts.Registry
	if registry == nil {
		registry = querystate.NewMemoryRegistry(1024, time.Hour, log)
	}

	deps := serviceDeps{
		provider:   p,
		cache:      opts.Cache,
		provenance: NewProvenance(now, log),
		metrics:    opts.Metrics,
		registry:   registry,
		chunk:      cfg.PageChunkSize,
		logger:     log,
	}
	store := newActStore(cfg, classes, actAssociations(opts.Cache, log), opts.Metrics, now, log)
	r := &Repository{
		ExtensionTypes: newService[*model.ExtensionType](newExtensionTypes(opts.Cache, opts.Metrics, log), deps),
		Authorities:    newService[*model.AssigningAuthority](newAuthorities(now, log), deps),
		Acts:           newVersioned[model.ActModel](store, "Act", nil, deps),
		Providers:      NewRegistry(),
		store:          store,
		deps:           deps,
	}

	if err := r.register(); err != nil {
		return nil, err
	}
	log.Infow("persistence ready",
		"full_versioning", cfg.FullVersioning,
		"association_versioning", cfg.AssociationVersioning,
		"logical_deletion", cfg.LogicalDeletion,
		"classes", classNames(classes))
	return r, nil
}

func newVersioned[T model.ActModel](store *actStore, name string, h SubtypeHandler, deps serviceDeps) *VersionedService[T] {
	b := newActs[T](store, name, h)
	return &VersionedService[T]{Service: newService[T](b, deps), acts: b}
}

func (r *Repository) register() error {
	if err := Register[*model.ExtensionType](r.Providers, func() (*Service[*model.ExtensionType], error) {
		return r.ExtensionTypes, nil
	}); err != nil {
		return err
	}
	if err := Register[*model.AssigningAuthority](r.Providers, func() (*Service[*model.AssigningAuthority], error) {
		return r.Authorities, nil
	}); err != nil {
		return err
	}
	if err := Register[model.ActModel](r.Providers, func() (*VersionedService[model.ActModel], error) {
		return r.Acts, nil
	}); err != nil {
		return err
	}
	for _, reg := range []func(*Repository) error{
		registerSubtype[*model.PatientEncounter],
		registerSubtype[*model.QuantityObservation],
		registerSubtype[*model.TextObservation],
		registerSubtype[*model.CodedObservation],
		registerSubtype[*model.SubstanceAdministration],
		registerSubtype[*model.Procedure],
	} {
		if err := reg(r); err != nil {
			return err
		}
	}
	return nil
}

// registerSubtype binds a lazily built subtype service when the
// classification map has a handler persisting T.
func registerSubtype[T model.ActModel](r *Repository) error {
	for _, h := range r.store.classes.Handlers() {
		var probe T
		if !h.owns(probe) {
			continue
		}
		name := strings.TrimPrefix(h.TypeName(), "*model.")
		return Register[T](r.Providers, func() (*VersionedService[T], error) {
			return newVersioned[T](r.store, name, h, r.deps), nil
		})
	}
	return nil
}

// ActService returns the service of act type T: model.ActModel for the base
// service or a concrete subtype such as *model.QuantityObservation.
func ActService[T model.ActModel](r *Repository) (*VersionedService[T], error) {
	return Resolve[T, *VersionedService[T]](r.Providers)
}
