// Package bootstrap implements the Bootstrap Reconciler of §4.E: when Run is
// called at startup, it walks every (project, collection) known to the metastore
// and ensures module-contributed fields already exist, so that most ingress
// events hit the deserializer's fast path.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/asaidimu/schemaflow/dependency"
	"github.com/asaidimu/schemaflow/metastore"
	"github.com/asaidimu/schemaflow/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reconciler walks the metastore at startup, applying the Field Dependency
// Registry's constant and dependent fields to every known collection.
type Reconciler struct {
	ms       metastore.Metastore
	registry *dependency.Registry
	onCreate metastore.OnCreate
	logger   *zap.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithOnCreate binds the system-event listener invoked when reconciliation
// itself causes a collection to spring into existence — this should not
// normally happen (reconciliation only ever touches already-known
// collections), but the callback is threaded through for contract symmetry
// with the deserializer's cold/evolution paths.
func WithOnCreate(onCreate metastore.OnCreate) Option {
	return func(r *Reconciler) {
		r.onCreate = onCreate
	}
}

// NewReconciler constructs a Reconciler over ms and registry.
func NewReconciler(ms metastore.Metastore, registry *dependency.Registry, opts ...Option) *Reconciler {
	r := &Reconciler{ms: ms, registry: registry, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run walks every (project, collection) known to the metastore, computing
// and applying any missing module-contributed fields per §4.E:
//  1. toAdd = constantFields \ existingFields (by name, checked for type
//     agreement).
//  2. For each existing field, add any dependents not already present.
//  3. If toAdd is non-empty, call CreateOrGetCollectionField.
//
// TypeConflict and listener failures are logged and do not abort the walk
// (§7: "Fatal at bootstrap" refers to the individual collection's
// reconciliation failing loudly in the log, not the whole run aborting —
// unrelated collections must still be reconciled).
func (r *Reconciler) Run(ctx context.Context) error {
	runID := uuid.New().String()
	logger := r.logger.With(zap.String("run_id", runID))

	projects, err := r.ms.GetProjects(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: failed to list projects: %w", err)
	}

	for project := range projects {
		collections, err := r.ms.GetCollections(ctx, project)
		if err != nil {
			logger.Error("failed to list collections", zap.String("project", project), zap.Error(err))
			continue
		}
		for collection, existing := range collections {
			r.reconcileOne(ctx, logger, project, collection, existing)
		}
	}
	return nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, logger *zap.Logger, project, collection string, existing *schema.Schema) {
	var toAdd []schema.SchemaField

	for _, c := range r.registry.Constants() {
		if f, _, ok := existing.Lookup(c.Name); ok {
			if f.Type != c.Type {
				logger.Error("bootstrap type conflict",
					zap.String("project", project), zap.String("collection", collection),
					zap.String("field", c.Name), zap.String("existing_type", string(f.Type)),
					zap.String("constant_type", string(c.Type)))
			}
			continue
		}
		toAdd = append(toAdd, c)
	}

	for _, f := range existing.Fields() {
		for _, extra := range r.registry.DependentsFor(f.Name) {
			if _, _, ok := existing.Lookup(extra.Name); ok {
				continue
			}
			if !containsField(toAdd, extra.Name) {
				toAdd = append(toAdd, extra)
			}
		}
	}

	if len(toAdd) == 0 {
		return
	}

	onCreate := r.onCreate
	if onCreate != nil {
		onCreate = func(project, collection string) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("listener failure",
						zap.String("project", project), zap.String("collection", collection),
						zap.Any("panic", rec))
				}
			}()
			r.onCreate(project, collection)
		}
	}

	_, err := r.ms.CreateOrGetCollectionField(ctx, project, collection, toAdd, onCreate)
	if err != nil {
		logger.Error("bootstrap reconciliation failed",
			zap.String("project", project), zap.String("collection", collection), zap.Error(err))
		return
	}
	logger.Info("bootstrap reconciled collection",
		zap.String("project", project), zap.String("collection", collection), zap.Int("fields_added", len(toAdd)))
}

func containsField(fields []schema.SchemaField, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}
