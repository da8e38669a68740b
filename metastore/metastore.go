// Package metastore defines the external contract for schema persistence and
// creation notification (§4.C), consumed by the Bootstrap Reconciler and the
// Event Deserializer. The core treats the metastore purely as a
// collaborator; this package also ships an in-memory reference
// implementation so the contract can be exercised without a real store (see
// InMemory). A durable, SQLite-backed implementation lives in
// metastore/sqlitestore.
package metastore

import (
	"context"
	"errors"

	"github.com/asaidimu/schemaflow/schema"
)

// ErrProjectNotExists is returned by CreateOrGetCollectionField when the
// named project is unknown to the metastore.
var ErrProjectNotExists = errors.New("schemaflow: project does not exist")

// OnCreate is invoked exactly once, synchronously, when
// CreateOrGetCollectionField causes a collection to come into existence.
type OnCreate func(project, collection string)

// Metastore is the external authority for durable schema state (§4.C).
// Implementations must serialize concurrent CreateOrGetCollectionField calls
// for the same (project, collection) — the expected semantic is set-union,
// so two concurrent extensions introducing disjoint fields both succeed —
// and must preserve existing field positions when extending.
type Metastore interface {
	// GetProjects returns the set of known project names.
	GetProjects(ctx context.Context) (map[string]struct{}, error)

	// GetCollections returns every collection known for project, mapped to
	// its current schema.
	GetCollections(ctx context.Context, project string) (map[string]*schema.Schema, error)

	// GetCollection returns the schema for (project, collection), or nil if
	// the collection does not yet exist.
	GetCollection(ctx context.Context, project, collection string) (*schema.Schema, error)

	// CreateOrGetCollectionField performs an idempotent union-merge of
	// fields into the stored schema for (project, collection), returning
	// the canonical post-merge schema. If the collection did not already
	// exist, onCreate is invoked exactly once before returning. Fails with
	// ErrProjectNotExists if project is unknown.
	CreateOrGetCollectionField(ctx context.Context, project, collection string, fields []schema.SchemaField, onCreate OnCreate) (*schema.Schema, error)
}
