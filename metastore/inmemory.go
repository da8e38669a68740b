package metastore

import (
	"context"
	"fmt"
	"sync"

	"github.com/asaidimu/schemaflow/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type collectionKey struct {
	project    string
	collection string
}

// InMemory is a reference Metastore implementation backed by process memory.
// It exists so the Metastore contract can be exercised — by tests, by
// examples, by the bootstrap reconciler — without standing up a durable
// store. CreateOrGetCollectionField is serialized by a single mutex,
// matching §5's "must serialize concurrent createOrGetCollectionField calls
// for the same (project, collection)" (a single lock is a stricter, simpler
// superset of per-key serialization).
type InMemory struct {
	mu          sync.Mutex
	projects    map[string]struct{}
	collections map[collectionKey]*schema.Schema
	revisions   map[collectionKey]string
	logger      *zap.Logger
}

// Option configures an InMemory store.
type Option func(*InMemory)

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *InMemory) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewInMemory constructs an InMemory store pre-populated with the given
// project names; additional projects can be registered with AddProject.
func NewInMemory(projects []string, opts ...Option) *InMemory {
	m := &InMemory{
		projects:    make(map[string]struct{}, len(projects)),
		collections: make(map[collectionKey]*schema.Schema),
		revisions:   make(map[collectionKey]string),
		logger:      zap.NewNop(),
	}
	for _, p := range projects {
		m.projects[p] = struct{}{}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddProject registers a new, initially empty project.
func (m *InMemory) AddProject(project string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[project] = struct{}{}
}

// GetProjects implements Metastore.
func (m *InMemory) GetProjects(ctx context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.projects))
	for p := range m.projects {
		out[p] = struct{}{}
	}
	return out, nil
}

// GetCollections implements Metastore.
func (m *InMemory) GetCollections(ctx context.Context, project string) (map[string]*schema.Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*schema.Schema)
	for k, s := range m.collections {
		if k.project == project {
			out[k.collection] = s
		}
	}
	return out, nil
}

// GetCollection implements Metastore.
func (m *InMemory) GetCollection(ctx context.Context, project, collection string) (*schema.Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.collections[collectionKey{project, collection}]
	if !ok {
		return nil, nil
	}
	return s, nil
}

// CreateOrGetCollectionField implements Metastore.
func (m *InMemory) CreateOrGetCollectionField(ctx context.Context, project, collection string, fields []schema.SchemaField, onCreate OnCreate) (*schema.Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[project]; !ok {
		return nil, fmt.Errorf("project %q: %w", project, ErrProjectNotExists)
	}

	key := collectionKey{project, collection}
	existing, existed := m.collections[key]

	var merged *schema.Schema
	var err error
	if existed {
		merged, err = existing.Extend(fields)
	} else {
		merged, err = (*schema.Schema)(nil).Extend(fields)
	}
	if err != nil {
		m.logger.Error("schema evolution rejected",
			zap.String("project", project),
			zap.String("collection", collection),
			zap.Error(err),
		)
		return nil, err
	}

	m.collections[key] = merged
	m.revisions[key] = uuid.New().String()
	m.logger.Info("collection schema evolved",
		zap.String("project", project),
		zap.String("collection", collection),
		zap.String("revision", m.revisions[key]),
		zap.Int("field_count", merged.Len()),
	)

	if !existed && onCreate != nil {
		onCreate(project, collection)
	}
	return merged, nil
}

// LastRevision returns the most recently minted revision id for
// (project, collection), if any evolution has happened.
func (m *InMemory) LastRevision(project, collection string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.revisions[collectionKey{project, collection}]
	return id, ok
}
