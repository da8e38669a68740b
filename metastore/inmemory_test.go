package metastore

import (
	"context"
	"testing"

	"github.com/asaidimu/schemaflow/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCreateOrGetCollectionFieldCreatesOnce(t *testing.T) {
	m := NewInMemory([]string{"p"})
	ctx := context.Background()

	var created []string
	onCreate := func(project, collection string) {
		created = append(created, project+"/"+collection)
	}

	s, err := m.CreateOrGetCollectionField(ctx, "p", "c1", []schema.SchemaField{
		{Name: "x", Type: schema.FieldTypeLong},
	}, onCreate)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []string{"p/c1"}, created)

	// second call on the same collection must not fire onCreate again
	_, err = m.CreateOrGetCollectionField(ctx, "p", "c1", []schema.SchemaField{
		{Name: "y", Type: schema.FieldTypeString},
	}, onCreate)
	require.NoError(t, err)
	assert.Equal(t, []string{"p/c1"}, created)

	_, ok := m.LastRevision("p", "c1")
	assert.True(t, ok)
}

func TestInMemoryUnknownProjectFails(t *testing.T) {
	m := NewInMemory(nil)
	_, err := m.CreateOrGetCollectionField(context.Background(), "ghost", "c1", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProjectNotExists)
}

func TestInMemoryTypeConflictFailsWithoutMutatingSchema(t *testing.T) {
	m := NewInMemory([]string{"p"})
	ctx := context.Background()

	_, err := m.CreateOrGetCollectionField(ctx, "p", "c1", []schema.SchemaField{
		{Name: "x", Type: schema.FieldTypeLong},
	}, nil)
	require.NoError(t, err)

	_, err = m.CreateOrGetCollectionField(ctx, "p", "c1", []schema.SchemaField{
		{Name: "x", Type: schema.FieldTypeString},
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrTypeConflict)

	s, err := m.GetCollection(ctx, "p", "c1")
	require.NoError(t, err)
	field, _, _ := s.Lookup("x")
	assert.Equal(t, schema.FieldTypeLong, field.Type)
}

func TestInMemoryGetCollectionsFiltersByProject(t *testing.T) {
	m := NewInMemory([]string{"p1", "p2"})
	ctx := context.Background()
	_, err := m.CreateOrGetCollectionField(ctx, "p1", "a", []schema.SchemaField{{Name: "x", Type: schema.FieldTypeLong}}, nil)
	require.NoError(t, err)
	_, err = m.CreateOrGetCollectionField(ctx, "p2", "b", []schema.SchemaField{{Name: "y", Type: schema.FieldTypeString}}, nil)
	require.NoError(t, err)

	cols, err := m.GetCollections(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, cols, 1)
	_, ok := cols["a"]
	assert.True(t, ok)
}
