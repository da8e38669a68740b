package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/asaidimu/schemaflow/dependency"
	"github.com/asaidimu/schemaflow/metastore"
	"github.com/asaidimu/schemaflow/schema"
	"github.com/asaidimu/schemaflow/schemacache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDeserializer(t *testing.T, registry *dependency.Registry) (*Deserializer, *metastore.InMemory) {
	t.Helper()
	ms := metastore.NewInMemory([]string{"p"})
	if registry == nil {
		registry = dependency.NewRegistryBuilder().Build()
	}
	d := New(ms, registry, schemacache.New())
	return d, ms
}

func TestS1HeaderBeforeProperties(t *testing.T) {
	d, _ := newTestDeserializer(t, nil)
	var created []string
	d.listeners = append(d.listeners, func(project, collection string) {
		created = append(created, project+"/"+collection)
	})

	ev, err := d.Deserialize(context.Background(), strings.NewReader(
		`{"project":"p","collection":"C1","properties":{"x":1,"y":"hi"}}`))
	require.NoError(t, err)

	assert.Equal(t, "p", ev.Project)
	assert.Equal(t, "c1", ev.Collection)
	xf, xi, ok := ev.Schema.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, schema.FieldTypeLong, xf.Type)
	yf, yi, ok := ev.Schema.Lookup("y")
	require.True(t, ok)
	assert.Equal(t, schema.FieldTypeString, yf.Type)

	assert.Equal(t, int64(1), ev.Record.Get(xi))
	assert.Equal(t, "hi", ev.Record.Get(yi))
	assert.Equal(t, []string{"p/c1"}, created)
}

func TestS2PropertiesFirstRewind(t *testing.T) {
	d, _ := newTestDeserializer(t, nil)
	ev, err := d.Deserialize(context.Background(), strings.NewReader(
		`{"properties":{"a":true},"project":"p","collection":"c1"}`))
	require.NoError(t, err)

	v, ok := ev.Record.GetByName("a")
	require.True(t, ok)
	assert.Equal(t, true, v)
}

func TestS3SchemaExtensionPreservesPositions(t *testing.T) {
	d, _ := newTestDeserializer(t, nil)
	ctx := context.Background()

	_, err := d.Deserialize(ctx, strings.NewReader(
		`{"project":"p","collection":"c1","properties":{"x":1,"y":"hi"}}`))
	require.NoError(t, err)

	ev, err := d.Deserialize(ctx, strings.NewReader(
		`{"project":"p","collection":"c1","properties":{"z":2.5}}`))
	require.NoError(t, err)

	_, xi, _ := ev.Schema.Lookup("x")
	_, yi, _ := ev.Schema.Lookup("y")
	zf, zi, ok := ev.Schema.Lookup("z")
	require.True(t, ok)
	assert.Equal(t, schema.FieldTypeDouble, zf.Type)
	assert.Equal(t, 0, xi)
	assert.Equal(t, 1, yi)
	assert.Equal(t, 2, zi)

	assert.Nil(t, ev.Record.Get(xi))
	assert.Nil(t, ev.Record.Get(yi))
	assert.Equal(t, 2.5, ev.Record.Get(zi))
}

func TestS4TypeDriftDropsValueWithoutMutatingSchema(t *testing.T) {
	d, ms := newTestDeserializer(t, nil)
	ctx := context.Background()

	_, err := d.Deserialize(ctx, strings.NewReader(
		`{"project":"p","collection":"c1","properties":{"x":1,"y":"hi"}}`))
	require.NoError(t, err)

	ev, err := d.Deserialize(ctx, strings.NewReader(
		`{"project":"p","collection":"c1","properties":{"x":"oops"}}`))
	require.NoError(t, err)

	_, xi, _ := ev.Schema.Lookup("x")
	assert.Nil(t, ev.Record.Get(xi))
	assert.Equal(t, 2, ev.Schema.Len())

	s, err := ms.GetCollection(ctx, "p", "c1")
	require.NoError(t, err)
	f, _, _ := s.Lookup("x")
	assert.Equal(t, schema.FieldTypeLong, f.Type)
}

func TestS5DependentActivation(t *testing.T) {
	registry := dependency.NewRegistryBuilder().
		AddDependentField("user_id", schema.SchemaField{Name: "country", Type: schema.FieldTypeString}).
		Build()
	d, _ := newTestDeserializer(t, registry)

	ev, err := d.Deserialize(context.Background(), strings.NewReader(
		`{"project":"p","collection":"c1","properties":{"user_id":"u1"}}`))
	require.NoError(t, err)

	_, _, ok := ev.Schema.Lookup("user_id")
	assert.True(t, ok)
	_, _, ok = ev.Schema.Lookup("country")
	assert.True(t, ok)
}

func TestS6MalformedMissingProject(t *testing.T) {
	d, ms := newTestDeserializer(t, nil)
	_, err := d.Deserialize(context.Background(), strings.NewReader(`{"properties":{"x":1}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedEvent)

	cols, err := ms.GetCollections(context.Background(), "p")
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestNestedPropertyRejected(t *testing.T) {
	d, ms := newTestDeserializer(t, nil)
	ctx := context.Background()
	_, err := d.Deserialize(ctx, strings.NewReader(
		`{"project":"p","collection":"c1","properties":{"nested":{"a":1}}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrNestedNotSupported)

	cols, err := ms.GetCollections(ctx, "p")
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestArrayOfArrayRejected(t *testing.T) {
	d, _ := newTestDeserializer(t, nil)
	_, err := d.Deserialize(context.Background(), strings.NewReader(
		`{"project":"p","collection":"c1","properties":{"bad":[[1,2]]}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrNestedNotSupported)
}

func TestPropertiesTwiceRejected(t *testing.T) {
	d, _ := newTestDeserializer(t, nil)
	_, err := d.Deserialize(context.Background(), strings.NewReader(
		`{"project":"p","collection":"c1","properties":{"x":1},"properties":{"y":2}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestIdempotenceSameEventTwiceProducesEqualRecords(t *testing.T) {
	d, _ := newTestDeserializer(t, nil)
	ctx := context.Background()
	raw := `{"project":"p","collection":"c1","properties":{"x":1,"y":"hi"}}`

	ev1, err := d.Deserialize(ctx, strings.NewReader(raw))
	require.NoError(t, err)
	ev2, err := d.Deserialize(ctx, strings.NewReader(raw))
	require.NoError(t, err)

	_, xi1, _ := ev1.Schema.Lookup("x")
	_, xi2, _ := ev2.Schema.Lookup("x")
	assert.Equal(t, ev1.Record.Get(xi1), ev2.Record.Get(xi2))
	assert.True(t, ev2.Schema.Len() >= ev1.Schema.Len())
}

func TestArrayPropertyDecoded(t *testing.T) {
	d, _ := newTestDeserializer(t, nil)
	ev, err := d.Deserialize(context.Background(), strings.NewReader(
		`{"project":"p","collection":"c1","properties":{"tags":["a","b"]}}`))
	require.NoError(t, err)

	v, ok := ev.Record.GetByName("tags")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, v)
}

func TestUnknownTopLevelFieldIgnored(t *testing.T) {
	d, _ := newTestDeserializer(t, nil)
	ev, err := d.Deserialize(context.Background(), strings.NewReader(
		`{"project":"p","collection":"c1","extra":{"whatever":[1,2,3]},"properties":{"x":1}}`))
	require.NoError(t, err)
	assert.Equal(t, "c1", ev.Collection)
}
