// Package ingest is the Event Deserializer of §4.G: it orchestrates parsing
// (via rjson), schema lookup and on-the-fly extension (via schemacache and
// metastore), module-contributed field reconciliation (via dependency), and
// record population, emitting a (Schema, Record) pair per event.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/asaidimu/schemaflow/dependency"
	"github.com/asaidimu/schemaflow/events"
	"github.com/asaidimu/schemaflow/metastore"
	"github.com/asaidimu/schemaflow/rjson"
	"github.com/asaidimu/schemaflow/schema"
	"github.com/asaidimu/schemaflow/schemacache"
	"go.uber.org/zap"
)

// Listener is a system-event callback invoked when CreateOrGetCollectionField
// causes a collection to come into existence (§4.C, §6).
type Listener func(project, collection string)

// Event is the orchestrator's output: the canonical post-evolution schema
// for (project, collection) and the record bound to it.
type Event struct {
	Project    string
	Collection string
	Schema     *schema.Schema
	Record     *schema.Record
}

// Deserializer implements the core algorithm of §4.G.
type Deserializer struct {
	ms        metastore.Metastore
	registry  *dependency.Registry
	cache     *schemacache.Cache
	logger    *zap.Logger
	bus       *events.Bus
	listeners []Listener
}

// Option configures a Deserializer.
type Option func(*Deserializer)

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Deserializer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithEventBus attaches an events.Bus for ingest start/success/failed and
// collection-created observability.
func WithEventBus(bus *events.Bus) Option {
	return func(d *Deserializer) {
		d.bus = bus
	}
}

// WithListeners registers system-event listeners invoked exactly once per
// newly created collection (§6's onCreateCollection contract). Listener
// errors are not modeled as Go errors — see invokeListener — since the
// contract here is "logged and swallowed", not "may abort".
func WithListeners(listeners ...Listener) Option {
	return func(d *Deserializer) {
		d.listeners = append(d.listeners, listeners...)
	}
}

// New constructs a Deserializer over ms, registry, and cache, following the
// teacher's NewPersistence(interactor, fmap)-style constructor generalized
// to functional options since this constructor carries more than one
// optional knob.
func New(ms metastore.Metastore, registry *dependency.Registry, cache *schemacache.Cache, opts ...Option) *Deserializer {
	d := &Deserializer{ms: ms, registry: registry, cache: cache, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Deserializer) onCreate(project, collection string) {
	d.bus.Emit(events.Event{Type: events.CollectionCreated, Project: project, Collection: collection})
	for _, l := range d.listeners {
		d.invokeListener(l, project, collection)
	}
}

// invokeListener runs a single listener, recovering a panic as a
// ListenerFailure — logged at ERROR, never propagated (§7).
func (d *Deserializer) invokeListener(l Listener, project, collection string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("listener failure",
				zap.String("project", project), zap.String("collection", collection),
				zap.Any("panic", r), zap.NamedError("kind", ErrListenerFailure))
		}
	}()
	l(project, collection)
}

// Deserialize implements the §4.G top-level state machine: INIT →
// HEADER_PARTIAL → PROPERTIES_DONE → EMIT | FAIL.
func (d *Deserializer) Deserialize(ctx context.Context, r io.Reader) (*Event, error) {
	start := time.Now()
	d.bus.Emit(events.Event{Type: events.IngestStart})

	ev, err := d.deserialize(ctx, r)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		d.bus.Emit(events.Event{Type: events.IngestFailed, DurationMS: duration, Err: err.Error()})
		return nil, err
	}
	d.bus.Emit(events.Event{
		Type: events.IngestSuccess, Project: ev.Project, Collection: ev.Collection, DurationMS: duration,
	})
	return ev, nil
}

func (d *Deserializer) deserialize(ctx context.Context, r io.Reader) (*Event, error) {
	p := rjson.NewParser(r)

	if _, err := p.Token(); err != nil { // top-level '{'
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var project, collection string
	var havePropertiesField bool
	var rec *schema.Record
	var canonical *schema.Schema

	for p.More() {
		keyTok, err := p.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		key, _ := keyTok.(string)

		switch key {
		case "project":
			v, err := p.Token()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
			}
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: project must be a string", ErrMalformedEvent)
			}
			project = s

		case "collection":
			v, err := p.Token()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
			}
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: collection must be a string", ErrMalformedEvent)
			}
			collection = strings.ToLower(s)

		case "properties":
			if havePropertiesField {
				return nil, fmt.Errorf("%w: properties appears twice", ErrMalformedEvent)
			}
			havePropertiesField = true

			if project != "" && collection != "" {
				openTok, err := p.Token() // properties object's '{'
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
				}
				if delim, ok := openTok.(json.Delim); !ok || delim != '{' {
					return nil, fmt.Errorf("%w: properties must be an object", ErrMalformedEvent)
				}
				rec, canonical, err = d.parseProperties(ctx, project, collection, p)
				if err != nil {
					return nil, err
				}
			} else {
				if err := p.Save(); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
				}
			}

		default:
			if err := p.SkipValue(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
			}
		}
	}
	if _, err := p.Token(); err != nil { // top-level closing '}'
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	if project == "" || collection == "" {
		return nil, fmt.Errorf("%w: missing project or collection", ErrMalformedEvent)
	}

	if rec == nil {
		if !p.IsSaved() {
			return nil, fmt.Errorf("%w: properties missing", ErrMalformedEvent)
		}
		if err := p.Load(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		var err error
		rec, canonical, err = d.parseProperties(ctx, project, collection, p)
		if err != nil {
			return nil, err
		}
	}

	return &Event{Project: project, Collection: collection, Schema: canonical, Record: rec}, nil
}

// parseProperties implements §4.G's fast and cold paths. p is positioned
// directly after the properties object's opening brace, ready for
// More()/Token() iteration of its fields.
func (d *Deserializer) parseProperties(ctx context.Context, project, collection string, p *rjson.Parser) (*schema.Record, *schema.Schema, error) {
	existing, fromCache := d.cache.Get(project, collection)
	if !fromCache {
		fetched, err := d.ms.GetCollection(ctx, project, collection)
		if err != nil {
			return nil, nil, err
		}
		if fetched != nil {
			d.cache.Put(project, collection, fetched)
			existing = fetched
		}
	}

	if existing != nil {
		return d.parsePropertiesFast(ctx, project, collection, p, existing)
	}
	return d.parsePropertiesCold(ctx, project, collection, p)
}

func (d *Deserializer) parsePropertiesFast(ctx context.Context, project, collection string, p *rjson.Parser, existing *schema.Schema) (*schema.Record, *schema.Schema, error) {
	rec := schema.NewRecord(existing)
	tempSchema := existing
	var newFields []schema.SchemaField

	for p.More() {
		keyTok, err := p.Token()
		if err != nil {
			return nil, nil, err
		}
		name, _ := keyTok.(string)

		valTok, err := p.Token()
		if err != nil {
			return nil, nil, err
		}
		value, err := schema.DecodeValue(p, valTok)
		if err != nil {
			return nil, nil, err
		}
		if value == nil {
			continue
		}

		if field, idx, ok := tempSchema.Lookup(name); ok {
			if v, matched := schema.MatchValue(value, field.Type); matched {
				rec.Put(idx, v)
			}
			continue
		}

		ft, ok := schema.InferType(value)
		if !ok {
			continue
		}
		newField := schema.SchemaField{Name: name, Type: ft, Nullable: true}
		extended, err := tempSchema.Extend([]schema.SchemaField{newField})
		if err != nil {
			return nil, nil, err
		}
		tempSchema = extended
		rec = rec.RebindTo(extended)
		if coerced, ok := schema.CoerceInferred(value, ft); ok {
			rec.PutByName(name, coerced)
		}
		newFields = append(newFields, newField)
	}
	if _, err := p.Token(); err != nil { // closing '}' of properties
		return nil, nil, err
	}

	if len(newFields) == 0 {
		return rec, existing, nil
	}

	d.registry.ApplyDependents(&newFields)
	d.registry.ApplyConstants(&newFields)

	canonical, err := d.ms.CreateOrGetCollectionField(ctx, project, collection, newFields, d.onCreate)
	if err != nil {
		return nil, nil, err
	}
	d.cache.Put(project, collection, canonical)
	return rec.RebindTo(canonical), canonical, nil
}

func (d *Deserializer) parsePropertiesCold(ctx context.Context, project, collection string, p *rjson.Parser) (*schema.Record, *schema.Schema, error) {
	tree := make(map[string]any)

	for p.More() {
		keyTok, err := p.Token()
		if err != nil {
			return nil, nil, err
		}
		name, _ := keyTok.(string)

		valTok, err := p.Token()
		if err != nil {
			return nil, nil, err
		}
		value, err := schema.DecodeValue(p, valTok)
		if err != nil {
			return nil, nil, err
		}
		tree[name] = value
	}
	if _, err := p.Token(); err != nil { // closing '}'
		return nil, nil, err
	}

	names := make([]string, 0, len(tree))
	for name := range tree {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic field order for a brand-new schema; see DESIGN.md

	var fields []schema.SchemaField
	for _, name := range names {
		value := tree[name]
		ft, ok := schema.InferType(value)
		if !ok {
			continue
		}
		fields = append(fields, schema.SchemaField{Name: name, Type: ft, Nullable: true})
	}

	d.registry.ApplyConstants(&fields)
	d.registry.ApplyDependents(&fields)

	canonical, err := d.ms.CreateOrGetCollectionField(ctx, project, collection, fields, d.onCreate)
	if err != nil {
		return nil, nil, err
	}
	d.cache.Put(project, collection, canonical)

	rec := schema.NewRecord(canonical)
	for _, f := range canonical.Fields() {
		value, ok := tree[f.Name]
		if !ok || value == nil {
			continue
		}
		if coerced, ok := schema.CoerceInferred(value, f.Type); ok {
			rec.PutByName(f.Name, coerced)
		}
	}
	return rec, canonical, nil
}
