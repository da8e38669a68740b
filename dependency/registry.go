// Package dependency implements the Field Dependency Registry of §4.D: an
// immutable, once-built set of constant and conditional field contributions,
// consumed by the Bootstrap Reconciler and the Event Deserializer.
package dependency

import "github.com/asaidimu/schemaflow/schema"

// EventMapper is implemented by modules that contribute fields to the
// registry at startup. What was, in the teacher's domain, a
// plugin-registered hook is modeled here as a pre-built immutable registry
// passed to the deserializer at construction — no dynamic dispatch in the
// hot path (§9).
type EventMapper interface {
	ContributeFields(b *RegistryBuilder)
}

// RegistryBuilder accumulates constant and dependent field contributions
// before Build freezes them into a Registry.
type RegistryBuilder struct {
	constants  []schema.SchemaField
	dependents map[string][]schema.SchemaField
}

// NewRegistryBuilder returns an empty builder.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{dependents: make(map[string][]schema.SchemaField)}
}

// AddConstantField registers a field unconditionally added to every
// collection.
func (b *RegistryBuilder) AddConstantField(f schema.SchemaField) *RegistryBuilder {
	b.constants = append(b.constants, f)
	return b
}

// AddDependentField registers extra as required whenever a field named
// trigger is present in a collection's schema.
func (b *RegistryBuilder) AddDependentField(trigger string, extra schema.SchemaField) *RegistryBuilder {
	b.dependents[trigger] = append(b.dependents[trigger], extra)
	return b
}

// Build freezes the builder into an immutable Registry.
func (b *RegistryBuilder) Build() *Registry {
	constants := make([]schema.SchemaField, len(b.constants))
	copy(constants, b.constants)

	dependents := make(map[string][]schema.SchemaField, len(b.dependents))
	for trigger, extras := range b.dependents {
		cp := make([]schema.SchemaField, len(extras))
		copy(cp, extras)
		dependents[trigger] = cp
	}
	return &Registry{constants: constants, dependents: dependents}
}

// BuildRegistry runs every mapper against a fresh builder and freezes the
// result — the usual way a Registry is constructed at startup.
func BuildRegistry(mappers []EventMapper) *Registry {
	b := NewRegistryBuilder()
	for _, m := range mappers {
		m.ContributeFields(b)
	}
	return b.Build()
}

// Registry is the frozen, read-only result of a RegistryBuilder. It is safe
// for concurrent use without locking (§5: "frozen after startup — read-only,
// lock-free").
type Registry struct {
	constants  []schema.SchemaField
	dependents map[string][]schema.SchemaField
}

// Constants returns a copy of the registered constant fields.
func (r *Registry) Constants() []schema.SchemaField {
	cp := make([]schema.SchemaField, len(r.constants))
	copy(cp, r.constants)
	return cp
}

// DependentsFor returns a copy of the fields required when trigger is
// present, if any.
func (r *Registry) DependentsFor(trigger string) []schema.SchemaField {
	extras, ok := r.dependents[trigger]
	if !ok {
		return nil
	}
	cp := make([]schema.SchemaField, len(extras))
	copy(cp, extras)
	return cp
}

// applyOne implements the shared rule of §4.D for a single contributed
// field c against fields: same name + same type is a no-op, same name +
// different type replaces the incumbent with c, absent name appends c.
func applyOne(fields *[]schema.SchemaField, c schema.SchemaField) {
	for i, f := range *fields {
		if f.Name != c.Name {
			continue
		}
		if f.Type == c.Type {
			return
		}
		(*fields)[i] = c
		return
	}
	*fields = append(*fields, c)
}

// ApplyConstants mutates fields in place, adding every constant field not
// already present with a matching type (§4.D).
func (r *Registry) ApplyConstants(fields *[]schema.SchemaField) {
	for _, c := range r.constants {
		applyOne(fields, c)
	}
}

// ApplyDependents mutates fields in place: for every trigger field present
// in fields, applies its registered extras via the same rule as
// ApplyConstants (§4.D).
func (r *Registry) ApplyDependents(fields *[]schema.SchemaField) {
	// Snapshot trigger names up front: extras must never themselves be
	// treated as new triggers within the same application pass.
	triggers := make([]string, 0, len(*fields))
	for _, f := range *fields {
		triggers = append(triggers, f.Name)
	}
	for _, trigger := range triggers {
		for _, extra := range r.dependents[trigger] {
			applyOne(fields, extra)
		}
	}
}
