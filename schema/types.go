// Package schema holds the type model shared by the rewindable parser and the
// ingest subsystem: field types, schemas, and records. It sits below both so
// that neither imports the other.
package schema

import (
	"errors"
	"fmt"
)

// FieldType is the closed set of scalar types a SchemaField may declare.
type FieldType string

const (
	FieldTypeString  FieldType = "STRING"
	FieldTypeLong    FieldType = "LONG"
	FieldTypeDouble  FieldType = "DOUBLE"
	FieldTypeBoolean FieldType = "BOOLEAN"
	FieldTypeArray   FieldType = "ARRAY"
)

// SchemaField is the (name, type, nullable) triple described in §3. Every
// field is conceptually nullable, but the flag is carried explicitly since a
// module could in principle declare a field required in a future revision.
type SchemaField struct {
	Name     string
	Type     FieldType
	Nullable bool
}

var (
	// ErrNestedNotSupported is returned when a property value is an object,
	// an array-of-array, or otherwise not a flat scalar/array-of-scalar.
	ErrNestedNotSupported = errors.New("schemaflow: nested structure not supported")
	// ErrTypeConflict is returned when a field name is reused with a
	// different declared type during reconciliation.
	ErrTypeConflict = errors.New("schemaflow: field type conflict")
)

// Schema is an ordered, append-only list of SchemaFields. Field positions are
// stable: Extend never reorders or removes existing fields.
type Schema struct {
	fields []SchemaField
	index  map[string]int
}

// NewSchema builds a Schema from an ordered field list. The input is copied;
// callers may reuse or mutate their slice afterward.
func NewSchema(fields []SchemaField) *Schema {
	cp := make([]SchemaField, len(fields))
	copy(cp, fields)
	idx := make(map[string]int, len(cp))
	for i, f := range cp {
		idx[f.Name] = i
	}
	return &Schema{fields: cp, index: idx}
}

// Fields returns a copy of the field list in positional order.
func (s *Schema) Fields() []SchemaField {
	if s == nil {
		return nil
	}
	cp := make([]SchemaField, len(s.fields))
	copy(cp, s.fields)
	return cp
}

// Len reports the number of fields in the schema.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// Lookup returns the field and its position by name.
func (s *Schema) Lookup(name string) (SchemaField, int, bool) {
	if s == nil {
		return SchemaField{}, 0, false
	}
	i, ok := s.index[name]
	if !ok {
		return SchemaField{}, 0, false
	}
	return s.fields[i], i, true
}

// Extend merges extra fields into the schema per the invariant 3 rule: a
// same-named field with the same type is a no-op, a different type is
// ErrTypeConflict, and an absent name is appended. It returns a new Schema;
// the receiver is untouched.
func (s *Schema) Extend(extra []SchemaField) (*Schema, error) {
	var existing []SchemaField
	if s != nil {
		existing = s.fields
	}
	merged, err := MergeFields(existing, extra)
	if err != nil {
		return nil, err
	}
	return NewSchema(merged), nil
}

// MergeFields implements the union-merge rule of §3 invariant 3: same name +
// same type is a no-op, same name + different type is ErrTypeConflict,
// absent name is appended preserving the order fields were encountered in
// incoming. (The dependency registry's ApplyConstants/ApplyDependents use a
// different rule on a type clash: they replace the incumbent field.)
func MergeFields(existing []SchemaField, incoming []SchemaField) ([]SchemaField, error) {
	result := make([]SchemaField, len(existing))
	copy(result, existing)
	index := make(map[string]int, len(result))
	for i, f := range result {
		index[f.Name] = i
	}
	for _, f := range incoming {
		if i, ok := index[f.Name]; ok {
			if result[i].Type != f.Type {
				return nil, fmt.Errorf("%w: field %q declared as %s, incoming %s", ErrTypeConflict, f.Name, result[i].Type, f.Type)
			}
			continue
		}
		index[f.Name] = len(result)
		result = append(result, f)
	}
	return result, nil
}

// Record is a value bound to one specific Schema version: positional
// put/get by field index, with missing fields materializing as null.
type Record struct {
	schema *Schema
	values []any
}

// NewRecord allocates a Record with every position null.
func NewRecord(s *Schema) *Record {
	return &Record{schema: s, values: make([]any, s.Len())}
}

// Schema returns the schema this record is bound to.
func (r *Record) Schema() *Schema {
	return r.schema
}

// Put assigns a value at a field position.
func (r *Record) Put(i int, v any) {
	r.values[i] = v
}

// Get returns the value at a field position.
func (r *Record) Get(i int) any {
	return r.values[i]
}

// PutByName assigns a value by field name, reporting whether the field
// exists in the bound schema.
func (r *Record) PutByName(name string, v any) bool {
	_, i, ok := r.schema.Lookup(name)
	if !ok {
		return false
	}
	r.values[i] = v
	return true
}

// GetByName returns the value by field name, reporting whether the field
// exists in the bound schema.
func (r *Record) GetByName(name string) (any, bool) {
	_, i, ok := r.schema.Lookup(name)
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// RebindTo copies every already-populated, non-null column of r by name into
// a new Record bound to s. Used when a schema grows mid-event and the record
// built so far must be carried forward to its canonical, possibly wider,
// shape (§4.G step 4: "rebuild the Record against the canonical schema by
// copying each already-populated column by name").
func (r *Record) RebindTo(s *Schema) *Record {
	nr := NewRecord(s)
	for _, f := range r.schema.Fields() {
		v, ok := r.GetByName(f.Name)
		if !ok || v == nil {
			continue
		}
		nr.PutByName(f.Name, v)
	}
	return nr
}
