// Package domain describes the value classes agents exchange through the
// blackboard. A Type is a named handle for a class of values: it carries an
// inheritance chain, property descriptors used for schema emission, and a
// creation policy that tells planners whether new instances may be fabricated.
//
// Two variants exist. Reflected types are backed by a Go type and use the
// reflect package for assignability. Dynamic types are schema-only: they exist
// purely as registry metadata and their assignability follows the declared
// parent chain.
package domain

import (
	"fmt"
	"reflect"
)

// PropertyKind classifies a property descriptor. One of "scalar", "entity",
// or "collection".
type PropertyKind string

const (
	// KindScalar marks a property holding a primitive value (string, number,
	// boolean).
	KindScalar PropertyKind = "scalar"
	// KindEntity marks a property referencing another domain type by name.
	KindEntity PropertyKind = "entity"
	// KindCollection marks a property holding a homogeneous list. Elem names
	// the element type.
	KindCollection PropertyKind = "collection"
)

type (
	// Property describes a single named slot on a domain type. The descriptor
	// feeds JSON schema emission for LLM structured output and tool payloads.
	Property struct {
		// Name is the property identifier within its type.
		Name string
		// Description documents the property for prompting purposes.
		Description string
		// Kind classifies the descriptor (scalar, entity, collection).
		Kind PropertyKind
		// Type names the scalar JSON type ("string", "number", "integer",
		// "boolean") for scalar properties or the referenced domain type for
		// entity properties.
		Type string
		// Elem names the element type for collection properties. Empty
		// otherwise.
		Elem string
		// Required marks the property as mandatory in emitted schemas.
		Required bool
	}

	// Type is a named handle for a value class. Instances are immutable after
	// registration; mutate-by-copy if a variant is needed.
	Type struct {
		// Name uniquely identifies the type within a registry.
		Name string
		// OwnLabel is the human-facing label used in prompts and rendering.
		// Defaults to Name when empty.
		OwnLabel string
		// Description documents the type for planners and LLM schema emission.
		Description string
		// Parents lists the names of the direct supertypes, nearest first.
		Parents []string
		// Properties maps property names to their descriptors.
		Properties map[string]Property
		// CreationPermitted reports whether planners may assume new instances
		// of this type can be produced by actions.
		CreationPermitted bool

		// goType backs reflected types; nil for dynamic types.
		goType reflect.Type
	}
)

// Reflected constructs a type backed by the Go type of sample. The sample
// value itself is discarded; only its type is retained. Pointer samples are
// dereferenced so *T and T register identically.
func Reflected(name string, sample any, opts ...TypeOption) *Type {
	rt := reflect.TypeOf(sample)
	for rt != nil && rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	t := &Type{
		Name:              name,
		OwnLabel:          name,
		Properties:        map[string]Property{},
		CreationPermitted: true,
		goType:            rt,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dynamic constructs a schema-only type with no backing Go type.
func Dynamic(name string, opts ...TypeOption) *Type {
	t := &Type{
		Name:              name,
		OwnLabel:          name,
		Properties:        map[string]Property{},
		CreationPermitted: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TypeOption customizes a type under construction.
type TypeOption func(*Type)

// WithDescription sets the type description.
func WithDescription(desc string) TypeOption {
	return func(t *Type) { t.Description = desc }
}

// WithLabel overrides the human-facing label.
func WithLabel(label string) TypeOption {
	return func(t *Type) { t.OwnLabel = label }
}

// WithParents declares the direct supertypes, nearest first.
func WithParents(parents ...string) TypeOption {
	return func(t *Type) { t.Parents = parents }
}

// WithProperty adds a property descriptor.
func WithProperty(p Property) TypeOption {
	return func(t *Type) { t.Properties[p.Name] = p }
}

// WithCreationForbidden marks the type as not instantiable by actions.
// Planners will not propose plans that require fabricating such values.
func WithCreationForbidden() TypeOption {
	return func(t *Type) { t.CreationPermitted = false }
}

// Reflected reports whether the type is backed by a Go type.
func (t *Type) Reflected() bool { return t.goType != nil }

// GoType returns the backing Go type for reflected types, nil for dynamic
// ones.
func (t *Type) GoType() reflect.Type { return t.goType }

// Label returns OwnLabel, falling back to Name.
func (t *Type) Label() string {
	if t.OwnLabel != "" {
		return t.OwnLabel
	}
	return t.Name
}

func (t *Type) String() string {
	return fmt.Sprintf("domain.Type(%s)", t.Name)
}
