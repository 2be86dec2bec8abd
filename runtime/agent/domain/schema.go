package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema emits a JSON Schema (draft 2020-12) document for the type, merging
// property descriptors from the full parent chain. Ancestor properties are
// overridden by descendants declaring the same name.
func (r *Registry) Schema(name string) (map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("domain: unknown type %q", name)
	}
	props := map[string]Property{}
	r.mergePropertiesLocked(t, props)

	properties := map[string]any{}
	var required []string
	for pname, p := range props {
		node, err := r.propertySchemaLocked(p)
		if err != nil {
			return nil, fmt.Errorf("domain: type %q property %q: %w", name, pname, err)
		}
		properties[pname] = node
		if p.Required {
			required = append(required, pname)
		}
	}
	sort.Strings(required)

	doc := map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"title":                t.Label(),
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if t.Description != "" {
		doc["description"] = t.Description
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc, nil
}

// CompiledSchema emits and compiles the schema for name, returning a
// validator. Compilation catches malformed property descriptors (dangling
// entity references surface here rather than at validation time).
func (r *Registry) CompiledSchema(name string) (*jsonschema.Schema, error) {
	doc, err := r.Schema(name)
	if err != nil {
		return nil, err
	}
	return compileSchemaDoc(name, doc)
}

// ValidateValue checks that the JSON encoding of v conforms to the emitted
// schema for the named type.
func (r *Registry) ValidateValue(name string, v any) error {
	sch, err := r.CompiledSchema(name)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("domain: marshal value for %q: %w", name, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("domain: decode value for %q: %w", name, err)
	}
	return sch.Validate(inst)
}

func compileSchemaDoc(name string, doc map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("domain: encode schema for %q: %w", name, err)
	}
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("domain: parse schema for %q: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	url := "arcline:///" + name + ".schema.json"
	if err := compiler.AddResource(url, parsed); err != nil {
		return nil, fmt.Errorf("domain: add schema resource for %q: %w", name, err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("domain: compile schema for %q: %w", name, err)
	}
	return sch, nil
}

// mergePropertiesLocked collects properties from the parent chain, nearest
// ancestors last so descendants win.
func (r *Registry) mergePropertiesLocked(t *Type, into map[string]Property) {
	for i := len(t.Parents) - 1; i >= 0; i-- {
		if parent, ok := r.types[t.Parents[i]]; ok {
			r.mergePropertiesLocked(parent, into)
		}
	}
	for name, p := range t.Properties {
		into[name] = p
	}
}

func (r *Registry) propertySchemaLocked(p Property) (map[string]any, error) {
	node := map[string]any{}
	if p.Description != "" {
		node["description"] = p.Description
	}
	switch p.Kind {
	case KindScalar, "":
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		switch typ {
		case "string", "number", "integer", "boolean":
		default:
			return nil, fmt.Errorf("unsupported scalar type %q", typ)
		}
		node["type"] = typ
	case KindEntity:
		ref, ok := r.types[p.Type]
		if !ok {
			return nil, fmt.Errorf("unknown entity type %q", p.Type)
		}
		node["type"] = "object"
		node["title"] = ref.Label()
	case KindCollection:
		elem := map[string]any{"type": "object"}
		if p.Elem != "" {
			if _, ok := r.types[p.Elem]; !ok {
				switch p.Elem {
				case "string", "number", "integer", "boolean":
					elem = map[string]any{"type": p.Elem}
				default:
					return nil, fmt.Errorf("unknown collection element type %q", p.Elem)
				}
			}
		}
		node["type"] = "array"
		node["items"] = elem
	default:
		return nil, fmt.Errorf("unknown property kind %q", p.Kind)
	}
	return node, nil
}
