package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func invoiceRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	r.MustRegister(Dynamic("Party",
		WithProperty(Property{Name: "name", Kind: KindScalar, Type: "string", Required: true}),
	))
	r.MustRegister(Dynamic("Invoice",
		WithDescription("A billing document"),
		WithProperty(Property{Name: "number", Kind: KindScalar, Type: "string", Required: true}),
		WithProperty(Property{Name: "total", Kind: KindScalar, Type: "number"}),
		WithProperty(Property{Name: "payer", Kind: KindEntity, Type: "Party"}),
		WithProperty(Property{Name: "lines", Kind: KindCollection, Elem: "string"}),
	))
	return r
}

func TestSchemaEmission(t *testing.T) {
	r := invoiceRegistry(t)
	doc, err := r.Schema("Invoice")
	require.NoError(t, err)
	require.Equal(t, "object", doc["type"])
	require.Equal(t, "A billing document", doc["description"])
	require.Equal(t, []string{"number"}, doc["required"])

	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, props, "number")
	require.Contains(t, props, "total")
	require.Contains(t, props, "payer")
	require.Contains(t, props, "lines")
}

func TestSchemaMergesParentProperties(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Dynamic("Base",
		WithProperty(Property{Name: "id", Kind: KindScalar, Type: "string", Required: true}),
		WithProperty(Property{Name: "note", Kind: KindScalar, Type: "string"}),
	))
	r.MustRegister(Dynamic("Derived",
		WithParents("Base"),
		// Overrides the parent's note descriptor.
		WithProperty(Property{Name: "note", Kind: KindScalar, Type: "boolean"}),
	))
	doc, err := r.Schema("Derived")
	require.NoError(t, err)
	props := doc["properties"].(map[string]any)
	require.Contains(t, props, "id")
	note := props["note"].(map[string]any)
	require.Equal(t, "boolean", note["type"])
}

func TestSchemaUnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Schema("Missing")
	require.Error(t, err)
}

func TestSchemaRejectsBadScalar(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Dynamic("Broken",
		WithProperty(Property{Name: "x", Kind: KindScalar, Type: "decimal"}),
	))
	_, err := r.Schema("Broken")
	require.Error(t, err)
}

func TestValidateValue(t *testing.T) {
	r := invoiceRegistry(t)

	valid := map[string]any{"number": "INV-1", "total": 99.5}
	require.NoError(t, r.ValidateValue("Invoice", valid))

	missing := map[string]any{"total": 10}
	require.Error(t, r.ValidateValue("Invoice", missing), "required property absent")

	wrongType := map[string]any{"number": 42}
	require.Error(t, r.ValidateValue("Invoice", wrongType))

	extra := map[string]any{"number": "INV-2", "surprise": true}
	require.Error(t, r.ValidateValue("Invoice", extra), "additionalProperties is false")
}
