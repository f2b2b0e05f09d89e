package mcptransport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDereferenceSchemaResolvesDefsRef(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"city": map[string]interface{}{"$ref": "#/$defs/City"},
		},
		"$defs": map[string]interface{}{
			"City": map[string]interface{}{"type": "string"},
		},
	}

	out := dereferenceSchema(nil, schema)
	props := out["properties"].(map[string]interface{})
	city := props["city"].(map[string]interface{})
	assert.Equal(t, "string", city["type"])
}

func TestDereferenceSchemaSupportsLegacyDefinitions(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"widget": map[string]interface{}{"$ref": "#/definitions/Widget"},
		},
		"definitions": map[string]interface{}{
			"Widget": map[string]interface{}{"type": "object"},
		},
	}
	out := dereferenceSchema(nil, schema)
	props := out["properties"].(map[string]interface{})
	widget := props["widget"].(map[string]interface{})
	assert.Equal(t, "object", widget["type"])
}

func TestDereferenceSchemaBreaksCycles(t *testing.T) {
	schema := map[string]interface{}{
		"$defs": map[string]interface{}{
			"Node": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"child": map[string]interface{}{"$ref": "#/$defs/Node"},
				},
			},
		},
		"$ref": "#/$defs/Node",
	}

	out := dereferenceSchema(nil, schema)
	require.NotNil(t, out)
	// The cycle must terminate rather than recurse forever or panic.
	props, ok := out["properties"].(map[string]interface{})
	require.True(t, ok)
	child, ok := props["child"].(map[string]interface{})
	require.True(t, ok)
	assert.Empty(t, child)
}

func TestDereferenceSchemaLeavesExternalRefsUntouched(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"other": map[string]interface{}{"$ref": "https://example.com/schema.json#/Foo"},
		},
	}
	out := dereferenceSchema(nil, schema)
	props := out["properties"].(map[string]interface{})
	other := props["other"].(map[string]interface{})
	assert.Equal(t, "https://example.com/schema.json#/Foo", other["$ref"])
}

func TestDereferenceSchemaNilInputReturnsNil(t *testing.T) {
	assert.Nil(t, dereferenceSchema(nil, nil))
}

func TestDereferenceSchemaUnresolvedRefFallsBackToEmptyObject(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"missing": map[string]interface{}{"$ref": "#/$defs/DoesNotExist"},
		},
	}
	out := dereferenceSchema(nil, schema)
	props := out["properties"].(map[string]interface{})
	missing := props["missing"].(map[string]interface{})
	assert.Empty(t, missing)
}
