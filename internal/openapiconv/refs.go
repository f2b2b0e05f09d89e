package openapiconv

import (
	"strings"

	"github.com/viant/utcp/types"
)

const maxRefDepth = 16

// resolveRef follows a single `$ref` pointer. A node without a `$ref` is
// returned unchanged; a ref that cannot be resolved in doc (external or
// malformed) becomes an empty schema.
func resolveRef(doc map[string]interface{}, node interface{}) interface{} {
	m, ok := node.(map[string]interface{})
	if !ok {
		return node
	}
	ref, ok := m["$ref"].(string)
	if !ok {
		return node
	}
	target := lookupRef(doc, ref)
	if target == nil {
		// Unresolvable external or malformed ref: fall back to {} per §4.6.
		return map[string]interface{}{}
	}
	return target
}

func lookupRef(doc map[string]interface{}, ref string) map[string]interface{} {
	if !strings.HasPrefix(ref, "#/") {
		// External refs cannot be resolved here; resolveRef replaces them
		// with an empty schema.
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(ref, "#/"), "/")
	var cur interface{} = doc
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur, ok = m[p]
		if !ok {
			return nil
		}
	}
	m, _ := cur.(map[string]interface{})
	return m
}

// resolveSchema dereferences $ref and collapses allOf/oneOf/anyOf to the
// best available schema: allOf merges every branch's properties/required;
// oneOf/anyOf take the first branch. Unknown constructs fall back to {}
// rather than erroring (§4.6).
func resolveSchema(doc map[string]interface{}, node interface{}) types.Schema {
	return resolveSchemaDepth(doc, node, 0)
}

func resolveSchemaDepth(doc map[string]interface{}, node interface{}, depth int) types.Schema {
	if node == nil || depth > maxRefDepth {
		return nil
	}
	m, ok := node.(map[string]interface{})
	if !ok {
		return nil
	}

	if _, hasRef := m["$ref"]; hasRef {
		resolved := resolveRef(doc, m)
		return resolveSchemaDepth(doc, resolved, depth+1)
	}

	if allOf, ok := m["allOf"].([]interface{}); ok && len(allOf) > 0 {
		merged := types.Schema{"type": "object"}
		properties := map[string]interface{}{}
		var required []string
		for _, branch := range allOf {
			sub := resolveSchemaDepth(doc, branch, depth+1)
			if sub == nil {
				continue
			}
			if props, ok := sub["properties"].(map[string]interface{}); ok {
				for k, v := range props {
					properties[k] = v
				}
			}
			required = append(required, toStringSlice(sub["required"])...)
		}
		merged["properties"] = properties
		if len(required) > 0 {
			merged["required"] = required
		}
		return merged
	}

	for _, key := range []string{"oneOf", "anyOf"} {
		if branches, ok := m[key].([]interface{}); ok && len(branches) > 0 {
			if sub := resolveSchemaDepth(doc, branches[0], depth+1); sub != nil {
				return sub
			}
			return types.Schema{}
		}
	}

	out := types.Schema{}
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toStringSlice(v interface{}) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
