package mcptransport

import (
	"log/slog"
	"strings"
)

const maxDerefDepth = 32

// dereferenceSchema walks schema resolving every "$ref" that points inside
// the same document's "$defs" or "definitions" map (§4.7 "$defs/#/definitions
// JSON-Schema dereferencer"). A ref visited twice on the same walk path is
// replaced with an empty object to break cycles; external refs (anything not
// starting with "#/") are left untouched. Failures fall back to the original
// schema, logged at Warn.
func dereferenceSchema(logger *slog.Logger, schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	visiting := map[string]bool{}
	result, ok := derefNode(logger, schema, schema, visiting, 0).(map[string]interface{})
	if !ok {
		logger.Warn("mcp schema dereference: unexpected root shape, using original schema")
		return schema
	}
	return result
}

func derefNode(logger *slog.Logger, root interface{}, node interface{}, visiting map[string]bool, depth int) interface{} {
	if depth > maxDerefDepth {
		logger.Warn("mcp schema dereference: max depth exceeded")
		return map[string]interface{}{}
	}

	switch v := node.(type) {
	case map[string]interface{}:
		if ref, ok := v["$ref"].(string); ok {
			return derefRef(logger, root, ref, visiting, depth)
		}
		out := make(map[string]interface{}, len(v))
		for key, val := range v {
			out[key] = derefNode(logger, root, val, visiting, depth+1)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = derefNode(logger, root, val, visiting, depth+1)
		}
		return out
	default:
		return v
	}
}

func derefRef(logger *slog.Logger, root interface{}, ref string, visiting map[string]bool, depth int) interface{} {
	if !strings.HasPrefix(ref, "#/") {
		// External ref: leave as a ref marker, unresolved by design.
		return map[string]interface{}{"$ref": ref}
	}
	if visiting[ref] {
		// Cycle: break it with an empty schema rather than recursing forever.
		return map[string]interface{}{}
	}
	visiting[ref] = true
	defer delete(visiting, ref)

	target := lookupPointer(root, ref)
	if target == nil {
		logger.Warn("mcp schema dereference: unresolved ref", "ref", ref)
		return map[string]interface{}{}
	}
	return derefNode(logger, root, target, visiting, depth+1)
}

// lookupPointer resolves "#/a/b/c" against root, accepting both "$defs" and
// the older "definitions" container names.
func lookupPointer(root interface{}, ref string) interface{} {
	path := strings.TrimPrefix(ref, "#/")
	if path == "" {
		return root
	}
	segments := strings.Split(path, "/")
	var cur interface{} = root
	for _, seg := range segments {
		seg = strings.ReplaceAll(seg, "~1", "/")
		seg = strings.ReplaceAll(seg, "~0", "~")
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		next, ok := m[seg]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}
