// Package openapiconv converts a parsed OpenAPI 2.0/3.x document into a
// UTCP manual: one tool per (path, method) pair, each bound to a fresh HTTP
// CallTemplate (§4.6).
package openapiconv

import (
	"fmt"
	"sort"
	"strings"

	"github.com/viant/utcp/types"
)

// Context carries everything the converter needs that isn't in the document
// itself.
type Context struct {
	SpecURL          string
	CallTemplateName string
	AuthTools        *types.Auth
}

var httpMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

// Convert maps every (path, method) operation in doc to a Tool.
func Convert(doc map[string]interface{}, ctx Context) (*types.Manual, error) {
	paths, _ := doc["paths"].(map[string]interface{})
	if paths == nil {
		return nil, fmt.Errorf("openapi document has no paths")
	}

	baseURL := resolveServerURL(doc, ctx.SpecURL)

	manual := types.EmptyManual(ctx.CallTemplateName)
	manual.UtcpVersion = "1.0.1"
	manual.ManualVersion = versionOf(doc)

	// Deterministic tool order: sort paths, then sort methods within a path.
	pathKeys := make([]string, 0, len(paths))
	for p := range paths {
		pathKeys = append(pathKeys, p)
	}
	sort.Strings(pathKeys)

	seen := map[string]bool{}
	for _, path := range pathKeys {
		pathItem, _ := paths[path].(map[string]interface{})
		if pathItem == nil {
			continue
		}
		methodKeys := make([]string, 0, len(pathItem))
		for m := range pathItem {
			lower := strings.ToLower(m)
			if lower == "parameters" || !httpMethods[lower] {
				continue
			}
			methodKeys = append(methodKeys, m)
		}
		sort.Strings(methodKeys)

		for _, method := range methodKeys {
			op, _ := pathItem[method].(map[string]interface{})
			if op == nil {
				continue
			}
			tool, err := convertOperation(doc, path, method, pathItem, op, baseURL, ctx)
			if err != nil {
				// An operation that fails to convert is skipped rather
				// than failing the whole conversion, so partial manuals
				// still load.
				continue
			}
			if seen[tool.Name] {
				tool.Name = fmt.Sprintf("%s_%s", tool.Name, strings.ToLower(method))
			}
			seen[tool.Name] = true
			manual.Tools = append(manual.Tools, *tool)
		}
	}
	return &manual, nil
}

func versionOf(doc map[string]interface{}) string {
	if info, ok := doc["info"].(map[string]interface{}); ok {
		if v, ok := info["version"].(string); ok && v != "" {
			return v
		}
	}
	return "0.0.0"
}

func resolveServerURL(doc map[string]interface{}, specURL string) string {
	if servers, ok := doc["servers"].([]interface{}); ok && len(servers) > 0 {
		if first, ok := servers[0].(map[string]interface{}); ok {
			if url, ok := first["url"].(string); ok && url != "" {
				return strings.TrimRight(url, "/")
			}
		}
	}
	// Swagger 2.0 shape.
	if host, ok := doc["host"].(string); ok && host != "" {
		scheme := "https"
		if schemes, ok := doc["schemes"].([]interface{}); ok && len(schemes) > 0 {
			if s, ok := schemes[0].(string); ok {
				scheme = s
			}
		}
		base, _ := doc["basePath"].(string)
		return strings.TrimRight(fmt.Sprintf("%s://%s%s", scheme, host, base), "/")
	}
	// Fall back to the directory containing the spec.
	if idx := strings.LastIndex(specURL, "/"); idx >= 0 {
		return specURL[:idx]
	}
	return ""
}

func slugOperation(method, path string) string {
	slug := strings.ToLower(method) + "_" + path
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, slug)
	for strings.Contains(slug, "__") {
		slug = strings.ReplaceAll(slug, "__", "_")
	}
	return strings.Trim(slug, "_")
}

func convertOperation(doc map[string]interface{}, path, method string, pathItem, op map[string]interface{}, baseURL string, ctx Context) (*types.Tool, error) {
	name := slugOperation(method, path)
	if opID, ok := op["operationId"].(string); ok && opID != "" {
		name = opID
	}

	description, _ := op["summary"].(string)
	if description == "" {
		description, _ = op["description"].(string)
	}

	var tags []string
	if rawTags, ok := op["tags"].([]interface{}); ok {
		for _, t := range rawTags {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
	}

	inputs, required, headerFields, pathFields, bodyField := buildInputSchema(doc, pathItem, op)
	outputs := buildOutputSchema(doc, op)

	template := types.HTTPCallTemplate{
		Common: types.Common{
			Name:              ctx.CallTemplateName,
			CallTemplateType:  types.CallTemplateHTTP,
			Auth:              ctx.AuthTools,
		},
		URL:          baseURL + path,
		HTTPMethod:   strings.ToUpper(method),
		ContentType:  "application/json",
		BodyField:    bodyField,
		HeaderFields: headerFields,
		PathFields:   pathFields,
	}

	tool := &types.Tool{
		Name:             name,
		Description:      description,
		Tags:             tags,
		Inputs:           inputs,
		Outputs:          outputs,
		ToolCallTemplate: template,
	}
	_ = required
	return tool, nil
}

func buildInputSchema(doc map[string]interface{}, pathItem, op map[string]interface{}) (types.Schema, []string, []string, []string, string) {
	properties := map[string]interface{}{}
	var required []string
	var headerFields []string
	var pathFields []string
	bodyField := ""

	params := collectParameters(doc, pathItem, op)
	for _, p := range params {
		name, _ := p["name"].(string)
		if name == "" {
			continue
		}
		in, _ := p["in"].(string)
		schema := resolveSchema(doc, p["schema"])
		if schema == nil {
			schema = map[string]interface{}{"type": inferPrimitiveType(p)}
		}
		if desc, ok := p["description"].(string); ok {
			schema["description"] = desc
		}
		properties[name] = schema
		if isTrue(p["required"]) {
			required = append(required, name)
		}
		switch in {
		case "header":
			headerFields = append(headerFields, name)
		case "path":
			pathFields = append(pathFields, name)
		}
	}

	if body, ok := op["requestBody"].(map[string]interface{}); ok {
		schema := requestBodySchema(doc, body)
		properties["body"] = schema
		bodyField = "body"
		if isTrue(body["required"]) {
			required = append(required, "body")
		}
	} else if bodyParam := findBodyParam(params); bodyParam != nil {
		schema := resolveSchema(doc, bodyParam["schema"])
		if schema == nil {
			schema = map[string]interface{}{"type": "object"}
		}
		properties["body"] = schema
		bodyField = "body"
		if isTrue(bodyParam["required"]) {
			required = append(required, "body")
		}
	}

	return types.Schema{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}, required, headerFields, pathFields, bodyField
}

func findBodyParam(params []map[string]interface{}) map[string]interface{} {
	for _, p := range params {
		if in, _ := p["in"].(string); in == "body" {
			return p
		}
	}
	return nil
}

func collectParameters(doc map[string]interface{}, pathItem, op map[string]interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	appendParams := func(raw interface{}) {
		list, ok := raw.([]interface{})
		if !ok {
			return
		}
		for _, item := range list {
			resolved := resolveRef(doc, item)
			if m, ok := resolved.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
	}
	appendParams(pathItem["parameters"])
	appendParams(op["parameters"])
	return out
}

func inferPrimitiveType(p map[string]interface{}) string {
	if t, ok := p["type"].(string); ok && t != "" {
		return t
	}
	return "string"
}

func requestBodySchema(doc map[string]interface{}, body map[string]interface{}) types.Schema {
	content, ok := body["content"].(map[string]interface{})
	if !ok {
		return types.Schema{}
	}
	media, ok := content["application/json"].(map[string]interface{})
	if !ok {
		for _, v := range content {
			media, _ = v.(map[string]interface{})
			break
		}
	}
	if media == nil {
		return types.Schema{}
	}
	schema := resolveSchema(doc, media["schema"])
	if schema == nil {
		return types.Schema{}
	}
	return schema
}

func buildOutputSchema(doc map[string]interface{}, op map[string]interface{}) types.Schema {
	responses, ok := op["responses"].(map[string]interface{})
	if !ok {
		return types.Schema{}
	}
	var body map[string]interface{}
	if r, ok := responses["200"].(map[string]interface{}); ok {
		body = r
	} else {
		for code, r := range responses {
			if strings.HasPrefix(code, "2") {
				if m, ok := r.(map[string]interface{}); ok {
					body = m
					break
				}
			}
		}
	}
	if body == nil {
		return types.Schema{}
	}
	// OpenAPI 3.x: content.application/json.schema; 2.0: schema directly.
	if content, ok := body["content"].(map[string]interface{}); ok {
		media, ok := content["application/json"].(map[string]interface{})
		if !ok {
			for _, v := range content {
				media, _ = v.(map[string]interface{})
				break
			}
		}
		if media != nil {
			if schema := resolveSchema(doc, media["schema"]); schema != nil {
				return schema
			}
		}
		return types.Schema{}
	}
	if schema := resolveSchema(doc, body["schema"]); schema != nil {
		return schema
	}
	return types.Schema{}
}

func isTrue(v interface{}) bool {
	b, _ := v.(bool)
	return b
}
