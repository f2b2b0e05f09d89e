// Package filetransport implements the file/text transport (§4.5): it loads
// a JSON or YAML document, detects whether it is an OpenAPI spec or a native
// UTCP manual, and converts or validates it accordingly.
package filetransport

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/viant/utcp/internal/openapiconv"
	"github.com/viant/utcp/internal/transport"
	"github.com/viant/utcp/types"
)

// nativeManualSchemaLoader validates the minimal shape every native UTCP manual
// document must have before we trust its tools.
var nativeManualSchemaLoader = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["utcp_version", "manual_version", "tools"],
	"properties": {
		"utcp_version": {"type": "string"},
		"manual_version": {"type": "string"},
		"tools": {"type": "array"}
	}
}`)

// Transport is the file/text communication protocol.
type Transport struct {
	fs afs.Service
}

// New creates a file/text transport backed by an afs.Service (local disk by
// default via afs.New(), but pluggable for other schemes).
func New(fs afs.Service) *Transport {
	if fs == nil {
		fs = afs.New()
	}
	return &Transport{fs: fs}
}

func (t *Transport) resolvePath(client transport.Client, filePath string) string {
	if filepath.IsAbs(filePath) {
		return filePath
	}
	return filepath.Join(client.RootDir(), filePath)
}

func (t *Transport) readFile(ctx context.Context, path string) ([]byte, error) {
	ok, err := t.fs.Exists(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("file %s does not exist", path)
	}
	data, err := t.fs.DownloadWithURL(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func decode(path string, data []byte) (map[string]interface{}, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var doc map[string]interface{}
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
	}
	return doc, nil
}

func isOpenAPI(doc map[string]interface{}) bool {
	_, hasOpenAPI := doc["openapi"]
	_, hasSwagger := doc["swagger"]
	_, hasPaths := doc["paths"]
	return hasOpenAPI || hasSwagger || hasPaths
}

// RegisterManual implements transport.Transport.
func (t *Transport) RegisterManual(ctx context.Context, client transport.Client, tmpl types.CallTemplate) (*types.RegisterManualResult, error) {
	fileTmpl, ok := tmpl.(types.FileCallTemplate)
	if !ok {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("file transport received %T", tmpl)}
	}

	result := &types.RegisterManualResult{ManualCallTemplate: tmpl, Manual: types.EmptyManual(fileTmpl.Name)}

	path := t.resolvePath(client, fileTmpl.FilePath)
	data, err := t.readFile(ctx, path)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}

	doc, err := decode(path, data)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}

	if isOpenAPI(doc) {
		manual, err := openapiconv.Convert(doc, openapiconv.Context{
			SpecURL:          path,
			CallTemplateName: fileTmpl.Name,
			AuthTools:        fileTmpl.AuthTools,
		})
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			return result, nil
		}
		result.Manual = *manual
		result.Success = true
		return result, nil
	}

	// CallTemplate is an interface with no JSON decoder of its own, so a
	// tool's declared tool_call_template is dropped before decoding and every
	// tool is bound to this template, the one its calls are dispatched through.
	if tools, ok := doc["tools"].([]interface{}); ok {
		for _, item := range tools {
			if tool, ok := item.(map[string]interface{}); ok {
				delete(tool, "tool_call_template")
			}
		}
	}
	manual, err := validateNativeManual(doc)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}
	manual.Name = fileTmpl.Name
	for i := range manual.Tools {
		manual.Tools[i].ToolCallTemplate = fileTmpl
	}
	result.Manual = *manual
	result.Success = true
	result.PreserveNames = true
	return result, nil
}

func validateNativeManual(doc map[string]interface{}) (*types.Manual, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("re-encoding manual for validation: %w", err)
	}
	documentLoader := gojsonschema.NewBytesLoader(raw)
	res, err := gojsonschema.Validate(nativeManualSchemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("validating native manual: %w", err)
	}
	if !res.Valid() {
		var msgs []string
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("native manual failed schema validation: %s", strings.Join(msgs, "; "))
	}

	var manual types.Manual
	if err := json.Unmarshal(raw, &manual); err != nil {
		return nil, fmt.Errorf("decoding native manual: %w", err)
	}
	return &manual, nil
}

// DeregisterManual is a no-op for file/text manuals (§4.5).
func (t *Transport) DeregisterManual(_ context.Context, _ transport.Client, _ types.CallTemplate) error {
	return nil
}

// CallTool returns the raw file contents as a string.
func (t *Transport) CallTool(ctx context.Context, client transport.Client, _ string, _ map[string]interface{}, tmpl types.CallTemplate) (interface{}, error) {
	fileTmpl, ok := tmpl.(types.FileCallTemplate)
	if !ok {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("file transport received %T", tmpl)}
	}
	path := t.resolvePath(client, fileTmpl.FilePath)
	data, err := t.readFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// CallToolStreaming yields the whole file as one chunk (§4.5).
func (t *Transport) CallToolStreaming(ctx context.Context, client transport.Client, toolName string, args map[string]interface{}, tmpl types.CallTemplate) (<-chan transport.StreamChunk, error) {
	return transport.SingleChunkStream(ctx, func(ctx context.Context) (interface{}, error) {
		return t.CallTool(ctx, client, toolName, args, tmpl)
	})
}

// Close releases no resources; the file transport owns none long-lived.
func (t *Transport) Close() error { return nil }

var _ transport.Transport = (*Transport)(nil)
