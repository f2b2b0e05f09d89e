package filetransport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/utcp/types"
)

type fakeClient struct {
	rootDir string
}

func (f fakeClient) RootDir() string { return f.rootDir }
func (f fakeClient) ResolveVariables(_ context.Context, _ string, tree interface{}) (interface{}, error) {
	return tree, nil
}

const nativeManualJSON = `{
	"utcp_version": "1.0.1",
	"manual_version": "1.0.0",
	"tools": [
		{"name": "ping", "description": "health check", "inputs": {"type": "object", "properties": {}}}
	]
}`

const openAPIDocJSON = `{
	"openapi": "3.0.0",
	"info": {"title": "demo", "version": "1.0"},
	"servers": [{"url": "https://api.example.com"}],
	"paths": {
		"/widgets/{id}": {
			"get": {
				"operationId": "getWidget",
				"parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}],
				"responses": {"200": {"description": "ok"}}
			}
		}
	}
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegisterManualNativeManual(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "manual.json", nativeManualJSON)

	tr := New(nil)
	tmpl := types.FileCallTemplate{
		Common:   types.Common{Name: "local_tools", CallTemplateType: types.CallTemplateFile},
		FilePath: "manual.json",
	}

	result, err := tr.RegisterManual(context.Background(), fakeClient{rootDir: dir}, tmpl)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Manual.Tools, 1)
	assert.Equal(t, "ping", result.Manual.Tools[0].Name)
	assert.True(t, result.PreserveNames, "native manuals must tell the client not to re-qualify their tool names")
}

func TestRegisterManualNativeManualPreservesDeclaredToolName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "m.json", `{"utcp_version":"1.0.1","manual_version":"1.0.0","tools":[{"name":"m.echo","description":"","tool_call_template":{"name":"m","call_template_type":"file","file_path":"./m.json"}}]}`)

	tr := New(nil)
	tmpl := types.FileCallTemplate{
		Common:   types.Common{Name: "m", CallTemplateType: types.CallTemplateFile},
		FilePath: "m.json",
	}

	result, err := tr.RegisterManual(context.Background(), fakeClient{rootDir: dir}, tmpl)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Manual.Tools, 1)
	assert.Equal(t, "m.echo", result.Manual.Tools[0].Name)
	assert.True(t, result.PreserveNames)
}

func TestRegisterManualOpenAPIDocument(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "openapi.json", openAPIDocJSON)

	tr := New(nil)
	tmpl := types.FileCallTemplate{
		Common:   types.Common{Name: "widgets_api", CallTemplateType: types.CallTemplateFile},
		FilePath: "openapi.json",
	}

	result, err := tr.RegisterManual(context.Background(), fakeClient{rootDir: dir}, tmpl)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Manual.Tools, 1)
	assert.Equal(t, "getWidget", result.Manual.Tools[0].Name)
	assert.False(t, result.PreserveNames, "OpenAPI-derived manuals must still be qualified by the client")
}

func TestRegisterManualMissingFileProducesErrorsNotFailure(t *testing.T) {
	dir := t.TempDir()
	tr := New(nil)
	tmpl := types.FileCallTemplate{
		Common:   types.Common{Name: "missing", CallTemplateType: types.CallTemplateFile},
		FilePath: "does-not-exist.json",
	}

	result, err := tr.RegisterManual(context.Background(), fakeClient{rootDir: dir}, tmpl)
	require.NoError(t, err, "I/O failures populate Errors rather than returning an error")
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
}

func TestRegisterManualInvalidNativeManualSchema(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.json", `{"tools": "not-an-array"}`)

	tr := New(nil)
	tmpl := types.FileCallTemplate{
		Common:   types.Common{Name: "bad", CallTemplateType: types.CallTemplateFile},
		FilePath: "bad.json",
	}

	result, err := tr.RegisterManual(context.Background(), fakeClient{rootDir: dir}, tmpl)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
}

func TestCallToolReturnsFileContents(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "data.txt", "hello world")

	tr := New(nil)
	tmpl := types.FileCallTemplate{
		Common:   types.Common{Name: "local_tools", CallTemplateType: types.CallTemplateFile},
		FilePath: "data.txt",
	}

	out, err := tr.CallTool(context.Background(), fakeClient{rootDir: dir}, "local_tools", nil, tmpl)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestRegisterManualWrongTemplateType(t *testing.T) {
	tr := New(nil)
	_, err := tr.RegisterManual(context.Background(), fakeClient{}, types.HTTPCallTemplate{})
	assert.Error(t, err)
}
