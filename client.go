// Package utcp is the Universal Tool Calling Protocol client runtime: it
// discovers tools across file/text, OpenAPI, MCP, HTTP, and direct-call
// manuals and invokes them through one uniform API (§1, §4.9).
package utcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/viant/utcp/config"
	utcplog "github.com/viant/utcp/internal/log"
	"github.com/viant/utcp/internal/pluginregistry"
	"github.com/viant/utcp/internal/toolrepository"
	"github.com/viant/utcp/internal/transport"
	"github.com/viant/utcp/internal/variables"
	"github.com/viant/utcp/types"
)

// Client is the UTCP runtime facade: the single entry point applications use
// to register manuals, search and call tools, and shut every transport down.
type Client struct {
	rootDir  string
	resolver *variables.Resolver
	repo     *toolrepository.Repository
	registry *pluginregistry.Registry

	mu        sync.RWMutex
	templates map[string]types.CallTemplate
}

// Create builds a Client rooted at rootDir. cfg may be nil, producing a
// client with no preloaded variables, loaders, or manuals (§4.9).
func Create(ctx context.Context, rootDir string, cfg *config.Config) (*Client, error) {
	registry := pluginregistry.Global()
	registerCorePlugins(registry)

	var configVars map[string]string
	var loaders []variables.Loader
	var manualTemplates []json.RawMessage

	if cfg != nil {
		configVars = cfg.Variables
		manualTemplates = cfg.ManualCallTemplates
		for _, decl := range cfg.LoadVariablesFrom {
			loader, err := registry.BuildLoader(decl.Type, decl.Params)
			if err != nil {
				return nil, fmt.Errorf("building variable loader %q: %w", decl.Type, err)
			}
			loaders = append(loaders, loader)
		}
	}

	c := &Client{
		rootDir:   rootDir,
		resolver:  variables.New(configVars, loaders),
		repo:      toolrepository.New(),
		registry:  registry,
		templates: map[string]types.CallTemplate{},
	}

	for _, raw := range manualTemplates {
		if _, err := c.RegisterManual(ctx, raw); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// RootDir implements transport.Client.
func (c *Client) RootDir() string { return c.rootDir }

// ResolveVariables implements transport.Client.
func (c *Client) ResolveVariables(ctx context.Context, manualName string, tree interface{}) (interface{}, error) {
	return c.resolver.Resolve(ctx, manualName, tree)
}

var _ transport.Client = (*Client)(nil)

// RegisterManual decodes raw (a JSON document carrying at least `name` and
// `call_template_type`), resolves every ${KEY} placeholder it contains
// against this client's variable scope, builds the concrete CallTemplate,
// and registers it with the owning transport (§4.2, §4.9).
func (c *Client) RegisterManual(ctx context.Context, raw json.RawMessage) (*types.RegisterManualResult, error) {
	var sniff struct {
		Name             string `json:"name"`
		CallTemplateType string `json:"call_template_type"`
	}
	if err := json.Unmarshal(raw, &sniff); err != nil {
		return nil, &types.ConfigurationError{Reason: "decoding call template", Cause: err}
	}
	if sniff.Name == "" {
		return nil, &types.ConfigurationError{Reason: "call template is missing a name"}
	}
	if sniff.CallTemplateType == "" {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("call template %q is missing call_template_type", sniff.Name)}
	}

	var tree map[string]interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, &types.ConfigurationError{Reason: "decoding call template", Cause: err}
	}
	resolvedTree, err := c.resolver.Resolve(ctx, sniff.Name, tree)
	if err != nil {
		return nil, err
	}
	resolvedRaw, err := json.Marshal(resolvedTree)
	if err != nil {
		return nil, &types.ConfigurationError{Reason: "re-encoding resolved call template", Cause: err}
	}

	tmpl, err := c.registry.Deserialize(sniff.CallTemplateType, resolvedRaw)
	if err != nil {
		return nil, err
	}

	proto, ok := c.registry.Transport(sniff.CallTemplateType)
	if !ok {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("no transport registered for call_template_type %q", sniff.CallTemplateType)}
	}

	result, err := proto.RegisterManual(ctx, c, tmpl)
	if err != nil {
		return nil, err
	}

	if !result.PreserveNames {
		qualifyToolNames(result, tmpl.TemplateName())
	}

	c.repo.SaveManual(tmpl.TemplateName(), result.Manual)

	c.mu.Lock()
	c.templates[tmpl.TemplateName()] = tmpl
	c.mu.Unlock()

	utcplog.Publish(utcplog.ManualRegistered, map[string]interface{}{
		"manual":  tmpl.TemplateName(),
		"success": result.Success,
		"tools":   len(result.Manual.Tools),
	})

	return result, nil
}

// qualifyToolNames rewrites every tool's transport-local name into the
// globally unique "<manual>.<local-name>" form CallTool expects (§4.2).
func qualifyToolNames(result *types.RegisterManualResult, manualName string) {
	for i := range result.Manual.Tools {
		result.Manual.Tools[i].Name = manualName + "." + result.Manual.Tools[i].Name
	}
}

// DeregisterManual releases the transport-level resources owned by name and
// drops it (and its tools) from the repository.
func (c *Client) DeregisterManual(ctx context.Context, name string) error {
	c.mu.Lock()
	tmpl, ok := c.templates[name]
	delete(c.templates, name)
	c.mu.Unlock()
	if !ok {
		return &types.ConfigurationError{Reason: fmt.Sprintf("manual %q is not registered", name)}
	}

	proto, ok := c.registry.Transport(string(tmpl.TemplateType()))
	if !ok {
		return &types.ConfigurationError{Reason: fmt.Sprintf("no transport registered for call_template_type %q", tmpl.TemplateType())}
	}

	if err := proto.DeregisterManual(ctx, c, tmpl); err != nil {
		return err
	}
	c.repo.RemoveManual(name)
	utcplog.Publish(utcplog.ManualDeregistered, map[string]interface{}{"manual": name})
	return nil
}

// CallTool invokes the tool named qualifiedName ("<manual>.<local-name>",
// where local-name may itself contain dots, e.g. an mcp tool's
// "<server>.<tool>") with args, and returns its adapted result (§4.2, §4.9).
func (c *Client) CallTool(ctx context.Context, qualifiedName string, args map[string]interface{}) (interface{}, error) {
	_, localName, tmpl, err := c.resolveQualifiedName(qualifiedName)
	if err != nil {
		return nil, err
	}

	proto, ok := c.registry.Transport(string(tmpl.TemplateType()))
	if !ok {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("no transport registered for call_template_type %q", tmpl.TemplateType())}
	}

	callID := uuid.NewString()
	utcplog.Publish(utcplog.ToolCallStart, map[string]interface{}{"call_id": callID, "tool": qualifiedName})
	result, err := proto.CallTool(ctx, c, localName, args, tmpl)
	utcplog.Publish(utcplog.ToolCallEnd, map[string]interface{}{"call_id": callID, "tool": qualifiedName, "error": errString(err)})
	return result, err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// CallToolStreaming is the streaming counterpart of CallTool.
func (c *Client) CallToolStreaming(ctx context.Context, qualifiedName string, args map[string]interface{}) (<-chan transport.StreamChunk, error) {
	_, localName, tmpl, err := c.resolveQualifiedName(qualifiedName)
	if err != nil {
		return nil, err
	}

	proto, ok := c.registry.Transport(string(tmpl.TemplateType()))
	if !ok {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("no transport registered for call_template_type %q", tmpl.TemplateType())}
	}
	return proto.CallToolStreaming(ctx, c, localName, args, tmpl)
}

// resolveQualifiedName splits qualifiedName into its owning manual and the
// local name passed on to that manual's transport. It only verifies the
// manual itself is registered: whether localName denotes a real tool (and,
// for namespacing transports like mcp, whether it further parses and names a
// known server) is for the owning transport's CallTool to decide, so errors
// like InvalidToolNameError/UnknownServerError can surface through it (§8
// scenarios 5 and 6).
func (c *Client) resolveQualifiedName(qualifiedName string) (manualName, localName string, tmpl types.CallTemplate, err error) {
	idx := strings.Index(qualifiedName, ".")
	if idx <= 0 || idx == len(qualifiedName)-1 {
		return "", "", nil, &types.InvalidToolNameError{ToolName: qualifiedName, Reason: fmt.Sprintf("tool name %q must be of the form manual.tool", qualifiedName)}
	}
	manualName = qualifiedName[:idx]
	localName = qualifiedName[idx+1:]

	c.mu.RLock()
	tmpl, ok := c.templates[manualName]
	c.mu.RUnlock()
	if !ok {
		return "", "", nil, &types.ToolNotFoundError{ToolName: qualifiedName}
	}
	return manualName, localName, tmpl, nil
}

// SearchTools delegates to the repository's ranked substring search (§4.3).
func (c *Client) SearchTools(query string, limit int) []types.Tool {
	return c.repo.SearchTools(query, limit)
}

// GetTools returns every registered tool across every manual.
func (c *Client) GetTools() []types.Tool {
	return c.repo.GetTools()
}

// Close shuts down every transport instance the process-wide registry holds,
// releasing subprocesses, HTTP clients, and cached tokens.
func (c *Client) Close() error {
	var firstErr error
	for _, t := range c.registry.Transports() {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
