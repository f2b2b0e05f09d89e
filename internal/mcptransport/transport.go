// Package mcptransport implements the mcp transport (§4.7): a multiplexer
// over one or more named MCP servers (stdio subprocess or streamable-HTTP),
// each reachable through a session that speaks JSON-RPC 2.0.
package mcptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/viant/utcp/internal/oauthcache"
	"github.com/viant/utcp/internal/transport"
	"github.com/viant/utcp/types"
)

type sessionKey struct {
	manual string
	server string
}

type manualState struct {
	// resources maps a qualified "<server>.<name>" tool name back to the MCP
	// resource URI it was synthesized from, for manuals registered with
	// register_resources_as_tools (§4.7, §9 open question (b)).
	resources map[string]string
}

// Transport is the mcp communication protocol. One instance multiplexes
// every manual/server pair registered through it; sessions are created
// lazily on first use and reused across calls.
type Transport struct {
	mu       sync.Mutex
	sessions map[sessionKey]session
	manuals  map[string]*manualState
	logger   *slog.Logger
	tokens   *oauthcache.Cache
}

// New creates an mcp transport. logger may be nil, defaulting to slog.Default.
func New(logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		sessions: map[sessionKey]session{},
		manuals:  map[string]*manualState{},
		logger:   logger,
		tokens:   oauthcache.New(),
	}
}

func (t *Transport) getOrCreateSession(ctx context.Context, manualName, serverName string, cfg types.McpServerConfig, auth *types.Auth) (session, error) {
	key := sessionKey{manual: manualName, server: serverName}

	t.mu.Lock()
	defer t.mu.Unlock()

	if sess, ok := t.sessions[key]; ok {
		return sess, nil
	}

	sess, err := t.dial(ctx, cfg, auth)
	if err != nil {
		return nil, err
	}
	t.sessions[key] = sess
	return sess, nil
}

func (t *Transport) dial(ctx context.Context, cfg types.McpServerConfig, auth *types.Auth) (session, error) {
	switch cfg.Transport {
	case types.McpTransportHTTP:
		bearer := ""
		if auth != nil && auth.Type == types.AuthOAuth2 {
			tok, err := t.tokens.Token(ctx, auth)
			if err != nil {
				return nil, err
			}
			bearer = tok
		}
		return newHTTPSession(ctx, cfg, cfg.Headers, bearer)
	case types.McpTransportStdio, "":
		// Outer template auth does not apply to stdio sessions: a subprocess
		// has no request headers to carry a bearer token on (§9 open question).
		return newStdioSession(ctx, cfg, t.logger)
	default:
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("unknown mcp server transport %q", cfg.Transport)}
	}
}

// dropSession removes a broken session from the pool so the next call
// reconnects; it does not itself retry.
func (t *Transport) dropSession(manualName, serverName string, broken session) {
	key := sessionKey{manual: manualName, server: serverName}
	t.mu.Lock()
	if t.sessions[key] == broken {
		delete(t.sessions, key)
	}
	t.mu.Unlock()
}

// withRecovery runs action against the pooled session for (manualName,
// serverName), retrying exactly once against a freshly dialed session if the
// first attempt fails with a connection-class TransportError (§4.7 "one-shot
// auto-recovery retry").
func (t *Transport) withRecovery(ctx context.Context, manualName, serverName string, cfg types.McpServerConfig, auth *types.Auth, action func(session) (interface{}, error)) (interface{}, error) {
	sess, err := t.getOrCreateSession(ctx, manualName, serverName, cfg, auth)
	if err != nil {
		return nil, err
	}

	result, err := action(sess)
	if err == nil {
		return result, nil
	}
	if !types.IsConnectionClass(err) {
		return nil, err
	}

	t.dropSession(manualName, serverName, sess)
	_ = sess.Close(ctx)

	sess, dialErr := t.getOrCreateSession(ctx, manualName, serverName, cfg, auth)
	if dialErr != nil {
		return nil, dialErr
	}
	return action(sess)
}

// RegisterManual connects to every server declared in the template's config,
// in sorted server-name order (the config's server map does not keep the
// declaration order), lists its tools (and optionally resources), and unions
// them into one manual. A server that fails to connect or list contributes
// an error but does not prevent the others from registering (§4.7).
func (t *Transport) RegisterManual(ctx context.Context, _ transport.Client, tmpl types.CallTemplate) (*types.RegisterManualResult, error) {
	mcpTmpl, ok := tmpl.(types.MCPCallTemplate)
	if !ok {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("mcp transport received %T", tmpl)}
	}

	result := &types.RegisterManualResult{ManualCallTemplate: tmpl, Manual: types.EmptyManual(mcpTmpl.Name)}

	serverNames := make([]string, 0, len(mcpTmpl.Config.McpServers))
	for name := range mcpTmpl.Config.McpServers {
		serverNames = append(serverNames, name)
	}
	sort.Strings(serverNames)

	state := &manualState{resources: map[string]string{}}
	var anySucceeded bool

	for _, serverName := range serverNames {
		cfg := mcpTmpl.Config.McpServers[serverName]
		auth := mcpTmpl.TemplateAuth()

		raw, err := t.withRecovery(ctx, mcpTmpl.Name, serverName, cfg, auth, func(s session) (interface{}, error) {
			return s.ListTools(ctx, cfg.Timeout())
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("server %q: %v", serverName, err))
			continue
		}
		descriptors := raw.([]toolDescriptor)

		for _, d := range descriptors {
			result.Manual.Tools = append(result.Manual.Tools, types.Tool{
				Name:             serverName + "." + d.Name,
				Description:      d.Description,
				Inputs:           dereferenceSchema(t.logger, d.InputSchema),
				Outputs:          dereferenceSchema(t.logger, d.OutputSchema),
				ToolCallTemplate: tmpl,
			})
		}
		anySucceeded = true

		if mcpTmpl.RegisterResourcesAsTools {
			rawRes, err := t.withRecovery(ctx, mcpTmpl.Name, serverName, cfg, auth, func(s session) (interface{}, error) {
				return s.ListResources(ctx, cfg.Timeout())
			})
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("server %q resources: %v", serverName, err))
			} else {
				for _, r := range rawRes.([]resourceDescriptor) {
					toolName := serverName + "." + resourceToolName(r)
					state.resources[toolName] = r.URI
					result.Manual.Tools = append(result.Manual.Tools, types.Tool{
						Name:        toolName,
						Description: r.Description,
						Inputs:      types.Schema{"type": "object", "properties": map[string]interface{}{}},
						Outputs:     types.Schema{"type": "object"},
						ToolCallTemplate: tmpl,
					})
				}
			}
		}
	}

	result.Success = anySucceeded && len(result.Errors) == 0

	t.mu.Lock()
	t.manuals[mcpTmpl.Name] = state
	t.mu.Unlock()

	return result, nil
}

// resourceToolName derives a tool-name-safe suffix for a resource: its
// declared Name when present, else a sanitized form of its URI.
func resourceToolName(r resourceDescriptor) string {
	if r.Name != "" {
		return r.Name
	}
	replacer := strings.NewReplacer("/", "_", ":", "_", "?", "_", "#", "_", "&", "_")
	return replacer.Replace(r.URI)
}

// DeregisterManual closes every session opened for this manual and forgets
// its resource bindings.
func (t *Transport) DeregisterManual(ctx context.Context, _ transport.Client, tmpl types.CallTemplate) error {
	mcpTmpl, ok := tmpl.(types.MCPCallTemplate)
	if !ok {
		return &types.ConfigurationError{Reason: fmt.Sprintf("mcp transport received %T", tmpl)}
	}

	t.mu.Lock()
	var toClose []session
	for key, sess := range t.sessions {
		if key.manual == mcpTmpl.Name {
			toClose = append(toClose, sess)
			delete(t.sessions, key)
		}
	}
	delete(t.manuals, mcpTmpl.Name)
	t.mu.Unlock()

	for _, sess := range toClose {
		_ = sess.Close(ctx)
	}
	return nil
}

// CallTool parses toolName as "<server>.<local-name>", dispatches to the
// owning session, and adapts the MCP result per §4.7's result-adaptation
// rules.
func (t *Transport) CallTool(ctx context.Context, _ transport.Client, toolName string, args map[string]interface{}, tmpl types.CallTemplate) (interface{}, error) {
	mcpTmpl, ok := tmpl.(types.MCPCallTemplate)
	if !ok {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("mcp transport received %T", tmpl)}
	}

	serverName, localName, err := splitToolName(toolName)
	if err != nil {
		return nil, err
	}

	cfg, ok := mcpTmpl.Config.McpServers[serverName]
	if !ok {
		return nil, &types.UnknownServerError{Manual: mcpTmpl.Name, Server: serverName}
	}

	t.mu.Lock()
	state := t.manuals[mcpTmpl.Name]
	t.mu.Unlock()

	var resourceURI string
	if state != nil {
		resourceURI, ok = state.resources[toolName]
	} else {
		ok = false
	}

	auth := mcpTmpl.TemplateAuth()

	var raw interface{}
	if ok {
		raw, err = t.withRecovery(ctx, mcpTmpl.Name, serverName, cfg, auth, func(s session) (interface{}, error) {
			return s.ReadResource(ctx, resourceURI, cfg.Timeout())
		})
	} else {
		raw, err = t.withRecovery(ctx, mcpTmpl.Name, serverName, cfg, auth, func(s session) (interface{}, error) {
			return s.CallTool(ctx, localName, args, cfg.Timeout())
		})
	}
	if err != nil {
		return nil, &types.ToolCallError{ToolName: toolName, Message: "mcp call failed", Cause: err}
	}

	result := raw.(*callResult)
	return adaptResult(toolName, result)
}

func splitToolName(toolName string) (server, local string, err error) {
	idx := strings.Index(toolName, ".")
	if idx <= 0 || idx == len(toolName)-1 {
		return "", "", &types.InvalidToolNameError{ToolName: toolName, Reason: fmt.Sprintf("Expected 'manualName.serverName.toolName', got %q", toolName)}
	}
	return toolName[:idx], toolName[idx+1:], nil
}

// adaptResult applies §4.7's result-adaptation rules: structured content
// wins outright; a single text item is parsed as JSON when possible, else
// returned raw; a single json item is unwrapped; anything else is returned
// as the raw content array. isError:true always surfaces as a ToolCallError.
func adaptResult(toolName string, result *callResult) (interface{}, error) {
	if result.IsError {
		return nil, &types.ToolCallError{ToolName: toolName, Message: firstText(result.Content)}
	}
	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}
	if len(result.Content) == 1 {
		item := result.Content[0]
		switch item.Type {
		case "json":
			return item.JSON, nil
		case "text":
			var parsed interface{}
			if err := json.Unmarshal([]byte(item.Text), &parsed); err == nil {
				return parsed, nil
			}
			return item.Text, nil
		}
	}
	return result.Content, nil
}

func firstText(items []contentItem) string {
	for _, item := range items {
		if item.Type == "text" && item.Text != "" {
			return item.Text
		}
	}
	return "tool reported an error"
}

// CallToolStreaming yields the single result of CallTool (§4.4 default; MCP
// has no native streaming mode in this client).
func (t *Transport) CallToolStreaming(ctx context.Context, client transport.Client, toolName string, args map[string]interface{}, tmpl types.CallTemplate) (<-chan transport.StreamChunk, error) {
	return transport.SingleChunkStream(ctx, func(ctx context.Context) (interface{}, error) {
		return t.CallTool(ctx, client, toolName, args, tmpl)
	})
}

// Close tears down every pooled session and drops all cached OAuth2 tokens.
func (t *Transport) Close() error {
	t.mu.Lock()
	sessions := t.sessions
	t.sessions = map[sessionKey]session{}
	t.manuals = map[string]*manualState{}
	t.mu.Unlock()

	ctx := context.Background()
	for _, sess := range sessions {
		_ = sess.Close(ctx)
	}
	t.tokens.Clear()
	return nil
}

var _ transport.Transport = (*Transport)(nil)
