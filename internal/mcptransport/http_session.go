package mcptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/viant/utcp/types"
)

// httpSession is a streamable-HTTP MCP session: a persistent http.Client
// POSTing JSON-RPC request frames to one URL (§4.7, §6 "HTTP MCP servers").
// Requests are serialized per session via requestMu, matching §5's FIFO
// lock requirement so request IDs stay consistent across this one
// connection.
type httpSession struct {
	url        string
	headers    map[string]string
	bearer     string
	httpClient *http.Client

	requestMu sync.Mutex
	closed    bool

	sessionID string // Mcp-Session-Id, assigned by the server on initialize
}

func newHTTPSession(ctx context.Context, cfg types.McpServerConfig, headers map[string]string, bearer string) (*httpSession, error) {
	s := &httpSession{
		url:     cfg.URL,
		headers: headers,
		bearer:  bearer,
		httpClient: &http.Client{
			Timeout: cfg.SSEReadTimeout(),
		},
	}
	if err := s.initialize(ctx, cfg.Timeout()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *httpSession) do(ctx context.Context, req rpcRequest, timeout time.Duration) (rpcResponse, error) {
	s.requestMu.Lock()
	defer s.requestMu.Unlock()

	if s.closed {
		return rpcResponse{}, &types.TransportError{Kind: types.TransportErrorClosed, Cause: fmt.Errorf("session closed")}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return rpcResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return rpcResponse{}, &types.TransportError{Kind: types.TransportErrorConnect, Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range s.headers {
		httpReq.Header.Set(k, v)
	}
	if s.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.bearer)
	}
	if s.sessionID != "" {
		httpReq.Header.Set("Mcp-Session-Id", s.sessionID)
	}

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return rpcResponse{}, &types.TimeoutError{Operation: req.Method, LimitMs: timeout.Milliseconds()}
		}
		return rpcResponse{}, &types.TransportError{Kind: types.TransportErrorConnect, Cause: err}
	}
	defer httpResp.Body.Close()

	if sid := httpResp.Header.Get("Mcp-Session-Id"); sid != "" {
		s.sessionID = sid
	}

	if httpResp.StatusCode >= 500 {
		return rpcResponse{}, &types.TransportError{Kind: types.TransportErrorRead, Cause: fmt.Errorf("mcp server status %d", httpResp.StatusCode)}
	}

	var resp rpcResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return rpcResponse{}, &types.TransportError{Kind: types.TransportErrorRead, Cause: err}
	}
	return resp, nil
}

func (s *httpSession) initialize(ctx context.Context, timeout time.Duration) error {
	req := newRequest("initialize", map[string]interface{}{
		"protocolVersion": "2025-06-18",
		"capabilities":    map[string]interface{}{},
		"clientInfo":      map[string]interface{}{"name": "utcp", "version": "1.0.0"},
	})
	if _, err := s.do(ctx, req, timeout); err != nil {
		return fmt.Errorf("mcp initialize: %w", err)
	}
	return nil
}

func (s *httpSession) ListTools(ctx context.Context, timeout time.Duration) ([]toolDescriptor, error) {
	var tools []toolDescriptor
	cursor := ""
	for {
		params := map[string]interface{}{}
		if cursor != "" {
			params["cursor"] = cursor
		}
		resp, err := s.do(ctx, newRequest("tools/list", params), timeout)
		if err != nil {
			return nil, err
		}
		var page struct {
			Tools      []toolDescriptor `json:"tools"`
			NextCursor string           `json:"nextCursor"`
		}
		if err := decodeResult(resp, &page); err != nil {
			return nil, err
		}
		tools = append(tools, page.Tools...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return tools, nil
}

func (s *httpSession) ListResources(ctx context.Context, timeout time.Duration) ([]resourceDescriptor, error) {
	resp, err := s.do(ctx, newRequest("resources/list", map[string]interface{}{}), timeout)
	if err != nil {
		return nil, err
	}
	var page struct {
		Resources []resourceDescriptor `json:"resources"`
	}
	if err := decodeResult(resp, &page); err != nil {
		return nil, err
	}
	return page.Resources, nil
}

func (s *httpSession) CallTool(ctx context.Context, name string, args map[string]interface{}, timeout time.Duration) (*callResult, error) {
	resp, err := s.do(ctx, newRequest("tools/call", map[string]interface{}{"name": name, "arguments": args}), timeout)
	if err != nil {
		return nil, err
	}
	var result callResult
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *httpSession) ReadResource(ctx context.Context, uri string, timeout time.Duration) (*callResult, error) {
	resp, err := s.do(ctx, newRequest("resources/read", map[string]interface{}{"uri": uri}), timeout)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Contents []contentItem `json:"contents"`
	}
	if err := decodeResult(resp, &raw); err != nil {
		return nil, err
	}
	return &callResult{Content: raw.Contents}, nil
}

// Close marks the session closed, so later requests on it fail with a closed
// TransportError. It sends no session-termination request to the server,
// whatever the server's terminate_on_close setting is; idle http.Client
// connections are left to Go's transport pool.
func (s *httpSession) Close(_ context.Context) error {
	s.requestMu.Lock()
	s.closed = true
	s.requestMu.Unlock()
	return nil
}

var _ session = (*httpSession)(nil)
