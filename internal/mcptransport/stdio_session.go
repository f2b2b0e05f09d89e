package mcptransport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/viant/jsonrpc"
	"github.com/viant/utcp/types"
)

// stdioSession owns one subprocess speaking newline-delimited JSON-RPC 2.0
// over its stdin/stdout (§4.7 "For stdio: spawn command args ... pipe
// stdin/stdout"). Stderr is captured for diagnostics only, never parsed
// (§6).
type stdioSession struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	logger *slog.Logger

	writeMu sync.Mutex // one writer at a time on stdin

	mu      sync.Mutex
	pending map[jsonrpc.RequestId]chan rpcResponse
	closed  bool
}

func newStdioSession(ctx context.Context, cfg types.McpServerConfig, logger *slog.Logger) (*stdioSession, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	if cfg.Cwd != "" {
		cmd.Dir = cfg.Cwd
	}
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &types.TransportError{Kind: types.TransportErrorConnect, Cause: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &types.TransportError{Kind: types.TransportErrorConnect, Cause: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &types.TransportError{Kind: types.TransportErrorConnect, Cause: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &types.TransportError{Kind: types.TransportErrorConnect, Cause: err}
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	s := &stdioSession{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  scanner,
		logger:  logger,
		pending: map[jsonrpc.RequestId]chan rpcResponse{},
	}

	go s.drainStderr(stderr)
	go s.readLoop()

	if err := s.initialize(ctx); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *stdioSession) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug("mcp stdio stderr", "line", scanner.Text())
	}
}

func (s *stdioSession) readLoop() {
	for s.stdout.Scan() {
		line := s.stdout.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			s.logger.Warn("mcp stdio: malformed frame", "error", err)
			continue
		}
		if resp.ID == 0 {
			continue // notification; MCP notifications are not acted on here
		}
		s.mu.Lock()
		ch, ok := s.pending[resp.ID]
		if ok {
			delete(s.pending, resp.ID)
		}
		s.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
	// Stdout closed: subprocess exited. Fail every outstanding request.
	s.mu.Lock()
	for id, ch := range s.pending {
		delete(s.pending, id)
		ch <- rpcResponse{Error: jsonrpc.NewInternalError("mcp subprocess exited", nil)}
	}
	s.closed = true
	s.mu.Unlock()
}

func (s *stdioSession) send(ctx context.Context, method string, params interface{}, timeout time.Duration) (rpcResponse, error) {
	req := newRequest(method, params)
	ch := make(chan rpcResponse, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return rpcResponse{}, &types.TransportError{Kind: types.TransportErrorClosed, Cause: fmt.Errorf("session closed")}
	}
	s.pending[req.ID] = ch
	s.mu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		return rpcResponse{}, err
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	_, writeErr := s.stdin.Write(data)
	s.writeMu.Unlock()
	if writeErr != nil {
		return rpcResponse{}, &types.TransportError{Kind: types.TransportErrorWrite, Cause: writeErr}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	select {
	case resp := <-ch:
		return resp, nil
	case <-deadline.C:
		s.mu.Lock()
		delete(s.pending, req.ID)
		s.mu.Unlock()
		return rpcResponse{}, &types.TimeoutError{Operation: method, LimitMs: timeout.Milliseconds()}
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, req.ID)
		s.mu.Unlock()
		return rpcResponse{}, &types.TransportError{Kind: types.TransportErrorCancelled, Cause: ctx.Err()}
	}
}

func (s *stdioSession) initialize(ctx context.Context) error {
	params := map[string]interface{}{
		"protocolVersion": "2025-06-18",
		"capabilities":    map[string]interface{}{},
		"clientInfo":      map[string]interface{}{"name": "utcp", "version": "1.0.0"},
	}
	if _, err := s.send(ctx, "initialize", params, 30*time.Second); err != nil {
		return fmt.Errorf("mcp initialize: %w", err)
	}
	note := rpcNotification{JSONRPC: "2.0", Method: "notifications/initialized"}
	data, err := json.Marshal(note)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	s.writeMu.Lock()
	_, err = s.stdin.Write(data)
	s.writeMu.Unlock()
	return err
}

func (s *stdioSession) ListTools(ctx context.Context, timeout time.Duration) ([]toolDescriptor, error) {
	var tools []toolDescriptor
	var cursor string
	for {
		params := map[string]interface{}{}
		if cursor != "" {
			params["cursor"] = cursor
		}
		resp, err := s.send(ctx, "tools/list", params, timeout)
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

func (s *stdioSession) ListResources(ctx context.Context, timeout time.Duration) ([]resourceDescriptor, error) {
	resp, err := s.send(ctx, "resources/list", map[string]interface{}{}, timeout)
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

func (s *stdioSession) CallTool(ctx context.Context, name string, args map[string]interface{}, timeout time.Duration) (*callResult, error) {
	params := map[string]interface{}{"name": name, "arguments": args}
	resp, err := s.send(ctx, "tools/call", params, timeout)
	if err != nil {
		return nil, err
	}
	var result callResult
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *stdioSession) ReadResource(ctx context.Context, uri string, timeout time.Duration) (*callResult, error) {
	resp, err := s.send(ctx, "resources/read", map[string]interface{}{"uri": uri}, timeout)
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

// Close shuts the session down per §4.7 "Close": closing stdin is the
// best-effort MCP shutdown, then SIGTERM, escalating to SIGKILL after 2s.
func (s *stdioSession) Close(ctx context.Context) error {
	s.mu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	s.mu.Unlock()
	if alreadyClosed {
		return nil
	}

	_ = s.stdin.Close()
	if s.cmd.Process == nil {
		return nil
	}
	_ = s.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(2 * time.Second):
		_ = s.cmd.Process.Kill()
		<-done
		return nil
	}
}

var _ session = (*stdioSession)(nil)
