// Package httptransport implements the http transport (§4.4 baseline
// entries, §4.6): it issues one HTTP request per CallTool invocation against
// an HTTPCallTemplate, the shape both hand-authored templates and the
// OpenAPI converter (§4.6) produce.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/viant/utcp/internal/oauthcache"
	"github.com/viant/utcp/internal/transport"
	"github.com/viant/utcp/types"
)

// Transport is the http communication protocol.
type Transport struct {
	client *http.Client
	tokens *oauthcache.Cache
}

// New creates an http transport. client may be nil, defaulting to
// http.DefaultClient.
func New(client *http.Client) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &Transport{client: client, tokens: oauthcache.New()}
}

// RegisterManual validates the template; an http manual has exactly one
// tool, itself, named after the template (§4.4's baseline http entry is
// normally reached only through hand-authored templates, since the OpenAPI
// converter synthesizes one HTTPCallTemplate per tool rather than per
// manual).
func (t *Transport) RegisterManual(_ context.Context, _ transport.Client, tmpl types.CallTemplate) (*types.RegisterManualResult, error) {
	httpTmpl, ok := tmpl.(types.HTTPCallTemplate)
	if !ok {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("http transport received %T", tmpl)}
	}

	manual := types.EmptyManual(httpTmpl.Name)
	manual.ManualVersion = "1.0.0"
	manual.Tools = []types.Tool{{
		Name:             httpTmpl.Name,
		Description:      fmt.Sprintf("%s %s", httpTmpl.HTTPMethod, httpTmpl.URL),
		ToolCallTemplate: tmpl,
	}}

	return &types.RegisterManualResult{ManualCallTemplate: tmpl, Manual: manual, Success: true}, nil
}

// DeregisterManual is a no-op; the transport owns no per-manual resources.
func (t *Transport) DeregisterManual(_ context.Context, _ transport.Client, _ types.CallTemplate) error {
	return nil
}

// CallTool builds and issues one HTTP request from tmpl and args, per §4.6's
// parameter placement rules: path_fields substitute into "{name}" URL
// segments, header_fields route named args to headers, the body_field (if
// set) supplies the request body verbatim, and everything else is appended
// as query parameters.
func (t *Transport) CallTool(ctx context.Context, _ transport.Client, _ string, args map[string]interface{}, tmpl types.CallTemplate) (interface{}, error) {
	httpTmpl, ok := tmpl.(types.HTTPCallTemplate)
	if !ok {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("http transport received %T", tmpl)}
	}

	method := httpTmpl.HTTPMethod
	if method == "" {
		method = http.MethodGet
	}

	headerSet := map[string]bool{}
	for _, h := range httpTmpl.HeaderFields {
		headerSet[h] = true
	}
	pathSet := map[string]bool{}
	for _, p := range httpTmpl.PathFields {
		pathSet[p] = true
	}

	rawURL := httpTmpl.URL
	for name := range pathSet {
		if value, ok := args[name]; ok {
			rawURL = strings.ReplaceAll(rawURL, "{"+name+"}", url.PathEscape(fmt.Sprintf("%v", value)))
		}
	}

	reqURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("invalid url %q", rawURL), Cause: err}
	}

	var body io.Reader
	query := reqURL.Query()
	extraHeaders := map[string]string{}

	if httpTmpl.BodyField != "" {
		if raw, ok := args[httpTmpl.BodyField]; ok {
			data, err := json.Marshal(raw)
			if err != nil {
				return nil, fmt.Errorf("encoding body field %q: %w", httpTmpl.BodyField, err)
			}
			body = bytes.NewReader(data)
		}
	}

	for name, value := range args {
		if name == httpTmpl.BodyField || pathSet[name] {
			continue
		}
		if headerSet[name] {
			extraHeaders[name] = fmt.Sprintf("%v", value)
			continue
		}
		query.Set(name, fmt.Sprintf("%v", value))
	}
	reqURL.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, &types.TransportError{Kind: types.TransportErrorConnect, Cause: err}
	}

	contentType := httpTmpl.ContentType
	if contentType == "" && body != nil {
		contentType = "application/json"
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range httpTmpl.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range extraHeaders {
		httpReq.Header.Set(k, v)
	}

	if err := t.applyAuth(ctx, httpReq, httpTmpl.TemplateAuth()); err != nil {
		return nil, err
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &types.TransportError{Kind: types.TransportErrorConnect, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.TransportError{Kind: types.TransportErrorRead, Cause: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &types.ToolCallError{
			ToolName: httpTmpl.Name,
			Message:  fmt.Sprintf("http %d", resp.StatusCode),
			Cause:    fmt.Errorf("%s", strings.TrimSpace(string(data))),
		}
	}

	return decodeBody(resp.Header.Get("Content-Type"), data), nil
}

// applyAuth attaches api_key, basic, or oauth2 credentials to req per §3's
// Auth variants. api_key may target a header, a query parameter, or a
// cookie.
func (t *Transport) applyAuth(ctx context.Context, req *http.Request, auth *types.Auth) error {
	if auth == nil {
		return nil
	}
	switch auth.Type {
	case types.AuthAPIKey:
		switch auth.Location {
		case types.APIKeyLocationQuery:
			q := req.URL.Query()
			q.Set(auth.VarName, auth.APIKey)
			req.URL.RawQuery = q.Encode()
		case types.APIKeyLocationCookie:
			req.AddCookie(&http.Cookie{Name: auth.VarName, Value: auth.APIKey})
		default:
			req.Header.Set(auth.VarName, auth.APIKey)
		}
	case types.AuthBasic:
		req.SetBasicAuth(auth.Username, auth.Password)
	case types.AuthOAuth2:
		token, err := t.tokens.Token(ctx, auth)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func decodeBody(contentType string, data []byte) interface{} {
	if strings.Contains(contentType, "json") || json.Valid(data) {
		var parsed interface{}
		if err := json.Unmarshal(data, &parsed); err == nil {
			return parsed
		}
	}
	return string(data)
}

// CallToolStreaming yields the single result of CallTool (§4.4 default).
func (t *Transport) CallToolStreaming(ctx context.Context, client transport.Client, toolName string, args map[string]interface{}, tmpl types.CallTemplate) (<-chan transport.StreamChunk, error) {
	return transport.SingleChunkStream(ctx, func(ctx context.Context) (interface{}, error) {
		return t.CallTool(ctx, client, toolName, args, tmpl)
	})
}

// Close drops every cached OAuth2 token; the transport owns no long-lived
// connections beyond the pooled http.Client, which Go's runtime reclaims itself.
func (t *Transport) Close() error {
	t.tokens.Clear()
	return nil
}

var _ transport.Transport = (*Transport)(nil)
