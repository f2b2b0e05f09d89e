package mcptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/utcp/types"
)

// decodeMethod reads the request's method off the wire shape without
// depending on package-internal types from the test's perspective
// (this test lives inside the package, so it could use rpcRequest directly,
// but decoding into a map keeps the fake server honest about what's
// actually on the wire).
func decodeMethod(t *testing.T, r *http.Request) string {
	t.Helper()
	var req map[string]interface{}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	method, _ := req["method"].(string)
	return method
}

func writeRPCResult(w http.ResponseWriter, result interface{}) {
	data, _ := json.Marshal(result)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + string(data) + `}`))
}

func TestHTTPSessionInitializeSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := decodeMethod(t, r)
		assert.Equal(t, "initialize", method)
		writeRPCResult(w, map[string]interface{}{})
	}))
	defer srv.Close()

	cfg := types.McpServerConfig{Transport: types.McpTransportHTTP, URL: srv.URL}
	sess, err := newHTTPSession(context.Background(), cfg, nil, "")
	require.NoError(t, err)
	defer sess.Close(context.Background())
}

func TestHTTPSessionCapturesSessionIDHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Mcp-Session-Id", "sess-123")
		writeRPCResult(w, map[string]interface{}{})
	}))
	defer srv.Close()

	cfg := types.McpServerConfig{Transport: types.McpTransportHTTP, URL: srv.URL}
	sess, err := newHTTPSession(context.Background(), cfg, nil, "")
	require.NoError(t, err)
	defer sess.Close(context.Background())
	assert.Equal(t, "sess-123", sess.sessionID)
}

func TestHTTPSessionListToolsPaginatesByCursor(t *testing.T) {
	call := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)
		method, _ := req["method"].(string)
		if method == "initialize" {
			writeRPCResult(w, map[string]interface{}{})
			return
		}
		call++
		if call == 1 {
			writeRPCResult(w, map[string]interface{}{
				"tools":      []map[string]interface{}{{"name": "first"}},
				"nextCursor": "page2",
			})
			return
		}
		writeRPCResult(w, map[string]interface{}{
			"tools": []map[string]interface{}{{"name": "second"}},
		})
	}))
	defer srv.Close()

	cfg := types.McpServerConfig{Transport: types.McpTransportHTTP, URL: srv.URL}
	sess, err := newHTTPSession(context.Background(), cfg, nil, "")
	require.NoError(t, err)
	defer sess.Close(context.Background())

	tools, err := sess.ListTools(context.Background(), 5*time.Second)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "first", tools[0].Name)
	assert.Equal(t, "second", tools[1].Name)
}

func TestHTTPSessionAppliesBearerAndCustomHeaders(t *testing.T) {
	var gotAuth, gotCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCustom = r.Header.Get("X-Custom")
		writeRPCResult(w, map[string]interface{}{})
	}))
	defer srv.Close()

	cfg := types.McpServerConfig{Transport: types.McpTransportHTTP, URL: srv.URL}
	sess, err := newHTTPSession(context.Background(), cfg, map[string]string{"X-Custom": "yes"}, "tok-abc")
	require.NoError(t, err)
	defer sess.Close(context.Background())

	assert.Equal(t, "Bearer tok-abc", gotAuth)
	assert.Equal(t, "yes", gotCustom)
}

func TestHTTPSessionClosedSessionRejectsFurtherCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeRPCResult(w, map[string]interface{}{})
	}))
	defer srv.Close()

	cfg := types.McpServerConfig{Transport: types.McpTransportHTTP, URL: srv.URL}
	sess, err := newHTTPSession(context.Background(), cfg, nil, "")
	require.NoError(t, err)
	require.NoError(t, sess.Close(context.Background()))

	_, err = sess.ListTools(context.Background(), 5*time.Second)
	require.Error(t, err)
	var transportErr *types.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, types.TransportErrorClosed, transportErr.Kind)
}

func TestHTTPSessionServerErrorStatusSurfacesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)
		method, _ := req["method"].(string)
		if method == "initialize" {
			writeRPCResult(w, map[string]interface{}{})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := types.McpServerConfig{Transport: types.McpTransportHTTP, URL: srv.URL}
	sess, err := newHTTPSession(context.Background(), cfg, nil, "")
	require.NoError(t, err)
	defer sess.Close(context.Background())

	_, err = sess.ListTools(context.Background(), 5*time.Second)
	require.Error(t, err)
	var transportErr *types.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, types.TransportErrorRead, transportErr.Kind)
}
