package mcptransport

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/viant/jsonrpc"
)

// rpcRequest is the client→server JSON-RPC 2.0 envelope, newline-delimited
// on stdio transports and POSTed as a body on streamable-HTTP transports.
type rpcRequest struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      jsonrpc.RequestId   `json:"id"`
	Method  string              `json:"method"`
	Params  interface{}         `json:"params,omitempty"`
}

// rpcResponse is the server→client envelope. Error uses viant/jsonrpc's
// wire-compatible Error shape (§4.7, grounded on the teacher's
// adapter/mcp/client.go use of jsonrpc.NewInternalError/jsonrpc.Error).
type rpcResponse struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      jsonrpc.RequestId `json:"id"`
	Result  json.RawMessage   `json:"result,omitempty"`
	Error   *jsonrpc.Error    `json:"error,omitempty"`
}

// rpcNotification is a server→client envelope with no id.
type rpcNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

var requestIDCounter uint64

func nextRequestID() jsonrpc.RequestId {
	return jsonrpc.RequestId(atomic.AddUint64(&requestIDCounter, 1))
}

func newRequest(method string, params interface{}) rpcRequest {
	return rpcRequest{JSONRPC: "2.0", ID: nextRequestID(), Method: method, Params: params}
}

// decodeResult unmarshals a response's raw result into out, surfacing the
// server's error (if any) as a ToolCallError-friendly message.
func decodeResult(resp rpcResponse, out interface{}) error {
	if resp.Error != nil {
		return fmt.Errorf("mcp error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}
