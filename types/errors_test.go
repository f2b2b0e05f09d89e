package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigurationErrorMessageWithAndWithoutCause(t *testing.T) {
	bare := &ConfigurationError{Reason: "unknown type"}
	assert.Equal(t, "configuration error: unknown type", bare.Error())

	wrapped := &ConfigurationError{Reason: "decode failed", Cause: errors.New("boom")}
	assert.Equal(t, "configuration error: decode failed: boom", wrapped.Error())
	assert.Equal(t, wrapped.Cause, wrapped.Unwrap())
}

func TestVariableNotFoundErrorMessage(t *testing.T) {
	err := &VariableNotFoundError{VariableName: "API_KEY"}
	assert.Equal(t, `variable "API_KEY" not found`, err.Error())
}

func TestToolNotFoundErrorMessage(t *testing.T) {
	err := &ToolNotFoundError{ToolName: "weather.forecast"}
	assert.Equal(t, `tool "weather.forecast" not found`, err.Error())
}

func TestInvalidToolNameErrorMessage(t *testing.T) {
	err := &InvalidToolNameError{ToolName: ".forecast", Reason: "missing manual prefix"}
	assert.Equal(t, "missing manual prefix", err.Error())
}

func TestUnknownServerErrorMessage(t *testing.T) {
	err := &UnknownServerError{Manual: "weather", Server: "prod"}
	assert.Equal(t, "Configuration for MCP server 'prod' not found", err.Error())
}

func TestToolCallErrorMessageWithAndWithoutCause(t *testing.T) {
	bare := &ToolCallError{ToolName: "weather.forecast", Message: "non-2xx response"}
	assert.Equal(t, `tool "weather.forecast" call failed: non-2xx response`, bare.Error())

	wrapped := &ToolCallError{ToolName: "weather.forecast", Message: "request failed", Cause: errors.New("eof")}
	assert.Equal(t, `tool "weather.forecast" call failed: request failed: eof`, wrapped.Error())
	assert.Equal(t, wrapped.Cause, wrapped.Unwrap())
}

func TestAuthErrorMessage(t *testing.T) {
	err := &AuthError{Stage: "token fetch", Cause: errors.New("401")}
	assert.Equal(t, "auth error during token fetch: 401", err.Error())
	assert.Equal(t, err.Cause, err.Unwrap())
}

func TestTransportErrorMessage(t *testing.T) {
	err := &TransportError{Kind: TransportErrorRead, Cause: errors.New("closed pipe")}
	assert.Equal(t, "transport error (read): closed pipe", err.Error())
	assert.Equal(t, err.Cause, err.Unwrap())
}

func TestIsConnectionClassClassifiesTransportErrorKinds(t *testing.T) {
	cases := []struct {
		kind TransportErrorKind
		want bool
	}{
		{TransportErrorConnect, true},
		{TransportErrorRead, true},
		{TransportErrorWrite, true},
		{TransportErrorClosed, true},
		{TransportErrorCancelled, false},
	}
	for _, tc := range cases {
		err := &TransportError{Kind: tc.kind}
		assert.Equal(t, tc.want, IsConnectionClass(err), "kind %s", tc.kind)
	}
}

func TestIsConnectionClassRejectsOtherErrorTypes(t *testing.T) {
	assert.False(t, IsConnectionClass(errors.New("plain error")))
	assert.False(t, IsConnectionClass(&ToolCallError{}))
}

func TestTimeoutErrorMessage(t *testing.T) {
	err := &TimeoutError{Operation: "tools/list", LimitMs: 5000}
	assert.Equal(t, `operation "tools/list" timed out after 5000ms`, err.Error())
}
