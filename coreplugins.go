package utcp

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/viant/utcp/internal/mcptransport"
	"github.com/viant/utcp/internal/pluginregistry"
	"github.com/viant/utcp/internal/transport"
	"github.com/viant/utcp/internal/transport/direct"
	"github.com/viant/utcp/internal/transport/filetransport"
	"github.com/viant/utcp/internal/transport/httptransport"
	"github.com/viant/utcp/internal/variables"
	"github.com/viant/utcp/types"
)

// registerCorePlugins wires the baseline transports (file/text, http, mcp,
// direct-call) and their CallTemplate deserializers into registry, plus the
// env_file and scy_secret variable-loader factories (§4.1). "file" and
// "text" share one file transport instance.
func registerCorePlugins(registry *pluginregistry.Registry) {
	registry.EnsureCoreInitialized(func(r *pluginregistry.Registry) {
		mustRegisterTemplate(r, types.CallTemplateFile, decodeFileCallTemplate)
		mustRegisterTemplate(r, types.CallTemplateText, decodeFileCallTemplate)
		mustRegisterTemplate(r, types.CallTemplateHTTP, decodeHTTPCallTemplate)
		mustRegisterTemplate(r, types.CallTemplateMCP, decodeMCPCallTemplate)
		mustRegisterTemplate(r, types.CallTemplateDirectCall, decodeDirectCallTemplate)

		directTransport := direct.New()
		directTransport.Activate()

		fileTransport := filetransport.New(nil)
		mustRegisterTransport(r, types.CallTemplateFile, fileTransport)
		mustRegisterTransport(r, types.CallTemplateText, fileTransport)
		mustRegisterTransport(r, types.CallTemplateHTTP, httptransport.New(nil))
		mustRegisterTransport(r, types.CallTemplateMCP, mcptransport.New(slog.Default()))
		mustRegisterTransport(r, types.CallTemplateDirectCall, directTransport)

		mustRegisterLoaderFactory(r, "env_file", variables.NewEnvFileLoaderFactory(nil))
		mustRegisterLoaderFactory(r, "scy_secret", secretLoaderFactory)
	})
}

func mustRegisterTemplate(r *pluginregistry.Registry, typeTag types.CallTemplateType, fn pluginregistry.CallTemplateDeserializer) {
	if err := r.RegisterCallTemplate(string(typeTag), fn, false); err != nil {
		panic(err)
	}
}

func mustRegisterTransport(r *pluginregistry.Registry, typeTag types.CallTemplateType, t transport.Transport) {
	if err := r.RegisterTransport(string(typeTag), t, false); err != nil {
		panic(err)
	}
}

func mustRegisterLoaderFactory(r *pluginregistry.Registry, typeTag string, fn variables.LoaderFactory) {
	if err := r.RegisterLoaderFactory(typeTag, fn, false); err != nil {
		panic(err)
	}
}

func decodeFileCallTemplate(raw json.RawMessage) (types.CallTemplate, error) {
	var t types.FileCallTemplate
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return t, nil
}

func decodeHTTPCallTemplate(raw json.RawMessage) (types.CallTemplate, error) {
	var t types.HTTPCallTemplate
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return t, nil
}

func decodeMCPCallTemplate(raw json.RawMessage) (types.CallTemplate, error) {
	var t types.MCPCallTemplate
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return t, nil
}

func decodeDirectCallTemplate(raw json.RawMessage) (types.CallTemplate, error) {
	var t types.DirectCallTemplate
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return t, nil
}

// secretLoaderFactory builds a variables.SecretLoader from a urls map
// declared in the loader's params, e.g. {"type":"scy_secret","urls":
// {"OPENAI_API_KEY":"secret://keyring/openai"}}.
func secretLoaderFactory(raw map[string]interface{}) (variables.Loader, error) {
	urlsRaw, _ := raw["urls"].(map[string]interface{})
	urls := make(map[string]string, len(urlsRaw))
	for k, v := range urlsRaw {
		urls[k] = fmt.Sprintf("%v", v)
	}
	return variables.NewSecretLoader(func(key string) (string, bool) {
		url, ok := urls[key]
		return url, ok
	}), nil
}
