// Package provider forwards chat-completion requests to upstream LLM APIs.
//
// Most providers speak the OpenAI chat-completions wire format and receive
// the caller's body with only model and stream rewritten. Google Gemini uses
// its own format and is converted in both directions.
package provider

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Format is an upstream wire format.
type Format string

const (
	FormatOpenAI Format = "openai"
	FormatGoogle Format = "google"
)

// Endpoint describes how to reach one provider.
type Endpoint struct {
	Key     string
	BaseURL string
	Path    string
	Format  Format
	// NoAuth endpoints are sent without an Authorization header.
	NoAuth bool
}

var defaultEndpoints = map[string]Endpoint{
	"openai":     {BaseURL: "https://api.openai.com", Path: "/v1/chat/completions", Format: FormatOpenAI},
	"anthropic":  {BaseURL: "https://api.anthropic.com", Path: "/v1/chat/completions", Format: FormatOpenAI},
	"deepseek":   {BaseURL: "https://api.deepseek.com", Path: "/v1/chat/completions", Format: FormatOpenAI},
	"mistral":    {BaseURL: "https://api.mistral.ai", Path: "/v1/chat/completions", Format: FormatOpenAI},
	"xai":        {BaseURL: "https://api.x.ai", Path: "/v1/chat/completions", Format: FormatOpenAI},
	"groq":       {BaseURL: "https://api.groq.com", Path: "/openai/v1/chat/completions", Format: FormatOpenAI},
	"openrouter": {BaseURL: "https://openrouter.ai", Path: "/api/v1/chat/completions", Format: FormatOpenAI},
	"togetherai": {BaseURL: "https://api.together.xyz", Path: "/v1/chat/completions", Format: FormatOpenAI},
	"ollama":     {BaseURL: "http://localhost:11434", Path: "/v1/chat/completions", Format: FormatOpenAI, NoAuth: true},
	"google":     {BaseURL: "https://generativelanguage.googleapis.com", Path: "/v1beta/models", Format: FormatGoogle},
}

var aliases = map[string]string{
	"gemini":   "google",
	"grok":     "xai",
	"claude":   "anthropic",
	"together": "togetherai",
}

// UnknownProviderError is returned for providers without an endpoint.
type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q", e.Provider)
}

// ResolveEndpointKey lower-cases provider and resolves aliases.
func ResolveEndpointKey(provider string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(provider))
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	if _, ok := defaultEndpoints[key]; !ok {
		return "", &UnknownProviderError{Provider: provider}
	}
	return key, nil
}

// Registry holds the endpoint table with any configured base URL overrides.
type Registry struct {
	endpoints map[string]Endpoint
}

// NewRegistry builds a registry. Override keys may be aliases.
func NewRegistry(baseURLs map[string]string) (*Registry, error) {
	endpoints := make(map[string]Endpoint, len(defaultEndpoints))
	for key, ep := range defaultEndpoints {
		ep.Key = key
		endpoints[key] = ep
	}

	for provider, raw := range baseURLs {
		key, err := ResolveEndpointKey(provider)
		if err != nil {
			return nil, err
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid base url %q for provider %s", raw, provider)
		}
		ep := endpoints[key]
		ep.BaseURL = strings.TrimRight(raw, "/")
		endpoints[key] = ep
	}

	return &Registry{endpoints: endpoints}, nil
}

// Lookup returns the endpoint for provider.
func (r *Registry) Lookup(provider string) (Endpoint, error) {
	key, err := ResolveEndpointKey(provider)
	if err != nil {
		return Endpoint{}, err
	}
	return r.endpoints[key], nil
}

// Providers returns the canonical provider keys, sorted.
func (r *Registry) Providers() []string {
	keys := make([]string, 0, len(r.endpoints))
	for k := range r.endpoints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// URL returns the request URL. Google carries the key and the SSE switch in
// the query string.
func (e Endpoint) URL(model, apiKey string, stream bool) string {
	if e.Format != FormatGoogle {
		return e.BaseURL + e.Path
	}

	method := "generateContent"
	query := "key=" + url.QueryEscape(apiKey)
	if stream {
		method = "streamGenerateContent"
		query += "&alt=sse"
	}
	return fmt.Sprintf("%s%s/%s:%s?%s", e.BaseURL, e.Path, url.PathEscape(model), method, query)
}
