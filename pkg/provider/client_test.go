package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/goclaw/manifest/pkg/logger"
	"github.com/goclaw/manifest/pkg/version"
)

type capturedRequest struct {
	path   string
	query  string
	header http.Header
	body   []byte
}

func newUpstream(t *testing.T, status int, respBody string) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	captured := make(chan capturedRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured <- capturedRequest{path: r.URL.Path, query: r.URL.RawQuery, header: r.Header.Clone(), body: body}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, respBody)
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func newTestClient(t *testing.T, overrides map[string]string, opts ...ClientOption) *Client {
	t.Helper()
	reg, err := NewRegistry(overrides)
	require.NoError(t, err)
	return NewClient(reg, logger.New(&logger.Config{Level: logger.ErrorLevel, Output: "discard"}), opts...)
}

func TestClient_ForwardOpenAICompatible(t *testing.T) {
	srv, captured := newUpstream(t, http.StatusOK, `{"id":"x","usage":{"prompt_tokens":5,"completion_tokens":7}}`)
	c := newTestClient(t, map[string]string{"openai": srv.URL})

	res, err := c.Forward(context.Background(), ForwardRequest{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		APIKey:   "sk-test",
		Body:     []byte(`{"model":"auto","messages":[{"role":"user","content":"hi"}],"temperature":0.2}`),
		Stream:   false,
	})
	require.NoError(t, err)

	req := <-captured
	assert.Equal(t, "/v1/chat/completions", req.path)
	assert.Equal(t, "Bearer sk-test", req.header.Get("Authorization"))
	assert.Equal(t, version.UserAgent(), req.header.Get("User-Agent"))
	assert.Equal(t, "gpt-4o-mini", gjson.GetBytes(req.body, "model").String())
	assert.False(t, gjson.GetBytes(req.body, "stream").Bool())
	assert.True(t, gjson.GetBytes(req.body, "stream").Exists())
	assert.Equal(t, 0.2, gjson.GetBytes(req.body, "temperature").Float())

	body, err := res.ReadBody()
	require.NoError(t, err)
	usage, ok := ExtractUsage(body)
	require.True(t, ok)
	assert.Equal(t, TokenUsage{InputTokens: 5, OutputTokens: 7}, usage)
}

func TestClient_OllamaSendsNoAuthorization(t *testing.T) {
	srv, captured := newUpstream(t, http.StatusOK, `{}`)
	c := newTestClient(t, map[string]string{"ollama": srv.URL})

	res, err := c.Forward(context.Background(), ForwardRequest{
		Provider: "ollama", Model: "llama3", APIKey: "", Body: []byte(`{"messages":[]}`), Stream: true,
	})
	require.NoError(t, err)
	defer res.Response.Body.Close()

	req := <-captured
	assert.Empty(t, req.header.Get("Authorization"))
	assert.True(t, gjson.GetBytes(req.body, "stream").Bool())
}

func TestClient_ForwardGoogle(t *testing.T) {
	srv, captured := newUpstream(t, http.StatusOK,
		`{"candidates":[{"content":{"parts":[{"text":"Bonjour"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":1,"totalTokenCount":3}}`)
	c := newTestClient(t, map[string]string{"google": srv.URL})

	res, err := c.Forward(context.Background(), ForwardRequest{
		Provider: "gemini",
		Model:    "gemini-2.0-flash",
		APIKey:   "g-key",
		Body:     []byte(`{"messages":[{"role":"system","content":"French only"},{"role":"user","content":"Hello"}],"max_tokens":64}`),
	})
	require.NoError(t, err)
	assert.True(t, res.IsGoogle())

	req := <-captured
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", req.path)
	assert.Equal(t, "key=g-key", req.query)
	assert.Empty(t, req.header.Get("Authorization"))
	assert.Equal(t, "French only", gjson.GetBytes(req.body, "systemInstruction.parts.0.text").String())
	assert.Equal(t, "Hello", gjson.GetBytes(req.body, "contents.0.parts.0.text").String())
	assert.Equal(t, int64(64), gjson.GetBytes(req.body, "generationConfig.maxOutputTokens").Int())

	body, err := res.ReadBody()
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", gjson.GetBytes(body, "choices.0.message.content").String())
	assert.Equal(t, int64(3), gjson.GetBytes(body, "usage.total_tokens").Int())
}

func TestClient_GoogleStreamQuery(t *testing.T) {
	srv, captured := newUpstream(t, http.StatusOK, "")
	c := newTestClient(t, map[string]string{"google": srv.URL})

	res, err := c.Forward(context.Background(), ForwardRequest{
		Provider: "google", Model: "gemini-pro", APIKey: "k", Body: []byte(`{"messages":[]}`), Stream: true,
	})
	require.NoError(t, err)
	defer res.Response.Body.Close()

	req := <-captured
	assert.Equal(t, "/v1beta/models/gemini-pro:streamGenerateContent", req.path)
	assert.Equal(t, "key=k&alt=sse", req.query)
}

func TestClient_UpstreamErrorPassesThrough(t *testing.T) {
	srv, _ := newUpstream(t, http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`)
	c := newTestClient(t, map[string]string{"google": srv.URL})

	res, err := c.Forward(context.Background(), ForwardRequest{
		Provider: "google", Model: "gemini-pro", APIKey: "k", Body: []byte(`{"messages":[]}`),
	})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, http.StatusTooManyRequests, res.Response.StatusCode)

	body, err := res.ReadBody()
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":{"message":"slow down"}}`, string(body))
}

func TestClient_ReadBodyRejectsOversizedResponse(t *testing.T) {
	srv, _ := newUpstream(t, http.StatusOK, `{"id":"x","choices":[{"message":{"content":"0123456789"}}]}`)
	c := newTestClient(t, map[string]string{"openai": srv.URL}, WithMaxResponseSize(16))

	res, err := c.Forward(context.Background(), ForwardRequest{Provider: "openai", Model: "m", Body: []byte(`{}`)})
	require.NoError(t, err)

	body, err := res.ReadBody()
	assert.Nil(t, body)
	var tooLarge *ResponseTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, "openai", tooLarge.Provider)
	assert.Equal(t, int64(16), tooLarge.Limit)
}

func TestClient_ReadBodyAtLimit(t *testing.T) {
	payload := `{"id":"exactly"}`
	srv, _ := newUpstream(t, http.StatusOK, payload)
	c := newTestClient(t, map[string]string{"openai": srv.URL}, WithMaxResponseSize(int64(len(payload))))

	res, err := c.Forward(context.Background(), ForwardRequest{Provider: "openai", Model: "m", Body: []byte(`{}`)})
	require.NoError(t, err)

	body, err := res.ReadBody()
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))
}

func TestClient_UnknownProvider(t *testing.T) {
	c := newTestClient(t, nil)
	_, err := c.Forward(context.Background(), ForwardRequest{Provider: "acme", Body: []byte(`{}`)})
	var unknown *UnknownProviderError
	assert.True(t, errors.As(err, &unknown))
}

func TestClient_InvalidGoogleBody(t *testing.T) {
	c := newTestClient(t, nil)
	_, err := c.Forward(context.Background(), ForwardRequest{Provider: "google", Body: []byte(`{`)})
	assert.Error(t, err)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, map[string]string{"openai": srv.URL}, WithTimeout(50*time.Millisecond))
	start := time.Now()
	_, err := c.Forward(context.Background(), ForwardRequest{Provider: "openai", Model: "m", Body: []byte(`{}`)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, map[string]string{"openai": srv.URL})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := c.Forward(ctx, ForwardRequest{Provider: "openai", Model: "m", Body: []byte(`{}`)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReleasingBody_ReleasesOnce(t *testing.T) {
	calls := 0
	b := &releasingBody{ReadCloser: io.NopCloser(nil), release: func() { calls++ }}
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, 1, calls)
}
