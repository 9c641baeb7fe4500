package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/manifest/pkg/api/middleware"
	"github.com/goclaw/manifest/pkg/api/response"
	"github.com/goclaw/manifest/pkg/auth"
	"github.com/goclaw/manifest/pkg/routing"
	"github.com/goclaw/manifest/pkg/scoring"
	"github.com/goclaw/manifest/pkg/storage"
	"github.com/goclaw/manifest/pkg/storage/memory"
)

func newResolveHandler(t *testing.T) *ResolveHandler {
	t.Helper()
	store := memory.NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, store.PutModelPricing(ctx, &storage.ModelPricing{Model: "gpt-4o-mini", Provider: "openai"}))
	require.NoError(t, store.PutTierAssignment(ctx, &storage.TierAssignment{
		AgentID: "a1", Tier: scoring.TierSimple, Model: "gpt-4o-mini",
	}))

	scorer, err := scoring.NewScorer(scoring.DefaultConfig())
	require.NoError(t, err)
	log := testLogger()
	return NewResolveHandler(routing.NewService(scorer, store, store, log), log, 0)
}

func doResolve(t *testing.T, h *ResolveHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader(body))
	req = req.WithContext(middleware.WithIdentity(req.Context(), &auth.Identity{TenantID: "t1", AgentID: "a1"}))
	w := httptest.NewRecorder()
	h.Resolve(w, req)
	return w
}

func TestResolveHandler_ReturnsDecision(t *testing.T) {
	h := newResolveHandler(t)

	w := doResolve(t, h, `{"messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp ResolveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, scoring.TierSimple, resp.Tier)
	assert.Equal(t, scoring.ReasonShortMessage, resp.Reason)
	require.NotNil(t, resp.Model)
	assert.Equal(t, "gpt-4o-mini", *resp.Model)
	require.NotNil(t, resp.Provider)
	assert.Equal(t, "openai", *resp.Provider)
	assert.Greater(t, resp.Confidence, 0.85)
}

func TestResolveHandler_UnassignedTierHasNullModel(t *testing.T) {
	h := newResolveHandler(t)

	w := doResolve(t, h, `{"messages":[{"role":"user","content":"Prove that sqrt(2) is irrational using proof by contradiction"}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, "reasoning", raw["tier"])
	assert.Equal(t, 0.95, raw["confidence"])
	assert.Nil(t, raw["model"])
	assert.Nil(t, raw["provider"])
}

func TestResolveHandler_ToolsFloorShortMessage(t *testing.T) {
	h := newResolveHandler(t)

	w := doResolve(t, h, `{"messages":[{"role":"user","content":"ok"}],"tools":[{},{},{},{},{}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ResolveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEqual(t, scoring.TierSimple, resp.Tier)
}

func TestResolveHandler_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "invalid json", body: `{`, code: response.ErrCodeBadRequest},
		{name: "missing messages", body: `{}`, code: response.ErrCodeValidationFailed},
		{name: "empty messages", body: `{"messages":[]}`, code: response.ErrCodeValidationFailed},
		{name: "unknown recent tier", body: `{"messages":[{"role":"user","content":"hi"}],"recentTiers":["huge"]}`, code: response.ErrCodeValidationFailed},
		{name: "negative max tokens", body: `{"messages":[{"role":"user","content":"hi"}],"max_tokens":-1}`, code: response.ErrCodeValidationFailed},
	}

	h := newResolveHandler(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doResolve(t, h, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			var errResp response.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
			assert.Equal(t, tt.code, errResp.Error.Code)
		})
	}
}

func TestResolveHandler_AcceptsRecentTiers(t *testing.T) {
	h := newResolveHandler(t)

	w := doResolve(t, h, `{"messages":[{"role":"user","content":"and the next one?"}],"recentTiers":["reasoning","complex"]}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
