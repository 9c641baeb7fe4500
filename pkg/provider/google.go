package provider

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// ToGoogleRequest converts a decoded OpenAI chat-completions body.
func ToGoogleRequest(body map[string]any) *GoogleRequest {
	req := &GoogleRequest{Contents: []GoogleContent{}}

	messages, _ := body["messages"].([]any)
	var system []string
	toolNames := make(map[string]string)

	for _, raw := range messages {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		role, _ := msg["role"].(string)

		switch role {
		case "system", "developer":
			if s, ok := msg["content"].(string); ok {
				system = append(system, s)
			}

		case "tool":
			id, _ := msg["tool_call_id"].(string)
			name := toolNames[id]
			if name == "" {
				name, _ = msg["name"].(string)
			}
			part := GooglePart{FunctionResponse: &GoogleFunctionResponse{
				Name:     name,
				Response: map[string]any{"content": msg["content"]},
			}}
			// Consecutive tool results share one user turn.
			if n := len(req.Contents); n > 0 && req.Contents[n-1].Role == "user" && isFunctionResponseTurn(req.Contents[n-1]) {
				req.Contents[n-1].Parts = append(req.Contents[n-1].Parts, part)
				continue
			}
			req.Contents = append(req.Contents, GoogleContent{Role: "user", Parts: []GooglePart{part}})

		default:
			googleRole := "user"
			if role == "assistant" {
				googleRole = "model"
			}
			parts := contentParts(msg["content"])
			if calls, ok := msg["tool_calls"].([]any); ok {
				for _, c := range calls {
					call, ok := c.(map[string]any)
					if !ok {
						continue
					}
					fn, _ := call["function"].(map[string]any)
					name, _ := fn["name"].(string)
					if id, ok := call["id"].(string); ok && id != "" {
						toolNames[id] = name
					}
					parts = append(parts, GooglePart{FunctionCall: &GoogleFunctionCall{
						Name: name,
						Args: parseArguments(fn["arguments"]),
					}})
				}
			}
			if len(parts) == 0 {
				continue
			}
			req.Contents = append(req.Contents, GoogleContent{Role: googleRole, Parts: parts})
		}
	}

	if len(system) > 0 {
		req.SystemInstruction = &GoogleContent{Parts: []GooglePart{{Text: strings.Join(system, "\n")}}}
	}

	if tools, ok := body["tools"].([]any); ok {
		var decls []map[string]any
		for _, t := range tools {
			tool, ok := t.(map[string]any)
			if !ok {
				continue
			}
			fn, ok := tool["function"].(map[string]any)
			if !ok {
				continue
			}
			decl := make(map[string]any, 3)
			for _, k := range []string{"name", "description", "parameters"} {
				if v, ok := fn[k]; ok {
					decl[k] = v
				}
			}
			decls = append(decls, decl)
		}
		if len(decls) > 0 {
			req.Tools = []GoogleTool{{FunctionDeclarations: decls}}
		}
	}

	gen := make(map[string]any, 3)
	for from, to := range map[string]string{
		"max_tokens":  "maxOutputTokens",
		"temperature": "temperature",
		"top_p":       "topP",
	} {
		if v, ok := body[from]; ok && v != nil {
			gen[to] = v
		}
	}
	if len(gen) > 0 {
		req.GenerationConfig = gen
	}

	return req
}

func isFunctionResponseTurn(c GoogleContent) bool {
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return len(c.Parts) > 0
}

// contentParts keeps string content and the text blocks of array content.
func contentParts(content any) []GooglePart {
	switch c := content.(type) {
	case string:
		if c == "" {
			return nil
		}
		return []GooglePart{{Text: c}}
	case []any:
		var parts []GooglePart
		for _, block := range c {
			b, ok := block.(map[string]any)
			if !ok || b["type"] != "text" {
				continue
			}
			if s, ok := b["text"].(string); ok && s != "" {
				parts = append(parts, GooglePart{Text: s})
			}
		}
		return parts
	default:
		return nil
	}
}

func parseArguments(v any) map[string]any {
	switch a := v.(type) {
	case map[string]any:
		return a
	case string:
		args := make(map[string]any)
		if err := json.Unmarshal([]byte(a), &args); err != nil {
			return map[string]any{}
		}
		return args
	default:
		return map[string]any{}
	}
}

// FromGoogleResponse converts a Gemini response into a chat.completion.
func FromGoogleResponse(resp *GoogleResponse, model string) *ChatCompletion {
	msg := ChatMessage{Role: "assistant"}
	finish := "stop"

	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		var text strings.Builder
		for i, p := range cand.Content.Parts {
			if p.Text != "" {
				text.WriteString(p.Text)
			}
			if p.FunctionCall != nil {
				args, err := json.Marshal(p.FunctionCall.Args)
				if err != nil || p.FunctionCall.Args == nil {
					args = []byte("{}")
				}
				msg.ToolCalls = append(msg.ToolCalls, ToolCall{
					ID:   fmt.Sprintf("call_%d", i),
					Type: "function",
					Function: ToolFunction{
						Name:      p.FunctionCall.Name,
						Arguments: string(args),
					},
				})
			}
		}
		if text.Len() > 0 || len(msg.ToolCalls) == 0 {
			s := text.String()
			msg.Content = &s
		}
		finish = mapFinishReason(cand.FinishReason)
	} else {
		empty := ""
		msg.Content = &empty
	}

	out := &ChatCompletion{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChatChoice{{Index: 0, Message: msg, FinishReason: finish}},
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = &ChatUsage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	return out
}

// ConvertGoogleResponse converts a raw Gemini response body.
func ConvertGoogleResponse(body []byte, model string) ([]byte, error) {
	var resp GoogleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode google response: %w", err)
	}
	return json.Marshal(FromGoogleResponse(&resp, model))
}

func mapFinishReason(reason string) string {
	switch reason {
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION":
		return "content_filter"
	default:
		return "stop"
	}
}

// GoogleStreamConverter turns Gemini SSE lines into chat.completion.chunk
// lines. One converter serves one stream so every chunk shares an id.
type GoogleStreamConverter struct {
	ID      string
	Model   string
	Created int64
}

// NewGoogleStreamConverter creates a converter for one stream.
func NewGoogleStreamConverter(model string) *GoogleStreamConverter {
	return &GoogleStreamConverter{
		ID:      "chatcmpl-" + uuid.NewString(),
		Model:   model,
		Created: time.Now().Unix(),
	}
}

// ConvertGoogleStreamChunk converts every data line of fragment. Lines that
// are blank, invalid, or carry no text produce nothing.
func (c *GoogleStreamConverter) ConvertGoogleStreamChunk(fragment string) string {
	var out strings.Builder
	for _, line := range strings.Split(fragment, "\n") {
		out.WriteString(c.convertLine(line))
	}
	return out.String()
}

func (c *GoogleStreamConverter) convertLine(line string) string {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return ""
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "" || !gjson.Valid(data) {
		return ""
	}

	cand := gjson.Get(data, "candidates.0")
	if !cand.Exists() {
		return ""
	}
	var text strings.Builder
	for _, p := range cand.Get("content.parts").Array() {
		text.WriteString(p.Get("text").String())
	}
	if text.Len() == 0 {
		return ""
	}

	choice := ChunkChoice{Index: 0, Delta: ChunkDelta{Role: "assistant", Content: text.String()}}
	if fr := cand.Get("finishReason"); fr.Exists() {
		mapped := mapFinishReason(fr.String())
		choice.FinishReason = &mapped
	}
	chunk := ChatCompletionChunk{
		ID:      c.ID,
		Object:  "chat.completion.chunk",
		Created: c.Created,
		Model:   c.Model,
		Choices: []ChunkChoice{choice},
	}
	b, err := json.Marshal(chunk)
	if err != nil {
		return ""
	}
	return "data: " + string(b) + "\n\n"
}
