package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goclaw/manifest/pkg/api/middleware"
	"github.com/goclaw/manifest/pkg/api/response"
	"github.com/goclaw/manifest/pkg/logger"
	"github.com/goclaw/manifest/pkg/routing"
	"github.com/goclaw/manifest/pkg/scoring"
)

// ResolveRequest is the body of POST /api/v1/resolve.
type ResolveRequest struct {
	Messages    []scoring.Message `json:"messages" validate:"required,min=1"`
	Tools       []any             `json:"tools,omitempty"`
	ToolChoice  any               `json:"tool_choice,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty" validate:"gte=0"`
	RecentTiers []string          `json:"recentTiers,omitempty" validate:"omitempty,dive,oneof=simple standard complex reasoning"`
}

// ResolveResponse is the routing decision for a request.
type ResolveResponse struct {
	Tier       scoring.Tier   `json:"tier"`
	Model      *string        `json:"model"`
	Provider   *string        `json:"provider"`
	Confidence float64        `json:"confidence"`
	Score      float64        `json:"score"`
	Reason     scoring.Reason `json:"reason"`
}

func (r *ResolveRequest) input() scoring.Input {
	in := scoring.Input{
		Messages:   r.Messages,
		Tools:      r.Tools,
		ToolChoice: r.ToolChoice,
		MaxTokens:  r.MaxTokens,
	}
	if r.RecentTiers != nil {
		in.RecentTiers = make([]scoring.Tier, 0, len(r.RecentTiers))
		for _, t := range r.RecentTiers {
			in.RecentTiers = append(in.RecentTiers, scoring.Tier(t))
		}
	}
	return in
}

// ResolveHandler scores a request and returns its routing decision
// without forwarding it.
type ResolveHandler struct {
	routing      *routing.Service
	logger       logger.Logger
	validator    *validator.Validate
	maxBodyBytes int64
}

// NewResolveHandler creates a resolve handler.
func NewResolveHandler(rs *routing.Service, log logger.Logger, maxBodyBytes int64) *ResolveHandler {
	return &ResolveHandler{
		routing:      rs,
		logger:       log,
		validator:    validator.New(),
		maxBodyBytes: maxBodyBytes,
	}
}

// Resolve handles POST /api/v1/resolve.
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := getRequestID(ctx)

	raw, err := readBody(w, r, h.maxBodyBytes)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, response.ErrCodeBadRequest, "Request body too large", requestID)
			return
		}
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", requestID)
		return
	}

	var req ResolveRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", requestID)
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		h.logger.DebugContext(ctx, "Validation failed", "error", err)
		response.ErrorWithDetails(w, http.StatusBadRequest, response.ErrCodeValidationFailed,
			"Request validation failed", validationDetails(err), requestID)
		return
	}

	agentID := ""
	if identity := middleware.IdentityFromContext(ctx); identity != nil {
		agentID = identity.AgentID
	}

	res, err := h.routing.Resolve(ctx, agentID, req.input(), nil)
	if err != nil {
		h.logger.ErrorContext(ctx, "Resolve failed", "agent_id", agentID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to resolve tier", requestID)
		return
	}

	resp := ResolveResponse{
		Tier:       res.Tier,
		Confidence: res.Confidence,
		Score:      res.Score,
		Reason:     res.Reason,
	}
	if res.Resolved() {
		resp.Model = &res.Model
		resp.Provider = &res.Provider
	}
	response.JSON(w, http.StatusOK, resp)
}

func validationDetails(err error) map[string]any {
	details := make(map[string]any)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		details["error"] = err.Error()
		return details
	}
	for _, fe := range verrs {
		details[fe.Namespace()] = fe.Tag()
	}
	return details
}
