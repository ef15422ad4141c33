package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/veileder/internal/advisor"
	"github.com/hpungsan/veileder/internal/errors"
	"github.com/hpungsan/veileder/internal/intent"
	"github.com/hpungsan/veileder/internal/knowledge"
	"github.com/hpungsan/veileder/internal/session"
)

// Deps are the services behind the tools.
type Deps struct {
	Advisor  *advisor.Advisor
	Store    knowledge.Store
	Sessions *session.Store
}

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	advisor  *advisor.Advisor
	store    knowledge.Store
	sessions *session.Store
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{advisor: deps.Advisor, store: deps.Store, sessions: deps.Sessions}
}

// AskRequest represents the arguments for advisor_ask.
type AskRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// QuestionRequest represents the arguments for advisor_classify.
type QuestionRequest struct {
	Question string `json:"question"`
}

// ConversationRequest represents the arguments for advisor_state and advisor_reset.
type ConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

// CourseRequest represents the arguments for course_fetch.
type CourseRequest struct {
	Code string `json:"code"`
}

// ProgramRequest represents the arguments for program_fetch.
type ProgramRequest struct {
	Name string `json:"name"`
}

// ClassifyOutput is the advisor_classify result.
type ClassifyOutput struct {
	Entities intent.Entities `json:"entities"`
	Intent   intent.Intent   `json:"intent"`
	Rule     string          `json:"rule,omitempty"`
	Fallback bool            `json:"fallback,omitempty"`
	Notice   string          `json:"notice,omitempty"`
}

// StateOutput is the advisor_state result.
type StateOutput struct {
	ConversationID string `json:"conversation_id"`
	Known          bool   `json:"known"`
	CurrentStudy   string `json:"current_study,omitempty"`
	CurrentEmne    string `json:"current_emne,omitempty"`
}

// HandleAsk handles the advisor_ask tool call.
func (h *Handlers) HandleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AskRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	id := strings.TrimSpace(input.ConversationID)
	if id == "" {
		id = ulid.Make().String()
	}

	result, err := h.advisor.Ask(ctx, advisor.AskInput{Question: input.Question, ConversationID: id})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleClassify handles the advisor_classify tool call.
func (h *Handlers) HandleClassify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[QuestionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.Question) == "" {
		return errorResult(errors.NewInvalidRequest("question is required")), nil
	}

	entities, cls, notice := h.advisor.Classify(ctx, input.Question)
	out := ClassifyOutput{
		Entities: entities,
		Intent:   cls.Intent,
		Rule:     cls.Rule,
		Fallback: cls.Fallback,
	}
	if notice != nil {
		out.Notice = notice.Error()
	}

	return successResult(out)
}

// HandleState handles the advisor_state tool call.
func (h *Handlers) HandleState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConversationRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.ConversationID == "" {
		return errorResult(errors.NewInvalidRequest("conversation_id is required")), nil
	}

	state, ok := h.sessions.Get(input.ConversationID)
	return successResult(StateOutput{
		ConversationID: input.ConversationID,
		Known:          ok,
		CurrentStudy:   state.CurrentStudy,
		CurrentEmne:    state.CurrentEmne,
	})
}

// HandleReset handles the advisor_reset tool call.
func (h *Handlers) HandleReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConversationRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.ConversationID == "" {
		return errorResult(errors.NewInvalidRequest("conversation_id is required")), nil
	}

	h.sessions.Forget(input.ConversationID)
	return successResult(map[string]any{"conversation_id": input.ConversationID, "reset": true})
}

// HandleCourseFetch handles the course_fetch tool call.
func (h *Handlers) HandleCourseFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CourseRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.Code) == "" {
		return errorResult(errors.NewInvalidRequest("code is required")), nil
	}

	result, err := h.store.LookupCourse(ctx, input.Code)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleProgramList handles the program_list tool call.
func (h *Handlers) HandleProgramList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := h.store.ListPrograms(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	if names == nil {
		names = []string{}
	}

	return successResult(map[string]any{"programs": names, "count": len(names)})
}

// HandleProgramFetch handles the program_fetch tool call.
func (h *Handlers) HandleProgramFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProgramRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.Name) == "" {
		return errorResult(errors.NewInvalidRequest("name is required")), nil
	}

	result, err := h.store.LookupProgram(ctx, input.Name)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var aErr *errors.AdvisorError
	if stderrors.As(err, &aErr) {
		message := aErr.Message
		// Keep context added by wrappers, e.g. "load: NOT_FOUND: ...".
		if prefix := strings.TrimSuffix(err.Error(), aErr.Error()); prefix != err.Error() && prefix != "" {
			message = prefix + message
		}
		errorObj := map[string]any{
			"code":    aErr.Code,
			"message": message,
			"status":  aErr.Status,
		}
		if aErr.Code != errors.ErrInternal && aErr.Details != nil {
			errorObj["details"] = aErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
