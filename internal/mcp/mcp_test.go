package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/veileder/internal/advisor"
	"github.com/hpungsan/veileder/internal/catalog"
	"github.com/hpungsan/veileder/internal/config"
	"github.com/hpungsan/veileder/internal/db"
	"github.com/hpungsan/veileder/internal/errors"
	"github.com/hpungsan/veileder/internal/knowledge"
	"github.com/hpungsan/veileder/internal/llm"
	"github.com/hpungsan/veileder/internal/session"
)

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type replyService struct{ reply string }

func (s replyService) Complete(context.Context, llm.Tier, string, string) (string, error) {
	return s.reply, nil
}

func (s replyService) Rank(_ context.Context, _ llm.Tier, _ string, candidates []string) ([]int, error) {
	out := make([]int, len(candidates))
	for i := range out {
		out[i] = i
	}
	return out, nil
}

// testSetup creates a seeded database and the handler dependencies.
func testSetup(t *testing.T) (Deps, *config.Config) {
	t.Helper()
	ctx := context.Background()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := db.UpsertCourse(ctx, database, &catalog.CourseRecord{Code: "DAT110", Name: "Distribuerte systemer"}); err != nil {
		t.Fatalf("seed course: %v", err)
	}
	if err := db.UpsertProgram(ctx, database, &catalog.ProgramStructure{
		Name:   "Bachelor i Datavitenskap",
		Common: []catalog.CurriculumEntry{{StudyYear: 1, CourseCode: "DAT110", Mandatory: true}},
	}); err != nil {
		t.Fatalf("seed program: %v", err)
	}
	if _, err := db.InsertRuleChunk(ctx, database, &catalog.RuleChunk{
		Source: "forskrift", Content: "Ny eksamen kan tas to ganger.", Vector: []float32{1, 0},
	}); err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	store := knowledge.NewSQLiteStore(database, constEmbedder{}, time.Second)
	sessions := session.NewStore(time.Hour)
	a, err := advisor.New(store, replyService{reply: "Svar fra veilederen."}, sessions, advisor.Options{})
	if err != nil {
		t.Fatalf("advisor.New: %v", err)
	}
	t.Cleanup(a.Close)

	return Deps{Advisor: a, Store: store, Sessions: sessions}, config.DefaultConfig()
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleAsk(t *testing.T) {
	deps, _ := testSetup(t)
	h := NewHandlers(deps)
	ctx := context.Background()

	result, err := h.HandleAsk(ctx, makeRequest(map[string]any{
		"question":        "Fortell om DAT110",
		"conversation_id": "c1",
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)
	if out["answer"] != "Svar fra veilederen." {
		t.Errorf("answer = %v", out["answer"])
	}
	if out["intent"] != "specific_emne" {
		t.Errorf("intent = %v, want specific_emne", out["intent"])
	}
	if out["conversation_id"] != "c1" {
		t.Errorf("conversation_id = %v, want c1", out["conversation_id"])
	}

	state, ok := deps.Sessions.Get("c1")
	if !ok || state.CurrentEmne != "DAT110" {
		t.Errorf("session state = %+v, %v; want current course DAT110", state, ok)
	}
}

func TestHandleAsk_GeneratesConversationID(t *testing.T) {
	deps, _ := testSetup(t)
	h := NewHandlers(deps)

	result, err := h.HandleAsk(context.Background(), makeRequest(map[string]any{"question": "Hva er været i dag?"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)
	id, _ := out["conversation_id"].(string)
	if len(id) != 26 {
		t.Errorf("conversation_id = %q, want a 26-char ULID", id)
	}
	if out["answer"] != advisor.RefusalMessage {
		t.Errorf("answer = %v, want refusal", out["answer"])
	}
}

func TestHandleAsk_Invalid(t *testing.T) {
	deps, _ := testSetup(t)
	h := NewHandlers(deps)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing question", map[string]any{}},
		{"blank question", map[string]any{"question": "   "}},
		{"wrong type", map[string]any{"question": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleAsk(context.Background(), makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected error result")
			}
			assertErrorCode(t, result, "INVALID_REQUEST")
		})
	}
}

func TestHandleClassify(t *testing.T) {
	deps, _ := testSetup(t)
	h := NewHandlers(deps)

	result, err := h.HandleClassify(context.Background(), makeRequest(map[string]any{
		"question": "Hva inneholder bachelor i datavitenskap?",
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)
	if out["intent"] != "study_overview" {
		t.Errorf("intent = %v, want study_overview", out["intent"])
	}
	entities := out["entities"].(map[string]any)
	programs, _ := entities["programs"].([]any)
	if len(programs) != 1 || programs[0] != "Bachelor i Datavitenskap" {
		t.Errorf("programs = %v", entities["programs"])
	}
	if _, ok := deps.Sessions.Get(""); ok {
		t.Error("classify must not create conversation state")
	}
}

func TestHandleStateAndReset(t *testing.T) {
	deps, _ := testSetup(t)
	h := NewHandlers(deps)
	ctx := context.Background()

	if _, err := h.HandleAsk(ctx, makeRequest(map[string]any{
		"question":        "Fortell om Bachelor i Datavitenskap",
		"conversation_id": "c1",
	})); err != nil {
		t.Fatalf("HandleAsk: %v", err)
	}

	result, err := h.HandleState(ctx, makeRequest(map[string]any{"conversation_id": "c1"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)
	if out["known"] != true || out["current_study"] != "Bachelor i Datavitenskap" {
		t.Errorf("state = %v", out)
	}

	if _, err := h.HandleReset(ctx, makeRequest(map[string]any{"conversation_id": "c1"})); err != nil {
		t.Fatalf("HandleReset: %v", err)
	}
	result, _ = h.HandleState(ctx, makeRequest(map[string]any{"conversation_id": "c1"}))
	if out := parseOutput(t, result); out["known"] != false {
		t.Errorf("state after reset = %v, want unknown", out)
	}

	result, _ = h.HandleReset(ctx, makeRequest(map[string]any{}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleCourseFetch(t *testing.T) {
	deps, _ := testSetup(t)
	h := NewHandlers(deps)

	tests := []struct {
		name      string
		args      map[string]any
		errorCode string
	}{
		{"exact", map[string]any{"code": "DAT110"}, ""},
		{"lowercase", map[string]any{"code": "dat110"}, ""},
		{"unknown", map[string]any{"code": "XYZ999"}, "NOT_FOUND"},
		{"missing", map[string]any{}, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleCourseFetch(context.Background(), makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.errorCode != "" {
				assertErrorCode(t, result, tt.errorCode)
				return
			}
			out := parseOutput(t, result)
			if out["name"] != "Distribuerte systemer" {
				t.Errorf("name = %v", out["name"])
			}
		})
	}
}

func TestHandlePrograms(t *testing.T) {
	deps, _ := testSetup(t)
	h := NewHandlers(deps)
	ctx := context.Background()

	result, err := h.HandleProgramList(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)
	if out["count"] != float64(1) {
		t.Errorf("count = %v, want 1", out["count"])
	}

	result, err = h.HandleProgramFetch(ctx, makeRequest(map[string]any{"name": "BACHELOR I DATAVITENSKAP"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out = parseOutput(t, result)
	common, _ := out["common"].([]any)
	if len(common) != 1 {
		t.Errorf("common = %v, want one entry", out["common"])
	}

	result, _ = h.HandleProgramFetch(ctx, makeRequest(map[string]any{"name": "Sykepleie"}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestServerRegistration(t *testing.T) {
	deps, cfg := testSetup(t)

	s := NewServer(deps, cfg, "test")
	tools := s.ListTools()

	expected := []string{
		"advisor_ask",
		"advisor_classify",
		"advisor_state",
		"advisor_reset",
		"course_fetch",
		"program_list",
		"program_fetch",
	}
	if len(tools) != len(expected) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expected))
	}
	for _, name := range expected {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabled(t *testing.T) {
	deps, cfg := testSetup(t)

	cfg.DisabledTools = []string{"advisor_reset", "advisor_reset"}
	cfg.DisabledTypes = []string{"program"}
	tools := NewServer(deps, cfg, "test").ListTools()

	if len(tools) != 4 {
		t.Errorf("registered tool count = %d, want 4", len(tools))
	}
	for _, name := range []string{"advisor_reset", "program_list", "program_fetch"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}

	cfg.DisabledTools = AllToolNames()
	if n := len(NewServer(deps, cfg, "test").ListTools()); n != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", n)
	}
}

func TestValidateDisabled(t *testing.T) {
	if unknown := ValidateDisabledTools([]string{"course_fetch", "course_delete"}); len(unknown) != 1 {
		t.Errorf("ValidateDisabledTools unknown = %v, want [course_delete]", unknown)
	}
	if unknown := ValidateDisabledTypes([]string{"advisor", "semester"}); len(unknown) != 1 {
		t.Errorf("ValidateDisabledTypes unknown = %v, want [semester]", unknown)
	}
	if got := GetTypeForTool("program_fetch"); got != "program" {
		t.Errorf("GetTypeForTool = %q, want program", got)
	}
	if got := GetTypeForTool("noprefix"); got != "" {
		t.Errorf("GetTypeForTool = %q, want empty", got)
	}
	if unknown := ValidateDisabledTools(AllToolNames()); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	errObj := errorObject(t, r)

	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	r := errorResult(fmt.Errorf("lookup: %w", errors.NewNotFound("course", "XYZ999")))
	errObj := errorObject(t, r)

	if errObj["code"] != string(errors.ErrNotFound) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if msg := errObj["message"].(string); msg != "lookup: course not found: XYZ999" {
		t.Errorf("message = %q", msg)
	}
	if _, ok := errObj["details"]; !ok {
		t.Error("expected non-INTERNAL errors to include details when present")
	}
}

func TestErrorResult_PlainError(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom")))
	if errObj["code"] != string(errors.ErrInternal) || errObj["message"] != "an internal error occurred" {
		t.Errorf("error = %v", errObj)
	}
}

// Helper functions

func errorObject(t *testing.T, r *mcp.CallToolResult) map[string]any {
	t.Helper()
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	return payload["error"].(map[string]any)
}

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()
	if code, _ := errorObject(t, result)["code"].(string); code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}
