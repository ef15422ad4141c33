package mcp

import "github.com/mark3labs/mcp-go/mcp"

var askToolDef = mcp.NewTool("advisor_ask",
	mcp.WithDescription("Ask the study advisor a question in Norwegian. Returns the answer together with the detected intent, entities and retrieval decisions."),
	mcp.WithString("question", mcp.Required(), mcp.Description("The student's question")),
	mcp.WithString("conversation_id", mcp.Description("Conversation to continue. A new id is generated and returned when omitted.")),
)

var classifyToolDef = mcp.NewTool("advisor_classify",
	mcp.WithDescription("Extract course codes and program names from a question and classify its intent, without answering it."),
	mcp.WithString("question", mcp.Required(), mcp.Description("The question to classify")),
)

var stateToolDef = mcp.NewTool("advisor_state",
	mcp.WithDescription("Show the remembered study program and course of a conversation."),
	mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation id")),
)

var resetToolDef = mcp.NewTool("advisor_reset",
	mcp.WithDescription("Forget the remembered state of a conversation."),
	mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation id")),
)

var courseFetchToolDef = mcp.NewTool("course_fetch",
	mcp.WithDescription("Fetch a course description by course code, e.g. DAT110."),
	mcp.WithString("code", mcp.Required(), mcp.Description("Course code")),
)

var programListToolDef = mcp.NewTool("program_list",
	mcp.WithDescription("List the names of all known study programs."),
)

var programFetchToolDef = mcp.NewTool("program_fetch",
	mcp.WithDescription("Fetch the curriculum structure of a study program by name."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Program name, matched case-insensitively")),
)
