// Package router decides which task handler serves a user message: explicit
// slash commands first, LLM intent classification second, with a fixed
// clarification menu when neither produces a confident answer.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/datasmith-ai/datasmith/internal/llm"
	"github.com/datasmith-ai/datasmith/internal/modules"
	"github.com/datasmith-ai/datasmith/internal/stats"
	"github.com/datasmith-ai/datasmith/internal/structured"
)

// State is the terminal state of one routing pass.
type State string

const (
	StateDispatched State = "dispatched"
	StateClarify    State = "clarify"
	StateDirectChat State = "direct_chat"
)

// Outcome is the result of routing and running one request. Task is only
// set when a summarize or code handler actually ran.
type Outcome struct {
	State    State
	Task     modules.Task
	Response string
}

// Fixed menu responses. These are stable textual contracts for callers.
const (
	FileMenu = "I received your file. What would you like me to do?\n" +
		"• **Summarize** the content\n" +
		"• **Explain** it\n" +
		"• Just **chat** about it"

	ClarifyMenu = "What would you like me to do?\n" +
		"• **Summarize**\n" +
		"• **Explain**\n" +
		"• **Analyze sentiment**"
)

// commandTable maps explicit command prefixes to tasks. Order matters:
// longer prefixes come first so "/code_analysis" is not swallowed by
// "/code".
var commandTable = []struct {
	prefix string
	task   modules.Task
}{
	{"/code_analysis", modules.TaskCode},
	{"/code", modules.TaskCode},
	{"/analyze", modules.TaskCode},
	{"/summarize", modules.TaskSummarize},
	{"/summary", modules.TaskSummarize},
	{"/tldr", modules.TaskSummarize},
}

// DefaultConfidenceThreshold gates acting on a classified intent without
// asking the user to clarify.
const DefaultConfidenceThreshold = 0.7

var intentSchema = llm.MustSchema(`{
	"type": "object",
	"properties": {
		"intent": {"type": "string", "enum": ["summarize", "explain", "code", "sentiment", "chat", "clarify"]},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["intent", "confidence"]
}`)

type intentResult struct {
	Intent     string   `json:"intent"`
	Confidence *float64 `json:"confidence"`
}

type Router struct {
	llm       llm.Client
	handlers  *modules.Handlers
	threshold float64
}

func New(client llm.Client, handlers *modules.Handlers, threshold float64) *Router {
	if threshold == 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &Router{llm: client, handlers: handlers, threshold: threshold}
}

// Route runs the full decision pass for one request. message is the raw user
// text, content the extracted file/transcript text (may be empty), hasFile
// whether the caller attached a file. Explicit commands always win over
// classification.
func (r *Router) Route(ctx context.Context, st *stats.TokenStats, message, content string, hasFile bool) Outcome {
	message = strings.TrimSpace(message)

	// A file with no instruction gets the menu without spending an LLM call.
	if message == "" && hasFile {
		return Outcome{State: StateClarify, Response: FileMenu}
	}

	if task, remainder, ok := parseCommand(message); ok {
		return r.dispatchCommand(ctx, st, task, remainder, content)
	}

	intent, confidence, err := r.classifyIntent(ctx, st, message, content)
	if err != nil {
		// Classification failures are silent: degrade to chat.
		slog.DebugContext(ctx, "intent classification failed, defaulting to chat", "error", err)
		return r.directChat(ctx, st, message, content)
	}
	slog.DebugContext(ctx, "classified intent", "intent", intent, "confidence", confidence)

	if confidence < r.threshold {
		return Outcome{State: StateClarify, Response: ClarifyMenu}
	}

	body := content
	if body == "" {
		body = message
	}

	switch intent {
	case "summarize":
		return Outcome{
			State:    StateDispatched,
			Task:     modules.TaskSummarize,
			Response: r.handlers.Summarize.Run(ctx, st, body),
		}
	case "explain", "code":
		return Outcome{
			State:    StateDispatched,
			Task:     modules.TaskCode,
			Response: r.handlers.Code.Run(ctx, st, body),
		}
	case "sentiment":
		return Outcome{
			State:    StateDispatched,
			Response: r.handlers.Sentiment.Run(ctx, st, body),
		}
	case "clarify":
		return Outcome{State: StateClarify, Response: ClarifyMenu}
	default:
		return r.directChat(ctx, st, message, content)
	}
}

func (r *Router) dispatchCommand(ctx context.Context, st *stats.TokenStats, task modules.Task, remainder, content string) Outcome {
	body := remainder
	if body == "" {
		body = content
	}

	switch task {
	case modules.TaskSummarize:
		if body == "" {
			return Outcome{
				State:    StateDispatched,
				Task:     task,
				Response: "Please provide text to summarize after the `/summarize` command.",
			}
		}
		return Outcome{State: StateDispatched, Task: task, Response: r.handlers.Summarize.Run(ctx, st, body)}
	default:
		if body == "" {
			return Outcome{
				State:    StateDispatched,
				Task:     task,
				Response: "Please provide code to analyze after the `/code_analysis` command.",
			}
		}
		return Outcome{State: StateDispatched, Task: task, Response: r.handlers.Code.Run(ctx, st, body)}
	}
}

func (r *Router) directChat(ctx context.Context, st *stats.TokenStats, message, content string) Outcome {
	return Outcome{
		State:    StateDirectChat,
		Response: r.handlers.Chat.Run(ctx, st, message, content),
	}
}

// parseCommand matches an explicit command prefix, case-insensitively, and
// returns the mapped task plus the message with the command stripped.
func parseCommand(message string) (modules.Task, string, bool) {
	lower := strings.ToLower(message)
	for _, cmd := range commandTable {
		if strings.HasPrefix(lower, cmd.prefix) {
			remainder := strings.TrimSpace(message[len(cmd.prefix):])
			return cmd.task, remainder, true
		}
	}
	return "", message, false
}

func (r *Router) classifyIntent(ctx context.Context, st *stats.TokenStats, message, content string) (string, float64, error) {
	system := `Classify intent. Return JSON: {"intent": "summarize"|"explain"|"sentiment"|"chat"|"clarify", "confidence": 0.0-1.0}`
	user := fmt.Sprintf("User: %s\nContent: %s", message, modules.Clip(content, modules.ClassifyPrefixLen))

	text, err := modules.CallLLM(ctx, r.llm, st, "classify_intent",
		[]llm.Message{llm.System(system), llm.User(user)}, intentSchema)
	if err != nil {
		return "", 0, err
	}

	var res intentResult
	if err := structured.Unmarshal(text, &res); err != nil {
		return "", 0, err
	}
	if res.Intent == "" || res.Confidence == nil {
		return "", 0, fmt.Errorf("intent response missing required fields")
	}
	return res.Intent, *res.Confidence, nil
}
