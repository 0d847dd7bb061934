// Package core provides a reusable agent loop that manages conversation state
// and orchestrates LLM interactions. It serves as the runtime for all agent types:
// subagents, the TUI, and custom agents.
package core

import (
	"context"
	"sync"

	"github.com/agentrt/core/internal/client"
	contextmgr "github.com/agentrt/core/internal/context"
	"github.com/agentrt/core/internal/hooks"
	"github.com/agentrt/core/internal/message"
	"github.com/agentrt/core/internal/permission"
	"github.com/agentrt/core/internal/pipeline"
	"github.com/agentrt/core/internal/system"
	"github.com/agentrt/core/internal/tool"
)

const defaultMaxTurns = 50

// RunOptions controls the synchronous Run() loop.
type RunOptions struct {
	MaxTurns    int
	Focus       string // optional compaction focus hint
	OnResponse  func(resp *message.CompletionResponse)
	OnToolStart func(tc message.ToolCall) bool
	OnToolDone  func(tc message.ToolCall, outcome pipeline.Outcome)
}

// Result is returned by Loop.Run() upon completion.
type Result struct {
	Content    string
	Messages   []message.Message
	Turns      int
	Tokens     client.TokenUsage
	StopReason string // "end_turn", "max_turns", "cancelled"
}

// --- Loop ---

// Loop is a reusable agent runtime that manages conversation state
// and orchestrates LLM interactions. It supports two execution models:
//
//	Synchronous: loop.Run(ctx, opts) — drives the full turn loop
//	Incremental: loop.Stream()/Collect()/AddResponse() — for event-driven callers
//
// Tool dispatch is delegated entirely to internal/pipeline: the loop itself
// never inspects permission or hook state, it only supplies the
// collaborators a Pipeline needs and appends whatever message the Pipeline's
// Outcome reduces to.
type Loop struct {
	System   *system.System
	Client   *client.Client
	Tool     *tool.Set     // advertised tool schemas for the provider
	Registry *tool.Registry // tool lookup for dispatch; nil uses the package-level default registry

	Permission permission.Checker
	Hooks      *hooks.Engine
	Confirm    pipeline.ConfirmationHandler

	SessionID      string
	TranscriptPath string
	PermissionMode string

	// Context, when set, owns the message list and enables automatic
	// compaction per §4.7's trigger check. A nil Context degrades to a
	// plain in-memory slice with no compaction — the shape simple/test
	// callers and one-shot subagent runs use.
	Context *contextmgr.Manager

	// messages backs Messages()/AddUser()/etc. when Context is nil.
	messages []message.Message
}

// --- High-level: synchronous agent loop ---

// Run drives the full conversation loop: stream -> response -> tools -> repeat.
// Stops on end_turn, max turns, or context cancellation. Per §4.1 step 6, it
// checks the token budget after each turn's tool dispatch and triggers
// compaction when the Context Manager reports it's needed.
func (l *Loop) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}

	for turn := 0; turn < maxTurns; turn++ {
		select {
		case <-ctx.Done():
			return l.buildResult("cancelled", turn), ctx.Err()
		default:
		}

		// 1. Stream + collect response
		resp, err := Collect(ctx, l.Stream(ctx))
		if err != nil {
			return nil, err
		}

		// 2. Process response
		calls := l.AddResponse(ctx, resp)
		if opts.OnResponse != nil {
			opts.OnResponse(resp)
		}

		// 3. No tool calls -> done
		if len(calls) == 0 {
			r := l.buildResult("end_turn", turn+1)
			r.Content = resp.Content
			return r, nil
		}

		// 4. Dispatch each tool call through the pipeline. Per §4.1/§5, tool
		// calls with no declared dependency run concurrently; the default
		// scheduling policy is unlimited concurrency for read-only tools and
		// one at a time for mutating tools (a size-1 semaphore serializes
		// them relative to each other, while read-only calls never wait on
		// it). Regardless of completion order, results are re-inserted by
		// original tool_calls index before anything is appended (S3).
		select {
		case <-ctx.Done():
			return l.buildResult("cancelled", turn+1), ctx.Err()
		default:
		}

		outcomes := l.dispatchToolCalls(ctx, calls, opts.OnToolStart)
		for i, tc := range calls {
			o := outcomes[i]
			if o == nil {
				continue // OnToolStart declined this call
			}
			l.appendMessage(ctx, o.ToMessage())
			if opts.OnToolDone != nil {
				opts.OnToolDone(tc, *o)
			}
		}

		// 5. Check token budget; compact if the Context Manager says so.
		if l.Context != nil && l.Context.NeedsCompaction(ctx) {
			l.Context.Compact(ctx, l.cwd(), opts.Focus)
		}
	}

	return l.buildResult("max_turns", maxTurns), nil
}

// dispatchToolCalls runs one turn's tool calls through the pipeline,
// concurrently for read-only calls and serialized (one at a time, in
// dispatch order) for mutating calls, then returns outcomes indexed by each
// call's position in the original tool_calls list. A nil entry means
// onToolStart declined that call; it carries no outcome to append.
func (l *Loop) dispatchToolCalls(ctx context.Context, calls []message.ToolCall, onToolStart func(message.ToolCall) bool) []*pipeline.Outcome {
	p := l.pipeline()
	outcomes := make([]*pipeline.Outcome, len(calls))

	var wg sync.WaitGroup
	mutatingSlot := make(chan struct{}, 1)

	for i, tc := range calls {
		if onToolStart != nil && !onToolStart(tc) {
			continue
		}

		readOnly := l.isReadOnlyTool(tc.Name)

		wg.Add(1)
		go func(i int, tc message.ToolCall, readOnly bool) {
			defer wg.Done()
			if !readOnly {
				mutatingSlot <- struct{}{}
				defer func() { <-mutatingSlot }()
			}
			o := p.Run(ctx, tc)
			outcomes[i] = &o
		}(i, tc, readOnly)
	}

	wg.Wait()
	return outcomes
}

// isReadOnlyTool reports whether name resolves to a ReadOnly-kind tool,
// the dispatcher's signal for unconstrained concurrency. An unresolvable
// tool is treated conservatively as non-read-only (serialized) — the
// pipeline's own discovery stage will abort it quickly either way.
func (l *Loop) isReadOnlyTool(name string) bool {
	t, ok := l.toolLookup().Get(name)
	if !ok {
		return false
	}
	return t.Kind() == tool.ReadOnly
}

func (l *Loop) buildResult(reason string, turns int) *Result {
	return &Result{
		Content:    l.lastAssistantContent(),
		Messages:   l.Messages(),
		Turns:      turns,
		Tokens:     l.Client.Tokens(),
		StopReason: reason,
	}
}

// lastAssistantContent returns the content of the most recent assistant message.
func (l *Loop) lastAssistantContent() string {
	msgs := l.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		if msg.Role == message.RoleAssistant && msg.Content != "" {
			return msg.Content
		}
	}
	return ""
}

// --- Low-level: incremental control (for TUI / event-driven callers) ---

// Stream starts an LLM stream and returns the chunk channel.
// It builds the system prompt and tool set from the loop's fields.
func (l *Loop) Stream(ctx context.Context) <-chan message.StreamChunk {
	sysPrompt := l.System.Prompt()
	tools := l.Tool.Tools()
	return l.Client.Stream(ctx, l.Messages(), tools, sysPrompt)
}

// Collect synchronously drains a stream into a CompletionResponse.
func Collect(ctx context.Context, ch <-chan message.StreamChunk) (*message.CompletionResponse, error) {
	var response message.CompletionResponse

	for chunk := range ch {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		switch chunk.Type {
		case message.ChunkTypeText:
			response.Content += chunk.Text
		case message.ChunkTypeThinking:
			response.Thinking += chunk.Text
		case message.ChunkTypeToolStart:
			response.ToolCalls = append(response.ToolCalls, message.ToolCall{
				ID:   chunk.ToolID,
				Name: chunk.ToolName,
			})
		case message.ChunkTypeToolInput:
			if len(response.ToolCalls) > 0 {
				idx := len(response.ToolCalls) - 1
				response.ToolCalls[idx].Input += chunk.Text
			}
		case message.ChunkTypeDone:
			if chunk.Response != nil {
				return chunk.Response, nil
			}
			return &response, nil
		case message.ChunkTypeError:
			return nil, chunk.Error
		}
	}

	return &response, nil
}

// --- Message management ---

// Messages returns the current conversation messages.
func (l *Loop) Messages() []message.Message {
	if l.Context != nil {
		return l.Context.Messages()
	}
	return l.messages
}

// SetMessages replaces the conversation messages.
func (l *Loop) SetMessages(msgs []message.Message) {
	if l.Context != nil {
		l.Context.Replace(msgs)
		return
	}
	l.messages = msgs
}

// Tokens returns the accumulated token usage from the client.
func (l *Loop) Tokens() client.TokenUsage {
	if l.Client == nil {
		return client.TokenUsage{}
	}
	return l.Client.Tokens()
}

// appendMessage is the single place a message ever joins the conversation,
// routing through the Context Manager when one is configured so its cached
// token estimate and session persistence stay in sync.
func (l *Loop) appendMessage(ctx context.Context, msg message.Message) {
	if l.Context != nil {
		l.Context.Append(ctx, msg)
		return
	}
	l.messages = append(l.messages, msg)
}

// AddUser appends a user message to the conversation.
func (l *Loop) AddUser(content string, images []message.ImageData) {
	l.appendMessage(context.Background(), message.UserMessage(content, images))
}

// AddResponse processes a CompletionResponse: appends the assistant message
// to the conversation, updates token counters, and returns the tool calls.
func (l *Loop) AddResponse(ctx context.Context, resp *message.CompletionResponse) []message.ToolCall {
	if l.Client != nil {
		l.Client.AddUsage(resp.Usage)
	}
	l.appendMessage(ctx, message.AssistantMessage(resp.Content, resp.Thinking, resp.ToolCalls))
	return resp.ToolCalls
}

// --- Tool dispatch ---

// pipeline builds the Pipeline that drives every tool call's seven stages,
// wiring it from the loop's own collaborators.
func (l *Loop) pipeline() *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Tools:      l.toolLookup(),
		Permission: asPipelinePermission(l.Permission),
		Hooks:      l.Hooks,
		Confirm:    l.Confirm,
		ExecContext: pipeline.ExecutionContext{
			Cwd:            l.cwd(),
			SessionID:      l.SessionID,
			TranscriptPath: l.TranscriptPath,
			PermissionMode: l.PermissionMode,
		},
	}
}

func (l *Loop) toolLookup() pipeline.ToolLookup {
	if l.Registry != nil {
		return l.Registry
	}
	return defaultRegistryLookup{}
}

func (l *Loop) cwd() string {
	if l.System != nil {
		return l.System.Cwd
	}
	return ""
}

// defaultRegistryLookup adapts the package-level default tool registry to
// pipeline.ToolLookup for loops that don't supply their own *tool.Registry.
type defaultRegistryLookup struct{}

func (defaultRegistryLookup) Get(name string) (tool.Tool, bool) {
	return tool.Get(name)
}

// detailedPermissionChecker is satisfied by *permission.Engine, which
// reports the matched rule and reason alongside the decision.
type detailedPermissionChecker interface {
	CheckDetailed(name string, params map[string]any) permission.Result
}

// asPipelinePermission adapts a permission.Checker to pipeline.PermissionChecker.
// A Checker that already exposes CheckDetailed (the production Engine) is
// used directly so its rule/reason detail survives; a plain Checker (the
// simpler PermitAll/ReadOnly/DenyAll test constructors) is wrapped, losing
// only the reason/rule detail it never had.
func asPipelinePermission(c permission.Checker) pipeline.PermissionChecker {
	if c == nil {
		return nil
	}
	if dc, ok := c.(detailedPermissionChecker); ok {
		return dc
	}
	return simplePermissionAdapter{c}
}

type simplePermissionAdapter struct {
	checker permission.Checker
}

func (a simplePermissionAdapter) CheckDetailed(name string, params map[string]any) permission.Result {
	return permission.Result{Decision: a.checker.Check(name, params)}
}
