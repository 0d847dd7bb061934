package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/agentrt/core/internal/message"
	"github.com/agentrt/core/internal/permission"
	"github.com/agentrt/core/internal/tool"
	"github.com/agentrt/core/internal/tool/ui"
)

// fakeTool is a minimal tool.Tool for pipeline tests.
type fakeTool struct {
	name string
	kind tool.ToolKind
	fn   func(ctx context.Context, params map[string]any, cwd string) ui.ToolResult
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake tool for tests" }
func (f *fakeTool) Icon() string        { return "*" }
func (f *fakeTool) Kind() tool.ToolKind { return f.kind }
func (f *fakeTool) Execute(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	if f.fn != nil {
		return f.fn(ctx, params, cwd)
	}
	return ui.ToolResult{Success: true, Output: "ok", Metadata: ui.ResultMetadata{Title: f.name}}
}

type fakeRegistry struct {
	tools map[string]tool.Tool
}

func newFakeRegistry(tools ...tool.Tool) *fakeRegistry {
	r := &fakeRegistry{tools: map[string]tool.Tool{}}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

func (r *fakeRegistry) Get(name string) (tool.Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

type fixedPermission struct {
	decision permission.Decision
	reason   string
}

func (f fixedPermission) CheckDetailed(name string, params map[string]any) permission.Result {
	return permission.Result{Decision: f.decision, Reason: f.reason}
}

func callTool(name, id string) message.ToolCall {
	return message.ToolCall{ID: id, Name: name, Input: "{}"}
}

func TestRunUnknownToolAbortsAtDiscovery(t *testing.T) {
	p := &Pipeline{Tools: newFakeRegistry(), Permission: fixedPermission{decision: permission.Allow}}
	out := p.Run(context.Background(), callTool("Nonexistent", "1"))

	if !out.Aborted || out.AbortStage != "discovery" {
		t.Fatalf("expected discovery-stage abort, got %+v", out)
	}
	if out.Result.Success {
		t.Error("expected a failed result for unknown tool")
	}
}

func TestRunDeniedPermissionAbortsBeforeExecution(t *testing.T) {
	executed := false
	ft := &fakeTool{name: "Bash", kind: tool.Execute, fn: func(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
		executed = true
		return ui.ToolResult{Success: true}
	}}
	p := &Pipeline{
		Tools:      newFakeRegistry(ft),
		Permission: fixedPermission{decision: permission.Deny, reason: "denied by rule"},
	}

	out := p.Run(context.Background(), callTool("Bash", "1"))

	if !out.Aborted || out.AbortStage != "permission" {
		t.Fatalf("expected permission-stage abort, got %+v", out)
	}
	if executed {
		t.Error("expected tool execution to be skipped when permission denies")
	}
}

func TestRunAskWithoutConfirmationHandlerAutoApproves(t *testing.T) {
	ft := &fakeTool{name: "Read", kind: tool.ReadOnly}
	p := &Pipeline{
		Tools:      newFakeRegistry(ft),
		Permission: fixedPermission{decision: permission.Ask},
	}

	out := p.Run(context.Background(), callTool("Read", "1"))

	if out.Aborted {
		t.Fatalf("expected no abort with nil confirmation handler, got %+v", out)
	}
	if !out.Result.Success {
		t.Error("expected successful execution")
	}
}

func TestRunConfirmationDeclineAborts(t *testing.T) {
	executed := false
	ft := &fakeTool{name: "Write", kind: tool.Write, fn: func(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
		executed = true
		return ui.ToolResult{Success: true}
	}}
	p := &Pipeline{
		Tools:      newFakeRegistry(ft),
		Permission: fixedPermission{decision: permission.Ask},
		Confirm: func(ctx context.Context, tc message.ToolCall, params map[string]any, reason string) bool {
			return false
		},
	}

	out := p.Run(context.Background(), callTool("Write", "1"))

	if !out.Aborted || out.AbortStage != "confirmation" {
		t.Fatalf("expected confirmation-stage abort, got %+v", out)
	}
	if executed {
		t.Error("expected tool execution to be skipped when confirmation is declined")
	}
}

func TestRunSuccessfulExecutionFormatsMetadata(t *testing.T) {
	ft := &fakeTool{name: "Read", kind: tool.ReadOnly, fn: func(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
		return ui.ToolResult{Success: true, Output: "file contents"}
	}}
	p := &Pipeline{
		Tools:      newFakeRegistry(ft),
		Permission: fixedPermission{decision: permission.Allow},
	}

	out := p.Run(context.Background(), callTool("Read", "1"))

	if out.Aborted {
		t.Fatalf("unexpected abort: %+v", out)
	}
	if out.Result.Metadata.Title != "Read" {
		t.Errorf("expected formatting stage to fill in metadata title, got %q", out.Result.Metadata.Title)
	}
	if out.ExecutionID == "" {
		t.Error("expected a non-empty execution id")
	}
}

func TestToMessageAppendsHookContext(t *testing.T) {
	out := Outcome{
		ToolCall:    callTool("Read", "1"),
		Result:      ui.ToolResult{Success: true, Output: "base content"},
		HookContext: "extra context from a hook",
	}
	msg := out.ToMessage()

	if msg.Role != message.RoleTool {
		t.Fatalf("expected a tool-role message, got %s", msg.Role)
	}
	if !strings.Contains(msg.Content, "[Hook Context]") || !strings.Contains(msg.Content, "extra context from a hook") {
		t.Errorf("expected hook context to be appended, got %q", msg.Content)
	}
}

func TestToMessageOverrideReplacesContentEntirely(t *testing.T) {
	override := "replacement content"
	out := Outcome{
		ToolCall:           callTool("Read", "1"),
		Result:             ui.ToolResult{Success: true, Output: "base content"},
		LLMContentOverride: &override,
	}
	msg := out.ToMessage()

	if msg.Content != override {
		t.Errorf("expected updatedOutput to fully replace content, got %q", msg.Content)
	}
}
