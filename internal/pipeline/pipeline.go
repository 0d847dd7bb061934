// Package pipeline implements the Tool Execution Pipeline: the fixed
// seven-stage state machine (discovery, permission, preHook, confirmation,
// execution, postHook, formatting) every tool invocation traverses.
// Grounded on core.go's prior inlined FilterToolCalls/ExecTool/runTool
// sequence, which already had the shape of stages 1/2/5; this package
// makes the remaining stages explicit and enforces the fixed ordering so a
// denied permission can never reach execution, no matter what a hook does.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentrt/core/internal/hooks"
	"github.com/agentrt/core/internal/log"
	"github.com/agentrt/core/internal/message"
	"github.com/agentrt/core/internal/permission"
	"github.com/agentrt/core/internal/tool"
	"github.com/agentrt/core/internal/tool/ui"
)

// ToolLookup resolves a tool by name. *tool.Registry satisfies this.
type ToolLookup interface {
	Get(name string) (tool.Tool, bool)
}

// PermissionChecker computes a detailed permission decision for an
// invocation. *permission.Engine satisfies this.
type PermissionChecker interface {
	CheckDetailed(name string, params map[string]any) permission.Result
}

// ConfirmationHandler is invoked when the permission or preHook stage
// leaves the decision at ASK; it returns whether the user approved the
// invocation. A nil handler auto-approves (the behavior of a
// non-interactive caller, e.g. a subagent run).
type ConfirmationHandler func(ctx context.Context, tc message.ToolCall, params map[string]any, reason string) bool

// ExecutionContext carries the ambient state every stage may need.
type ExecutionContext struct {
	Cwd            string
	SessionID      string
	TranscriptPath string
	PermissionMode string
}

// Pipeline wires together the collaborators each stage consults. Tools,
// Permission, and Hooks may be nil for degraded/test configurations; a nil
// Hooks engine skips the preHook/postHook stages entirely (no hooks
// configured is a valid steady state, not an error).
type Pipeline struct {
	Tools       ToolLookup
	Permission  PermissionChecker
	Hooks       *hooks.Engine
	Confirm     ConfirmationHandler
	ExecContext ExecutionContext
}

// Outcome is the pipeline's result for one tool invocation: a ui.ToolResult
// enriched with the formatting stage's metadata and reduced to the
// message.ToolCall's corresponding tool message.
type Outcome struct {
	ToolCall    message.ToolCall
	Result      ui.ToolResult
	ExecutionID string
	Timestamp   time.Time
	PermissionMode string
	Aborted     bool
	AbortStage  string
	AbortReason string

	// HookContext and LLMContentOverride implement the postHook
	// output-append/replace rule (§4.2): additionalContext is appended
	// under a [Hook Context] block; updatedOutput, when set, replaces
	// llmContent entirely instead of appending.
	HookContext       string
	LLMContentOverride *string
}

// Run drives one tool invocation through all seven stages in fixed order.
// It never panics: every abort path produces a well-formed Outcome whose
// Result carries an error, so the loop can always append a tool message.
func (p *Pipeline) Run(ctx context.Context, tc message.ToolCall) Outcome {
	executionID := fmt.Sprintf("exec-%d", time.Now().UnixNano())
	out := Outcome{
		ToolCall:       tc,
		ExecutionID:    executionID,
		Timestamp:      time.Now(),
		PermissionMode: p.ExecContext.PermissionMode,
	}

	params, err := message.ParseToolInput(tc.Input)
	if err != nil {
		return p.abort(out, "discovery", fmt.Sprintf("invalid tool input: %v", err))
	}

	// --- Stage 1: discovery ---
	t, ok := p.lookup(tc.Name)
	if !ok {
		return p.abort(out, "discovery", fmt.Sprintf("unknown tool: %s", tc.Name))
	}

	// --- Stage 2: permission ---
	decision := permission.Ask
	reason := ""
	if p.Permission != nil {
		res := p.Permission.CheckDetailed(tc.Name, params)
		decision, reason = res.Decision, res.Reason
	} else {
		decision, reason = permission.Allow, "no permission engine configured"
	}
	if decision == permission.Deny {
		return p.abort(out, "permission", firstNonEmpty(reason, "denied by permission engine"))
	}

	// --- Stage 3: preHook ---
	if p.Hooks != nil {
		hookOutcome := p.Hooks.Execute(ctx, hooks.PreToolUse, hooks.HookInput{
			SessionID:      p.ExecContext.SessionID,
			TranscriptPath: p.ExecContext.TranscriptPath,
			Cwd:            p.ExecContext.Cwd,
			PermissionMode: p.ExecContext.PermissionMode,
			ToolName:       tc.Name,
			ToolInput:      params,
			ToolUseID:      tc.ID,
		})
		if hookOutcome.ShouldBlock {
			return p.abort(out, "preHook", firstNonEmpty(hookOutcome.BlockReason, "denied by hook"))
		}
		if hookOutcome.UpdatedInput != nil {
			params = hookOutcome.UpdatedInput
		}
		// preHook.permissionDecision=allow forces through a prior ASK only;
		// it can never override a DENY, since DENY already returned above.
		if hookOutcome.PermissionDecision == "deny" {
			return p.abort(out, "preHook", firstNonEmpty(hookOutcome.PermissionDecisionReason, "denied by hook"))
		}
		if hookOutcome.PermissionDecision == "allow" && decision == permission.Ask {
			decision = permission.Allow
		} else if hookOutcome.PermissionDecision == "ask" && decision == permission.Allow {
			decision = permission.Ask
		}
	}

	// --- Stage 4: confirmation ---
	if decision == permission.Ask {
		approved := true
		if p.Confirm != nil {
			approved = p.Confirm(ctx, tc, params, reason)
		}
		if !approved {
			return p.abort(out, "confirmation", "user declined")
		}
	}

	// --- Stage 5: execution ---
	result := p.execute(ctx, t, params)

	// --- Stage 6: postHook ---
	if p.Hooks != nil {
		event := hooks.PostToolUse
		if !result.Success {
			event = hooks.PostToolUseFailure
		}
		hookOutcome := p.Hooks.Execute(ctx, event, hooks.HookInput{
			SessionID:      p.ExecContext.SessionID,
			TranscriptPath: p.ExecContext.TranscriptPath,
			Cwd:            p.ExecContext.Cwd,
			PermissionMode: p.ExecContext.PermissionMode,
			ToolName:       tc.Name,
			ToolInput:      params,
			ToolUseID:      tc.ID,
			ToolResponse:   result.FormatForLLM(),
		})
		out.HookContext = hookOutcome.AdditionalContext
		out.LLMContentOverride = hookOutcome.UpdatedOutput
	}

	// --- Stage 7: formatting ---
	result = p.format(result, t, executionID)

	out.Result = result
	return out
}

func (p *Pipeline) lookup(name string) (tool.Tool, bool) {
	if p.Tools == nil {
		return nil, false
	}
	return p.Tools.Get(name)
}

// execute calls the tool, routing through ExecuteApproved for
// permission-aware tools since the pipeline is the only caller reaching
// this stage: a denied or declined invocation can never get here.
func (p *Pipeline) execute(ctx context.Context, t tool.Tool, params map[string]any) ui.ToolResult {
	cwd := p.ExecContext.Cwd
	if pat, ok := t.(tool.PermissionAwareTool); ok && pat.RequiresPermission() {
		return pat.ExecuteApproved(ctx, params, cwd)
	}
	return t.Execute(ctx, params, cwd)
}

// format ensures formatting-stage defaults (metadata title and icon). The
// execution id, timestamp and permission mode are carried on the Outcome
// (set in Run), not on the result's metadata. Never aborts.
func (p *Pipeline) format(result ui.ToolResult, t tool.Tool, executionID string) ui.ToolResult {
	if result.Metadata.Title == "" {
		result.Metadata.Title = t.Name()
	}
	if result.Metadata.Icon == "" {
		result.Metadata.Icon = t.Icon()
	}
	return result
}

// abort produces a well-formed error Outcome for a stage that ended the
// invocation before execution. Stages before execution never produce a
// tool-level ui.ToolResult on their own, so abort synthesizes one.
func (p *Pipeline) abort(out Outcome, stage, reason string) Outcome {
	log.Logger().Debug("tool invocation aborted",
		zap.String("tool", out.ToolCall.Name),
		zap.String("stage", stage),
		zap.String("reason", reason),
	)
	out.Aborted = true
	out.AbortStage = stage
	out.AbortReason = reason
	out.Result = ui.NewErrorResult(out.ToolCall.Name, reason)
	return out
}

func firstNonEmpty(strs ...string) string {
	for _, s := range strs {
		if s != "" {
			return s
		}
	}
	return ""
}

// ToMessage reduces an Outcome into the tool-role message.Message the loop
// appends to the conversation, per §4.1 step 5. It applies the postHook
// output rule: updatedOutput replaces llmContent entirely; otherwise
// additionalContext, if any, is appended under a [Hook Context] block.
func (o Outcome) ToMessage() message.Message {
	content := o.Result.FormatForLLM()
	if o.LLMContentOverride != nil {
		content = *o.LLMContentOverride
	} else if o.HookContext != "" {
		content = strings.TrimRight(content, "\n") + "\n\n[Hook Context]\n" + o.HookContext
	}
	return message.ToolMessage(o.ToolCall, content, !o.Result.Success)
}
