package permission

import (
	"github.com/agentrt/core/internal/config"
	"github.com/agentrt/core/internal/tool"
)

// Mode is the active permission-mode overlay. It shapes how an otherwise
// "ask" decision resolves (and, in plan mode, also denies allowed tools that
// are not read-only) without touching the underlying rule set.
type Mode int

const (
	// ModeDefault applies no overlay: rule precedence decides as-is.
	ModeDefault Mode = iota
	// ModeAutoEdit promotes Ask to Allow for Edit/Write-kind tools only.
	ModeAutoEdit
	// ModePlan forces Deny on any tool whose Kind is not ReadOnly, including
	// tools whose kind is unknown (every tool when Tools is nil).
	ModePlan
	// ModeYolo promotes Ask to Allow for every tool kind. Explicit Deny
	// rules are never overridden by a mode overlay.
	ModeYolo
)

// Result is the outcome of an Engine.Check call.
type Result struct {
	Decision    Decision
	MatchedRule string
	Reason      string
}

// Engine is the production permission engine: it builds a canonical rule
// signature for a tool invocation, evaluates it against configured
// deny/allow/ask rules plus session overrides (config.Settings.CheckPermission),
// and then applies the active mode overlay. A Deny decision is never
// loosened by a mode overlay. Plan mode tightens both Ask and Allow to Deny
// for tools that are not read-only; autoEdit and yolo only loosen Ask.
type Engine struct {
	Settings *config.Settings
	Session  *config.SessionPermissions
	Mode     Mode
	Tools    ToolKindLookup
}

// ToolKindLookup resolves a tool name to its ToolKind, used for mode
// overlays. A Registry (or any Get(name) (tool.Tool, bool) alike) satisfies
// this via ToolKindLookupFunc.
type ToolKindLookup func(name string) (tool.ToolKind, bool)

// Check implements the Checker interface so an Engine can be dropped in
// wherever a simple Checker is expected. It discards the signature/reason
// detail available from CheckDetailed.
func (e *Engine) Check(name string, params map[string]any) Decision {
	return e.CheckDetailed(name, params).Decision
}

// CheckDetailed runs the full signature/precedence/mode-overlay algorithm
// and returns the matched rule and reason alongside the decision.
func (e *Engine) CheckDetailed(name string, params map[string]any) Result {
	settings := e.Settings
	if settings == nil {
		settings = config.NewSettings()
	}

	match := settings.CheckPermissionDetailed(name, params, e.Session)

	result := Result{MatchedRule: match.MatchedRule, Reason: match.Reason}
	switch match.Result {
	case config.PermissionDeny:
		result.Decision = Deny
		return result // deny can never be overlaid away
	case config.PermissionAllow:
		result.Decision = Allow
	default:
		result.Decision = Ask
	}

	kind, known := tool.ReadOnly, false
	if e.Tools != nil {
		kind, known = e.Tools(name)
	}

	switch e.Mode {
	case ModePlan:
		if !known || kind != tool.ReadOnly {
			result.Decision = Deny
			result.MatchedRule = ""
			result.Reason = "plan mode restricts execution to read-only tools"
		}
	case ModeAutoEdit:
		if result.Decision == Ask && known && (kind == tool.Edit || kind == tool.Write) {
			result.Decision = Allow
			result.Reason = "autoEdit mode auto-approves edit/write tools"
		}
	case ModeYolo:
		if result.Decision == Ask {
			result.Decision = Allow
			result.Reason = "yolo mode auto-approves all non-denied tools"
		}
	}

	return result
}

// Allow/Deny/Ask alias the existing Decision constants under spec-facing
// names; Permit/Reject/Prompt remain for the simpler Checker constructors.
const (
	Allow = Permit
	Deny  = Reject
	Ask   = Prompt
)
