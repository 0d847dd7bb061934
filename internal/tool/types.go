package tool

import (
	"context"

	"github.com/agentrt/core/internal/tool/permission"
	"github.com/agentrt/core/internal/tool/ui"
)

// ToolKind classifies what a tool is capable of doing to the host
// environment. The permission engine's mode overlays (plan/autoEdit/yolo)
// key off this rather than the tool name, so a new tool only needs to
// report the right kind to get correct mode behavior for free.
type ToolKind int

const (
	// ReadOnly tools never modify files or external state.
	ReadOnly ToolKind = iota
	// Edit tools modify existing files in place.
	Edit
	// Write tools create or overwrite files.
	Write
	// Execute tools run arbitrary commands or code.
	Execute
)

func (k ToolKind) String() string {
	switch k {
	case ReadOnly:
		return "read_only"
	case Edit:
		return "edit"
	case Write:
		return "write"
	case Execute:
		return "execute"
	default:
		return "unknown"
	}
}

// Tool represents a tool that can be executed
type Tool interface {
	// Name returns the tool name
	Name() string

	// Description returns a brief description of the tool
	Description() string

	// Icon returns the tool icon emoji
	Icon() string

	// Kind reports what category of effect this tool has, used by the
	// permission engine's mode overlays.
	Kind() ToolKind

	// Execute runs the tool with the given parameters
	Execute(ctx context.Context, params map[string]any, cwd string) ui.ToolResult
}

// PermissionAwareTool is a tool that requires user permission before execution
type PermissionAwareTool interface {
	Tool

	// RequiresPermission returns true if the tool needs user approval
	RequiresPermission() bool

	// PreparePermission prepares a permission request (e.g., computes diff)
	PreparePermission(ctx context.Context, params map[string]any, cwd string) (*permission.PermissionRequest, error)

	// ExecuteApproved executes the tool after user approval
	ExecuteApproved(ctx context.Context, params map[string]any, cwd string) ui.ToolResult
}

// ToolInput represents parsed tool input
type ToolInput struct {
	Name   string         // Tool name
	Args   string         // Raw argument string
	Params map[string]any // Parsed parameters
}
