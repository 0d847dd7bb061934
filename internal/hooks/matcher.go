package hooks

import (
	"regexp"

	"github.com/agentrt/core/internal/config"
	"github.com/bmatcuk/doublestar/v4"
)

// MatchesEvent checks if a matcher pattern matches the given value.
// Empty or "*" matches everything. Matcher is regex-anchored at both ends.
func MatchesEvent(matcher, matchValue string) bool {
	switch matcher {
	case "", "*":
		return true
	default:
		if re, err := regexp.Compile("^(" + matcher + ")$"); err == nil {
			return re.MatchString(matchValue)
		}
		return matcher == matchValue
	}
}

// GetMatchValue extracts the value to match against based on event type.
func GetMatchValue(event EventType, input HookInput) string {
	switch event {
	case PreToolUse, PostToolUse, PostToolUseFailure, PermissionRequest:
		return input.ToolName
	case SessionStart:
		return input.Source
	case SessionEnd:
		return input.Reason
	case Notification:
		return input.NotificationType
	case SubagentStop:
		return input.AgentType
	case Compaction:
		return input.Trigger
	default:
		return ""
	}
}

// EventSupportsMatcher returns true if the event type supports matcher filtering.
func EventSupportsMatcher(event EventType) bool {
	return event != UserPromptSubmit && event != Stop
}

// MatchesHook decides whether a configured hook fires for an event/input.
//
// A Hook using the structured Tools/Paths/Commands keys matches when every
// key it sets matches (a key it leaves empty/nil is satisfied
// unconditionally); a Hook using neither falls back to the legacy single
// Matcher regex against GetMatchValue.
func MatchesHook(hook config.Hook, event EventType, input HookInput) bool {
	if len(hook.Tools) == 0 && len(hook.Paths) == 0 && len(hook.Commands) == 0 {
		return MatchesEvent(hook.Matcher, GetMatchValue(event, input))
	}

	if len(hook.Tools) > 0 && !matchAnyGlob(hook.Tools, input.ToolName) {
		return false
	}
	if len(hook.Paths) > 0 && !matchesAnyPath(hook.Paths, input) {
		return false
	}
	if len(hook.Commands) > 0 && !matchesAnyCommand(hook.Commands, input) {
		return false
	}
	return true
}

// matchAnyGlob reports whether str matches any of the given glob patterns.
func matchAnyGlob(patterns []string, str string) bool {
	for _, p := range patterns {
		if p == str {
			return true
		}
		if ok, err := doublestar.Match(p, str); err == nil && ok {
			return true
		}
	}
	return false
}

// matchesAnyPath checks the tool input's path-shaped fields against patterns.
func matchesAnyPath(patterns []string, input HookInput) bool {
	for _, key := range []string{"file_path", "path", "notebook_path"} {
		v, ok := input.ToolInput[key].(string)
		if !ok || v == "" {
			continue
		}
		if matchAnyGlob(patterns, v) {
			return true
		}
	}
	return false
}

// matchesAnyCommand checks a Bash tool invocation's command string against
// command glob patterns. Non-Bash tools never match a Commands key.
func matchesAnyCommand(patterns []string, input HookInput) bool {
	if input.ToolName != "Bash" {
		return false
	}
	cmd, ok := input.ToolInput["command"].(string)
	if !ok || cmd == "" {
		return false
	}
	return matchAnyGlob(patterns, cmd)
}
