package config

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// PermissionResult represents the result of a permission check.
type PermissionResult int

const (
	// PermissionAllow means the action is automatically allowed.
	PermissionAllow PermissionResult = iota

	// PermissionDeny means the action is automatically denied.
	PermissionDeny

	// PermissionAsk means the action requires user confirmation.
	PermissionAsk
)

// String returns a human-readable representation of the permission result.
func (p PermissionResult) String() string {
	switch p {
	case PermissionAllow:
		return "allow"
	case PermissionDeny:
		return "deny"
	case PermissionAsk:
		return "ask"
	default:
		return "unknown"
	}
}

// ReadOnlyTools is a list of tools that are considered read-only.
// These tools don't modify any files or state.
var ReadOnlyTools = map[string]bool{
	"Read":      true,
	"Glob":      true,
	"Grep":      true,
	"WebFetch":  true,
	"WebSearch": true,
}

// IsReadOnlyTool returns true if the tool is read-only.
func IsReadOnlyTool(toolName string) bool {
	return ReadOnlyTools[toolName]
}

// PermissionMatch is the detailed outcome of a permission check: the
// decision plus which configured rule (if any) produced it. Engine.CheckDetailed
// surfaces MatchedRule/Reason to callers that need to explain a decision
// rather than just act on it.
type PermissionMatch struct {
	Result      PermissionResult
	MatchedRule string
	Reason      string
}

// CheckPermission checks if a tool action is allowed based on settings and session permissions.
// Priority:
//  1. Deny rules (highest priority - cannot be bypassed by session permissions)
//  2. Destructive command protection (always ask for dangerous bash commands)
//  3. Session permissions (runtime, e.g., "allow all edits this session")
//  4. Allow rules
//  5. Ask rules
//  6. Default behavior (read-only tools allowed, others need confirmation)
func (s *Settings) CheckPermission(toolName string, args map[string]any, session *SessionPermissions) PermissionResult {
	return s.CheckPermissionDetailed(toolName, args, session).Result
}

// CheckPermissionDetailed runs the same precedence algorithm as CheckPermission
// but also reports which rule matched, for audit trails and tests that need
// to assert on the specific pattern (e.g. "deny overrides allow").
func (s *Settings) CheckPermissionDetailed(toolName string, args map[string]any, session *SessionPermissions) PermissionMatch {
	// Build the rule string for this tool invocation
	rule := BuildRule(toolName, args)

	// SECURITY: Check deny rules FIRST - deny rules cannot be bypassed by session permissions
	for _, pattern := range s.Permissions.Deny {
		if MatchRule(rule, pattern) {
			return PermissionMatch{PermissionDeny, pattern, "matched deny rule"}
		}
		// Bash deny patterns may name a multi-word command prefix (e.g.
		// "rm -rf") that BuildRule's single-word normalization wouldn't
		// surface as the rule's command segment; check the raw command too.
		if toolName == "Bash" {
			if cmd, ok := args["command"].(string); ok && matchBashCommandPattern(cmd, pattern) {
				return PermissionMatch{PermissionDeny, pattern, "matched deny rule"}
			}
		}
	}

	// SECURITY: Check for destructive Bash commands - always require confirmation
	if toolName == "Bash" {
		if cmd, ok := args["command"].(string); ok {
			if IsDestructiveCommand(cmd) {
				return PermissionMatch{PermissionAsk, "", "destructive command always requires confirmation"}
			}
		}
	}

	// Check session permissions (after security checks)
	if session != nil {
		if session.IsToolAllowed(toolName) {
			return PermissionMatch{PermissionAllow, "", "session allows tool"}
		}
		// Check session allowed patterns using MatchRule
		for pattern := range session.AllowedPatterns {
			if MatchRule(rule, pattern) {
				return PermissionMatch{PermissionAllow, pattern, "session allowed pattern"}
			}
		}
		// For Bash commands, also check each command in a chained command
		if toolName == "Bash" {
			if cmd, ok := args["command"].(string); ok {
				commands := extractBashCommands(cmd)
				for _, subCmd := range commands {
					subRule := "Bash(" + normalizeBashCommand(subCmd) + ")"
					for pattern := range session.AllowedPatterns {
						if MatchRule(subRule, pattern) {
							return PermissionMatch{PermissionAllow, pattern, "session allowed pattern"}
						}
					}
				}
			}
		}
	}

	// Check allow rules
	for _, pattern := range s.Permissions.Allow {
		if MatchRule(rule, pattern) {
			return PermissionMatch{PermissionAllow, pattern, "matched allow rule"}
		}
	}

	// Check ask rules
	for _, pattern := range s.Permissions.Ask {
		if MatchRule(rule, pattern) {
			return PermissionMatch{PermissionAsk, pattern, "matched ask rule"}
		}
	}

	// Default behavior
	if IsReadOnlyTool(toolName) {
		return PermissionMatch{PermissionAllow, "", "default: read-only tool"}
	}
	return PermissionMatch{PermissionAsk, "", "default: requires confirmation"}
}

// matchBashCommandPattern matches a raw, unnormalized bash command against a
// deny pattern shaped "Bash(<command prefix>:<glob>)". The prefix is matched
// literally against the command's leading text; the glob matches whatever
// follows. This lets a deny pattern name a multi-word command phrase (e.g.
// "rm -rf") directly, independent of normalizeBashCommand's single-word split.
func matchBashCommandPattern(cmd, pattern string) bool {
	toolPat, argsPat := parseRule(pattern)
	if toolPat != "Bash" {
		return false
	}
	prefix, glob, found := strings.Cut(argsPat, ":")
	if !found {
		return false
	}
	cmd = strings.TrimSpace(cmd)
	if !strings.HasPrefix(cmd, prefix) {
		return false
	}
	return matchGlob(strings.TrimPrefix(cmd, prefix), glob)
}

// BuildRule builds a rule string from a tool name and arguments.
// Format: "Tool(args)"
//
// Different tools extract different parts of args:
//   - Bash: "Bash(command)" where command is the shell command
//   - Read/Edit/Write: "Read(file_path)"
//   - Glob/Grep: "Glob(pattern)" or "Grep(pattern)"
//   - WebFetch: "WebFetch(domain:hostname)"
func BuildRule(toolName string, args map[string]any) string {
	var argStr string

	switch toolName {
	case "Bash":
		// For Bash, use the command with prefix matching support
		if cmd, ok := args["command"].(string); ok {
			// Extract command prefix (e.g., "npm install" -> "npm:install")
			// This allows patterns like "Bash(npm:*)"
			argStr = normalizeBashCommand(cmd)
		}

	case "Read", "Edit", "Write":
		// For file tools, use the file path
		if fp, ok := args["file_path"].(string); ok {
			argStr = fp
		}

	case "Glob":
		// For Glob, use the pattern
		if p, ok := args["pattern"].(string); ok {
			argStr = p
		}

	case "Grep":
		// For Grep, use the pattern
		if p, ok := args["pattern"].(string); ok {
			argStr = p
		}

	case "WebFetch":
		// For WebFetch, extract domain from URL
		if u, ok := args["url"].(string); ok {
			if parsed, err := url.Parse(u); err == nil {
				argStr = "domain:" + parsed.Host
			} else {
				argStr = u
			}
		}

	case "Skill":
		// For Skill, use the skill name
		// Supports patterns like "Skill(git:*)", "Skill(test-skill)"
		if s, ok := args["skill"].(string); ok {
			argStr = s
		}

	default:
		// Generic: try common field names
		if fp, ok := args["file_path"].(string); ok {
			argStr = fp
		} else if p, ok := args["path"].(string); ok {
			argStr = p
		} else if p, ok := args["pattern"].(string); ok {
			argStr = p
		}
	}

	return toolName + "(" + argStr + ")"
}

// normalizeBashCommand normalizes a bash command for pattern matching.
// Examples:
//   - "npm install lodash" -> "npm:install lodash"
//   - "git commit -m 'msg'" -> "git:commit -m 'msg'"
//   - "ls -la" -> "ls:-la"
//   - "/bin/rm -rf foo" -> "rm:-rf foo" (strips path prefix)
func normalizeBashCommand(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return ""
	}
	parts := strings.SplitN(cmd, " ", 2)

	// Get the base command (without path)
	baseCmd := filepath.Base(parts[0])

	if len(parts) == 1 {
		return baseCmd
	}

	// Return "command:rest"
	return baseCmd + ":" + parts[1]
}

// extractBashCommands extracts individual commands from a chained bash command.
// It splits on && and ; to get each command separately.
func extractBashCommands(cmd string) []string {
	var commands []string

	// Split on && first, then on ;
	parts := strings.Split(cmd, "&&")
	for _, part := range parts {
		subParts := strings.Split(part, ";")
		for _, subPart := range subParts {
			trimmed := strings.TrimSpace(subPart)
			if trimmed != "" {
				commands = append(commands, trimmed)
			}
		}
	}

	return commands
}

// MatchRule checks if a rule matches a pattern.
// Rule format: "Tool(args)"
// Pattern format: "Tool(pattern)" where pattern supports:
//   - "*" matches any sequence of characters
//   - "**" matches any sequence including path separators
//   - "domain:" prefix for WebFetch domain matching
func MatchRule(rule, pattern string) bool {
	// Parse rule
	toolRule, argsRule := parseRule(rule)
	toolPat, argsPat := parseRule(pattern)

	// Tool names must match exactly
	if toolRule != toolPat {
		return false
	}

	// Match arguments using glob-like patterns
	return matchGlob(argsRule, argsPat)
}

// parseRule parses a rule string into tool name and arguments.
// "Bash(npm install)" -> ("Bash", "npm install")
func parseRule(s string) (tool, args string) {
	tool, args, found := strings.Cut(s, "(")
	if !found {
		return s, ""
	}
	return tool, strings.TrimSuffix(args, ")")
}

// matchGlob performs glob-like pattern matching using doublestar, which
// supports:
//   - "*" matches any sequence of non-separator characters
//   - "**" matches any sequence including separators (path components)
//   - "?" matches a single character
//   - Exact string matching when the pattern has no wildcards
func matchGlob(str, pattern string) bool {
	if pattern == "" {
		return str == ""
	}
	if pattern == "**" {
		return true
	}
	if !strings.ContainsAny(pattern, "*?[") {
		return str == pattern
	}
	ok, err := doublestar.Match(pattern, str)
	if err != nil {
		return str == pattern
	}
	return ok
}

// CommonDenyPatterns contains commonly denied patterns for security. Folded
// into DefaultPermissionSettings' Deny list, after the spec's required
// baseline entries.
var CommonDenyPatterns = []string{
	"Read(**/.env)",
	"Read(**/.env.*)",
	"Read(**/secrets/**)",
	"Read(**/*credentials*)",
	"Read(**/*password*)",
	"Read(**/.aws/**)",
	"Read(**/.ssh/**)",
	"Edit(**/.env)",
	"Edit(**/.env.*)",
	"Write(**/.env)",
	"Write(**/.env.*)",
}

// DestructiveCommands are patterns that should always require user confirmation,
// even when session permissions like AllowAllBash are enabled.
// These commands can cause irreversible data loss or system damage.
var DestructiveCommands = []string{
	"rm:-rf",
	"rm:-fr",
	"rm:-r",
	"git:reset --hard",
	"git:clean -fd",
	"git:clean -f",
	"git:push --force",
	"git:push -f",
	"chmod:777",
	"chmod:-R 777",
	":(){ :|:& };:", // fork bomb
	"> /dev/",       // device writes
	"dd:if=",        // direct disk access
	"mkfs",          // filesystem creation
	"fdisk",         // disk partitioning
}

// IsDestructiveCommand checks if a bash command matches any destructive pattern.
// Returns true if the command should always require user confirmation.
func IsDestructiveCommand(cmd string) bool {
	normalized := normalizeBashCommand(cmd)
	for _, pattern := range DestructiveCommands {
		if strings.Contains(normalized, pattern) {
			return true
		}
	}
	return false
}

// CommonAllowPatterns contains commonly allowed patterns. Folded into
// DefaultPermissionSettings' Allow list, after the spec's required baseline
// entries.
var CommonAllowPatterns = []string{
	"Bash(git:*)",
	"Bash(npm:*)",
	"Bash(yarn:*)",
	"Bash(pnpm:*)",
	"Bash(go:*)",
	"Bash(make:*)",
	"Bash(ls:*)",
	"Bash(cat:*)",
	"Bash(head:*)",
	"Bash(tail:*)",
	"Bash(pwd)",
}
