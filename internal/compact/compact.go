// Package compact implements the Compaction Service: summarizing a
// conversation's older messages into a single synthesized entry so the
// Context Manager can keep a session under its token budget. The algorithm
// is grounded on core.Compact's original single-shot summarization call,
// generalized with file-mention ranking, a structured summary prompt, and a
// statistics-only fallback when the model call itself fails.
package compact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/agentrt/core/internal/client"
	"github.com/agentrt/core/internal/log"
	"github.com/agentrt/core/internal/message"
	"github.com/agentrt/core/internal/system"
)

const (
	// normalRetainFraction is the share of messages (by count, rounded up)
	// kept verbatim after a successful compaction.
	normalRetainFraction = 0.2
	// fallbackRetainFraction is the larger share kept when summarization
	// itself fails, trading context savings for conversation continuity.
	fallbackRetainFraction = 0.3

	maxFileCandidates = 5
	maxFileReadBytes   = 8 * 1024
	summaryMaxTokens   = 2048
)

// fileToolParamKeys lists the tool-input keys that name a file path, across
// the file-mutating and file-reading tools (Read, Edit, Write).
var fileToolParamKeys = []string{"file_path", "path"}

// filePathPattern picks out plausible file paths mentioned in free-text
// message content (not tool inputs, which are parsed structurally instead).
var filePathPattern = regexp.MustCompile(`(?:[\w./-]+/)?[\w-]+\.[A-Za-z0-9]{1,8}\b`)

// Result is the outcome of a compaction attempt.
type Result struct {
	Summary        string
	Retained       []message.Message
	OriginalCount  int
	Success        bool
	FailureReason  string
}

// Run executes the full compaction algorithm of §4.5 against msgs, calling c
// for the summarization completion and reading candidate files rooted at
// cwd. focus, when non-empty, is appended as a steering hint to the
// summarization prompt.
func Run(ctx context.Context, c *client.Client, msgs []message.Message, cwd, focus string) Result {
	original := len(msgs)

	candidates := rankFileCandidates(msgs)
	fileContents := readCandidates(cwd, candidates)

	prompt := buildSummaryPrompt(msgs, fileContents, focus)

	resp, err := c.Complete(ctx, system.CompactPrompt(), []message.Message{message.UserMessage(prompt, nil)}, summaryMaxTokens)
	if err != nil {
		log.Logger().Warn("compaction summary failed, falling back to statistics-only summary",
			zap.Error(err))
		return fallback(msgs, original, err)
	}

	summary := strings.TrimSpace(resp.Content)
	retained := retainLatest(msgs, normalRetainFraction)
	retained = message.StripOrphanToolMessages(retained)

	return Result{
		Summary:       summary,
		Retained:      append([]message.Message{wrapSummary(summary)}, retained...),
		OriginalCount: original,
		Success:       true,
	}
}

// fallback produces a statistics-only summary when the Chat Service call
// itself could not be completed, retaining a larger tail of the
// conversation to preserve continuity.
func fallback(msgs []message.Message, original int, cause error) Result {
	retained := retainLatest(msgs, fallbackRetainFraction)
	retained = message.StripOrphanToolMessages(retained)

	stats := fmt.Sprintf(
		"[Compaction fallback] Unable to generate a conversation summary (%v). "+
			"Retained the most recent %d of %d messages.", cause, len(retained), original)

	return Result{
		Summary:       stats,
		Retained:      append([]message.Message{wrapSummary(stats)}, retained...),
		OriginalCount: original,
		Success:       false,
		FailureReason: cause.Error(),
	}
}

// wrapSummary wraps the summary text in begin/end markers as a user-role
// message, the form the resumed conversation's first entry takes.
func wrapSummary(summary string) message.Message {
	return message.UserMessage(
		"<compact-summary>\n"+summary+"\n</compact-summary>",
		nil,
	)
}

// retainLatest keeps the latest fraction of msgs by count, rounded up.
func retainLatest(msgs []message.Message, fraction float64) []message.Message {
	n := len(msgs)
	if n == 0 {
		return nil
	}
	keep := int(float64(n)*fraction + 0.999999) // round up
	if keep < 1 {
		keep = 1
	}
	if keep > n {
		keep = n
	}
	out := make([]message.Message, keep)
	copy(out, msgs[n-keep:])
	return out
}

// fileCandidate tracks a mentioned file path's rank signal.
type fileCandidate struct {
	path        string
	mentions    int
	lastMention int // index of the latest message that mentioned it
}

// rankFileCandidates scans messages for file-path references, in both
// free-text content and tool_use inputs to file tools, and ranks them by
// mention count then recency.
func rankFileCandidates(msgs []message.Message) []string {
	byPath := make(map[string]*fileCandidate)

	note := func(path string, idx int) {
		path = strings.TrimSpace(path)
		if path == "" {
			return
		}
		fc, ok := byPath[path]
		if !ok {
			fc = &fileCandidate{path: path}
			byPath[path] = fc
		}
		fc.mentions++
		fc.lastMention = idx
	}

	for i, m := range msgs {
		for _, match := range filePathPattern.FindAllString(m.Content, -1) {
			note(match, i)
		}
		for _, tc := range m.ToolCalls {
			params, err := message.ParseToolInput(tc.Input)
			if err != nil {
				continue
			}
			for _, key := range fileToolParamKeys {
				if p, ok := params[key].(string); ok {
					note(p, i)
				}
			}
		}
	}

	ranked := make([]*fileCandidate, 0, len(byPath))
	for _, fc := range byPath {
		ranked = append(ranked, fc)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].mentions != ranked[j].mentions {
			return ranked[i].mentions > ranked[j].mentions
		}
		return ranked[i].lastMention > ranked[j].lastMention
	})

	if len(ranked) > maxFileCandidates {
		ranked = ranked[:maxFileCandidates]
	}

	paths := make([]string, len(ranked))
	for i, fc := range ranked {
		paths[i] = fc.path
	}
	return paths
}

// readCandidates reads each candidate's current contents, size-capped, and
// silently skips files that no longer exist or can't be read (a file may
// have been deleted since it was mentioned).
func readCandidates(cwd string, paths []string) map[string]string {
	contents := make(map[string]string, len(paths))
	for _, p := range paths {
		full := p
		if !filepath.IsAbs(full) {
			full = filepath.Join(cwd, full)
		}
		data, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		if len(data) > maxFileReadBytes {
			data = data[:maxFileReadBytes]
		}
		contents[p] = string(data)
	}
	return contents
}

// buildSummaryPrompt composes the structured summarization prompt: the
// truncated conversation plus the read file contents, organized into the
// sections a resumed session needs to pick up where it left off.
func buildSummaryPrompt(msgs []message.Message, fileContents map[string]string, focus string) string {
	var sb strings.Builder

	sb.WriteString("Summarize this coding conversation so it can be resumed without losing context. ")
	sb.WriteString("Structure your summary with these sections: Primary Request and Intent, ")
	sb.WriteString("Key Concepts, Files and Code, Errors and Fixes, Problem Solving Approach, ")
	sb.WriteString("All User Messages, Pending Tasks, Current Work, Optional Next Step.\n\n")

	if focus != "" {
		fmt.Fprintf(&sb, "Focus the summary on: %s\n\n", focus)
	}

	sb.WriteString(message.BuildConversationText(msgs))

	if len(fileContents) > 0 {
		sb.WriteString("\n\n## Referenced file contents\n")
		for path, content := range fileContents {
			fmt.Fprintf(&sb, "\n### %s\n```\n%s\n```\n", path, content)
		}
	}

	return sb.String()
}
