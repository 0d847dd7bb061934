package compact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentrt/core/internal/client"
	"github.com/agentrt/core/internal/message"
	"github.com/agentrt/core/internal/provider"
)

type stubProvider struct {
	resp message.CompletionResponse
	err  error
}

func (s *stubProvider) Stream(ctx context.Context, opts provider.CompletionOptions) <-chan message.StreamChunk {
	ch := make(chan message.StreamChunk, 1)
	go func() {
		defer close(ch)
		if s.err != nil {
			ch <- message.StreamChunk{Type: message.ChunkTypeError, Error: s.err}
			return
		}
		resp := s.resp
		ch <- message.StreamChunk{Type: message.ChunkTypeDone, Response: &resp}
	}()
	return ch
}

func (s *stubProvider) ListModels(ctx context.Context) ([]provider.ModelInfo, error) { return nil, nil }
func (s *stubProvider) Name() string                                                { return "stub" }

func newTestClient(p provider.LLMProvider) *client.Client {
	return &client.Client{Provider: p, Model: "test-model"}
}

func buildConversation(n int) []message.Message {
	msgs := make([]message.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, message.UserMessage("message", nil))
	}
	return msgs
}

func TestRunSuccessRetainsLatest20Percent(t *testing.T) {
	p := &stubProvider{resp: message.CompletionResponse{Content: "condensed summary"}}
	c := newTestClient(p)

	msgs := buildConversation(10)
	result := Run(context.Background(), c, msgs, t.TempDir(), "")

	if !result.Success {
		t.Fatalf("expected success, got failure: %s", result.FailureReason)
	}
	if result.OriginalCount != 10 {
		t.Errorf("expected original count 10, got %d", result.OriginalCount)
	}
	// Retained = [summary] + ceil(10*0.2) = 1 + 2 = 3
	if len(result.Retained) != 3 {
		t.Errorf("expected 3 retained messages (summary + 2), got %d", len(result.Retained))
	}
	if result.Retained[0].Role != message.RoleUser {
		t.Errorf("expected summary message to be user-role, got %s", result.Retained[0].Role)
	}
}

func TestRunFallbackRetainsLatest30PercentOnFailure(t *testing.T) {
	p := &stubProvider{err: errors.New("provider unavailable")}
	c := newTestClient(p)

	msgs := buildConversation(10)
	result := Run(context.Background(), c, msgs, t.TempDir(), "")

	if result.Success {
		t.Fatal("expected failure result")
	}
	if result.FailureReason == "" {
		t.Error("expected a failure reason to be recorded")
	}
	// Retained = [summary] + ceil(10*0.3) = 1 + 3 = 4
	if len(result.Retained) != 4 {
		t.Errorf("expected 4 retained messages (summary + 3), got %d", len(result.Retained))
	}
}

func TestRunStripsOrphanToolMessages(t *testing.T) {
	p := &stubProvider{resp: message.CompletionResponse{Content: "summary"}}
	c := newTestClient(p)

	// Build 10 messages where the last ones include a tool result whose
	// issuing assistant message falls outside the retained window.
	msgs := buildConversation(8)
	msgs = append(msgs, message.ToolMessage(message.ToolCall{ID: "orphan-1", Name: "Read"}, "result", false))
	msgs = append(msgs, message.UserMessage("final", nil))

	result := Run(context.Background(), c, msgs, t.TempDir(), "")

	for _, m := range result.Retained {
		if m.Role == message.RoleTool && m.ToolCallID == "orphan-1" {
			t.Error("expected orphan tool message to be stripped from retained set")
		}
	}
}

func TestRankFileCandidatesByMentionsAndRecency(t *testing.T) {
	msgs := []message.Message{
		message.UserMessage("please look at main.go", nil),
		message.AssistantMessage("", "", []message.ToolCall{
			{ID: "1", Name: "Read", Input: `{"file_path":"main.go"}`},
		}),
		message.AssistantMessage("", "", []message.ToolCall{
			{ID: "2", Name: "Edit", Input: `{"file_path":"util.go"}`},
		}),
		message.UserMessage("now check main.go again", nil),
	}

	ranked := rankFileCandidates(msgs)
	if len(ranked) == 0 {
		t.Fatal("expected at least one ranked file candidate")
	}
	if ranked[0] != "main.go" {
		t.Errorf("expected main.go to rank first (3 mentions vs 1), got %q", ranked[0])
	}
}

func TestReadCandidatesSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "present.txt")
	if err := os.WriteFile(existing, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	contents := readCandidates(dir, []string{"present.txt", "missing.txt"})
	if contents["present.txt"] != "hello" {
		t.Errorf("expected present.txt contents to be read, got %q", contents["present.txt"])
	}
	if _, ok := contents["missing.txt"]; ok {
		t.Error("expected missing.txt to be silently skipped")
	}
}
