package compact_test

import (
	"context"
	"strings"
	"testing"

	"github.com/agentrt/core/internal/client"
	"github.com/agentrt/core/internal/compact"
	"github.com/agentrt/core/internal/message"
	"github.com/agentrt/core/tests/integration/testutil"
)

// newFakeClient creates a *client.Client backed by the given responses.
func newFakeClient(responses ...message.CompletionResponse) (*client.Client, *client.FakeClient) {
	fake := &client.FakeClient{Responses: responses}
	return testutil.NewTestClient(fake), fake
}

func TestCompact_SummarizesConversation(t *testing.T) {
	c, _ := newFakeClient(
		message.CompletionResponse{Content: "Summary: discussed file reading", StopReason: "end_turn"},
	)

	msgs := []message.Message{
		message.UserMessage("read the file", nil),
		message.AssistantMessage("I'll read the file for you", "", nil),
		message.UserMessage("thanks", nil),
		message.AssistantMessage("you're welcome", "", nil),
	}

	result := compact.Run(context.Background(), c, msgs, t.TempDir(), "")
	if !result.Success {
		t.Fatalf("expected success, got failure: %s", result.FailureReason)
	}
	if result.OriginalCount != 4 {
		t.Errorf("expected original count 4, got %d", result.OriginalCount)
	}
	if result.Summary != "Summary: discussed file reading" {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
}

func TestCompact_WithFocus(t *testing.T) {
	c, fake := newFakeClient(
		message.CompletionResponse{Content: "Focused summary on testing", StopReason: "end_turn"},
	)

	msgs := []message.Message{
		message.UserMessage("write tests", nil),
		message.AssistantMessage("ok", "", nil),
	}

	compact.Run(context.Background(), c, msgs, t.TempDir(), "testing")

	if len(fake.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(fake.Calls))
	}
	if !strings.Contains(fake.Calls[0].Messages[0].Content, "testing") {
		t.Error("expected focus string 'testing' in sent messages")
	}
}

func TestCompact_EmptyConversation(t *testing.T) {
	c, _ := newFakeClient(
		message.CompletionResponse{Content: "Empty summary", StopReason: "end_turn"},
	)

	result := compact.Run(context.Background(), c, nil, t.TempDir(), "")
	if result.OriginalCount != 0 {
		t.Errorf("expected count 0, got %d", result.OriginalCount)
	}
	if result.Success && result.Summary == "" {
		t.Error("expected non-empty summary on success")
	}
}

func TestNeedsCompaction(t *testing.T) {
	tests := []struct {
		name   string
		input  int
		limit  int
		expect bool
	}{
		{"zero limit", 100, 0, false},
		{"zero tokens", 0, 1000, false},
		{"well below", 500, 1000, false},
		{"at 79%", 790, 1000, false},
		{"at 80%", 800, 1000, true},
		{"at 100%", 1000, 1000, true},
		{"over limit", 1100, 1000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := message.NeedsCompaction(tt.input, tt.limit, 0.8)
			if got != tt.expect {
				t.Errorf("NeedsCompaction(%d, %d, 0.8) = %v, want %v",
					tt.input, tt.limit, got, tt.expect)
			}
		})
	}
}
