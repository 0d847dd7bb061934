package contextmgr

import (
	"context"
	"testing"

	"github.com/agentrt/core/internal/client"
	"github.com/agentrt/core/internal/message"
	"github.com/agentrt/core/internal/provider"
	"github.com/agentrt/core/internal/session"
)

type stubProvider struct {
	resp message.CompletionResponse
}

func (s *stubProvider) Stream(ctx context.Context, opts provider.CompletionOptions) <-chan message.StreamChunk {
	ch := make(chan message.StreamChunk, 1)
	go func() {
		defer close(ch)
		resp := s.resp
		ch <- message.StreamChunk{Type: message.ChunkTypeDone, Response: &resp}
	}()
	return ch
}

func (s *stubProvider) ListModels(ctx context.Context) ([]provider.ModelInfo, error) { return nil, nil }
func (s *stubProvider) Name() string                                                { return "stub" }

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	c := &client.Client{Provider: &stubProvider{}, Model: "test-model"}
	store := session.NewStoreWithDir(t.TempDir())
	meta := session.SessionMetadata{ID: "sess-1", Cwd: "/tmp/project"}
	return New(c, store, meta)
}

func TestAppendUpdatesCachedTokens(t *testing.T) {
	m := newTestManager(t)

	if m.Tokens() != 0 {
		t.Fatalf("expected zero tokens initially, got %d", m.Tokens())
	}

	m.Append(context.Background(), message.UserMessage("hello there, this is a test message", nil))

	if m.Tokens() == 0 {
		t.Error("expected cached token estimate to update after Append")
	}
	if len(m.Messages()) != 1 {
		t.Errorf("expected 1 message, got %d", len(m.Messages()))
	}
}

func TestAppendPersistsToStore(t *testing.T) {
	m := newTestManager(t)
	m.Append(context.Background(), message.UserMessage("persisted message", nil))

	loaded, err := m.store.Load("sess-1")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Content != "persisted message" {
		t.Errorf("expected persisted session to contain the appended message, got %+v", loaded.Messages)
	}
}

func TestReplaceSwapsMessageList(t *testing.T) {
	m := newTestManager(t)
	m.Append(context.Background(), message.UserMessage("first", nil))
	m.Append(context.Background(), message.UserMessage("second", nil))

	m.Replace([]message.Message{message.UserMessage("summary", nil)})

	msgs := m.Messages()
	if len(msgs) != 1 || msgs[0].Content != "summary" {
		t.Errorf("expected replaced list to contain only the summary message, got %+v", msgs)
	}
}

func TestNeedsCompactionFalseWhenEmpty(t *testing.T) {
	m := newTestManager(t)
	if m.NeedsCompaction(context.Background()) {
		t.Error("expected NeedsCompaction to be false for an empty conversation")
	}
}

func TestCompactAppendsBoundary(t *testing.T) {
	m := newTestManager(t)
	m.client.Provider = &stubProvider{resp: message.CompletionResponse{Content: "condensed"}}

	for i := 0; i < 10; i++ {
		m.Append(context.Background(), message.UserMessage("filler message", nil))
	}

	result := m.Compact(context.Background(), t.TempDir(), "")
	if !result.Success {
		t.Fatalf("expected successful compaction, got failure: %s", result.FailureReason)
	}

	loaded, err := m.store.Load("sess-1")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	// Resume semantics should collapse the transcript to just the
	// post-boundary compact summary message.
	if len(loaded.Messages) != 1 {
		t.Errorf("expected resumed session to contain only the compact summary, got %d messages", len(loaded.Messages))
	}
}
