// Package contextmgr implements the Context Manager: the component that
// owns a session's in-memory message list, keeps a cached token estimate
// current after every mutation, and triggers the Compaction Service when
// the cached estimate crosses the configured threshold. Grounded on how
// core.Loop inlined message-list ownership directly; pulled out into its
// own package per the runtime's component-ownership boundaries (no global
// singleton, one owner per session).
package contextmgr

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/agentrt/core/internal/client"
	"github.com/agentrt/core/internal/compact"
	"github.com/agentrt/core/internal/hooks"
	"github.com/agentrt/core/internal/log"
	"github.com/agentrt/core/internal/message"
	"github.com/agentrt/core/internal/session"
	"github.com/agentrt/core/internal/tokens"
)

// defaultCompactionThreshold is the fraction of the resolved input limit at
// which compaction is triggered automatically.
const defaultCompactionThreshold = 0.8

// Manager owns one session's message list and cached token estimate. All
// mutation happens through its methods so the cached estimate never goes
// stale; only the Agent Loop calls into it, matching the single-owner
// shared-resource policy the runtime depends on.
type Manager struct {
	mu sync.Mutex

	client  *client.Client
	counter *tokens.Counter
	store   *session.Store
	meta    session.SessionMetadata
	hooks   *hooks.Engine

	messages     []message.Message
	cachedTokens int
	threshold    float64
}

// New constructs a Manager for one session. store may be nil for callers
// that don't need persistence (e.g. one-shot subagent runs).
func New(c *client.Client, store *session.Store, meta session.SessionMetadata) *Manager {
	return &Manager{
		client:    c,
		counter:   &tokens.Counter{Provider: c.Provider, Model: c.Model},
		store:     store,
		meta:      meta,
		threshold: defaultCompactionThreshold,
	}
}

// SetHooks attaches the hook dispatcher used to fire UserPromptSubmit (from
// Append) and Compaction (from Compact). Both stay no-ops when unset, the
// steady state for callers (e.g. subagent runs) that don't configure hooks.
func (m *Manager) SetHooks(h *hooks.Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = h
}

// Messages returns a snapshot of the current message list.
func (m *Manager) Messages() []message.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]message.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Tokens returns the cached token estimate for the current message list.
func (m *Manager) Tokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cachedTokens
}

// Append adds a message to the list and refreshes the cached token
// estimate. It persists the message to the session store, fire-and-forget,
// per §4.6's durability model: write failures are logged, never returned.
// A user-role message first runs through UserPromptSubmit hooks (§2 control
// flow step 1): additionalContext from a matching hook is folded into the
// message before it ever joins the transcript or reaches the LLM.
func (m *Manager) Append(ctx context.Context, msg message.Message) {
	if msg.Role == message.RoleUser {
		msg = m.runUserPromptSubmit(ctx, msg)
	}

	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.cachedTokens = m.counter.Estimate(m.messages)
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.persist(snapshot)
}

func (m *Manager) runUserPromptSubmit(ctx context.Context, msg message.Message) message.Message {
	m.mu.Lock()
	h := m.hooks
	m.mu.Unlock()
	if h == nil {
		return msg
	}

	outcome := h.Execute(ctx, hooks.UserPromptSubmit, hooks.HookInput{Prompt: msg.Content})
	if outcome.ShouldBlock {
		log.Logger().Warn("UserPromptSubmit hook blocked a prompt that was submitted anyway",
			zap.String("reason", outcome.BlockReason))
	}
	if outcome.AdditionalContext != "" {
		msg.Content = msg.Content + "\n\n[Hook Context]\n" + outcome.AdditionalContext
	}
	return msg
}

// Replace atomically swaps the entire message list, used by compaction's
// message-list swap (§4.5 atomicity guarantee: the swap either fully
// commits or the prior state is untouched — since this call only mutates
// under the manager's own lock, a caller never observes a partial list).
func (m *Manager) Replace(msgs []message.Message) {
	m.mu.Lock()
	m.messages = msgs
	m.cachedTokens = m.counter.Estimate(m.messages)
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.persist(snapshot)
}

func (m *Manager) snapshotLocked() *session.Session {
	stored := make([]session.StoredMessage, len(m.messages))
	for i, msg := range m.messages {
		stored[i] = session.FromMessage(msg)
	}
	return &session.Session{Metadata: m.meta, Messages: stored}
}

func (m *Manager) persist(sess *session.Session) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(sess); err != nil {
		log.Logger().Warn("failed to persist session", zap.Error(err))
		return
	}
	// Save assigns an ID on first write; remember it so later appends land
	// in the same transcript file instead of minting a new one each time.
	m.mu.Lock()
	m.meta.ID = sess.Metadata.ID
	m.meta.CreatedAt = sess.Metadata.CreatedAt
	m.mu.Unlock()
}

// SessionID returns the session's persisted ID, populated after the first
// successful save (empty before that, or when no store is configured).
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta.ID
}

// NeedsCompaction reports whether the cached token estimate has crossed
// the compaction trigger threshold against the client's resolved input
// limit.
func (m *Manager) NeedsCompaction(ctx context.Context) bool {
	m.mu.Lock()
	tok := m.cachedTokens
	m.mu.Unlock()

	limit := m.counter.ResolveInputLimit(ctx)
	return message.NeedsCompaction(tok, limit, m.threshold)
}

// Compact runs the Compaction Service against the current message list and
// atomically replaces it with the result, appending the compact_boundary
// and compact_summary pair to the session store. cwd roots the file-mention
// candidate reads; focus optionally steers the summary. Fires a Compaction
// hook both before the swap (trigger == "auto", matching the threshold-driven
// call path every caller uses) and after, reporting success/failure.
func (m *Manager) Compact(ctx context.Context, cwd, focus string) compact.Result {
	m.mu.Lock()
	msgs := make([]message.Message, len(m.messages))
	copy(msgs, m.messages)
	m.mu.Unlock()

	m.runCompactionHook(ctx, "auto", "")

	result := compact.Run(ctx, m.client, msgs, cwd, focus)
	m.Replace(result.Retained)

	reason := "threshold"
	if !result.Success {
		reason = "threshold-fallback"
	}
	m.runCompactionHook(ctx, "auto", result.FailureReason)

	if m.store != nil {
		if err := m.store.AppendCompactBoundary(m.meta.Cwd, m.meta.ID, reason, result.Summary, result.Success); err != nil {
			log.Logger().Warn("failed to append compact boundary", zap.Error(err))
		}
	}

	return result
}

func (m *Manager) runCompactionHook(ctx context.Context, trigger, errMsg string) {
	m.mu.Lock()
	h := m.hooks
	m.mu.Unlock()
	if h == nil {
		return
	}
	h.Execute(ctx, hooks.Compaction, hooks.HookInput{Trigger: trigger, Error: errMsg})
}
