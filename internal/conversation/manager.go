// Package conversation implements the gateway's conversation lifecycle:
// a registry binding caller-supplied session IDs to conversations, and
// the get-or-create / resume / status / cancel / interrupt operations
// every surface (HTTP, JSON-RPC, WebSocket) builds on.
package conversation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/willy3087/codex-gateway/internal/gatewayerr"
	"github.com/willy3087/codex-gateway/internal/wire"
)

// Status is the externally visible state of a conversation.
type Status struct {
	ConversationID wire.ConversationID `json:"conversation_id"`
	SessionID      wire.SessionID      `json:"session_id,omitempty"`
	LastTurnStatus wire.TurnStatus     `json:"last_turn_status,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// Conversation is the manager's internal record for one conversation.
// ThreadID is the agent-native thread identifier last reported by the
// agent. It is recorded only: a turn does not pass it back to the agent
// subprocess, so a new turn does not resume the agent's thread.
type Conversation struct {
	ID        wire.ConversationID
	ThreadID  string
	CreatedAt time.Time

	mu             sync.Mutex
	lastTurnStatus wire.TurnStatus
	activeTurn     Interruptible
}

// Interruptible is the narrow view of a running turn's agent session
// that the conversation manager needs in order to interrupt it.
type Interruptible interface {
	Interrupt() error
}

func (c *Conversation) setLastTurnStatus(s wire.TurnStatus) {
	c.mu.Lock()
	c.lastTurnStatus = s
	c.mu.Unlock()
}

func (c *Conversation) status() wire.TurnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTurnStatus
}

// Manager owns the set of live conversations and the session-ID
// bindings that let a caller address the same conversation across
// multiple HTTP requests without tracking the conversation ID itself.
type Manager struct {
	logger *slog.Logger

	mu                   sync.Mutex
	conversations        map[wire.ConversationID]*Conversation
	sessionToConversation map[wire.SessionID]wire.ConversationID
}

// NewManager constructs an empty conversation registry.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:                logger,
		conversations:         make(map[wire.ConversationID]*Conversation),
		sessionToConversation: make(map[wire.SessionID]wire.ConversationID),
	}
}

// GetOrCreate resolves sessionID to its bound conversation, creating a
// new one when needed. The three branches mirror the reference
// semantics exactly:
//
//   - sessionID set and bound: return the existing conversation.
//   - sessionID set but unbound: create a new conversation and bind it.
//   - sessionID empty: create an ephemeral conversation that is never
//     registered under any session ID, so it cannot be resolved again.
func (m *Manager) GetOrCreate(sessionID wire.SessionID) *Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID != "" {
		if id, ok := m.sessionToConversation[sessionID]; ok {
			if conv, ok := m.conversations[id]; ok {
				return conv
			}
		}
	}

	conv := &Conversation{ID: wire.NewConversationID(), CreatedAt: time.Now()}
	m.conversations[conv.ID] = conv

	if sessionID != "" {
		m.sessionToConversation[sessionID] = conv.ID
		m.logger.Debug("created and bound conversation", "session_id", sessionID, "conversation_id", conv.ID)
	} else {
		m.logger.Debug("created ephemeral conversation", "conversation_id", conv.ID)
	}

	return conv
}

// Resume registers sessionID against an already-known conversation ID,
// without spawning or touching any subprocess, and stores threadID on
// the conversation when it is non-empty. No persisted rollout is read
// and the agent is not told to resume anything. It fails if conversationID does not name a conversation this manager
// already knows about: resuming a conversation is not a way to create
// one.
func (m *Manager) Resume(conversationID wire.ConversationID, sessionID wire.SessionID, threadID string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return nil, gatewayerr.InvalidRequest("no conversation found with id %q", conversationID)
	}
	if threadID != "" {
		conv.ThreadID = threadID
	}
	m.sessionToConversation[sessionID] = conversationID
	return conv, nil
}

// Status returns the conversation bound to sessionID, or (nil, false)
// if no such binding exists. Unlike Cancel, an unknown session here is
// not an error condition for callers — JSON-RPC's conversation.status
// reports it as a successful "not_found" result.
func (m *Manager) Status(sessionID wire.SessionID) (Status, bool) {
	m.mu.Lock()
	id, ok := m.sessionToConversation[sessionID]
	if !ok {
		m.mu.Unlock()
		return Status{}, false
	}
	conv, ok := m.conversations[id]
	m.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	return Status{
		ConversationID: conv.ID,
		SessionID:      sessionID,
		LastTurnStatus: conv.status(),
		CreatedAt:      conv.CreatedAt,
	}, true
}

// Cancel removes the session->conversation binding and the
// conversation record itself, returning the removed conversation ID.
// It does not abort any turn currently in flight on that conversation —
// the agent subprocess, if running, keeps running to completion; Cancel
// only severs the gateway's ability to address it again by session ID.
func (m *Manager) Cancel(sessionID wire.SessionID) (wire.ConversationID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.sessionToConversation[sessionID]
	if !ok {
		return "", false
	}
	delete(m.sessionToConversation, sessionID)
	delete(m.conversations, id)
	return id, true
}

// SetActiveTurn records the running turn's agent session so a later
// Interrupt call can stop it. Pass nil once the turn reaches a terminal
// state.
func (m *Manager) SetActiveTurn(id wire.ConversationID, turn Interruptible) {
	m.mu.Lock()
	conv, ok := m.conversations[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	conv.mu.Lock()
	conv.activeTurn = turn
	conv.mu.Unlock()
}

// Interrupt requests that the in-flight turn on sessionID's bound
// conversation stop, unlike Cancel — which only forgets the binding.
// Reports false if the session has no bound conversation or no turn is
// currently running on it.
func (m *Manager) Interrupt(sessionID wire.SessionID) (wire.ConversationID, bool) {
	m.mu.Lock()
	id, ok := m.sessionToConversation[sessionID]
	if !ok {
		m.mu.Unlock()
		return "", false
	}
	conv, ok := m.conversations[id]
	m.mu.Unlock()
	if !ok {
		return "", false
	}

	conv.mu.Lock()
	turn := conv.activeTurn
	conv.mu.Unlock()
	if turn == nil {
		return id, false
	}
	_ = turn.Interrupt()
	return id, true
}

// RecordTurnStatus updates the conversation's last observed turn status,
// called by the turn executor once a turn reaches a terminal state.
func (m *Manager) RecordTurnStatus(id wire.ConversationID, status wire.TurnStatus) {
	m.mu.Lock()
	conv, ok := m.conversations[id]
	m.mu.Unlock()
	if ok {
		conv.setLastTurnStatus(status)
	}
}
