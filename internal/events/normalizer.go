// Package events converts the agent subprocess's raw JSONL protocol
// into the gateway's stable ThreadEvent vocabulary. The conversion is a
// deterministic per-turn state machine: Idle -> ThreadOpen -> InTurn ->
// Done. Callers feed raw subprocess events in arrival order and collect
// the normalised ThreadEvents it emits.
package events

import (
	"encoding/json"
	"strings"

	"github.com/willy3087/codex-gateway/internal/agent"
	"github.com/willy3087/codex-gateway/internal/wire"
)

type state int

const (
	stateIdle state = iota
	stateThreadOpen
	stateInTurn
	stateDone
)

const deltaSuffix = "_delta"

// Normalizer holds the per-turn conversion state. One Normalizer is
// created per turn and discarded once it reaches stateDone.
type Normalizer struct {
	conversationID wire.ConversationID
	state          state
	threadID       string

	// pendingDeltas accumulates "*_delta" text by item type, keyed on
	// the event type with its "_delta" suffix stripped (e.g.
	// "agent_message"). When a matching item.started/item.completed
	// arrives, the real item supersedes it and the pending text is
	// discarded; otherwise it is flushed into a single item.completed
	// event for that type at turn end.
	pendingDeltas map[string]string
}

// NewNormalizer starts a fresh per-turn state machine bound to the
// given conversation.
func NewNormalizer(conversationID wire.ConversationID) *Normalizer {
	return &Normalizer{conversationID: conversationID, state: stateIdle}
}

// ThreadID returns the agent-native thread identifier once observed.
// The turn executor records it on the conversation.
func (n *Normalizer) ThreadID() string { return n.threadID }

// Done reports whether the state machine has reached a terminal state.
func (n *Normalizer) Done() bool { return n.state == stateDone }

// Feed consumes one raw subprocess event and returns the normalised
// ThreadEvents it produces, in order. An input may produce zero, one,
// or several output events (e.g. a terminal event preceded by pending
// delta text yields the flushed item.completed events and then the
// terminal event).
func (n *Normalizer) Feed(raw any) []wire.ThreadEvent {
	switch v := raw.(type) {
	case agent.RawEvent:
		return n.feedRawEvent(v)
	case agent.StdoutLine:
		return []wire.ThreadEvent{{
			Type:           wire.EventStdoutLine,
			ConversationID: n.conversationID,
			Message:        string(v.Data),
		}}
	case agent.StderrLine:
		return []wire.ThreadEvent{{
			Type:           wire.EventStderrLine,
			ConversationID: n.conversationID,
			Message:        string(v.Data),
		}}
	case agent.Exit:
		return n.feedExit(v)
	default:
		return nil
	}
}

func (n *Normalizer) feedRawEvent(ev agent.RawEvent) []wire.ThreadEvent {
	if strings.HasSuffix(ev.Type, deltaSuffix) {
		return n.feedDelta(ev)
	}

	switch ev.Type {
	case "thread.started":
		if n.state == stateIdle {
			n.state = stateThreadOpen
		}
		if ev.ThreadID != "" {
			n.threadID = ev.ThreadID
		}
		return []wire.ThreadEvent{{
			Type:           wire.EventThreadStarted,
			ConversationID: n.conversationID,
		}}

	case "turn.completed":
		out := n.flushPendingDeltas()
		n.state = stateDone
		completed := wire.ThreadEvent{
			Type:           wire.EventTurnCompleted,
			ConversationID: n.conversationID,
		}
		if len(ev.Usage) > 0 {
			var usage wire.TurnUsage
			if err := json.Unmarshal(ev.Usage, &usage); err == nil {
				completed.Usage = &usage
			}
		}
		return append(out, completed)

	case "turn.failed":
		out := n.flushPendingDeltas()
		n.state = stateDone
		return append(out, wire.ThreadEvent{
			Type:           wire.EventTurnFailed,
			ConversationID: n.conversationID,
			Message:        string(ev.Raw),
		})

	case "error":
		out := n.flushPendingDeltas()
		n.state = stateDone
		return append(out, wire.ThreadEvent{
			Type:           wire.EventError,
			ConversationID: n.conversationID,
			Message:        string(ev.Raw),
		})

	case "item.started":
		n.state = stateInTurn
		item := parseItemHeader(ev.Item)
		if item == nil {
			return nil
		}
		delete(n.pendingDeltas, item.Type)
		return []wire.ThreadEvent{{
			Type:           wire.EventItemStarted,
			ConversationID: n.conversationID,
			Item:           item,
		}}

	case "item.completed", "item.updated":
		n.state = stateInTurn
		item := parseCompletedItem(ev.Item)
		if item == nil {
			return nil
		}
		delete(n.pendingDeltas, item.Type)
		item.Completed = true
		return []wire.ThreadEvent{{
			Type:           wire.EventItemCompleted,
			ConversationID: n.conversationID,
			Item:           item,
		}}

	default:
		return nil
	}
}

// feedDelta accumulates a streamed "*_delta" event's text under its
// base item type. It never emits an event on its own: the accumulated
// text surfaces only once the item completes or the turn ends,
// matching how the rest of the normaliser only ever emits whole items.
func (n *Normalizer) feedDelta(ev agent.RawEvent) []wire.ThreadEvent {
	n.state = stateInTurn
	text := ev.Delta
	if text == "" {
		text = ev.DeltaContent
	}
	if text == "" {
		return nil
	}
	if n.pendingDeltas == nil {
		n.pendingDeltas = make(map[string]string)
	}
	base := strings.TrimSuffix(ev.Type, deltaSuffix)
	n.pendingDeltas[base] += text
	return nil
}

// flushPendingDeltas turns any accumulated, never-completed delta text
// into item.completed events, one per item type still pending.
func (n *Normalizer) flushPendingDeltas() []wire.ThreadEvent {
	if len(n.pendingDeltas) == 0 {
		return nil
	}
	out := make([]wire.ThreadEvent, 0, len(n.pendingDeltas))
	for itemType, text := range n.pendingDeltas {
		out = append(out, wire.ThreadEvent{
			Type:           wire.EventItemCompleted,
			ConversationID: n.conversationID,
			Item:           &wire.ThreadItem{Type: itemType, Text: text, Completed: true},
		})
	}
	n.pendingDeltas = nil
	return out
}

func (n *Normalizer) feedExit(ex agent.Exit) []wire.ThreadEvent {
	if n.state == stateDone {
		return nil
	}
	out := n.flushPendingDeltas()
	n.state = stateDone
	if ex.Code != nil && *ex.Code == 0 {
		return append(out, wire.ThreadEvent{
			Type:           wire.EventTurnCompleted,
			ConversationID: n.conversationID,
		})
	}
	msg := "agent process exited unexpectedly"
	if ex.Err != nil {
		msg = ex.Err.Error()
	}
	return append(out, wire.ThreadEvent{
		Type:           wire.EventTurnFailed,
		ConversationID: n.conversationID,
		Message:        msg,
	})
}

func parseItemHeader(raw json.RawMessage) *wire.ThreadItem {
	if len(raw) == 0 {
		return nil
	}
	var hdr struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil
	}
	return &wire.ThreadItem{ID: hdr.ID, Type: hdr.Type}
}

// parseCompletedItem maps a completed Codex item (agent_message,
// reasoning, command_execution, file_change, mcp_tool_call,
// web_search, plan, user_message) into a single ThreadItem. user_message
// items echo the caller's own prompt back and are dropped.
func parseCompletedItem(raw json.RawMessage) *wire.ThreadItem {
	if len(raw) == 0 {
		return nil
	}
	var item struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		Text     string `json:"text,omitempty"`
		Summary  string `json:"summary,omitempty"`
		Command  string `json:"command,omitempty"`
		ExitCode *int   `json:"exitCode,omitempty"`
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil
	}

	switch item.Type {
	case "user_message":
		return nil
	case "agent_message", "message", "plan":
		return &wire.ThreadItem{ID: item.ID, Type: item.Type, Text: item.Text}
	case "reasoning":
		text := item.Summary
		if len(text) > 500 {
			text = text[:500]
		}
		return &wire.ThreadItem{ID: item.ID, Type: item.Type, Text: text}
	case "command_execution":
		return &wire.ThreadItem{ID: item.ID, Type: item.Type, Command: item.Command, ExitCode: item.ExitCode}
	default:
		return &wire.ThreadItem{ID: item.ID, Type: item.Type, Text: item.Text}
	}
}
