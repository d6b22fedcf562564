package events

import (
	"encoding/json"
	"testing"

	"github.com/willy3087/codex-gateway/internal/agent"
	"github.com/willy3087/codex-gateway/internal/wire"
)

func TestNormalizer_ThreadStarted_CapturesThreadID(t *testing.T) {
	n := NewNormalizer(wire.NewConversationID())

	out := n.Feed(agent.RawEvent{Type: "thread.started", ThreadID: "thread-123"})
	if len(out) != 1 || out[0].Type != wire.EventThreadStarted {
		t.Fatalf("expected a single thread.started event, got %v", out)
	}
	if n.ThreadID() != "thread-123" {
		t.Errorf("expected thread id thread-123, got %q", n.ThreadID())
	}
	if n.Done() {
		t.Error("normalizer should not be done after thread.started")
	}
}

func TestNormalizer_StderrLineIsSurfaced(t *testing.T) {
	n := NewNormalizer(wire.NewConversationID())
	out := n.Feed(agent.StderrLine{Data: []byte("some diagnostic")})
	if len(out) != 1 || out[0].Type != wire.EventStderrLine {
		t.Fatalf("expected a single stderr_line event, got %v", out)
	}
	if out[0].Message != "some diagnostic" {
		t.Errorf("expected stderr line message to round-trip, got %q", out[0].Message)
	}
}

func TestNormalizer_StdoutLineIsSurfaced(t *testing.T) {
	n := NewNormalizer(wire.NewConversationID())
	out := n.Feed(agent.StdoutLine{Data: []byte("not json")})
	if len(out) != 1 || out[0].Type != wire.EventStdoutLine {
		t.Fatalf("expected a single stdout_line event, got %v", out)
	}
}

func TestNormalizer_TurnCompleted_MarksDone(t *testing.T) {
	n := NewNormalizer(wire.NewConversationID())
	n.Feed(agent.RawEvent{Type: "thread.started"})

	out := n.Feed(agent.RawEvent{Type: "turn.completed"})
	if len(out) != 1 || out[0].Type != wire.EventTurnCompleted {
		t.Fatalf("expected a single turn.completed event, got %v", out)
	}
	if !n.Done() {
		t.Error("expected normalizer to be done after turn.completed")
	}
}

func TestNormalizer_TurnCompleted_ParsesUsage(t *testing.T) {
	n := NewNormalizer(wire.NewConversationID())
	usage, _ := json.Marshal(wire.TurnUsage{InputTokens: 10, OutputTokens: 20})

	out := n.Feed(agent.RawEvent{Type: "turn.completed", Usage: usage})
	if len(out) != 1 {
		t.Fatalf("expected one event, got %d", len(out))
	}
	if out[0].Usage == nil {
		t.Fatal("expected usage to be populated")
	}
	if out[0].Usage.InputTokens != 10 || out[0].Usage.OutputTokens != 20 {
		t.Errorf("unexpected usage: %+v", out[0].Usage)
	}
}

func TestNormalizer_ErrorEvent_MarksDone(t *testing.T) {
	n := NewNormalizer(wire.NewConversationID())
	out := n.Feed(agent.RawEvent{Type: "error", Raw: json.RawMessage(`{"type":"error","message":"boom"}`)})
	if len(out) != 1 || out[0].Type != wire.EventError {
		t.Fatalf("expected a single error event, got %v", out)
	}
	if !n.Done() {
		t.Error("expected normalizer to be done after an error event")
	}
}

func TestNormalizer_ItemLifecycle(t *testing.T) {
	n := NewNormalizer(wire.NewConversationID())

	startItem, _ := json.Marshal(map[string]string{"id": "item-1", "type": "agent_message"})
	out := n.Feed(agent.RawEvent{Type: "item.started", Item: startItem})
	if len(out) != 1 || out[0].Type != wire.EventItemStarted {
		t.Fatalf("expected item.started event, got %v", out)
	}
	if out[0].Item.Completed {
		t.Error("item.started should not be marked completed")
	}

	completedItem, _ := json.Marshal(map[string]string{"id": "item-1", "type": "agent_message", "text": "hello"})
	out = n.Feed(agent.RawEvent{Type: "item.completed", Item: completedItem})
	if len(out) != 1 || out[0].Type != wire.EventItemCompleted {
		t.Fatalf("expected item.completed event, got %v", out)
	}
	if !out[0].Item.Completed {
		t.Error("item.completed should be marked completed")
	}
	if out[0].Item.Text != "hello" {
		t.Errorf("expected item text 'hello', got %q", out[0].Item.Text)
	}
}

func TestNormalizer_UserMessageItemsAreDropped(t *testing.T) {
	n := NewNormalizer(wire.NewConversationID())
	item, _ := json.Marshal(map[string]string{"id": "item-1", "type": "user_message", "text": "echoed prompt"})
	out := n.Feed(agent.RawEvent{Type: "item.completed", Item: item})
	if out != nil {
		t.Errorf("expected user_message items to be dropped, got %v", out)
	}
}

func TestNormalizer_Exit_ZeroCodeIsCompleted(t *testing.T) {
	n := NewNormalizer(wire.NewConversationID())
	code := 0
	out := n.Feed(agent.Exit{Code: &code})
	if len(out) != 1 || out[0].Type != wire.EventTurnCompleted {
		t.Fatalf("expected turn.completed on clean exit, got %v", out)
	}
	if !n.Done() {
		t.Error("expected normalizer done after exit")
	}
}

func TestNormalizer_Exit_NonZeroCodeIsFailed(t *testing.T) {
	n := NewNormalizer(wire.NewConversationID())
	code := 1
	out := n.Feed(agent.Exit{Code: &code})
	if len(out) != 1 || out[0].Type != wire.EventTurnFailed {
		t.Fatalf("expected turn.failed on nonzero exit, got %v", out)
	}
}

func TestNormalizer_Exit_AfterDoneProducesNothing(t *testing.T) {
	n := NewNormalizer(wire.NewConversationID())
	n.Feed(agent.RawEvent{Type: "turn.completed"})

	code := 0
	out := n.Feed(agent.Exit{Code: &code})
	if out != nil {
		t.Errorf("expected no further events once normalizer is done, got %v", out)
	}
}

func TestNormalizer_UnknownEventProducesNothing(t *testing.T) {
	n := NewNormalizer(wire.NewConversationID())
	out := n.Feed(agent.RawEvent{Type: "some.future.event"})
	if out != nil {
		t.Errorf("expected unknown event types to be ignored, got %v", out)
	}
}

func TestNormalizer_DeltaEvents_AreSilentUntilFlushed(t *testing.T) {
	n := NewNormalizer(wire.NewConversationID())

	out := n.Feed(agent.RawEvent{Type: "agent_message_delta", Delta: "hel"})
	if out != nil {
		t.Errorf("expected a delta event to produce no output on its own, got %v", out)
	}
	out = n.Feed(agent.RawEvent{Type: "agent_message_delta", Delta: "lo"})
	if out != nil {
		t.Errorf("expected a second delta event to produce no output on its own, got %v", out)
	}
}

func TestNormalizer_DeltaEvents_FlushOnTurnCompleted(t *testing.T) {
	n := NewNormalizer(wire.NewConversationID())

	n.Feed(agent.RawEvent{Type: "agent_message_delta", Delta: "hel"})
	n.Feed(agent.RawEvent{Type: "agent_message_delta", Delta: "lo"})
	out := n.Feed(agent.RawEvent{Type: "turn.completed"})

	if len(out) != 2 {
		t.Fatalf("expected a coalesced item.completed plus turn.completed, got %v", out)
	}
	if out[0].Type != wire.EventItemCompleted || out[0].Item == nil {
		t.Fatalf("expected the first event to be a coalesced item.completed, got %v", out[0])
	}
	if out[0].Item.Text != "hello" {
		t.Errorf("expected coalesced delta text 'hello', got %q", out[0].Item.Text)
	}
	if !out[0].Item.Completed {
		t.Error("expected the coalesced item to be marked completed")
	}
	if out[1].Type != wire.EventTurnCompleted {
		t.Errorf("expected the second event to be turn.completed, got %v", out[1])
	}
}

func TestNormalizer_DeltaEvents_SupersededByRealItemCompleted(t *testing.T) {
	n := NewNormalizer(wire.NewConversationID())

	n.Feed(agent.RawEvent{Type: "agent_message_delta", Delta: "partial"})
	completedItem, _ := json.Marshal(map[string]string{"id": "item-1", "type": "agent_message", "text": "full text"})
	n.Feed(agent.RawEvent{Type: "item.completed", Item: completedItem})

	out := n.Feed(agent.RawEvent{Type: "turn.completed"})
	if len(out) != 1 || out[0].Type != wire.EventTurnCompleted {
		t.Fatalf("expected the superseded delta to produce no extra flush, got %v", out)
	}
}
