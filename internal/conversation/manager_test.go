package conversation

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/willy3087/codex-gateway/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestGetOrCreate_EmptySessionIsEphemeral(t *testing.T) {
	m := NewManager(testLogger())

	a := m.GetOrCreate("")
	b := m.GetOrCreate("")

	if a.ID == b.ID {
		t.Fatal("two empty-session calls should each create a distinct ephemeral conversation")
	}
	if _, ok := m.Status(""); ok {
		t.Error("an ephemeral conversation must not be resolvable by session ID")
	}
}

func TestGetOrCreate_BindsNewSession(t *testing.T) {
	m := NewManager(testLogger())

	conv := m.GetOrCreate("sess-1")
	status, ok := m.Status("sess-1")
	if !ok {
		t.Fatal("expected session to be bound after GetOrCreate")
	}
	if status.ConversationID != conv.ID {
		t.Errorf("expected status conversation id %s, got %s", conv.ID, status.ConversationID)
	}
}

func TestGetOrCreate_ReturnsExistingBinding(t *testing.T) {
	m := NewManager(testLogger())

	first := m.GetOrCreate("sess-1")
	second := m.GetOrCreate("sess-1")

	if first.ID != second.ID {
		t.Errorf("expected repeated GetOrCreate with the same session to return the same conversation, got %s and %s", first.ID, second.ID)
	}
}

func TestResume_PreservesThreadIDWhenEmpty(t *testing.T) {
	m := NewManager(testLogger())
	existing := m.GetOrCreate("")

	conv, err := m.Resume(existing.ID, "sess-1", "thread-abc")
	if err != nil {
		t.Fatalf("unexpected error resuming a known conversation: %v", err)
	}
	if conv.ThreadID != "thread-abc" {
		t.Fatalf("expected thread id to be set, got %q", conv.ThreadID)
	}

	conv2, err := m.Resume(existing.ID, "sess-1", "")
	if err != nil {
		t.Fatalf("unexpected error on second resume: %v", err)
	}
	if conv2.ThreadID != "thread-abc" {
		t.Errorf("expected resume with empty thread id to preserve existing thread id, got %q", conv2.ThreadID)
	}
}

func TestResume_OverwritesThreadIDWhenSet(t *testing.T) {
	m := NewManager(testLogger())
	existing := m.GetOrCreate("")

	if _, err := m.Resume(existing.ID, "sess-1", "thread-abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conv, err := m.Resume(existing.ID, "sess-1", "thread-xyz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if conv.ThreadID != "thread-xyz" {
		t.Errorf("expected thread id to be overwritten, got %q", conv.ThreadID)
	}
}

func TestResume_UnknownConversationFails(t *testing.T) {
	m := NewManager(testLogger())

	conv, err := m.Resume("does-not-exist", "sess-1", "thread-abc")
	if err == nil {
		t.Fatal("expected resuming an unknown conversation id to fail")
	}
	if conv != nil {
		t.Errorf("expected a nil conversation on failure, got %+v", conv)
	}
	if _, ok := m.Status("sess-1"); ok {
		t.Error("a failed resume must not bind the session")
	}
}

func TestStatus_UnknownSessionIsNotFoundNotError(t *testing.T) {
	m := NewManager(testLogger())

	_, ok := m.Status("does-not-exist")
	if ok {
		t.Error("expected unknown session to report ok=false, not panic or error")
	}
}

func TestCancel_UnregistersWithoutAbortingTurn(t *testing.T) {
	m := NewManager(testLogger())

	conv := m.GetOrCreate("sess-1")
	stopped := false
	m.SetActiveTurn(conv.ID, interruptFunc(func() error {
		stopped = true
		return nil
	}))

	id, ok := m.Cancel("sess-1")
	if !ok {
		t.Fatal("expected cancel of a bound session to succeed")
	}
	if id != conv.ID {
		t.Errorf("expected cancel to return conversation id %s, got %s", conv.ID, id)
	}
	if stopped {
		t.Error("cancel must not stop the active turn")
	}
	if _, ok := m.Status("sess-1"); ok {
		t.Error("expected session binding to be gone after cancel")
	}
}

func TestCancel_UnknownSessionFails(t *testing.T) {
	m := NewManager(testLogger())

	if _, ok := m.Cancel("nope"); ok {
		t.Error("expected cancel of an unknown session to report ok=false")
	}
}

func TestInterrupt_StopsActiveTurn(t *testing.T) {
	m := NewManager(testLogger())

	conv := m.GetOrCreate("sess-1")
	stopped := false
	m.SetActiveTurn(conv.ID, interruptFunc(func() error {
		stopped = true
		return nil
	}))

	id, ok := m.Interrupt("sess-1")
	if !ok {
		t.Fatal("expected interrupt to succeed when a turn is active")
	}
	if id != conv.ID {
		t.Errorf("expected interrupt to return conversation id %s, got %s", conv.ID, id)
	}
	if !stopped {
		t.Error("expected interrupt to stop the active turn")
	}

	// The binding itself should still be intact, unlike Cancel.
	if _, ok := m.Status("sess-1"); !ok {
		t.Error("interrupt must not remove the session binding")
	}
}

func TestInterrupt_NoActiveTurnReportsFalse(t *testing.T) {
	m := NewManager(testLogger())

	m.GetOrCreate("sess-1")
	_, ok := m.Interrupt("sess-1")
	if ok {
		t.Error("expected interrupt with no active turn to report ok=false")
	}
}

func TestRecordTurnStatus_ReflectedInStatus(t *testing.T) {
	m := NewManager(testLogger())

	conv := m.GetOrCreate("sess-1")
	m.RecordTurnStatus(conv.ID, wire.StatusCompleted)

	status, ok := m.Status("sess-1")
	if !ok {
		t.Fatal("expected session to resolve")
	}
	if status.LastTurnStatus != wire.StatusCompleted {
		t.Errorf("expected last turn status completed, got %s", status.LastTurnStatus)
	}
}

type interruptFunc func() error

func (f interruptFunc) Interrupt() error { return f() }

var _ Interruptible = interruptFunc(func() error { return errors.New("unused") })
