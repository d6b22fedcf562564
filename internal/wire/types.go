// Package wire defines the data types exchanged across the gateway's
// external surfaces: conversation identifiers, turn inputs, the
// normalised thread-event vocabulary, and the records persisted after a
// turn completes.
package wire

import (
	"time"

	"github.com/google/uuid"
)

// ConversationID identifies a single agent conversation. It is a
// 128-bit value rendered as lowercase hyphenated hex, the same shape
// the agent binary itself uses for thread identifiers.
type ConversationID string

// NewConversationID generates a fresh random conversation identifier.
func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}

func (c ConversationID) String() string { return string(c) }

// SessionID is an opaque caller-supplied handle binding repeated calls
// to the same conversation. Unlike ConversationID it is never generated
// by the gateway.
type SessionID string

// UserInputKind tags the variant carried by a UserInput.
type UserInputKind string

const (
	UserInputText       UserInputKind = "text"
	UserInputImage      UserInputKind = "image"
	UserInputLocalImage UserInputKind = "local_image"
)

// UserInput is a single item of a turn's prompt. Exactly one of the
// fields matching Kind is populated.
type UserInput struct {
	Kind UserInputKind `json:"type"`

	// Text holds the prompt text for Kind == UserInputText.
	Text string `json:"text,omitempty"`

	// ImageURL holds a data: URI or remote URL for Kind == UserInputImage.
	ImageURL string `json:"image_url,omitempty"`

	// LocalPath holds a filesystem path for Kind == UserInputLocalImage.
	LocalPath string `json:"path,omitempty"`
}

// ThreadEventType enumerates the gateway's public event vocabulary.
// Every raw agent event is normalised into one of these before it ever
// reaches a caller.
type ThreadEventType string

const (
	EventThreadStarted ThreadEventType = "thread.started"
	EventTurnStarted   ThreadEventType = "turn.started"
	EventItemStarted   ThreadEventType = "item.started"
	EventItemCompleted ThreadEventType = "item.completed"
	EventTurnCompleted ThreadEventType = "turn.completed"
	EventTurnFailed    ThreadEventType = "turn.failed"
	EventError         ThreadEventType = "error"

	// EventStdoutLine and EventStderrLine carry raw subprocess output
	// that the Event Normaliser cannot or does not fold into the item
	// lifecycle above: unparseable stdout lines and every stderr line.
	EventStdoutLine ThreadEventType = "stdout_line"
	EventStderrLine ThreadEventType = "stderr_line"
)

// ThreadEvent is the single event shape delivered to every caller,
// whether buffered into an ExecResponse or streamed over a WebSocket.
type ThreadEvent struct {
	Type           ThreadEventType `json:"type"`
	ConversationID ConversationID  `json:"conversation_id,omitempty"`
	Item           *ThreadItem     `json:"item,omitempty"`
	Message        string          `json:"message,omitempty"`
	Usage          *TurnUsage      `json:"usage,omitempty"`
}

// ThreadItem describes a single agent-visible unit of work: a streamed
// message, a reasoning block, a tool call, or a file change.
type ThreadItem struct {
	ID        string `json:"id"`
	Type      string `json:"item_type"`
	Text      string `json:"text,omitempty"`
	Command   string `json:"command,omitempty"`
	ExitCode  *int   `json:"exit_code,omitempty"`
	Completed bool   `json:"completed"`
}

// TurnUsage reports token accounting for a completed turn, when the
// agent reports it.
type TurnUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// TurnStatus is the terminal classification of a turn, computed from
// the event stream by first-match priority: error > failed > completed
// > unknown.
type TurnStatus string

const (
	StatusError     TurnStatus = "error"
	StatusFailed    TurnStatus = "failed"
	StatusCompleted TurnStatus = "completed"
	StatusTimeout   TurnStatus = "timeout"
	StatusUnknown   TurnStatus = "unknown"
)

// DetermineStatus classifies a finished event stream by first-match
// priority over the terminal event types present in it.
func DetermineStatus(events []ThreadEvent) TurnStatus {
	sawFailed := false
	sawCompleted := false
	for _, e := range events {
		switch e.Type {
		case EventError:
			return StatusError
		case EventTurnFailed:
			sawFailed = true
		case EventTurnCompleted:
			sawCompleted = true
		}
	}
	if sawFailed {
		return StatusFailed
	}
	if sawCompleted {
		return StatusCompleted
	}
	return StatusUnknown
}

// SessionRecord is the durable artifact written by the persistence sink
// after a turn reaches a terminal state.
type SessionRecord struct {
	SessionID      SessionID      `json:"session_id"`
	ConversationID ConversationID `json:"conversation_id"`
	Status         TurnStatus     `json:"status"`
	Prompt         string         `json:"prompt"`
	ExitCode       int            `json:"exit_code"`
	ElapsedMS      int64          `json:"execution_time_ms"`
	Stdout         []string       `json:"stdout,omitempty"`
	Stderr         []string       `json:"stderr,omitempty"`
	CreatedFiles   []string       `json:"created_files,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// ApiKeyInfo describes one entry in the API key store.
type ApiKeyInfo struct {
	KeyID     string `json:"key_id"`
	UserID    string `json:"user_id"`
	RateLimit uint32 `json:"rate_limit"`
	Active    bool   `json:"active"`
}
