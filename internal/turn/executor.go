// Package turn implements the gateway's turn execution pipeline: given
// a conversation and a prompt, it spawns a fresh agent subprocess for
// the turn, normalises its event stream, and makes that stream
// available both to a buffered collector (the HTTP /exec path) and to
// any number of live subscribers (the WebSocket /ws path) concurrently.
package turn

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/willy3087/codex-gateway/internal/agent"
	"github.com/willy3087/codex-gateway/internal/config"
	"github.com/willy3087/codex-gateway/internal/conversation"
	"github.com/willy3087/codex-gateway/internal/events"
	"github.com/willy3087/codex-gateway/internal/wire"
)

const subscriberQueueDepth = 64

// defaultTurnTimeout matches the reference implementation's
// req.timeout_ms.unwrap_or(60_000).
const defaultTurnTimeout = 60 * time.Second

// killGrace is how long Interrupt is given to end the subprocess
// cooperatively before Run falls back to an unconditional kill.
const killGrace = 5 * time.Second

// Overrides carries per-call configuration that layers over the
// gateway's default agent configuration.
type Overrides struct {
	Model   string
	Cwd     string
	Timeout time.Duration // zero means use the executor's configured default
}

// Executor resolves user input into a running Turn against the agent
// subprocess.
type Executor struct {
	agentCfg config.AgentConfig
	timeouts config.TimeoutConfig
	conv     *conversation.Manager
	logger   *slog.Logger
}

// NewExecutor builds an Executor bound to the gateway's agent defaults
// and conversation registry.
func NewExecutor(agentCfg config.AgentConfig, timeouts config.TimeoutConfig, conv *conversation.Manager, logger *slog.Logger) *Executor {
	return &Executor{agentCfg: agentCfg, timeouts: timeouts, conv: conv, logger: logger}
}

func (e *Executor) turnTimeout(overrides Overrides) time.Duration {
	if overrides.Timeout > 0 {
		return overrides.Timeout
	}
	if e.timeouts.TurnTimeout.Duration > 0 {
		return e.timeouts.TurnTimeout.Duration
	}
	return defaultTurnTimeout
}

// Turn is one in-flight (or completed) turn's event stream, observable
// by any number of subscribers in addition to being buffered in full
// for callers that only want the final collected result.
type Turn struct {
	ConversationID wire.ConversationID

	startedAt time.Time

	mu       sync.Mutex
	buffered []wire.ThreadEvent
	subs     []chan wire.ThreadEvent
	done     chan struct{}
	status   wire.TurnStatus
	workDir  string

	exitCode int
	stdout   []string
	stderr   []string
	metadata map[string]any
}

// Subscribe registers a new live listener for this turn's events. It
// returns a channel that receives every event from this point forward
// (already-buffered events are replayed first) and an unsubscribe
// function the caller must call when done. A subscriber that falls
// behind has its channel closed and is dropped rather than blocking
// the turn.
func (t *Turn) Subscribe() (<-chan wire.ThreadEvent, func()) {
	ch := make(chan wire.ThreadEvent, subscriberQueueDepth)

	t.mu.Lock()
	replay := append([]wire.ThreadEvent(nil), t.buffered...)
	finished := t.isDone()
	if !finished {
		t.subs = append(t.subs, ch)
	}
	t.mu.Unlock()

	for _, e := range replay {
		ch <- e
	}
	if finished {
		close(ch)
	}

	unsub := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.subs {
			if s == ch {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				break
			}
		}
	}
	return ch, unsub
}

func (t *Turn) isDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Turn) publish(e wire.ThreadEvent) {
	t.mu.Lock()
	t.buffered = append(t.buffered, e)
	subs := append([]chan wire.ThreadEvent(nil), t.subs...)
	t.mu.Unlock()

	for _, s := range subs {
		select {
		case s <- e:
		default:
			// Subscriber's queue is full: drop it rather than block the turn.
			t.mu.Lock()
			for i, cur := range t.subs {
				if cur == s {
					t.subs = append(t.subs[:i], t.subs[i+1:]...)
					break
				}
			}
			t.mu.Unlock()
			close(s)
		}
	}
}

func (t *Turn) finish(status wire.TurnStatus) {
	t.mu.Lock()
	t.status = status
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()
	close(t.done)
	for _, s := range subs {
		close(s)
	}
}

// Wait blocks until the turn reaches a terminal state and returns the
// full buffered event list and the computed status.
func (t *Turn) Wait() ([]wire.ThreadEvent, wire.TurnStatus) {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]wire.ThreadEvent(nil), t.buffered...), t.status
}

// WorkDir returns the working directory the subprocess ran in, used by
// the persistence sink to find created files after the turn ends.
func (t *Turn) WorkDir() string { return t.workDir }

func (t *Turn) appendStdout(line string) {
	t.mu.Lock()
	t.stdout = append(t.stdout, line)
	t.mu.Unlock()
}

func (t *Turn) appendStderr(line string) {
	t.mu.Lock()
	t.stderr = append(t.stderr, line)
	t.mu.Unlock()
}

func (t *Turn) setExitCode(code *int) {
	if code == nil {
		return
	}
	t.mu.Lock()
	t.exitCode = *code
	t.mu.Unlock()
}

func (t *Turn) setMetadata(m map[string]any) {
	t.mu.Lock()
	t.metadata = m
	t.mu.Unlock()
}

// StdoutLines returns every stdout line observed during the turn, in
// arrival order.
func (t *Turn) StdoutLines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.stdout...)
}

// StderrLines returns every stderr line observed during the turn, in
// arrival order.
func (t *Turn) StderrLines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.stderr...)
}

// ExitCode returns the subprocess's exit code, or -1 if it never
// reported one (e.g. the turn timed out and the process was killed).
func (t *Turn) ExitCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitCode
}

// Metadata returns free-form diagnostic data attached to the turn, such
// as {"error": "timeout"}. Nil when nothing was attached.
func (t *Turn) Metadata() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metadata
}

// ElapsedMS returns the turn's wall-clock duration so far, in
// milliseconds.
func (t *Turn) ElapsedMS() int64 {
	return time.Since(t.startedAt).Milliseconds()
}

// Run resolves inputs into a single prompt string, spawns a fresh agent
// subprocess, and drives the turn to completion in the background. The
// conversation's ThreadID is not passed to the subprocess; Run only
// records the thread ID the agent reports.
// The returned Turn is immediately subscribable; callers that only need
// the final result should call Wait.
func (e *Executor) Run(ctx context.Context, conv *conversation.Conversation, inputs []wire.UserInput, overrides Overrides) (*Turn, error) {
	prompt, err := composePrompt(inputs)
	if err != nil {
		return nil, err
	}

	cwd := overrides.Cwd
	if cwd == "" {
		cwd, err = os.MkdirTemp(e.agentCfg.WorkingDir, "turn-*")
		if err != nil {
			return nil, fmt.Errorf("turn: create working directory: %w", err)
		}
	}

	t := &Turn{
		ConversationID: conv.ID,
		done:           make(chan struct{}),
		workDir:        cwd,
		startedAt:      time.Now(),
		exitCode:       -1,
	}

	sess := agent.NewSession(e.agentCfg)
	if err := sess.Start(ctx, prompt, cwd, overrides.Model); err != nil {
		return nil, fmt.Errorf("turn: start agent session: %w", err)
	}
	e.conv.SetActiveTurn(conv.ID, sess)

	norm := events.NewNormalizer(conv.ID)
	t.publish(wire.ThreadEvent{Type: wire.EventTurnStarted, ConversationID: conv.ID})

	timeout := e.turnTimeout(overrides)
	timer := time.NewTimer(timeout)

	go func() {
		defer timer.Stop()
		var timedOut bool
		var killTimer *time.Timer

	drain:
		for {
			select {
			case raw, ok := <-sess.Events:
				if !ok {
					break drain
				}
				switch v := raw.(type) {
				case agent.RawEvent:
					t.appendStdout(string(v.Raw))
				case agent.StdoutLine:
					t.appendStdout(string(v.Data))
				case agent.StderrLine:
					t.appendStderr(string(v.Data))
				case agent.Exit:
					t.setExitCode(v.Code)
				}
				for _, ev := range norm.Feed(raw) {
					t.publish(ev)
				}
			case <-timer.C:
				if timedOut {
					continue
				}
				timedOut = true
				e.logger.Warn("turn exceeded timeout, interrupting agent session",
					"conversation_id", conv.ID, "timeout", timeout)
				if err := sess.Interrupt(); err != nil {
					e.logger.Warn("failed to submit interrupt, killing session directly",
						"conversation_id", conv.ID, "error", err)
					_ = sess.Stop()
				} else {
					killTimer = time.AfterFunc(killGrace, func() { _ = sess.Stop() })
				}
			}
		}
		if killTimer != nil {
			killTimer.Stop()
		}

		if tid := norm.ThreadID(); tid != "" {
			conv.ThreadID = tid
		}

		status := wire.DetermineStatus(t.buffered)
		if timedOut {
			status = wire.StatusTimeout
			t.setMetadata(map[string]any{"error": "timeout"})
			t.publish(wire.ThreadEvent{
				Type:           wire.EventError,
				ConversationID: conv.ID,
				Message:        fmt.Sprintf("turn exceeded timeout of %s and was interrupted", timeout),
			})
		}
		e.conv.SetActiveTurn(conv.ID, nil)
		e.conv.RecordTurnStatus(conv.ID, status)
		t.finish(status)
	}()

	return t, nil
}

// composePrompt renders a UserInput slice into the single text prompt
// that the agent session sends as the text item of its user_turn
// submission. Images are ordered first, matching the reference gateway's
// prepare_user_inputs, then all text segments are appended. Local image
// paths are cleaned; image URLs are passed through unchanged.
func composePrompt(inputs []wire.UserInput) (string, error) {
	var images []string
	var texts []string

	for _, in := range inputs {
		switch in.Kind {
		case wire.UserInputImage:
			images = append(images, in.ImageURL)
		case wire.UserInputLocalImage:
			if _, err := os.Stat(in.LocalPath); err != nil {
				return "", fmt.Errorf("turn: image file not found: %s", in.LocalPath)
			}
			images = append(images, filepath.Clean(in.LocalPath))
		case wire.UserInputText:
			texts = append(texts, in.Text)
		}
	}

	var b []byte
	for _, img := range images {
		b = append(b, []byte(fmt.Sprintf("[image: %s]\n", img))...)
	}
	for i, txt := range texts {
		if i > 0 {
			b = append(b, '\n')
		}
		b = append(b, []byte(txt)...)
	}
	return string(b), nil
}
