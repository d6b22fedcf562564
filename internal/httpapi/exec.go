package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/willy3087/codex-gateway/internal/conversation"
	"github.com/willy3087/codex-gateway/internal/gatewayerr"
	"github.com/willy3087/codex-gateway/internal/turn"
	"github.com/willy3087/codex-gateway/internal/wire"
)

// execRequest is the shared body shape for POST /exec, the
// conversation.prompt JSON-RPC method, and the WebSocket "exec" frame.
type execRequest struct {
	Prompt    string   `json:"prompt"`
	SessionID string   `json:"session_id,omitempty"`
	Images    []string `json:"images,omitempty"`
	Cwd       string   `json:"cwd,omitempty"`
	Model     string   `json:"model,omitempty"`
}

type execResponse struct {
	ConversationID wire.ConversationID `json:"conversation_id"`
	Events         []wire.ThreadEvent  `json:"events"`
	Status         wire.TurnStatus     `json:"status"`
	Error          string              `json:"error,omitempty"`
}

// prepareInputs orders images first and the prompt text last, matching
// the reference gateway's prepare_user_inputs.
func prepareInputs(req execRequest) []wire.UserInput {
	var inputs []wire.UserInput
	for _, img := range req.Images {
		if len(img) >= 5 && img[:5] == "data:" {
			inputs = append(inputs, wire.UserInput{Kind: wire.UserInputImage, ImageURL: img})
		} else {
			inputs = append(inputs, wire.UserInput{Kind: wire.UserInputLocalImage, LocalPath: img})
		}
	}
	inputs = append(inputs, wire.UserInput{Kind: wire.UserInputText, Text: req.Prompt})
	return inputs
}

// runPromptBuffered resolves (or creates) the conversation for
// req.SessionID, runs the turn to completion, persists it, and returns
// the full buffered event list and computed status. Used by the HTTP
// /exec endpoint and the conversation.prompt JSON-RPC method, which
// share the same buffered-collection semantics.
func (s *Server) runPromptBuffered(ctx context.Context, req execRequest) (wire.ConversationID, []wire.ThreadEvent, wire.TurnStatus, error) {
	conv := s.conv.GetOrCreate(wire.SessionID(req.SessionID))
	inputs := prepareInputs(req)

	t, err := s.executor.Run(ctx, conv, inputs, turn.Overrides{Model: req.Model, Cwd: req.Cwd})
	if err != nil {
		return conv.ID, nil, wire.StatusError, err
	}

	events, status := t.Wait()
	s.persistTurn(req, conv, status, t)
	return conv.ID, events, status, nil
}

func (s *Server) persistTurn(req execRequest, conv *conversation.Conversation, status wire.TurnStatus, t *turn.Turn) {
	if s.sink == nil {
		return
	}
	record := wire.SessionRecord{
		SessionID:      wire.SessionID(req.SessionID),
		ConversationID: conv.ID,
		Status:         status,
		Prompt:         req.Prompt,
		ExitCode:       t.ExitCode(),
		ElapsedMS:      t.ElapsedMS(),
		Stdout:         t.StdoutLines(),
		Stderr:         t.StderrLines(),
		Metadata:       t.Metadata(),
		Timestamp:      time.Now(),
	}
	go s.sink.Persist(context.Background(), record, req.Prompt, t.WorkDir())
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Prompt == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "prompt is required"})
		return
	}

	convID, events, status, err := s.runPromptBuffered(r.Context(), req)
	if err != nil {
		s.writeJSON(w, http.StatusOK, execResponse{ConversationID: convID, Status: wire.StatusError, Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, execResponse{ConversationID: convID, Events: events, Status: status})
}

type resumeRequest struct {
	ConversationID wire.ConversationID `json:"conversation_id"`
	SessionID      string              `json:"session_id"`
}

type resumeResponse struct {
	ConversationID wire.ConversationID `json:"conversation_id"`
	SessionID      string              `json:"session_id"`
	Message        string              `json:"message"`
}

func (s *Server) handleExecResume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.ConversationID == "" || req.SessionID == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation_id and session_id are required"})
		return
	}

	if _, err := s.conv.Resume(req.ConversationID, wire.SessionID(req.SessionID), ""); err != nil {
		status := http.StatusBadRequest
		var gwErr *gatewayerr.Error
		if errors.As(err, &gwErr) {
			status = gwErr.HTTPStatus()
		}
		s.writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, resumeResponse{
		ConversationID: req.ConversationID,
		SessionID:      req.SessionID,
		Message:        "conversation resumed",
	})
}
