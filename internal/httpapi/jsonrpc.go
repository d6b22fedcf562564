package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/willy3087/codex-gateway/internal/wire"
)

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

type jsonRPCError struct {
	Code    int   `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

const (
	errParseOrInvalidReq = -32600
	errMethodNotFound    = -32601
	errInvalidParams     = -32602
	errInternal          = -32603
)

var availableMethods = []string{"conversation.prompt", "conversation.status", "conversation.cancel"}

// handleJSONRPC dispatches JSON-RPC 2.0 requests. The HTTP status is
// always 200; success or failure is carried entirely in the JSON-RPC
// envelope, matching the reference gateway.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusOK, jsonRPCResponse{
			JSONRPC: "2.0",
			Error:   &jsonRPCError{Code: errParseOrInvalidReq, Message: "invalid JSON-RPC request"},
		})
		return
	}

	if req.JSONRPC != "2.0" {
		s.writeJSON(w, http.StatusOK, jsonRPCResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &jsonRPCError{Code: errParseOrInvalidReq, Message: "jsonrpc must be \"2.0\""},
		})
		return
	}

	var resp jsonRPCResponse
	switch req.Method {
	case "conversation.prompt":
		resp = s.rpcConversationPrompt(r, req)
	case "conversation.status":
		resp = s.rpcConversationStatus(req)
	case "conversation.cancel":
		resp = s.rpcConversationCancel(req)
	default:
		resp = jsonRPCResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &jsonRPCError{
				Code:    errMethodNotFound,
				Message: "method not found: " + req.Method,
				Data:    map[string]any{"available_methods": availableMethods},
			},
		}
	}
	resp.JSONRPC = "2.0"
	resp.ID = req.ID
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) rpcConversationPrompt(r *http.Request, req jsonRPCRequest) jsonRPCResponse {
	if len(req.Params) == 0 {
		return jsonRPCResponse{Error: &jsonRPCError{Code: errInvalidParams, Message: "params is required"}}
	}
	var params execRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Prompt == "" {
		return jsonRPCResponse{Error: &jsonRPCError{Code: errInvalidParams, Message: "params.prompt is required and must be a string"}}
	}

	convID, events, status, err := s.runPromptBuffered(r.Context(), params)
	if err != nil {
		return jsonRPCResponse{Error: &jsonRPCError{Code: errInternal, Message: err.Error()}}
	}
	return jsonRPCResponse{Result: execResponse{ConversationID: convID, Events: events, Status: status}}
}

func (s *Server) rpcConversationStatus(req jsonRPCRequest) jsonRPCResponse {
	sessionID, ok := paramSessionID(req.Params)
	if !ok {
		return jsonRPCResponse{Error: &jsonRPCError{Code: errInvalidParams, Message: "params.session_id is required"}}
	}

	status, found := s.conv.Status(wire.SessionID(sessionID))
	if !found {
		// Unknown session is a successful result, not an error.
		return jsonRPCResponse{Result: map[string]any{"status": "not_found", "session_id": sessionID}}
	}
	return jsonRPCResponse{Result: status}
}

func (s *Server) rpcConversationCancel(req jsonRPCRequest) jsonRPCResponse {
	sessionID, ok := paramSessionID(req.Params)
	if !ok {
		return jsonRPCResponse{Error: &jsonRPCError{Code: errInvalidParams, Message: "params.session_id is required"}}
	}

	convID, found := s.conv.Cancel(wire.SessionID(sessionID))
	if !found {
		// Unlike status, cancelling an unknown session is an error.
		return jsonRPCResponse{Error: &jsonRPCError{
			Code:    errInvalidParams,
			Message: "Unknown session id '" + sessionID + "'",
		}}
	}
	return jsonRPCResponse{Result: map[string]any{"cancelled": true, "session_id": sessionID, "conversation_id": convID}}
}

func paramSessionID(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var p struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.SessionID == "" {
		return "", false
	}
	return p.SessionID, true
}
