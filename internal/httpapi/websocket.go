package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/willy3087/codex-gateway/internal/turn"
	"github.com/willy3087/codex-gateway/internal/wire"
)

func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return originSet[origin]
		},
	}
}

// wsRequest is the tagged-union frame shape a client sends over /ws.
type wsRequest struct {
	Type      string   `json:"type"` // "exec", "interrupt", "ping"
	Prompt    string   `json:"prompt,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Images    []string `json:"images,omitempty"`
	Cwd       string   `json:"cwd,omitempty"`
	Model     string   `json:"model,omitempty"`
}

// wsResponse is the tagged-union frame shape the gateway sends back.
type wsResponse struct {
	Type    string           `json:"type"` // "event", "ack", "error", "pong"
	Event   *wire.ThreadEvent `json:"event,omitempty"`
	Message string           `json:"message,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := makeUpgrader(s.cfg.Server.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.wsSend(conn, wsResponse{Type: "error", Message: "invalid JSON frame"})
			continue
		}

		switch req.Type {
		case "ping":
			s.wsSend(conn, wsResponse{Type: "pong"})
		case "interrupt":
			s.handleWSInterrupt(conn, req)
		case "exec":
			s.handleWSExec(r.Context(), conn, req)
		default:
			s.wsSend(conn, wsResponse{Type: "error", Message: "unknown frame type: " + req.Type})
		}
	}
}

func (s *Server) handleWSInterrupt(conn *websocket.Conn, req wsRequest) {
	if req.SessionID == "" {
		s.wsSend(conn, wsResponse{Type: "error", Message: "session_id is required"})
		return
	}
	if _, ok := s.conv.Interrupt(wire.SessionID(req.SessionID)); !ok {
		s.wsSend(conn, wsResponse{Type: "error", Message: "no active turn for session " + req.SessionID})
		return
	}
	s.wsSend(conn, wsResponse{Type: "ack", Message: "interrupt submitted for session " + req.SessionID})
}

// handleWSExec streams each normalised event to the client as it
// arrives, unlike the buffered HTTP /exec endpoint.
func (s *Server) handleWSExec(ctx context.Context, conn *websocket.Conn, req wsRequest) {
	conv := s.conv.GetOrCreate(wire.SessionID(req.SessionID))
	inputs := prepareInputs(execRequest{Prompt: req.Prompt, Images: req.Images})

	t, err := s.executor.Run(ctx, conv, inputs, turn.Overrides{Model: req.Model, Cwd: req.Cwd})
	if err != nil {
		s.wsSend(conn, wsResponse{Type: "error", Message: err.Error()})
		return
	}

	sub, unsub := t.Subscribe()
	defer unsub()
	for ev := range sub {
		e := ev
		s.wsSend(conn, wsResponse{Type: "event", Event: &e})
	}

	_, status := t.Wait()
	s.persistTurn(execRequest{Prompt: req.Prompt, SessionID: req.SessionID}, conv, status, t)
}

func (s *Server) wsSend(conn *websocket.Conn, resp wsResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}
