package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

// handleWebhook accepts an arbitrary JSON payload and always
// acknowledges it. Signature verification, event routing, and
// asynchronous queueing are future work, same as the reference
// implementation this is modeled on.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON payload"})
		return
	}

	s.logger.Info("webhook received",
		"event_type", stringField(payload, "type"),
		"source", stringField(payload, "source"))

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "accepted",
		"message":   "Webhook received and queued for processing",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
