package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/willy3087/codex-gateway/internal/auth"
)

// handleOAuthAuthorize implements the authorization leg of the OAuth
// authorization-code flow. In a full deployment this would show a
// login/consent screen; here, matching the reference gateway, it
// auto-approves and issues a code for a synthetic user.
func (s *Server) handleOAuthAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	responseType := q.Get("response_type")
	redirectURI := q.Get("redirect_uri")
	state := q.Get("state")
	clientID := q.Get("client_id")

	if responseType != "code" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid response_type. Must be 'code'"})
		return
	}
	if redirectURI == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing redirect_uri"})
		return
	}
	if state == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing state"})
		return
	}
	if clientID == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing client_id"})
		return
	}

	code := s.oauth.CreateAuthorizationCode(auth.UserInfo{
		UserID:    uuid.NewString(),
		Email:     "user@example.com",
		CreatedAt: time.Now(),
	})

	http.Redirect(w, r, redirectURI+"?code="+code+"&state="+state, http.StatusFound)
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// handleOAuthToken implements the token-exchange leg. The OAuth store
// used here is the single gateway-lifetime instance held in Server,
// not a fresh one per call, so codes issued by handleOAuthAuthorize can
// actually be exchanged.
func (s *Server) handleOAuthToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if req.GrantType != "authorization_code" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unsupported_grant_type", "error_description": "Only authorization_code is supported",
		})
		return
	}

	if req.ClientID != s.cfg.Auth.OAuthClientID || req.ClientSecret != s.cfg.Auth.OAuthClientSecret {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error": "invalid_client", "error_description": "Invalid client credentials",
		})
		return
	}

	accessToken, ok, err := s.oauth.ExchangeCode(req.Code)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}
	if !ok {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid_grant", "error_description": "Invalid or expired authorization code",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.cfg.Auth.AccessTokenTTL.Duration.Seconds()),
	})
}
