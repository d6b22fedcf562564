package httpapi

import (
	"net/http"
	"strings"

	"github.com/willy3087/codex-gateway/internal/auth"
)

// apiKeyMiddleware enforces X-API-Key (or, for a completed OAuth
// exchange, a bearer JWT) on every request except the exempt paths.
// Missing credentials are 401; a known but inactive key is 403;
// an unknown key is 401.
func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.IsExemptPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if bearer := bearerToken(r); bearer != "" {
			if _, ok := s.oauth.ValidateToken(bearer); ok {
				next.ServeHTTP(w, r)
				return
			}
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			s.writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing X-API-Key header. Please provide a valid API key.",
			})
			return
		}

		info, ok := s.apiKeys.ValidateKey(key)
		if !ok {
			s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid API key"})
			return
		}
		if !info.Active {
			s.writeJSON(w, http.StatusForbidden, map[string]string{"error": "API key is inactive"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(h, prefix) {
		return strings.TrimPrefix(h, prefix)
	}
	return ""
}
