package daemon

import (
	"net/http"
	"strings"

	"bookture/internal/services"
)

// authenticate resolves the caller from a bearer token. With no tokens
// configured every request is attributed to the default caller.
func (s *apiServer) authenticate(next http.Handler) http.Handler {
	tokens := s.daemon.cfg.API.Tokens
	fallback := strings.TrimSpace(s.daemon.cfg.API.DefaultCaller)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := fallback
		if len(tokens) > 0 {
			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				s.writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			caller, ok = tokens[strings.TrimSpace(token)]
			if !ok || caller == "" {
				s.writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(services.WithCallerID(r.Context(), caller)))
	})
}

func callerOf(r *http.Request) string {
	caller, _ := services.CallerIDFromContext(r.Context())
	return caller
}
