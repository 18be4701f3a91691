package httpserver

import (
	"net/http"
	"strings"

	"github.com/yashikakaushik06/whiteboard-app/internal/origin"
)

func (s *Server) withOriginPolicy(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		originHeader := strings.TrimSpace(r.Header.Get("Origin"))
		if originHeader == "" {
			next(w, r)
			return
		}

		normalizedOrigin, originHost, ok := origin.NormalizeHeader(originHeader)
		if !ok || !s.origins.Allows(normalizedOrigin, originHost, r.Host) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		// The page may be served from a different origin than the relay (for
		// example a dev server), so answer with CORS headers whenever the
		// browser sent an Origin.
		w.Header().Set("Access-Control-Allow-Origin", normalizedOrigin)
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		w.Header().Add("Vary", "Origin")

		next(w, r)
	}
}
