package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/staynest/authengine"
)

type identityKey struct{}

// clientMetaMiddleware records the caller's address and user agent on the
// request context so engine audit events and session rows carry them.
func (s *Server) clientMetaMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := authengine.WithClient(r.Context(), authengine.ClientMeta{
			Device: r.UserAgent(),
			IP:     ip,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth validates the bearer access token and stashes the verified
// identity. The engine also checks that the backing session is still
// active, so a revoked session fails here inside the token's lifetime.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		identity, err := s.engine.Validate(r.Context(), token)
		if err != nil {
			s.writeEngineError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, *identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(r *http.Request) (authengine.Identity, bool) {
	identity, ok := r.Context().Value(identityKey{}).(authengine.Identity)
	return identity, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
