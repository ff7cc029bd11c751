// Package httpapi exposes the authentication engine over HTTP. It owns
// request decoding, bearer-token auth, and the mapping from engine errors
// to stable status codes and generic messages; all security decisions
// stay inside the engine.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/staynest/authengine"
)

// Notifier delivers reset credentials to the principal's email or phone.
// Transport is an external concern; the daemon plugs in a real sender.
type Notifier interface {
	DeliverReset(ctx context.Context, delivery authengine.ResetDelivery) error
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, delivery authengine.ResetDelivery) error

func (f NotifierFunc) DeliverReset(ctx context.Context, delivery authengine.ResetDelivery) error {
	return f(ctx, delivery)
}

// Server wires the engine into an HTTP router.
type Server struct {
	engine   *authengine.Engine
	notifier Notifier
	logger   *slog.Logger
}

func NewServer(engine *authengine.Engine, notifier Notifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = NotifierFunc(func(context.Context, authengine.ResetDelivery) error { return nil })
	}
	return &Server{engine: engine, notifier: notifier, logger: logger}
}

// Router builds the route tree. Session-scoped routes sit behind the
// bearer-token middleware; login, refresh, and the reset flow do not.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.clientMetaMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Post("/login", s.handleLogin)
	r.Post("/refresh", s.handleRefresh)
	r.Post("/forgot-password", s.handleForgotPassword)
	r.Post("/reset-password", s.handleResetPassword)
	r.Post("/verify-email", s.handleVerifyEmail)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Post("/logout", s.handleLogout)
		r.Delete("/logout", s.handleLogoutAll)

		r.Get("/sessions", s.handleListSessions)
		r.Delete("/sessions", s.handleRevokeSession)

		r.Post("/2fa/setup", s.handleTwoFactorSetup)
		r.Delete("/2fa", s.handleTwoFactorDisable)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Metrics())
}
