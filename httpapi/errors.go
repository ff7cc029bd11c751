package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/staynest/authengine"
)

// apiError is the error response body. Messages are generic on purpose;
// they never reveal which credential field was wrong or whether an
// identifier exists.
type apiError struct {
	Status            int    `json:"status"`
	Error             string `json:"error"`
	RetryAfterMinutes int    `json:"retryAfterMinutes,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort write, connection may be gone
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Status: status, Error: message})
}

// writeEngineError maps engine sentinels to the stable status contract.
// Anything unmatched is logged and flattened to a generic 500.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var lockErr *authengine.LockoutError
	if errors.As(err, &lockErr) {
		writeJSON(w, http.StatusLocked, apiError{
			Status:            http.StatusLocked,
			Error:             "account temporarily locked",
			RetryAfterMinutes: lockErr.RetryAfterMinutes(),
		})
		return
	}

	switch {
	case errors.Is(err, authengine.ErrInvalidCredentials),
		errors.Is(err, authengine.ErrTwoFactorInvalid):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, authengine.ErrAccessInvalid),
		errors.Is(err, authengine.ErrRefreshInvalid),
		errors.Is(err, authengine.ErrRefreshReuse):
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, authengine.ErrAccountNotVerified):
		writeError(w, http.StatusForbidden, "account pending verification")
	case errors.Is(err, authengine.ErrAccountSuspended):
		writeError(w, http.StatusForbidden, "account suspended")
	case errors.Is(err, authengine.ErrSelfRevocation):
		writeError(w, http.StatusBadRequest, "cannot revoke the current session")
	case errors.Is(err, authengine.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, authengine.ErrTokenInvalid):
		writeError(w, http.StatusBadRequest, "token expired or invalid")
	case errors.Is(err, authengine.ErrPasswordPolicy):
		writeError(w, http.StatusBadRequest, "password does not meet policy")
	case errors.Is(err, authengine.ErrPasswordReuse):
		writeError(w, http.StatusBadRequest, "new password must differ from the current password")
	case errors.Is(err, authengine.ErrTwoFactorNotEnabled):
		writeError(w, http.StatusBadRequest, "two-factor authentication is not enabled")
	default:
		s.logger.ErrorContext(r.Context(), "internal error", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
