package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/staynest/authengine"
)

type twoFactorConfirmRequest struct {
	Secret string `json:"secret"`
	Token  string `json:"token"`
}

// handleTwoFactorSetup serves both setup phases on one route. An empty
// body begins setup and returns a fresh secret plus provisioning URI; a
// body with {secret, token} proves possession, enables 2FA, and returns
// the backup codes. Codes appear in a response exactly once.
func (s *Server) handleTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var req twoFactorConfirmRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Secret == "" && req.Token == "" {
		setup, err := s.engine.BeginTwoFactorSetup(r.Context(), identity.PrincipalID)
		if err != nil {
			s.writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"secret":          setup.Secret,
			"provisioningUri": setup.ProvisioningURI,
		})
		return
	}

	if req.Secret == "" || req.Token == "" {
		writeError(w, http.StatusBadRequest, "secret and token are required together")
		return
	}

	codes, err := s.engine.ConfirmTwoFactorSetup(r.Context(), identity.PrincipalID, req.Secret, req.Token)
	if err != nil {
		if errors.Is(err, authengine.ErrTwoFactorInvalid) {
			writeError(w, http.StatusBadRequest, "invalid two-factor code")
			return
		}
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"backupCodes": codes,
		"enabled":     true,
	})
}

func (s *Server) handleTwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	if err := s.engine.DisableTwoFactor(r.Context(), identity.PrincipalID); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": false})
}
