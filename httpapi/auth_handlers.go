package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/staynest/authengine"
)

type loginRequest struct {
	Identifier    string `json:"identifier"`
	Password      string `json:"password"`
	RememberMe    bool   `json:"rememberMe"`
	TwoFactorCode string `json:"twoFactorCode"`
}

type sessionPayload struct {
	SessionID    string `json:"sessionId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type loginResponse struct {
	User              *userPayload    `json:"user,omitempty"`
	Session           *sessionPayload `json:"session,omitempty"`
	RequiresTwoFactor bool            `json:"requiresTwoFactor,omitempty"`
}

type userPayload struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "identifier and password are required")
		return
	}

	result, err := s.engine.Login(r.Context(), authengine.LoginRequest{
		Identifier:    req.Identifier,
		Password:      req.Password,
		Remember:      req.RememberMe,
		TwoFactorCode: req.TwoFactorCode,
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	if result.RequiresTwoFactor {
		writeJSON(w, http.StatusOK, loginResponse{RequiresTwoFactor: true})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		User: &userPayload{ID: result.PrincipalID, Role: result.Role},
		Session: &sessionPayload{
			SessionID:    result.SessionID,
			AccessToken:  result.AccessToken,
			RefreshToken: result.RefreshToken,
		},
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	result, err := s.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		User: &userPayload{ID: result.PrincipalID, Role: result.Role},
		Session: &sessionPayload{
			SessionID:    result.SessionID,
			AccessToken:  result.AccessToken,
			RefreshToken: result.RefreshToken,
		},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := s.engine.Logout(r.Context(), identity); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if _, err := s.engine.LogoutAll(r.Context(), identity); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out everywhere"})
}
