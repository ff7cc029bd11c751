package httpapi

import (
	"encoding/json"
	"net/http"
)

// forgotPasswordMessage is returned for every forgot-password request,
// known identifier or not. The bodies must be byte-identical so response
// comparison cannot enumerate accounts.
const forgotPasswordMessage = "If an account exists for that identifier, reset instructions have been sent."

type forgotPasswordRequest struct {
	Identifier string `json:"identifier"`
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Identifier == "" {
		writeError(w, http.StatusBadRequest, "identifier is required")
		return
	}

	delivery, err := s.engine.RequestPasswordReset(r.Context(), req.Identifier)
	if err != nil {
		// Internal failures are logged but still acknowledged generically;
		// errors here would otherwise distinguish known identifiers.
		s.logger.ErrorContext(r.Context(), "password reset request failed", "error", err)
	}
	if delivery != nil {
		if err := s.notifier.DeliverReset(r.Context(), *delivery); err != nil {
			s.logger.ErrorContext(r.Context(), "reset delivery failed",
				"channel", delivery.Channel, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": forgotPasswordMessage})
}

type resetPasswordRequest struct {
	Identifier  string `json:"identifier"`
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "token and newPassword are required")
		return
	}

	if err := s.engine.ConfirmPasswordReset(r.Context(), req.Identifier, req.Token, req.NewPassword); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := s.engine.ConfirmEmailVerification(r.Context(), req.Token); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "email verified"})
}
