package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

type sessionEntry struct {
	ID        string    `json:"id"`
	Device    string    `json:"device,omitempty"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Current   bool      `json:"current"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	sessions, err := s.engine.ListSessions(r.Context(), identity)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	entries := make([]sessionEntry, 0, len(sessions))
	for _, info := range sessions {
		entries = append(entries, sessionEntry{
			ID:        info.ID,
			Device:    info.Device,
			IP:        info.IP,
			CreatedAt: info.CreatedAt,
			ExpiresAt: info.ExpiresAt,
			Current:   info.Current,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": entries})
}

type revokeSessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var req revokeSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	if err := s.engine.RevokeSession(r.Context(), identity, req.SessionID); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "session revoked"})
}
