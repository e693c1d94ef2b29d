package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/lewisedginton/organizer/internal/conversation"
	"github.com/lewisedginton/organizer/internal/orchestrator"
	"github.com/lewisedginton/organizer/internal/proactive"
	"github.com/lewisedginton/organizer/internal/speech"
	"github.com/lewisedginton/organizer/pkg/logger"
)

const (
	headerUserEmail    = "X-User-Email"
	headerRefreshToken = "X-Refresh-Token"
)

type chatRequest struct {
	Message string              `json:"message"`
	History []conversation.Turn `json:"history"`
}

type ttsRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type sessionDebugResponse struct {
	HasSession      bool   `json:"hasSession"`
	UserEmail       string `json:"userEmail"`
	HasRefreshToken bool   `json:"hasRefreshToken"`
	Environment     string `json:"environment"`
}

// identity reads the caller's owner id and delegated credentials.
func identity(r *http.Request) (string, conversation.Credentials) {
	owner := strings.TrimSpace(r.Header.Get(headerUserEmail))
	creds := conversation.Credentials{RefreshToken: r.Header.Get(headerRefreshToken)}
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		creds.AccessToken = strings.TrimSpace(auth[7:])
	}
	return owner, creds
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), s.log)

	var req chatRequest
	if err := decodeChat(r, &req); err != nil {
		log.Warn("Rejected chat request", logger.ErrorField(err))
		writeJSON(w, http.StatusBadRequest, conversation.FatalReply())
		return
	}

	owner, creds := identity(r)
	reply, err := s.turns.HandleTurn(r.Context(), orchestrator.TurnRequest{
		Owner:       owner,
		Credentials: creds,
		Message:     req.Message,
		History:     req.History,
	})
	if err != nil {
		log.Error("Turn failed", logger.OwnerField(owner), logger.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, reply)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func decodeChat(r *http.Request, req *chatRequest) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Message) == "" {
		return errors.New("message is required")
	}
	for i, t := range req.History {
		if !t.Role.IsTurnRole() {
			return fmt.Errorf("history[%d]: unsupported role %q", i, t.Role)
		}
	}
	return nil
}

func (s *Server) handleProactive(w http.ResponseWriter, r *http.Request) {
	owner, creds := identity(r)
	if owner == "" || !creds.Valid() {
		writeJSON(w, http.StatusOK, proactive.Result{})
		return
	}
	writeJSON(w, http.StatusOK, s.poller.Scan(r.Context(), owner, creds))
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	audio, err := s.speech.Synthesize(r.Context(), req.Text)
	switch {
	case errors.Is(err, speech.ErrEmptyText):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "text is required"})
		return
	case err != nil:
		logger.FromContext(r.Context(), s.log).Error("Speech synthesis failed", logger.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "speech synthesis failed"})
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

func (s *Server) handleSessionDebug(w http.ResponseWriter, r *http.Request) {
	owner, creds := identity(r)
	writeJSON(w, http.StatusOK, sessionDebugResponse{
		HasSession:      creds.Valid(),
		UserEmail:       owner,
		HasRefreshToken: creds.RefreshToken != "",
		Environment:     s.environment,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
