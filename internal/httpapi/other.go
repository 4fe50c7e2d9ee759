package httpapi

import (
	"net/http"
	"time"

	"github.com/healingspace/healingspace/internal/apperrors"
)

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.Health.Ping(r.Context()); err != nil {
		s.writeErr(w, r, apperrors.Internal("database unavailable", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	user, err := s.Accounts.Register(r.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"username": user.Username, "role": user.Role})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	session, err := s.Accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      session.Token,
		"username":   session.Username,
		"role":       session.Role,
		"expires_at": session.ExpiresAt.Format(time.RFC3339),
	})
}

type feedbackRequest struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

func (s *server) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	fb, err := s.Feedback.Submit(r.Context(), caller(r), req.Category, req.Message)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"feedback_id": fb.ID})
}

func (s *server) allFeedback(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	items, err := s.Feedback.All(r.Context(), limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": items})
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response        string `json:"response"`
	Timestamp       string `json:"timestamp"`
	CrisisResources string `json:"crisis_resources,omitempty"`
}

func (s *server) therapyChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	reply, err := s.Therapy.Chat(r.Context(), caller(r), req.Message)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Response:        reply.Response,
		Timestamp:       reply.Timestamp.UTC().Format(time.RFC3339),
		CrisisResources: reply.CrisisResources,
	})
}

func (s *server) therapyHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	entries, err := s.Therapy.History(r.Context(), caller(r), limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

type safetyRequest struct {
	Text string `json:"text"`
}

type safetyResponse struct {
	IsHighRisk      bool   `json:"is_high_risk"`
	CrisisResources string `json:"crisis_resources,omitempty"`
}

func (s *server) safetyCheck(w http.ResponseWriter, r *http.Request) {
	var req safetyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	result, err := s.Therapy.Check(r.Context(), caller(r), req.Text)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, safetyResponse{IsHighRisk: result.HighRisk, CrisisResources: result.CrisisResources})
}
