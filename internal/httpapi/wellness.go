package httpapi

import (
	"net/http"

	"github.com/healingspace/healingspace/internal/wellness"
)

func (s *server) logMood(w http.ResponseWriter, r *http.Request) {
	var req wellness.MoodEntry
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	log, err := s.Wellness.LogMood(r.Context(), caller(r), req)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"log_id": log.ID, "log_date": log.LogDate})
}

func (s *server) moodHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	logs, err := s.Wellness.MoodHistory(r.Context(), caller(r), limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

type gratitudeRequest struct {
	Entry string `json:"entry"`
}

func (s *server) logGratitude(w http.ResponseWriter, r *http.Request) {
	var req gratitudeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	entry, err := s.Wellness.LogGratitude(r.Context(), caller(r), req.Entry)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"log_id": entry.ID})
}

func (s *server) gratitudeHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	entries, err := s.Wellness.GratitudeHistory(r.Context(), caller(r), limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}
