package database

import (
	"context"
	"fmt"
)

// CreateMoodLog stores a daily check-in. Returns ErrAlreadyExists when the
// user already has one for log.LogDate.
func (s *sqlxStore) CreateMoodLog(ctx context.Context, log *MoodLog) error {
	query := s.rebind(`
		INSERT INTO mood_logs (username, mood_val, sleep_val, meds, notes, water_pints,
			exercise_mins, outside_mins, log_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	err := s.db.GetContext(ctx, &log.ID, query,
		log.Username, log.MoodVal, log.SleepVal, log.Meds, log.Notes, log.WaterPints,
		log.ExerciseMins, log.OutsideMins, log.LogDate, log.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		s.logger.ErrorContext(ctx, "Error saving mood log", "username", log.Username, "error", err)
		return fmt.Errorf("failed to save mood log: %w", err)
	}
	return nil
}

// ListMoodLogs returns the user's most recent check-ins, newest first.
func (s *sqlxStore) ListMoodLogs(ctx context.Context, username string, limit int) ([]MoodLog, error) {
	var logs []MoodLog
	query := s.rebind(`SELECT * FROM mood_logs WHERE username = ? ORDER BY log_date DESC, id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &logs, query, username, limit); err != nil {
		return nil, fmt.Errorf("failed to list mood logs for %s: %w", username, err)
	}
	return logs, nil
}

// CreateGratitudeEntry stores a gratitude journal entry.
func (s *sqlxStore) CreateGratitudeEntry(ctx context.Context, entry *GratitudeEntry) error {
	query := s.rebind(`
		INSERT INTO gratitude_logs (username, entry, created_at)
		VALUES (?, ?, ?)
		RETURNING id`)
	if err := s.db.GetContext(ctx, &entry.ID, query, entry.Username, entry.Entry, entry.CreatedAt); err != nil {
		s.logger.ErrorContext(ctx, "Error saving gratitude entry", "username", entry.Username, "error", err)
		return fmt.Errorf("failed to save gratitude entry: %w", err)
	}
	return nil
}

// ListGratitudeEntries returns the user's most recent entries, newest first.
func (s *sqlxStore) ListGratitudeEntries(ctx context.Context, username string, limit int) ([]GratitudeEntry, error) {
	var entries []GratitudeEntry
	query := s.rebind(`SELECT * FROM gratitude_logs WHERE username = ? ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &entries, query, username, limit); err != nil {
		return nil, fmt.Errorf("failed to list gratitude entries for %s: %w", username, err)
	}
	return entries, nil
}
