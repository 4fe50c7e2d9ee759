// Package wellness records patients' daily mood check-ins and gratitude
// journal entries.
package wellness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/healingspace/healingspace/internal/apperrors"
	"github.com/healingspace/healingspace/internal/database"
)

const (
	MaxNotesLength     = 2000
	MaxEntryLength     = 2000
	DefaultHistorySize = 30
	MaxHistorySize     = 365
	logDateLayout      = "2006-01-02"
)

// Medication is one line of the medication list attached to a check-in.
type Medication struct {
	Name     string  `json:"name"     validate:"required,max=100"`
	Strength float64 `json:"strength" validate:"min=0"`
	Quantity int     `json:"quantity" validate:"min=0,max=100"`
}

func (m Medication) String() string {
	qty := m.Quantity
	if qty == 0 {
		qty = 1
	}
	return fmt.Sprintf("%s %smg (x%d)", m.Name, strconv.FormatFloat(m.Strength, 'f', -1, 64), qty)
}

// Medications accepts either a free-text string or a list of Medication
// objects in JSON.
type Medications struct {
	Text  string
	Items []Medication `validate:"max=20,dive"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Medications) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &m.Text)
	}
	return json.Unmarshal(data, &m.Items)
}

func (m Medications) String() string {
	if len(m.Items) == 0 {
		return strings.TrimSpace(m.Text)
	}
	parts := make([]string, len(m.Items))
	for i, item := range m.Items {
		parts[i] = item.String()
	}
	return strings.Join(parts, ", ")
}

// MoodEntry is a patient's check-in as submitted.
type MoodEntry struct {
	MoodVal      *int        `json:"mood_val"      validate:"required,min=1,max=10"`
	SleepVal     float64     `json:"sleep_val"     validate:"min=0,max=24"`
	Meds         Medications `json:"meds"`
	Notes        string      `json:"notes"`
	WaterPints   float64     `json:"water_pints"   validate:"min=0,max=20"`
	ExerciseMins int         `json:"exercise_mins" validate:"min=0,max=1440"`
	OutsideMins  int         `json:"outside_mins"  validate:"min=0,max=1440"`
}

// Service applies the check-in rules on top of the store.
type Service struct {
	store    database.Store
	logger   *slog.Logger
	validate *validator.Validate
	policy   *bluemonday.Policy
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a wellness service.
func NewService(store database.Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	s := &Service{
		store:    store,
		logger:   logger.With("component", "wellness"),
		validate: validate,
		policy:   bluemonday.StrictPolicy(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogMood records today's check-in for username. Only one check-in per UTC
// day is accepted.
func (s *Service) LogMood(ctx context.Context, username string, entry MoodEntry) (*database.MoodLog, error) {
	if err := s.check(entry); err != nil {
		return nil, err
	}
	notes := s.clean(entry.Notes)
	if utf8.RuneCountInString(notes) > MaxNotesLength {
		return nil, apperrors.InvalidArg(fmt.Sprintf("notes must be %d characters or fewer", MaxNotesLength))
	}

	now := s.now()
	log := &database.MoodLog{
		Username:     username,
		MoodVal:      *entry.MoodVal,
		SleepVal:     entry.SleepVal,
		Meds:         entry.Meds.String(),
		Notes:        notes,
		WaterPints:   entry.WaterPints,
		ExerciseMins: entry.ExerciseMins,
		OutsideMins:  entry.OutsideMins,
		LogDate:      now.UTC().Format(logDateLayout),
		CreatedAt:    database.NewMillis(now),
	}
	if err := s.store.CreateMoodLog(ctx, log); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return nil, apperrors.AlreadyExists("you have already logged your mood today")
		}
		return nil, apperrors.Internal("failed to save mood log", err)
	}
	s.logger.InfoContext(ctx, "Mood logged", "id", log.ID, "username", username, "mood", log.MoodVal)
	return log, nil
}

// MoodHistory returns the most recent check-ins, newest first.
func (s *Service) MoodHistory(ctx context.Context, username string, limit int) ([]database.MoodLog, error) {
	logs, err := s.store.ListMoodLogs(ctx, username, clampLimit(limit))
	if err != nil {
		return nil, apperrors.Internal("failed to load mood history", err)
	}
	if logs == nil {
		logs = []database.MoodLog{}
	}
	return logs, nil
}

// LogGratitude records a gratitude journal entry.
func (s *Service) LogGratitude(ctx context.Context, username, text string) (*database.GratitudeEntry, error) {
	text = s.clean(text)
	if text == "" {
		return nil, apperrors.InvalidArg("entry is required")
	}
	if utf8.RuneCountInString(text) > MaxEntryLength {
		return nil, apperrors.InvalidArg(fmt.Sprintf("entry must be %d characters or fewer", MaxEntryLength))
	}

	entry := &database.GratitudeEntry{Username: username, Entry: text, CreatedAt: database.NewMillis(s.now())}
	if err := s.store.CreateGratitudeEntry(ctx, entry); err != nil {
		return nil, apperrors.Internal("failed to save gratitude entry", err)
	}
	s.logger.InfoContext(ctx, "Gratitude logged", "id", entry.ID, "username", username)
	return entry, nil
}

// GratitudeHistory returns the most recent journal entries, newest first.
func (s *Service) GratitudeHistory(ctx context.Context, username string, limit int) ([]database.GratitudeEntry, error) {
	entries, err := s.store.ListGratitudeEntries(ctx, username, clampLimit(limit))
	if err != nil {
		return nil, apperrors.Internal("failed to load gratitude history", err)
	}
	if entries == nil {
		entries = []database.GratitudeEntry{}
	}
	return entries, nil
}

// check runs the struct rules and reports the first failing field.
func (s *Service) check(entry MoodEntry) error {
	err := s.validate.Struct(entry)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.InvalidArg(err.Error())
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return apperrors.InvalidArg(fmt.Sprintf("%s is required", fe.Field()))
	case "min":
		return apperrors.InvalidArg(fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
	case "max":
		return apperrors.InvalidArg(fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
	default:
		return apperrors.InvalidArg(fmt.Sprintf("%s is invalid", fe.Field()))
	}
}

// clean strips markup and surrounding whitespace from free text.
func (s *Service) clean(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistorySize
	case limit > MaxHistorySize:
		return MaxHistorySize
	default:
		return limit
	}
}
