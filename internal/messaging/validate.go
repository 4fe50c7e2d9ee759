package messaging

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/healingspace/healingspace/internal/apperrors"
	"github.com/healingspace/healingspace/internal/database"
)

// Field limits carried over from the messaging schema.
const (
	MaxSubjectLength      = 255
	MaxTemplateNameLength = 255
	MaxReasonLength       = 500
	MinSearchQueryLength  = 2
	MaxSearchQueryLength  = 200
	MaxGroupRecipients    = 50
	previewLength         = 100
	defaultGroupSubject   = "Group Message"
)

// Broadcast audiences.
const (
	FilterAll        = "all"
	FilterPatients   = "patients"
	FilterClinicians = "clinicians"
)

// SendRequest is the caller-supplied part of a new message.
type SendRequest struct {
	Recipient string
	Subject   string
	Content   string
}

// normalize trims the request and checks it against the field rules, naming
// the offending field in the error.
func (r *SendRequest) normalize(sender string, maxContent int) error {
	r.Recipient = strings.TrimSpace(r.Recipient)
	r.Subject = strings.TrimSpace(r.Subject)
	r.Content = strings.TrimSpace(r.Content)

	if r.Recipient == "" {
		return apperrors.InvalidArg("recipient is required")
	}
	if err := validateContent(r.Content, maxContent); err != nil {
		return err
	}
	if r.Recipient == sender {
		return apperrors.InvalidArg("you cannot send a message to yourself")
	}
	return validateSubject(r.Subject)
}

// BroadcastRequest is a developer announcement. An empty RecipientFilter
// means FilterAll, which reaches every patient and clinician.
type BroadcastRequest struct {
	Subject         string
	Content         string
	RecipientFilter string
}

// roles maps the recipient filter onto the user roles it targets.
func (r BroadcastRequest) roles() ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(r.RecipientFilter)) {
	case "", FilterAll:
		return []string{database.RolePatient, database.RoleClinician}, nil
	case FilterPatients:
		return []string{database.RolePatient}, nil
	case FilterClinicians:
		return []string{database.RoleClinician}, nil
	default:
		return nil, apperrors.InvalidArg("recipient_filter must be one of all, patients, clinicians")
	}
}

// GroupRequest is one message addressed to several recipients at once.
type GroupRequest struct {
	Recipients []string
	Subject    string
	Content    string
}

// normalize trims and de-duplicates the recipients, keeping first-seen order.
func (r *GroupRequest) normalize(sender string, maxContent int) error {
	r.Subject = strings.TrimSpace(r.Subject)
	r.Content = strings.TrimSpace(r.Content)

	seen := make(map[string]struct{}, len(r.Recipients))
	recipients := make([]string, 0, len(r.Recipients))
	for _, name := range r.Recipients {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if name == sender {
			return apperrors.InvalidArg("you cannot include yourself in a group message")
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		recipients = append(recipients, name)
	}
	r.Recipients = recipients

	if len(r.Recipients) == 0 {
		return apperrors.InvalidArg("recipients are required")
	}
	if len(r.Recipients) > MaxGroupRecipients {
		return apperrors.InvalidArg(fmt.Sprintf("a group message can have at most %d recipients", MaxGroupRecipients))
	}
	if err := validateContent(r.Content, maxContent); err != nil {
		return err
	}
	return validateSubject(r.Subject)
}

func validateContent(content string, maxContent int) error {
	if content == "" {
		return apperrors.InvalidArg("content is required")
	}
	if utf8.RuneCountInString(content) > maxContent {
		return apperrors.InvalidArg(fmt.Sprintf("content must be %d characters or fewer", maxContent))
	}
	return nil
}

func validateSubject(subject string) error {
	if utf8.RuneCountInString(subject) > MaxSubjectLength {
		return apperrors.InvalidArg(fmt.Sprintf("subject must be %d characters or fewer", MaxSubjectLength))
	}
	return nil
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLength-3]) + "..."
}

// Page is the resolved pagination window.
type Page struct {
	Number int
	Size   int
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// resolvePage applies the default page size when size is unset (zero) and
// clamps everything else into [1, max].
func resolvePage(number, size, defaultSize, maxSize int) Page {
	switch {
	case size == 0:
		size = defaultSize
	case size < 1:
		size = 1
	case size > maxSize:
		size = maxSize
	}
	if number < 1 {
		number = 1
	}
	return Page{Number: number, Size: size}
}
