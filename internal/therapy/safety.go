package therapy

import "strings"

// CrisisResources is returned alongside any high-risk result.
const CrisisResources = `*** IMPORTANT SAFETY NOTICE ***
If you are feeling overwhelmed and considering self-harm or ending your life, please reach out for help immediately.

- UK: Call 999 or 111, or text SHOUT to 85258.
- USA/Canada: Call or text 988.
- International: Visit findahelpline.com`

// defaultRiskPhrases are matched as case-insensitive substrings.
var defaultRiskPhrases = []string{
	"kill myself",
	"suicide",
	"suicidal",
	"end my life",
	"want to die",
	"hurt myself",
	"self harm",
	"don't want to live",
	"better off dead",
	"swallow pills",
	"overdose",
	"hanging myself",
	"hurt someone else",
	"violent thoughts",
	"feeling hopeless",
	"no reason to live",
}

// Monitor flags text that contains a known risk phrase.
type Monitor struct {
	phrases []string
}

// NewMonitor creates a monitor over the default phrase list plus extra.
func NewMonitor(extra ...string) *Monitor {
	phrases := make([]string, 0, len(defaultRiskPhrases)+len(extra))
	phrases = append(phrases, defaultRiskPhrases...)
	for _, p := range extra {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			phrases = append(phrases, p)
		}
	}
	return &Monitor{phrases: phrases}
}

// IsHighRisk reports whether text contains any risk phrase. Curly
// apostrophes are folded so that "don’t" matches "don't".
func (m *Monitor) IsHighRisk(text string) bool {
	clean := strings.ToLower(strings.TrimSpace(text))
	clean = strings.ReplaceAll(clean, "’", "'")
	for _, phrase := range m.phrases {
		if strings.Contains(clean, phrase) {
			return true
		}
	}
	return false
}
