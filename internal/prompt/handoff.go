package prompt

import (
	"regexp"
	"strings"

	"github.com/clawflow/clawflow/internal/models"
)

// ParsedHandoff is the structured output extracted from a stage's final
// text, before the caller stamps in TaskID/Stage/Agent/Model/Timestamp.
type ParsedHandoff struct {
	Status         models.HandoffStatus
	Summary        string
	KeyDecisions   string
	OpenQuestions  string
	FilesModified  string
	NextStageNeeds string
	Warnings       string
}

var handoffSectionRe = regexp.MustCompile(`(?is)##?\s*Handoff\s*\n(.*?)(?:\n##|\z)`)

var handoffFieldRes = map[string]*regexp.Regexp{
	"status":           regexp.MustCompile(`(?im)^status\s*:\s*(.+)$`),
	"summary":          regexp.MustCompile(`(?im)^summary\s*:\s*(.+)$`),
	"keyDecisions":     regexp.MustCompile(`(?im)^key ?decisions\s*:\s*(.+)$`),
	"openQuestions":    regexp.MustCompile(`(?im)^open ?questions\s*:\s*(.+)$`),
	"filesModified":    regexp.MustCompile(`(?im)^files ?modified\s*:\s*(.+)$`),
	"nextStageNeeds":   regexp.MustCompile(`(?im)^next ?stage ?needs\s*:\s*(.+)$`),
	"warnings":         regexp.MustCompile(`(?im)^warnings\s*:\s*(.+)$`),
}

// ParseHandoff locates a structured "Handoff" section in the agent's
// output and extracts its fields. If the section is missing, it synthesizes
// a completed handoff with empty fields rather than erroring.
func ParseHandoff(output string) ParsedHandoff {
	m := handoffSectionRe.FindStringSubmatch(output)
	if m == nil {
		return ParsedHandoff{Status: models.HandoffCompleted}
	}
	section := m[1]

	h := ParsedHandoff{Status: models.HandoffCompleted}
	if v := firstMatch(handoffFieldRes["status"], section); v != "" {
		h.Status = models.HandoffStatus(strings.ToLower(strings.TrimSpace(v)))
	}
	h.Summary = firstMatch(handoffFieldRes["summary"], section)
	h.KeyDecisions = firstMatch(handoffFieldRes["keyDecisions"], section)
	h.OpenQuestions = firstMatch(handoffFieldRes["openQuestions"], section)
	h.FilesModified = firstMatch(handoffFieldRes["filesModified"], section)
	h.NextStageNeeds = firstMatch(handoffFieldRes["nextStageNeeds"], section)
	h.Warnings = firstMatch(handoffFieldRes["warnings"], section)
	return h
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// FormatPreviousHandoff renders the single most recent handoff, or the
// sentinel "No previous stages." if h is nil.
func FormatPreviousHandoff(h *models.Handoff) string {
	if h == nil {
		return "No previous stages."
	}
	var b strings.Builder
	b.WriteString(string(h.Stage))
	b.WriteString(" (")
	b.WriteString(string(h.Status))
	b.WriteString("): ")
	b.WriteString(h.Summary)
	if h.OpenQuestions != "" {
		b.WriteString("\nOpen questions: ")
		b.WriteString(h.OpenQuestions)
	}
	return b.String()
}

// FormatHandoffChain renders every handoff in order, or the sentinel "No
// handoff history." if handoffs is nil or empty.
func FormatHandoffChain(handoffs []*models.Handoff) string {
	if len(handoffs) == 0 {
		return "No handoff history."
	}
	var b strings.Builder
	for i, h := range handoffs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatPreviousHandoff(h))
	}
	return b.String()
}
