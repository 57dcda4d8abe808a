// Package summarizer turns a LogRecord into a Summary of error and warning
// counts plus the key events found in the record.
//
// Extraction never fails. Content that claims to be JSON but does not
// decode is treated as plain text.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/loglens/loglens/pkg/contracts"
	"github.com/loglens/loglens/pkg/models"
)

// MaxPromptEvents caps how many key events are quoted in a narrative prompt.
const MaxPromptEvents = 20

const maxPromptEventLen = 240

// Chatter is the part of the chat engine the summarizer needs.
type Chatter interface {
	Chat(ctx context.Context, prompt string) (string, error)
}

// Summarizer builds Summaries and, on request, asks a Chatter to narrate them.
type Summarizer struct {
	chat Chatter
}

// New returns a Summarizer. chat may be nil, in which case narratives are
// never produced.
func New(chat Chatter) *Summarizer {
	return &Summarizer{chat: chat}
}

// Process computes the summary of record. When opts.Narrative is set and a
// Chatter is configured, the narrative is attached. A narrative failure
// returns the populated summary together with the provider error.
func (s *Summarizer) Process(ctx context.Context, record models.LogRecord, opts contracts.SummarizeOptions) (models.Summary, error) {
	summary := models.Summary{
		ErrorCount:   CountErrors(record),
		WarningCount: CountWarnings(record),
		KeyEvents:    ExtractKeyEvents(record),
	}

	if !opts.Narrative || s.chat == nil {
		return summary, nil
	}

	narrative, err := s.chat.Chat(ctx, BuildPrompt(summary))
	if err != nil {
		log.Warn().Err(err).Str("file", record.FilePath).Msg("narrative generation failed")
		return summary, err
	}
	summary.Narrative = strings.TrimSpace(narrative)
	return summary, nil
}

// ExtractKeyEvents returns the notable occurrences in record, in source order.
func ExtractKeyEvents(record models.LogRecord) []string {
	return keyEvents(segments(record))
}

// CountErrors returns the number of lines of the record's rendering that
// mention "error" or "exception". A line mentioning both counts once.
func CountErrors(record models.LogRecord) int {
	return countMatching(splitLines(record.Content.Rendering()), isErrorLine)
}

// CountWarnings returns the number of rendered lines mentioning "warning".
func CountWarnings(record models.LogRecord) int {
	return countMatching(splitLines(record.Content.Rendering()), isWarningLine)
}

// BuildPrompt renders the narrative prompt for summary.
func BuildPrompt(summary models.Summary) string {
	var b strings.Builder
	b.WriteString("Summarize the following log activity in two or three sentences for an on-call engineer.\n")
	fmt.Fprintf(&b, "Errors: %d\nWarnings: %d\n", summary.ErrorCount, summary.WarningCount)
	if len(summary.KeyEvents) == 0 {
		b.WriteString("No notable events were found.\n")
		return b.String()
	}
	b.WriteString("Key events:\n")
	for i, ev := range summary.KeyEvents {
		if i == MaxPromptEvents {
			fmt.Fprintf(&b, "... and %d more\n", len(summary.KeyEvents)-MaxPromptEvents)
			break
		}
		if len(ev) > maxPromptEventLen {
			ev = ev[:maxPromptEventLen] + "..."
		}
		fmt.Fprintf(&b, "- %s\n", ev)
	}
	return b.String()
}

// segmented is the record content cut into key event candidates.
type segmented struct {
	units []string
	// listed is true when the units came from an events/messages object;
	// every listed unit is a key event.
	listed bool
}

func segments(record models.LogRecord) segmented {
	content := record.Content
	if !content.IsStructured() {
		content.Structured = decodeJSONText(content.Text)
	}
	if !content.IsStructured() {
		return segmented{units: splitLines(content.Text)}
	}
	if units, ok := listedEvents(content.Structured); ok {
		return segmented{units: units, listed: true}
	}
	return segmented{units: splitLines(content.Rendering())}
}

// decodeJSONText decodes text that looks like a JSON object or array.
// It returns nil when the text is not JSON.
func decodeJSONText(text string) any {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil
	}
	v, err := models.DecodeJSON([]byte(trimmed))
	if err != nil {
		log.Debug().Err(err).Msg("content looks like JSON but does not decode; using text heuristics")
		return nil
	}
	return v
}

// listedEvents handles objects carrying an "events" and/or "messages"
// array: every events element, then the text of every message.
func listedEvents(value any) ([]string, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	events, hasEvents := obj["events"].([]any)
	messages, hasMessages := obj["messages"].([]any)
	if !hasEvents && !hasMessages {
		return nil, false
	}

	out := make([]string, 0, len(events)+len(messages))
	for _, ev := range events {
		if s, ok := ev.(string); ok {
			out = append(out, s)
			continue
		}
		b, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		out = append(out, string(b))
	}
	for _, m := range messages {
		msg, ok := m.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := msg["text"].(string); ok {
			out = append(out, text)
		}
	}
	return out, true
}

func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func keyEvents(s segmented) []string {
	if s.listed {
		return append([]string{}, s.units...)
	}
	events := []string{}
	for _, u := range s.units {
		if isErrorKeyword(u) || isWarningLine(u) {
			events = append(events, u)
		}
	}
	return events
}

func countMatching(lines []string, match func(string) bool) int {
	n := 0
	for _, u := range lines {
		if match(u) {
			n++
		}
	}
	return n
}

// isErrorKeyword matches the "error" keyword only; key event extraction
// does not treat "exception" as notable on its own.
func isErrorKeyword(line string) bool {
	return strings.Contains(strings.ToLower(line), "error")
}

func isErrorLine(line string) bool {
	l := strings.ToLower(line)
	return strings.Contains(l, "error") || strings.Contains(l, "exception")
}

func isWarningLine(line string) bool {
	return strings.Contains(strings.ToLower(line), "warning")
}

var _ contracts.SummarizerService = (*Summarizer)(nil)
