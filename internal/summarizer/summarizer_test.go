package summarizer_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/loglens/loglens/internal/summarizer"
	"github.com/loglens/loglens/pkg/contracts"
	"github.com/loglens/loglens/pkg/models"
)

func textRecord(text string) models.LogRecord {
	return models.LogRecord{ID: "r1", FilePath: "app.log", Content: models.LogContent{Text: text}}
}

func structuredRecord(v any) models.LogRecord {
	return models.LogRecord{ID: "r2", FilePath: "app.json", Content: models.LogContent{Structured: v}}
}

func TestExtractKeyEvents_EventsAndMessages(t *testing.T) {
	rec := structuredRecord(map[string]any{
		"events":   []any{"e1", "e2"},
		"messages": []any{map[string]any{"text": "m1"}, map[string]any{"text": "m2"}},
	})
	got := summarizer.ExtractKeyEvents(rec)
	want := []string{"e1", "e2", "m1", "m2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractKeyEvents() = %v, want %v", got, want)
	}
}

func TestExtractKeyEvents_OnlyMessagesAndOddElements(t *testing.T) {
	rec := structuredRecord(map[string]any{
		"events":   []any{map[string]any{"code": float64(7)}},
		"messages": []any{map[string]any{"text": "kept"}, map[string]any{"body": "no text"}, "bare string"},
	})
	got := summarizer.ExtractKeyEvents(rec)
	want := []string{`{"code":7}`, "kept"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractKeyEvents() = %v, want %v", got, want)
	}
}

func TestExtractKeyEvents_RawText(t *testing.T) {
	got := summarizer.ExtractKeyEvents(textRecord("error: test\nwarning: test"))
	if len(got) != 2 {
		t.Fatalf("len(ExtractKeyEvents()) = %d, want 2 (%v)", len(got), got)
	}
	if got[0] != "error: test" || got[1] != "warning: test" {
		t.Errorf("ExtractKeyEvents() = %v, want source order", got)
	}
}

func TestExtractKeyEvents_IgnoresBlankAndPlainLines(t *testing.T) {
	got := summarizer.ExtractKeyEvents(textRecord("\n  \ninfo: started\nERROR disk full\r\n"))
	want := []string{"ERROR disk full"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractKeyEvents() = %v, want %v", got, want)
	}
}

func TestExtractKeyEvents_TextThatIsJSON(t *testing.T) {
	got := summarizer.ExtractKeyEvents(textRecord(`{"events":["boot","error: late"]}`))
	want := []string{"boot", "error: late"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractKeyEvents() = %v, want %v", got, want)
	}
}

func TestExtractKeyEvents_MalformedJSONDegrades(t *testing.T) {
	got := summarizer.ExtractKeyEvents(textRecord("{\"events\": [\nerror: truncated"))
	want := []string{"error: truncated"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractKeyEvents() = %v, want %v", got, want)
	}
}

func TestExtractKeyEvents_EventsAreTraceable(t *testing.T) {
	text := "boot ok\nwarning: slow disk\nerror: io\nshutdown"
	for _, ev := range summarizer.ExtractKeyEvents(textRecord(text)) {
		if !strings.Contains(text, ev) {
			t.Errorf("event %q not found in source", ev)
		}
	}
}

func TestCountErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"error and exception", "error: test\nexception occurred\nerror found", 3},
		{"both keywords once per line", "Error: NullPointerException", 1},
		{"none", "all good\nstill good", 0},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := summarizer.CountErrors(textRecord(tt.text)); got != tt.want {
				t.Errorf("CountErrors() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCounts_ScanWholeStructuredRendering(t *testing.T) {
	rec := structuredRecord(map[string]any{
		"level":    "ERROR",
		"status":   "exception thrown",
		"events":   []any{"started"},
		"messages": []any{map[string]any{"text": "ok"}},
	})
	if got := summarizer.CountErrors(rec); got != 1 {
		t.Errorf("CountErrors() = %d, want 1 for the single rendered line", got)
	}
	if got := summarizer.ExtractKeyEvents(rec); !reflect.DeepEqual(got, []string{"started", "ok"}) {
		t.Errorf("ExtractKeyEvents() = %v, want [started ok]", got)
	}

	listed := structuredRecord(map[string]any{
		"events":   []any{"error a", "error b", "warning c"},
		"messages": []any{},
	})
	if got := summarizer.CountErrors(listed); got != 1 {
		t.Errorf("CountErrors() = %d, want 1", got)
	}
	if got := summarizer.CountWarnings(listed); got != 1 {
		t.Errorf("CountWarnings() = %d, want 1", got)
	}
	if got := len(summarizer.ExtractKeyEvents(listed)); got != 3 {
		t.Errorf("len(ExtractKeyEvents()) = %d, want 3", got)
	}
}

func TestCounts_PrettyPrintedJSONTextCountsLines(t *testing.T) {
	text := "{\n  \"level\": \"error\",\n  \"note\": \"warning: retry\",\n  \"events\": [\"boot\"]\n}"
	rec := textRecord(text)
	if got := summarizer.CountErrors(rec); got != 1 {
		t.Errorf("CountErrors() = %d, want 1", got)
	}
	if got := summarizer.CountWarnings(rec); got != 1 {
		t.Errorf("CountWarnings() = %d, want 1", got)
	}
}

func TestExtractKeyEvents_LargeNumbersKeepSourceDigits(t *testing.T) {
	src := `{"events":[12345678901234567890,{"id":9007199254740993}]}`
	got := summarizer.ExtractKeyEvents(textRecord(src))
	want := []string{"12345678901234567890", `{"id":9007199254740993}`}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractKeyEvents() = %v, want %v", got, want)
	}
	for _, ev := range got {
		if !strings.Contains(src, ev) {
			t.Errorf("event %q not found in source", ev)
		}
	}
}

func TestCountWarnings(t *testing.T) {
	if got := summarizer.CountWarnings(textRecord("WARNING a\nwarning b warning c\nerror")); got != 2 {
		t.Errorf("CountWarnings() = %d, want 2", got)
	}
}

func TestProcess_StructuredLogObject(t *testing.T) {
	rec := structuredRecord(map[string]any{
		"timestamp": "2024-01-01T00:00:00",
		"level":     "WARNING",
		"message":   "Test warning message",
	})
	sum, err := summarizer.New(nil).Process(context.Background(), rec, contracts.SummarizeOptions{})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if sum.ErrorCount != 0 {
		t.Errorf("ErrorCount = %d, want 0", sum.ErrorCount)
	}
	if sum.WarningCount != 1 {
		t.Errorf("WarningCount = %d, want 1", sum.WarningCount)
	}
	if len(sum.KeyEvents) == 0 {
		t.Error("KeyEvents is empty, want at least one")
	}
}

type stubChat struct {
	reply  string
	err    error
	prompt string
}

func (s *stubChat) Chat(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.reply, s.err
}

func TestProcess_Narrative(t *testing.T) {
	chat := &stubChat{reply: "  Disk trouble.  "}
	s := summarizer.New(chat)

	sum, err := s.Process(context.Background(), textRecord("error: disk\nwarning: fan"), contracts.SummarizeOptions{Narrative: true})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if sum.Narrative != "Disk trouble." {
		t.Errorf("Narrative = %q, want %q", sum.Narrative, "Disk trouble.")
	}
	if !strings.Contains(chat.prompt, "Errors: 1") || !strings.Contains(chat.prompt, "- warning: fan") {
		t.Errorf("prompt missing counts or events:\n%s", chat.prompt)
	}

	sum, _ = s.Process(context.Background(), textRecord("error: disk"), contracts.SummarizeOptions{})
	if sum.Narrative != "" {
		t.Errorf("Narrative without request = %q, want empty", sum.Narrative)
	}
}

func TestProcess_NarrativeFailureKeepsSummary(t *testing.T) {
	perr := models.NewProviderError("stub", models.CategoryNetwork, errors.New("down"))
	s := summarizer.New(&stubChat{err: perr})

	sum, err := s.Process(context.Background(), textRecord("error: a\nerror: b"), contracts.SummarizeOptions{Narrative: true})
	if !errors.Is(err, perr) {
		t.Fatalf("Process() error = %v, want provider error", err)
	}
	if sum.ErrorCount != 2 || len(sum.KeyEvents) != 2 {
		t.Errorf("Summary = %+v, want counts populated", sum)
	}
}

func TestBuildPrompt_BoundsEvents(t *testing.T) {
	events := make([]string, summarizer.MaxPromptEvents+5)
	for i := range events {
		events[i] = "error: x"
	}
	p := summarizer.BuildPrompt(models.Summary{ErrorCount: len(events), KeyEvents: events})
	if got := strings.Count(p, "- error: x"); got != summarizer.MaxPromptEvents {
		t.Errorf("events in prompt = %d, want %d", got, summarizer.MaxPromptEvents)
	}
	if !strings.Contains(p, "... and 5 more") {
		t.Errorf("prompt missing overflow marker:\n%s", p)
	}
}
