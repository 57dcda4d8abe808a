package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/loglens/loglens/internal/pipeline"
	"github.com/loglens/loglens/internal/summarizer"
	"github.com/loglens/loglens/pkg/contracts"
	"github.com/loglens/loglens/pkg/models"
)

type recordingSink struct {
	name string
	err  error

	mu     sync.Mutex
	events []models.SummaryEvent
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, ev models.SummaryEvent) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) snapshot() []models.SummaryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SummaryEvent(nil), s.events...)
}

func record(path, text string) models.LogRecord {
	return models.LogRecord{ID: text, FilePath: path, Content: models.LogContent{Text: text}, ObservedAt: time.Now()}
}

func TestPipeline_ForwardsToEverySink(t *testing.T) {
	good := &recordingSink{name: "good"}
	bad := &recordingSink{name: "bad", err: errors.New("down")}
	p := pipeline.New(summarizer.New(nil), []contracts.SummarySink{bad, good}, pipeline.Options{Workers: 2, QueueSize: 4})
	p.Start(context.Background())

	for i := 0; i < 5; i++ {
		if err := p.Enqueue(context.Background(), record(fmt.Sprintf("f%d.log", i), "error: x")); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	p.Close()

	if got := len(good.snapshot()); got != 5 {
		t.Errorf("good sink events = %d, want 5", got)
	}
	if got := len(bad.snapshot()); got != 5 {
		t.Errorf("bad sink events = %d, want 5", got)
	}
	for _, ev := range good.snapshot() {
		if ev.Summary.ErrorCount != 1 {
			t.Errorf("event %s ErrorCount = %d, want 1", ev.FilePath, ev.Summary.ErrorCount)
		}
		if ev.ID == "" || ev.SummarizedAt.IsZero() {
			t.Errorf("event %s missing ID or SummarizedAt", ev.FilePath)
		}
	}
}

func TestPipeline_PerPathOrder(t *testing.T) {
	s := &recordingSink{name: "rec"}
	p := pipeline.New(summarizer.New(nil), []contracts.SummarySink{s}, pipeline.Options{Workers: 4, QueueSize: 64})
	p.Start(context.Background())

	for i := 0; i < 20; i++ {
		for _, path := range []string{"a.log", "b.log"} {
			text := fmt.Sprintf("error %03d", i)
			if err := p.Enqueue(context.Background(), record(path, text)); err != nil {
				t.Fatalf("Enqueue() error = %v", err)
			}
		}
	}
	p.Close()

	last := map[string]string{}
	for _, ev := range s.snapshot() {
		got := ev.Summary.KeyEvents[0]
		if prev, ok := last[ev.FilePath]; ok && got <= prev {
			t.Errorf("%s delivered %q after %q", ev.FilePath, got, prev)
		}
		last[ev.FilePath] = got
	}
	if len(s.snapshot()) != 40 {
		t.Errorf("events = %d, want 40", len(s.snapshot()))
	}
}

type failingNarrator struct{}

func (failingNarrator) Chat(context.Context, string) (string, error) {
	return "", models.NewProviderError("stub", models.CategoryTimeout, context.DeadlineExceeded)
}

func TestPipeline_NarrativeErrorRecorded(t *testing.T) {
	s := &recordingSink{name: "rec"}
	p := pipeline.New(summarizer.New(failingNarrator{}), []contracts.SummarySink{s}, pipeline.Options{Workers: 1, Narrative: true})
	p.Start(context.Background())
	_ = p.Enqueue(context.Background(), record("a.log", "warning: x"))
	p.Close()

	events := s.snapshot()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].NarrativeError == "" {
		t.Error("NarrativeError empty, want provider error text")
	}
	if events[0].Summary.WarningCount != 1 {
		t.Errorf("WarningCount = %d, want 1", events[0].Summary.WarningCount)
	}
}

func TestPipeline_EnqueueAfterClose(t *testing.T) {
	p := pipeline.New(summarizer.New(nil), nil, pipeline.Options{})
	p.Start(context.Background())
	p.Close()
	p.Close()

	if err := p.Enqueue(context.Background(), record("a.log", "x")); !errors.Is(err, pipeline.ErrClosed) {
		t.Errorf("Enqueue() error = %v, want ErrClosed", err)
	}
}

func TestPipeline_EnqueueBlocksUntilContextDone(t *testing.T) {
	p := pipeline.New(summarizer.New(nil), nil, pipeline.Options{Workers: 1, QueueSize: 1})
	// Not started: the single slot fills and the next Enqueue must wait.
	if err := p.Enqueue(context.Background(), record("a.log", "1")); err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := p.Enqueue(ctx, record("a.log", "2")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second Enqueue() error = %v, want DeadlineExceeded", err)
	}
}
