package retention_test

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loglens/loglens/internal/retention"
	"github.com/loglens/loglens/internal/store"
	"github.com/loglens/loglens/pkg/models"
)

func seed(t *testing.T, s store.Store, old, fresh int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < old; i++ {
		e := &models.ChatLogEntry{
			Prompt:    fmt.Sprintf("old-%d", i),
			Response:  "r",
			Mode:      models.ProviderLocal,
			CreatedAt: time.Now().Add(-48 * time.Hour).UTC(),
		}
		if err := s.AppendChat(ctx, e); err != nil {
			t.Fatalf("AppendChat() error = %v", err)
		}
	}
	for i := 0; i < fresh; i++ {
		if err := s.AppendChat(ctx, &models.ChatLogEntry{Prompt: fmt.Sprintf("new-%d", i), Response: "r", Mode: models.ProviderLocal}); err != nil {
			t.Fatalf("AppendChat() error = %v", err)
		}
	}
}

func remaining(t *testing.T, s store.Store) int {
	t.Helper()
	got, err := s.RecentChats(context.Background(), 1000)
	if err != nil {
		t.Fatalf("RecentChats() error = %v", err)
	}
	return len(got)
}

func TestJanitor_PurgeOnly(t *testing.T) {
	s := store.NewMemoryStore(1000)
	seed(t, s, 5, 3)

	j := retention.NewJanitor(s, 24*time.Hour, time.Hour)
	stats := j.RunCycle(context.Background())

	if stats.Purged != 5 || stats.Archived != 0 {
		t.Errorf("RunCycle() = purged %d archived %d, want 5 and 0", stats.Purged, stats.Archived)
	}
	if n := remaining(t, s); n != 3 {
		t.Errorf("remaining entries = %d, want 3", n)
	}
}

func TestJanitor_ZeroMaxAgeKeepsEverything(t *testing.T) {
	s := store.NewMemoryStore(1000)
	seed(t, s, 2, 1)

	stats := retention.NewJanitor(s, 0, time.Hour).RunCycle(context.Background())
	if stats.Purged != 0 {
		t.Errorf("Purged = %d, want 0", stats.Purged)
	}
	if n := remaining(t, s); n != 3 {
		t.Errorf("remaining entries = %d, want 3", n)
	}
}

func TestJanitor_ArchiveThenPurgeInBatches(t *testing.T) {
	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "loglens.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer s.Close()
	seed(t, s, 7, 2)

	dir := t.TempDir()
	j := retention.NewJanitor(s, 24*time.Hour, time.Hour)
	j.RegisterArchiver(retention.NewLocalFileArchiver(dir, true))
	j.SetBatchSize(3)

	stats := j.RunCycle(context.Background())
	if len(stats.Errors) != 0 {
		t.Fatalf("RunCycle() errors = %v", stats.Errors)
	}
	if stats.Archived != 7 || stats.Purged != 7 {
		t.Errorf("RunCycle() = archived %d purged %d, want 7 and 7", stats.Archived, stats.Purged)
	}
	if len(stats.URIs) != 3 {
		t.Fatalf("len(URIs) = %d, want 3 batches", len(stats.URIs))
	}
	if n := remaining(t, s); n != 2 {
		t.Errorf("remaining entries = %d, want 2", n)
	}

	total := 0
	for _, uri := range stats.URIs {
		if filepath.Ext(uri) != ".gz" {
			t.Errorf("archive %q is not gzipped", uri)
		}
		total += countArchived(t, uri)
	}
	if total != 7 {
		t.Errorf("archived lines = %d, want 7", total)
	}
}

func countArchived(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	n := 0
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		var e models.ChatLogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("decode archived line: %v", err)
		}
		if e.ID == "" {
			t.Errorf("archived entry has no ID: %s", sc.Text())
		}
		n++
	}
	return n
}

type failingArchiver struct{}

func (failingArchiver) Kind() string { return "broken" }
func (failingArchiver) ArchiveChats(context.Context, []models.ChatLogEntry) (string, error) {
	return "", errors.New("disk full")
}
func (failingArchiver) HealthCheck(context.Context) error { return nil }

func TestJanitor_ArchiveFailureKeepsEntries(t *testing.T) {
	s := store.NewMemoryStore(1000)
	seed(t, s, 4, 0)

	j := retention.NewJanitor(s, time.Hour, time.Hour)
	j.RegisterArchiver(failingArchiver{})
	stats := j.RunCycle(context.Background())

	if stats.Purged != 0 {
		t.Errorf("Purged = %d, want 0 after archive failure", stats.Purged)
	}
	if len(stats.Errors) != 1 || !retention.IsArchiveError(stats.Errors[0]) {
		t.Errorf("Errors = %v, want one archive error", stats.Errors)
	}
	if n := remaining(t, s); n != 4 {
		t.Errorf("remaining entries = %d, want 4", n)
	}
}

func TestJanitor_StartStopsOnCancel(t *testing.T) {
	s := store.NewMemoryStore(10)
	seed(t, s, 1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		retention.NewJanitor(s, time.Hour, time.Hour).Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for remaining(t, s) != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := remaining(t, s); n != 0 {
		t.Errorf("remaining entries = %d, want 0 after startup cycle", n)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}

func TestLocalFileArchiver_PlainAndHealth(t *testing.T) {
	dir := t.TempDir()
	a := retention.NewLocalFileArchiver(dir, false)
	if err := a.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	path, err := a.ArchiveChats(context.Background(), []models.ChatLogEntry{{ID: "a", Prompt: "p"}, {ID: "b", Prompt: "q"}})
	if err != nil {
		t.Fatalf("ArchiveChats() error = %v", err)
	}
	if filepath.Dir(path) != filepath.Join(dir, "chat_logs") {
		t.Errorf("ArchiveChats() path = %q, want under %q", path, filepath.Join(dir, "chat_logs"))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	want := `{"id":"a","prompt":"p","response":"","mode":"","created_at":"0001-01-01T00:00:00Z"}` + "\n" +
		`{"id":"b","prompt":"q","response":"","mode":"","created_at":"0001-01-01T00:00:00Z"}` + "\n"
	if string(data) != want {
		t.Errorf("archive contents = %q, want %q", data, want)
	}
}
