package sink_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loglens/loglens/internal/sink"
	"github.com/loglens/loglens/pkg/models"
)

func TestWebhookSink_SignsPayload(t *testing.T) {
	var gotSig string
	var gotEvent models.SummaryEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSig = r.Header.Get(sink.SignatureHeader)
		if want := sink.Sign("s3cret", body); gotSig != want {
			t.Errorf("signature = %q, want %q", gotSig, want)
		}
		_ = json.Unmarshal(body, &gotEvent)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := sink.NewWebhookSink(srv.URL, sink.WithSecret("s3cret"))
	ev := models.SummaryEvent{ID: "ev-1", FilePath: "app.log", Summary: models.Summary{ErrorCount: 2}}
	if err := s.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if gotSig == "" {
		t.Error("signature header missing")
	}
	if gotEvent.ID != "ev-1" || gotEvent.Summary.ErrorCount != 2 {
		t.Errorf("received %+v, want ev-1 with 2 errors", gotEvent)
	}
}

func TestWebhookSink_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := sink.NewWebhookSink(srv.URL, sink.WithRetry(3, time.Millisecond))
	if err := s.Publish(context.Background(), models.SummaryEvent{ID: "x"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestWebhookSink_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := sink.NewWebhookSink(srv.URL, sink.WithRetry(2, time.Millisecond))
	if err := s.Publish(context.Background(), models.SummaryEvent{ID: "x"}); err == nil {
		t.Error("Publish() error = nil, want error")
	}
}
