package feed_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/loglens/loglens/internal/feed"
	"github.com/loglens/loglens/pkg/models"
)

func event(i int) models.SummaryEvent {
	return models.SummaryEvent{ID: fmt.Sprintf("ev-%d", i), FilePath: "app.log"}
}

func TestFeed_RecentKeepsNewest(t *testing.T) {
	f := feed.New(3)
	for i := 1; i <= 5; i++ {
		if err := f.Publish(context.Background(), event(i)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	all := f.Recent(0)
	if len(all) != 3 {
		t.Fatalf("len(Recent(0)) = %d, want 3", len(all))
	}
	if all[0].ID != "ev-3" || all[2].ID != "ev-5" {
		t.Errorf("Recent(0) = [%s .. %s], want [ev-3 .. ev-5]", all[0].ID, all[2].ID)
	}

	two := f.Recent(2)
	if len(two) != 2 || two[0].ID != "ev-4" {
		t.Errorf("Recent(2) = %v, want ev-4, ev-5", two)
	}
}

func TestFeed_Subscribe(t *testing.T) {
	f := feed.New(10)
	ch := f.Subscribe()
	if f.Subscribers() != 1 {
		t.Errorf("Subscribers() = %d, want 1", f.Subscribers())
	}

	_ = f.Publish(context.Background(), event(1))
	got := <-ch
	if got.ID != "ev-1" {
		t.Errorf("received %q, want ev-1", got.ID)
	}

	f.Unsubscribe(ch)
	f.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}
	if f.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d, want 0", f.Subscribers())
	}
}

func TestFeed_SlowSubscriberDoesNotBlock(t *testing.T) {
	f := feed.New(500)
	ch := f.Subscribe()
	defer f.Unsubscribe(ch)

	for i := 0; i < 200; i++ {
		_ = f.Publish(context.Background(), event(i))
	}
	if got := len(f.Recent(0)); got != 200 {
		t.Errorf("len(Recent(0)) = %d, want 200", got)
	}
}

func TestFeed_SubscribeReplayDoesNotDuplicate(t *testing.T) {
	f := feed.New(10)
	for i := 1; i <= 3; i++ {
		_ = f.Publish(context.Background(), event(i))
	}

	ch, backlog := f.SubscribeReplay(2)
	defer f.Unsubscribe(ch)
	if len(backlog) != 2 || backlog[0].ID != "ev-2" || backlog[1].ID != "ev-3" {
		t.Fatalf("SubscribeReplay(2) backlog = %v, want ev-2, ev-3", backlog)
	}

	_ = f.Publish(context.Background(), event(4))
	seen := map[string]int{}
	for _, ev := range backlog {
		seen[ev.ID]++
	}
	for len(ch) > 0 {
		seen[(<-ch).ID]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("event %s seen %d times, want 1", id, n)
		}
	}
	if seen["ev-4"] != 1 {
		t.Error("ev-4 published after subscribing was not delivered")
	}
	if len(seen) != 3 {
		t.Errorf("events seen = %v, want ev-2, ev-3, ev-4", seen)
	}
}

func TestFeed_SubscribeReplayZero(t *testing.T) {
	f := feed.New(10)
	_ = f.Publish(context.Background(), event(1))
	ch, backlog := f.SubscribeReplay(0)
	defer f.Unsubscribe(ch)
	if len(backlog) != 0 {
		t.Errorf("SubscribeReplay(0) backlog = %v, want none", backlog)
	}
}
