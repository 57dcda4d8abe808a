// Package feed keeps the most recent summary events in memory and fans
// new ones out to live subscribers.
package feed

import (
	"context"
	"sync"

	"github.com/loglens/loglens/pkg/models"
)

// DefaultSize is the number of events retained when none is configured.
const DefaultSize = 200

// Feed is a thread-safe ring buffer of SummaryEvents that supports
// real-time streaming to subscribers. It is a contracts.SummarySink.
type Feed struct {
	mu          sync.RWMutex
	events      []models.SummaryEvent
	maxEvents   int
	subscribers map[chan models.SummaryEvent]struct{}
}

// New creates a feed that retains up to maxEvents events.
func New(maxEvents int) *Feed {
	if maxEvents <= 0 {
		maxEvents = DefaultSize
	}
	return &Feed{
		events:      make([]models.SummaryEvent, 0, maxEvents),
		maxEvents:   maxEvents,
		subscribers: make(map[chan models.SummaryEvent]struct{}),
	}
}

func (f *Feed) Name() string { return "feed" }

// Publish appends event and broadcasts it to all subscribers. A
// subscriber whose buffer is full misses the event.
func (f *Feed) Publish(_ context.Context, event models.SummaryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.events) >= f.maxEvents {
		copy(f.events, f.events[1:])
		f.events = f.events[:len(f.events)-1]
	}
	f.events = append(f.events, event)

	for ch := range f.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Recent returns up to n of the latest events, oldest first. n <= 0
// returns everything retained.
func (f *Feed) Recent(n int) []models.SummaryEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.recentLocked(n)
}

func (f *Feed) recentLocked(n int) []models.SummaryEvent {
	total := len(f.events)
	if n <= 0 || n > total {
		n = total
	}
	out := make([]models.SummaryEvent, n)
	copy(out, f.events[total-n:])
	return out
}

// Subscribe returns a channel that receives new events as they arrive.
// Call Unsubscribe when done.
func (f *Feed) Subscribe() chan models.SummaryEvent {
	ch, _ := f.SubscribeReplay(0)
	return ch
}

// SubscribeReplay subscribes and returns the n latest retained events,
// taken atomically with the subscription: every event is either in the
// replay or delivered on the channel, never both. n <= 0 replays nothing.
func (f *Feed) SubscribeReplay(n int) (chan models.SummaryEvent, []models.SummaryEvent) {
	ch := make(chan models.SummaryEvent, 64)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers[ch] = struct{}{}
	if n <= 0 {
		return ch, nil
	}
	return ch, f.recentLocked(n)
}

// Unsubscribe removes a subscriber channel and closes it.
func (f *Feed) Unsubscribe(ch chan models.SummaryEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subscribers[ch]; !ok {
		return
	}
	delete(f.subscribers, ch)
	close(ch)
}

// Subscribers returns the number of live subscribers.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}
