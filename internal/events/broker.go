package events

import (
	"context"
	"sync"

	"routeopt/internal/metrics"
)

// All subscribes to every problem.
const All = "*"

// Broker fans events out to in-process subscribers keyed by problem id.
// Slow subscribers miss events rather than block the publisher.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // problemId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(problemID string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[problemID] == nil {
		b.subs[problemID] = map[chan Event]struct{}{}
	}
	b.subs[problemID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(problemID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[problemID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, problemID)
	}
	close(ch)
}

func (b *Broker) Publish(_ context.Context, evt Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range []string{evt.ProblemID, All} {
		for ch := range b.subs[key] {
			select {
			case ch <- evt:
				metrics.EventsPublished.WithLabelValues(string(evt.Type), "broker", "ok").Inc()
			default:
				metrics.EventsPublished.WithLabelValues(string(evt.Type), "broker", "dropped").Inc()
			}
		}
	}
	return nil
}

// Follow subscribes until ctx ends. The channel is closed on unsubscribe.
func (b *Broker) Follow(ctx context.Context, problemID string) (<-chan Event, error) {
	ch := b.Subscribe(problemID)
	go func() {
		<-ctx.Done()
		b.Unsubscribe(problemID, ch)
	}()
	return ch, nil
}

var (
	_ Publisher = (*Broker)(nil)
	_ Follower  = (*Broker)(nil)
	_ Follower  = (*RedisPublisher)(nil)
)
