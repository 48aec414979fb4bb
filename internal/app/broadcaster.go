package app

import (
	"sync"

	"neuroaid-diagnostic-service/internal/domain"
)

// broadcaster fans session views out to per-session subscribers.
type broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.SessionView]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subscribers: make(map[string]map[chan domain.SessionView]struct{})}
}

func (b *broadcaster) subscribe(sessionID string, initial domain.SessionView) (<-chan domain.SessionView, func()) {
	ch := make(chan domain.SessionView, 8)
	ch <- initial

	b.mu.Lock()
	subs, ok := b.subscribers[sessionID]
	if !ok {
		subs = make(map[chan domain.SessionView]struct{})
		b.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[sessionID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(b.subscribers, sessionID)
		}
	}
	return ch, cancel
}

func (b *broadcaster) publish(view domain.SessionView) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[view.SessionID] {
		select {
		case ch <- view:
		default:
			// Slow subscriber: drop the oldest view so the newest always lands.
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
}

// closeSession ends every subscription to sessionID. Later cancels are no-ops.
func (b *broadcaster) closeSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[sessionID] {
		close(ch)
	}
	delete(b.subscribers, sessionID)
}

func (b *broadcaster) count(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[sessionID])
}
