// ABOUTME: Connectivity signal fan-out for the bridge client.
// ABOUTME: Emits deduplicated booleans on transitions into and out of Connected.

package bridge

import (
	"log/slog"
	"sync"
)

// connectivityFeed broadcasts connectivity changes to subscribers.
// Emissions are deduplicated: a value equal to the last published one is
// dropped, so no-op connect/disconnect calls never reach subscribers.
// Late subscribers receive only future transitions, no replay.
type connectivityFeed struct {
	mu     sync.Mutex
	subs   map[int]chan bool
	nextID int
	last   bool
	logger *slog.Logger
}

func newConnectivityFeed(logger *slog.Logger) *connectivityFeed {
	return &connectivityFeed{
		subs:   make(map[int]chan bool),
		logger: logger,
	}
}

// subscribe registers a new subscriber. The returned cancel function
// removes the subscription and closes the channel.
func (f *connectivityFeed) subscribe() (<-chan bool, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan bool, 8)
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// publish fans out a connectivity value if it differs from the last one.
func (f *connectivityFeed) publish(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if connected == f.last {
		return
	}
	f.last = connected

	for _, ch := range f.subs {
		// Non-blocking send to avoid stalling dispatch on a slow subscriber.
		select {
		case ch <- connected:
		default:
			f.logger.Warn("connectivity subscriber lagging, dropping update",
				"connected", connected,
			)
		}
	}
}
