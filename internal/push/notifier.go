package push

import "sync"

// Notifier fans refresh signals out to subscribers. Each subscriber holds at most one pending
// signal: a subscriber that is behind sees only the latest one.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan RefreshSignal
}

// NewNotifier creates a Notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan RefreshSignal)}
}

// Subscribe registers a subscriber. The returned function unsubscribes and closes the channel.
func (n *Notifier) Subscribe() (<-chan RefreshSignal, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	ch := make(chan RefreshSignal, 1)
	n.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
			close(ch)
		})
	}
}

// Notify delivers signal to every subscriber without blocking.
func (n *Notifier) Notify(signal RefreshSignal) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs {
		select {
		case ch <- signal:
			continue
		default:
		}

		// Replace the stale pending signal.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- signal:
		default:
		}
	}
}

// Subscribers returns the number of active subscribers.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
