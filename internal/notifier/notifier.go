// Package notifier broadcasts fetch-state transitions to subscribers.
package notifier

import (
	"sync"

	"github.com/leapstack-labs/mapsource/pkg/core"
)

// Notifier fans out FetchState snapshots to all subscribed listeners.
// Each listener holds at most one pending state; a newer state replaces an
// unread older one, so slow listeners always observe the latest transition.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan core.FetchState]struct{}
}

// New creates a new Notifier instance.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[chan core.FetchState]struct{}),
	}
}

// Subscribe returns a channel that receives fetch states.
// The caller must call Unsubscribe when done.
func (n *Notifier) Subscribe() chan core.FetchState {
	ch := make(chan core.FetchState, 1)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan core.FetchState) {
	n.mu.Lock()
	_, ok := n.listeners[ch]
	delete(n.listeners, ch)
	n.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Broadcast delivers state to every listener without blocking.
func (n *Notifier) Broadcast(state core.FetchState) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		for {
			select {
			case ch <- state:
			default:
				// Drop the stale pending state and retry.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Len returns the number of active listeners.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}
