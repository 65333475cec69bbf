package mechanic

import "sync"

// Notifier fans a state-change signal out to subscribed listeners.
// Delivery is synchronous and in subscription order. A Notify issued
// while a round is already running, including from one of its own
// listeners, does not re-enter: it is coalesced into a single trailing
// round once the current one finishes.
//
// Mechanics embed one and call Notify after releasing their state lock,
// so listeners always read a committed snapshot.
type Notifier struct {
	mu        sync.Mutex
	nextID    int
	order     []int
	listeners map[int]Listener
	notifying bool
	pending   bool
}

// Subscribe registers a listener and returns its unsubscribe func.
// Unsubscribing twice is harmless.
func (n *Notifier) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners == nil {
		n.listeners = make(map[int]Listener)
	}
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
	n.order = append(n.order, id)
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.listeners[id]; !ok {
			return
		}
		delete(n.listeners, id)
		for i, v := range n.order {
			if v == id {
				n.order = append(n.order[:i], n.order[i+1:]...)
				break
			}
		}
	}
}

// Notify delivers one round of callbacks. Listeners added or removed
// during a round take effect from the next round.
func (n *Notifier) Notify() {
	n.mu.Lock()
	if n.notifying {
		n.pending = true
		n.mu.Unlock()
		return
	}
	n.notifying = true
	for {
		n.pending = false
		fns := make([]Listener, 0, len(n.order))
		for _, id := range n.order {
			if fn, ok := n.listeners[id]; ok {
				fns = append(fns, fn)
			}
		}
		n.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
		n.mu.Lock()
		if !n.pending {
			break
		}
	}
	n.notifying = false
	n.mu.Unlock()
}

// Reset drops every listener.
func (n *Notifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = nil
	n.order = nil
}

// Len reports the number of subscribed listeners.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}
