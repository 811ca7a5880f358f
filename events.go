package stagepipe

import (
	"github.com/sasha-s/go-deadlock"
)

// EventKind identifies what changed.
type EventKind int

const (
	// EventInserted is published after Add. Index is the insertion position.
	EventInserted EventKind = iota
	// EventMoved is published after MoveUp or MoveDown. Index is the old
	// position and To the new one.
	EventMoved
	// EventRemoved is published after Delete. Index is the removed position.
	EventRemoved
	// EventReset is published after Clear.
	EventReset
	// EventRunFinished is published when a run produced a result.
	EventRunFinished
)

func (k EventKind) String() string {
	switch k {
	case EventInserted:
		return "inserted"
	case EventMoved:
		return "moved"
	case EventRemoved:
		return "removed"
	case EventReset:
		return "reset"
	case EventRunFinished:
		return "run_finished"
	default:
		return "unknown"
	}
}

// Event describes a structural change to a pipeline or the end of a run.
type Event struct {
	Kind    EventKind
	Index   int
	To      int
	Element *Element
	Result  *RunResult
}

// Observer receives events. OnEvent runs synchronously on the goroutine that
// caused the change and must not call back into the publisher.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(e Event) { f(e) }

type subscription struct {
	id       uint64
	observer Observer
}

// Notifier fans events out to subscribers in subscription order.
type Notifier struct {
	mu     deadlock.RWMutex
	nextID uint64
	subs   []subscription
}

// NewNotifier creates a notifier without subscribers.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers o and returns a function that removes it.
func (n *Notifier) Subscribe(o Observer) (cancel func()) {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscription{id: id, observer: o})
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, s := range n.subs {
			if s.id == id {
				n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers e to every current subscriber.
func (n *Notifier) Publish(e Event) {
	if n == nil {
		return
	}
	n.mu.RLock()
	subs := make([]subscription, len(n.subs))
	copy(subs, n.subs)
	n.mu.RUnlock()

	for _, s := range subs {
		s.observer.OnEvent(e)
	}
}
