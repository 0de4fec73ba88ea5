// Package notify provides an in-process bus for schema change notifications,
// used to keep resolver plan caches and other observers in step with the
// catalog.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChangeType is the kind of schema change.
type ChangeType int

const (
	SpaceCreated ChangeType = iota
	SpaceDropped
	SpaceAltered
	IndexCreated
	IndexRemoved
	Refreshed
)

var changeTypeNames = [...]string{
	SpaceCreated: "space_created",
	SpaceDropped: "space_dropped",
	SpaceAltered: "space_altered",
	IndexCreated: "index_created",
	IndexRemoved: "index_removed",
	Refreshed:    "refreshed",
}

func (t ChangeType) String() string {
	if t >= 0 && int(t) < len(changeTypeNames) {
		return changeTypeNames[t]
	}
	return "unknown"
}

// Change describes one schema change. Space is empty for Refreshed.
type Change struct {
	Type       ChangeType
	Space      string
	SpaceID    uint32
	Generation uint64
	Timestamp  int64
}

// Notifier is a non-blocking pub/sub bus. A subscriber that does not keep
// up loses changes instead of stalling the publisher.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	bufferSize  int
}

// NewNotifier creates a notifier whose subscriber channels hold bufferSize
// changes.
func NewNotifier(bufferSize int) *Notifier {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Notifier{
		subscribers: make(map[string]*Subscriber),
		bufferSize:  bufferSize,
	}
}

// Publish sends c to every matching subscriber.
func (n *Notifier) Publish(c Change) {
	if c.Timestamp == 0 {
		c.Timestamp = time.Now().UnixNano()
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, sub := range n.subscribers {
		if !sub.matches(c) {
			continue
		}
		select {
		case sub.Ch <- c:
		default:
			// full
		}
	}
}

// Subscribe registers a subscriber under id. With spaces given, only
// changes to those spaces and Refreshed are delivered.
func (n *Notifier) Subscribe(id string, spaces ...string) *Subscriber {
	sub := &Subscriber{
		ID:     id,
		Spaces: spaces,
		Ch:     make(chan Change, n.bufferSize),
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if old, ok := n.subscribers[id]; ok {
		close(old.Ch)
	}
	n.subscribers[id] = sub
	return sub
}

// SubscribeAutoID registers a subscriber under a generated id.
func (n *Notifier) SubscribeAutoID(spaces ...string) *Subscriber {
	return n.Subscribe("sub_"+uuid.NewString(), spaces...)
}

// Unsubscribe removes a subscriber and closes its channel.
func (n *Notifier) Unsubscribe(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sub, ok := n.subscribers[id]; ok {
		delete(n.subscribers, id)
		close(sub.Ch)
	}
}

// Len returns the number of subscribers.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscribers)
}

// Subscriber receives changes on Ch.
type Subscriber struct {
	ID     string
	Spaces []string
	Ch     chan Change
}

func (s *Subscriber) matches(c Change) bool {
	if len(s.Spaces) == 0 || c.Type == Refreshed {
		return true
	}
	for _, name := range s.Spaces {
		if name == c.Space {
			return true
		}
	}
	return false
}
