// Package realtime fans out "something changed" signals between the process
// that writes to a store and the streams watching it.
package realtime

import (
	"context"
	"errors"
	"sync"
)

const TopicMessages = "messages"

var ErrClosed = errors.New("realtime: notifier closed")

// Notifier delivers change signals per topic. Signals are coalesced: a slow
// subscriber sees at least one signal after the latest Publish, not one per call.
// The returned channel is closed when the subscription ends.
type Notifier interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string) (<-chan struct{}, func(), error)
	Close() error
}

type memoryNotifier struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan struct{}
	next   int
	closed bool
}

// NewMemoryNotifier serves a single process.
func NewMemoryNotifier() Notifier {
	return &memoryNotifier{subs: make(map[string]map[int]chan struct{})}
}

func (n *memoryNotifier) Publish(_ context.Context, topic string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	for _, ch := range n.subs[topic] {
		signal(ch)
	}
	return nil
}

func (n *memoryNotifier) Subscribe(ctx context.Context, topic string) (<-chan struct{}, func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, nil, ErrClosed
	}
	id := n.next
	n.next++
	ch := make(chan struct{}, 1)
	if n.subs[topic] == nil {
		n.subs[topic] = make(map[int]chan struct{})
	}
	n.subs[topic][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if _, ok := n.subs[topic][id]; ok {
				delete(n.subs[topic], id)
				close(ch)
			}
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}

func (n *memoryNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	for _, subs := range n.subs {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
		}
	}
	return nil
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
