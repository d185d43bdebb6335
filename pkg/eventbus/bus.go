// Package eventbus is a tiny in-memory fanout bus used to decouple the
// scheduler and dispatcher from whatever wants to observe them.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Well-known topics published by the framework.
const (
	TopicTaskOK       = "task.ok"
	TopicTaskFailed   = "task.failed"
	TopicTaskSkipped  = "task.skipped"
	TopicDispatchOK   = "dispatch.ok"
	TopicDispatchFail = "dispatch.failed"
)

// Event is a lightweight in-memory signal.
//
// Contract:
//   - Publish MUST NOT block.
//   - Slow subscribers drop events (bounded backpressure).
//
// Data should be small and ideally JSON-serializable.
type Event struct {
	Topic string
	Time  time.Time
	Data  any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*subscriber{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	seq  atomic.Uint64
}

type subscriber struct {
	ch      chan Event
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot so Publish never holds the lock across sends.
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		// Unsubscribe may close the channel concurrently; recover keeps
		// Publish safe against send-on-closed.
		func() {
			defer func() { _ = recover() }()
			select {
			case s.ch <- e:
			default:
				s.dropped.Add(1)
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	sub := &subscriber{ch: make(chan Event, buffer)}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, unsub
}
