package events

import "sync"

// Topic ties an event name to its payload type so publishers and subscribers
// cannot disagree on the shape.
type Topic[T any] struct {
	name string
}

func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{name: name}
}

func (t Topic[T]) Name() string {
	return t.name
}

type subscription struct {
	id uint64
	fn any
}

// Bus is an in-process publish/subscribe hub. Handlers run synchronously on
// the publishing goroutine, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers fn for topic and returns a func that removes it
func Subscribe[T any](b *Bus, topic Topic[T], fn func(T)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic.name] = append(b.subs[topic.name], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[topic.name]
			for i, s := range list {
				if s.id == id {
					b.subs[topic.name] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers v to every current subscriber of topic
func Publish[T any](b *Bus, topic Topic[T], v T) {
	b.mu.RLock()
	list := append([]subscription(nil), b.subs[topic.name]...)
	b.mu.RUnlock()

	for _, s := range list {
		if fn, ok := s.fn.(func(T)); ok {
			fn(v)
		}
	}
}
