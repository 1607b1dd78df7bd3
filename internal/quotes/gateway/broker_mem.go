package gateway

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

type memSub struct {
	patterns []string
	ch       chan Message
}

func (s *memSub) matches(topic string) bool {
	return slices.ContainsFunc(s.patterns, func(p string) bool { return MatchTopic(p, topic) })
}

// MemBroker 单进程内存实现
type MemBroker struct {
	mu      sync.RWMutex
	subs    []*memSub
	buf     int
	dropped atomic.Int64
}

func NewMemBroker() *MemBroker {
	return &MemBroker{buf: 1024}
}

func (b *MemBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	msg := Message{Topic: topic, Payload: payload}
	for _, s := range b.subs {
		if !s.matches(topic) {
			continue
		}
		select {
		case s.ch <- msg:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

func (b *MemBroker) Subscribe(ctx context.Context, topics []string) (<-chan Message, error) {
	s := &memSub{patterns: slices.Clone(topics), ch: make(chan Message, b.buf)}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(s)
	}()
	return s.ch, nil
}

// remove 在写锁下摘除再关闭，Publish 不会写到已关闭的 channel
func (b *MemBroker) remove(s *memSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = slices.DeleteFunc(b.subs, func(x *memSub) bool { return x == s })
	close(s.ch)
}

// Subscribers 能收到 topic 的订阅数
func (b *MemBroker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.subs {
		if s.matches(topic) {
			n++
		}
	}
	return n
}

// Dropped 因订阅者太慢丢掉的消息数
func (b *MemBroker) Dropped() int64 { return b.dropped.Load() }

func (b *MemBroker) Close() error { return nil }
