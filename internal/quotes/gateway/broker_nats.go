package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
)

// natsConn *nats.Conn 里用到的部分
type natsConn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	Drain() error
	Close()
}

// NatsBroker 镜像帧发到 NATS，subject 为 live.<type>.<symbol>
type NatsBroker struct {
	nc      natsConn
	buf     int
	dropped atomic.Int64
}

func NewNatsBroker(url string, opts ...nats.Option) (*NatsBroker, error) {
	opts = append([]nats.Option{nats.Name("md-gateway-mirror")}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("mirror: connect %s: %w", url, err)
	}
	return newNatsBroker(nc), nil
}

func newNatsBroker(nc natsConn) *NatsBroker {
	return &NatsBroker{nc: nc, buf: 1024}
}

func (b *NatsBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.nc.Publish(topicSubject(topic), payload)
}

func (b *NatsBroker) Subscribe(ctx context.Context, topics []string) (<-chan Message, error) {
	out := make(chan Message, b.buf)
	// Unsubscribe 之后仍可能有回调在跑，关闭 out 要和回调互斥
	var mu sync.Mutex
	closed := false
	subs := make([]*nats.Subscription, 0, len(topics))
	unsubscribe := func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}

	for _, t := range topics {
		sub, err := b.nc.Subscribe(topicSubject(t), func(m *nats.Msg) {
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return
			}
			// 回调里不能阻塞，慢消费者直接丢
			select {
			case out <- Message{Topic: subjectTopic(m.Subject), Payload: m.Data}:
			default:
				b.dropped.Add(1)
			}
		})
		if err != nil {
			unsubscribe()
			return nil, fmt.Errorf("mirror: subscribe %s: %w", t, err)
		}
		subs = append(subs, sub)
	}

	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}

// Dropped 因订阅者太慢丢掉的消息数
func (b *NatsBroker) Dropped() int64 { return b.dropped.Load() }

func (b *NatsBroker) Close() error {
	err := b.nc.Drain()
	b.nc.Close()
	return err
}

// topicSubject live:trade:ES.FUT -> live.trade.ES.FUT。
// symbol 段的 "*" 换成 ">"，因为 symbol 自身可能带 '.'
func topicSubject(topic string) string {
	parts := strings.SplitN(topic, ":", 3)
	if len(parts) == 3 && parts[2] == Wildcard {
		parts[2] = ">"
	}
	return strings.Join(parts, ".")
}

// subjectTopic 只还原前两个 '.'
func subjectTopic(subj string) string {
	return strings.Join(strings.SplitN(subj, ".", 3), ":")
}
