package gateway

import (
	"context"
	"strings"
)

type Message struct {
	Topic   string
	Payload []byte
}

// Broker 实时帧的旁路分发；at-most-once，慢订阅者丢消息
type Broker interface {
	// Publish topic 必须是完整的 live:<type>:<symbol>
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe topic 的 type 或 symbol 段可以是 "*"；ctx 结束后 channel 关闭
	Subscribe(ctx context.Context, topics []string) (<-chan Message, error)
	Close() error
}

// Wildcard 匹配任意 type 或 symbol
const Wildcard = "*"

// MatchTopic pattern 逐段比较，symbol 段本身可能带 '.'，只按 ':' 切三段
func MatchTopic(pattern, topic string) bool {
	pp := strings.SplitN(pattern, ":", 3)
	tp := strings.SplitN(topic, ":", 3)
	if len(pp) != len(tp) {
		return false
	}
	for i := range pp {
		if pp[i] != Wildcard && pp[i] != tp[i] {
			return false
		}
	}
	return true
}
