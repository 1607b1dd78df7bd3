package gateway

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"mdviewer.com/internal/quotes/model"
	"mdviewer.com/pkg/logger"
)

const (
	KindMem  = "mem"
	KindNats = "nats"
)

// Topic live:<type>:<symbol>；connected/error 没有 symbol，用 "_"
func Topic(m model.LiveMessage) string {
	sym := m.Symbol()
	if sym == "" {
		sym = "_"
	}
	return "live:" + string(m.Type) + ":" + sym
}

// Mirror 把 relay 已经写出的帧旁路发到 broker。失败只记日志，不影响客户端。
type Mirror struct {
	broker Broker
}

func NewMirror(b Broker) *Mirror { return &Mirror{broker: b} }

// Open 按 kind 创建 broker；kind 为空返回 nil（不镜像）
func Open(kind, natsURL string) (*Mirror, error) {
	switch strings.ToLower(kind) {
	case "", "none":
		return nil, nil
	case KindMem:
		return NewMirror(NewMemBroker()), nil
	case KindNats:
		b, err := NewNatsBroker(natsURL)
		if err != nil {
			return nil, err
		}
		return NewMirror(b), nil
	default:
		return nil, &UnknownKindError{Kind: kind}
	}
}

type UnknownKindError struct{ Kind string }

func (e *UnknownKindError) Error() string { return "mirror: unknown broker kind " + e.Kind }

// Publish payload 是已经编码好的帧
func (m *Mirror) Publish(ctx context.Context, msg model.LiveMessage, payload []byte) {
	if m == nil {
		return
	}
	if err := m.broker.Publish(ctx, Topic(msg), payload); err != nil {
		logger.Debug(ctx, "mirror publish failed", zap.String("topic", Topic(msg)), zap.Error(err))
	}
}

func (m *Mirror) Broker() Broker { return m.broker }

func (m *Mirror) Close() error {
	if m == nil {
		return nil
	}
	return m.broker.Close()
}
