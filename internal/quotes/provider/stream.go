package provider

import (
	"context"

	"mdviewer.com/internal/quotes/model"
	"mdviewer.com/pkg/metrics"
	"mdviewer.com/pkg/safe"
)

// DefaultStreamBuffer 每个连接的发送队列长度
const DefaultStreamBuffer = 64

// Producer 在独立 goroutine 中运行，通过 Emitter 按顺序写消息；返回即流结束
type Producer func(ctx context.Context, out *Emitter)

// LiveStream 单生产者、单消费者的有界消息流，不可重启
type LiveStream struct {
	msgs   chan model.LiveMessage
	done   chan struct{}
	cancel context.CancelFunc
}

// NewLiveStream 启动 producer；ctx 结束或 Close 都会让 producer 退出
func NewLiveStream(ctx context.Context, name string, buffer int, produce Producer) *LiveStream {
	if buffer <= 0 {
		buffer = DefaultStreamBuffer
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &LiveStream{
		msgs:   make(chan model.LiveMessage, buffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	em := &Emitter{ctx: ctx, out: s.msgs, provider: name}

	metrics.LiveStreamsActive.WithLabelValues(name).Inc()
	safe.GoCtx(ctx, name+".live", func(ctx context.Context) {
		defer func() {
			metrics.LiveStreamsActive.WithLabelValues(name).Dec()
			close(s.msgs)
			close(s.done)
		}()
		produce(ctx, em)
	})
	return s
}

// Messages 生产者结束后 channel 关闭
func (s *LiveStream) Messages() <-chan model.LiveMessage { return s.msgs }

// Next ok=false 表示流已结束或 ctx 结束
func (s *LiveStream) Next(ctx context.Context) (model.LiveMessage, bool) {
	select {
	case m, ok := <-s.msgs:
		return m, ok
	case <-ctx.Done():
		return model.LiveMessage{}, false
	}
}

// Done 生产者退出后关闭
func (s *LiveStream) Done() <-chan struct{} { return s.done }

// Close 取消生产者并等待其退出；可重复调用
func (s *LiveStream) Close() {
	s.cancel()
	<-s.done
}

// Emitter 生产者侧的写端
type Emitter struct {
	ctx      context.Context
	out      chan<- model.LiveMessage
	provider string
	failed   bool
}

// Send 阻塞直到消费者取走或流被取消；返回 false 时生产者应立即退出。
// 发出过 error 之后不再接受任何消息。
func (e *Emitter) Send(msg model.LiveMessage) bool {
	if e.failed || e.ctx.Err() != nil {
		return false
	}
	select {
	case e.out <- msg:
		metrics.LiveMessagesTotal.WithLabelValues(e.provider, string(msg.Type)).Inc()
		return true
	case <-e.ctx.Done():
		return false
	}
}

// Fail 发出终止性的 error 消息
func (e *Emitter) Fail(text string) {
	if e.failed {
		return
	}
	e.Send(model.ErrorMessage(text))
	e.failed = true
}

// Failed 是否已经发出过 error
func (e *Emitter) Failed() bool { return e.failed }

// Context 生产者的 context
func (e *Emitter) Context() context.Context { return e.ctx }
