package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mdviewer.com/internal/quotes/model"
)

func TestTopic(t *testing.T) {
	assert.Equal(t, "live:trade:ES.FUT", Topic(model.TradeMessage(model.TradeRecord{Symbol: "ES.FUT"})))
	assert.Equal(t, "live:ohlcv:NQ.FUT", Topic(model.OhlcvMessage(model.OhlcvRecord{Symbol: "NQ.FUT"})))
	assert.Equal(t, "live:error:_", Topic(model.ErrorMessage("boom")))
}

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern, topic string
		want           bool
	}{
		{"live:trade:ES.FUT", "live:trade:ES.FUT", true},
		{"live:trade:*", "live:trade:NQ.FUT", true},
		{"live:*:ES.FUT", "live:ohlcv:ES.FUT", true},
		{"live:trade:*", "live:ohlcv:ES.FUT", false},
		{"live:trade:ES", "live:trade:ES.FUT", false},
		{"live:trade", "live:trade:ES.FUT", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchTopic(tc.pattern, tc.topic), "%s vs %s", tc.pattern, tc.topic)
	}
}

func TestSubjectMapping(t *testing.T) {
	assert.Equal(t, "live.trade.ES.FUT", topicSubject("live:trade:ES.FUT"))
	assert.Equal(t, "live.trade.>", topicSubject("live:trade:*"))
	assert.Equal(t, "live.*.ES.FUT", topicSubject("live:*:ES.FUT"))
	assert.Equal(t, "live:trade:ES.FUT", subjectTopic("live.trade.ES.FUT"))
}

func TestMemBroker_FanoutAndCleanup(t *testing.T) {
	b := NewMemBroker()
	ctx, cancel := context.WithCancel(context.Background())

	ch1, err := b.Subscribe(ctx, []string{"live:trade:ES.FUT"})
	require.NoError(t, err)
	ch2, err := b.Subscribe(context.Background(), []string{"live:trade:ES.FUT", "live:trade:NQ.FUT"})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Subscribers("live:trade:ES.FUT"))

	require.NoError(t, b.Publish(ctx, "live:trade:ES.FUT", []byte("a")))
	assert.Equal(t, Message{Topic: "live:trade:ES.FUT", Payload: []byte("a")}, <-ch1)
	assert.Equal(t, "a", string((<-ch2).Payload))

	cancel()
	_, ok := <-ch1
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return b.Subscribers("live:trade:ES.FUT") == 1 }, time.Second, 10*time.Millisecond)

	// 没有订阅者也不报错
	assert.NoError(t, b.Publish(context.Background(), "live:ohlcv:CL.FUT", []byte("x")))
}

func TestMemBroker_Wildcard(t *testing.T) {
	b := NewMemBroker()
	b.buf = 1
	ch, err := b.Subscribe(context.Background(), []string{"live:trade:*"})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers("live:trade:NQ.FUT"))
	assert.Equal(t, 0, b.Subscribers("live:ohlcv:NQ.FUT"))

	require.NoError(t, b.Publish(context.Background(), "live:ohlcv:ES.FUT", []byte("bar")))
	require.NoError(t, b.Publish(context.Background(), "live:trade:ES.FUT", []byte("t1")))
	require.NoError(t, b.Publish(context.Background(), "live:trade:NQ.FUT", []byte("t2")))

	assert.Equal(t, Message{Topic: "live:trade:ES.FUT", Payload: []byte("t1")}, <-ch)
	assert.Equal(t, int64(1), b.Dropped())
}

// fakeNats 记录 publish，保存订阅回调，由测试手动投递
type fakeNats struct {
	mu        sync.Mutex
	published []Message
	handlers  map[string]nats.MsgHandler
	failOn    string
	drained   bool
	closed    bool
}

func (f *fakeNats) Publish(subj string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, Message{Topic: subj, Payload: data})
	return nil
}

func (f *fakeNats) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	if subj == f.failOn {
		return nil, errors.New("permissions violation")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = map[string]nats.MsgHandler{}
	}
	f.handlers[subj] = cb
	return &nats.Subscription{Subject: subj}, nil
}

func (f *fakeNats) Drain() error { f.drained = true; return nil }

func (f *fakeNats) Close() { f.closed = true }

func (f *fakeNats) deliver(pattern, subj string, data []byte) {
	f.mu.Lock()
	cb := f.handlers[pattern]
	f.mu.Unlock()
	cb(&nats.Msg{Subject: subj, Data: data})
}

func TestNatsBroker_PublishSubscribe(t *testing.T) {
	fc := &fakeNats{}
	b := newNatsBroker(fc)
	b.buf = 1

	require.NoError(t, b.Publish(context.Background(), "live:trade:ES.FUT", []byte("t")))
	assert.Equal(t, []Message{{Topic: "live.trade.ES.FUT", Payload: []byte("t")}}, fc.published)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Publish(canceled, "live:trade:ES.FUT", nil), context.Canceled)

	ctx, stop := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, []string{"live:trade:*", "live:connected:_"})
	require.NoError(t, err)
	assert.Contains(t, fc.handlers, "live.trade.>")
	assert.Contains(t, fc.handlers, "live.connected._")

	fc.deliver("live.trade.>", "live.trade.ES.FUT", []byte("a"))
	fc.deliver("live.trade.>", "live.trade.NQ.FUT", []byte("b"))
	assert.Equal(t, Message{Topic: "live:trade:ES.FUT", Payload: []byte("a")}, <-ch)
	assert.Equal(t, int64(1), b.Dropped())

	stop()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription channel not closed")
	}
	// 关闭后迟到的回调直接忽略
	fc.deliver("live.connected._", "live.connected._", []byte("late"))

	require.NoError(t, b.Close())
	assert.True(t, fc.drained)
	assert.True(t, fc.closed)
}

func TestNatsBroker_SubscribeError(t *testing.T) {
	b := newNatsBroker(&fakeNats{failOn: "live.ohlcv.>"})
	_, err := b.Subscribe(context.Background(), []string{"live:trade:*", "live:ohlcv:*"})
	assert.ErrorContains(t, err, "mirror: subscribe live:ohlcv:*")
}

func TestMirror(t *testing.T) {
	m, err := Open("mem", "")
	require.NoError(t, err)
	defer m.Close()

	ch, err := m.Broker().Subscribe(context.Background(), []string{"live:trade:ES.FUT"})
	require.NoError(t, err)

	msg := model.TradeMessage(model.TradeRecord{Symbol: "ES.FUT", PriceI64: 1})
	b, err := msg.Encode()
	require.NoError(t, err)
	m.Publish(context.Background(), msg, b)
	assert.Equal(t, b, (<-ch).Payload)

	var nilMirror *Mirror
	nilMirror.Publish(context.Background(), msg, b)
	assert.NoError(t, nilMirror.Close())

	none, err := Open("", "")
	assert.NoError(t, err)
	assert.Nil(t, none)

	_, err = Open("kafka", "")
	assert.EqualError(t, err, "mirror: unknown broker kind kafka")
}
