package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mdviewer.com/internal/quotes/model"
	"mdviewer.com/pkg/xerr"
)

func req(schema, start, end string) model.HistoricalRequest {
	r := model.NewHistoricalRequest()
	r.Symbols = []string{"ES.FUT"}
	r.Schema, r.Start, r.End = schema, start, end
	return r
}

func TestResolve(t *testing.T) {
	q, err := Resolve(req("ohlcv-1m", "2024-01-02T14:30:00Z", "2024-01-02T15:30:00.5+01:00"))
	require.NoError(t, err)
	assert.Equal(t, model.SchemaOhlcv1m, q.Schema)
	assert.Equal(t, "parent", q.StypeIn)
	assert.Equal(t, time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC), q.Start)
	assert.Equal(t, time.Date(2024, 1, 2, 14, 30, 0, 500_000_000, time.UTC), q.End)
	assert.False(t, q.Empty())
}

func TestResolve_ValidationOrder(t *testing.T) {
	_, err := Resolve(req("bogus", "invalid-time", "invalid-time"))
	assert.Equal(t, xerr.KindInvalidSchema, xerr.KindOf(err))

	_, err = Resolve(req("trades", "invalid-time", "2024-01-02T15:30:00Z"))
	require.Equal(t, xerr.KindInvalidTimeFormat, xerr.KindOf(err))
	assert.Contains(t, err.Error(), "start_rfc3339: ")

	_, err = Resolve(req("trades", "2024-01-02T15:30:00Z", "2024-01-02"))
	require.Equal(t, xerr.KindInvalidTimeFormat, xerr.KindOf(err))
	assert.Contains(t, err.Error(), "end_rfc3339: ")

	_, err = Resolve(req("trades", "1969-12-31T23:59:59Z", "2024-01-02T15:30:00Z"))
	assert.Equal(t, xerr.KindInvalidTimeFormat, xerr.KindOf(err))
}

func TestQuery_Empty(t *testing.T) {
	q, err := Resolve(req("trades", "2024-01-02T15:30:00Z", "2024-01-02T15:30:00Z"))
	require.NoError(t, err)
	assert.True(t, q.Empty())

	q, err = Resolve(req("trades", "2024-01-02T15:30:00Z", "2024-01-02T16:30:00Z"))
	require.NoError(t, err)
	q.Limit = 0
	assert.True(t, q.Empty())
}

func TestLiveStream_OrderAndEnd(t *testing.T) {
	s := NewLiveStream(context.Background(), "test", 2, func(ctx context.Context, out *Emitter) {
		out.Send(model.Connected([]string{"A"}, "trades"))
		for i := 0; i < 10; i++ {
			if !out.Send(model.TradeMessage(model.TradeRecord{TsEventUnixNs: uint64(i), Symbol: "A"})) {
				return
			}
		}
	})
	defer s.Close()

	first, ok := s.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, model.TypeConnected, first.Type)

	var got []uint64
	for m := range s.Messages() {
		got = append(got, m.Trade.TsEventUnixNs)
	}
	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	<-s.Done()
}

func TestLiveStream_NothingAfterError(t *testing.T) {
	s := NewLiveStream(context.Background(), "test", 8, func(ctx context.Context, out *Emitter) {
		out.Send(model.Connected(nil, "trades"))
		out.Fail("Stream error: reset")
		assert.False(t, out.Send(model.TradeMessage(model.TradeRecord{})))
		out.Fail("second")
		assert.True(t, out.Failed())
	})
	defer s.Close()

	var types []model.MessageType
	for m := range s.Messages() {
		types = append(types, m.Type)
	}
	assert.Equal(t, []model.MessageType{model.TypeConnected, model.TypeError}, types)
}

func TestLiveStream_CloseStopsProducer(t *testing.T) {
	stopped := make(chan struct{})
	s := NewLiveStream(context.Background(), "test", 1, func(ctx context.Context, out *Emitter) {
		defer close(stopped)
		for out.Send(model.TradeMessage(model.TradeRecord{})) {
		}
	})

	_, ok := s.Next(context.Background())
	require.True(t, ok)
	s.Close()
	s.Close()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("producer still running after Close")
	}
}

func TestLiveStream_ParentContextCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewLiveStream(ctx, "test", 1, func(ctx context.Context, out *Emitter) {
		<-ctx.Done()
	})
	cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("stream did not end with its context")
	}
	_, ok := s.Next(context.Background())
	assert.False(t, ok)
}
