package databento

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	dbn "github.com/NimbleMarkets/dbn-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mdviewer.com/internal/quotes/feed"
	"mdviewer.com/internal/quotes/model"
	"mdviewer.com/pkg/xerr"
)

type sliceReader struct {
	recs []feed.Record
	// 读完之后阻塞到 done 关闭
	done <-chan struct{}
}

func (r *sliceReader) next() (feed.Record, error) {
	if len(r.recs) == 0 {
		if r.done != nil {
			<-r.done
			return feed.Record{}, errors.New("use of closed network connection")
		}
		return feed.Record{}, io.EOF
	}
	rec := r.recs[0]
	r.recs = r.recs[1:]
	return rec, nil
}

type fakeHist struct {
	recs  []feed.Record
	ids   map[string][]string
	err   error
	block chan struct{}

	got feed.HistoricalParams
}

func (f *fakeHist) getRange(p feed.HistoricalParams) (recordReader, error) {
	if f.block != nil {
		<-f.block
	}
	f.got = p
	if f.err != nil {
		return nil, f.err
	}
	return &sliceReader{recs: f.recs}, nil
}

func (f *fakeHist) resolve(feed.HistoricalParams, time.Time) (map[string][]string, error) {
	return f.ids, nil
}

type fakeLive struct {
	recs    []feed.Record
	block   bool
	stopped chan struct{}

	sub feed.Subscription
}

func newFakeLive(recs []feed.Record, block bool) *fakeLive {
	return &fakeLive{recs: recs, block: block, stopped: make(chan struct{})}
}

func (f *fakeLive) subscribe(sub feed.Subscription) error {
	f.sub = sub
	return nil
}

func (f *fakeLive) start() (recordReader, error) {
	r := &sliceReader{recs: f.recs}
	if f.block {
		r.done = f.stopped
	}
	return r, nil
}

func (f *fakeLive) stop() { close(f.stopped) }

func newClient(t *testing.T, h histAPI, dial dialFunc) *Client {
	t.Helper()
	c, err := New(Config{APIKey: "db-test", Timeout: time.Second})
	require.NoError(t, err)
	if h != nil {
		c.hist = h
	}
	if dial != nil {
		c.dial = dial
	}
	return c
}

func TestFromDbnRecords(t *testing.T) {
	hd := dbn.RHeader{TsEvent: 1704205800000000000, InstrumentID: 4916}

	assert.Equal(t,
		feed.Record{Kind: feed.KindTrade, TsEvent: 1704205800000000000, InstrumentID: 4916, Price: 4750250000000, Size: 3},
		fromTrade(&dbn.Mbp0Msg{Header: hd, Price: 4750250000000, Size: 3}))

	bar := fromOhlcv(&dbn.OhlcvMsg{Header: hd, Open: 1, High: 3, Low: 1, Close: 2, Volume: 18446744073709551615})
	assert.Equal(t, feed.KindOhlcv, bar.Kind)
	assert.Equal(t, int64(3), bar.High)
	assert.Equal(t, uint64(18446744073709551615), bar.Volume)

	m := fromMapping(&dbn.SymbolMappingMsg{Header: hd, StypeInSymbol: "ES.FUT", StypeOutSymbol: "ESH4"})
	assert.Equal(t, feed.Record{Kind: feed.KindSymbolMapping, TsEvent: hd.TsEvent, InstrumentID: 4916, Symbol: "ESH4"}, m)

	m = fromMapping(&dbn.SymbolMappingMsg{Header: hd, StypeInSymbol: "ES.FUT"})
	assert.Equal(t, "ES.FUT", m.Symbol)
}

func TestInstrumentMap(t *testing.T) {
	m := instrumentMap(map[string][]string{
		"ES.FUT": {"4916", "bogus"},
		"NQ.FUT": {"1"},
	})
	assert.Equal(t, map[uint32]string{4916: "ES.FUT", 1: "NQ.FUT"}, m)
}

func TestDbnEnums(t *testing.T) {
	s, err := dbnSchema(model.SchemaOhlcv1m)
	require.NoError(t, err)
	assert.Equal(t, dbn.Schema_Ohlcv1M, s)

	st, err := dbnSType("parent")
	require.NoError(t, err)
	assert.Equal(t, dbn.SType_Parent, st)

	_, err = dbnSType("smart")
	assert.Error(t, err)
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(Config{})
	assert.Equal(t, xerr.KindNotConfigured, xerr.KindOf(err))
}

func TestClient_HistoricalThroughAdapter(t *testing.T) {
	h := &fakeHist{
		recs: []feed.Record{
			{Kind: feed.KindTrade, TsEvent: 1704205800000000000, InstrumentID: 4916, Price: 4750250000000, Size: 3},
			{Kind: feed.KindTrade, TsEvent: 1704205801000000000, InstrumentID: 4917, Price: 4751000000000, Size: 1},
		},
		ids: map[string][]string{"ES.FUT": {"4916"}},
	}
	c := newClient(t, h, nil)

	req := model.NewHistoricalRequest()
	req.Symbols = []string{"ES.FUT", "NQ.FUT"}
	req.Schema = "trades"
	req.Start, req.End = "2024-01-02T14:30:00Z", "2024-01-02T15:30:00Z"
	req.Limit = 2

	resp, err := feed.New(c).GetHistorical(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Trades, 2)
	assert.Equal(t, "ES.FUT", resp.Trades[0].Symbol)
	assert.Equal(t, "ID:4917", resp.Trades[1].Symbol)

	assert.Equal(t, feed.DefaultDataset, h.got.Dataset)
	assert.Equal(t, []string{"ES.FUT", "NQ.FUT"}, h.got.Symbols)
	assert.Equal(t, "parent", h.got.StypeIn)
	assert.Equal(t, uint32(2), h.got.Limit)
	assert.Equal(t, time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC), h.got.Start.UTC())
}

func TestClient_HistoricalErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind xerr.Kind
		msg  string
	}{
		{"unauthorized", errors.New("HTTP 401: Authentication failed."), xerr.KindAPI, "HTTP 401: Authentication failed."},
		{"unreachable", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, xerr.KindConnection, "connection refused"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newClient(t, &fakeHist{err: tc.err}, nil)
			_, err := c.OpenHistorical(context.Background(), feed.HistoricalParams{Schema: model.SchemaTrades})
			require.Error(t, err)
			assert.Equal(t, tc.kind, xerr.KindOf(err))
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestClient_HistoricalTimeout(t *testing.T) {
	h := &fakeHist{block: make(chan struct{})}
	defer close(h.block)
	c := newClient(t, h, nil)
	c.cfg.Timeout = 20 * time.Millisecond

	_, err := c.OpenHistorical(context.Background(), feed.HistoricalParams{Schema: model.SchemaTrades})
	assert.Equal(t, xerr.KindConnection, xerr.KindOf(err))
}

func TestClient_LiveThroughAdapter(t *testing.T) {
	live := newFakeLive([]feed.Record{
		{Kind: feed.KindSymbolMapping, TsEvent: 1, InstrumentID: 4916, Symbol: "ESH4"},
		{Kind: feed.KindSystem, TsEvent: 2, Message: "Heartbeat"},
		{Kind: feed.KindTrade, TsEvent: 3, InstrumentID: 4916, Price: 4750000000000, Size: 2},
	}, false)
	var dataset string
	c := newClient(t, nil, func(key, ds string) (liveConn, error) {
		assert.Equal(t, "db-test", key)
		dataset = ds
		return live, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := feed.New(c).SubscribeLive(ctx, []string{"ES.FUT"}, "trades")
	require.NoError(t, err)
	defer s.Close()

	var msgs []model.LiveMessage
	for m := range s.Messages() {
		msgs = append(msgs, m)
	}
	require.Len(t, msgs, 2)
	assert.Equal(t, model.TypeConnected, msgs[0].Type)
	assert.Equal(t, model.TradeMessage(model.TradeRecord{TsEventUnixNs: 3, Symbol: "ESH4", PriceI64: 4750000000000, SizeU32: 2}), msgs[1])

	assert.Equal(t, feed.DefaultDataset, dataset)
	assert.Equal(t, feed.Subscription{Symbols: []string{"ES.FUT"}, Schema: model.SchemaTrades, StypeIn: "parent"}, live.sub)
	select {
	case <-live.stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("live connection not stopped after stream end")
	}
}

func TestClient_LiveCancelStopsConnection(t *testing.T) {
	live := newFakeLive([]feed.Record{{Kind: feed.KindTrade, TsEvent: 1, InstrumentID: 1, Price: 1, Size: 1}}, true)
	c := newClient(t, nil, func(string, string) (liveConn, error) { return live, nil })

	ctx, cancel := context.WithCancel(context.Background())
	s, err := feed.New(c).SubscribeLive(ctx, []string{"ES.FUT"}, "trades")
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, model.TypeConnected, (<-s.Messages()).Type)
	assert.Equal(t, model.TypeTrade, (<-s.Messages()).Type)
	cancel()

	select {
	case <-live.stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("live connection still open after cancel")
	}
	for m := range s.Messages() {
		assert.NotEqual(t, model.TypeError, m.Type)
	}
}

func TestClient_LiveAuthRejected(t *testing.T) {
	c := newClient(t, nil, func(string, string) (liveConn, error) {
		return nil, xerr.APIError("authentication failed: invalid key")
	})
	_, err := c.OpenLive(context.Background(), feed.DefaultDataset)
	require.Error(t, err)
	assert.Equal(t, xerr.KindAPI, xerr.KindOf(err))
	assert.Contains(t, err.Error(), "invalid key")
}
