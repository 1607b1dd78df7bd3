package databento

import (
	"context"
	"fmt"
	"sync"

	dbn "github.com/NimbleMarkets/dbn-go"
	dbn_live "github.com/NimbleMarkets/dbn-go/live"
	"mdviewer.com/internal/quotes/feed"
	"mdviewer.com/pkg/xerr"
)

// liveConn 已鉴权的实时连接
type liveConn interface {
	subscribe(sub feed.Subscription) error
	start() (recordReader, error)
	stop()
}

type dialFunc func(key, dataset string) (liveConn, error)

// dialDbnLive 网关地址由 dataset 决定
func dialDbnLive(key, dataset string) (liveConn, error) {
	lc, err := dbn_live.NewLiveClient(dbn_live.LiveConfig{
		ApiKey:   key,
		Dataset:  dataset,
		Encoding: dbn.Encoding_Dbn,
	})
	if err != nil {
		return nil, xerr.Wrap(err, xerr.KindConnection, "dial live gateway")
	}
	if _, err := lc.Authenticate(key); err != nil {
		lc.Stop()
		return nil, xerr.APIError("authentication failed: %v", err)
	}
	return &dbnLive{lc: lc}, nil
}

type dbnLive struct {
	lc *dbn_live.LiveClient
}

func (l *dbnLive) subscribe(sub feed.Subscription) error {
	stype, err := dbnSType(sub.StypeIn)
	if err != nil {
		return err
	}
	return l.lc.Subscribe(dbn_live.SubscriptionRequestMsg{
		Schema:  sub.Schema.String(),
		StypeIn: stype,
		Symbols: sub.Symbols,
	})
}

func (l *dbnLive) start() (recordReader, error) {
	if err := l.lc.Start(); err != nil {
		return nil, err
	}
	sc := l.lc.GetDbnScanner()
	if sc == nil {
		return nil, fmt.Errorf("live client returned no scanner")
	}
	return scannerReader{sc: sc}, nil
}

func (l *dbnLive) stop() { l.lc.Stop() }

// OpenLive 建连并鉴权
func (c *Client) OpenLive(ctx context.Context, dataset string) (feed.LiveSession, error) {
	if err := c.limiter.Wait(ctx, "live"); err != nil {
		return nil, xerr.Wrap(err, xerr.KindConnection, "live limiter")
	}
	conn, err := call(ctx, c.cfg.Timeout, func() (liveConn, error) { return c.dial(c.cfg.APIKey, dataset) }, liveConn.stop)
	if err != nil {
		return nil, classify("live.authenticate", err)
	}
	s := &liveSession{conn: conn}
	// 读记录会阻塞在 socket 上，ctx 结束时直接断开连接
	s.release = context.AfterFunc(ctx, s.shutdown)
	return s, nil
}

type liveSession struct {
	conn    liveConn
	release func() bool
	once    sync.Once

	// 只由 Next 所在的 goroutine 读写
	r recordReader
}

func (s *liveSession) Subscribe(_ context.Context, sub feed.Subscription) error {
	if len(sub.Symbols) == 0 {
		return fmt.Errorf("no symbols to subscribe")
	}
	return s.conn.subscribe(sub)
}

func (s *liveSession) Start(context.Context) error {
	r, err := s.conn.start()
	if err != nil {
		return err
	}
	s.r = r
	return nil
}

// Next 网关正常断开返回 io.EOF
func (s *liveSession) Next(ctx context.Context) (feed.Record, error) {
	if s.r == nil {
		return feed.Record{}, fmt.Errorf("live session not started")
	}
	rec, err := s.r.next()
	if err != nil && ctx.Err() != nil {
		return feed.Record{}, ctx.Err()
	}
	return rec, err
}

func (s *liveSession) Close() error {
	s.release()
	s.shutdown()
	return nil
}

func (s *liveSession) shutdown() {
	s.once.Do(s.conn.stop)
}
