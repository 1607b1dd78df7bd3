package databento

import (
	"context"
	"time"

	"golang.org/x/time/rate"
	"mdviewer.com/internal/quotes/feed"
	"mdviewer.com/pkg/ratelimit"
	"mdviewer.com/pkg/xerr"
)

const Name = "databento"

// Config 上游连接参数；网关地址由 dbn-go 按 dataset 推导
type Config struct {
	APIKey  string
	Timeout time.Duration
	// RatePerSec 每个 endpoint 的出站 QPS，<=0 不限速
	RatePerSec float64
	Burst      int
}

// Client 实现 feed.Client，历史走 dbn-go hist，实时走 dbn-go live
type Client struct {
	cfg     Config
	hist    histAPI
	dial    dialFunc
	limiter *ratelimit.Store
}

// New API key 为空返回 NotConfigured
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, xerr.NotConfigured("databento api key is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		hist:    dbnHist{key: cfg.APIKey},
		dial:    dialDbnLive,
		limiter: ratelimit.NewStore(rate.Limit(cfg.RatePerSec), cfg.Burst),
	}, nil
}

func (c *Client) Name() string { return Name }

// call dbn-go 的调用不带 ctx，放到 goroutine 里等，ctx 先结束就直接返回；
// 迟到的成功结果交给 late 释放
func call[T any](ctx context.Context, timeout time.Duration, fn func() (T, error), late func(T)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		if late != nil {
			go func() {
				if r := <-done; r.err == nil {
					late(r.v)
				}
			}()
		}
		var zero T
		return zero, xerr.Wrap(ctx.Err(), xerr.KindConnection, "databento request")
	}
}

var _ feed.Client = (*Client)(nil)
