package synthetic

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"mdviewer.com/internal/quotes/model"
	"mdviewer.com/internal/quotes/provider"
	"mdviewer.com/pkg/logger"
	"mdviewer.com/pkg/metrics"
	"mdviewer.com/pkg/xerr"
)

const (
	Name = "synthetic"

	// DefaultBasePrice 5000.00
	DefaultBasePrice = 5000 * model.PriceScale

	maxTrades = 1000

	tradeStep = model.PriceScale / 2 // ±0.50
	liveStep  = model.PriceScale / 4 // ±0.25
	floorGap  = 50 * model.PriceScale

	barRange   = 2 * model.PriceScale // high/low 偏离 open 最多 2.00
	closeRange = model.PriceScale     // close 偏离 open 最多 1.00

	minTradeSize, maxTradeSize = 1, 50
	minLiveSize, maxLiveSize   = 1, 25
	minVolume, maxVolume       = 100, 10_000
)

// Generator 随机游走的合成行情，不依赖任何外部服务
type Generator struct {
	basePrice int64
	tickMin   time.Duration
	tickMax   time.Duration
	buffer    int
	now       func() time.Time

	seed  uint64
	calls atomic.Uint64 // 有 seed 时每次调用派生不同的流
}

type Option func(*Generator)

func WithBasePrice(p int64) Option { return func(g *Generator) { g.basePrice = p } }

// WithTickInterval live 推送间隔的随机范围
func WithTickInterval(lo, hi time.Duration) Option {
	return func(g *Generator) { g.tickMin, g.tickMax = lo, hi }
}

// WithSeed 固定随机种子，便于复现
func WithSeed(seed uint64) Option { return func(g *Generator) { g.seed = seed } }

func WithClock(now func() time.Time) Option { return func(g *Generator) { g.now = now } }

func WithStreamBuffer(n int) Option { return func(g *Generator) { g.buffer = n } }

func New(opts ...Option) *Generator {
	g := &Generator{
		basePrice: DefaultBasePrice,
		tickMin:   100 * time.Millisecond,
		tickMax:   500 * time.Millisecond,
		buffer:    provider.DefaultStreamBuffer,
		now:       time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	if g.tickMax < g.tickMin {
		g.tickMax = g.tickMin
	}
	return g
}

func (g *Generator) Name() string { return Name }

// rng 每次调用一个独立的源，不在 goroutine 之间共享
func (g *Generator) rng() *rand.Rand {
	if g.seed != 0 {
		return rand.New(rand.NewPCG(g.seed, g.calls.Add(1)))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

func (g *Generator) floor() int64 { return g.basePrice - floorGap }

func (g *Generator) GetHistorical(ctx context.Context, req model.HistoricalRequest) (model.HistoricalResponse, error) {
	start := time.Now()
	q, err := provider.Resolve(req)
	if err != nil {
		metrics.ObserveHistorical(Name, req.Schema, resultLabel(err), 0, time.Since(start))
		return model.HistoricalResponse{}, err
	}

	var resp model.HistoricalResponse
	switch {
	case q.Empty() || len(q.Symbols) == 0:
		resp = model.EmptyResponse(q.Schema)
	case q.Schema == model.SchemaTrades:
		resp = model.NewTradesResponse(g.trades(g.rng(), q))
	default:
		resp = model.NewOhlcvResponse(q.Schema, g.bars(g.rng(), q))
	}

	metrics.ObserveHistorical(Name, q.Schema.String(), "ok", resp.Len(), time.Since(start))
	logger.Debug(ctx, "synthetic historical",
		zap.String("schema", q.Schema.String()),
		zap.Strings("symbols", q.Symbols),
		zap.Int("records", resp.Len()),
	)
	return resp, nil
}

// trades n = min(limit, 1000)，时间戳在 [start, end] 上均匀分布
func (g *Generator) trades(r *rand.Rand, q provider.Query) []model.TradeRecord {
	n := int(min(q.Limit, maxTrades))
	out := make([]model.TradeRecord, 0, n)

	startNs := q.StartNs()
	span := uint64(q.End.Sub(q.Start))
	price := g.basePrice
	for i := 0; i < n; i++ {
		price = max(price+signed(r, tradeStep), g.floor())
		out = append(out, model.TradeRecord{
			TsEventUnixNs: startNs + spread(span, uint64(i), uint64(n)),
			Symbol:        q.Symbols[i%len(q.Symbols)],
			PriceI64:      price,
			SizeU32:       uint32(between(r, minTradeSize, maxTradeSize)),
		})
	}
	return out
}

// bars 每个时间槽每个 symbol 一根；同一 symbol 的 open 等于上一根的 close
func (g *Generator) bars(r *rand.Rand, q provider.Query) []model.OhlcvRecord {
	step := q.Schema.BarDuration()
	slots := min(uint64(q.Limit), uint64(q.End.Sub(q.Start)/step))
	out := make([]model.OhlcvRecord, 0, slots*uint64(len(q.Symbols)))

	last := make(map[string]int64, len(q.Symbols))
	for i := uint64(0); i < slots; i++ {
		ts := q.StartNs() + i*uint64(step)
		for _, sym := range q.Symbols {
			open, ok := last[sym]
			if !ok {
				open = g.basePrice
			}
			high := open + r.Int64N(barRange+1)
			low := open - r.Int64N(barRange+1)
			closePx := min(max(open+signed(r, closeRange), low), high)
			last[sym] = closePx

			out = append(out, model.OhlcvRecord{
				TsEventUnixNs: ts,
				Symbol:        sym,
				OpenI64:       open,
				HighI64:       high,
				LowI64:        low,
				CloseI64:      closePx,
				VolumeU64:     uint64(between(r, minVolume, maxVolume)),
			})
		}
	}
	return out
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if se, ok := xerr.As(err); ok {
		return se.Kind.String()
	}
	return "error"
}

// signed 均匀分布在 [-bound, bound]
func signed(r *rand.Rand, bound int64) int64 {
	return r.Int64N(2*bound+1) - bound
}

// between 均匀分布在 [lo, hi]
func between(r *rand.Rand, lo, hi int64) int64 {
	return lo + r.Int64N(hi-lo+1)
}

// spread 返回 floor(i*span/(n-1))，n=1 时为 0；拆成商和余数避免溢出
func spread(span, i, n uint64) uint64 {
	if n <= 1 {
		return 0
	}
	d := n - 1
	return i*(span/d) + i*(span%d)/d
}
