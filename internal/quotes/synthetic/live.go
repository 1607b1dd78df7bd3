package synthetic

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"mdviewer.com/internal/quotes/kline"
	"mdviewer.com/internal/quotes/model"
	"mdviewer.com/internal/quotes/provider"
	"mdviewer.com/pkg/logger"
)

// SubscribeLive connected 之后无限推送随机游走的成交；ohlcv schema 额外推送聚合出的 bar
func (g *Generator) SubscribeLive(ctx context.Context, symbols []string, schema string) (*provider.LiveStream, error) {
	sc, err := model.ParseSchema(schema)
	if err != nil {
		return nil, err
	}
	syms := append([]string(nil), symbols...)
	r := g.rng()

	return provider.NewLiveStream(ctx, Name, g.buffer, func(ctx context.Context, out *provider.Emitter) {
		if !out.Send(model.Connected(syms, schema)) {
			return
		}
		logger.Debug(ctx, "synthetic live started", zap.Strings("symbols", syms), zap.String("schema", schema))
		g.runLive(ctx, out, r, syms, sc)
	}), nil
}

func (g *Generator) runLive(ctx context.Context, out *provider.Emitter, r *rand.Rand, symbols []string, schema model.Schema) {
	var agg *kline.TradeAgg
	barsOK := true
	if schema.IsOhlcv() {
		agg = kline.NewTradeAgg(schema.BarDuration(), func(b kline.Bar) {
			if barsOK {
				barsOK = out.Send(model.OhlcvMessage(b.Record()))
			}
		})
	}

	timer := time.NewTimer(g.tickDelay(r))
	defer timer.Stop()

	price := g.basePrice
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		timer.Reset(g.tickDelay(r))

		if len(symbols) == 0 {
			continue
		}
		price = max(price+signed(r, liveStep), g.floor())
		t := model.TradeRecord{
			TsEventUnixNs: uint64(g.now().UnixNano()),
			Symbol:        symbols[i%len(symbols)],
			PriceI64:      price,
			SizeU32:       uint32(between(r, minLiveSize, maxLiveSize)),
		}
		if !out.Send(model.TradeMessage(t)) {
			return
		}
		if agg != nil {
			agg.OfferTrade(t)
			if !barsOK {
				return
			}
		}
	}
}

func (g *Generator) tickDelay(r *rand.Rand) time.Duration {
	if g.tickMax <= g.tickMin {
		return g.tickMin
	}
	return g.tickMin + time.Duration(r.Int64N(int64(g.tickMax-g.tickMin)+1))
}
