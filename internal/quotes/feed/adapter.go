package feed

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
	"mdviewer.com/internal/quotes/model"
	"mdviewer.com/internal/quotes/provider"
	"mdviewer.com/pkg/logger"
	"mdviewer.com/pkg/metrics"
	"mdviewer.com/pkg/ratelimit"
	"mdviewer.com/pkg/xerr"
)

// DefaultDataset CME Globex MDP 3.0
const DefaultDataset = "GLBX.MDP3"

// Adapter 把上游 Client 适配成 Provider
type Adapter struct {
	client  Client
	dataset string
	stypeIn string
	buffer  int
	breaker *ratelimit.Manager
}

type Option func(*Adapter)

func WithDataset(ds string) Option { return func(a *Adapter) { a.dataset = ds } }

// WithStypeIn live 订阅使用的 symbol 类型
func WithStypeIn(s string) Option { return func(a *Adapter) { a.stypeIn = s } }

func WithStreamBuffer(n int) Option { return func(a *Adapter) { a.buffer = n } }

func WithBreaker(m *ratelimit.Manager) Option { return func(a *Adapter) { a.breaker = m } }

func New(client Client, opts ...Option) *Adapter {
	a := &Adapter{
		client:  client,
		dataset: DefaultDataset,
		stypeIn: model.DefaultStypeIn,
		buffer:  provider.DefaultStreamBuffer,
	}
	for _, o := range opts {
		o(a)
	}
	if a.breaker == nil {
		a.breaker = ratelimit.NewManager(ratelimit.Rule{}, nil)
	}
	return a
}

func (a *Adapter) Name() string { return a.client.Name() }

func (a *Adapter) GetHistorical(ctx context.Context, req model.HistoricalRequest) (model.HistoricalResponse, error) {
	start := time.Now()
	resp, err := a.historical(ctx, req)
	schema := req.Schema
	result := "ok"
	if err != nil {
		schema = "-"
		result = xerr.KindOf(err).String()
	}
	metrics.ObserveHistorical(a.Name(), schema, result, resp.Len(), time.Since(start))
	return resp, err
}

func (a *Adapter) historical(ctx context.Context, req model.HistoricalRequest) (model.HistoricalResponse, error) {
	q, err := provider.Resolve(req)
	if err != nil {
		return model.HistoricalResponse{}, err
	}
	if q.Empty() || len(q.Symbols) == 0 {
		return model.EmptyResponse(q.Schema), nil
	}

	var sess HistoricalSession
	err = a.breaker.Do(a.Name()+".historical", func() error {
		s, err := a.client.OpenHistorical(ctx, HistoricalParams{
			Dataset: a.dataset,
			Symbols: q.Symbols,
			StypeIn: q.StypeIn,
			Schema:  q.Schema,
			Start:   q.Start,
			End:     q.End,
			Limit:   q.Limit,
		})
		if err != nil {
			return upstream(err, "open historical session")
		}
		sess = s
		return nil
	})
	if err != nil {
		return model.HistoricalResponse{}, err
	}
	defer func() { _ = sess.Close() }()

	symbols := NewPitSymbolMap()
	if m, err := sess.SymbolMap(ctx, q.Start); err != nil {
		// 解析失败只影响 symbol 展示，退化为 ID:<n>
		logger.Warn(ctx, "symbol map unavailable, using placeholders",
			zap.String("provider", a.Name()),
			zap.Time("date", q.Start),
			zap.Error(err),
		)
	} else {
		symbols.Load(m)
	}

	limit := int(q.Limit)
	trades := make([]model.TradeRecord, 0, min(limit, 1024))
	var bars []model.OhlcvRecord
	if q.Schema.IsOhlcv() {
		bars, trades = make([]model.OhlcvRecord, 0, min(limit, 1024)), nil
	}

	for len(trades)+len(bars) < limit {
		rec, err := sess.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.HistoricalResponse{}, upstream(err, "decode record")
		}
		switch rec.Kind {
		case KindSymbolMapping:
			symbols.OnRecord(rec)
		case KindTrade:
			if q.Schema == model.SchemaTrades {
				trades = append(trades, toTrade(rec, symbols))
			}
		case KindOhlcv:
			if !q.Schema.IsOhlcv() {
				continue
			}
			if bar, ok := a.validBar(ctx, rec, symbols); ok {
				bars = append(bars, bar)
			}
		case KindError:
			return model.HistoricalResponse{}, xerr.APIError("%s", rec.Message)
		}
	}

	logger.Info(ctx, "historical served",
		zap.String("provider", a.Name()),
		zap.String("schema", q.Schema.String()),
		zap.Strings("symbols", q.Symbols),
		zap.Int("records", len(trades)+len(bars)),
	)
	if q.Schema == model.SchemaTrades {
		return model.NewTradesResponse(trades), nil
	}
	return model.NewOhlcvResponse(q.Schema, bars), nil
}

// SubscribeLive 连接失败等错误以一条 error 消息的形式出现在流里
func (a *Adapter) SubscribeLive(ctx context.Context, symbols []string, schema string) (*provider.LiveStream, error) {
	sc, err := model.ParseSchema(schema)
	if err != nil {
		return nil, err
	}
	syms := append([]string(nil), symbols...)

	return provider.NewLiveStream(ctx, a.Name(), a.buffer, func(ctx context.Context, out *provider.Emitter) {
		if !out.Send(model.Connected(syms, schema)) {
			return
		}
		a.runLive(ctx, out, Subscription{Symbols: syms, Schema: sc, StypeIn: a.stypeIn})
	}), nil
}

func (a *Adapter) runLive(ctx context.Context, out *provider.Emitter, sub Subscription) {
	fields := []zap.Field{
		zap.String("provider", a.Name()),
		zap.Strings("symbols", sub.Symbols),
		zap.String("schema", sub.Schema.String()),
	}
	fail := func(prefix string, err error) {
		if ctx.Err() != nil {
			return
		}
		logger.Error(ctx, "live stream failed", append(fields, zap.String("stage", prefix), zap.Error(err))...)
		out.Fail(prefix + ": " + err.Error())
	}

	var sess LiveSession
	err := a.breaker.Do(a.Name()+".live", func() error {
		s, err := a.client.OpenLive(ctx, a.dataset)
		if err != nil {
			return err
		}
		sess = s
		return nil
	})
	if err != nil {
		fail("Failed to connect", err)
		return
	}
	defer func() { _ = sess.Close() }()

	if err := sess.Subscribe(ctx, sub); err != nil {
		fail("Subscription failed", err)
		return
	}
	if err := sess.Start(ctx); err != nil {
		fail("Failed to start stream", err)
		return
	}
	logger.Info(ctx, "live stream started", fields...)

	symbols := NewPitSymbolMap()
	for {
		rec, err := sess.Next(ctx)
		if errors.Is(err, io.EOF) {
			logger.Info(ctx, "live stream ended by upstream", fields...)
			return
		}
		if err != nil {
			fail("Stream error", err)
			return
		}

		symbols.OnRecord(rec)
		switch rec.Kind {
		case KindTrade:
			if !out.Send(model.TradeMessage(toTrade(rec, symbols))) {
				return
			}
		case KindOhlcv:
			bar, ok := a.validBar(ctx, rec, symbols)
			if !ok {
				continue
			}
			if !out.Send(model.OhlcvMessage(bar)) {
				return
			}
		case KindError:
			fail("Gateway error", errors.New(rec.Message))
			return
		case KindSystem:
			logger.Debug(ctx, "live system message", append(fields, zap.String("msg", rec.Message))...)
		}
	}
}

func toTrade(r Record, symbols *PitSymbolMap) model.TradeRecord {
	return model.TradeRecord{
		TsEventUnixNs: r.TsEvent,
		Symbol:        symbols.Resolve(r.InstrumentID),
		PriceI64:      r.Price,
		SizeU32:       r.Size,
	}
}

func toBar(r Record, symbols *PitSymbolMap) model.OhlcvRecord {
	return model.OhlcvRecord{
		TsEventUnixNs: r.TsEvent,
		Symbol:        symbols.Resolve(r.InstrumentID),
		OpenI64:       r.Open,
		HighI64:       r.High,
		LowI64:        r.Low,
		CloseI64:      r.Close,
		VolumeU64:     r.Volume,
	}
}

// validBar 上游的 UNDEF_PRICE 等会破坏 low <= open,close <= high，这种 bar 丢弃
func (a *Adapter) validBar(ctx context.Context, r Record, symbols *PitSymbolMap) (model.OhlcvRecord, bool) {
	bar := toBar(r, symbols)
	if bar.Valid() {
		return bar, true
	}
	metrics.InvalidBarsTotal.WithLabelValues(a.Name()).Inc()
	logger.Warn(ctx, "dropping invalid ohlcv bar",
		zap.String("provider", a.Name()),
		zap.Stringer("bar", bar),
	)
	return model.OhlcvRecord{}, false
}

// upstream 已经分好类的错误原样返回，其余归为 ApiError
func upstream(err error, msg string) error {
	if _, ok := xerr.As(err); ok {
		return err
	}
	return xerr.Wrap(err, xerr.KindAPI, msg)
}
