package kline

import (
	"fmt"
	"slices"
	"time"

	"mdviewer.com/internal/quotes/model"
)

// Bar 聚合中的 K 线，覆盖 [StartNs, EndNs)，价格是 1e9 定点数
type Bar struct {
	Symbol   string
	Interval time.Duration
	StartNs  int64
	EndNs    int64

	Open  int64
	High  int64
	Low   int64
	Close int64

	Volume uint64
	Count  int64
}

// Record 转成对外的 OHLCV 记录（时间戳取 bar 开始）
func (b Bar) Record() model.OhlcvRecord {
	return model.OhlcvRecord{
		TsEventUnixNs: uint64(b.StartNs),
		Symbol:        b.Symbol,
		OpenI64:       b.Open,
		HighI64:       b.High,
		LowI64:        b.Low,
		CloseI64:      b.Close,
		VolumeU64:     b.Volume,
	}
}

// String 仅用于打印/调试
func (b Bar) String() string {
	return fmt.Sprintf("%s %s [%d,%d) O=%s H=%s L=%s C=%s V=%d n=%d",
		b.Symbol, b.Interval, b.StartNs, b.EndNs,
		model.FormatPrice(b.Open), model.FormatPrice(b.High), model.FormatPrice(b.Low), model.FormatPrice(b.Close),
		b.Volume, b.Count,
	)
}

// TradeAgg 维护每个 symbol 正在构建的 bar。
// 收到 trade 时：
// - 新桶：先 emit 旧 bar（水位线之前的），再创建新 bar
// - 同桶：更新 OHLCV
// - 比水位线还早的桶：丢弃
type TradeAgg struct {
	intervalNs      int64
	offsetNs        int64 // 桶对齐偏移，0 表示 UTC
	reorderWindowNs int64 // 允许乱序窗口，0 表示不允许

	sym  map[string]*symState
	emit func(Bar)

	lateDrops int64
}

type symState struct {
	latestTsNs int64
	bars       map[int64]*Bar // key = bucketStartNs

	lastEmittedStartNs int64
	hasEmitted         bool
}

func NewTradeAgg(interval time.Duration, emit func(Bar)) *TradeAgg {
	return NewTradeAggReorder(interval, 0, 0, emit)
}

func NewTradeAggReorder(interval, tzOffset, reorderWindow time.Duration, emit func(Bar)) *TradeAgg {
	return &TradeAgg{
		intervalNs:      int64(interval),
		offsetNs:        int64(tzOffset),
		reorderWindowNs: int64(reorderWindow),
		sym:             make(map[string]*symState, 16),
		emit:            emit,
	}
}

// Interval bar 周期
func (a *TradeAgg) Interval() time.Duration { return time.Duration(a.intervalNs) }

// LateDrops 被丢弃的乱序成交数
func (a *TradeAgg) LateDrops() int64 { return a.lateDrops }

// OfferTrade 喂入一笔成交
func (a *TradeAgg) OfferTrade(t model.TradeRecord) {
	ts := int64(t.TsEventUnixNs)
	st := a.sym[t.Symbol]
	if st == nil {
		st = &symState{bars: make(map[int64]*Bar, 4)}
		a.sym[t.Symbol] = st
	}
	if ts > st.latestTsNs {
		st.latestTsNs = ts
	}

	bs := bucketStart(ts, a.intervalNs, a.offsetNs)
	// 水位线：当前桶之前的都可以关闭；有乱序窗口时再往前退
	watermark := bucketStart(st.latestTsNs-a.reorderWindowNs, a.intervalNs, a.offsetNs)

	if bs < watermark || (st.hasEmitted && bs <= st.lastEmittedStartNs) {
		a.lateDrops++
		a.emitReady(st, watermark)
		return
	}

	b := st.bars[bs]
	if b == nil {
		b = &Bar{
			Symbol:   t.Symbol,
			Interval: time.Duration(a.intervalNs),
			StartNs:  bs,
			EndNs:    bs + a.intervalNs,
			Open:     t.PriceI64,
			High:     t.PriceI64,
			Low:      t.PriceI64,
			Close:    t.PriceI64,
			Volume:   uint64(t.SizeU32),
			Count:    1,
		}
		st.bars[bs] = b
	} else {
		b.High = max(b.High, t.PriceI64)
		b.Low = min(b.Low, t.PriceI64)
		b.Close = t.PriceI64
		b.Volume += uint64(t.SizeU32)
		b.Count++
	}

	a.emitReady(st, watermark)
}

// emitReady 把 EndNs <= watermark 的 bar 按时间顺序 emit
func (a *TradeAgg) emitReady(st *symState, watermarkNs int64) {
	ready := make([]int64, 0, 4)
	for start, b := range st.bars {
		if b.EndNs <= watermarkNs {
			ready = append(ready, start)
		}
	}
	a.emitSorted(st, ready)
}

// Flush 输出所有剩余 bar，用于退出/测试
func (a *TradeAgg) Flush() {
	for _, st := range a.sym {
		keys := make([]int64, 0, len(st.bars))
		for start := range st.bars {
			keys = append(keys, start)
		}
		a.emitSorted(st, keys)
	}
}

func (a *TradeAgg) emitSorted(st *symState, starts []int64) {
	if len(starts) == 0 {
		return
	}
	slices.Sort(starts)
	for _, start := range starts {
		b := st.bars[start]
		delete(st.bars, start)
		if b == nil || b.Count == 0 {
			continue
		}
		a.emit(*b)
		st.lastEmittedStartNs = start
		st.hasEmitted = true
	}
}

// bucketStart 计算时间戳所在桶的开始时间
//
// 公式：((ts+off)/interval)*interval - off，负数向下取整
func bucketStart(ts, interval, offset int64) int64 {
	x := ts + offset
	q := x / interval
	if x%interval < 0 {
		q--
	}
	return q*interval - offset
}
