package feed

import (
	"context"
	"time"

	"mdviewer.com/internal/quotes/model"
)

// Kind 解码后的上游记录类型
type Kind uint8

const (
	KindUnknown Kind = iota
	KindTrade
	KindOhlcv
	KindSymbolMapping
	KindSystem
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindTrade:
		return "trade"
	case KindOhlcv:
		return "ohlcv"
	case KindSymbolMapping:
		return "symbol_mapping"
	case KindSystem:
		return "system"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Record 上游的一条记录；只有 Kind 对应的字段有意义
type Record struct {
	Kind         Kind
	TsEvent      uint64
	InstrumentID uint32

	// trade
	Price int64
	Size  uint32

	// ohlcv
	Open, High, Low, Close int64
	Volume                 uint64

	// symbol mapping：InstrumentID -> Symbol
	Symbol string

	// system / error
	Message string
}

// HistoricalParams 一次历史查询
type HistoricalParams struct {
	Dataset string
	Symbols []string
	StypeIn string
	Schema  model.Schema
	Start   time.Time
	End     time.Time
	Limit   uint32
}

// Subscription live 订阅参数
type Subscription struct {
	Symbols []string
	Schema  model.Schema
	StypeIn string
}

// Client 上游 SDK 的抽象，具体实现见 datasource/databento
type Client interface {
	Name() string
	OpenHistorical(ctx context.Context, p HistoricalParams) (HistoricalSession, error)
	// OpenLive 建连并完成鉴权
	OpenLive(ctx context.Context, dataset string) (LiveSession, error)
}

// HistoricalSession 按顺序读取历史记录，结束时 Next 返回 io.EOF
type HistoricalSession interface {
	// SymbolMap 某一天的 instrument_id -> symbol
	SymbolMap(ctx context.Context, date time.Time) (map[uint32]string, error)
	Next(ctx context.Context) (Record, error)
	Close() error
}

// LiveSession 已鉴权的实时会话；正常结束时 Next 返回 io.EOF
type LiveSession interface {
	Subscribe(ctx context.Context, sub Subscription) error
	Start(ctx context.Context) error
	Next(ctx context.Context) (Record, error)
	Close() error
}
