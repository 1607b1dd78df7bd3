package model

import (
	"fmt"

	"github.com/segmentio/encoding/json"
)

const (
	DefaultStypeIn = "parent"
	DefaultLimit   = uint32(1000)
)

// HistoricalRequest POST /api/historical 的 body；时间保持原始字符串，由 provider 解析
type HistoricalRequest struct {
	Symbols []string `json:"symbols"`
	Schema  string   `json:"schema"`
	StypeIn string   `json:"stype_in"`
	Start   string   `json:"start_rfc3339"`
	End     string   `json:"end_rfc3339"`
	Limit   uint32   `json:"limit"`
}

// NewHistoricalRequest 带默认值
func NewHistoricalRequest() HistoricalRequest {
	return HistoricalRequest{StypeIn: DefaultStypeIn, Limit: DefaultLimit}
}

// UnmarshalJSON 缺省字段取默认值，显式给出的值（包括 limit=0）原样保留
func (r *HistoricalRequest) UnmarshalJSON(b []byte) error {
	type plain HistoricalRequest
	v := plain(NewHistoricalRequest())
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = HistoricalRequest(v)
	return nil
}

// HistoricalResponse 按 schema 区分的结果；JSON: {"schema": "...", "data": [...]}
type HistoricalResponse struct {
	Schema Schema
	Trades []TradeRecord
	Bars   []OhlcvRecord
}

func NewTradesResponse(trades []TradeRecord) HistoricalResponse {
	if trades == nil {
		trades = []TradeRecord{}
	}
	return HistoricalResponse{Schema: SchemaTrades, Trades: trades}
}

func NewOhlcvResponse(schema Schema, bars []OhlcvRecord) HistoricalResponse {
	if bars == nil {
		bars = []OhlcvRecord{}
	}
	return HistoricalResponse{Schema: schema, Bars: bars}
}

// EmptyResponse 对应 schema 的空结果
func EmptyResponse(schema Schema) HistoricalResponse {
	if schema == SchemaTrades {
		return NewTradesResponse(nil)
	}
	return NewOhlcvResponse(schema, nil)
}

func (r HistoricalResponse) Len() int {
	if r.Schema == SchemaTrades {
		return len(r.Trades)
	}
	return len(r.Bars)
}

type historicalWire struct {
	Schema Schema          `json:"schema"`
	Data   json.RawMessage `json:"data"`
}

func (r HistoricalResponse) MarshalJSON() ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case r.Schema == SchemaTrades:
		data, err = json.Marshal(nonNil(r.Trades))
	case r.Schema.IsOhlcv():
		data, err = json.Marshal(nonNil(r.Bars))
	default:
		return nil, fmt.Errorf("historical response: invalid schema %d", uint8(r.Schema))
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(historicalWire{Schema: r.Schema, Data: data})
}

func (r *HistoricalResponse) UnmarshalJSON(b []byte) error {
	var w historicalWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := EmptyResponse(w.Schema)
	if len(w.Data) > 0 && string(w.Data) != "null" {
		var err error
		if w.Schema == SchemaTrades {
			err = json.Unmarshal(w.Data, &out.Trades)
		} else {
			err = json.Unmarshal(w.Data, &out.Bars)
		}
		if err != nil {
			return fmt.Errorf("historical response data: %w", err)
		}
	}
	*r = out
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
