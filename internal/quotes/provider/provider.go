package provider

import (
	"context"
	"time"

	"mdviewer.com/internal/quotes/model"
	"mdviewer.com/pkg/xerr"
)

// Provider 行情数据源：合成数据 / 外部 feed 都实现这个接口
type Provider interface {
	// GetHistorical schema 与时间非法时分别返回 InvalidSchema / InvalidTimeFormat
	GetHistorical(ctx context.Context, req model.HistoricalRequest) (model.HistoricalResponse, error)
	// SubscribeLive schema 非法时同步返回错误；否则返回一条以 connected 开头的消息流。
	// ctx 结束或调用方 Close 后流结束。
	SubscribeLive(ctx context.Context, symbols []string, schema string) (*LiveStream, error)
	Name() string
}

// Query 校验后的历史查询
type Query struct {
	Symbols []string
	Schema  model.Schema
	StypeIn string
	Start   time.Time
	End     time.Time
	Limit   uint32
}

// Empty 时间窗为空或 limit=0，不需要访问数据源
func (q Query) Empty() bool {
	return q.Limit == 0 || !q.End.After(q.Start)
}

func (q Query) StartNs() uint64 { return uint64(q.Start.UnixNano()) }

// Resolve 校验顺序：schema -> start -> end
func Resolve(req model.HistoricalRequest) (Query, error) {
	schema, err := model.ParseSchema(req.Schema)
	if err != nil {
		return Query{}, err
	}
	start, err := parseTime("start_rfc3339", req.Start)
	if err != nil {
		return Query{}, err
	}
	end, err := parseTime("end_rfc3339", req.End)
	if err != nil {
		return Query{}, err
	}
	stype := req.StypeIn
	if stype == "" {
		stype = model.DefaultStypeIn
	}
	return Query{
		Symbols: append([]string(nil), req.Symbols...),
		Schema:  schema,
		StypeIn: stype,
		Start:   start,
		End:     end,
		Limit:   req.Limit,
	}, nil
}

var (
	minTime = time.Unix(0, 0)
	maxTime = time.Unix(0, 1<<63-1)
)

// parseTime 纳秒时间戳是 u64，1970 之前或超出 int64 纳秒范围的时间不接受
func parseTime(field, s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, xerr.InvalidTimeFormat("%s: %v", field, err)
	}
	if ts.Before(minTime) || ts.After(maxTime) {
		return time.Time{}, xerr.InvalidTimeFormat("%s: %s is outside the supported range", field, s)
	}
	return ts.UTC(), nil
}
