package databento

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	dbn "github.com/NimbleMarkets/dbn-go"
	dbn_hist "github.com/NimbleMarkets/dbn-go/hist"
	"mdviewer.com/internal/quotes/feed"
	"mdviewer.com/internal/quotes/model"
	"mdviewer.com/pkg/xerr"
)

// histAPI 历史接口：timeseries.get_range 和 symbology.resolve
type histAPI interface {
	getRange(p feed.HistoricalParams) (recordReader, error)
	// resolve 请求 symbol -> 覆盖 date 当天的 instrument_id 列表
	resolve(p feed.HistoricalParams, date time.Time) (map[string][]string, error)
}

type dbnHist struct {
	key string
}

func (h dbnHist) getRange(p feed.HistoricalParams) (recordReader, error) {
	schema, err := dbnSchema(p.Schema)
	if err != nil {
		return nil, err
	}
	stype, err := dbnSType(p.StypeIn)
	if err != nil {
		return nil, err
	}
	data, err := dbn_hist.GetRange(h.key, dbn_hist.SubmitJobParams{
		Dataset:   p.Dataset,
		Symbols:   strings.Join(p.Symbols, ","),
		Schema:    schema,
		DateRange: dbn_hist.DateRange{Start: p.Start, End: p.End},
		Encoding:  dbn.Encoding_Dbn,
		StypeIn:   stype,
		StypeOut:  dbn.SType_InstrumentId,
		Limit:     uint64(p.Limit),
	})
	if err != nil {
		return nil, err
	}
	return scannerReader{sc: dbn.NewDbnScanner(bytes.NewReader(data))}, nil
}

func (h dbnHist) resolve(p feed.HistoricalParams, date time.Time) (map[string][]string, error) {
	stype, err := dbnSType(p.StypeIn)
	if err != nil {
		return nil, err
	}
	day := date.UTC().Truncate(24 * time.Hour)
	res, err := dbn_hist.SymbologyResolve(h.key, dbn_hist.ResolveParams{
		Dataset:   p.Dataset,
		Symbols:   p.Symbols,
		StypeIn:   stype,
		StypeOut:  dbn.SType_InstrumentId,
		DateRange: dbn_hist.DateRange{Start: day, End: day.AddDate(0, 0, 1)},
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(res.Mappings))
	for sym, intervals := range res.Mappings {
		for _, iv := range intervals {
			out[sym] = append(out[sym], iv.Symbol)
		}
	}
	return out, nil
}

// OpenHistorical 一次 get_range 拉完整段数据，Next 逐条解码
func (c *Client) OpenHistorical(ctx context.Context, p feed.HistoricalParams) (feed.HistoricalSession, error) {
	if err := c.limiter.Wait(ctx, "timeseries"); err != nil {
		return nil, xerr.Wrap(err, xerr.KindConnection, "timeseries limiter")
	}
	r, err := call(ctx, c.cfg.Timeout, func() (recordReader, error) { return c.hist.getRange(p) }, nil)
	if err != nil {
		return nil, classify("timeseries.get_range", err)
	}
	return &histSession{c: c, p: p, r: r}, nil
}

type histSession struct {
	c *Client
	p feed.HistoricalParams
	r recordReader
}

func (s *histSession) Next(ctx context.Context) (feed.Record, error) {
	if err := ctx.Err(); err != nil {
		return feed.Record{}, err
	}
	return s.r.next()
}

func (s *histSession) Close() error { return nil }

// SymbolMap date 当天的 instrument_id -> 请求 symbol
func (s *histSession) SymbolMap(ctx context.Context, date time.Time) (map[uint32]string, error) {
	if err := s.c.limiter.Wait(ctx, "symbology"); err != nil {
		return nil, err
	}
	res, err := call(ctx, s.c.cfg.Timeout, func() (map[string][]string, error) { return s.c.hist.resolve(s.p, date) }, nil)
	if err != nil {
		return nil, classify("symbology.resolve", err)
	}
	return instrumentMap(res), nil
}

// instrumentMap 非数字的 id 跳过
func instrumentMap(res map[string][]string) map[uint32]string {
	m := make(map[uint32]string, len(res))
	for sym, ids := range res {
		for _, s := range ids {
			id, err := strconv.ParseUint(s, 10, 32)
			if err != nil {
				continue
			}
			m[uint32(id)] = sym
		}
	}
	return m
}

// classify 网络层错误算 ConnectionError，其余都是上游返回的 ApiError
func classify(op string, err error) error {
	if _, ok := xerr.As(err); ok {
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return xerr.Wrap(err, xerr.KindConnection, op)
	}
	return xerr.APIError("%s: %v", op, err)
}

func dbnSchema(s model.Schema) (dbn.Schema, error) {
	switch s {
	case model.SchemaTrades:
		return dbn.Schema_Trades, nil
	case model.SchemaOhlcv1s:
		return dbn.Schema_Ohlcv1S, nil
	case model.SchemaOhlcv1m:
		return dbn.Schema_Ohlcv1M, nil
	}
	return 0, xerr.InvalidSchema("%s", s)
}

func dbnSType(s string) (dbn.SType, error) {
	switch s {
	case "parent":
		return dbn.SType_Parent, nil
	case "raw_symbol":
		return dbn.SType_RawSymbol, nil
	case "continuous":
		return dbn.SType_Continuous, nil
	case "instrument_id":
		return dbn.SType_InstrumentId, nil
	}
	return 0, fmt.Errorf("unsupported stype_in %q", s)
}
