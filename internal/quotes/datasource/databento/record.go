package databento

import (
	"errors"
	"fmt"
	"io"

	dbn "github.com/NimbleMarkets/dbn-go"
	"mdviewer.com/internal/quotes/feed"
)

// recordReader 顺序读取记录，结束返回 io.EOF
type recordReader interface {
	next() (feed.Record, error)
}

// scannerReader 包装 dbn.DbnScanner
type scannerReader struct {
	sc *dbn.DbnScanner
}

func (r scannerReader) next() (feed.Record, error) {
	if !r.sc.Next() {
		if err := r.sc.Error(); err != nil && !errors.Is(err, io.EOF) {
			return feed.Record{}, err
		}
		return feed.Record{}, io.EOF
	}
	return decodeLast(r.sc)
}

// decodeLast 按 rtype 解码 scanner 当前这条记录；不认识的 rtype 返回 KindUnknown
func decodeLast(sc *dbn.DbnScanner) (feed.Record, error) {
	hd, err := sc.GetLastHeader()
	if err != nil {
		return feed.Record{}, fmt.Errorf("read header: %w", err)
	}
	switch hd.RType {
	case dbn.RType_Mbp0:
		m, err := dbn.DbnScannerDecode[dbn.Mbp0Msg](sc)
		if err != nil {
			return feed.Record{}, fmt.Errorf("decode trade: %w", err)
		}
		return fromTrade(m), nil
	case dbn.RType_Ohlcv1S, dbn.RType_Ohlcv1M, dbn.RType_Ohlcv1H, dbn.RType_Ohlcv1D:
		m, err := dbn.DbnScannerDecode[dbn.OhlcvMsg](sc)
		if err != nil {
			return feed.Record{}, fmt.Errorf("decode ohlcv: %w", err)
		}
		return fromOhlcv(m), nil
	case dbn.RType_SymbolMapping:
		m, err := sc.DecodeSymbolMappingMsg()
		if err != nil {
			return feed.Record{}, fmt.Errorf("decode symbol mapping: %w", err)
		}
		return fromMapping(m), nil
	case dbn.RType_System:
		m, err := dbn.DbnScannerDecode[dbn.SystemMsg](sc)
		if err != nil {
			return feed.Record{}, fmt.Errorf("decode system: %w", err)
		}
		return feed.Record{Kind: feed.KindSystem, TsEvent: m.Header.TsEvent, Message: dbn.TrimNullBytes(m.Message[:])}, nil
	case dbn.RType_Error:
		m, err := dbn.DbnScannerDecode[dbn.ErrorMsg](sc)
		if err != nil {
			return feed.Record{}, fmt.Errorf("decode error: %w", err)
		}
		return feed.Record{Kind: feed.KindError, TsEvent: m.Header.TsEvent, Message: dbn.TrimNullBytes(m.Error[:])}, nil
	}
	return feed.Record{Kind: feed.KindUnknown, TsEvent: hd.TsEvent, InstrumentID: hd.InstrumentID}, nil
}

func fromTrade(m *dbn.Mbp0Msg) feed.Record {
	return feed.Record{
		Kind:         feed.KindTrade,
		TsEvent:      m.Header.TsEvent,
		InstrumentID: m.Header.InstrumentID,
		Price:        m.Price,
		Size:         m.Size,
	}
}

func fromOhlcv(m *dbn.OhlcvMsg) feed.Record {
	return feed.Record{
		Kind:         feed.KindOhlcv,
		TsEvent:      m.Header.TsEvent,
		InstrumentID: m.Header.InstrumentID,
		Open:         m.Open,
		High:         m.High,
		Low:          m.Low,
		Close:        m.Close,
		Volume:       m.Volume,
	}
}

// fromMapping 优先用 stype_out（具体合约），没有再用请求里的 symbol
func fromMapping(m *dbn.SymbolMappingMsg) feed.Record {
	sym := m.StypeOutSymbol
	if sym == "" {
		sym = m.StypeInSymbol
	}
	return feed.Record{
		Kind:         feed.KindSymbolMapping,
		TsEvent:      m.Header.TsEvent,
		InstrumentID: m.Header.InstrumentID,
		Symbol:       sym,
	}
}
