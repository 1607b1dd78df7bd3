package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceScale 价格定点倍率：1 单位 = 1e-9
const PriceScale = int64(1_000_000_000)

const priceExp = -9

// TradeRecord 单笔成交
type TradeRecord struct {
	TsEventUnixNs uint64 `json:"ts_event_unix_ns"`
	Symbol        string `json:"symbol"`
	PriceI64      int64  `json:"price_i64"`
	SizeU32       uint32 `json:"size_u32"`
}

// OhlcvRecord 一根 K 线，时间戳是 bar 开始时间
type OhlcvRecord struct {
	TsEventUnixNs uint64 `json:"ts_event_unix_ns"`
	Symbol        string `json:"symbol"`
	OpenI64       int64  `json:"open_i64"`
	HighI64       int64  `json:"high_i64"`
	LowI64        int64  `json:"low_i64"`
	CloseI64      int64  `json:"close_i64"`
	VolumeU64     uint64 `json:"volume_u64"`
}

// Valid low <= open,close <= high
func (b OhlcvRecord) Valid() bool {
	return b.LowI64 <= b.OpenI64 && b.OpenI64 <= b.HighI64 &&
		b.LowI64 <= b.CloseI64 && b.CloseI64 <= b.HighI64
}

func (b OhlcvRecord) String() string {
	return fmt.Sprintf("%s@%d O=%s H=%s L=%s C=%s V=%d",
		b.Symbol, b.TsEventUnixNs,
		FormatPrice(b.OpenI64), FormatPrice(b.HighI64), FormatPrice(b.LowI64), FormatPrice(b.CloseI64),
		b.VolumeU64)
}

func (t TradeRecord) String() string {
	return fmt.Sprintf("%s@%d P=%s S=%d", t.Symbol, t.TsEventUnixNs, FormatPrice(t.PriceI64), t.SizeU32)
}

// ParsePrice "5000.25" -> 5000250000000；超过 9 位小数截断
func ParsePrice(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	scaled := d.Shift(-priceExp).Truncate(0)
	if !scaled.IsInteger() || scaled.Abs().GreaterThan(decimal.NewFromInt(1<<62)) {
		return 0, fmt.Errorf("parse price %q: out of range", s)
	}
	return scaled.IntPart(), nil
}

// FormatPrice 5000250000000 -> "5000.25"
func FormatPrice(v int64) string {
	return decimal.New(v, priceExp).String()
}
