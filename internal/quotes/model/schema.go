package model

import (
	"time"

	"mdviewer.com/pkg/xerr"
)

// Schema 数据形态，只有这三种
type Schema uint8

const (
	SchemaTrades Schema = iota + 1
	SchemaOhlcv1s
	SchemaOhlcv1m
)

const (
	schemaTradesText  = "trades"
	schemaOhlcv1sText = "ohlcv-1s"
	schemaOhlcv1mText = "ohlcv-1m"
)

// Schemas 按固定顺序列出全部 schema
var Schemas = []Schema{SchemaTrades, SchemaOhlcv1s, SchemaOhlcv1m}

// ParseSchema 只接受规范字符串（区分大小写）
func ParseSchema(s string) (Schema, error) {
	switch s {
	case schemaTradesText:
		return SchemaTrades, nil
	case schemaOhlcv1sText:
		return SchemaOhlcv1s, nil
	case schemaOhlcv1mText:
		return SchemaOhlcv1m, nil
	default:
		return 0, xerr.InvalidSchema("%s. Expected: trades, ohlcv-1s, or ohlcv-1m", s)
	}
}

func (s Schema) String() string {
	switch s {
	case SchemaTrades:
		return schemaTradesText
	case SchemaOhlcv1s:
		return schemaOhlcv1sText
	case SchemaOhlcv1m:
		return schemaOhlcv1mText
	default:
		return "unknown"
	}
}

func (s Schema) Valid() bool { return s >= SchemaTrades && s <= SchemaOhlcv1m }

func (s Schema) IsOhlcv() bool { return s == SchemaOhlcv1s || s == SchemaOhlcv1m }

// BarDuration trades 返回 0
func (s Schema) BarDuration() time.Duration {
	switch s {
	case SchemaOhlcv1s:
		return time.Second
	case SchemaOhlcv1m:
		return time.Minute
	default:
		return 0
	}
}

func (s Schema) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, xerr.InvalidSchema("%d is not a schema", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Schema) UnmarshalText(b []byte) error {
	v, err := ParseSchema(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
