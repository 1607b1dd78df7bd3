package model

import (
	"fmt"

	"github.com/segmentio/encoding/json"
)

// MessageType live 帧的 "type" 字段
type MessageType string

const (
	TypeConnected MessageType = "connected"
	TypeTrade     MessageType = "trade"
	TypeOhlcv     MessageType = "ohlcv"
	TypeError     MessageType = "error"
)

// LiveMessage 推给客户端的一帧。只有 Type 对应的字段有意义，用构造函数创建。
type LiveMessage struct {
	Type MessageType

	Trade TradeRecord
	Bar   OhlcvRecord

	// error
	Message string

	// connected：原样回显请求
	Symbols []string
	Schema  string
}

func Connected(symbols []string, schema string) LiveMessage {
	cp := make([]string, len(symbols))
	copy(cp, symbols)
	return LiveMessage{Type: TypeConnected, Symbols: cp, Schema: schema}
}

func TradeMessage(t TradeRecord) LiveMessage { return LiveMessage{Type: TypeTrade, Trade: t} }

func OhlcvMessage(b OhlcvRecord) LiveMessage { return LiveMessage{Type: TypeOhlcv, Bar: b} }

func ErrorMessage(msg string) LiveMessage { return LiveMessage{Type: TypeError, Message: msg} }

// Symbol 数据帧的 symbol，其他类型为空
func (m LiveMessage) Symbol() string {
	switch m.Type {
	case TypeTrade:
		return m.Trade.Symbol
	case TypeOhlcv:
		return m.Bar.Symbol
	default:
		return ""
	}
}

type tradeFrame struct {
	Type MessageType `json:"type"`
	TradeRecord
}

type ohlcvFrame struct {
	Type MessageType `json:"type"`
	OhlcvRecord
}

type errorFrame struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

type connectedFrame struct {
	Type    MessageType `json:"type"`
	Symbols []string    `json:"symbols"`
	Schema  string      `json:"schema"`
}

func (m LiveMessage) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case TypeTrade:
		return json.Marshal(tradeFrame{Type: m.Type, TradeRecord: m.Trade})
	case TypeOhlcv:
		return json.Marshal(ohlcvFrame{Type: m.Type, OhlcvRecord: m.Bar})
	case TypeError:
		return json.Marshal(errorFrame{Type: m.Type, Message: m.Message})
	case TypeConnected:
		return json.Marshal(connectedFrame{Type: m.Type, Symbols: nonNil(m.Symbols), Schema: m.Schema})
	default:
		return nil, fmt.Errorf("live message: unknown type %q", m.Type)
	}
}

func (m *LiveMessage) UnmarshalJSON(b []byte) error {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	out := LiveMessage{Type: head.Type}
	switch head.Type {
	case TypeTrade:
		if err := json.Unmarshal(b, &out.Trade); err != nil {
			return err
		}
	case TypeOhlcv:
		if err := json.Unmarshal(b, &out.Bar); err != nil {
			return err
		}
	case TypeError:
		var f errorFrame
		if err := json.Unmarshal(b, &f); err != nil {
			return err
		}
		out.Message = f.Message
	case TypeConnected:
		var f connectedFrame
		if err := json.Unmarshal(b, &f); err != nil {
			return err
		}
		out.Symbols, out.Schema = nonNil(f.Symbols), f.Schema
	default:
		return fmt.Errorf("live message: unknown type %q", head.Type)
	}
	*m = out
	return nil
}

// Encode 写 ws 帧用
func (m LiveMessage) Encode() ([]byte, error) { return m.MarshalJSON() }
