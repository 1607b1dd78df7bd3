package ws

import (
	"net/url"
	"strings"
)

const (
	DefaultSymbol = "ES.FUT"
	DefaultSchema = "trades"
)

// ClientMsg 客户端上行的控制消息。目前只解析不处理，预留给重新订阅。
type ClientMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols,omitempty"`
	Schema  string   `json:"schema,omitempty"`
}

// ParseQuery ?symbols=ES.FUT,NQ.FUT&schema=trades
// symbols 逗号分隔、去空白、丢弃空项，最终为空时用 DefaultSymbol
func ParseQuery(q url.Values) (symbols []string, schema string) {
	for _, s := range strings.Split(q.Get("symbols"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		symbols = []string{DefaultSymbol}
	}
	schema = strings.TrimSpace(q.Get("schema"))
	if schema == "" {
		schema = DefaultSchema
	}
	return symbols, schema
}
