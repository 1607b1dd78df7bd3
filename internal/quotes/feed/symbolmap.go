package feed

import "strconv"

// PitSymbolMap 时点 instrument_id -> symbol，随 symbol mapping 记录更新。
// 每个流各自持有一份，不做并发保护。
type PitSymbolMap struct {
	m map[uint32]string
}

func NewPitSymbolMap() *PitSymbolMap {
	return &PitSymbolMap{m: make(map[uint32]string, 16)}
}

// Load 批量覆盖
func (p *PitSymbolMap) Load(m map[uint32]string) {
	for id, sym := range m {
		p.m[id] = sym
	}
}

func (p *PitSymbolMap) Set(id uint32, symbol string) { p.m[id] = symbol }

func (p *PitSymbolMap) Get(id uint32) (string, bool) {
	s, ok := p.m[id]
	return s, ok
}

func (p *PitSymbolMap) Len() int { return len(p.m) }

// OnRecord 只处理 symbol mapping 记录，其他忽略
func (p *PitSymbolMap) OnRecord(r Record) {
	if r.Kind == KindSymbolMapping && r.Symbol != "" {
		p.m[r.InstrumentID] = r.Symbol
	}
}

// Resolve 解析不到时返回占位 "ID:<n>"
func (p *PitSymbolMap) Resolve(id uint32) string {
	if s, ok := p.m[id]; ok {
		return s
	}
	return Placeholder(id)
}

func Placeholder(id uint32) string {
	return "ID:" + strconv.FormatUint(uint64(id), 10)
}
