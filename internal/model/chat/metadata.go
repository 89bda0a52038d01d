package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"guava/internal/pkg/llmjson"
)

// ErrMalformedMetadata 模型返回的元数据文档无法解析或不符合约定
var ErrMalformedMetadata = errors.New("malformed metadata document")

// SaleStatus 销售漏斗阶段
// exploring < interested < negotiating < closed 单向推进，
// lost 是独立的终态，可以从任何阶段进入
type SaleStatus string

const (
	SaleStatusExploring   SaleStatus = "exploring"
	SaleStatusInterested  SaleStatus = "interested"
	SaleStatusNegotiating SaleStatus = "negotiating"
	SaleStatusClosed      SaleStatus = "closed"
	SaleStatusLost        SaleStatus = "lost"
)

// saleStatusRank 漏斗阶段的偏序（lost 不参与排序）
var saleStatusRank = map[SaleStatus]int{
	SaleStatusExploring:   0,
	SaleStatusInterested:  1,
	SaleStatusNegotiating: 2,
	SaleStatusClosed:      3,
}

// IsValid 检查阶段是否在闭集内
func (s SaleStatus) IsValid() bool {
	switch s {
	case SaleStatusExploring, SaleStatusInterested, SaleStatusNegotiating, SaleStatusClosed, SaleStatusLost:
		return true
	}
	return false
}

// String 返回阶段字符串
func (s SaleStatus) String() string {
	return string(s)
}

// advance 返回两个阶段中更靠后的那个
// lost 吸收一切；当前已是 lost 时不会自动离开
func advance(current, proposed SaleStatus) SaleStatus {
	if current == SaleStatusLost || proposed == SaleStatusLost {
		return SaleStatusLost
	}
	if saleStatusRank[proposed] > saleStatusRank[current] {
		return proposed
	}
	return current
}

// Metadata 会话的销售意向摘要
// 作为单个结构化文档内嵌在 conversation 记录里
type Metadata struct {
	Interests        []string   `bson:"interests" json:"interests"`
	OfferedProducts  []string   `bson:"offered_products" json:"offeredProducts"`
	RejectedProducts []string   `bson:"rejected_products" json:"rejectedProducts"`
	SaleStatus       SaleStatus `bson:"sale_status" json:"saleStatus"`
	LastIntent       string     `bson:"last_intent,omitempty" json:"lastIntent,omitempty"`
}

// NewMetadata 创建空的初始元数据（exploring 阶段）
func NewMetadata() *Metadata {
	return &Metadata{
		Interests:        []string{},
		OfferedProducts:  []string{},
		RejectedProducts: []string{},
		SaleStatus:       SaleStatusExploring,
	}
}

// IsInitial 判断是否还没有任何抽取结果
// 初始态决定合成引擎走全量抽取还是增量合并
func (m *Metadata) IsInitial() bool {
	return len(m.Interests) == 0 && len(m.OfferedProducts) == 0 && m.LastIntent == ""
}

// Clone 深拷贝
func (m *Metadata) Clone() *Metadata {
	c := &Metadata{
		Interests:        append([]string{}, m.Interests...),
		OfferedProducts:  append([]string{}, m.OfferedProducts...),
		RejectedProducts: append([]string{}, m.RejectedProducts...),
		SaleStatus:       m.SaleStatus,
		LastIntent:       m.LastIntent,
	}
	return c
}

// JSON 序列化为 JSON 字符串（用于拼接提示词）
func (m *Metadata) JSON() string {
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Merge 把模型提出的新文档合并到当前元数据上，返回合并结果
// 引擎侧强制执行两条不变量，不信任模型输出：
//   - 漏斗阶段只进不退，lost 一旦进入不自动离开
//   - offered 与 rejected 互斥，冲突时以拒绝为准
func (m *Metadata) Merge(proposed *Metadata) *Metadata {
	merged := proposed.Clone()
	merged.SaleStatus = advance(m.SaleStatus, proposed.SaleStatus)

	if merged.LastIntent == "" {
		merged.LastIntent = m.LastIntent
	}

	merged.Interests = normalizeSet(merged.Interests)
	merged.RejectedProducts = normalizeSet(merged.RejectedProducts)
	merged.OfferedProducts = subtractSet(normalizeSet(merged.OfferedProducts), merged.RejectedProducts)

	return merged
}

// metadataDoc 解码用的宽松结构，字段全部可缺省
type metadataDoc struct {
	Interests        []string `json:"interests"`
	OfferedProducts  []string `json:"offeredProducts"`
	RejectedProducts []string `json:"rejectedProducts"`
	SaleStatus       string   `json:"saleStatus"`
	LastIntent       string   `json:"lastIntent"`
}

// ParseMetadata 把模型返回的文本解析成元数据
// 先剥掉 markdown 代码块再按 JSON 解码：
//   - 缺失的数组字段按空集处理
//   - 缺失的 saleStatus 默认 exploring，闭集之外的值视为解析失败
//   - lastIntent 可选
//
// 产品与兴趣字符串统一做 trim+小写归一，保证集合判等稳定
func ParseMetadata(raw string) (*Metadata, error) {
	var doc metadataDoc
	if err := llmjson.Decode(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}

	status := SaleStatus(strings.TrimSpace(strings.ToLower(doc.SaleStatus)))
	if status == "" {
		status = SaleStatusExploring
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown sale status %q", ErrMalformedMetadata, doc.SaleStatus)
	}

	m := &Metadata{
		Interests:        normalizeSet(doc.Interests),
		OfferedProducts:  normalizeSet(doc.OfferedProducts),
		RejectedProducts: normalizeSet(doc.RejectedProducts),
		SaleStatus:       status,
		LastIntent:       strings.TrimSpace(doc.LastIntent),
	}

	// 互斥不变量：同时出现时以拒绝为准
	m.OfferedProducts = subtractSet(m.OfferedProducts, m.RejectedProducts)

	return m, nil
}

// normalizeSet trim+小写+去重，保持出现顺序
func normalizeSet(in []string) []string {
	out := []string{}
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(strings.ToLower(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// subtractSet 返回 a 中不在 b 里的元素
func subtractSet(a, b []string) []string {
	drop := make(map[string]bool, len(b))
	for _, v := range b {
		drop[v] = true
	}
	out := []string{}
	for _, v := range a {
		if !drop[v] {
			out = append(out, v)
		}
	}
	return out
}
