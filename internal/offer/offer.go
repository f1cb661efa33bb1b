package offer

import (
	"fmt"
	"sort"
	"strings"
)

// QuantityType 资源数量类型
type QuantityType string

const (
	QuantityScalar QuantityType = "SCALAR"
	QuantityRange  QuantityType = "RANGE"
	QuantitySet    QuantityType = "SET"
)

// Range 闭区间，例如端口区间 [31000, 32000]
type Range struct {
	Begin uint64 `json:"begin"`
	End   uint64 `json:"end"`
}

// Quantity 资源数量，标量、区间列表或字符串集合三者之一
type Quantity struct {
	Type   QuantityType `json:"type"`
	Scalar float64      `json:"scalar,omitempty"`
	Ranges []Range      `json:"ranges,omitempty"`
	Set    []string     `json:"set,omitempty"`
}

// NewScalar 创建标量数量
func NewScalar(value float64) Quantity {
	return Quantity{Type: QuantityScalar, Scalar: value}
}

// NewRanges 创建区间数量
func NewRanges(ranges ...Range) Quantity {
	return Quantity{Type: QuantityRange, Ranges: ranges}
}

// NewSet 创建集合数量
func NewSet(items ...string) Quantity {
	return Quantity{Type: QuantitySet, Set: items}
}

// Equals 判断两个数量是否相等
func (q Quantity) Equals(other Quantity) bool {
	if q.Type != other.Type {
		return false
	}
	switch q.Type {
	case QuantityScalar:
		return q.Scalar == other.Scalar
	case QuantityRange:
		if len(q.Ranges) != len(other.Ranges) {
			return false
		}
		for i, r := range q.Ranges {
			if r != other.Ranges[i] {
				return false
			}
		}
		return true
	case QuantitySet:
		if len(q.Set) != len(other.Set) {
			return false
		}
		for i, s := range q.Set {
			if s != other.Set[i] {
				return false
			}
		}
		return true
	}
	return false
}

func (q Quantity) String() string {
	switch q.Type {
	case QuantityScalar:
		return fmt.Sprintf("%g", q.Scalar)
	case QuantityRange:
		parts := make([]string, 0, len(q.Ranges))
		for _, r := range q.Ranges {
			parts = append(parts, fmt.Sprintf("[%d-%d]", r.Begin, r.End))
		}
		return strings.Join(parts, ",")
	case QuantitySet:
		return "{" + strings.Join(q.Set, ",") + "}"
	}
	return "<unknown>"
}

// Offer 单个节点在一个调度周期内发布的资源快照，创建后不可修改
type Offer struct {
	ID         string              `json:"id"`
	AgentID    string              `json:"agent_id"`
	Hostname   string              `json:"hostname"`
	Region     string              `json:"region,omitempty"`
	Zone       string              `json:"zone,omitempty"`
	Rack       string              `json:"rack,omitempty"`
	Resources  map[string]Quantity `json:"resources,omitempty"`
	Attributes map[string]string   `json:"attributes,omitempty"`
}

// Attribute 查询属性值，第二个返回值表示属性是否存在
func (o *Offer) Attribute(key string) (string, bool) {
	value, ok := o.Attributes[key]
	return value, ok
}

// ResourceNames 返回按名称排序的资源名列表
func (o *Offer) ResourceNames() []string {
	names := make([]string, 0, len(o.Resources))
	for name := range o.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reduce 返回仅保留指定资源的新 Offer，原 Offer 不变
func (o *Offer) Reduce(names ...string) *Offer {
	reduced := &Offer{
		ID:         o.ID,
		AgentID:    o.AgentID,
		Hostname:   o.Hostname,
		Region:     o.Region,
		Zone:       o.Zone,
		Rack:       o.Rack,
		Resources:  make(map[string]Quantity, len(names)),
		Attributes: o.Attributes,
	}
	for _, name := range names {
		if q, ok := o.Resources[name]; ok {
			reduced.Resources[name] = q
		}
	}
	return reduced
}

// Equals 判断两个 Offer 是否相等
func (o *Offer) Equals(other *Offer) bool {
	if o == nil || other == nil {
		return o == other
	}
	if o.ID != other.ID || o.AgentID != other.AgentID ||
		o.Hostname != other.Hostname || o.Region != other.Region ||
		o.Zone != other.Zone || o.Rack != other.Rack {
		return false
	}
	if len(o.Resources) != len(other.Resources) {
		return false
	}
	for name, q := range o.Resources {
		oq, ok := other.Resources[name]
		if !ok || !q.Equals(oq) {
			return false
		}
	}
	if len(o.Attributes) != len(other.Attributes) {
		return false
	}
	for key, value := range o.Attributes {
		if other.Attributes[key] != value {
			return false
		}
	}
	return true
}

func (o *Offer) String() string {
	return fmt.Sprintf("offer %s on %s (%d resources)", o.ID, o.Hostname, len(o.Resources))
}
