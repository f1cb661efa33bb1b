package placement

import (
	"fmt"
	"strings"

	"radish/internal/common"
	"radish/internal/offer"
)

// 规则类型标签，同时作为序列化的 type 字段
const (
	RegionRuleType    = "RegionRule"
	ZoneRuleType      = "ZoneRule"
	HostnameRuleType  = "HostnameRule"
	RackRuleType      = "RackRule"
	AttributeRuleType = "AttributeRule"
	MaxPerRuleType    = "MaxPerRule"
	AndRuleType       = "AndRule"
	OrRuleType        = "OrRule"
	NotRuleType       = "NotRule"
)

// Decision 单次规则评估的结果
type Decision struct {
	// Accepted 是否接受该 Offer
	Accepted bool `json:"accepted"`
	// Offer 接受时返回的（可能被缩减的）Offer，拒绝时为 nil
	Offer *offer.Offer `json:"offer,omitempty"`
	// Reason 决策原因，便于排查
	Reason string `json:"reason,omitempty"`
}

// Accept 构建接受决策
func Accept(o *offer.Offer, reason string) Decision {
	return Decision{Accepted: true, Offer: o, Reason: reason}
}

// Reject 构建拒绝决策
func Reject(reason string) Decision {
	return Decision{Accepted: false, Reason: reason}
}

// PlacementRule 放置规则树节点，所有实现都是不可变值，
// 可以被多个并发评估安全共享
type PlacementRule interface {
	// Evaluate 对单个 Offer 做出接受或拒绝的决策
	Evaluate(o *offer.Offer, ctx *Context) Decision
	// Type 返回序列化类型标签
	Type() string
	// Equals 按值比较两个规则树
	Equals(other PlacementRule) bool
	String() string
}

// fieldRule 位置与属性叶子规则的共同实现：
// 提取维度值，缺失即拒绝，否则交给 Matcher 判断
type fieldRule struct {
	ruleType  string
	extractor Extractor
	matcher   Matcher
}

func (r fieldRule) evaluate(o *offer.Offer) Decision {
	value, ok := r.extractor.Extract(o)
	if !ok {
		return Reject(fmt.Sprintf("%s: offer %s has no %s",
			r.ruleType, o.ID, r.extractor.Dimension()))
	}
	if !r.matcher.Matches(value) {
		return Reject(fmt.Sprintf("%s: %s %q does not match %s",
			r.ruleType, r.extractor.Dimension(), value, r.matcher))
	}
	// 叶子规则不缩减资源，原样返回
	return Accept(o, fmt.Sprintf("%s: %s %q matches %s",
		r.ruleType, r.extractor.Dimension(), value, r.matcher))
}

// RegionRule 按区域匹配
type RegionRule struct {
	Matcher Matcher
}

// NewRegionRule 创建区域规则
func NewRegionRule(m Matcher) *RegionRule {
	return &RegionRule{Matcher: m}
}

func (r *RegionRule) Evaluate(o *offer.Offer, ctx *Context) Decision {
	return fieldRule{RegionRuleType, RegionExtractor{}, r.Matcher}.evaluate(o)
}

func (r *RegionRule) Type() string { return RegionRuleType }

func (r *RegionRule) Equals(other PlacementRule) bool {
	o, ok := other.(*RegionRule)
	return ok && r.Matcher.Equals(o.Matcher)
}

func (r *RegionRule) String() string {
	return fmt.Sprintf("region(%s)", r.Matcher)
}

// ZoneRule 按可用区匹配
type ZoneRule struct {
	Matcher Matcher
}

// NewZoneRule 创建可用区规则
func NewZoneRule(m Matcher) *ZoneRule {
	return &ZoneRule{Matcher: m}
}

func (r *ZoneRule) Evaluate(o *offer.Offer, ctx *Context) Decision {
	return fieldRule{ZoneRuleType, ZoneExtractor{}, r.Matcher}.evaluate(o)
}

func (r *ZoneRule) Type() string { return ZoneRuleType }

func (r *ZoneRule) Equals(other PlacementRule) bool {
	o, ok := other.(*ZoneRule)
	return ok && r.Matcher.Equals(o.Matcher)
}

func (r *ZoneRule) String() string {
	return fmt.Sprintf("zone(%s)", r.Matcher)
}

// HostnameRule 按主机名匹配
type HostnameRule struct {
	Matcher Matcher
}

// NewHostnameRule 创建主机名规则
func NewHostnameRule(m Matcher) *HostnameRule {
	return &HostnameRule{Matcher: m}
}

func (r *HostnameRule) Evaluate(o *offer.Offer, ctx *Context) Decision {
	return fieldRule{HostnameRuleType, HostnameExtractor{}, r.Matcher}.evaluate(o)
}

func (r *HostnameRule) Type() string { return HostnameRuleType }

func (r *HostnameRule) Equals(other PlacementRule) bool {
	o, ok := other.(*HostnameRule)
	return ok && r.Matcher.Equals(o.Matcher)
}

func (r *HostnameRule) String() string {
	return fmt.Sprintf("hostname(%s)", r.Matcher)
}

// RackRule 按机架匹配
type RackRule struct {
	Matcher Matcher
}

// NewRackRule 创建机架规则
func NewRackRule(m Matcher) *RackRule {
	return &RackRule{Matcher: m}
}

func (r *RackRule) Evaluate(o *offer.Offer, ctx *Context) Decision {
	return fieldRule{RackRuleType, RackExtractor{}, r.Matcher}.evaluate(o)
}

func (r *RackRule) Type() string { return RackRuleType }

func (r *RackRule) Equals(other PlacementRule) bool {
	o, ok := other.(*RackRule)
	return ok && r.Matcher.Equals(o.Matcher)
}

func (r *RackRule) String() string {
	return fmt.Sprintf("rack(%s)", r.Matcher)
}

// AttributeRule 按自由属性键匹配
type AttributeRule struct {
	Key     string
	Matcher Matcher
}

// NewAttributeRule 创建属性规则，键为空时立即返回错误
func NewAttributeRule(key string, m Matcher) (*AttributeRule, error) {
	if key == "" {
		return nil, common.NewBuildError(AttributeRuleType,
			"attribute key must not be empty", common.ErrMissingField)
	}
	return &AttributeRule{Key: key, Matcher: m}, nil
}

// MustAttributeRule 创建属性规则，参数非法时 panic，仅用于测试和静态规则
func MustAttributeRule(key string, m Matcher) *AttributeRule {
	r, err := NewAttributeRule(key, m)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *AttributeRule) Evaluate(o *offer.Offer, ctx *Context) Decision {
	return fieldRule{AttributeRuleType, AttributeExtractor{Key: r.Key}, r.Matcher}.evaluate(o)
}

func (r *AttributeRule) Type() string { return AttributeRuleType }

func (r *AttributeRule) Equals(other PlacementRule) bool {
	o, ok := other.(*AttributeRule)
	return ok && r.Key == o.Key && r.Matcher.Equals(o.Matcher)
}

func (r *AttributeRule) String() string {
	return fmt.Sprintf("attribute(%s,%s)", r.Key, r.Matcher)
}

// MaxPerRule 限制同名负载在某个维度取值内的实例数上限
type MaxPerRule struct {
	Scope string
	Limit uint32

	extractor Extractor
}

// NewMaxPerRule 创建数量上限规则，scope 非法时立即返回错误
func NewMaxPerRule(scope string, limit uint32) (*MaxPerRule, error) {
	extractor, err := ExtractorForScope(scope)
	if err != nil {
		return nil, err
	}
	return &MaxPerRule{Scope: scope, Limit: limit, extractor: extractor}, nil
}

func (r *MaxPerRule) Evaluate(o *offer.Offer, ctx *Context) Decision {
	value, ok := r.extractor.Extract(o)
	if !ok {
		return Reject(fmt.Sprintf("%s: offer %s has no %s",
			MaxPerRuleType, o.ID, r.Scope))
	}
	count := ctx.Count(r.extractor.Dimension(), value)
	if count >= r.Limit {
		return Reject(fmt.Sprintf("%s: %d instances already placed in %s %q (limit %d)",
			MaxPerRuleType, count, r.Scope, value, r.Limit))
	}
	return Accept(o, fmt.Sprintf("%s: %d/%d instances in %s %q",
		MaxPerRuleType, count, r.Limit, r.Scope, value))
}

func (r *MaxPerRule) Type() string { return MaxPerRuleType }

func (r *MaxPerRule) Equals(other PlacementRule) bool {
	o, ok := other.(*MaxPerRule)
	return ok && r.Scope == o.Scope && r.Limit == o.Limit
}

func (r *MaxPerRule) String() string {
	return fmt.Sprintf("maxPer(%s,%d)", r.Scope, r.Limit)
}

// AndRule 按声明顺序求与，首个拒绝即短路，
// 前序子规则缩减后的 Offer 会传递给后续子规则
type AndRule struct {
	Rules []PlacementRule
}

// NewAndRule 创建与组合规则
func NewAndRule(rules ...PlacementRule) *AndRule {
	return &AndRule{Rules: rules}
}

func (r *AndRule) Evaluate(o *offer.Offer, ctx *Context) Decision {
	current := o
	for _, child := range r.Rules {
		decision := child.Evaluate(current, ctx)
		if !decision.Accepted {
			return decision
		}
		current = decision.Offer
	}
	return Accept(current, fmt.Sprintf("%s: all %d rules accepted", AndRuleType, len(r.Rules)))
}

func (r *AndRule) Type() string { return AndRuleType }

func (r *AndRule) Equals(other PlacementRule) bool {
	o, ok := other.(*AndRule)
	if !ok || len(r.Rules) != len(o.Rules) {
		return false
	}
	for i, child := range r.Rules {
		if !child.Equals(o.Rules[i]) {
			return false
		}
	}
	return true
}

func (r *AndRule) String() string {
	return combinatorString("and", r.Rules)
}

// OrRule 按声明顺序求或，返回首个接受的子规则的决策
type OrRule struct {
	Rules []PlacementRule
}

// NewOrRule 创建或组合规则
func NewOrRule(rules ...PlacementRule) *OrRule {
	return &OrRule{Rules: rules}
}

func (r *OrRule) Evaluate(o *offer.Offer, ctx *Context) Decision {
	for _, child := range r.Rules {
		decision := child.Evaluate(o, ctx)
		if decision.Accepted {
			return decision
		}
	}
	return Reject(fmt.Sprintf("%s: all %d rules rejected", OrRuleType, len(r.Rules)))
}

func (r *OrRule) Type() string { return OrRuleType }

func (r *OrRule) Equals(other PlacementRule) bool {
	o, ok := other.(*OrRule)
	if !ok || len(r.Rules) != len(o.Rules) {
		return false
	}
	for i, child := range r.Rules {
		if !child.Equals(o.Rules[i]) {
			return false
		}
	}
	return true
}

func (r *OrRule) String() string {
	return combinatorString("or", r.Rules)
}

// NotRule 取反，子规则拒绝时接受，接受时返回原始未缩减的 Offer
type NotRule struct {
	Rule PlacementRule
}

// NewNotRule 创建取反规则
func NewNotRule(rule PlacementRule) *NotRule {
	return &NotRule{Rule: rule}
}

func (r *NotRule) Evaluate(o *offer.Offer, ctx *Context) Decision {
	decision := r.Rule.Evaluate(o, ctx)
	if decision.Accepted {
		return Reject(fmt.Sprintf("%s: inner rule accepted: %s", NotRuleType, decision.Reason))
	}
	return Accept(o, fmt.Sprintf("%s: inner rule rejected: %s", NotRuleType, decision.Reason))
}

func (r *NotRule) Type() string { return NotRuleType }

func (r *NotRule) Equals(other PlacementRule) bool {
	o, ok := other.(*NotRule)
	return ok && r.Rule.Equals(o.Rule)
}

func (r *NotRule) String() string {
	return fmt.Sprintf("not(%s)", r.Rule)
}

func combinatorString(name string, rules []PlacementRule) string {
	parts := make([]string, 0, len(rules))
	for _, child := range rules {
		parts = append(parts, child.String())
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ","))
}
