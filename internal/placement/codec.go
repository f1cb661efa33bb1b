package placement

import (
	"encoding/json"
	"fmt"

	"radish/internal/common"
)

// maxRuleDepth 规则树最大嵌套深度，反序列化时超过即整体失败，
// 保证载入的树是有限的
const maxRuleDepth = 64

// ruleEnvelope 规则节点的序列化信封，type 字段是判别标签，
// 其余字段按变体取用
type ruleEnvelope struct {
	Type    string             `json:"type"`
	Matcher json.RawMessage    `json:"matcher,omitempty"`
	Key     string             `json:"key,omitempty"`
	Scope   string             `json:"scope,omitempty"`
	Limit   *uint32            `json:"limit,omitempty"`
	Rules   *[]json.RawMessage `json:"rules,omitempty"`
	Rule    json.RawMessage    `json:"rule,omitempty"`
}

// matcherEnvelope 匹配器的序列化信封
type matcherEnvelope struct {
	Type    string   `json:"type"`
	Values  []string `json:"values,omitempty"`
	Pattern *string  `json:"pattern,omitempty"`
}

type ruleDecodeFunc func(path string, env *ruleEnvelope, depth int) (PlacementRule, error)

type matcherDecodeFunc func(path string, env *matcherEnvelope) (Matcher, error)

// 判别标签注册表，进程启动时构建完成，此后只读
var (
	ruleRegistry    = make(map[string]ruleDecodeFunc)
	matcherRegistry = make(map[string]matcherDecodeFunc)
)

func registerRule(tag string, fn ruleDecodeFunc) {
	if _, ok := ruleRegistry[tag]; ok {
		panic(fmt.Sprintf("duplicate rule tag %q", tag))
	}
	ruleRegistry[tag] = fn
}

func registerMatcher(tag string, fn matcherDecodeFunc) {
	if _, ok := matcherRegistry[tag]; ok {
		panic(fmt.Sprintf("duplicate matcher tag %q", tag))
	}
	matcherRegistry[tag] = fn
}

func init() {
	registerRule(RegionRuleType, decodeRegionRule)
	registerRule(ZoneRuleType, decodeZoneRule)
	registerRule(HostnameRuleType, decodeHostnameRule)
	registerRule(RackRuleType, decodeRackRule)
	registerRule(AttributeRuleType, decodeAttributeRule)
	registerRule(MaxPerRuleType, decodeMaxPerRule)
	registerRule(AndRuleType, decodeAndRule)
	registerRule(OrRuleType, decodeOrRule)
	registerRule(NotRuleType, decodeNotRule)

	registerMatcher(ExactMatcherType, decodeExactMatcher)
	registerMatcher(RegexMatcherType, decodeRegexMatcher)
	registerMatcher(AnyMatcherType, decodeAnyMatcher)
}

// Encode 将规则树序列化为 JSON
func Encode(rule PlacementRule) ([]byte, error) {
	env, err := encodeRule(rule)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode 从 JSON 重建规则树，任何节点出错都会使整个调用失败
func Decode(data []byte) (PlacementRule, error) {
	return decodeRuleRaw("$", data, 0)
}

// EncodeMatcher 将匹配器序列化为 JSON
func EncodeMatcher(m Matcher) ([]byte, error) {
	env, err := encodeMatcher(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// DecodeMatcher 从 JSON 重建匹配器
func DecodeMatcher(data []byte) (Matcher, error) {
	return decodeMatcherRaw("$", data)
}

func encodeRule(rule PlacementRule) (*ruleEnvelope, error) {
	switch r := rule.(type) {
	case *RegionRule:
		return encodeFieldRule(RegionRuleType, "", r.Matcher)
	case *ZoneRule:
		return encodeFieldRule(ZoneRuleType, "", r.Matcher)
	case *HostnameRule:
		return encodeFieldRule(HostnameRuleType, "", r.Matcher)
	case *RackRule:
		return encodeFieldRule(RackRuleType, "", r.Matcher)
	case *AttributeRule:
		return encodeFieldRule(AttributeRuleType, r.Key, r.Matcher)
	case *MaxPerRule:
		limit := r.Limit
		return &ruleEnvelope{Type: MaxPerRuleType, Scope: r.Scope, Limit: &limit}, nil
	case *AndRule:
		return encodeCombinator(AndRuleType, r.Rules)
	case *OrRule:
		return encodeCombinator(OrRuleType, r.Rules)
	case *NotRule:
		child, err := Encode(r.Rule)
		if err != nil {
			return nil, err
		}
		return &ruleEnvelope{Type: NotRuleType, Rule: child}, nil
	default:
		return nil, fmt.Errorf("encode: %w: %T", common.ErrUnknownRuleType, rule)
	}
}

func encodeFieldRule(tag, key string, m Matcher) (*ruleEnvelope, error) {
	matcher, err := EncodeMatcher(m)
	if err != nil {
		return nil, err
	}
	return &ruleEnvelope{Type: tag, Key: key, Matcher: matcher}, nil
}

func encodeCombinator(tag string, rules []PlacementRule) (*ruleEnvelope, error) {
	children := make([]json.RawMessage, 0, len(rules))
	for _, child := range rules {
		data, err := Encode(child)
		if err != nil {
			return nil, err
		}
		children = append(children, data)
	}
	return &ruleEnvelope{Type: tag, Rules: &children}, nil
}

func encodeMatcher(m Matcher) (*matcherEnvelope, error) {
	switch v := m.(type) {
	case *ExactMatcher:
		return &matcherEnvelope{Type: ExactMatcherType, Values: v.Values}, nil
	case *RegexMatcher:
		pattern := v.Pattern
		return &matcherEnvelope{Type: RegexMatcherType, Pattern: &pattern}, nil
	case *AnyMatcher:
		return &matcherEnvelope{Type: AnyMatcherType}, nil
	default:
		return nil, fmt.Errorf("encode: %w: %T", common.ErrUnknownMatcher, m)
	}
}

func decodeRuleRaw(path string, data []byte, depth int) (PlacementRule, error) {
	if depth > maxRuleDepth {
		return nil, common.NewDecodeError(path, "",
			fmt.Sprintf("nesting exceeds %d levels", maxRuleDepth), common.ErrRuleTreeTooDeep)
	}
	var env ruleEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, common.NewDecodeError(path, "", "malformed rule node", err)
	}
	if env.Type == "" {
		return nil, common.NewDecodeError(path, "", "missing type discriminator", common.ErrMissingField)
	}
	decode, ok := ruleRegistry[env.Type]
	if !ok {
		return nil, common.NewDecodeError(path, env.Type,
			"unknown rule type", common.ErrUnknownRuleType)
	}
	return decode(path, &env, depth)
}

func decodeMatcherRaw(path string, data []byte) (Matcher, error) {
	var env matcherEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, common.NewDecodeError(path, "", "malformed matcher node", err)
	}
	if env.Type == "" {
		return nil, common.NewDecodeError(path, "", "missing type discriminator", common.ErrMissingField)
	}
	decode, ok := matcherRegistry[env.Type]
	if !ok {
		return nil, common.NewDecodeError(path, env.Type,
			"unknown matcher type", common.ErrUnknownMatcher)
	}
	return decode(path, &env)
}

func decodeFieldMatcher(path, tag string, env *ruleEnvelope) (Matcher, error) {
	if len(env.Matcher) == 0 {
		return nil, common.NewDecodeError(path, tag, "missing matcher", common.ErrMissingField)
	}
	return decodeMatcherRaw(path+".matcher", env.Matcher)
}

func decodeRegionRule(path string, env *ruleEnvelope, depth int) (PlacementRule, error) {
	m, err := decodeFieldMatcher(path, RegionRuleType, env)
	if err != nil {
		return nil, err
	}
	return NewRegionRule(m), nil
}

func decodeZoneRule(path string, env *ruleEnvelope, depth int) (PlacementRule, error) {
	m, err := decodeFieldMatcher(path, ZoneRuleType, env)
	if err != nil {
		return nil, err
	}
	return NewZoneRule(m), nil
}

func decodeHostnameRule(path string, env *ruleEnvelope, depth int) (PlacementRule, error) {
	m, err := decodeFieldMatcher(path, HostnameRuleType, env)
	if err != nil {
		return nil, err
	}
	return NewHostnameRule(m), nil
}

func decodeRackRule(path string, env *ruleEnvelope, depth int) (PlacementRule, error) {
	m, err := decodeFieldMatcher(path, RackRuleType, env)
	if err != nil {
		return nil, err
	}
	return NewRackRule(m), nil
}

func decodeAttributeRule(path string, env *ruleEnvelope, depth int) (PlacementRule, error) {
	if env.Key == "" {
		return nil, common.NewDecodeError(path, AttributeRuleType, "missing key", common.ErrMissingField)
	}
	m, err := decodeFieldMatcher(path, AttributeRuleType, env)
	if err != nil {
		return nil, err
	}
	rule, err := NewAttributeRule(env.Key, m)
	if err != nil {
		return nil, common.NewDecodeError(path, AttributeRuleType, err.Error(), err)
	}
	return rule, nil
}

func decodeMaxPerRule(path string, env *ruleEnvelope, depth int) (PlacementRule, error) {
	if env.Scope == "" {
		return nil, common.NewDecodeError(path, MaxPerRuleType, "missing scope", common.ErrMissingField)
	}
	if env.Limit == nil {
		return nil, common.NewDecodeError(path, MaxPerRuleType, "missing limit", common.ErrMissingField)
	}
	rule, err := NewMaxPerRule(env.Scope, *env.Limit)
	if err != nil {
		return nil, common.NewDecodeError(path, MaxPerRuleType, err.Error(), err)
	}
	return rule, nil
}

func decodeChildren(path, tag string, env *ruleEnvelope, depth int) ([]PlacementRule, error) {
	if env.Rules == nil {
		return nil, common.NewDecodeError(path, tag, "missing rules", common.ErrMissingField)
	}
	children := make([]PlacementRule, 0, len(*env.Rules))
	for i, raw := range *env.Rules {
		child, err := decodeRuleRaw(fmt.Sprintf("%s.rules[%d]", path, i), raw, depth+1)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func decodeAndRule(path string, env *ruleEnvelope, depth int) (PlacementRule, error) {
	children, err := decodeChildren(path, AndRuleType, env, depth)
	if err != nil {
		return nil, err
	}
	return NewAndRule(children...), nil
}

func decodeOrRule(path string, env *ruleEnvelope, depth int) (PlacementRule, error) {
	children, err := decodeChildren(path, OrRuleType, env, depth)
	if err != nil {
		return nil, err
	}
	return NewOrRule(children...), nil
}

func decodeNotRule(path string, env *ruleEnvelope, depth int) (PlacementRule, error) {
	if len(env.Rule) == 0 {
		return nil, common.NewDecodeError(path, NotRuleType, "missing rule", common.ErrMissingField)
	}
	child, err := decodeRuleRaw(path+".rule", env.Rule, depth+1)
	if err != nil {
		return nil, err
	}
	return NewNotRule(child), nil
}

func decodeExactMatcher(path string, env *matcherEnvelope) (Matcher, error) {
	if len(env.Values) == 0 {
		return nil, common.NewDecodeError(path, ExactMatcherType, "missing values", common.ErrEmptyMatchSet)
	}
	return NewExactMatcher(env.Values...)
}

func decodeRegexMatcher(path string, env *matcherEnvelope) (Matcher, error) {
	if env.Pattern == nil {
		return nil, common.NewDecodeError(path, RegexMatcherType, "missing pattern", common.ErrMissingField)
	}
	m, err := NewRegexMatcher(*env.Pattern)
	if err != nil {
		return nil, common.NewDecodeError(path, RegexMatcherType, err.Error(), err)
	}
	return m, nil
}

func decodeAnyMatcher(path string, env *matcherEnvelope) (Matcher, error) {
	return NewAnyMatcher(), nil
}
