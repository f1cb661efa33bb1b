package placement

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"radish/internal/common"
)

// Matcher 类型标签，同时作为序列化的 type 字段
const (
	ExactMatcherType = "ExactMatcher"
	RegexMatcherType = "RegexMatcher"
	AnyMatcherType   = "AnyMatcher"
)

// Matcher 叶子谓词，对单个字符串值进行匹配
type Matcher interface {
	// Matches 判断候选值是否匹配
	Matches(candidate string) bool
	// Type 返回序列化类型标签
	Type() string
	// Equals 按值比较两个 Matcher
	Equals(other Matcher) bool
	String() string
}

// ExactMatcher 精确集合匹配，区分大小写，不做任何规范化
type ExactMatcher struct {
	Values []string `json:"values"`
}

// NewExactMatcher 创建精确匹配器，值集合为空时返回错误
func NewExactMatcher(values ...string) (*ExactMatcher, error) {
	if len(values) == 0 {
		return nil, common.NewBuildError(ExactMatcherType,
			"value set must not be empty", common.ErrEmptyMatchSet)
	}
	// 排序去重，保证结构相等性与集合语义一致
	sorted := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		sorted = append(sorted, v)
	}
	sort.Strings(sorted)
	return &ExactMatcher{Values: sorted}, nil
}

// MustExactMatcher 创建精确匹配器，参数非法时 panic，仅用于测试和静态规则
func MustExactMatcher(values ...string) *ExactMatcher {
	m, err := NewExactMatcher(values...)
	if err != nil {
		panic(err)
	}
	return m
}

// Matches 判断候选值是否在集合内
func (m *ExactMatcher) Matches(candidate string) bool {
	for _, v := range m.Values {
		if v == candidate {
			return true
		}
	}
	return false
}

// Type 返回类型标签
func (m *ExactMatcher) Type() string {
	return ExactMatcherType
}

// Equals 按值比较
func (m *ExactMatcher) Equals(other Matcher) bool {
	o, ok := other.(*ExactMatcher)
	if !ok || len(m.Values) != len(o.Values) {
		return false
	}
	for i, v := range m.Values {
		if v != o.Values[i] {
			return false
		}
	}
	return true
}

func (m *ExactMatcher) String() string {
	return fmt.Sprintf("exact{%s}", strings.Join(m.Values, ","))
}

// RegexMatcher 正则匹配器，构造时编译一次，使用全匹配语义
type RegexMatcher struct {
	Pattern string `json:"pattern"`

	re *regexp.Regexp
}

// NewRegexMatcher 创建正则匹配器，模式非法时立即返回错误
func NewRegexMatcher(pattern string) (*RegexMatcher, error) {
	// 锚定为全匹配，避免子串意外命中
	re, err := regexp.Compile(`\A(?:` + pattern + `)\z`)
	if err != nil {
		return nil, common.NewBuildError(RegexMatcherType,
			fmt.Sprintf("cannot compile pattern %q", pattern), common.ErrInvalidPattern)
	}
	return &RegexMatcher{Pattern: pattern, re: re}, nil
}

// Matches 判断候选值是否完整匹配模式
func (m *RegexMatcher) Matches(candidate string) bool {
	return m.re.MatchString(candidate)
}

// Type 返回类型标签
func (m *RegexMatcher) Type() string {
	return RegexMatcherType
}

// Equals 按模式字符串比较
func (m *RegexMatcher) Equals(other Matcher) bool {
	o, ok := other.(*RegexMatcher)
	return ok && m.Pattern == o.Pattern
}

func (m *RegexMatcher) String() string {
	return fmt.Sprintf("regex{%s}", m.Pattern)
}

// AnyMatcher 通配匹配器，任何值都匹配，用于只要求字段存在的场景
type AnyMatcher struct{}

// NewAnyMatcher 创建通配匹配器
func NewAnyMatcher() *AnyMatcher {
	return &AnyMatcher{}
}

// Matches 恒为 true
func (m *AnyMatcher) Matches(candidate string) bool {
	return true
}

// Type 返回类型标签
func (m *AnyMatcher) Type() string {
	return AnyMatcherType
}

// Equals 任意两个 AnyMatcher 相等
func (m *AnyMatcher) Equals(other Matcher) bool {
	_, ok := other.(*AnyMatcher)
	return ok
}

func (m *AnyMatcher) String() string {
	return "any"
}
