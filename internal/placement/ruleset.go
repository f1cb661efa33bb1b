package placement

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"radish/internal/common"
)

// Ruleset 具名规则集合，规则由外部编写并持久化，
// 启动时整体载入
type Ruleset struct {
	Name        string                   `json:"name" yaml:"name"`
	Description string                   `json:"description,omitempty" yaml:"description,omitempty"`
	Rules       map[string]PlacementRule `json:"-" yaml:"-"`
}

// Rule 按名称查询规则
func (rs *Ruleset) Rule(name string) (PlacementRule, bool) {
	rule, ok := rs.Rules[name]
	return rule, ok
}

// RuleNames 返回按名称排序的规则名列表
func (rs *Ruleset) RuleNames() []string {
	names := make([]string, 0, len(rs.Rules))
	for name := range rs.Rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// rawRuleset 规则集合的序列化形式，规则保持原始 JSON，
// 由 Decode 逐条重建
type rawRuleset struct {
	Name        string                     `json:"name" yaml:"name"`
	Description string                     `json:"description,omitempty" yaml:"description,omitempty"`
	Rules       map[string]json.RawMessage `json:"rules" yaml:"rules"`
}

// DecodeRuleset 从 JSON 重建规则集合，逐条校验并聚合所有错误
func DecodeRuleset(data []byte) (*Ruleset, error) {
	var raw rawRuleset
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, common.NewDecodeError("$", "Ruleset", "malformed ruleset", err)
	}
	return buildRuleset(&raw)
}

// EncodeRuleset 将规则集合序列化为 JSON
func EncodeRuleset(rs *Ruleset) ([]byte, error) {
	raw := rawRuleset{
		Name:        rs.Name,
		Description: rs.Description,
		Rules:       make(map[string]json.RawMessage, len(rs.Rules)),
	}
	for name, rule := range rs.Rules {
		data, err := Encode(rule)
		if err != nil {
			return nil, fmt.Errorf("encode rule %q: %w", name, err)
		}
		raw.Rules[name] = data
	}
	return json.Marshal(raw)
}

// LoadRulesetFile 从文件载入规则集合，按扩展名识别 YAML 或 JSON
func LoadRulesetFile(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		// YAML 先转成通用结构，再经 JSON 走统一的规则解码路径
		var doc map[string]interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, common.NewDecodeError("$", "Ruleset", "malformed yaml", err)
		}
		jsonData, err := json.Marshal(doc)
		if err != nil {
			return nil, common.NewDecodeError("$", "Ruleset", "yaml conversion failed", err)
		}
		return DecodeRuleset(jsonData)
	default:
		return DecodeRuleset(data)
	}
}

func buildRuleset(raw *rawRuleset) (*Ruleset, error) {
	rs := &Ruleset{
		Name:        raw.Name,
		Description: raw.Description,
		Rules:       make(map[string]PlacementRule, len(raw.Rules)),
	}

	var errs error
	names := make([]string, 0, len(raw.Rules))
	for name := range raw.Rules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rule, err := Decode(raw.Rules[name])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rule %q: %w", name, err))
			continue
		}
		rs.Rules[name] = rule
	}
	if errs != nil {
		return nil, errs
	}
	return rs, nil
}
