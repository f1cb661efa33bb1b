package placement

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radish/internal/common"
)

func roundTrip(t *testing.T, rule PlacementRule) PlacementRule {
	t.Helper()
	data, err := Encode(rule)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	return decoded
}

func TestRegionRuleRoundTrip(t *testing.T) {
	rule := NewRegionRule(MustExactMatcher("us-west-2"))
	decoded := roundTrip(t, rule)
	assert.True(t, rule.Equals(decoded))
}

func TestAllVariantsRoundTrip(t *testing.T) {
	maxPer, err := NewMaxPerRule(ScopeHostname, 3)
	require.NoError(t, err)
	maxPerAttr, err := NewMaxPerRule("attribute:disk_type", 1)
	require.NoError(t, err)
	regex, err := NewRegexMatcher(`node-\d+`)
	require.NoError(t, err)

	rules := []PlacementRule{
		NewRegionRule(MustExactMatcher("us-west-2")),
		NewZoneRule(MustExactMatcher("us-west-2a", "us-west-2b")),
		NewHostnameRule(regex),
		NewRackRule(NewAnyMatcher()),
		MustAttributeRule("disk_type", MustExactMatcher("ssd")),
		maxPer,
		maxPerAttr,
		NewAndRule(NewRegionRule(NewAnyMatcher()), NewZoneRule(NewAnyMatcher())),
		NewOrRule(NewRegionRule(MustExactMatcher("a")), NewRegionRule(MustExactMatcher("b"))),
		NewNotRule(NewHostnameRule(MustExactMatcher("node-1"))),
		NewAndRule(),
		NewOrRule(),
	}

	for _, rule := range rules {
		t.Run(rule.Type()+"/"+rule.String(), func(t *testing.T) {
			decoded := roundTrip(t, rule)
			assert.True(t, rule.Equals(decoded), "decoded %s != original %s", decoded, rule)
		})
	}
}

func TestNestedTreeRoundTrip(t *testing.T) {
	maxPer, err := NewMaxPerRule(ScopeZone, 2)
	require.NoError(t, err)

	rule := NewAndRule(
		NewOrRule(
			NewRegionRule(MustExactMatcher("us-west-2")),
			NewAndRule(
				NewZoneRule(MustExactMatcher("eu-west-1a")),
				NewNotRule(MustAttributeRule("gpu", MustExactMatcher("true"))),
			),
		),
		maxPer,
		NewNotRule(NewNotRule(NewHostnameRule(NewAnyMatcher()))),
	)

	decoded := roundTrip(t, rule)
	assert.True(t, rule.Equals(decoded))

	// 重复编码是稳定的
	first, err := Encode(rule)
	require.NoError(t, err)
	second, err := Encode(decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestEncodedForm(t *testing.T) {
	rule := NewRegionRule(MustExactMatcher("us-west-2"))
	data, err := Encode(rule)
	require.NoError(t, err)

	// 每个节点带显式 type 判别字段
	assert.JSONEq(t,
		`{"type":"RegionRule","matcher":{"type":"ExactMatcher","values":["us-west-2"]}}`,
		string(data))
}

func TestDecodeUnknownRuleType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"GravityRule"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnknownRuleType)

	var decodeErr *common.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "$", decodeErr.Path)
	assert.Equal(t, "GravityRule", decodeErr.Type)
}

func TestDecodeUnknownMatcherType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"RegionRule","matcher":{"type":"FuzzyMatcher"}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnknownMatcher)
}

func TestDecodeMissingFields(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"no discriminator", `{"matcher":{"type":"AnyMatcher"}}`},
		{"leaf without matcher", `{"type":"ZoneRule"}`},
		{"attribute without key", `{"type":"AttributeRule","matcher":{"type":"AnyMatcher"}}`},
		{"maxper without scope", `{"type":"MaxPerRule","limit":2}`},
		{"maxper without limit", `{"type":"MaxPerRule","scope":"zone"}`},
		{"and without rules", `{"type":"AndRule"}`},
		{"not without rule", `{"type":"NotRule"}`},
		{"exact without values", `{"type":"RegionRule","matcher":{"type":"ExactMatcher"}}`},
		{"regex without pattern", `{"type":"RegionRule","matcher":{"type":"RegexMatcher"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.input))
			require.Error(t, err)
		})
	}
}

func TestDecodeInvalidRegex(t *testing.T) {
	_, err := Decode([]byte(`{"type":"HostnameRule","matcher":{"type":"RegexMatcher","pattern":"node-("}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidPattern)
}

func TestDecodeUnknownScope(t *testing.T) {
	_, err := Decode([]byte(`{"type":"MaxPerRule","scope":"datacenter","limit":2}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnknownScope)
}

func TestDecodeErrorNamesOffendingNode(t *testing.T) {
	// 深层节点损坏时，错误路径指向该节点
	input := `{
		"type": "AndRule",
		"rules": [
			{"type": "RegionRule", "matcher": {"type": "AnyMatcher"}},
			{"type": "OrRule", "rules": [
				{"type": "NoSuchRule"}
			]}
		]
	}`
	_, err := Decode([]byte(input))
	require.Error(t, err)

	var decodeErr *common.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "$.rules[1].rules[0]", decodeErr.Path)
}

func TestDecodeDepthLimit(t *testing.T) {
	// 超过最大嵌套深度的树整体拒绝
	leaf := `{"type":"RegionRule","matcher":{"type":"AnyMatcher"}}`
	nested := leaf
	for i := 0; i < maxRuleDepth+1; i++ {
		nested = fmt.Sprintf(`{"type":"NotRule","rule":%s}`, nested)
	}
	_, err := Decode([]byte(nested))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRuleTreeTooDeep)

	// 深度在限制之内的树正常解码
	shallow := leaf
	for i := 0; i < 10; i++ {
		shallow = fmt.Sprintf(`{"type":"NotRule","rule":%s}`, shallow)
	}
	_, err = Decode([]byte(shallow))
	require.NoError(t, err)
}

func TestMatcherRoundTrip(t *testing.T) {
	regex, err := NewRegexMatcher("us-.*")
	require.NoError(t, err)

	matchers := []Matcher{
		MustExactMatcher("a", "b"),
		regex,
		NewAnyMatcher(),
	}
	for _, m := range matchers {
		data, err := EncodeMatcher(m)
		require.NoError(t, err)
		decoded, err := DecodeMatcher(data)
		require.NoError(t, err)
		assert.True(t, m.Equals(decoded))
	}
}

func TestRulesetRoundTrip(t *testing.T) {
	maxPer, err := NewMaxPerRule(ScopeHostname, 1)
	require.NoError(t, err)

	rs := &Ruleset{
		Name:        "web-service",
		Description: "web 服务放置约束",
		Rules: map[string]PlacementRule{
			"region-pin":    NewRegionRule(MustExactMatcher("us-west-2")),
			"anti-affinity": maxPer,
		},
	}

	data, err := EncodeRuleset(rs)
	require.NoError(t, err)

	decoded, err := DecodeRuleset(data)
	require.NoError(t, err)
	assert.Equal(t, rs.Name, decoded.Name)
	assert.Equal(t, rs.RuleNames(), decoded.RuleNames())
	for name, rule := range rs.Rules {
		decodedRule, ok := decoded.Rule(name)
		require.True(t, ok)
		assert.True(t, rule.Equals(decodedRule))
	}
}

func TestRulesetAggregatesErrors(t *testing.T) {
	input := `{
		"name": "broken",
		"rules": {
			"good": {"type": "RegionRule", "matcher": {"type": "AnyMatcher"}},
			"bad-type": {"type": "NoSuchRule"},
			"bad-regex": {"type": "ZoneRule", "matcher": {"type": "RegexMatcher", "pattern": "("}}
		}
	}`
	_, err := DecodeRuleset([]byte(input))
	require.Error(t, err)
	// 两条坏规则的错误都要上报
	assert.ErrorIs(t, err, common.ErrUnknownRuleType)
	assert.ErrorIs(t, err, common.ErrInvalidPattern)
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	require.Error(t, err)

	var syntaxErr *json.SyntaxError
	assert.ErrorAs(t, err, &syntaxErr)
}
