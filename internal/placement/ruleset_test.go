package placement

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRulesetFileJSON(t *testing.T) {
	path := writeFile(t, "rules.json", `{
		"name": "web-service",
		"description": "web placement",
		"rules": {
			"region-pin": {"type": "RegionRule", "matcher": {"type": "ExactMatcher", "values": ["us-west-2"]}},
			"spread": {"type": "MaxPerRule", "scope": "hostname", "limit": 1}
		}
	}`)

	rs, err := LoadRulesetFile(path)
	require.NoError(t, err)
	assert.Equal(t, "web-service", rs.Name)
	assert.Equal(t, []string{"region-pin", "spread"}, rs.RuleNames())

	rule, ok := rs.Rule("region-pin")
	require.True(t, ok)
	assert.True(t, rule.Equals(NewRegionRule(MustExactMatcher("us-west-2"))))
}

func TestLoadRulesetFileYAML(t *testing.T) {
	path := writeFile(t, "rules.yaml", `
name: web-service
rules:
  not-gpu:
    type: NotRule
    rule:
      type: AttributeRule
      key: gpu
      matcher:
        type: ExactMatcher
        values: ["true"]
  zone-spread:
    type: MaxPerRule
    scope: zone
    limit: 2
`)

	rs, err := LoadRulesetFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"not-gpu", "zone-spread"}, rs.RuleNames())

	expected, err := NewMaxPerRule(ScopeZone, 2)
	require.NoError(t, err)
	rule, ok := rs.Rule("zone-spread")
	require.True(t, ok)
	assert.True(t, rule.Equals(expected))
}

func TestLoadRulesetFileMissing(t *testing.T) {
	_, err := LoadRulesetFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadRulesetFileBadRule(t *testing.T) {
	path := writeFile(t, "rules.json", `{
		"name": "broken",
		"rules": {
			"bad": {"type": "RegionRule"}
		}
	}`)

	_, err := LoadRulesetFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bad"`)
}
