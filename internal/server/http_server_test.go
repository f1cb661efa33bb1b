package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radish/internal/common"
	"radish/internal/engine"
	"radish/internal/events"
	"radish/internal/placement"
	"radish/internal/plan"
)

func testServer(t *testing.T) *HTTPServer {
	t.Helper()

	maxPer, err := placement.NewMaxPerRule(placement.ScopeHostname, 1)
	require.NoError(t, err)
	rulesets := map[string]*placement.Ruleset{
		"web-service": {
			Name: "web-service",
			Rules: map[string]placement.PlacementRule{
				"region-pin":    placement.NewRegionRule(placement.MustExactMatcher("us-west-2")),
				"anti-affinity": maxPer,
			},
		},
	}

	plans := plan.NewManager()
	plans.Add(plan.New("deploy", "serial", []*plan.Phase{
		{Name: "placement", Steps: []*plan.Step{
			{Name: "web-0", Workload: "web"},
			{Name: "web-1", Workload: "web"},
		}},
	}))

	return NewHTTPServer(
		common.ServerConfig{Port: 0},
		engine.New(common.EngineConfig{Parallelism: 2}),
		rulesets,
		plans,
		events.NopPublisher{},
	)
}

func doRequest(t *testing.T, s *HTTPServer, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	// 不真正监听端口，直接驱动路由
	req := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	s.routes().ServeHTTP(recorder, req)
	return recorder
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t)

	resp := doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestRulesetEndpoints(t *testing.T) {
	s := testServer(t)

	resp := doRequest(t, s, http.MethodGet, "/ws/v1/placement/rulesets", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var listing struct {
		Rulesets []struct {
			Name  string   `json:"name"`
			Rules []string `json:"rules"`
		} `json:"rulesets"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &listing))
	require.Len(t, listing.Rulesets, 1)
	assert.Equal(t, "web-service", listing.Rulesets[0].Name)
	assert.Equal(t, []string{"anti-affinity", "region-pin"}, listing.Rulesets[0].Rules)

	resp = doRequest(t, s, http.MethodGet, "/ws/v1/placement/rulesets/web-service", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	// 返回的序列化形式可以直接走解码路径
	decoded, err := placement.DecodeRuleset(resp.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"anti-affinity", "region-pin"}, decoded.RuleNames())

	resp = doRequest(t, s, http.MethodGet, "/ws/v1/placement/rulesets/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestEvaluateWithInlineRule(t *testing.T) {
	s := testServer(t)

	body := map[string]interface{}{
		"workload": "web",
		"rule": map[string]interface{}{
			"type":    "RegionRule",
			"matcher": map[string]interface{}{"type": "ExactMatcher", "values": []string{"us-west-2"}},
		},
		"offers": []map[string]interface{}{
			{"id": "offer-1", "agent_id": "a1", "hostname": "n1", "region": "us-west-2"},
			{"id": "offer-2", "agent_id": "a2", "hostname": "n2", "region": "us-east-1"},
		},
	}
	resp := doRequest(t, s, http.MethodPost, "/ws/v1/placement/evaluate", body)
	require.Equal(t, http.StatusOK, resp.Code)

	var result struct {
		Rule    string `json:"rule"`
		Results []struct {
			Decision struct {
				Accepted bool `json:"accepted"`
			} `json:"decision"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	assert.Equal(t, "inline", result.Rule)
	require.Len(t, result.Results, 2)
	assert.True(t, result.Results[0].Decision.Accepted)
	assert.False(t, result.Results[1].Decision.Accepted)
}

func TestEvaluateWithNamedRule(t *testing.T) {
	s := testServer(t)

	body := map[string]interface{}{
		"workload":  "web",
		"ruleset":   "web-service",
		"rule_name": "anti-affinity",
		"offers": []map[string]interface{}{
			{"id": "offer-1", "agent_id": "a1", "hostname": "n1", "region": "us-west-2"},
		},
		"tasks": []map[string]interface{}{
			{"name": "web-0", "workload": "web", "hostname": "n1"},
		},
	}
	resp := doRequest(t, s, http.MethodPost, "/ws/v1/placement/evaluate", body)
	require.Equal(t, http.StatusOK, resp.Code)

	var result struct {
		Results []struct {
			Decision struct {
				Accepted bool `json:"accepted"`
			} `json:"decision"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Len(t, result.Results, 1)
	// n1 上已有同名负载实例，反亲和规则拒绝
	assert.False(t, result.Results[0].Decision.Accepted)
}

func TestEvaluateBadRule(t *testing.T) {
	s := testServer(t)

	body := map[string]interface{}{
		"workload": "web",
		"rule":     map[string]interface{}{"type": "NoSuchRule"},
		"offers":   []map[string]interface{}{},
	}
	resp := doRequest(t, s, http.MethodPost, "/ws/v1/placement/evaluate", body)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	delete(body, "rule")
	body["ruleset"] = "missing"
	resp = doRequest(t, s, http.MethodPost, "/ws/v1/placement/evaluate", body)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestPlanEndpoints(t *testing.T) {
	s := testServer(t)

	resp := doRequest(t, s, http.MethodGet, "/ws/v1/plans", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "deploy")

	resp = doRequest(t, s, http.MethodGet, "/ws/v1/plans/deploy", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var status plan.PlanStatus
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &status))
	assert.Equal(t, plan.StatusPending, status.Status)
	require.Len(t, status.Phases, 1)
	assert.Len(t, status.Phases[0].Steps, 2)

	resp = doRequest(t, s, http.MethodGet, "/ws/v1/plans/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestPlanStart(t *testing.T) {
	s := testServer(t)

	resp := doRequest(t, s, http.MethodPost, "/ws/v1/plans/deploy/start", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doRequest(t, s, http.MethodGet, "/ws/v1/plans/deploy", nil)
	var status plan.PlanStatus
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &status))
	assert.Equal(t, plan.StatusInProgress, status.Status)

	// 启动只作用于整个计划
	resp = doRequest(t, s, http.MethodPost, "/ws/v1/plans/deploy/start?phase=placement", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, s, http.MethodPost, "/ws/v1/plans/missing/start", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestPlanActions(t *testing.T) {
	s := testServer(t)

	resp := doRequest(t, s, http.MethodPost, "/ws/v1/plans/deploy/interrupt", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doRequest(t, s, http.MethodGet, "/ws/v1/plans/deploy", nil)
	var status plan.PlanStatus
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &status))
	assert.Equal(t, plan.StatusWaiting, status.Status)

	resp = doRequest(t, s, http.MethodPost, "/ws/v1/plans/deploy/continue", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doRequest(t, s, http.MethodPost,
		"/ws/v1/plans/deploy/forceComplete?phase=placement&step=web-0", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	// 挂起不支持步骤级别
	resp = doRequest(t, s, http.MethodPost,
		"/ws/v1/plans/deploy/interrupt?phase=placement&step=web-0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	// 未知步骤
	resp = doRequest(t, s, http.MethodPost,
		"/ws/v1/plans/deploy/restart?phase=placement&step=web-99", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer(t)

	resp := doRequest(t, s, http.MethodGet, "/ws/v1/metrics", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var snapshot map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &snapshot))
	assert.Contains(t, snapshot, "offers_evaluated")
}
