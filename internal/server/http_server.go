package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"radish/internal/common"
	"radish/internal/engine"
	"radish/internal/events"
	"radish/internal/offer"
	"radish/internal/placement"
	"radish/internal/plan"
)

// HTTPServer 评估引擎管理接口服务器
type HTTPServer struct {
	server    *http.Server
	logger    *zap.Logger
	config    common.ServerConfig
	engine    *engine.Engine
	rulesets  map[string]*placement.Ruleset
	plans     *plan.Manager
	publisher events.Publisher
}

// NewHTTPServer 创建新的 HTTP 服务器
func NewHTTPServer(
	cfg common.ServerConfig,
	eng *engine.Engine,
	rulesets map[string]*placement.Ruleset,
	plans *plan.Manager,
	publisher events.Publisher) *HTTPServer {

	if rulesets == nil {
		rulesets = make(map[string]*placement.Ruleset)
	}
	return &HTTPServer{
		logger:    common.ComponentLogger("server"),
		config:    cfg,
		engine:    eng,
		rulesets:  rulesets,
		plans:     plans,
		publisher: publisher,
	}
}

// routes 构建路由
func (s *HTTPServer) routes() *mux.Router {
	router := mux.NewRouter()

	// 添加中间件
	router.Use(s.loggingMiddleware)
	router.Use(s.corsMiddleware)

	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// API 路由
	v1 := router.PathPrefix("/ws/v1").Subrouter()

	// 规则路由
	rules := v1.PathPrefix("/placement").Subrouter()
	rules.HandleFunc("/rulesets", s.handleRulesets).Methods("GET")
	rules.HandleFunc("/rulesets/{name}", s.handleRuleset).Methods("GET")
	rules.HandleFunc("/evaluate", s.handleEvaluate).Methods("POST")

	// 计划路由
	plans := v1.PathPrefix("/plans").Subrouter()
	plans.HandleFunc("", s.handlePlans).Methods("GET")
	plans.HandleFunc("/{plan}", s.handlePlan).Methods("GET")
	plans.HandleFunc("/{plan}/start", s.handlePlanAction("start")).Methods("POST")
	plans.HandleFunc("/{plan}/continue", s.handlePlanAction("continue")).Methods("POST")
	plans.HandleFunc("/{plan}/interrupt", s.handlePlanAction("interrupt")).Methods("POST")
	plans.HandleFunc("/{plan}/restart", s.handlePlanAction("restart")).Methods("POST")
	plans.HandleFunc("/{plan}/forceComplete", s.handlePlanAction("forceComplete")).Methods("POST")

	v1.HandleFunc("/metrics", s.handleMetrics).Methods("GET")

	return router
}

// Start 启动 HTTP 服务器
func (s *HTTPServer) Start() error {
	router := s.routes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Address, s.config.Port),
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	// 在后台启动服务器
	go func() {
		s.logger.Info("Starting placement HTTP server", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Placement HTTP server failed", zap.Error(err))
		}
	}()

	return nil
}

// Stop 停止 HTTP 服务器
func (s *HTTPServer) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Stopping placement HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth 健康检查
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleRulesets 列出已载入的规则集合
func (s *HTTPServer) handleRulesets(w http.ResponseWriter, r *http.Request) {
	summaries := make([]map[string]interface{}, 0, len(s.rulesets))
	for name, rs := range s.rulesets {
		summaries = append(summaries, map[string]interface{}{
			"name":        name,
			"description": rs.Description,
			"rules":       rs.RuleNames(),
		})
	}
	s.writeJSONResponse(w, map[string]interface{}{
		"rulesets": summaries,
	})
}

// handleRuleset 返回单个规则集合的完整序列化形式
func (s *HTTPServer) handleRuleset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	rs, ok := s.rulesets[name]
	if !ok {
		http.Error(w, common.ErrRulesetNotFound.Error(), http.StatusNotFound)
		return
	}

	data, err := placement.EncodeRuleset(rs)
	if err != nil {
		s.logger.Error("Failed to encode ruleset", zap.String("name", name), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// evaluateRequest 评估请求体，rule 是内联规则 JSON，
// 也可以通过 ruleset/rule_name 引用已载入的规则
type evaluateRequest struct {
	Workload string                 `json:"workload"`
	Ruleset  string                 `json:"ruleset,omitempty"`
	RuleName string                 `json:"rule_name,omitempty"`
	Rule     json.RawMessage        `json:"rule,omitempty"`
	Offers   []*offer.Offer         `json:"offers"`
	Tasks    []placement.TaskRecord `json:"tasks,omitempty"`
}

// handleEvaluate 对一批 Offer 评估规则并返回全部决策
func (s *HTTPServer) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	metrics := common.GetMetrics()
	metrics.IncrementRequestCount("evaluate")

	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.IncrementErrorCount("evaluate")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rule, ruleName, err := s.resolveRule(&req)
	if err != nil {
		metrics.IncrementErrorCount("evaluate")
		var decodeErr *common.DecodeError
		if errors.As(err, &decodeErr) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		} else {
			http.Error(w, err.Error(), http.StatusNotFound)
		}
		return
	}

	// 上下文在并行评估开始前构建完成并冻结
	ctx := placement.NewContext(req.Workload, req.Tasks)
	results := s.engine.Select(req.Offers, rule, ctx)

	if err := s.publisher.PublishDecisions(r.Context(), req.Workload, ruleName, results); err != nil {
		// 事件发布失败不影响决策结果
		s.logger.Warn("Failed to publish decision events", zap.Error(err))
	}

	s.writeJSONResponse(w, map[string]interface{}{
		"workload": req.Workload,
		"rule":     ruleName,
		"results":  results,
	})
}

// resolveRule 解析请求中的规则，内联规则优先
func (s *HTTPServer) resolveRule(req *evaluateRequest) (placement.PlacementRule, string, error) {
	if len(req.Rule) > 0 {
		rule, err := placement.Decode(req.Rule)
		common.GetMetrics().RecordDecode(err == nil)
		if err != nil {
			return nil, "", err
		}
		return rule, "inline", nil
	}

	rs, ok := s.rulesets[req.Ruleset]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", common.ErrRulesetNotFound, req.Ruleset)
	}
	rule, ok := rs.Rule(req.RuleName)
	if !ok {
		return nil, "", fmt.Errorf("%w: rule %q in ruleset %q",
			common.ErrRulesetNotFound, req.RuleName, req.Ruleset)
	}
	return rule, req.Ruleset + "/" + req.RuleName, nil
}

// handlePlans 列出全部计划
func (s *HTTPServer) handlePlans(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, map[string]interface{}{
		"plans": s.plans.Names(),
	})
}

// handlePlan 返回单个计划的状态快照
func (s *HTTPServer) handlePlan(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["plan"]
	p, err := s.plans.Get(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSONResponse(w, p.Snapshot())
}

// handlePlanAction 处理计划动作，phase 与 step 通过查询参数指定
func (s *HTTPServer) handlePlanAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["plan"]
		p, err := s.plans.Get(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		phase := r.URL.Query().Get("phase")
		step := r.URL.Query().Get("step")

		switch action {
		case "start":
			if phase != "" || step != "" {
				// 启动只作用于整个计划
				http.Error(w, common.ErrInvalidPlanAction.Error(), http.StatusBadRequest)
				return
			}
			err = p.Start()
		case "continue":
			err = p.Continue(phase)
		case "interrupt":
			if step != "" {
				// 挂起不支持步骤级别
				http.Error(w, common.ErrInvalidPlanAction.Error(), http.StatusBadRequest)
				return
			}
			err = p.Interrupt(phase)
		case "restart":
			err = p.Restart(phase, step)
		case "forceComplete":
			err = p.ForceComplete(phase, step)
		default:
			err = common.ErrInvalidPlanAction
		}
		if err != nil {
			s.logger.Warn("Plan action failed",
				zap.String("plan", name), zap.String("action", action), zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.writeJSONResponse(w, map[string]interface{}{
			"plan":   name,
			"action": action,
			"status": p.Snapshot().Status,
		})
	}
}

// handleMetrics 返回指标快照
func (s *HTTPServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, common.GetMetrics().GetSnapshot())
}

// loggingMiddleware 日志中间件
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 记录请求
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr))

		next.ServeHTTP(w, r)

		// 记录响应
		duration := time.Since(start)
		s.logger.Debug("HTTP response",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", duration))
	})
}

// corsMiddleware CORS中间件
func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSONResponse 写入 JSON 响应
func (s *HTTPServer) writeJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
