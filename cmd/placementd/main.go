package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"radish/internal/common"
	"radish/internal/engine"
	"radish/internal/events"
	"radish/internal/placement"
	"radish/internal/plan"
	"radish/internal/server"
)

func main() {
	var (
		configFile  = flag.String("config", "configs/placementd.yaml", "Configuration file path")
		rulesFile   = flag.String("rules", "", "Ruleset file path (overrides config)")
		development = flag.Bool("dev", false, "Enable development mode")
	)
	flag.Parse()

	// 加载配置文件
	config, err := common.LoadConfig(*configFile)
	if err != nil {
		panic(err)
	}
	if *development {
		config.Log.Development = true
	}
	if *rulesFile != "" {
		config.Engine.RulesetFile = *rulesFile
	}

	// 初始化日志系统
	if err := common.InitLoggerFromConfig(config); err != nil {
		panic(err)
	}
	defer common.Sync()

	logger := common.ComponentLogger("placementd")
	logger.Info("Starting placement daemon",
		zap.String("config_file", *configFile),
		zap.Bool("development", *development))

	// 载入规则集合，规则文件损坏时直接终止启动
	rulesets := make(map[string]*placement.Ruleset)
	if config.Engine.RulesetFile != "" {
		rs, err := placement.LoadRulesetFile(config.Engine.RulesetFile)
		if err != nil {
			logger.Fatal("Failed to load ruleset",
				zap.String("file", config.Engine.RulesetFile), zap.Error(err))
		}
		rulesets[rs.Name] = rs
		logger.Info("Ruleset loaded",
			zap.String("name", rs.Name),
			zap.Strings("rules", rs.RuleNames()))
	}

	// 为每个规则集合建立部署计划，每条规则对应一个放置步骤
	plans := plan.NewManager()
	for name, rs := range rulesets {
		steps := make([]*plan.Step, 0, len(rs.Rules))
		for _, ruleName := range rs.RuleNames() {
			steps = append(steps, &plan.Step{Name: ruleName, Workload: ruleName})
		}
		plans.Add(plan.New(name, "serial", []*plan.Phase{
			{Name: "placement", Steps: steps},
		}))
	}

	eng := engine.New(config.Engine)
	publisher := events.NewPublisher(config.Events)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("Error closing event publisher", zap.Error(err))
		}
	}()

	srv := server.NewHTTPServer(config.Server, eng, rulesets, plans, publisher)
	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start HTTP server", zap.Error(err))
	}

	logger.Info("Placement daemon started",
		zap.Int("port", config.Server.Port),
		zap.Int("parallelism", config.Engine.Parallelism))

	// 优雅关闭处理
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Received shutdown signal")
	if err := srv.Stop(); err != nil {
		logger.Error("Error stopping HTTP server", zap.Error(err))
	}
}
