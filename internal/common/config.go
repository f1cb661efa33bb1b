package common

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 全局配置
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Server ServerConfig `yaml:"server"`
	Events EventsConfig `yaml:"events"`
	Log    LogConfig    `yaml:"log"`
}

// EngineConfig 评估引擎配置
type EngineConfig struct {
	Parallelism   int           `yaml:"parallelism"`
	CycleDeadline time.Duration `yaml:"cycle_deadline"`
	RulesetFile   string        `yaml:"ruleset_file"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port         int           `yaml:"port"`
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// EventsConfig 决策事件发布配置
type EventsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Parallelism:   getEnvIntOrDefault("RADISH_PARALLELISM", 4),
			CycleDeadline: 10 * time.Second,
			RulesetFile:   getEnvOrDefault("RADISH_RULESET_FILE", ""),
		},
		Server: ServerConfig{
			Port:         8780,
			Address:      "0.0.0.0",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Events: EventsConfig{
			Enabled:      false,
			Brokers:      []string{"localhost:9092"},
			Topic:        "radish-placement-decisions",
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Development: false,
			Level:       "info",
			MaxSizeMB:   100,
			MaxBackups:  5,
			MaxAgeDays:  7,
		},
	}
}

// LoadConfig 从 YAML 文件加载配置，文件不存在时返回默认配置
func LoadConfig(path string) (*Config, error) {
	config := GetDefaultConfig()

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	if config.Engine.Parallelism <= 0 {
		config.Engine.Parallelism = 1
	}

	return config, nil
}

// getEnvOrDefault 获取环境变量或使用默认值
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault 获取环境变量整数值或使用默认值
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
