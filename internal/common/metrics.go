package common

import (
	"runtime"
	"sync"
	"time"
)

// Metrics 评估引擎指标
type Metrics struct {
	mu sync.RWMutex

	// 系统指标
	StartTime    time.Time        `json:"start_time"`
	RequestCount map[string]int64 `json:"request_count"`
	ErrorCount   map[string]int64 `json:"error_count"`

	// 评估指标
	OffersEvaluated int64            `json:"offers_evaluated"`
	OffersAccepted  int64            `json:"offers_accepted"`
	OffersRejected  int64            `json:"offers_rejected"`
	RuleTypeCount   map[string]int64 `json:"rule_type_count"`

	// 批次指标
	BatchCount      int64         `json:"batch_count"`
	LastBatchSize   int64         `json:"last_batch_size"`
	LastBatchTime   time.Duration `json:"last_batch_time_ns"`
	TotalBatchTime  time.Duration `json:"total_batch_time_ns"`
	DecodedRules    int64         `json:"decoded_rules"`
	DecodeFailures  int64         `json:"decode_failures"`
	EventsPublished int64         `json:"events_published"`
}

var globalMetrics = &Metrics{
	StartTime:     time.Now(),
	RequestCount:  make(map[string]int64),
	ErrorCount:    make(map[string]int64),
	RuleTypeCount: make(map[string]int64),
}

// GetMetrics 获取全局指标实例
func GetMetrics() *Metrics {
	return globalMetrics
}

// IncrementRequestCount 增加请求计数
func (m *Metrics) IncrementRequestCount(endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount[endpoint]++
}

// IncrementErrorCount 增加错误计数
func (m *Metrics) IncrementErrorCount(endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorCount[endpoint]++
}

// RecordBatch 记录一次批量评估
func (m *Metrics) RecordBatch(size, accepted int64, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BatchCount++
	m.LastBatchSize = size
	m.LastBatchTime = elapsed
	m.TotalBatchTime += elapsed
	m.OffersEvaluated += size
	m.OffersAccepted += accepted
	m.OffersRejected += size - accepted
}

// RecordRuleType 记录规则类型使用次数
func (m *Metrics) RecordRuleType(ruleType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RuleTypeCount[ruleType]++
}

// RecordDecode 记录一次规则反序列化结果
func (m *Metrics) RecordDecode(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.DecodedRules++
	} else {
		m.DecodeFailures++
	}
}

// RecordEventPublished 记录一次决策事件发布
func (m *Metrics) RecordEventPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EventsPublished++
}

// GetSnapshot 获取指标快照
func (m *Metrics) GetSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// 获取系统内存统计
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	// 复制所有 map，快照在锁释放后仍可安全读取
	requests := make(map[string]int64, len(m.RequestCount))
	for k, v := range m.RequestCount {
		requests[k] = v
	}
	errorCounts := make(map[string]int64, len(m.ErrorCount))
	for k, v := range m.ErrorCount {
		errorCounts[k] = v
	}
	ruleTypes := make(map[string]int64, len(m.RuleTypeCount))
	for k, v := range m.RuleTypeCount {
		ruleTypes[k] = v
	}

	return map[string]interface{}{
		"uptime_seconds":   time.Since(m.StartTime).Seconds(),
		"request_count":    requests,
		"error_count":      errorCounts,
		"offers_evaluated": m.OffersEvaluated,
		"offers_accepted":  m.OffersAccepted,
		"offers_rejected":  m.OffersRejected,
		"rule_type_count":  ruleTypes,
		"batch_count":      m.BatchCount,
		"last_batch_size":  m.LastBatchSize,
		"last_batch_ms":    m.LastBatchTime.Milliseconds(),
		"decoded_rules":    m.DecodedRules,
		"decode_failures":  m.DecodeFailures,
		"events_published": m.EventsPublished,
		"memory_alloc_mb":  memStats.Alloc / 1024 / 1024,
		"goroutines":       runtime.NumGoroutine(),
	}
}

// Reset 重置指标，仅用于测试
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = make(map[string]int64)
	m.ErrorCount = make(map[string]int64)
	m.RuleTypeCount = make(map[string]int64)
	m.OffersEvaluated = 0
	m.OffersAccepted = 0
	m.OffersRejected = 0
	m.BatchCount = 0
	m.LastBatchSize = 0
	m.LastBatchTime = 0
	m.TotalBatchTime = 0
	m.DecodedRules = 0
	m.DecodeFailures = 0
	m.EventsPublished = 0
}
