package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"radish/internal/common"
	"radish/internal/offer"
	"radish/internal/placement"
)

// Result 单个 Offer 的评估结果，Offer 是输入的原始 Offer，
// 被接受时 Decision.Offer 才是（可能缩减的）可用资源
type Result struct {
	Offer    *offer.Offer       `json:"offer"`
	Decision placement.Decision `json:"decision"`
}

// Engine 批量评估驱动器，对一个调度周期内的全部 Offer 应用同一条规则
type Engine struct {
	parallelism int
	logger      *zap.Logger
	metrics     *common.Metrics
}

// New 创建评估引擎
func New(cfg common.EngineConfig) *Engine {
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Engine{
		parallelism: parallelism,
		logger:      common.ComponentLogger("engine"),
		metrics:     common.GetMetrics(),
	}
}

// Select 对每个 Offer 独立评估规则，结果按输入顺序返回，
// 被拒绝的 Offer 不会被过滤掉，是否丢弃由调用方决定。
// 规则树与上下文都是只读的，评估之间没有共享可变状态，
// 因此可以安全并行
func (e *Engine) Select(
	offers []*offer.Offer,
	rule placement.PlacementRule,
	ctx *placement.Context) []Result {

	start := time.Now()
	results := make([]Result, len(offers))

	workers := e.parallelism
	if workers > len(offers) {
		workers = len(offers)
	}

	if workers <= 1 {
		for i, o := range offers {
			results[i] = Result{Offer: o, Decision: rule.Evaluate(o, ctx)}
		}
	} else {
		jobs := make(chan int, len(offers))
		var wg sync.WaitGroup
		wg.Add(workers)
		for w := 0; w < workers; w++ {
			go func() {
				defer wg.Done()
				for i := range jobs {
					o := offers[i]
					results[i] = Result{Offer: o, Decision: rule.Evaluate(o, ctx)}
				}
			}()
		}
		for i := range offers {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
	}

	var accepted int64
	for _, result := range results {
		if result.Decision.Accepted {
			accepted++
		}
	}

	elapsed := time.Since(start)
	e.metrics.RecordBatch(int64(len(offers)), accepted, elapsed)
	e.metrics.RecordRuleType(rule.Type())

	e.logger.Debug("Batch evaluation finished",
		zap.Int("offers", len(offers)),
		zap.Int64("accepted", accepted),
		zap.String("rule", rule.String()),
		zap.Duration("elapsed", elapsed))

	return results
}
