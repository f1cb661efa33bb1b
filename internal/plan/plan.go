package plan

import (
	"fmt"
	"sort"
	"sync"

	"radish/internal/common"
)

// Status 计划、阶段与步骤共用的状态枚举
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusStarting   Status = "STARTING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusWaiting    Status = "WAITING"
	StatusComplete   Status = "COMPLETE"
	StatusError      Status = "ERROR"
)

// Step 计划中的最小执行单元，通常对应一个待放置的工作负载实例
type Step struct {
	Name     string `json:"name"`
	Workload string `json:"workload,omitempty"`
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
}

// Phase 一组顺序推进的步骤
type Phase struct {
	Name  string  `json:"name"`
	Steps []*Step `json:"steps"`
}

// status 汇总阶段状态：任一 ERROR 即 ERROR，全部 COMPLETE 即 COMPLETE，
// 有执行中的即 IN_PROGRESS，有挂起的即 WAITING，否则 PENDING
func (p *Phase) status() Status {
	statuses := make([]Status, 0, len(p.Steps))
	for _, step := range p.Steps {
		statuses = append(statuses, step.Status)
	}
	return rollup(statuses)
}

// Plan 一次部署或配置变更的全量计划
type Plan struct {
	mu sync.RWMutex

	name     string
	strategy string
	phases   []*Phase
	errors   []string
}

// PhaseStatus 阶段状态快照
type PhaseStatus struct {
	Name   string  `json:"name"`
	Status Status  `json:"status"`
	Steps  []*Step `json:"steps"`
}

// PlanStatus 计划状态快照，对应 /v1/plans/{plan} 的响应体
type PlanStatus struct {
	Name     string        `json:"name"`
	Strategy string        `json:"strategy,omitempty"`
	Status   Status        `json:"status"`
	Errors   []string      `json:"errors"`
	Phases   []PhaseStatus `json:"phases"`
}

// New 创建计划，所有步骤初始为 PENDING
func New(name, strategy string, phases []*Phase) *Plan {
	for _, phase := range phases {
		for _, step := range phase.Steps {
			if step.Status == "" {
				step.Status = StatusPending
			}
		}
	}
	return &Plan{name: name, strategy: strategy, phases: phases}
}

// Name 返回计划名
func (p *Plan) Name() string {
	return p.name
}

// Snapshot 返回当前状态快照
func (p *Plan) Snapshot() PlanStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := PlanStatus{
		Name:     p.name,
		Strategy: p.strategy,
		Status:   p.statusLocked(),
		Errors:   append([]string{}, p.errors...),
		Phases:   make([]PhaseStatus, 0, len(p.phases)),
	}
	for _, phase := range p.phases {
		steps := make([]*Step, 0, len(phase.Steps))
		for _, step := range phase.Steps {
			copied := *step
			steps = append(steps, &copied)
		}
		status.Phases = append(status.Phases, PhaseStatus{
			Name:   phase.Name,
			Status: phase.status(),
			Steps:  steps,
		})
	}
	return status
}

// IsComplete 判断计划是否已完成且无错误
func (p *Plan) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.errors) == 0 && p.statusLocked() == StatusComplete
}

func (p *Plan) statusLocked() Status {
	if len(p.errors) > 0 {
		return StatusError
	}
	statuses := make([]Status, 0, len(p.phases))
	for _, phase := range p.phases {
		statuses = append(statuses, phase.status())
	}
	return rollup(statuses)
}

// Start 显式启动计划，将挂起或待执行的步骤置为 STARTING。
// 不支持阶段与步骤级别的启动
func (p *Plan) Start() error {
	return p.transition("", "", func(step *Step) {
		if step.Status == StatusPending || step.Status == StatusWaiting {
			step.Status = StatusStarting
		}
	})
}

// Continue 恢复挂起的步骤，phase 为空时作用于整个计划
func (p *Plan) Continue(phase string) error {
	return p.transition(phase, "", func(step *Step) {
		if step.Status == StatusWaiting {
			step.Status = StatusPending
		}
	})
}

// Interrupt 挂起未完成的步骤，phase 为空时作用于整个计划。
// 不支持步骤级别的挂起
func (p *Plan) Interrupt(phase string) error {
	return p.transition(phase, "", func(step *Step) {
		if step.Status == StatusPending || step.Status == StatusStarting ||
			step.Status == StatusInProgress {
			step.Status = StatusWaiting
		}
	})
}

// Restart 将目标步骤重置为 PENDING
func (p *Plan) Restart(phase, step string) error {
	return p.transition(phase, step, func(s *Step) {
		s.Status = StatusPending
		s.Message = ""
	})
}

// ForceComplete 将目标步骤强制置为 COMPLETE
func (p *Plan) ForceComplete(phase, step string) error {
	return p.transition(phase, step, func(s *Step) {
		s.Status = StatusComplete
	})
}

// SetStepStatus 更新单个步骤的状态，由执行方在放置成功或失败时调用
func (p *Plan) SetStepStatus(phase, step string, status Status, message string) error {
	return p.transition(phase, step, func(s *Step) {
		s.Status = status
		s.Message = message
	})
}

// AddError 记录计划级错误
func (p *Plan) AddError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, message)
}

// transition 对选中的步骤应用状态变更，phase/step 为空表示不过滤
func (p *Plan) transition(phase, step string, apply func(*Step)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	matched := false
	for _, ph := range p.phases {
		if phase != "" && ph.Name != phase {
			continue
		}
		for _, s := range ph.Steps {
			if step != "" && s.Name != step {
				continue
			}
			apply(s)
			matched = true
		}
	}
	if !matched {
		return fmt.Errorf("%w: phase=%q step=%q", common.ErrInvalidPlanAction, phase, step)
	}
	return nil
}

// rollup 汇总一组子状态
func rollup(statuses []Status) Status {
	var complete, waiting, active int
	hasError := false
	total := len(statuses)
	for _, s := range statuses {
		switch s {
		case StatusComplete:
			complete++
		case StatusWaiting:
			waiting++
		case StatusStarting, StatusInProgress:
			active++
		case StatusError:
			hasError = true
		}
	}
	switch {
	case hasError:
		return StatusError
	case total == 0 || complete == total:
		return StatusComplete
	case active > 0 || complete > 0:
		return StatusInProgress
	case waiting > 0:
		return StatusWaiting
	default:
		return StatusPending
	}
}

// Manager 管理进程内的全部计划
type Manager struct {
	mu    sync.RWMutex
	plans map[string]*Plan
}

// NewManager 创建计划管理器
func NewManager() *Manager {
	return &Manager{plans: make(map[string]*Plan)}
}

// Add 注册计划，同名计划会被替换
func (m *Manager) Add(p *Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[p.Name()] = p
}

// Get 按名称查询计划
func (m *Manager) Get(name string) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrPlanNotFound, name)
	}
	return p, nil
}

// Names 返回按名称排序的计划名列表
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.plans))
	for name := range m.plans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
