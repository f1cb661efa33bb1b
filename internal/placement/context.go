package placement

import "strings"

// TaskRecord 已放置任务的快照，用于反亲和与数量上限规则
type TaskRecord struct {
	Name       string            `json:"name"`
	Workload   string            `json:"workload"`
	Hostname   string            `json:"hostname"`
	Region     string            `json:"region,omitempty"`
	Zone       string            `json:"zone,omitempty"`
	Rack       string            `json:"rack,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// LabelValues 记录每个维度下各取值出现的次数，
// 第一层键是维度名，第二层键是取值
type LabelValues map[string]map[string]uint32

// add 增加一次计数
func (lv LabelValues) add(dimension, value string) {
	if value == "" {
		return
	}
	if _, ok := lv[dimension]; !ok {
		lv[dimension] = make(map[string]uint32)
	}
	lv[dimension][value]++
}

// Count 查询某维度某取值的计数
func (lv LabelValues) Count(dimension, value string) uint32 {
	if values, ok := lv[dimension]; ok {
		return values[value]
	}
	return 0
}

// Context 单次评估周期内可见的放置上下文，构建完成后只读，
// 可以被多个并发评估安全共享
type Context struct {
	// Workload 当前待放置的工作负载名，MaxPerRule 只统计同名负载
	Workload string

	tasks  []TaskRecord
	counts LabelValues
}

// NewContext 构建放置上下文并冻结计数
func NewContext(workload string, tasks []TaskRecord) *Context {
	counts := make(LabelValues)
	for _, task := range tasks {
		if task.Workload != workload {
			continue
		}
		counts.add(ScopeHostname, task.Hostname)
		counts.add(ScopeRegion, task.Region)
		counts.add(ScopeZone, task.Zone)
		counts.add(ScopeRack, task.Rack)
		for key, value := range task.Attributes {
			counts.add(scopeAttributePrefix+key, value)
		}
	}
	copied := make([]TaskRecord, len(tasks))
	copy(copied, tasks)
	return &Context{
		Workload: workload,
		tasks:    copied,
		counts:   counts,
	}
}

// EmptyContext 构建没有任何已放置任务的上下文
func EmptyContext(workload string) *Context {
	return NewContext(workload, nil)
}

// Count 查询同名负载在某维度某取值上已放置的实例数
func (c *Context) Count(dimension, value string) uint32 {
	return c.counts.Count(dimension, value)
}

// Tasks 返回任务快照副本
func (c *Context) Tasks() []TaskRecord {
	copied := make([]TaskRecord, len(c.tasks))
	copy(copied, c.tasks)
	return copied
}

// String 便于日志排查
func (c *Context) String() string {
	var sb strings.Builder
	sb.WriteString("context{workload=")
	sb.WriteString(c.Workload)
	sb.WriteString("}")
	return sb.String()
}
