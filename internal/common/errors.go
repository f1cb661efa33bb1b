package common

import (
	"errors"
	"fmt"
)

// 定义常见错误类型
var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrUnknownRuleType   = errors.New("unknown rule type")
	ErrUnknownMatcher    = errors.New("unknown matcher type")
	ErrMissingField      = errors.New("missing required field")
	ErrEmptyMatchSet     = errors.New("exact matcher requires at least one value")
	ErrInvalidPattern    = errors.New("invalid regex pattern")
	ErrUnknownScope      = errors.New("unknown placement scope")
	ErrRuleTreeTooDeep   = errors.New("rule tree exceeds maximum depth")
	ErrRulesetNotFound   = errors.New("ruleset not found")
	ErrPlanNotFound      = errors.New("plan not found")
	ErrInvalidPlanAction = errors.New("invalid plan action")
)

// DecodeError 规则反序列化错误，Path 指向出错的节点
type DecodeError struct {
	Path    string `json:"path"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *DecodeError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("decode %s at %s: %s", e.Type, e.Path, e.Message)
	}
	return fmt.Sprintf("decode at %s: %s", e.Path, e.Message)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// NewDecodeError 创建反序列化错误
func NewDecodeError(path, ruleType, message string, cause error) *DecodeError {
	return &DecodeError{
		Path:    path,
		Type:    ruleType,
		Message: message,
		Cause:   cause,
	}
}

// BuildError 规则构建错误，在规则构造阶段立即返回
type BuildError struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s: %s", e.Rule, e.Message)
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}

// NewBuildError 创建规则构建错误
func NewBuildError(rule, message string, cause error) *BuildError {
	return &BuildError{
		Rule:    rule,
		Message: message,
		Cause:   cause,
	}
}
