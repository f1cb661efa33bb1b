package placement

import (
	"fmt"
	"strings"

	"radish/internal/common"
	"radish/internal/offer"
)

// 位置维度名，同时作为 MaxPerRule 的 scope 取值
const (
	ScopeHostname = "hostname"
	ScopeRegion   = "region"
	ScopeZone     = "zone"
	ScopeRack     = "rack"

	// 属性维度使用 "attribute:<key>" 形式
	scopeAttributePrefix = "attribute:"
)

// Extractor 从 Offer 中读取单个维度的值，第二个返回值表示该维度是否存在
type Extractor interface {
	Extract(o *offer.Offer) (string, bool)
	// Dimension 返回维度名，用于 PlacementContext 计数
	Dimension() string
}

// RegionExtractor 读取区域
type RegionExtractor struct{}

func (RegionExtractor) Extract(o *offer.Offer) (string, bool) {
	return o.Region, o.Region != ""
}

func (RegionExtractor) Dimension() string { return ScopeRegion }

// ZoneExtractor 读取可用区
type ZoneExtractor struct{}

func (ZoneExtractor) Extract(o *offer.Offer) (string, bool) {
	return o.Zone, o.Zone != ""
}

func (ZoneExtractor) Dimension() string { return ScopeZone }

// RackExtractor 读取机架
type RackExtractor struct{}

func (RackExtractor) Extract(o *offer.Offer) (string, bool) {
	return o.Rack, o.Rack != ""
}

func (RackExtractor) Dimension() string { return ScopeRack }

// HostnameExtractor 读取主机名
type HostnameExtractor struct{}

func (HostnameExtractor) Extract(o *offer.Offer) (string, bool) {
	return o.Hostname, o.Hostname != ""
}

func (HostnameExtractor) Dimension() string { return ScopeHostname }

// AttributeExtractor 按键读取自由属性
type AttributeExtractor struct {
	Key string
}

func (e AttributeExtractor) Extract(o *offer.Offer) (string, bool) {
	return o.Attribute(e.Key)
}

func (e AttributeExtractor) Dimension() string {
	return scopeAttributePrefix + e.Key
}

// ExtractorForScope 根据 scope 名返回对应的提取器，未知 scope 返回错误
func ExtractorForScope(scope string) (Extractor, error) {
	switch scope {
	case ScopeHostname:
		return HostnameExtractor{}, nil
	case ScopeRegion:
		return RegionExtractor{}, nil
	case ScopeZone:
		return ZoneExtractor{}, nil
	case ScopeRack:
		return RackExtractor{}, nil
	}
	if key, ok := strings.CutPrefix(scope, scopeAttributePrefix); ok && key != "" {
		return AttributeExtractor{Key: key}, nil
	}
	return nil, common.NewBuildError("MaxPerRule",
		fmt.Sprintf("unsupported scope %q", scope), common.ErrUnknownScope)
}
