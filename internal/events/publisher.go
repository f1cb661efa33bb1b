package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"radish/internal/common"
	"radish/internal/engine"
)

// DecisionEvent 放置决策事件，发布到 Kafka 供下游审计和排查
type DecisionEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Workload  string    `json:"workload"`
	RuleName  string    `json:"rule_name"`
	OfferID   string    `json:"offer_id"`
	Hostname  string    `json:"hostname"`
	Accepted  bool      `json:"accepted"`
	Reason    string    `json:"reason,omitempty"`
}

// Publisher 决策事件发布接口
type Publisher interface {
	PublishDecisions(ctx context.Context, workload, ruleName string, results []engine.Result) error
	Close() error
}

// KafkaPublisher 基于 Kafka 的发布器
type KafkaPublisher struct {
	writer  *kafka.Writer
	logger  *zap.Logger
	metrics *common.Metrics
}

// NewKafkaPublisher 创建 Kafka 发布器
func NewKafkaPublisher(cfg common.EventsConfig) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: 100 * time.Millisecond,
	}
	return &KafkaPublisher{
		writer:  writer,
		logger:  common.ComponentLogger("events"),
		metrics: common.GetMetrics(),
	}
}

// PublishDecisions 将一个批次的全部决策发布为事件
func (p *KafkaPublisher) PublishDecisions(
	ctx context.Context, workload, ruleName string, results []engine.Result) error {

	if len(results) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(results))
	for _, result := range results {
		event := DecisionEvent{
			EventID:   uuid.NewString(),
			Timestamp: time.Now().UTC(),
			Workload:  workload,
			RuleName:  ruleName,
			OfferID:   result.Offer.ID,
			Hostname:  result.Offer.Hostname,
			Accepted:  result.Decision.Accepted,
			Reason:    result.Decision.Reason,
		}
		value, err := json.Marshal(event)
		if err != nil {
			return err
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(result.Offer.ID),
			Value: value,
		})
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("Failed to publish decision events",
			zap.Int("count", len(messages)), zap.Error(err))
		return err
	}

	for range messages {
		p.metrics.RecordEventPublished()
	}
	p.logger.Debug("Published decision events", zap.Int("count", len(messages)))
	return nil
}

// Close 关闭底层 writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher 空发布器，事件发布未启用时使用
type NopPublisher struct{}

// PublishDecisions 什么都不做
func (NopPublisher) PublishDecisions(
	ctx context.Context, workload, ruleName string, results []engine.Result) error {
	return nil
}

// Close 什么都不做
func (NopPublisher) Close() error {
	return nil
}

// NewPublisher 按配置创建发布器
func NewPublisher(cfg common.EventsConfig) Publisher {
	if !cfg.Enabled {
		return NopPublisher{}
	}
	return NewKafkaPublisher(cfg)
}
