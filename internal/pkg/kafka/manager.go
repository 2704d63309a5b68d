package kafka

import (
	"Cadence/internal/api/config"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
)

// ConsumerManager 管理所有 Kafka 消费者
type ConsumerManager struct {
	publishResultConsumer sarama.ConsumerGroup
	publishResultHandler  sarama.ConsumerGroupHandler
}

// NewConsumerManager 构造函数
func NewConsumerManager(cfg *config.Config, queue QueueWriteBack) (*ConsumerManager, error) {
	saramaCfg := newSaramaConfig(cfg.Kafka)

	publishResultConsumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaPublishResultConsumer.GroupID, saramaCfg)
	if err != nil {
		return nil, err
	}

	return &ConsumerManager{
		publishResultConsumer: publishResultConsumer,
		publishResultHandler:  NewPublishResultHandler(queue),
	}, nil
}

// Start 启动所有消费者，阻塞至 ctx 结束
func (m *ConsumerManager) Start(ctx context.Context, cfg *config.Config) error {
	go func() {
		for err := range m.publishResultConsumer.Errors() {
			log.Error("publish result consumer error", "err", err)
		}
	}()

	go func() {
		topic := cfg.KafkaPublishResultConsumer.Topic
		log.Info("Publish result consumer started", "topic", topic)
		for {
			if err := m.publishResultConsumer.Consume(ctx, []string{topic}, m.publishResultHandler); err != nil {
				log.Error("Error from consumer", "err", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	<-ctx.Done()
	log.Info("Kafka Manager shutting down...")

	if err := m.publishResultConsumer.Close(); err != nil {
		log.Error("Failed to close publish result consumer", "err", err)
	}
	return nil
}
