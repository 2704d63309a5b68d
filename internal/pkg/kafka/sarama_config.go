package kafka

import (
	"Cadence/internal/api/config"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

const (
	defaultClientID          = "cadence"
	defaultSessionTimeout    = 30 * time.Second
	defaultHeartbeatInterval = 3 * time.Second
	defaultRebalanceTimeout  = 60 * time.Second
	defaultMaxProcessingTime = 10 * time.Second
)

// newSaramaConfig 发布结果消费者配置
// 手动提交位点；新消费组默认从最早位置开始，避免部署间隙内的回写丢失
func newSaramaConfig(kafkaCfg config.KafkaConfig) *sarama.Config {
	c := sarama.NewConfig()

	c.ClientID = kafkaCfg.ClientID
	if c.ClientID == "" {
		c.ClientID = defaultClientID
	}

	if kafkaCfg.Sasl.Enable {
		c.Net.SASL.Enable = true
		c.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		c.Net.SASL.User = kafkaCfg.Sasl.Username
		c.Net.SASL.Password = kafkaCfg.Sasl.Password
	}

	consumer := kafkaCfg.Consumer
	c.Consumer.Return.Errors = true
	c.Consumer.Offsets.AutoCommit.Enable = false
	c.Consumer.Offsets.Initial = initialOffset(consumer.InitialOffset)
	c.Consumer.Group.Session.Timeout = seconds(consumer.SessionTimeout, defaultSessionTimeout)
	c.Consumer.Group.Heartbeat.Interval = seconds(consumer.HeartbeatInterval, defaultHeartbeatInterval)
	c.Consumer.Group.Rebalance.Timeout = seconds(consumer.RebalanceTimeout, defaultRebalanceTimeout)
	c.Consumer.MaxProcessingTime = seconds(consumer.MaxProcessingTime, defaultMaxProcessingTime)

	return c
}

func initialOffset(value string) int64 {
	if strings.EqualFold(value, "newest") {
		return sarama.OffsetNewest
	}
	return sarama.OffsetOldest
}

// seconds 未配置或非法时使用默认值，sarama 不接受 0 超时
func seconds(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Second
}
