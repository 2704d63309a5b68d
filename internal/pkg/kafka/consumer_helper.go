package kafka

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

const (
	batchSize    = 32
	batchTimeout = 1 * time.Second
	maxBackoff   = 5 * time.Second
)

type LogicFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

// pullMessageBatch 拉取一批消息并执行业务逻辑
func pullMessageBatch(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim, logic LogicFunc) error {
	batch := make([]*sarama.ConsumerMessage, 0, batchSize)
	ticker := time.NewTicker(batchTimeout)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				if len(batch) > 0 {
					processBatch(session, batch, logic)
				}
				return nil
			}
			batch = append(batch, msg)
			if len(batch) >= batchSize {
				processBatch(session, batch, logic)
				batch = make([]*sarama.ConsumerMessage, 0, batchSize)
				ticker.Reset(batchTimeout)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				processBatch(session, batch, logic)
				batch = make([]*sarama.ConsumerMessage, 0, batchSize)
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// processBatch 并发处理一批消息，全部成功后提交最后一条的 offset
func processBatch(session sarama.ConsumerGroupSession, messages []*sarama.ConsumerMessage, logic LogicFunc) {
	if !runBatch(session.Context(), messages, logic) {
		return
	}
	if len(messages) > 0 {
		session.MarkMessage(messages[len(messages)-1], "")
		session.Commit()
	}
}

// runBatch 逐条重试直到成功，ctx 取消时返回 false
func runBatch(ctx context.Context, messages []*sarama.ConsumerMessage, logic LogicFunc) bool {
	var wg sync.WaitGroup
	done := make([]bool, len(messages))

	for i, msg := range messages {
		wg.Add(1)
		go func(i int, m *sarama.ConsumerMessage) {
			defer wg.Done()
			retryInterval := 100 * time.Millisecond
			for {
				err := logic(ctx, m)
				if err == nil {
					done[i] = true
					return
				}
				log.ErrorContext(ctx, "process message error",
					"topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "err", err)

				select {
				case <-ctx.Done():
					return
				case <-time.After(retryInterval):
				}
				retryInterval *= 2
				if retryInterval > maxBackoff {
					retryInterval = maxBackoff
				}
			}
		}(i, msg)
	}
	wg.Wait()

	for _, ok := range done {
		if !ok {
			return false
		}
	}
	return true
}
