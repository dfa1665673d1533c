package job

import (
	"context"
	"log"
	"sync"
	"time"

	"pointsystem/internal/model"
	"pointsystem/internal/repository"
)

// MessageSender 消息投递，mq.Producer 实现了它
type MessageSender interface {
	SendMessage(topic, key, value string) error
}

// OutboxSender 把本地消息表里待发送的积分事件投递到 Kafka
//
// 至少投递一次：发送成功但更新状态失败时，下一轮会重复发送，消费方按 transaction_no 去重。
type OutboxSender struct {
	outbox        repository.OutboxLedger
	sender        MessageSender
	maxRetryCount int
	interval      time.Duration
	batchSize     int
	stopCh        chan struct{}
	stopOnce      sync.Once
}

func NewOutboxSender(outbox repository.OutboxLedger, sender MessageSender, maxRetryCount int) *OutboxSender {
	return &OutboxSender{
		outbox:        outbox,
		sender:        sender,
		maxRetryCount: maxRetryCount,
		interval:      100 * time.Millisecond,
		batchSize:     100,
		stopCh:        make(chan struct{}),
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Println("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.ProcessPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// ProcessPendingMessages 处理一批待发送消息，返回发送成功的数量
func (s *OutboxSender) ProcessPendingMessages(ctx context.Context) int {
	messages, err := s.outbox.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.Printf("[OutboxSender] 查询消息失败: %v", err)
		return 0
	}

	// 同一个 key 前面的消息没发出去，后面的本批次不再发送，避免乱序
	blocked := make(map[string]struct{})
	sent := 0
	for _, msg := range messages {
		if _, ok := blocked[msg.MessageKey]; ok {
			continue
		}
		if s.sendMessage(ctx, msg) {
			sent++
			continue
		}
		blocked[msg.MessageKey] = struct{}{}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.sender.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outbox.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			log.Printf("[OutboxSender] 更新消息状态失败: id=%d, err=%v", msg.ID, updateErr)
		}
		return true
	}

	giveUp := msg.RetryCount+1 >= s.maxRetryCount
	log.Printf("[OutboxSender] 消息发送失败: id=%d, retry=%d, giveUp=%t, err=%v", msg.ID, msg.RetryCount+1, giveUp, err)

	if err := s.outbox.RecordFailure(ctx, msg.ID, giveUp); err != nil {
		log.Printf("[OutboxSender] 记录失败次数失败: id=%d, err=%v", msg.ID, err)
	}
	return false
}
