package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"pointsystem/internal/config"
	"pointsystem/internal/infrastructure/lock"
	"pointsystem/internal/model"
	"pointsystem/internal/repository"
	"pointsystem/pkg/idgen"
)

// PointService 积分充值、使用与查询
//
// 一次 charge/use 的流程：
//
//	校验金额 -> 加锁 -> 开启事务 -> 加锁读取账户 -> 计算新余额
//	-> 写余额 -> 写流水 -> 写 outbox -> 提交 -> 释放锁
//
// 余额、流水、outbox 在同一个事务里提交，任何一步失败整体回滚。
// 同一用户的变更由 Locker 和存储层行锁共同保证串行，默认只依赖行锁。
type PointService struct {
	store    repository.Store
	locker   lock.Locker
	gen      *idgen.Generator
	lockWait time.Duration
	topic    string
}

func NewPointService(store repository.Store, locker lock.Locker, gen *idgen.Generator, cfg *config.Config) *PointService {
	return &PointService{
		store:    store,
		locker:   locker,
		gen:      gen,
		lockWait: cfg.Point.LockWaitTimeout(),
		topic:    cfg.Kafka.Topic.PointChanged,
	}
}

// Charge 充值积分，返回充值后的余额
func (s *PointService) Charge(ctx context.Context, userID, amount int64) (int64, error) {
	return s.mutate(ctx, userID, amount, model.HistoryKindCharge)
}

// Use 使用积分，返回使用后的余额
func (s *PointService) Use(ctx context.Context, userID, amount int64) (int64, error) {
	return s.mutate(ctx, userID, amount, model.HistoryKindUse)
}

// GetBalance 普通读，不等待变更锁
func (s *PointService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	account, err := s.store.Accounts().GetByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// GetHistory 按提交顺序返回用户的积分流水
func (s *PointService) GetHistory(ctx context.Context, userID int64) ([]*model.PointHistory, error) {
	if _, err := s.store.Accounts().GetByUserID(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.Histories().ListByUser(ctx, userID)
}

func (s *PointService) mutate(ctx context.Context, userID, amount int64, kind string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	// 进程内锁和行锁的等待共用一个上限
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	unlock, err := s.locker.Lock(lockCtx, userID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var history *model.PointHistory
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		account, err := tx.Accounts().GetByUserIDForUpdate(lockCtx, userID)
		if err != nil {
			return lockWaitErr(ctx, lockCtx, err)
		}

		before := account.Balance
		after, err := nextBalance(before, amount, kind)
		if err != nil {
			return err
		}

		account.Balance = after
		if err := tx.Accounts().Save(ctx, account); err != nil {
			return fmt.Errorf("更新余额失败: %w", err)
		}

		history = &model.PointHistory{
			TransactionNo: s.gen.TransactionNo(),
			UserID:        userID,
			Amount:        amount,
			Kind:          kind,
			BalanceBefore: before,
			BalanceAfter:  after,
			CreatedAt:     time.Now(),
		}
		if err := tx.Histories().Append(ctx, history); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		if s.topic == "" {
			return nil
		}
		msg, err := s.pointChangedMessage(history)
		if err != nil {
			return err
		}
		if err := tx.Outbox().Create(ctx, msg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Printf("[PointService] 积分变更成功: userID=%d, kind=%s, amount=%d, balance=%d->%d, txn=%s",
		userID, kind, amount, history.BalanceBefore, history.BalanceAfter, history.TransactionNo)
	return history.BalanceAfter, nil
}

func nextBalance(balance, amount int64, kind string) (int64, error) {
	switch kind {
	case model.HistoryKindCharge:
		if balance > math.MaxInt64-amount {
			return 0, ErrAmountOverflow
		}
		return balance + amount, nil
	case model.HistoryKindUse:
		if balance < amount {
			return 0, ErrInsufficientBalance
		}
		return balance - amount, nil
	default:
		return 0, fmt.Errorf("未知的变更类型: %s", kind)
	}
}

// lockWaitErr 行锁等待超时统一翻译为 ErrLockContention，调用方主动取消的不算
func lockWaitErr(ctx, lockCtx context.Context, err error) error {
	if errors.Is(err, repository.ErrLockWaitTimeout) {
		return ErrLockContention
	}
	if lockCtx.Err() != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return ErrLockContention
	}
	return err
}

func (s *PointService) pointChangedMessage(h *model.PointHistory) (*model.OutboxMessage, error) {
	payload, err := json.Marshal(model.PointChangedEvent{
		TransactionNo: h.TransactionNo,
		UserID:        h.UserID,
		Kind:          h.Kind,
		Amount:        h.Amount,
		BalanceBefore: h.BalanceBefore,
		BalanceAfter:  h.BalanceAfter,
		OccurredAt:    h.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化积分事件失败: %w", err)
	}
	return &model.OutboxMessage{
		MessageKey: fmt.Sprintf("%d", h.UserID),
		Topic:      s.topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}, nil
}
