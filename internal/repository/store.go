package repository

import (
	"context"

	"pointsystem/internal/model"

	"gorm.io/gorm"
)

// BalanceStore 积分账户存储
//
// GetByUserIDForUpdate 必须在 Store.Transaction 内调用：
// 它会持有该用户的排他锁直到事务结束，其他事务对同一用户加锁时会阻塞等待。
// GetByUserID 是普通读，不加锁，只能看到已提交的余额。
type BalanceStore interface {
	GetByUserID(ctx context.Context, userID int64) (*model.Account, error)
	GetByUserIDForUpdate(ctx context.Context, userID int64) (*model.Account, error)
	Save(ctx context.Context, account *model.Account) error
	// ListAfter 按 user_id 升序分页，供对账任务使用
	ListAfter(ctx context.Context, afterUserID int64, limit int) ([]*model.Account, error)
}

// HistoryLedger 积分流水，只追加
type HistoryLedger interface {
	Append(ctx context.Context, history *model.PointHistory) error
	// ListByUser 按提交顺序升序返回，没有流水时返回空切片
	ListByUser(ctx context.Context, userID int64) ([]*model.PointHistory, error)
	// LastByUser 没有流水时返回 nil, nil
	LastByUser(ctx context.Context, userID int64) (*model.PointHistory, error)
}

// OutboxLedger 本地消息表
type OutboxLedger interface {
	Create(ctx context.Context, msg *model.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	RecordFailure(ctx context.Context, id int64, giveUp bool) error
}

// Store 聚合三类存储，并提供事务边界
//
// Transaction 内 fn 拿到的 Store 上的所有写操作要么一起提交，要么一起回滚；
// 通过 GetByUserIDForUpdate 获得的行锁在事务结束时释放。
type Store interface {
	Transaction(ctx context.Context, fn func(tx Store) error) error
	Accounts() BalanceStore
	Histories() HistoryLedger
	Outbox() OutboxLedger
}

// GormStore 基于 gorm 的 Store 实现
type GormStore struct {
	db        *gorm.DB
	accounts  *AccountRepository
	histories *HistoryRepository
	outbox    *OutboxRepository
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:        db,
		accounts:  NewAccountRepository(db),
		histories: NewHistoryRepository(db),
		outbox:    NewOutboxRepository(db),
	}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	})
}

func (s *GormStore) Accounts() BalanceStore {
	return s.accounts
}

func (s *GormStore) Histories() HistoryLedger {
	return s.histories
}

func (s *GormStore) Outbox() OutboxLedger {
	return s.outbox
}
