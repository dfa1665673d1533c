package model

import (
	"time"
)

const (
	HistoryKindCharge = "CHARGE" // 充值
	HistoryKindUse    = "USE"    // 使用
)

// PointHistory 积分流水表
//
// 只追加，不修改，不删除。
// 同一用户的流水按 ID 递增的顺序就是余额变更提交的顺序，
// 因为流水总是在持有该用户行锁的事务里写入。
type PointHistory struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID        int64     `gorm:"index;not null" json:"user_id"`
	Amount        int64     `gorm:"not null" json:"amount"` // 始终为正数，方向由 Kind 决定
	Kind          string    `gorm:"type:varchar(16);not null" json:"kind"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PointHistory) TableName() string {
	return "point_history"
}
