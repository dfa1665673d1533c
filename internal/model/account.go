package model

import (
	"time"
)

// Account 用户积分账户表
// 账户由外部系统开通，本服务只负责变更余额，不会删除账户
type Account struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex;not null" json:"user_id"` // 用户ID
	Balance   int64     `gorm:"not null;default:0" json:"balance"`   // 积分余额，任何时刻都不小于0
	Version   int       `gorm:"not null;default:0" json:"version"`   // 每次变更加一，便于排查
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "point_account"
}
