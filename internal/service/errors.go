package service

import (
	"errors"

	"pointsystem/internal/infrastructure/lock"
	"pointsystem/internal/repository"
)

// 失败的调用不会留下任何状态变更，也不会自动重试
var (
	ErrInvalidAmount       = errors.New("积分数量必须大于0")
	ErrInsufficientBalance = errors.New("积分余额不足")
	ErrAmountOverflow      = errors.New("积分余额超出上限")
	ErrUserNotFound        = repository.ErrAccountNotFound
	ErrLockContention      = lock.ErrLockContention
)
