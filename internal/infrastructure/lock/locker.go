package lock

import (
	"context"
	"errors"
	"fmt"

	"pointsystem/pkg/idgen"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 积分变更的并发控制
// ============================================================================
//
// 同一用户的 charge/use 必须串行执行，不同用户之间互不阻塞。
//
//   row    - 不在进程内加锁，依靠 SELECT ... FOR UPDATE 行锁，多实例安全（默认）
//   keyed  - 进程内按用户加锁，只在单实例部署时正确
//   global - 进程内一把全局锁，所有用户串行，只作为对照
//   redis  - Redis 分布式锁，多实例安全
//
// 所有等待都受 ctx 约束，超时返回 ErrLockContention，由调用方决定是否重试。
//
// ============================================================================

const (
	StrategyRow    = "row"
	StrategyKeyed  = "keyed"
	StrategyGlobal = "global"
	StrategyRedis  = "redis"
)

var ErrLockContention = errors.New("锁竞争激烈，等待超时")

// Unlock 释放锁，可以重复调用
type Unlock func()

// Locker 按用户维度的互斥
type Locker interface {
	Lock(ctx context.Context, userID int64) (Unlock, error)
}

// New 根据配置创建 Locker，redis 策略需要 rdb 和 gen
func New(strategy string, rdb *redis.Client, gen *idgen.Generator) (Locker, error) {
	switch strategy {
	case "", StrategyRow:
		return StoreRowLock{}, nil
	case StrategyKeyed:
		return NewKeyedLocker(), nil
	case StrategyGlobal:
		return NewGlobalLocker(), nil
	case StrategyRedis:
		if rdb == nil || gen == nil {
			return nil, errors.New("redis 锁需要 redis 客户端和 ID 生成器")
		}
		return NewRedisLocker(rdb, gen), nil
	default:
		return nil, fmt.Errorf("未知的锁策略: %s", strategy)
	}
}

// waitErr 把等待失败的原因翻译成对外的错误
func waitErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrLockContention
	}
	return ctx.Err()
}

// StoreRowLock 进程内不做任何事，互斥由存储层的行锁保证
type StoreRowLock struct{}

func (StoreRowLock) Lock(ctx context.Context, _ int64) (Unlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, waitErr(ctx)
	}
	return func() {}, nil
}
