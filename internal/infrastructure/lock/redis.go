package lock

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"pointsystem/pkg/idgen"

	"github.com/go-redis/redis/v8"
)

const (
	redisLockTTL           = 30 * time.Second
	redisLockRetryInterval = 20 * time.Millisecond
	redisUnlockTimeout     = 3 * time.Second
)

// 检查 value 是否是自己的再删除，防止误删别人的锁：
// A 持锁超时过期 -> B 获得锁 -> A 执行完毕 Unlock，此时不能删掉 B 的锁
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// RedisLocker 基于 Redis 的按用户分布式锁
//
// 加锁：SET key token NX PX ttl
// ttl 防止持锁进程崩溃后死锁；业务必须在 ttl 内完成。
type RedisLocker struct {
	client        *redis.Client
	gen           *idgen.Generator
	ttl           time.Duration
	retryInterval time.Duration
}

func NewRedisLocker(client *redis.Client, gen *idgen.Generator) *RedisLocker {
	return &RedisLocker{
		client:        client,
		gen:           gen,
		ttl:           redisLockTTL,
		retryInterval: redisLockRetryInterval,
	}
}

func redisLockKey(userID int64) string {
	return fmt.Sprintf("point:lock:user:%d", userID)
}

// TryLock 非阻塞地尝试一次
func (l *RedisLocker) TryLock(ctx context.Context, key, token string) (bool, error) {
	return l.client.SetNX(ctx, key, token, l.ttl).Result()
}

func (l *RedisLocker) Lock(ctx context.Context, userID int64) (Unlock, error) {
	key := redisLockKey(userID)
	token := l.gen.Token()

	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.TryLock(ctx, key, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, waitErr(ctx)
			}
			return nil, fmt.Errorf("获取分布式锁失败: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, waitErr(ctx)
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// 调用方的 ctx 可能已经过期，释放锁使用独立的 ctx
			unlockCtx, cancel := context.WithTimeout(context.Background(), redisUnlockTimeout)
			defer cancel()
			if err := unlockScript.Run(unlockCtx, l.client, []string{key}, token).Err(); err != nil {
				log.Printf("[RedisLocker] 释放锁失败: key=%s, err=%v", key, err)
			}
		})
	}, nil
}
