package lock

import (
	"context"
	"sync"
)

const keyedShardCount = 64

// KeyedLocker 进程内按用户加锁
//
// 锁表按 userID 分片，每个条目带引用计数（持有者 + 等待者），
// 计数归零时立即删除，锁表大小只和当前并发的用户数有关。
type KeyedLocker struct {
	shards [keyedShardCount]keyedShard
}

type keyedShard struct {
	mu      sync.Mutex
	entries map[int64]*keyedEntry
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	l := &KeyedLocker{}
	for i := range l.shards {
		l.shards[i].entries = make(map[int64]*keyedEntry)
	}
	return l
}

func (l *KeyedLocker) shard(userID int64) *keyedShard {
	return &l.shards[uint64(userID)%keyedShardCount]
}

func (l *KeyedLocker) Lock(ctx context.Context, userID int64) (Unlock, error) {
	sh := l.shard(userID)

	sh.mu.Lock()
	e, ok := sh.entries[userID]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		sh.entries[userID] = e
	}
	e.refs++
	sh.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		sh.release(userID, e)
		return nil, waitErr(ctx)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			sh.release(userID, e)
		})
	}, nil
}

func (sh *keyedShard) release(userID int64, e *keyedEntry) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(sh.entries, userID)
	}
}

// Len 当前锁表中的条目数
func (l *KeyedLocker) Len() int {
	n := 0
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}
