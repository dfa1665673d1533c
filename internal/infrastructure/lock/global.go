package lock

import (
	"context"
	"sync"
)

// GlobalLocker 所有用户共用一把锁
//
// 用户A变更时用户B也要等待，不满足不同用户并行的要求，只作为基准对照。
type GlobalLocker struct {
	sem chan struct{}
}

func NewGlobalLocker() *GlobalLocker {
	return &GlobalLocker{sem: make(chan struct{}, 1)}
}

func (l *GlobalLocker) Lock(ctx context.Context, _ int64) (Unlock, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, waitErr(ctx)
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-l.sem })
	}, nil
}
