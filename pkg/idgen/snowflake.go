package idgen

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"
)

// 雪花算法 ID 生成器
//
//	0 - 41位时间戳 - 10位机器ID - 12位序列号
//
// 多个实例共享同一个库时，worker_id 必须各不相同。

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Generator 雪花算法ID生成器
type Generator struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
	now       func() int64
}

// NewGenerator 创建ID生成器
func NewGenerator(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间，当前: %d", maxWorkerID, workerID)
	}
	return &Generator{
		workerID: workerID,
		now:      func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// NextID 生成下一个ID，同一生成器内严格递增
func (g *Generator) NextID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now < g.timestamp {
		// 时钟回拨，沿用上一次的时间戳继续发号
		now = g.timestamp
	}

	if now == g.timestamp {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			now = g.tilNextMillis()
		}
	} else {
		g.sequence = 0
	}

	g.timestamp = now

	return ((now - epoch) << timestampShift) |
		(g.workerID << workerIDShift) |
		g.sequence
}

// tilNextMillis 序列号用完后切到下一毫秒
// 时钟回拨时墙钟可能很久才追上，直接借用下一毫秒，不持锁等待
func (g *Generator) tilNextMillis() int64 {
	now := g.now()
	if now < g.timestamp {
		log.Printf("[IDGen] 时钟回拨 %dms 且序列号用完，借用下一毫秒", g.timestamp-now)
		return g.timestamp + 1
	}
	for now <= g.timestamp {
		time.Sleep(100 * time.Microsecond)
		now = g.now()
	}
	return now
}

// TransactionNo 生成积分流水号，例如 PNT7153401234567890
func (g *Generator) TransactionNo() string {
	return "PNT" + strconv.FormatInt(g.NextID(), 10)
}

// Token 生成锁持有者标识
func (g *Generator) Token() string {
	return strconv.FormatInt(g.NextID(), 36)
}
