package job

import (
	"context"
	"log"
	"sync"
	"time"

	"pointsystem/internal/repository"
)

const defaultReconcileInterval = time.Minute

// ReconcileJob 积分对账
//
// 账户余额必须等于该用户最后一条流水的 balance_after。
// 没有流水的账户跳过（初始余额由外部开户决定，无从校验）。
type ReconcileJob struct {
	store     repository.Store
	interval  time.Duration
	batchSize int
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewReconcileJob(store repository.Store, interval time.Duration) *ReconcileJob {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	return &ReconcileJob{
		store:     store,
		interval:  interval,
		batchSize: 200,
		stopCh:    make(chan struct{}),
	}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	log.Println("[ReconcileJob] 对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ReconcileJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[ReconcileJob] 任务停止")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *ReconcileJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

// RunOnce 扫描全部账户一遍，返回不一致的账户数
func (j *ReconcileJob) RunOnce(ctx context.Context) int {
	var (
		afterUserID int64
		mismatched  int
		checked     int
	)
	for {
		accounts, err := j.store.Accounts().ListAfter(ctx, afterUserID, j.batchSize)
		if err != nil {
			log.Printf("[ReconcileJob] 查询账户失败: afterUserID=%d, err=%v", afterUserID, err)
			return mismatched
		}
		if len(accounts) == 0 {
			break
		}

		for _, account := range accounts {
			afterUserID = account.UserID
			checked++
			if !j.check(ctx, account.UserID, account.Balance) {
				mismatched++
			}
		}
	}

	if mismatched > 0 {
		log.Printf("[ReconcileJob] 本次检查 %d 个账户，发现 %d 个余额与流水不一致", checked, mismatched)
	}
	return mismatched
}

func (j *ReconcileJob) check(ctx context.Context, userID, balance int64) bool {
	last, err := j.store.Histories().LastByUser(ctx, userID)
	if err != nil {
		log.Printf("[ReconcileJob] 查询流水失败: userID=%d, err=%v", userID, err)
		return true
	}
	if last == nil || last.BalanceAfter == balance {
		return true
	}

	// 读账户和读流水之间可能有新的变更提交，重读一次再判断
	account, err := j.store.Accounts().GetByUserID(ctx, userID)
	if err != nil {
		log.Printf("[ReconcileJob] 查询账户失败: userID=%d, err=%v", userID, err)
		return true
	}
	if account.Balance != balance {
		return true
	}

	log.Printf("[ReconcileJob] 余额与流水不一致: userID=%d, balance=%d, lastTxn=%s, balanceAfter=%d",
		userID, balance, last.TransactionNo, last.BalanceAfter)
	return false
}
