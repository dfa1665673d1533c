package memory

import (
	"context"
	"time"

	"pointsystem/internal/infrastructure/lock"
	"pointsystem/internal/model"
	"pointsystem/internal/repository"
)

// tx 一次事务：持有的行锁 + 尚未提交的写
type tx struct {
	s    *Store
	held map[int64]lock.Unlock

	accounts  map[int64]model.Account
	histories []model.PointHistory
	outbox    []model.OutboxMessage
}

// Transaction 嵌套事务并入外层
func (t *tx) Transaction(_ context.Context, fn func(tx repository.Store) error) error {
	return fn(t)
}

func (t *tx) Accounts() repository.BalanceStore {
	return txAccounts{t: t}
}

func (t *tx) Histories() repository.HistoryLedger {
	return txHistories{t: t}
}

func (t *tx) Outbox() repository.OutboxLedger {
	return txOutbox{t: t, outboxLedger: outboxLedger{s: t.s}}
}

func (t *tx) commit() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for uid, acc := range t.accounts {
		acc.UpdatedAt = now
		s.accounts[uid] = acc
	}
	for _, h := range t.histories {
		s.histories[h.UserID] = append(s.histories[h.UserID], h)
	}
	for i := range t.outbox {
		msg := t.outbox[i]
		s.outbox[msg.ID] = &msg
	}
}

// release 提交或回滚之后释放所有行锁
func (t *tx) release() {
	for uid, unlock := range t.held {
		unlock()
		delete(t.held, uid)
	}
}

func (t *tx) readAccount(userID int64) (*model.Account, error) {
	if acc, ok := t.accounts[userID]; ok {
		return &acc, nil
	}
	return t.s.getAccount(userID)
}

type txAccounts struct {
	t *tx
}

func (a txAccounts) GetByUserID(_ context.Context, userID int64) (*model.Account, error) {
	return a.t.readAccount(userID)
}

func (a txAccounts) GetByUserIDForUpdate(ctx context.Context, userID int64) (*model.Account, error) {
	if _, ok := a.t.held[userID]; !ok {
		unlock, err := a.t.s.rows.Lock(ctx, userID)
		if err != nil {
			return nil, err
		}
		a.t.held[userID] = unlock
	}
	return a.t.readAccount(userID)
}

func (a txAccounts) Save(_ context.Context, account *model.Account) error {
	cur, err := a.t.readAccount(account.UserID)
	if err != nil {
		return err
	}
	cur.Balance = account.Balance
	cur.Version++
	a.t.accounts[account.UserID] = *cur
	account.Version = cur.Version
	return nil
}

func (a txAccounts) ListAfter(_ context.Context, afterUserID int64, limit int) ([]*model.Account, error) {
	return a.t.s.listAccounts(afterUserID, limit), nil
}

type txHistories struct {
	t *tx
}

func (h txHistories) Append(_ context.Context, history *model.PointHistory) error {
	h.t.s.stampHistory(history)
	h.t.histories = append(h.t.histories, *history)
	return nil
}

func (h txHistories) ListByUser(_ context.Context, userID int64) ([]*model.PointHistory, error) {
	res := h.t.s.listHistories(userID)
	for i := range h.t.histories {
		if h.t.histories[i].UserID == userID {
			cp := h.t.histories[i]
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (h txHistories) LastByUser(ctx context.Context, userID int64) (*model.PointHistory, error) {
	list, _ := h.ListByUser(ctx, userID)
	if len(list) == 0 {
		return nil, nil
	}
	return list[len(list)-1], nil
}

// txOutbox 只有 Create 进入事务缓存，其余操作直接作用于已提交数据
type txOutbox struct {
	outboxLedger
	t *tx
}

func (o txOutbox) Create(_ context.Context, msg *model.OutboxMessage) error {
	o.t.s.stampOutbox(msg)
	o.t.outbox = append(o.t.outbox, *msg)
	return nil
}
