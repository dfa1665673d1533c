package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"pointsystem/internal/infrastructure/lock"
	"pointsystem/internal/model"
	"pointsystem/internal/repository"
)

// Store 进程内的 repository.Store 实现
//
// GetByUserIDForUpdate 在事务内按用户加排他锁，事务结束才释放，
// 事务内的写操作先缓存，提交时一次性生效，行为上对齐 InnoDB 的行锁 + 事务。
// 多个 service 实例共享同一个 Store 时，就相当于多实例共享同一个库。
type Store struct {
	mu sync.RWMutex

	accounts  map[int64]model.Account
	histories map[int64][]model.PointHistory
	outbox    map[int64]*model.OutboxMessage

	nextAccountID int64
	nextHistoryID int64
	nextOutboxID  int64

	rows *lock.KeyedLocker
}

func New() *Store {
	return &Store{
		accounts:  make(map[int64]model.Account),
		histories: make(map[int64][]model.PointHistory),
		outbox:    make(map[int64]*model.OutboxMessage),
		rows:      lock.NewKeyedLocker(),
	}
}

// PutAccount 开户或覆盖余额，账户由外部开通，这里只供测试和单机演示使用
func (s *Store) PutAccount(userID, balance int64) *model.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	acc, ok := s.accounts[userID]
	if !ok {
		s.nextAccountID++
		acc = model.Account{ID: s.nextAccountID, UserID: userID, CreatedAt: now}
	}
	acc.Balance = balance
	acc.UpdatedAt = now
	s.accounts[userID] = acc
	return &acc
}

func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	t := &tx{
		s:        s,
		held:     make(map[int64]lock.Unlock),
		accounts: make(map[int64]model.Account),
	}
	defer t.release()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(t); err != nil {
		return err
	}
	t.commit()
	return nil
}

func (s *Store) Accounts() repository.BalanceStore {
	return accountStore{s: s}
}

func (s *Store) Histories() repository.HistoryLedger {
	return historyLedger{s: s}
}

func (s *Store) Outbox() repository.OutboxLedger {
	return outboxLedger{s: s}
}

func (s *Store) getAccount(userID int64) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[userID]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	return &acc, nil
}

func (s *Store) listAccounts(afterUserID int64, limit int) []*model.Account {
	s.mu.RLock()
	res := make([]*model.Account, 0, len(s.accounts))
	for uid := range s.accounts {
		if uid > afterUserID {
			acc := s.accounts[uid]
			res = append(res, &acc)
		}
	}
	s.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].UserID < res[j].UserID })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res
}

func (s *Store) listHistories(userID int64) []*model.PointHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	committed := s.histories[userID]
	res := make([]*model.PointHistory, 0, len(committed))
	for i := range committed {
		h := committed[i]
		res = append(res, &h)
	}
	return res
}

func (s *Store) stampHistory(h *model.PointHistory) {
	s.mu.Lock()
	s.nextHistoryID++
	h.ID = s.nextHistoryID
	s.mu.Unlock()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
}

func (s *Store) stampOutbox(msg *model.OutboxMessage) {
	s.mu.Lock()
	s.nextOutboxID++
	msg.ID = s.nextOutboxID
	s.mu.Unlock()
	now := time.Now()
	if msg.Status == "" {
		msg.Status = model.OutboxStatusPending
	}
	msg.CreatedAt, msg.UpdatedAt = now, now
}

// ============================================================================
// 非事务视图：写操作立即生效
// ============================================================================

type accountStore struct {
	s *Store
}

func (a accountStore) GetByUserID(_ context.Context, userID int64) (*model.Account, error) {
	return a.s.getAccount(userID)
}

// GetByUserIDForUpdate 事务外调用等同于自动提交，锁立即释放
func (a accountStore) GetByUserIDForUpdate(ctx context.Context, userID int64) (*model.Account, error) {
	unlock, err := a.s.rows.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return a.s.getAccount(userID)
}

func (a accountStore) Save(_ context.Context, account *model.Account) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	cur, ok := a.s.accounts[account.UserID]
	if !ok {
		return repository.ErrAccountNotFound
	}
	cur.Balance = account.Balance
	cur.Version++
	cur.UpdatedAt = time.Now()
	a.s.accounts[account.UserID] = cur
	account.Version = cur.Version
	return nil
}

func (a accountStore) ListAfter(_ context.Context, afterUserID int64, limit int) ([]*model.Account, error) {
	return a.s.listAccounts(afterUserID, limit), nil
}

type historyLedger struct {
	s *Store
}

func (l historyLedger) Append(_ context.Context, history *model.PointHistory) error {
	l.s.stampHistory(history)
	l.s.mu.Lock()
	l.s.histories[history.UserID] = append(l.s.histories[history.UserID], *history)
	l.s.mu.Unlock()
	return nil
}

func (l historyLedger) ListByUser(_ context.Context, userID int64) ([]*model.PointHistory, error) {
	return l.s.listHistories(userID), nil
}

func (l historyLedger) LastByUser(_ context.Context, userID int64) (*model.PointHistory, error) {
	list := l.s.listHistories(userID)
	if len(list) == 0 {
		return nil, nil
	}
	return list[len(list)-1], nil
}

type outboxLedger struct {
	s *Store
}

func (o outboxLedger) Create(_ context.Context, msg *model.OutboxMessage) error {
	o.s.stampOutbox(msg)
	cp := *msg
	o.s.mu.Lock()
	o.s.outbox[cp.ID] = &cp
	o.s.mu.Unlock()
	return nil
}

func (o outboxLedger) GetPendingMessages(_ context.Context, limit int) ([]*model.OutboxMessage, error) {
	o.s.mu.RLock()
	res := make([]*model.OutboxMessage, 0)
	for _, msg := range o.s.outbox {
		if msg.Status == model.OutboxStatusPending {
			cp := *msg
			res = append(res, &cp)
		}
	}
	o.s.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (o outboxLedger) UpdateStatus(_ context.Context, id int64, status string) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	if msg, ok := o.s.outbox[id]; ok {
		msg.Status = status
		msg.UpdatedAt = time.Now()
	}
	return nil
}

func (o outboxLedger) RecordFailure(_ context.Context, id int64, giveUp bool) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	if msg, ok := o.s.outbox[id]; ok {
		msg.RetryCount++
		if giveUp {
			msg.Status = model.OutboxStatusFailed
		}
		msg.UpdatedAt = time.Now()
	}
	return nil
}
