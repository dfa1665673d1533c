package repository

import (
	"context"
	"errors"

	"pointsystem/internal/model"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ER_LOCK_WAIT_TIMEOUT
const mysqlErrLockWaitTimeout = 1205

var (
	ErrAccountNotFound = errors.New("账户不存在")
	ErrLockWaitTimeout = errors.New("等待行锁超时")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetByUserIDForUpdate SELECT ... FOR UPDATE
func (r *AccountRepository) GetByUserIDForUpdate(ctx context.Context, userID int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrLockWaitTimeout {
			return nil, ErrLockWaitTimeout
		}
		return nil, err
	}
	return &account, nil
}

// Save 写回新的余额，只在事务提交后生效
func (r *AccountRepository) Save(ctx context.Context, account *model.Account) error {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ?", account.UserID).
		Updates(map[string]interface{}{
			"balance": account.Balance,
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	account.Version++
	return nil
}

func (r *AccountRepository) ListAfter(ctx context.Context, afterUserID int64, limit int) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Where("user_id > ?", afterUserID).
		Order("user_id ASC").
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}
