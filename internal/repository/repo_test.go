package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"pointsystem/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormMysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockGorm(t *testing.T, conn *sql.DB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormMysql.New(gormMysql.Config{
		Conn: conn,
		// 如果为 false ，则GORM在初始化时，会先调用 show version
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

var accountColumns = []string{"id", "user_id", "balance", "version", "created_at", "updated_at"}

func TestAccountRepository_GetByUserIDForUpdate(t *testing.T) {
	testCases := []struct {
		name        string
		mock        func(mock sqlmock.Sqlmock)
		wantBalance int64
		wantErr     error
	}{
		{
			name: "加锁读取成功",
			mock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(accountColumns).AddRow(1, 10, 500, 3, time.Now(), time.Now())
				mock.ExpectQuery("SELECT \\* FROM `point_account` WHERE user_id = \\? .*FOR UPDATE").
					WillReturnRows(rows)
			},
			wantBalance: 500,
		},
		{
			name: "账户不存在",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT \\* FROM `point_account` WHERE user_id = \\? .*FOR UPDATE").
					WillReturnRows(sqlmock.NewRows(accountColumns))
			},
			wantErr: ErrAccountNotFound,
		},
		{
			name: "行锁等待超时",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT \\* FROM `point_account` WHERE user_id = \\? .*FOR UPDATE").
					WillReturnError(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
			},
			wantErr: ErrLockWaitTimeout,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conn, mock, err := sqlmock.New()
			require.NoError(t, err)
			tc.mock(mock)

			repo := NewAccountRepository(newMockGorm(t, conn))
			acc, err := repo.GetByUserIDForUpdate(context.Background(), 10)
			assert.ErrorIs(t, err, tc.wantErr)
			if tc.wantErr == nil {
				assert.Equal(t, tc.wantBalance, acc.Balance)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAccountRepository_GetByUserID(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectQuery("SELECT \\* FROM `point_account` WHERE user_id = \\?").
		WillReturnError(errors.New("数据库错误"))

	repo := NewAccountRepository(newMockGorm(t, conn))
	_, err = repo.GetByUserID(context.Background(), 10)
	assert.EqualError(t, err, "数据库错误")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_Save(t *testing.T) {
	testCases := []struct {
		name        string
		affected    int64
		wantErr     error
		wantVersion int
	}{
		{name: "更新成功", affected: 1, wantVersion: 4},
		{name: "账户不存在", affected: 0, wantErr: ErrAccountNotFound, wantVersion: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conn, mock, err := sqlmock.New()
			require.NoError(t, err)
			mock.ExpectExec("UPDATE `point_account` SET .*`balance`=\\?.*`version`=version \\+ 1.* WHERE user_id = \\?").
				WillReturnResult(sqlmock.NewResult(0, tc.affected))

			repo := NewAccountRepository(newMockGorm(t, conn))
			acc := &model.Account{UserID: 10, Balance: 300, Version: 3}
			err = repo.Save(context.Background(), acc)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, tc.wantVersion, acc.Version)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHistoryRepository_ListByUser(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	rows := sqlmock.NewRows([]string{"id", "transaction_no", "user_id", "amount", "kind", "balance_before", "balance_after", "created_at"}).
		AddRow(1, "PNT1", 10, 100, model.HistoryKindCharge, 0, 100, time.Now()).
		AddRow(2, "PNT2", 10, 30, model.HistoryKindUse, 100, 70, time.Now())
	mock.ExpectQuery("SELECT \\* FROM `point_history` WHERE user_id = \\? ORDER BY id ASC").
		WillReturnRows(rows)

	repo := NewHistoryRepository(newMockGorm(t, conn))
	list, err := repo.ListByUser(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.HistoryKindCharge, list[0].Kind)
	assert.Equal(t, int64(70), list[1].BalanceAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepository_LastByUser_Empty(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectQuery("SELECT \\* FROM `point_history` WHERE user_id = \\? ORDER BY id DESC").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewHistoryRepository(newMockGorm(t, conn))
	h, err := repo.LastByUser(context.Background(), 10)
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_Transaction(t *testing.T) {
	ctx := context.Background()

	t.Run("余额与流水一起提交", func(t *testing.T) {
		conn, mock, err := sqlmock.New()
		require.NoError(t, err)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT \\* FROM `point_account` WHERE user_id = \\? .*FOR UPDATE").
			WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(1, 10, 500, 0, time.Now(), time.Now()))
		mock.ExpectExec("UPDATE `point_account` SET").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO `point_history`").WillReturnResult(sqlmock.NewResult(7, 1))
		mock.ExpectCommit()

		store := NewGormStore(newMockGorm(t, conn))
		err = store.Transaction(ctx, func(tx Store) error {
			acc, err := tx.Accounts().GetByUserIDForUpdate(ctx, 10)
			if err != nil {
				return err
			}
			acc.Balance += 100
			if err := tx.Accounts().Save(ctx, acc); err != nil {
				return err
			}
			h := &model.PointHistory{TransactionNo: "PNT1", UserID: 10, Amount: 100, Kind: model.HistoryKindCharge, BalanceBefore: 500, BalanceAfter: 600}
			if err := tx.Histories().Append(ctx, h); err != nil {
				return err
			}
			assert.Equal(t, int64(7), h.ID)
			return nil
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("写流水失败整体回滚", func(t *testing.T) {
		conn, mock, err := sqlmock.New()
		require.NoError(t, err)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT \\* FROM `point_account` WHERE user_id = \\? .*FOR UPDATE").
			WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(1, 10, 500, 0, time.Now(), time.Now()))
		mock.ExpectExec("UPDATE `point_account` SET").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO `point_history`").WillReturnError(errors.New("磁盘已满"))
		mock.ExpectRollback()

		store := NewGormStore(newMockGorm(t, conn))
		err = store.Transaction(ctx, func(tx Store) error {
			acc, err := tx.Accounts().GetByUserIDForUpdate(ctx, 10)
			if err != nil {
				return err
			}
			acc.Balance += 100
			if err := tx.Accounts().Save(ctx, acc); err != nil {
				return err
			}
			return tx.Histories().Append(ctx, &model.PointHistory{TransactionNo: "PNT1", UserID: 10, Amount: 100, Kind: model.HistoryKindCharge})
		})
		assert.EqualError(t, err, "磁盘已满")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOutboxRepository_RecordFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec("UPDATE `outbox_message` SET .*`retry_count`=retry_count \\+ 1.*`status`=\\?").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewOutboxRepository(newMockGorm(t, conn))
	require.NoError(t, repo.RecordFailure(context.Background(), 1, true))
	assert.NoError(t, mock.ExpectationsWereMet())
}
